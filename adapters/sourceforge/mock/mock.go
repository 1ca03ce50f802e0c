// Package mock provides a deterministic in-memory SourceForge for tests
// and use_mock_apis mode.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/sourceforge"
)

// Forge is a deterministic stand-in git host: every repository starts
// with a develop/master pair, and FindFeatureBranches adds one feature
// branch per even-indexed ticket (the 1st, 3rd, ...), so
// find_feature_branches has something realistic to report as missing
// without any external state.
type Forge struct {
	mu       sync.Mutex
	branches map[string][]sourceforge.Branch
	tags     map[string][]sourceforge.Tag
	prSeq    int
}

// New constructs a mock SourceForge.
func New() *Forge {
	return &Forge{
		branches: make(map[string][]sourceforge.Branch),
		tags:     make(map[string][]sourceforge.Tag),
	}
}

func (f *Forge) branchesFor(repo string) []sourceforge.Branch {
	if existing, ok := f.branches[repo]; ok {
		return existing
	}
	base := []sourceforge.Branch{
		{Name: "master", Commit: "mock-sha-master"},
		{Name: "develop", Commit: "mock-sha-develop"},
	}
	f.branches[repo] = base
	return base
}

// Repository returns a fixed repo record for name.
func (f *Forge) Repository(_ context.Context, name string) (sourceforge.Repository, error) {
	return sourceforge.Repository{Name: name, DefaultBranch: "master"}, nil
}

// Branches returns repo's current branch list, seeding it on first use.
func (f *Forge) Branches(_ context.Context, repo string) ([]sourceforge.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sourceforge.Branch(nil), f.branchesFor(repo)...), nil
}

// FindFeatureBranches reports every other ticket id as having a
// matching feature branch, and the rest as missing, deterministically.
func (f *Forge) FindFeatureBranches(_ context.Context, repo string, ticketIDs []string) (map[string]string, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	branches := f.branchesFor(repo)
	for i, id := range ticketIDs {
		if i%2 != 0 {
			continue
		}
		name := fmt.Sprintf("feature/%s", id)
		branches = append(branches, sourceforge.Branch{Name: name, Commit: "mock-sha-" + id})
	}
	f.branches[repo] = branches
	found, missing := sourceforge.MatchFeatureBranches(branches, ticketIDs)
	return found, missing, nil
}

// CheckMergeStatus always reports merged for branches this mock created
// via FindFeatureBranches, and unmerged otherwise.
func (f *Forge) CheckMergeStatus(_ context.Context, repo, src, _ string) (sourceforge.MergeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.branchesFor(repo) {
		if b.Name == src {
			return sourceforge.MergeStatus{Merged: true}, nil
		}
	}
	return sourceforge.MergeStatus{Merged: false}, nil
}

// CreatePR returns an incrementing, deterministic PR number.
func (f *Forge) CreatePR(_ context.Context, repo, _, _, head, base string) (sourceforge.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prSeq++
	return sourceforge.PullRequest{
		Number: f.prSeq,
		URL:    fmt.Sprintf("https://mock.sourceforge.local/%s/pulls/%d", repo, f.prSeq),
		Head:   head,
		Base:   base,
	}, nil
}

// MergeBranches always succeeds.
func (f *Forge) MergeBranches(_ context.Context, _, _, _ string) error { return nil }

// CreateBranch appends name to repo's branch list if it doesn't already
// exist, so release_creation's "avoid re-creating existing branches"
// rule has something meaningful to check against.
func (f *Forge) CreateBranch(_ context.Context, repo, name, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.branchesFor(repo) {
		if b.Name == name {
			return nil
		}
	}
	f.branches[repo] = append(f.branches[repo], sourceforge.Branch{Name: name, Commit: "mock-sha-" + name})
	return nil
}

// CreateTag appends name to repo's tag list.
func (f *Forge) CreateTag(_ context.Context, repo, name, sha, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[repo] = append(f.tags[repo], sourceforge.Tag{Name: name, Commit: sha})
	return nil
}

// Tags returns repo's tag list.
func (f *Forge) Tags(_ context.Context, repo string) ([]sourceforge.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sourceforge.Tag(nil), f.tags[repo]...), nil
}

// Validate always succeeds.
func (f *Forge) Validate(_ context.Context) error { return nil }
