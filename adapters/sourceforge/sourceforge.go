// Package sourceforge defines the git-hosting capability the release
// pipeline's branch/merge/tag steps depend on.
package sourceforge

import (
	"context"
	"fmt"
)

// Repository is the minimal repo record Repository() returns.
type Repository struct {
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
}

// Branch is a single branch record.
type Branch struct {
	Name   string `json:"name"`
	Commit string `json:"commit"`
}

// Tag is a single tag record.
type Tag struct {
	Name   string `json:"name"`
	Commit string `json:"commit"`
}

// PullRequest is the record returned by CreatePR.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Head   string `json:"head"`
	Base   string `json:"base"`
}

// MergeStatus reports whether src has been merged into dst.
type MergeStatus struct {
	Merged bool `json:"merged"`
}

// SourceForge is the git-hosting capability contract the release
// pipeline depends on.
type SourceForge interface {
	Repository(ctx context.Context, name string) (Repository, error)
	Branches(ctx context.Context, repo string) ([]Branch, error)
	FindFeatureBranches(ctx context.Context, repo string, ticketIDs []string) (found map[string]string, missing []string, err error)
	CheckMergeStatus(ctx context.Context, repo, src, dst string) (MergeStatus, error)
	CreatePR(ctx context.Context, repo, title, body, head, base string) (PullRequest, error)
	MergeBranches(ctx context.Context, repo, src, dst string) error
	CreateBranch(ctx context.Context, repo, name, source string) error
	CreateTag(ctx context.Context, repo, name, sha, message string) error
	Tags(ctx context.Context, repo string) ([]Tag, error)
	Validate(ctx context.Context) error
}

// MatchFeatureBranches is the feature/<ticket-id> matching logic shared
// by every SourceForge implementation: branch_discovery wants the same
// matching rule regardless of which backend fetched the branch list.
func MatchFeatureBranches(branches []Branch, ticketIDs []string) (found map[string]string, missing []string) {
	byName := make(map[string]string, len(branches))
	for _, b := range branches {
		byName[b.Name] = b.Name
	}

	found = make(map[string]string, len(ticketIDs))
	for _, id := range ticketIDs {
		want := fmt.Sprintf("feature/%s", id)
		if _, ok := byName[want]; ok {
			found[id] = want
			continue
		}
		missing = append(missing, id)
	}
	return found, missing
}
