// Package live is a gitea-SDK-backed SourceForge for a real git-hosting
// forge, guarded by a shared circuit breaker and rate limiter.
package live

import (
	"context"
	"fmt"

	"code.gitea.io/sdk/gitea"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/resilience"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/sourceforge"
)

// Forge calls a real gitea-compatible git host.
type Forge struct {
	client *gitea.Client
	owner  string
	guard  *resilience.Guard
}

// New constructs a live Forge against baseURL under owner, authenticating
// with token.
func New(baseURL, owner, token string, ratePerSecond float64, burst int) (*Forge, error) {
	client, err := gitea.NewClient(baseURL, gitea.SetToken(token))
	if err != nil {
		return nil, fmt.Errorf("sourceforge: new client: %w", err)
	}
	return &Forge{client: client, owner: owner, guard: resilience.NewGuard("sourceforge", ratePerSecond, burst)}, nil
}

// Repository fetches a single repo record.
func (f *Forge) Repository(ctx context.Context, name string) (sourceforge.Repository, error) {
	result, err := f.guard.Do(ctx, func() (interface{}, error) {
		repo, _, err := f.client.GetRepo(f.owner, name)
		return repo, err
	})
	if err != nil {
		return sourceforge.Repository{}, fmt.Errorf("sourceforge: get repo %s: %w", name, err)
	}
	repo := result.(*gitea.Repository)
	return sourceforge.Repository{Name: repo.Name, DefaultBranch: repo.DefaultBranch}, nil
}

// Branches lists every branch on repo.
func (f *Forge) Branches(ctx context.Context, repo string) ([]sourceforge.Branch, error) {
	result, err := f.guard.Do(ctx, func() (interface{}, error) {
		branches, _, err := f.client.ListRepoBranches(f.owner, repo, gitea.ListRepoBranchesOptions{})
		return branches, err
	})
	if err != nil {
		return nil, fmt.Errorf("sourceforge: list branches %s: %w", repo, err)
	}
	raw := result.([]*gitea.Branch)
	out := make([]sourceforge.Branch, 0, len(raw))
	for _, b := range raw {
		commit := ""
		if b.Commit != nil {
			commit = b.Commit.ID
		}
		out = append(out, sourceforge.Branch{Name: b.Name, Commit: commit})
	}
	return out, nil
}

// FindFeatureBranches fetches repo's branch list and matches it against
// ticketIDs using the shared feature/<ticket-id> convention.
func (f *Forge) FindFeatureBranches(ctx context.Context, repo string, ticketIDs []string) (map[string]string, []string, error) {
	branches, err := f.Branches(ctx, repo)
	if err != nil {
		return nil, nil, err
	}
	found, missing := sourceforge.MatchFeatureBranches(branches, ticketIDs)
	return found, missing, nil
}

// CheckMergeStatus reports whether src's head commit is an ancestor of
// dst, via gitea's branch comparison.
func (f *Forge) CheckMergeStatus(ctx context.Context, repo, src, dst string) (sourceforge.MergeStatus, error) {
	result, err := f.guard.Do(ctx, func() (interface{}, error) {
		cmp, _, err := f.client.CompareCommits(f.owner, repo, dst, src)
		return cmp, err
	})
	if err != nil {
		return sourceforge.MergeStatus{}, fmt.Errorf("sourceforge: compare %s..%s on %s: %w", dst, src, repo, err)
	}
	cmp := result.(*gitea.Compare)
	return sourceforge.MergeStatus{Merged: len(cmp.Commits) == 0}, nil
}

// CreatePR opens a pull request from head into base.
func (f *Forge) CreatePR(ctx context.Context, repo, title, body, head, base string) (sourceforge.PullRequest, error) {
	result, err := f.guard.Do(ctx, func() (interface{}, error) {
		pr, _, err := f.client.CreatePullRequest(f.owner, repo, gitea.CreatePullRequestOption{
			Title: title,
			Body:  body,
			Head:  head,
			Base:  base,
		})
		return pr, err
	})
	if err != nil {
		return sourceforge.PullRequest{}, fmt.Errorf("sourceforge: create PR %s->%s on %s: %w", head, base, repo, err)
	}
	pr := result.(*gitea.PullRequest)
	return sourceforge.PullRequest{
		Number: int(pr.Index),
		URL:    pr.HTMLURL,
		Head:   head,
		Base:   base,
	}, nil
}

// MergeBranches merges src into dst via a fast-forward-or-merge commit.
func (f *Forge) MergeBranches(ctx context.Context, repo, src, dst string) error {
	_, err := f.guard.Do(ctx, func() (interface{}, error) {
		pr, _, err := f.client.CreatePullRequest(f.owner, repo, gitea.CreatePullRequestOption{
			Title: fmt.Sprintf("Merge %s into %s", src, dst),
			Head:  src,
			Base:  dst,
		})
		if err != nil {
			return nil, err
		}
		return nil, f.client.MergePullRequest(f.owner, repo, pr.Index, gitea.MergePullRequestOption{
			Style: gitea.MergeStyleMerge,
		})
	})
	if err != nil {
		return fmt.Errorf("sourceforge: merge %s into %s on %s: %w", src, dst, repo, err)
	}
	return nil
}

// CreateBranch creates a branch named name off source.
func (f *Forge) CreateBranch(ctx context.Context, repo, name, source string) error {
	_, err := f.guard.Do(ctx, func() (interface{}, error) {
		_, _, err := f.client.CreateBranch(f.owner, repo, gitea.CreateBranchOption{
			BranchName:    name,
			OldBranchName: source,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("sourceforge: create branch %s from %s on %s: %w", name, source, repo, err)
	}
	return nil
}

// CreateTag tags sha with name and message.
func (f *Forge) CreateTag(ctx context.Context, repo, name, sha, message string) error {
	_, err := f.guard.Do(ctx, func() (interface{}, error) {
		_, _, err := f.client.CreateTag(f.owner, repo, gitea.CreateTagOption{
			TagName: name,
			Target:  sha,
			Message: message,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("sourceforge: create tag %s on %s: %w", name, repo, err)
	}
	return nil
}

// Tags lists every tag on repo.
func (f *Forge) Tags(ctx context.Context, repo string) ([]sourceforge.Tag, error) {
	result, err := f.guard.Do(ctx, func() (interface{}, error) {
		tags, _, err := f.client.ListRepoTags(f.owner, repo, gitea.ListRepoTagsOptions{})
		return tags, err
	})
	if err != nil {
		return nil, fmt.Errorf("sourceforge: list tags %s: %w", repo, err)
	}
	raw := result.([]*gitea.Tag)
	out := make([]sourceforge.Tag, 0, len(raw))
	for _, t := range raw {
		commit := ""
		if t.Commit != nil {
			commit = t.Commit.SHA
		}
		out = append(out, sourceforge.Tag{Name: t.Name, Commit: commit})
	}
	return out, nil
}

// Validate checks that the configured credentials can reach the host.
func (f *Forge) Validate(ctx context.Context) error {
	_, err := f.guard.Do(ctx, func() (interface{}, error) {
		_, _, err := f.client.GetMyUserInfo()
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("sourceforge: validate: %w", err)
	}
	return nil
}
