// Package wiki defines the documentation capability the release
// pipeline's documentation step depends on.
package wiki

import "context"

// Space is a wiki space/area record.
type Space struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Page is a single wiki page.
type Page struct {
	ID      string `json:"id"`
	Space   string `json:"space"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Version int    `json:"version"`
	URL     string `json:"url"`
}

// Wiki is the documentation capability contract. Implementations: mock
// (deterministic, in-memory) for tests and use_mock_apis mode, live
// (resty-backed) for a real Confluence-compatible REST API.
type Wiki interface {
	Spaces(ctx context.Context) ([]Space, error)
	Page(ctx context.Context, id string) (Page, error)
	CreatePage(ctx context.Context, space, title, content, parentID string) (Page, error)
	UpdatePage(ctx context.Context, id, title, content string, version int) (Page, error)
	SearchPages(ctx context.Context, space, title string) ([]Page, error)
	DeletePage(ctx context.Context, id string) error
	// CreateDeploymentPage builds and publishes the release-notes page
	// for a version, listing the repositories included in that release.
	CreateDeploymentPage(ctx context.Context, space, version string, repos []string) (Page, error)
	Validate(ctx context.Context) error
}

// RenderDeploymentPage builds the page body CreateDeploymentPage
// publishes, shared by every Wiki implementation so the rendered content
// doesn't drift between mock and live.
func RenderDeploymentPage(version string, repos []string) string {
	body := "Release " + version + "\n\nRepositories:\n"
	for _, r := range repos {
		body += "- " + r + "\n"
	}
	return body
}
