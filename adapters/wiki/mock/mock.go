// Package mock provides a deterministic in-memory Wiki for tests and
// use_mock_apis mode.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/wiki"
)

// Confluence is a deterministic stand-in documentation space.
type Confluence struct {
	mu    sync.Mutex
	pages map[string]wiki.Page
	seq   int
}

// New constructs a mock Wiki.
func New() *Confluence {
	return &Confluence{pages: make(map[string]wiki.Page)}
}

// Spaces returns a fixed space list.
func (c *Confluence) Spaces(_ context.Context) ([]wiki.Space, error) {
	return []wiki.Space{{Key: "REL", Name: "Release Documentation"}}, nil
}

// Page returns a page by id.
func (c *Confluence) Page(_ context.Context, id string) (wiki.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[id]
	if !ok {
		return wiki.Page{}, fmt.Errorf("wiki: page %s not found", id)
	}
	return p, nil
}

// CreatePage stores a new page with a deterministic, incrementing id.
func (c *Confluence) CreatePage(_ context.Context, space, title, content, _ string) (wiki.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	id := fmt.Sprintf("mock-page-%d", c.seq)
	p := wiki.Page{
		ID:      id,
		Space:   space,
		Title:   title,
		Content: content,
		Version: 1,
		URL:     fmt.Sprintf("https://mock.wiki.local/%s/%s", space, id),
	}
	c.pages[id] = p
	return p, nil
}

// UpdatePage overwrites an existing page and bumps its version.
func (c *Confluence) UpdatePage(_ context.Context, id, title, content string, version int) (wiki.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[id]
	if !ok {
		return wiki.Page{}, fmt.Errorf("wiki: page %s not found", id)
	}
	if version != 0 && version != p.Version {
		return wiki.Page{}, fmt.Errorf("wiki: version conflict on page %s: have %d, want %d", id, p.Version, version)
	}
	p.Title = title
	p.Content = content
	p.Version++
	c.pages[id] = p
	return p, nil
}

// SearchPages returns every stored page matching space and, if non-empty,
// title exactly.
func (c *Confluence) SearchPages(_ context.Context, space, title string) ([]wiki.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []wiki.Page
	for _, p := range c.pages {
		if p.Space != space {
			continue
		}
		if title != "" && p.Title != title {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// DeletePage removes a page.
func (c *Confluence) DeletePage(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pages, id)
	return nil
}

// CreateDeploymentPage publishes the release-notes page for version.
func (c *Confluence) CreateDeploymentPage(ctx context.Context, space, version string, repos []string) (wiki.Page, error) {
	title := fmt.Sprintf("Release %s", version)
	content := wiki.RenderDeploymentPage(version, repos)
	return c.CreatePage(ctx, space, title, content, "")
}

// Validate always succeeds.
func (c *Confluence) Validate(_ context.Context) error { return nil }
