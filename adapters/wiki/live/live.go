// Package live is a resty-backed Wiki for a real Confluence-compatible
// REST API, guarded by a shared circuit breaker and rate limiter.
package live

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/resilience"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/wiki"
)

// Confluence calls a real Confluence-compatible REST API.
type Confluence struct {
	client *resty.Client
	guard  *resilience.Guard
}

// New constructs a live Wiki against baseURL, authenticating with token
// as a bearer credential.
func New(baseURL, token string, ratePerSecond float64, burst int) *Confluence {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetHeader("Accept", "application/json")
	return &Confluence{client: client, guard: resilience.NewGuard("wiki", ratePerSecond, burst)}
}

type spaceDTO struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type pageDTO struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Space struct {
		Key string `json:"key"`
	} `json:"space"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Version struct {
		Number int `json:"number"`
	} `json:"version"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

func (d pageDTO) toPage() wiki.Page {
	return wiki.Page{
		ID:      d.ID,
		Space:   d.Space.Key,
		Title:   d.Title,
		Content: d.Body.Storage.Value,
		Version: d.Version.Number,
		URL:     d.Links.WebUI,
	}
}

// Spaces lists every space visible to the configured credentials.
func (c *Confluence) Spaces(ctx context.Context) ([]wiki.Space, error) {
	result, err := c.guard.Do(ctx, func() (interface{}, error) {
		var out struct {
			Results []spaceDTO `json:"results"`
		}
		resp, err := c.client.R().SetContext(ctx).SetResult(&out).Get("/rest/api/space")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("wiki: list spaces failed: %s", resp.Status())
		}
		return out.Results, nil
	})
	if err != nil {
		return nil, err
	}
	raw := result.([]spaceDTO)
	out := make([]wiki.Space, 0, len(raw))
	for _, s := range raw {
		out = append(out, wiki.Space{Key: s.Key, Name: s.Name})
	}
	return out, nil
}

// Page fetches a single page by id.
func (c *Confluence) Page(ctx context.Context, id string) (wiki.Page, error) {
	result, err := c.guard.Do(ctx, func() (interface{}, error) {
		var out pageDTO
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParam("expand", "body.storage,version,space").
			SetResult(&out).
			Get("/rest/api/content/" + id)
		if err != nil {
			return pageDTO{}, err
		}
		if resp.IsError() {
			return pageDTO{}, fmt.Errorf("wiki: get page %s failed: %s", id, resp.Status())
		}
		return out, nil
	})
	if err != nil {
		return wiki.Page{}, err
	}
	return result.(pageDTO).toPage(), nil
}

// CreatePage creates a new page in space, optionally under parentID.
func (c *Confluence) CreatePage(ctx context.Context, space, title, content, parentID string) (wiki.Page, error) {
	result, err := c.guard.Do(ctx, func() (interface{}, error) {
		body := map[string]interface{}{
			"type":  "page",
			"title": title,
			"space": map[string]string{"key": space},
			"body": map[string]interface{}{
				"storage": map[string]string{"value": content, "representation": "storage"},
			},
		}
		if parentID != "" {
			body["ancestors"] = []map[string]string{{"id": parentID}}
		}
		var out pageDTO
		resp, err := c.client.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/rest/api/content")
		if err != nil {
			return pageDTO{}, err
		}
		if resp.IsError() {
			return pageDTO{}, fmt.Errorf("wiki: create page %q failed: %s", title, resp.Status())
		}
		return out, nil
	})
	if err != nil {
		return wiki.Page{}, err
	}
	return result.(pageDTO).toPage(), nil
}

// UpdatePage overwrites an existing page, requiring version to match the
// page's current version for optimistic concurrency.
func (c *Confluence) UpdatePage(ctx context.Context, id, title, content string, version int) (wiki.Page, error) {
	result, err := c.guard.Do(ctx, func() (interface{}, error) {
		body := map[string]interface{}{
			"type":  "page",
			"title": title,
			"body": map[string]interface{}{
				"storage": map[string]string{"value": content, "representation": "storage"},
			},
			"version": map[string]int{"number": version + 1},
		}
		var out pageDTO
		resp, err := c.client.R().SetContext(ctx).SetBody(body).SetResult(&out).Put("/rest/api/content/" + id)
		if err != nil {
			return pageDTO{}, err
		}
		if resp.IsError() {
			return pageDTO{}, fmt.Errorf("wiki: update page %s failed: %s", id, resp.Status())
		}
		return out, nil
	})
	if err != nil {
		return wiki.Page{}, err
	}
	return result.(pageDTO).toPage(), nil
}

// SearchPages finds pages in space, optionally filtered by exact title.
func (c *Confluence) SearchPages(ctx context.Context, space, title string) ([]wiki.Page, error) {
	result, err := c.guard.Do(ctx, func() (interface{}, error) {
		req := c.client.R().SetContext(ctx).SetQueryParam("spaceKey", space).SetQueryParam("expand", "body.storage,version,space")
		if title != "" {
			req = req.SetQueryParam("title", title)
		}
		var out struct {
			Results []pageDTO `json:"results"`
		}
		resp, err := req.SetResult(&out).Get("/rest/api/content")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("wiki: search pages failed: %s", resp.Status())
		}
		return out.Results, nil
	})
	if err != nil {
		return nil, err
	}
	raw := result.([]pageDTO)
	out := make([]wiki.Page, 0, len(raw))
	for _, p := range raw {
		out = append(out, p.toPage())
	}
	return out, nil
}

// DeletePage removes a page.
func (c *Confluence) DeletePage(ctx context.Context, id string) error {
	_, err := c.guard.Do(ctx, func() (interface{}, error) {
		resp, err := c.client.R().SetContext(ctx).Delete("/rest/api/content/" + id)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("wiki: delete page %s failed: %s", id, resp.Status())
		}
		return nil, nil
	})
	return err
}

// CreateDeploymentPage publishes the release-notes page for version.
func (c *Confluence) CreateDeploymentPage(ctx context.Context, space, version string, repos []string) (wiki.Page, error) {
	title := fmt.Sprintf("Release %s", version)
	content := wiki.RenderDeploymentPage(version, repos)
	return c.CreatePage(ctx, space, title, content, "")
}

// Validate checks that the configured credentials can reach the API.
func (c *Confluence) Validate(ctx context.Context) error {
	_, err := c.guard.Do(ctx, func() (interface{}, error) {
		resp, err := c.client.R().SetContext(ctx).Get("/rest/api/space")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("wiki: validate failed: %s", resp.Status())
		}
		return nil, nil
	})
	return err
}
