// Package live is a resty-backed Tracker for a real Jira-compatible REST
// API, guarded by a shared circuit breaker and rate limiter.
package live

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/issuetracker"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/resilience"
)

// Tracker calls a Jira-compatible REST API.
type Tracker struct {
	client *resty.Client
	guard  *resilience.Guard
}

// New constructs a live Tracker against baseURL, authenticating with
// token as a bearer credential.
func New(baseURL, token string, ratePerSecond float64, burst int) *Tracker {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetHeader("Accept", "application/json")
	return &Tracker{client: client, guard: resilience.NewGuard("issuetracker", ratePerSecond, burst)}
}

type searchResponse struct {
	Issues []issueDTO `json:"issues"`
}

type issueDTO struct {
	Key    string `json:"key"`
	Fields struct {
		Summary  string `json:"summary"`
		Status   struct{ Name string } `json:"status"`
		Assignee struct{ DisplayName string } `json:"assignee"`
		IssueType struct{ Name string } `json:"issuetype"`
	} `json:"fields"`
}

func (d issueDTO) toTicket() issuetracker.Ticket {
	return issuetracker.Ticket{
		Key:       d.Key,
		Summary:   d.Fields.Summary,
		Status:    d.Fields.Status.Name,
		Assignee:  d.Fields.Assignee.DisplayName,
		IssueType: d.Fields.IssueType.Name,
	}
}

func (t *Tracker) search(ctx context.Context, jql string, max int) ([]issuetracker.Ticket, error) {
	result, err := t.guard.Do(ctx, func() (interface{}, error) {
		var out searchResponse
		resp, err := t.client.R().
			SetContext(ctx).
			SetQueryParam("jql", jql).
			SetQueryParam("maxResults", fmt.Sprintf("%d", max)).
			SetResult(&out).
			Get("/rest/api/2/search")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("issuetracker: search failed: %s", resp.Status())
		}
		return out.Issues, nil
	})
	if err != nil {
		return nil, err
	}
	issues := result.([]issueDTO)
	tickets := make([]issuetracker.Ticket, 0, len(issues))
	for _, i := range issues {
		tickets = append(tickets, i.toTicket())
	}
	return tickets, nil
}

// TicketsByFixVersion searches for every issue tagged with fixVersion.
func (t *Tracker) TicketsByFixVersion(ctx context.Context, fixVersion string) ([]issuetracker.Ticket, error) {
	return t.search(ctx, fmt.Sprintf(`fixVersion = "%s"`, fixVersion), 200)
}

// Ticket fetches a single issue by key.
func (t *Tracker) Ticket(ctx context.Context, key string) (issuetracker.Ticket, error) {
	result, err := t.guard.Do(ctx, func() (interface{}, error) {
		var out issueDTO
		resp, err := t.client.R().SetContext(ctx).SetResult(&out).Get("/rest/api/2/issue/" + key)
		if err != nil {
			return issuetracker.Ticket{}, err
		}
		if resp.IsError() {
			return issuetracker.Ticket{}, fmt.Errorf("issuetracker: get %s failed: %s", key, resp.Status())
		}
		return out, nil
	})
	if err != nil {
		return issuetracker.Ticket{}, err
	}
	return result.(issueDTO).toTicket(), nil
}

// Search runs an arbitrary JQL query, capped at max results.
func (t *Tracker) Search(ctx context.Context, jql string, max int) ([]issuetracker.Ticket, error) {
	return t.search(ctx, jql, max)
}

// Projects lists the projects visible to the configured credentials.
func (t *Tracker) Projects(ctx context.Context) ([]issuetracker.Project, error) {
	result, err := t.guard.Do(ctx, func() (interface{}, error) {
		var out []issuetracker.Project
		resp, err := t.client.R().SetContext(ctx).SetResult(&out).Get("/rest/api/2/project")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("issuetracker: list projects failed: %s", resp.Status())
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]issuetracker.Project), nil
}

// Validate checks that the configured credentials can reach the API.
func (t *Tracker) Validate(ctx context.Context) error {
	_, err := t.guard.Do(ctx, func() (interface{}, error) {
		resp, err := t.client.R().SetContext(ctx).Get("/rest/api/2/myself")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("issuetracker: validate failed: %s", resp.Status())
		}
		return nil, nil
	})
	return err
}
