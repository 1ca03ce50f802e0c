// Package mock provides a deterministic in-memory Tracker for tests and
// use_mock_apis mode.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/issuetracker"
)

// Tracker is a deterministic stand-in: tickets are synthesized from the
// fix version itself, so the same fix version always yields the same
// tickets without any external state.
type Tracker struct{}

// New constructs a mock Tracker.
func New() *Tracker { return &Tracker{} }

func ticketsFor(fixVersion string) []issuetracker.Ticket {
	clean := strings.TrimPrefix(fixVersion, "v")
	return []issuetracker.Ticket{
		{Key: fmt.Sprintf("PROJ-%s01", clean), Summary: "Fix login redirect loop", Status: "Done", Assignee: "mock-user", IssueType: "Bug"},
		{Key: fmt.Sprintf("PROJ-%s02", clean), Summary: "Add pagination to search results", Status: "Done", Assignee: "mock-user", IssueType: "Story"},
	}
}

// TicketsByFixVersion returns the tickets synthesized for fixVersion.
func (t *Tracker) TicketsByFixVersion(_ context.Context, fixVersion string) ([]issuetracker.Ticket, error) {
	return ticketsFor(fixVersion), nil
}

// Ticket returns a single synthesized ticket by key.
func (t *Tracker) Ticket(_ context.Context, key string) (issuetracker.Ticket, error) {
	return issuetracker.Ticket{Key: key, Summary: "Mock ticket " + key, Status: "Done", Assignee: "mock-user", IssueType: "Task"}, nil
}

// Search returns up to max synthesized tickets matching jql loosely (the
// mock doesn't parse JQL, it just echoes a deterministic, bounded list).
func (t *Tracker) Search(_ context.Context, jql string, max int) ([]issuetracker.Ticket, error) {
	all := ticketsFor(jql)
	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })
	if max > 0 && max < len(all) {
		all = all[:max]
	}
	return all, nil
}

// Projects returns a fixed project list.
func (t *Tracker) Projects(_ context.Context) ([]issuetracker.Project, error) {
	return []issuetracker.Project{{Key: "PROJ", Name: "Mock Project"}}, nil
}

// Validate always succeeds: the mock has no credentials to check.
func (t *Tracker) Validate(_ context.Context) error { return nil }
