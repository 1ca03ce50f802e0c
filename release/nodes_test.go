package release

import (
	"context"
	"testing"

	issuetrackermock "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/issuetracker/mock"
	sourceforgemock "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/sourceforge/mock"
	wikimock "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/wiki/mock"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/emit"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/store"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

func newMockDeps() Deps {
	adapters := Adapters{
		Tracker: issuetrackermock.New(),
		Forge:   sourceforgemock.New(),
		Wiki:    wikimock.New(),
	}
	return Deps{Primary: adapters, Fallback: adapters}
}

func newTestEngine(t *testing.T, deps Deps) *graph.Engine[workflow.ReleaseState] {
	t.Helper()
	engine := graph.New[workflow.ReleaseState](
		workflow.ReduceReleaseState,
		store.NewMemStore[workflow.ReleaseState](),
		emit.NewNullEmitter(),
		graph.WithMaxSteps(100),
	)
	if err := Build(engine, deps); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return engine
}

func TestReleasePipelineRunsToCompletion(t *testing.T) {
	engine := newTestEngine(t, newMockDeps())

	initial := workflow.ReleaseState{
		WorkflowID:   "wf-1",
		Repositories: []string{"svc-a", "svc-b"},
		FixVersion:   "2.0.0",
		SprintName:   "sprint-14",
	}

	outcome, err := engine.Run(context.Background(), "wf-1", initial)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != graph.StatusCompleted {
		t.Fatalf("Status = %v, want %v", outcome.Status, graph.StatusCompleted)
	}

	state := outcome.State
	if !state.WorkflowComplete {
		t.Error("expected WorkflowComplete to be true")
	}
	if state.Error != "" {
		t.Errorf("expected no error, got %q", state.Error)
	}
	if state.ComputedVersion != "v2.0.0" {
		t.Errorf("ComputedVersion = %q, want v2.0.0", state.ComputedVersion)
	}
	if len(state.JiraTickets) == 0 {
		t.Error("expected jira tickets to be collected")
	}
	if len(state.ReleaseBranches) != 2 {
		t.Errorf("ReleaseBranches = %v, want 2 entries", state.ReleaseBranches)
	}
	for _, entry := range state.ReleaseBranches {
		if want := "release/v2.0.0"; !containsSuffix(entry, want) {
			t.Errorf("release branch entry %q does not end with %q", entry, want)
		}
	}
	if len(state.RollbackBranches) != 2 {
		t.Errorf("RollbackBranches = %v, want 2 entries", state.RollbackBranches)
	}
	for _, entry := range state.RollbackBranches {
		if want := "rollback/v-2.0.0"; !containsSuffix(entry, want) {
			t.Errorf("rollback branch entry %q does not end with %q", entry, want)
		}
	}
	if state.ConfluenceURL == "" {
		t.Error("expected a confluence URL from the documentation step")
	}
	if !state.HasCompletedStep("complete") {
		t.Error("expected complete to be recorded in steps_completed")
	}
}

func containsSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
