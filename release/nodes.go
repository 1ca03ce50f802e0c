package release

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/issuetracker"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/sourceforge"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/wiki"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

// Adapters groups the three capability sets every pipeline step may call.
type Adapters struct {
	Tracker issuetracker.Tracker
	Forge   sourceforge.SourceForge
	Wiki    wiki.Wiki
}

// Deps supplies a pipeline its primary adapters (live or mock, per
// configuration) plus an always-mock Fallback set, used whenever a
// primary call fails (rule 3: continue on partial failure).
type Deps struct {
	Primary  Adapters
	Fallback Adapters
}

// Build registers every release pipeline node and edge-free routing (each
// node returns an explicit Route) onto engine and sets its start node.
func Build(engine *graph.Engine[workflow.ReleaseState], deps Deps) error {
	nodes := map[string]graph.Node[workflow.ReleaseState]{
		"start":                startNode(),
		"jira_collection":      jiraCollectionNode(deps),
		"branch_discovery":     branchDiscoveryNode(deps),
		"merge_validation":     mergeValidationNode(deps),
		"sprint_merging":       sprintMergingNode(deps),
		"release_creation":     releaseCreationNode(deps),
		"pr_generation":        prGenerationNode(deps),
		"release_tagging":      releaseTaggingNode(deps),
		"rollback_preparation": rollbackPreparationNode(deps),
		"documentation":        documentationNode(deps),
		"error_handler":        errorHandlerNode(),
		"complete":             completeNode(),
	}
	for id, n := range nodes {
		if err := engine.Add(id, n); err != nil {
			return err
		}
	}
	return engine.StartAt("start")
}

func startNode() graph.NodeFunc[workflow.ReleaseState] {
	return runStep("start", func(_ context.Context, state workflow.ReleaseState) (workflow.ReleaseState, error) {
		delta := workflow.ReleaseState{}
		if state.Error != "" {
			delta.CurrentStep = "error_handler"
		}
		return delta, nil
	})
}

func jiraCollectionNode(deps Deps) graph.NodeFunc[workflow.ReleaseState] {
	return runStep("jira_collection", func(ctx context.Context, state workflow.ReleaseState) (workflow.ReleaseState, error) {
		var messages []workflow.Message
		tickets := withFallback("issue tracker lookup", state.FixVersion, &messages,
			func() ([]issuetracker.Ticket, error) { return deps.Primary.Tracker.TicketsByFixVersion(ctx, state.FixVersion) },
			func() []issuetracker.Ticket {
				t, _ := deps.Fallback.Tracker.TicketsByFixVersion(ctx, state.FixVersion)
				return t
			},
		)

		summaries := make([]workflow.TicketSummary, 0, len(tickets))
		for _, t := range tickets {
			summaries = append(summaries, workflow.TicketSummary{Key: t.Key, Summary: t.Summary, Status: t.Status})
		}
		messages = append(messages, workflow.AIMessage(fmt.Sprintf("Collected %d ticket(s) for %s", len(summaries), state.FixVersion)))
		return workflow.ReleaseState{JiraTickets: summaries, Messages: messages}, nil
	})
}

func branchDiscoveryNode(deps Deps) graph.NodeFunc[workflow.ReleaseState] {
	return runStep("branch_discovery", func(ctx context.Context, state workflow.ReleaseState) (workflow.ReleaseState, error) {
		ticketIDs := make([]string, 0, len(state.JiraTickets))
		for _, t := range state.JiraTickets {
			ticketIDs = append(ticketIDs, t.Key)
		}

		type outcome struct {
			found   map[string]string
			missing []string
		}

		var messages []workflow.Message
		results := make([]workflow.RepoFeatureBranches, 0, len(state.Repositories))
		for _, repo := range state.Repositories {
			o := withFallback("branch discovery", repo, &messages,
				func() (outcome, error) {
					found, missing, err := deps.Primary.Forge.FindFeatureBranches(ctx, repo, ticketIDs)
					return outcome{found, missing}, err
				},
				func() outcome {
					found, missing, _ := deps.Fallback.Forge.FindFeatureBranches(ctx, repo, ticketIDs)
					return outcome{found, missing}
				},
			)
			results = append(results, workflow.RepoFeatureBranches{Repository: repo, Found: o.found, Missing: o.missing})
		}
		return workflow.ReleaseState{FeatureBranches: results, Messages: messages}, nil
	})
}

func mergeValidationNode(deps Deps) graph.NodeFunc[workflow.ReleaseState] {
	return runStep("merge_validation", func(ctx context.Context, state workflow.ReleaseState) (workflow.ReleaseState, error) {
		var messages []workflow.Message
		var checks []workflow.MergeCheck

		for _, rfb := range state.FeatureBranches {
			keys := make([]string, 0, len(rfb.Found))
			for k := range rfb.Found {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			for _, k := range keys {
				branch := rfb.Found[k]
				merged := withFallback("merge status check", rfb.Repository+"/"+branch, &messages,
					func() (bool, error) {
						status, err := deps.Primary.Forge.CheckMergeStatus(ctx, rfb.Repository, branch, state.SprintName)
						return status.Merged, err
					},
					func() bool {
						status, _ := deps.Fallback.Forge.CheckMergeStatus(ctx, rfb.Repository, branch, state.SprintName)
						return status.Merged
					},
				)
				checks = append(checks, workflow.MergeCheck{Repository: rfb.Repository, Branch: branch, Merged: merged})
			}
		}
		return workflow.ReleaseState{MergeStatus: checks, Messages: messages}, nil
	})
}

func sprintMergingNode(deps Deps) graph.NodeFunc[workflow.ReleaseState] {
	return runStep("sprint_merging", func(ctx context.Context, state workflow.ReleaseState) (workflow.ReleaseState, error) {
		type outcome struct {
			pr     sourceforge.PullRequest
			status string
		}

		var messages []workflow.Message
		var prs []workflow.PullRequest
		for _, repo := range state.Repositories {
			o := withFallback("sprint merge", repo, &messages,
				func() (outcome, error) {
					pr, err := deps.Primary.Forge.CreatePR(ctx, repo, fmt.Sprintf("Merge %s into develop", state.SprintName), "Automated sprint merge", state.SprintName, "develop")
					if err != nil {
						return outcome{}, err
					}
					status := "merged"
					if mergeErr := deps.Primary.Forge.MergeBranches(ctx, repo, state.SprintName, "develop"); mergeErr != nil {
						status = "conflict"
					}
					return outcome{pr: pr, status: status}, nil
				},
				func() outcome {
					pr, _ := deps.Fallback.Forge.CreatePR(ctx, repo, fmt.Sprintf("Merge %s into develop", state.SprintName), "Automated sprint merge", state.SprintName, "develop")
					_ = deps.Fallback.Forge.MergeBranches(ctx, repo, state.SprintName, "develop")
					return outcome{pr: pr, status: "merged"}
				},
			)
			prs = append(prs, workflow.PullRequest{
				Repository: repo,
				Number:     o.pr.Number,
				URL:        o.pr.URL,
				Head:       state.SprintName,
				Base:       "develop",
				Status:     o.status,
			})
		}
		return workflow.ReleaseState{PullRequests: prs, Messages: messages}, nil
	})
}

func releaseCreationNode(deps Deps) graph.NodeFunc[workflow.ReleaseState] {
	return runStep("release_creation", func(ctx context.Context, state workflow.ReleaseState) (workflow.ReleaseState, error) {
		var messages []workflow.Message
		var allTags []string
		for _, repo := range state.Repositories {
			tags := withFallback("tag listing", repo, &messages,
				func() ([]sourceforge.Tag, error) { return deps.Primary.Forge.Tags(ctx, repo) },
				func() []sourceforge.Tag {
					t, _ := deps.Fallback.Forge.Tags(ctx, repo)
					return t
				},
			)
			for _, t := range tags {
				allTags = append(allTags, t.Name)
			}
		}
		version := computeVersion(state.FixVersion, allTags)
		name := releaseBranchName(version)

		branches := make([]string, 0, len(state.Repositories))
		for _, repo := range state.Repositories {
			existing := withFallback("branch listing", repo, &messages,
				func() ([]sourceforge.Branch, error) { return deps.Primary.Forge.Branches(ctx, repo) },
				func() []sourceforge.Branch {
					b, _ := deps.Fallback.Forge.Branches(ctx, repo)
					return b
				},
			)
			exists := false
			for _, b := range existing {
				if b.Name == name {
					exists = true
					break
				}
			}
			if !exists {
				withFallback("release branch creation", repo, &messages,
					func() (struct{}, error) { return struct{}{}, deps.Primary.Forge.CreateBranch(ctx, repo, name, "develop") },
					func() struct{} {
						_ = deps.Fallback.Forge.CreateBranch(ctx, repo, name, "develop")
						return struct{}{}
					},
				)
			}
			branches = append(branches, fmt.Sprintf("%s:%s", repo, name))
		}
		return workflow.ReleaseState{ReleaseBranches: branches, ComputedVersion: version, Messages: messages}, nil
	})
}

func prGenerationNode(deps Deps) graph.NodeFunc[workflow.ReleaseState] {
	return runStep("pr_generation", func(ctx context.Context, state workflow.ReleaseState) (workflow.ReleaseState, error) {
		var messages []workflow.Message
		prs := make([]workflow.PullRequest, 0, len(state.ReleaseBranches))
		for _, entry := range state.ReleaseBranches {
			repo, branch, ok := strings.Cut(entry, ":")
			if !ok {
				continue
			}
			pr := withFallback("release PR creation", repo, &messages,
				func() (sourceforge.PullRequest, error) {
					return deps.Primary.Forge.CreatePR(ctx, repo, fmt.Sprintf("Release %s", state.ComputedVersion), "Automated release PR", branch, "master")
				},
				func() sourceforge.PullRequest {
					pr, _ := deps.Fallback.Forge.CreatePR(ctx, repo, fmt.Sprintf("Release %s", state.ComputedVersion), "Automated release PR", branch, "master")
					return pr
				},
			)
			prs = append(prs, workflow.PullRequest{
				Repository: repo, Number: pr.Number, URL: pr.URL, Head: branch, Base: "master", Status: "open",
			})
		}
		return workflow.ReleaseState{PullRequests: prs, Messages: messages}, nil
	})
}

func releaseTaggingNode(deps Deps) graph.NodeFunc[workflow.ReleaseState] {
	return runStep("release_tagging", func(ctx context.Context, state workflow.ReleaseState) (workflow.ReleaseState, error) {
		message := tagMessage(state)

		var messages []workflow.Message
		for _, entry := range state.ReleaseBranches {
			repo, branch, ok := strings.Cut(entry, ":")
			if !ok {
				continue
			}
			sha := branch
			if branches, err := deps.Primary.Forge.Branches(ctx, repo); err == nil {
				for _, b := range branches {
					if b.Name == branch {
						sha = b.Commit
						break
					}
				}
			}
			withFallback("release tag creation", repo, &messages,
				func() (struct{}, error) {
					return struct{}{}, deps.Primary.Forge.CreateTag(ctx, repo, state.ComputedVersion, sha, message)
				},
				func() struct{} {
					_ = deps.Fallback.Forge.CreateTag(ctx, repo, state.ComputedVersion, sha, message)
					return struct{}{}
				},
			)
		}
		return workflow.ReleaseState{Messages: messages}, nil
	})
}

// tagMessage is the fixed template release_tagging uses, listing every
// ticket included in the release.
func tagMessage(state workflow.ReleaseState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Release %s\n\nIncluded tickets:\n", state.ComputedVersion)
	for _, t := range state.JiraTickets {
		fmt.Fprintf(&b, "- %s: %s\n", t.Key, t.Summary)
	}
	return b.String()
}

func rollbackPreparationNode(deps Deps) graph.NodeFunc[workflow.ReleaseState] {
	return runStep("rollback_preparation", func(ctx context.Context, state workflow.ReleaseState) (workflow.ReleaseState, error) {
		name := rollbackBranchName(state.ComputedVersion)

		var messages []workflow.Message
		branches := make([]string, 0, len(state.Repositories))
		for _, repo := range state.Repositories {
			withFallback("rollback branch creation", repo, &messages,
				func() (struct{}, error) { return struct{}{}, deps.Primary.Forge.CreateBranch(ctx, repo, name, "master") },
				func() struct{} {
					_ = deps.Fallback.Forge.CreateBranch(ctx, repo, name, "master")
					return struct{}{}
				},
			)
			branches = append(branches, fmt.Sprintf("%s:%s", repo, name))
		}
		return workflow.ReleaseState{RollbackBranches: branches, Messages: messages}, nil
	})
}

func documentationNode(deps Deps) graph.NodeFunc[workflow.ReleaseState] {
	return runStep("documentation", func(ctx context.Context, state workflow.ReleaseState) (workflow.ReleaseState, error) {
		title := fmt.Sprintf("Release %s Deployment", state.ComputedVersion)
		content := renderDeploymentDoc(state)

		var messages []workflow.Message
		page := withFallback("wiki publish", title, &messages,
			func() (wiki.Page, error) { return publishDoc(ctx, deps.Primary.Wiki, title, content) },
			func() wiki.Page {
				p, _ := publishDoc(ctx, deps.Fallback.Wiki, title, content)
				return p
			},
		)
		return workflow.ReleaseState{ConfluenceURL: page.URL, Messages: messages}, nil
	})
}

// publishDoc prefers updating an existing page titled title over
// creating a duplicate.
func publishDoc(ctx context.Context, w wiki.Wiki, title, content string) (wiki.Page, error) {
	existing, err := w.SearchPages(ctx, "REL", title)
	if err == nil && len(existing) > 0 {
		return w.UpdatePage(ctx, existing[0].ID, title, content, existing[0].Version)
	}
	return w.CreatePage(ctx, "REL", title, content, "")
}

// renderDeploymentDoc builds the deterministic HTML release notes page:
// release info, ticket table, per-repo deployment and rollback sections,
// a fixed checklist, and an emergency-contacts placeholder.
func renderDeploymentDoc(state workflow.ReleaseState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Release %s</h1>\n", state.ComputedVersion)
	fmt.Fprintf(&b, "<p>Sprint: %s</p>\n", state.SprintName)

	b.WriteString("<h2>Tickets</h2>\n<table><tr><th>Key</th><th>Summary</th><th>Status</th></tr>\n")
	for _, t := range state.JiraTickets {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>\n", t.Key, t.Summary, t.Status)
	}
	b.WriteString("</table>\n")

	b.WriteString("<h2>Deployment</h2>\n<ul>\n")
	for _, entry := range state.ReleaseBranches {
		fmt.Fprintf(&b, "<li>%s</li>\n", entry)
	}
	b.WriteString("</ul>\n")

	b.WriteString("<h2>Rollback</h2>\n<ul>\n")
	for _, entry := range state.RollbackBranches {
		fmt.Fprintf(&b, "<li>%s</li>\n", entry)
	}
	b.WriteString("</ul>\n")

	b.WriteString("<h2>Checklist</h2>\n<ol>\n")
	for _, item := range deploymentChecklist {
		fmt.Fprintf(&b, "<li>%s</li>\n", item)
	}
	b.WriteString("</ol>\n")

	b.WriteString("<h2>Emergency Contacts</h2>\n<p>TBD</p>\n")
	return b.String()
}

var deploymentChecklist = []string{
	"Verify all release branches pass CI",
	"Confirm database migrations are backward compatible",
	"Notify on-call before deployment window",
	"Monitor error rates for 30 minutes post-deploy",
	"Confirm rollback branches are tagged and pushed",
}

// errorHandlerNode implements the release pipeline's recovery policy: the
// first three entries clear the error and reroute back to the step that
// failed; the fourth entry gives up and marks the run fatally complete.
func errorHandlerNode() graph.NodeFunc[workflow.ReleaseState] {
	return graph.NodeFunc[workflow.ReleaseState](func(_ context.Context, state workflow.ReleaseState) graph.NodeResult[workflow.ReleaseState] {
		attempt := state.RetryCount + 1

		if attempt <= 3 {
			target := state.ErrorStep
			if target == "" {
				target = "start"
			}
			return graph.NodeResult[workflow.ReleaseState]{
				Delta: graph.FlatDelta(workflow.ReleaseState{
					CurrentStep: "error_handler",
					Error:       "",
					CanContinue: true,
					RetryCount:  attempt,
					Messages:    []workflow.Message{workflow.AIMessage(fmt.Sprintf("Recovering from error in %s (attempt %d/3)", target, attempt))},
				}),
				Route: graph.Goto(target),
			}
		}

		return graph.NodeResult[workflow.ReleaseState]{
			Delta: graph.FlatDelta(workflow.ReleaseState{
				CurrentStep:      "error_handler",
				Error:            state.Error,
				CanContinue:      false,
				WorkflowComplete: true,
				Messages:         []workflow.Message{workflow.AIMessage("Giving up after repeated failures in " + state.ErrorStep)},
			}),
			Route: graph.Stop(),
		}
	})
}

func completeNode() graph.NodeFunc[workflow.ReleaseState] {
	return graph.NodeFunc[workflow.ReleaseState](func(_ context.Context, state workflow.ReleaseState) graph.NodeResult[workflow.ReleaseState] {
		summary := fmt.Sprintf(
			"Release %s complete: %d repositories, %d tickets, %d release branches, %d rollback branches.",
			state.ComputedVersion, len(state.Repositories), len(state.JiraTickets), len(state.ReleaseBranches), len(state.RollbackBranches),
		)
		return graph.NodeResult[workflow.ReleaseState]{
			Delta: graph.FlatDelta(workflow.ReleaseState{
				CurrentStep:      "complete",
				WorkflowComplete: true,
				StepsCompleted:   []string{"complete"},
				Messages:         []workflow.Message{workflow.AIMessage(summary)},
			}),
			Route: graph.Stop(),
		}
	})
}
