package release

import (
	"context"
	"fmt"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

// body is a pipeline step's domain logic: given the accumulated state, it
// returns the fields it wants to contribute (Messages need not include
// the step-stamping/progress-recording bookkeeping; runStep adds that)
// or an error if something the step cannot recover from on its own went
// wrong.
type body func(ctx context.Context, state workflow.ReleaseState) (workflow.ReleaseState, error)

// runStep wraps a domain body with the node-body contract every release
// pipeline step must honor: idempotence on resume (check
// steps_completed first), step stamping, progress recording on success,
// and error capture on failure. Per-call adapter resilience (rule 3) is
// the body's own responsibility via withFallback, since only the body
// knows which calls are per-repository and substitutable.
func runStep(id string, do body) graph.NodeFunc[workflow.ReleaseState] {
	return graph.NodeFunc[workflow.ReleaseState](func(ctx context.Context, state workflow.ReleaseState) graph.NodeResult[workflow.ReleaseState] {
		if state.HasCompletedStep(id) {
			return graph.NodeResult[workflow.ReleaseState]{
				Delta: graph.FlatDelta(workflow.ReleaseState{
					Messages: []workflow.Message{workflow.AIMessage(fmt.Sprintf("%s: resumed, skipping", id))},
				}),
				Route: graph.Goto(successor(id)),
			}
		}

		delta, err := do(ctx, state)
		if err != nil {
			return graph.NodeResult[workflow.ReleaseState]{
				Delta: graph.FlatDelta(workflow.ReleaseState{
					CurrentStep: "error",
					Error:       err.Error(),
					ErrorStep:   id,
					CanContinue: true,
					StepsFailed: []string{id},
				}),
				Route: graph.Goto("error_handler"),
			}
		}

		delta.CurrentStep = id
		delta.StepsCompleted = []string{id}
		return graph.NodeResult[workflow.ReleaseState]{
			Delta: graph.FlatDelta(delta),
			Route: graph.Goto(successor(id)),
		}
	})
}

// withFallback runs primary; on error it appends a fallback-noting AI
// message to messages and returns fallback's result instead, so a single
// repository's adapter failure degrades to mock data for that one call
// rather than aborting the whole node (rule 3: continue-on-partial-
// failure).
func withFallback[T any](label, subject string, messages *[]workflow.Message, primary func() (T, error), fallback func() T) T {
	v, err := primary()
	if err == nil {
		return v
	}
	*messages = append(*messages, workflow.AIMessage(fmt.Sprintf("%s for %s unavailable (%v); using mock data", label, subject, err)))
	return fallback()
}
