package graph

// Reducer is a function that merges partial state updates (delta) into accumulated state (prev).
//
// Reducers are the core of the engine's deterministic state management.
// They define how state evolves as nodes produce Delta values in NodeResult.
//
// Key properties of reducers:
//   - Deterministic: Same (prev, delta) always produces same result
//   - Associative: Applying deltas in sequence produces consistent state
//   - Idempotent-friendly: Replaying same deltas should be safe
//
// A reducer only ever sees one flat delta at a time. Channel-shaped partials
// (see Partial) are merged by applying the reducer once per channel, in
// sorted channel-name order; the reducer itself does not need to know
// whether a given call originated from a flat or channel-shaped NodeResult.
//
// Example:
//
//	func reduce(prev, delta MyState) MyState {
//	    if delta.Query != "" {
//	        prev.Query = delta.Query
//	    }
//	    prev.Steps += delta.Steps // accumulate
//	    return prev
//	}
//
// Type parameter S is the state type shared across the workflow.
type Reducer[S any] func(prev S, delta S) S

// Terminable lets the engine evaluate workflow termination without depending
// on any particular state shape. A state type that wants the engine to stop
// the run on conditions other than an explicit Stop() route implements this
// interface; state types that don't implement it rely solely on node-level
// routing to reach a terminal sentinel.
//
// The engine checks these in the priority order fixed by the runtime: a
// completed workflow outranks a failed one, which outranks the idle-
// conversation heuristic.
type Terminable interface {
	// Complete reports whether the workflow has explicitly finished
	// (e.g. a release state's workflow_complete flag).
	Complete() bool

	// Failed reports whether the workflow is in an unrecoverable error state
	// (error is set and the workflow is not paused).
	Failed() bool

	// IdleConversation is the fallback heuristic for channel-shaped graphs:
	// the last message across all channels is a non-tool-calling AI
	// message. State types should prefer setting an explicit completion
	// signal and only fall back to this heuristic when none was set.
	IdleConversation() bool
}
