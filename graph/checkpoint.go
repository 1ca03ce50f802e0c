// Package graph provides the core graph execution engine for the workflow engine.
package graph

import "time"

// Checkpoint is a durable snapshot of one workflow's accumulated state,
// taken after a node completes. Resume reconstructs accumulated state and
// the node to dispatch next from the most recent checkpoint under a given
// RunID (the workflow id).
type Checkpoint[S any] struct {
	// RunID is the workflow id this checkpoint belongs to.
	RunID string `json:"run_id"`

	// StepID counts node completions within this run, starting at 1 for the
	// entry node. Monotonically increasing.
	StepID int `json:"step_id"`

	// State is the accumulated state after merging all deltas up to StepID.
	State S `json:"state"`

	// NextNode is the node to dispatch on resume. Empty if the run had
	// already reached a terminal condition when the checkpoint was taken.
	NextNode string `json:"next_node"`

	// Timestamp records when this checkpoint was taken.
	Timestamp time.Time `json:"timestamp"`
}
