// Package graph provides the core graph execution engine for the workflow engine.
package graph

import "errors"

// ErrMaxStepsExceeded indicates that the graph execution reached the maximum
// allowed step count without completing. This prevents infinite loops and
// runaway executions (a routing table with a cycle and no exit edge).
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrNotRunning reports that no checkpointed run exists for a thread id.
// Engine.Resume takes its starting state from the caller and does not
// return this error.
var ErrNotRunning = errors.New("no checkpointed run for this thread id")

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate for a malformed policy.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")
