package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/emit"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/store"
)

// contextKey is a private type used for context value keys to avoid collisions
// with keys from other packages.
type contextKey string

// Context keys for propagating execution metadata to nodes.
const (
	// RunIDKey is the context key for the unique workflow run identifier.
	RunIDKey contextKey = "workflow.run_id"

	// StepIDKey is the context key for the current execution step number.
	StepIDKey contextKey = "workflow.step_id"

	// NodeIDKey is the context key for the current node identifier.
	NodeIDKey contextKey = "workflow.node_id"
)

// Engine orchestrates stateful workflow execution.
//
// The Engine is the runtime that:
//   - Manages workflow graph topology (nodes and edges)
//   - Executes nodes sequentially, one workflow at a time
//   - Merges state updates via the reducer, honoring the flat/channel
//     discriminator carried on each NodeResult's Delta (see Partial)
//   - Persists state at each step via the store
//   - Emits observability events via the emitter
//   - Enforces execution limits (MaxSteps) and per-node timeouts
//   - Evaluates the termination conditions a Terminable state exposes
//
// Type parameter S is the state type shared across one workflow kind. A
// single process typically holds one Engine[ReleaseState] and one
// Engine[QAState].
type Engine[S any] struct {
	mu sync.RWMutex

	reducer Reducer[S]

	nodes map[string]Node[S]
	edges []Edge[S]

	startNode string

	store   store.Store[S]
	emitter emit.Emitter

	metrics *PrometheusMetrics

	opts Options
}

// Options configures Engine execution behavior. Zero values are valid.
type Options struct {
	// MaxSteps limits workflow execution to prevent infinite loops. If 0, no
	// limit is enforced.
	MaxSteps int

	// DefaultNodeTimeout bounds node execution time when a node doesn't
	// declare its own NodePolicy.Timeout. If 0, nodes run unbounded.
	DefaultNodeTimeout time.Duration

	// Metrics, if set, records per-step latency and retry counts.
	Metrics *PrometheusMetrics
}

// Status is the terminal (or running) classification of a workflow run,
// reused by workflow.Manager to set WorkflowMetadata.Status.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusInterrupted is returned when the run context was cancelled
	// cooperatively (pause or cancel); the caller (workflow.Manager) knows
	// which of the two it requested and sets metadata accordingly.
	StatusInterrupted Status = "interrupted"
)

// RunOutcome is what one Run/Resume call returns: the accumulated state at
// the point execution stopped, the node that would run next (meaningful
// only when Status == StatusInterrupted, so Resume knows where to pick up),
// and the terminal classification.
type RunOutcome[S any] struct {
	State    S
	NextNode string
	Status   Status
}

// New constructs an Engine with the given reducer, store, and emitter.
// Accepts either an Options value or functional Option values, mirroring the
// teacher engine's configuration style.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, options ...interface{}) *Engine[S] {
	cfg := &engineConfig{opts: Options{}}

	for _, opt := range options {
		switch v := opt.(type) {
		case Options:
			cfg.opts = v
		case Option:
			_ = v(cfg)
		}
	}

	return &Engine[S]{
		reducer: reducer,
		nodes:   make(map[string]Node[S]),
		edges:   make([]Edge[S], 0),
		store:   st,
		emitter: emitter,
		metrics: cfg.opts.Metrics,
		opts:    cfg.opts,
	}
}

// Add registers a node in the workflow graph. Node IDs must be unique.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if e == nil {
		return &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}

	e.nodes[nodeID] = node
	return nil
}

// StartAt sets the entry point for workflow execution.
func (e *Engine[S]) StartAt(nodeID string) error {
	if e == nil {
		return &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}

	e.startNode = nodeID
	return nil
}

// Connect creates an edge between two nodes. A nil predicate is
// unconditional. Explicit routing via NodeResult.Route always takes
// precedence over edge-based routing.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if e == nil {
		return &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// Run executes the workflow from its start node with the given initial
// state. It implements the astream algorithm: accumulate state, merge each
// node's Delta, evaluate termination, then dispatch the next node.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (RunOutcome[S], error) {
	if err := e.validate(); err != nil {
		return RunOutcome[S]{}, err
	}
	return e.runLoop(ctx, runID, e.startNode, initial, 0)
}

// Resume continues execution at fromNode with a state reconstructed from the
// last checkpoint (see workflow.Manager). stepOffset carries the step
// counter forward so MaxSteps still bounds the whole run, not just the
// resumed tail.
func (e *Engine[S]) Resume(ctx context.Context, runID string, fromNode string, state S, stepOffset int) (RunOutcome[S], error) {
	if err := e.validate(); err != nil {
		return RunOutcome[S]{}, err
	}
	if fromNode == "" {
		fromNode = e.startNode
	}
	return e.runLoop(ctx, runID, fromNode, state, stepOffset)
}

func (e *Engine[S]) validate() error {
	if e == nil {
		return &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}
	if e.startNode == "" {
		return &EngineError{Message: "start node not set (call StartAt before Run)", Code: "NO_START_NODE"}
	}
	return nil
}

func (e *Engine[S]) runLoop(ctx context.Context, runID string, currentNode string, currentState S, stepOffset int) (RunOutcome[S], error) {
	step := stepOffset

	for {
		step++

		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return RunOutcome[S]{}, ErrMaxStepsExceeded
		}

		select {
		case <-ctx.Done():
			return RunOutcome[S]{State: currentState, NextNode: currentNode, Status: StatusInterrupted}, nil
		default:
		}

		e.mu.RLock()
		nodeImpl, exists := e.nodes[currentNode]
		e.mu.RUnlock()
		if !exists {
			return RunOutcome[S]{}, &EngineError{Message: "node not found during execution: " + currentNode, Code: "NODE_NOT_FOUND"}
		}

		nodeCtx := context.WithValue(ctx, RunIDKey, runID)
		nodeCtx = context.WithValue(nodeCtx, StepIDKey, step)
		nodeCtx = context.WithValue(nodeCtx, NodeIDKey, currentNode)

		e.emitNodeStart(runID, currentNode, step)

		start := time.Now()
		result, err := e.runNodeWithPolicy(nodeCtx, nodeImpl, runID, currentNode, currentState)
		latency := time.Since(start)

		if e.metrics != nil {
			status := "success"
			if err != nil || result.Err != nil {
				status = "error"
			}
			e.metrics.RecordStepLatency(runID, currentNode, latency, status)
		}

		if err != nil {
			e.emitError(runID, currentNode, step, err)
			return RunOutcome[S]{}, err
		}
		if result.Err != nil {
			e.emitError(runID, currentNode, step, result.Err)
			return RunOutcome[S]{}, result.Err
		}

		currentState = e.merge(currentState, result.Delta)

		if err := e.store.SaveStep(ctx, runID, step, currentNode, currentState); err != nil {
			return RunOutcome[S]{}, &EngineError{Message: "failed to save step: " + err.Error(), Code: "STORE_ERROR"}
		}

		e.emitNodeEnd(runID, currentNode, step, result.Delta, currentState)

		if status, done := e.checkTerminable(currentState); done {
			e.emitRoutingDecision(runID, currentNode, step, map[string]interface{}{"terminal": true, "reason": string(status)})
			return RunOutcome[S]{State: currentState, Status: status}, nil
		}

		if result.Route.Terminal {
			e.emitRoutingDecision(runID, currentNode, step, map[string]interface{}{"terminal": true})
			return RunOutcome[S]{State: currentState, Status: StatusCompleted}, nil
		}

		if len(result.Route.Many) > 0 {
			e.emitRoutingDecision(runID, currentNode, step, map[string]interface{}{"parallel": true, "branches": result.Route.Many})
			finalState, err := e.runBranches(ctx, runID, result.Route.Many, currentState, step)
			if err != nil {
				return RunOutcome[S]{}, err
			}
			return RunOutcome[S]{State: finalState, Status: StatusCompleted}, nil
		}

		if result.Route.To != "" {
			e.emitRoutingDecision(runID, currentNode, step, map[string]interface{}{"next_node": result.Route.To})
			currentNode = result.Route.To
			continue
		}

		nextNode := e.evaluateEdges(currentNode, currentState)
		if nextNode == "" {
			return RunOutcome[S]{}, &EngineError{Message: "no valid route from node: " + currentNode, Code: "NO_ROUTE"}
		}

		e.emitRoutingDecision(runID, currentNode, step, map[string]interface{}{"next_node": nextNode, "via_edge": true})
		currentNode = nextNode
	}
}

// checkTerminable evaluates the state-based termination conditions, in
// priority order (complete, then failed, then idle-conversation), for
// states that implement Terminable. States that don't implement it rely
// solely on routing (Route.Terminal / edges) to end the run.
func (e *Engine[S]) checkTerminable(state S) (Status, bool) {
	tc, ok := any(state).(Terminable)
	if !ok {
		return "", false
	}
	switch {
	case tc.Complete():
		return StatusCompleted, true
	case tc.Failed():
		return StatusFailed, true
	case tc.IdleConversation():
		return StatusCompleted, true
	}
	return "", false
}

// runNodeWithPolicy executes a node honoring its optional NodePolicy
// (timeout, retry) if the node implements `Policy() NodePolicy`.
func (e *Engine[S]) runNodeWithPolicy(ctx context.Context, node Node[S], runID, nodeID string, state S) (NodeResult[S], error) {
	var policy *NodePolicy
	if provider, ok := node.(interface{ Policy() NodePolicy }); ok {
		p := provider.Policy()
		policy = &p
	}

	defaultTimeout := e.opts.DefaultNodeTimeout
	result, timeoutErr := executeNodeWithTimeout(ctx, node, nodeID, state, policy, defaultTimeout)
	if timeoutErr == nil {
		return result, nil
	}

	if policy == nil || policy.RetryPolicy == nil {
		return result, timeoutErr
	}

	retry := policy.RetryPolicy
	lastErr := timeoutErr
	for attempt := 1; attempt < retry.MaxAttempts; attempt++ {
		if retry.Retryable == nil || !retry.Retryable(lastErr) {
			break
		}
		if e.metrics != nil {
			e.metrics.IncrementRetries(runID, nodeID, "timeout")
		}
		delay := computeBackoff(attempt-1, retry.BaseDelay, retry.MaxDelay, nil)
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
		result, lastErr = executeNodeWithTimeout(ctx, node, nodeID, state, policy, defaultTimeout)
		if lastErr == nil {
			return result, nil
		}
	}
	return result, lastErr
}

// merge applies result.Delta to accumulated per the explicit flat/channel
// discriminator. Channel-shaped deltas are merged one channel at a time,
// in sorted key order, so a node touching several channels in one
// NodeResult still merges deterministically.
func (e *Engine[S]) merge(accumulated S, partial Partial[S]) S {
	if partial.Channels == nil {
		return e.reducer(accumulated, partial.Flat)
	}

	keys := make([]string, 0, len(partial.Channels))
	for k := range partial.Channels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		accumulated = e.reducer(accumulated, partial.Channels[k])
	}
	return accumulated
}

// runBranches executes a fan-out one branch after another, in the order the
// branches are listed, feeding each branch the state the previous one ended
// with. The release and QA graphs never return Route.Many, but the primitive
// is kept for node bodies that want to dispatch a short sub-graph and rejoin.
func (e *Engine[S]) runBranches(ctx context.Context, runID string, branches []string, state S, step int) (S, error) {
	current := state
	for _, branch := range branches {
		outcome, err := e.runLoop(ctx, runID, branch, current, step)
		if err != nil {
			return current, err
		}
		current = outcome.State
	}
	return current, nil
}

// evaluateEdges returns the first matching edge's target from fromNode, in
// registration order. An edge with a nil predicate always matches.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}

func (e *Engine[S]) emitNodeStart(runID, nodeID string, step int) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "node_start"})
}

// emitNodeEnd reports a node's completion. The full accumulated state is
// attached under Meta["state"] (boxed as S via the interface{} Meta map)
// so a caller that knows the concrete state type — e.g. a workflow
// manager's own Emitter — can snapshot it into its store on every step
// without the generic emit.Event type needing a type parameter of its
// own.
func (e *Engine[S]) emitNodeEnd(runID, nodeID string, step int, delta Partial[S], state S) {
	if e.emitter == nil {
		return
	}
	meta := map[string]interface{}{"channel_shaped": delta.Channels != nil, "state": state}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "node_end", Meta: meta})
}

func (e *Engine[S]) emitError(runID, nodeID string, step int, err error) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "error", Meta: map[string]interface{}{"error": err.Error()}})
}

func (e *Engine[S]) emitRoutingDecision(runID, nodeID string, step int, meta map[string]interface{}) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "routing_decision", Meta: meta})
}

// EngineError represents a structured error from Engine operations.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
