package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/emit"
)

// StateOps supplies the handful of state-shape-specific operations the
// kind-agnostic Manager needs: stamping a freshly allocated id into
// state, reading back the node-reported error for metadata bookkeeping,
// and clearing the resume-blocking fields a reducer has no zero-value-
// safe way to reset.
type StateOps[S any] struct {
	SetWorkflowID  func(state S, id string) S
	GetError       func(state S) string
	ClearForResume func(state S) S
}

// runHandle tracks a live driver goroutine so Pause/Cancel can signal it
// and the manager can refuse a concurrent resume.
type runHandle struct {
	cancel context.CancelFunc
	intent string // "paused" or "cancelled", set by Pause/Cancel before cancel()
}

// Manager is the lifecycle controller for one workflow kind (release or
// QA). It owns the engine, the in-memory state store, the disk mirror,
// and the set of currently running driver goroutines.
type Manager[S any] struct {
	kind      string
	entryNode string
	engine    *graph.Engine[S]
	states    *StateStore
	persist   *Persistence
	ops       StateOps[S]
	log       *logrus.Logger

	mu      sync.Mutex
	running map[string]*runHandle
}

// NewManager wires an engine, state store, and persistence layer into a
// Manager for one workflow kind. The engine must already have its nodes,
// edges, and entry node configured. NewManager does not install an
// Emitter on the engine: metadata and snapshot updates only flow if the
// engine was built with this manager's Emitter() (see NewPendingManager).
func NewManager[S any](kind, entryNode string, engine *graph.Engine[S], states *StateStore, persist *Persistence, ops StateOps[S], log *logrus.Logger) *Manager[S] {
	m := NewPendingManager[S](kind, entryNode, states, persist, ops, log)
	m.engine = engine
	return m
}

// NewPendingManager builds a Manager with no engine attached yet. Use
// this when the engine's own construction needs the manager's Emitter
// first: build the pending manager, call Emitter() for graph.New, then
// Attach the resulting engine. NewManager is a convenience wrapper for
// callers that already have a fully-built engine in hand (tests mostly).
func NewPendingManager[S any](kind, entryNode string, states *StateStore, persist *Persistence, ops StateOps[S], log *logrus.Logger) *Manager[S] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager[S]{
		kind:      kind,
		entryNode: entryNode,
		states:    states,
		persist:   persist,
		ops:       ops,
		log:       log,
		running:   make(map[string]*runHandle),
	}
}

// Attach wires engine into a pending Manager built via NewPendingManager.
func (m *Manager[S]) Attach(engine *graph.Engine[S]) {
	m.engine = engine
}

// Kind returns the workflow kind this manager handles ("release" or
// "qa").
func (m *Manager[S]) Kind() string { return m.kind }

// Emitter returns the emit.Emitter this manager expects its engine to
// use for per-step snapshot propagation. Callers constructing the engine
// before attaching it should pass this to graph.New.
func (m *Manager[S]) Emitter() emit.Emitter {
	return &managerEmitter[S]{manager: m}
}

// Start allocates (or accepts) a workflow id, stamps it into initial,
// writes the initial snapshot, and spawns the driver goroutine that runs
// the graph to completion, pause, or cancellation.
func (m *Manager[S]) Start(ctx context.Context, initial S, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	if _, exists := m.running[id]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("workflow %s is already running", id)
	}
	m.mu.Unlock()

	state := m.ops.SetWorkflowID(initial, id)
	now := time.Now()
	metadata := WorkflowMetadata{
		WorkflowID:  id,
		Kind:        m.kind,
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      StatusRunning,
		CurrentStep: m.entryNode,
	}
	m.states.Put(id, metadata, state)
	m.persist.Save(id, m.kind, state, metadata)

	m.spawn(id, m.entryNode, state, now)
	return id, nil
}

// Resume respawns the driver task from the last persisted state. Refuses
// if a task is already running for id.
func (m *Manager[S]) Resume(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	if _, exists := m.running[id]; exists {
		m.mu.Unlock()
		return false, fmt.Errorf("workflow %s is already running", id)
	}
	m.mu.Unlock()

	value, metadata, ok := m.states.Get(id)
	if !ok {
		if !m.reloadFromDisk(id) {
			return false, nil
		}
		value, metadata, ok = m.states.Get(id)
		if !ok {
			return false, nil
		}
	}
	state, ok := value.(S)
	if !ok {
		return false, fmt.Errorf("workflow %s has unexpected state type", id)
	}

	state = m.ops.ClearForResume(state)
	fromNode := metadata.CurrentStep
	if fromNode == "" {
		fromNode = m.entryNode
	}

	startedAt := time.Now()
	m.states.UpdateMetadata(id, func(md *WorkflowMetadata) {
		md.Status = StatusRunning
		md.UpdatedAt = startedAt
	})

	m.spawn(id, fromNode, state, startedAt)
	return true, nil
}

// reloadFromDisk attempts to bring a workflow back into the in-memory
// state store from its on-disk snapshot, for the case where the process
// restarted and Resume is the first touch a workflow id has had.
func (m *Manager[S]) reloadFromDisk(id string) bool {
	kind, stateJSON, metadata, ok := m.persist.Load(id)
	if !ok || kind != m.kind {
		return false
	}
	var state S
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		m.log.WithError(err).WithField("workflow_id", id).Warn("manager: failed to decode persisted state")
		return false
	}
	m.states.Put(id, metadata, state)
	return true
}

// spawn starts the driver goroutine for id and registers it in the
// running map.
func (m *Manager[S]) spawn(id, fromNode string, state S, since time.Time) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.running[id] = &runHandle{cancel: cancel}
	m.mu.Unlock()

	go m.drive(ctx, id, fromNode, state, since)
}

// drive runs the graph to its next stopping point and classifies the
// outcome into a terminal or paused/cancelled metadata status. Any
// exception escaping Run itself is treated as a runtime error: the
// workflow is marked failed unless a pause/cancel was already requested.
func (m *Manager[S]) drive(ctx context.Context, id, fromNode string, state S, since time.Time) {
	defer m.deregister(id)

	outcome, err := m.engine.Resume(ctx, id, fromNode, state, 0)

	elapsed := time.Since(since).Seconds()

	if err != nil {
		m.log.WithError(err).WithField("workflow_id", id).Error("manager: driver run failed")
		status := StatusFailed
		m.mu.Lock()
		if handle, ok := m.running[id]; ok && handle.intent != "" {
			status = handle.intent
		}
		m.mu.Unlock()
		m.states.UpdateMetadata(id, func(md *WorkflowMetadata) {
			md.Status = status
			md.UpdatedAt = time.Now()
			md.ErrorCount++
			md.LastError = err.Error()
			md.ExecutionTimeSeconds += elapsed
		})
		return
	}

	m.states.SetValue(id, outcome.State)

	status := m.classify(id, outcome)
	lastError := m.ops.GetError(outcome.State)

	m.states.UpdateMetadata(id, func(md *WorkflowMetadata) {
		md.Status = status
		md.UpdatedAt = time.Now()
		md.ExecutionTimeSeconds += elapsed
		if lastError != "" {
			md.LastError = lastError
			md.ErrorCount++
		}
	})
	if metadata, ok := m.states.Metadata(id); ok {
		m.persist.Save(id, m.kind, outcome.State, metadata)
	}
}

// classify maps an engine RunOutcome to a metadata status string.
// Completed/Failed map directly; Interrupted consults the pending
// pause/cancel intent recorded by Pause/Cancel (defaulting to cancelled,
// since an externally cancelled context with no recorded intent implies
// the process is shutting down, not a user-requested pause).
func (m *Manager[S]) classify(id string, outcome graph.RunOutcome[S]) string {
	switch outcome.Status {
	case graph.StatusCompleted:
		return StatusCompleted
	case graph.StatusFailed:
		return StatusFailed
	case graph.StatusInterrupted:
		m.mu.Lock()
		handle, ok := m.running[id]
		m.mu.Unlock()
		if ok && handle.intent != "" {
			return handle.intent
		}
		return StatusCancelled
	default:
		return StatusCompleted
	}
}

func (m *Manager[S]) deregister(id string) {
	m.mu.Lock()
	delete(m.running, id)
	m.mu.Unlock()
}

// Pause cancels the running driver (if any) and marks the workflow
// paused. Returns false if the workflow isn't currently running.
func (m *Manager[S]) Pause(id string) bool {
	return m.signal(id, StatusPaused)
}

// Cancel cancels the running driver (if any) and marks the workflow
// cancelled. Returns false if the workflow isn't currently running.
func (m *Manager[S]) Cancel(id string) bool {
	return m.signal(id, StatusCancelled)
}

func (m *Manager[S]) signal(id, intent string) bool {
	m.mu.Lock()
	handle, ok := m.running[id]
	if ok {
		handle.intent = intent
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	handle.cancel()
	return true
}

// IsRunning reports whether a driver goroutine is currently active for
// id.
func (m *Manager[S]) IsRunning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok
}

// StatusSummary is the read-only view returned by Status and List.
type StatusSummary[S any] struct {
	Metadata  WorkflowMetadata
	State     S
	IsRunning bool
}

// Status returns the current metadata and state snapshot for id, and
// whether it exists.
func (m *Manager[S]) Status(id string) (StatusSummary[S], bool) {
	value, metadata, ok := m.states.Get(id)
	if !ok {
		return StatusSummary[S]{}, false
	}
	state, _ := value.(S)
	return StatusSummary[S]{Metadata: metadata, State: state, IsRunning: m.IsRunning(id)}, true
}

// List returns a summary for every workflow this manager is tracking.
func (m *Manager[S]) List() []StatusSummary[S] {
	metas := m.states.List()
	out := make([]StatusSummary[S], 0, len(metas))
	for _, md := range metas {
		value, _, ok := m.states.Get(md.WorkflowID)
		if !ok {
			continue
		}
		state, _ := value.(S)
		out = append(out, StatusSummary[S]{Metadata: md, State: state, IsRunning: m.IsRunning(md.WorkflowID)})
	}
	return out
}

// Delete cancels any running driver and removes id from both the
// in-memory store and disk. Returns whether the workflow existed.
func (m *Manager[S]) Delete(id string) bool {
	m.mu.Lock()
	handle, running := m.running[id]
	m.mu.Unlock()
	if running {
		handle.intent = StatusCancelled
		handle.cancel()
	}

	_, existed := m.states.Metadata(id)
	m.states.Delete(id)
	m.persist.Delete(id)
	return existed
}

// Snapshot is one point-in-time view streamed by Stream.
type Snapshot[S any] struct {
	WorkflowID string
	Metadata   WorkflowMetadata
	State      S
	Timestamp  time.Time
}

// terminalStatus reports whether status is one the stream loop should
// exit on.
func terminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Stream polls the state store until the workflow reaches a terminal
// status or disappears, yielding a snapshot whenever UpdatedAt advances.
// The returned channel is closed when polling stops; callers should
// select on ctx.Done() alongside it.
func (m *Manager[S]) Stream(ctx context.Context, id string) <-chan Snapshot[S] {
	out := make(chan Snapshot[S])
	go func() {
		defer close(out)
		var lastSeen time.Time
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			value, metadata, ok := m.states.Get(id)
			if !ok {
				return
			}
			if !metadata.UpdatedAt.After(lastSeen) {
				if terminalStatus(metadata.Status) {
					return
				}
				continue
			}
			lastSeen = metadata.UpdatedAt

			state, _ := value.(S)
			select {
			case out <- Snapshot[S]{WorkflowID: id, Metadata: metadata, State: state, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}
			if terminalStatus(metadata.Status) {
				return
			}
		}
	}()
	return out
}

// managerEmitter adapts an Manager's store/persistence pair to
// emit.Emitter, so the engine's own node-completion events double as the
// workflow manager's driver-task update hook: every node_end carries the
// accumulated state (stashed by the engine under Meta["state"]), which
// is enough to refresh the in-memory snapshot and, at most once per 30s
// of wall time, flush it to disk.
type managerEmitter[S any] struct {
	manager *Manager[S]

	mu        sync.Mutex
	lastFlush map[string]time.Time
}

func (me *managerEmitter[S]) Emit(event emit.Event) {
	switch event.Msg {
	case "node_end":
		me.onNodeEnd(event)
	case "routing_decision":
		me.onRoutingDecision(event)
	}
}

// onNodeEnd snapshots the accumulated state into the in-memory store and,
// at most once per 30s of wall time per workflow, flushes it to disk.
func (me *managerEmitter[S]) onNodeEnd(event emit.Event) {
	state, ok := event.Meta["state"].(S)
	if !ok {
		return
	}
	me.manager.states.SetValue(event.RunID, state)

	me.mu.Lock()
	if me.lastFlush == nil {
		me.lastFlush = make(map[string]time.Time)
	}
	last := me.lastFlush[event.RunID]
	due := time.Since(last) >= 30*time.Second
	if due {
		me.lastFlush[event.RunID] = time.Now()
	}
	me.mu.Unlock()

	if due {
		if metadata, ok := me.manager.states.Metadata(event.RunID); ok {
			me.manager.persist.Save(event.RunID, me.manager.kind, state, metadata)
		}
	}
}

// onRoutingDecision updates metadata.CurrentStep to the node the engine
// is about to dispatch next, not the one that just finished — so a
// pause observed between two node completions reports the step the run
// will resume at, matching what the driver's NextNode already carries.
// A terminal routing decision carries no "next_node", so the just-
// completed node's own id is the best available answer.
func (me *managerEmitter[S]) onRoutingDecision(event emit.Event) {
	next, _ := event.Meta["next_node"].(string)
	if next == "" {
		next = event.NodeID
	}
	me.manager.states.UpdateMetadata(event.RunID, func(md *WorkflowMetadata) {
		md.CurrentStep = next
		md.UpdatedAt = time.Now()
	})
}

// EmitBatch emits each event in sequence; the manager's hook has no
// batching fast path since every event that matters (node_end) already
// carries everything it needs.
func (me *managerEmitter[S]) EmitBatch(_ context.Context, events []emit.Event) error {
	for _, event := range events {
		me.Emit(event)
	}
	return nil
}

// Flush is a no-op: managerEmitter writes synchronously on Emit.
func (me *managerEmitter[S]) Flush(_ context.Context) error { return nil }
