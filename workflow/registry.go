package workflow

import (
	"context"
	"sync"
)

// Kinds of workflow this process knows how to run.
const (
	KindRelease = "release"
	KindQA      = "qa"
)

// StatusHolder is the kind-erased view of a Manager the registry can hold
// in a single slice: the release and QA managers are Manager[ReleaseState]
// and Manager[QAState], two distinct instantiations of the same generic
// type, so the registry talks to them through this narrow interface
// instead of trying to store them in a uniform generic container. Every
// lifecycle operation that doesn't need a typed initial state (all but
// Start) is exposed here, so the HTTP layer can dispatch purely by
// workflow id without knowing which kind it belongs to.
type StatusHolder interface {
	Kind() string
	StatusAny(id string) (metadata WorkflowMetadata, isRunning bool, ok bool)
	ListAny() []WorkflowMetadata
	Resume(ctx context.Context, id string) (bool, error)
	Pause(id string) bool
	Cancel(id string) bool
	Delete(id string) bool
}

// StatusAny implements StatusHolder for Manager[S].
func (m *Manager[S]) StatusAny(id string) (WorkflowMetadata, bool, bool) {
	summary, ok := m.Status(id)
	if !ok {
		return WorkflowMetadata{}, false, false
	}
	return summary.Metadata, summary.IsRunning, true
}

// ListAny implements StatusHolder for Manager[S].
func (m *Manager[S]) ListAny() []WorkflowMetadata {
	summaries := m.List()
	out := make([]WorkflowMetadata, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, s.Metadata)
	}
	return out
}

// Registry caches one manager per known workflow kind and answers
// lookups by kind or by workflow id. A single process-wide instance is
// exposed via Init/Registered.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]StatusHolder
	order    []string
}

// NewRegistry creates an empty registry. Managers are attached with
// Register, typically once at process startup.
func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]StatusHolder)}
}

// Register attaches a manager under its own Kind(). Calling Register
// twice for the same kind replaces the previous entry.
func (r *Registry) Register(m StatusHolder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.managers[m.Kind()]; !exists {
		r.order = append(r.order, m.Kind())
	}
	r.managers[m.Kind()] = m
}

// ManagerForKind returns the manager registered for kind, if any.
func (r *Registry) ManagerForKind(kind string) (StatusHolder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[kind]
	return m, ok
}

// ManagerForID does a linear scan across every registered manager,
// asking each for id's status until one answers non-empty.
func (r *Registry) ManagerForID(id string) (StatusHolder, bool) {
	r.mu.RLock()
	kinds := append([]string(nil), r.order...)
	managers := make(map[string]StatusHolder, len(r.managers))
	for k, v := range r.managers {
		managers[k] = v
	}
	r.mu.RUnlock()

	for _, kind := range kinds {
		m := managers[kind]
		if _, _, ok := m.StatusAny(id); ok {
			return m, true
		}
	}
	return nil, false
}

// Kinds returns the registered workflow kinds, in registration order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns every tracked workflow's metadata, grouped by kind.
func (r *Registry) All() map[string][]WorkflowMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]WorkflowMetadata, len(r.managers))
	for kind, m := range r.managers {
		out[kind] = m.ListAny()
	}
	return out
}

var (
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
)

// Init lazily constructs the process-wide registry singleton, guarded
// against double-init. build is called exactly once, the first time Init
// runs, to register every known manager.
func Init(build func(r *Registry)) *Registry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewRegistry()
		build(globalRegistry)
	})
	return globalRegistry
}

// Registered returns the process-wide registry, or nil if Init hasn't
// run yet.
func Registered() *Registry {
	return globalRegistry
}
