package workflow

import (
	"sync"
	"time"
)

// entry pairs a generic stored value with the metadata the TTL sweeper
// and status endpoints key off of.
type entry struct {
	metadata WorkflowMetadata
	value    interface{}
}

// StateStore is the single shared mutable map of live workflow state and
// metadata. All access is serialized under one mutex, matching the
// concurrency model's "state store's map is the single shared mutable
// resource" rule — there is no per-workflow locking, only one lock for
// the whole map, mirroring store.MemStore's single-mutex discipline.
//
// A background sweeper evicts entries whose metadata has gone stale past
// the configured TTL, freeing memory for workflows nobody ever finished
// or deleted.
type StateStore struct {
	mu      sync.RWMutex
	entries map[string]*entry

	ttl        time.Duration
	stopSweep  chan struct{}
	sweepOnce  sync.Once
}

// NewStateStore creates a state store whose sweeper evicts entries whose
// metadata hasn't been touched in longer than ttl. A non-positive ttl
// disables the sweeper.
func NewStateStore(ttl time.Duration) *StateStore {
	s := &StateStore{
		entries:   make(map[string]*entry),
		ttl:       ttl,
		stopSweep: make(chan struct{}),
	}
	if ttl > 0 {
		go s.sweepLoop()
	}
	return s
}

// sweepLoop runs the hourly TTL sweep until Close is called.
func (s *StateStore) sweepLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *StateStore) sweep() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.metadata.UpdatedAt.Before(cutoff) {
			delete(s.entries, id)
		}
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (s *StateStore) Close() {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
}

// Put stores or replaces a workflow's value and metadata.
func (s *StateStore) Put(workflowID string, metadata WorkflowMetadata, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[workflowID] = &entry{metadata: metadata, value: value}
}

// Get returns a workflow's value and metadata, and whether it exists.
func (s *StateStore) Get(workflowID string) (interface{}, WorkflowMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[workflowID]
	if !ok {
		return nil, WorkflowMetadata{}, false
	}
	return e.value, e.metadata, true
}

// Metadata returns only a workflow's metadata, and whether it exists.
func (s *StateStore) Metadata(workflowID string) (WorkflowMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[workflowID]
	if !ok {
		return WorkflowMetadata{}, false
	}
	return e.metadata, true
}

// UpdateMetadata applies fn to a workflow's metadata in place, returning
// false if the workflow isn't present.
func (s *StateStore) UpdateMetadata(workflowID string, fn func(*WorkflowMetadata)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[workflowID]
	if !ok {
		return false
	}
	fn(&e.metadata)
	return true
}

// SetValue replaces a workflow's stored value without touching its
// metadata. Returns false if the workflow isn't present.
func (s *StateStore) SetValue(workflowID string, value interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[workflowID]
	if !ok {
		return false
	}
	e.value = value
	return true
}

// Delete removes a workflow's entry. Safe to call for an id that doesn't
// exist.
func (s *StateStore) Delete(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, workflowID)
}

// List returns the metadata for every tracked workflow.
func (s *StateStore) List() []WorkflowMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WorkflowMetadata, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.metadata)
	}
	return out
}
