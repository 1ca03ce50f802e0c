package workflow

import (
	"testing"
	"time"
)

func TestStateStorePutGetDelete(t *testing.T) {
	s := NewStateStore(0)
	defer s.Close()

	meta := WorkflowMetadata{WorkflowID: "wf-1", Status: StatusRunning}
	s.Put("wf-1", meta, QAState{WorkflowID: "wf-1"})

	value, gotMeta, ok := s.Get("wf-1")
	if !ok {
		t.Fatal("expected wf-1 to be present")
	}
	if gotMeta.Status != StatusRunning {
		t.Errorf("Status = %q, want %q", gotMeta.Status, StatusRunning)
	}
	if state, ok := value.(QAState); !ok || state.WorkflowID != "wf-1" {
		t.Errorf("unexpected stored value: %#v", value)
	}

	s.Delete("wf-1")
	if _, _, ok := s.Get("wf-1"); ok {
		t.Error("expected wf-1 to be gone after Delete")
	}
}

func TestStateStoreUpdateMetadataMissingReturnsFalse(t *testing.T) {
	s := NewStateStore(0)
	defer s.Close()

	if s.UpdateMetadata("missing", func(m *WorkflowMetadata) { m.Status = StatusPaused }) {
		t.Error("expected UpdateMetadata to report false for a missing id")
	}
}

func TestStateStoreUpdateMetadataMutatesInPlace(t *testing.T) {
	s := NewStateStore(0)
	defer s.Close()

	s.Put("wf-1", WorkflowMetadata{WorkflowID: "wf-1", Status: StatusRunning}, nil)
	ok := s.UpdateMetadata("wf-1", func(m *WorkflowMetadata) { m.Status = StatusPaused })
	if !ok {
		t.Fatal("expected UpdateMetadata to succeed")
	}
	meta, _ := s.Metadata("wf-1")
	if meta.Status != StatusPaused {
		t.Errorf("Status = %q, want %q", meta.Status, StatusPaused)
	}
}

func TestStateStoreSetValueMissingReturnsFalse(t *testing.T) {
	s := NewStateStore(0)
	defer s.Close()
	if s.SetValue("missing", QAState{}) {
		t.Error("expected SetValue to report false for a missing id")
	}
}

func TestStateStoreList(t *testing.T) {
	s := NewStateStore(0)
	defer s.Close()
	s.Put("wf-1", WorkflowMetadata{WorkflowID: "wf-1"}, nil)
	s.Put("wf-2", WorkflowMetadata{WorkflowID: "wf-2"}, nil)

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(list))
	}
}

func TestStateStoreSweepEvictsStaleEntries(t *testing.T) {
	s := NewStateStore(time.Millisecond)
	defer s.Close()

	s.Put("stale", WorkflowMetadata{WorkflowID: "stale", UpdatedAt: time.Now().Add(-time.Hour)}, nil)
	s.Put("fresh", WorkflowMetadata{WorkflowID: "fresh", UpdatedAt: time.Now()}, nil)

	s.sweep()

	if _, _, ok := s.Get("stale"); ok {
		t.Error("expected the stale entry to be evicted by sweep")
	}
	if _, _, ok := s.Get("fresh"); !ok {
		t.Error("expected the fresh entry to survive sweep")
	}
}

func TestStateStoreCloseIsIdempotent(t *testing.T) {
	s := NewStateStore(time.Hour)
	s.Close()
	s.Close()
}
