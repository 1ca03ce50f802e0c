package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// record is the on-disk shape written by the persistence layer: Kind
// disambiguates which concrete state type State should be unmarshaled
// into, since the file on disk has no type parameter to consult.
type record struct {
	Kind     string           `json:"kind"`
	State    json.RawMessage  `json:"state"`
	Metadata WorkflowMetadata `json:"metadata"`
	SavedAt  time.Time        `json:"saved_at"`
}

// Persistence is the best-effort, crash-safe on-disk mirror of the
// in-memory state store. Every workflow gets its own "<id>.json" file so
// concurrent writes to different workflows never collide; a crash mid
// write never leaves a reader looking at a truncated file, because
// writes land in a sibling temp file and are atomically renamed into
// place — the same discipline graph/store/sqlite.go applies at the
// transaction level, translated here to the filesystem since there's no
// database underneath.
type Persistence struct {
	dir string
	log *logrus.Logger
}

// NewPersistence creates a persistence layer rooted at dir, creating the
// directory if it doesn't exist.
func NewPersistence(dir string, log *logrus.Logger) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create dir: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Persistence{dir: dir, log: log}, nil
}

func (p *Persistence) path(workflowID string) string {
	return filepath.Join(p.dir, workflowID+".json")
}

// Save writes state and metadata for workflowID. Errors are logged and
// swallowed: persistence is best-effort, the in-memory state store
// remains authoritative.
func (p *Persistence) Save(workflowID, kind string, state interface{}, metadata WorkflowMetadata) {
	if err := p.save(workflowID, kind, state, metadata); err != nil {
		p.log.WithError(err).WithField("workflow_id", workflowID).Warn("persistence: save failed")
	}
}

func (p *Persistence) save(workflowID, kind string, state interface{}, metadata WorkflowMetadata) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	rec := record{Kind: kind, State: stateJSON, Metadata: metadata, SavedAt: time.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	final := p.path(workflowID)
	tmp, err := os.CreateTemp(p.dir, workflowID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Load reads back the kind tag, raw state JSON, and metadata for
// workflowID. Returns ok=false if the file is absent or malformed;
// malformed files are logged, never returned as an error to the caller.
func (p *Persistence) Load(workflowID string) (kind string, stateJSON json.RawMessage, metadata WorkflowMetadata, ok bool) {
	data, err := os.ReadFile(p.path(workflowID))
	if err != nil {
		return "", nil, WorkflowMetadata{}, false
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		p.log.WithError(err).WithField("workflow_id", workflowID).Warn("persistence: malformed snapshot")
		return "", nil, WorkflowMetadata{}, false
	}
	return rec.Kind, rec.State, rec.Metadata, true
}

// Delete removes the on-disk snapshot for workflowID, if any.
func (p *Persistence) Delete(workflowID string) {
	if err := os.Remove(p.path(workflowID)); err != nil && !os.IsNotExist(err) {
		p.log.WithError(err).WithField("workflow_id", workflowID).Warn("persistence: delete failed")
	}
}
