package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

// chatRequest is the body POST /chat accepts: a single free-form message,
// plus the fields a release workflow needs to actually run if the
// classifier routes it there.
type chatRequest struct {
	Message      string   `json:"message" validate:"required"`
	Repositories []string `json:"repositories,omitempty"`
	FixVersion   string   `json:"fix_version,omitempty"`
	SprintName   string   `json:"sprint_name,omitempty"`
	ReleaseType  string   `json:"release_type,omitempty"`
	WorkflowID   string   `json:"workflow_id,omitempty"`
}

type chatResponse struct {
	WorkflowID string  `json:"workflow_id"`
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// handleChatStart classifies the incoming message and starts the matching
// workflow kind. A release classification with no repositories supplied is
// rejected rather than started against an empty pipeline.
func (s *Server) handleChatStart(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.Classifier.Classify(r.Context(), req.Message)

	var (
		id  string
		err error
	)
	switch result.Kind {
	case workflow.KindRelease:
		if len(req.Repositories) == 0 {
			writeError(w, http.StatusBadRequest, "release workflows require at least one repository")
			return
		}
		initial := workflow.ReleaseState{
			Messages:     []workflow.Message{workflow.HumanMessage(req.Message)},
			Repositories: req.Repositories,
			FixVersion:   req.FixVersion,
			SprintName:   req.SprintName,
			ReleaseType:  req.ReleaseType,
		}
		id, err = s.ReleaseMgr.Start(r.Context(), initial, req.WorkflowID)
	default:
		initial := workflow.QAState{
			Messages: []workflow.Message{workflow.HumanMessage(req.Message)},
		}
		id, err = s.QAMgr.Start(r.Context(), initial, req.WorkflowID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, chatResponse{
		WorkflowID: id,
		Kind:       result.Kind,
		Confidence: result.Confidence,
		Reasoning:  result.Reasoning,
	})
}

func (s *Server) handleChatList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.All())
}

func (s *Server) handleChatStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mgr, ok := s.Registry.ManagerForID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	metadata, running, found := mgr.StatusAny(id)
	if !found {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metadata":   metadata,
		"is_running": running,
	})
}

// handleChatEvents returns a workflow's raw per-step event history from the
// BufferedEmitter registered for its kind.
func (s *Server) handleChatEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mgr, ok := s.Registry.ManagerForID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	history, ok := s.EventHistories[mgr.Kind()]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"events": []interface{}{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": history.GetHistory(id)})
}

func (s *Server) handleChatPause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mgr, ok := s.Registry.ManagerForID(id)
	if !ok || !mgr.Pause(id) {
		writeError(w, http.StatusNotFound, "workflow not found or not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"paused": true})
}

func (s *Server) handleChatCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mgr, ok := s.Registry.ManagerForID(id)
	if !ok || !mgr.Cancel(id) {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": true})
}

func (s *Server) handleChatDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mgr, ok := s.Registry.ManagerForID(id)
	if !ok || !mgr.Delete(id) {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
