package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

// streamFrame is the JSON shape sent over every streaming transport
// (plain chunked, SSE, and WS alike) so a client can use one decoder
// regardless of which endpoint it connected to.
type streamFrame struct {
	WorkflowID string                 `json:"workflow_id"`
	Status     string                 `json:"status"`
	CurrentStep string                `json:"current_step"`
	State      map[string]interface{} `json:"state,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// snapshots returns a channel of streamFrame for id, dispatching to
// whichever typed manager actually owns the workflow — Manager[S].Stream
// is generic and isn't part of the kind-agnostic StatusHolder interface,
// so the caller must already know which manager to ask.
func (s *Server) snapshots(r *http.Request, id string) (<-chan streamFrame, bool) {
	holder, ok := s.Registry.ManagerForID(id)
	if !ok {
		return nil, false
	}

	out := make(chan streamFrame)
	switch holder.Kind() {
	case workflow.KindRelease:
		go pump(r, s.ReleaseMgr.Stream(r.Context(), id), out, func(st workflow.ReleaseState) string { return st.CurrentStep })
	case workflow.KindQA:
		go pump(r, s.QAMgr.Stream(r.Context(), id), out, func(st workflow.QAState) string { return st.CurrentStep })
	default:
		return nil, false
	}
	return out, true
}

func pump[S any](r *http.Request, in <-chan workflow.Snapshot[S], out chan<- streamFrame, step func(S) string) {
	defer close(out)
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-in:
			if !ok {
				return
			}
			frame := streamFrame{
				WorkflowID:  snap.WorkflowID,
				Status:      string(snap.Metadata.Status),
				CurrentStep: step(snap.State),
				Timestamp:   snap.Timestamp,
			}
			select {
			case out <- frame:
			case <-r.Context().Done():
				return
			}
		}
	}
}

// handleChatStreamPlain emits newline-delimited JSON frames, flushing
// after every write so a client reading the response body incrementally
// sees each update as it arrives.
func (s *Server) handleChatStreamPlain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	frames, ok := s.snapshots(r, id)
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for frame := range frames {
		if err := enc.Encode(frame); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

// handleChatStreamSSE emits the same frames as Server-Sent Events.
func (s *Server) handleChatStreamSSE(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	frames, ok := s.snapshots(r, id)
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for frame := range frames {
		body, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", body)
		if canFlush {
			flusher.Flush()
		}
	}
}

// handleChatWS upgrades to a websocket and forwards each frame as a text
// message until the workflow reaches a terminal state or the client
// disconnects.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	frames, ok := s.snapshots(r, id)
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for frame := range frames {
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
}
