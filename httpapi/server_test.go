package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	issuetrackermock "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/issuetracker/mock"
	sourceforgemock "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/sourceforge/mock"
	wikimock "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/wiki/mock"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/classifier"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/emit"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/model"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/store"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/qa"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/release"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

// newTestServer wires a Server against real managers backed by mock
// adapters, the same way cmd/workflowengine/main.go does, so the
// handlers exercise the genuine Start/Stream/Status plumbing rather than
// a hand-rolled stub.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	adapters := release.Adapters{
		Tracker: issuetrackermock.New(),
		Forge:   sourceforgemock.New(),
		Wiki:    wikimock.New(),
	}
	releaseDeps := release.Deps{Primary: adapters, Fallback: adapters}
	qaDeps := qa.Adapters{Forge: adapters.Forge, Tracker: adapters.Tracker, Wiki: adapters.Wiki}

	states := workflow.NewStateStore(time.Hour)
	t.Cleanup(states.Close)
	persist, err := workflow.NewPersistence(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewPersistence: %v", err)
	}

	releaseOps := workflow.StateOps[workflow.ReleaseState]{
		SetWorkflowID: func(s workflow.ReleaseState, id string) workflow.ReleaseState { s.WorkflowID = id; return s },
		GetError:      func(s workflow.ReleaseState) string { return s.Error },
		ClearForResume: func(s workflow.ReleaseState) workflow.ReleaseState {
			s.Error = ""
			return s
		},
	}
	releaseMgr := workflow.NewPendingManager[workflow.ReleaseState](workflow.KindRelease, "start", states, persist, releaseOps, nil)
	releaseHistory := emit.NewBufferedEmitter()
	releaseEngine := graph.New[workflow.ReleaseState](workflow.ReduceReleaseState, store.NewMemStore[workflow.ReleaseState](), emit.Chain(releaseMgr.Emitter(), releaseHistory), graph.WithMaxSteps(100))
	if err := release.Build(releaseEngine, releaseDeps); err != nil {
		t.Fatalf("release.Build: %v", err)
	}
	releaseMgr.Attach(releaseEngine)

	qaOps := workflow.StateOps[workflow.QAState]{
		SetWorkflowID:  func(s workflow.QAState, id string) workflow.QAState { s.WorkflowID = id; return s },
		GetError:       func(s workflow.QAState) string { return "" },
		ClearForResume: func(s workflow.QAState) workflow.QAState { return s },
	}
	qaMgr := workflow.NewPendingManager[workflow.QAState](workflow.KindQA, "chatbot", states, persist, qaOps, nil)
	qaHistory := emit.NewBufferedEmitter()
	qaEngine := graph.New[workflow.QAState](workflow.ReduceQAState, store.NewMemStore[workflow.QAState](), emit.Chain(qaMgr.Emitter(), qaHistory), graph.WithMaxSteps(20))
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "svc-a looks clean."}}}
	if err := qa.Build(qaEngine, chat, qaDeps); err != nil {
		t.Fatalf("qa.Build: %v", err)
	}
	qaMgr.Attach(qaEngine)

	registry := workflow.NewRegistry()
	registry.Register(releaseMgr)
	registry.Register(qaMgr)

	cls := classifier.New(nil)
	histories := map[string]*emit.BufferedEmitter{
		workflow.KindRelease: releaseHistory,
		workflow.KindQA:      qaHistory,
	}
	return New(registry, releaseMgr, qaMgr, cls, "testing", nil, nil, histories, adapters)
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy (mock adapters always validate)", body["status"])
	}
	services, ok := body["services"].([]interface{})
	if !ok || len(services) != 3 {
		t.Fatalf("services = %v, want 3 entries (tracker/forge/wiki)", body["services"])
	}
}

func TestChatEventsReturnsHistoryAfterCompletion(t *testing.T) {
	router := newTestServer(t).Router()
	start := postJSON(t, router, "/chat", chatRequest{Message: "what is the status of svc-a?"})
	var started chatResponse
	if err := json.Unmarshal(start.Body.Bytes(), &started); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	waitForCompletion(t, router, started.WorkflowID)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/events/"+started.WorkflowID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Events []interface{} `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(body.Events) == 0 {
		t.Error("expected at least one recorded event for a completed workflow")
	}
}

func TestChatEventsNotFound(t *testing.T) {
	router := newTestServer(t).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/events/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", rec.Code)
	}
}

func TestChatStartQADefaultsWithoutRepositories(t *testing.T) {
	router := newTestServer(t).Router()
	rec := postJSON(t, router, "/chat", chatRequest{Message: "what is the status of svc-a?"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d, want 202, body: %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resp.Kind != workflow.KindQA {
		t.Errorf("Kind = %q, want %q", resp.Kind, workflow.KindQA)
	}
	if resp.WorkflowID == "" {
		t.Error("expected a non-empty workflow id")
	}
}

func TestChatStartReleaseRequiresRepositories(t *testing.T) {
	router := newTestServer(t).Router()
	rec := postJSON(t, router, "/chat", chatRequest{Message: "please merge and tag a new release"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400, body: %s", rec.Code, rec.Body.String())
	}
}

func TestChatStartReleaseWithRepositories(t *testing.T) {
	router := newTestServer(t).Router()
	rec := postJSON(t, router, "/chat", chatRequest{
		Message:      "please merge and tag a new release",
		Repositories: []string{"svc-a"},
		FixVersion:   "2.0.0",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d, want 202, body: %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resp.Kind != workflow.KindRelease {
		t.Errorf("Kind = %q, want %q", resp.Kind, workflow.KindRelease)
	}
}

func TestChatStartRejectsMissingMessage(t *testing.T) {
	router := newTestServer(t).Router()
	rec := postJSON(t, router, "/chat", chatRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
}

func TestChatStatusLifecycle(t *testing.T) {
	router := newTestServer(t).Router()

	start := postJSON(t, router, "/chat", chatRequest{Message: "what is the status of svc-a?"})
	var started chatResponse
	if err := json.Unmarshal(start.Body.Bytes(), &started); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	waitForCompletion(t, router, started.WorkflowID)

	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, "/chat/status/"+started.WorkflowID, nil))
	if statusRec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200, body: %s", statusRec.Code, statusRec.Body.String())
	}
}

func TestChatStatusNotFound(t *testing.T) {
	router := newTestServer(t).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/status/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", rec.Code)
	}
}

func TestChatListIncludesBothKinds(t *testing.T) {
	router := newTestServer(t).Router()
	postJSON(t, router, "/chat", chatRequest{Message: "what is the status of svc-a?"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/list", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var all map[string][]workflow.WorkflowMetadata
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := all[workflow.KindRelease]; !ok {
		t.Error("expected a release entry in /chat/list, even if empty")
	}
	if len(all[workflow.KindQA]) == 0 {
		t.Error("expected at least one qa workflow listed")
	}
}

func TestChatDeleteNotFound(t *testing.T) {
	router := newTestServer(t).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/chat/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", rec.Code)
	}
}

// waitForCompletion polls /chat/status until the workflow manager reports
// it's no longer running, bounding the wait since the driver goroutine
// runs asynchronously off the request that started it.
func waitForCompletion(t *testing.T, router http.Handler, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/status/"+id, nil))
		var body map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err == nil {
			if running, ok := body["is_running"].(bool); ok && !running {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("workflow %s did not complete in time", id)
}
