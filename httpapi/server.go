// Package httpapi exposes the workflow engine over HTTP: starting chats,
// polling and streaming status, and lifecycle control (pause/cancel/
// delete), per the engine's external interface contract.
package httpapi

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/classifier"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/emit"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/internal/obslog"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/release"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

// Server bundles the dependencies every handler needs: the kind-agnostic
// registry for status/list/pause/cancel/delete, the two typed managers
// for starting new workflows, and the classifier that picks between them.
type Server struct {
	Registry    *workflow.Registry
	ReleaseMgr  *workflow.Manager[workflow.ReleaseState]
	QAMgr       *workflow.Manager[workflow.QAState]
	Classifier  *classifier.Classifier
	Environment string
	Log         *logrus.Logger
	MetricsProm http.Handler

	// EventHistories holds each registered kind's BufferedEmitter, keyed
	// by workflow.KindRelease / workflow.KindQA, for GET /chat/events/{id}.
	EventHistories map[string]*emit.BufferedEmitter

	// HealthAdapters is the release pipeline's primary adapter set, used
	// to fan out a connectivity check from GET /health.
	HealthAdapters release.Adapters

	startedAt time.Time
	validate  *validator.Validate
}

// New builds a Server and its router. metricsHandler is typically
// promhttp.HandlerFor(registry, promhttp.HandlerOpts{}). eventHistories
// and healthAdapters may be nil/zero; handlers degrade gracefully.
func New(registry *workflow.Registry, releaseMgr *workflow.Manager[workflow.ReleaseState], qaMgr *workflow.Manager[workflow.QAState], cls *classifier.Classifier, environment string, log *logrus.Logger, metricsHandler http.Handler, eventHistories map[string]*emit.BufferedEmitter, healthAdapters release.Adapters) *Server {
	if log == nil {
		log = obslog.New(environment)
	}
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	return &Server{
		Registry:       registry,
		ReleaseMgr:     releaseMgr,
		QAMgr:          qaMgr,
		Classifier:     cls,
		Environment:    environment,
		Log:            log,
		MetricsProm:    metricsHandler,
		EventHistories: eventHistories,
		HealthAdapters: healthAdapters,
		startedAt:      time.Now(),
		validate:       validator.New(),
	}
}

// Router builds the chi.Mux the process serves, wired with request
// logging, panic recovery, CORS, and a per-endpoint timeout for the
// non-streaming health/status surface.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(obslog.Middleware(s.Log))
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.MetricsProm)

	r.Post("/chat", s.handleChatStart)
	r.Get("/chat/list", s.handleChatList)
	r.Get("/chat/status/{id}", withTimeout(5*time.Second, s.handleChatStatus))
	r.Get("/chat/events/{id}", withTimeout(5*time.Second, s.handleChatEvents))
	r.Get("/chat/stream/{id}", s.handleChatStreamPlain)
	r.Get("/chat/stream-sse/{id}", s.handleChatStreamSSE)
	r.Get("/chat/ws/{id}", s.handleChatWS)
	r.Post("/chat/pause/{id}", s.handleChatPause)
	r.Post("/chat/cancel/{id}", s.handleChatCancel)
	r.Delete("/chat/{id}", s.handleChatDelete)

	return r
}

// withTimeout imposes a hard deadline on a handler's request context,
// per the boundary's "5s for health-check fan-out" rule — status is a
// single in-memory lookup but shares the same budget as the documented
// default since neither does any streaming.
func withTimeout(d time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

// recoverer converts a panicking handler into a 500 instead of crashing
// the process, matching the runtime-error propagation policy's "should
// not happen, but is captured" stance at the HTTP boundary.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// serviceHealth is one dependency's connectivity result, mirroring the
// per-service rollup a release pipeline's own health endpoint reports
// before deciding whether it's safe to accept new work.
type serviceHealth struct {
	Service    string `json:"service"`
	Status     string `json:"status"`
	ResponseMs int64  `json:"response_time_ms"`
	Error      string `json:"error,omitempty"`
}

// handleHealth fans a Validate(ctx) connectivity probe out across the
// release pipeline's primary adapters (issue tracker, forge, wiki) with a
// shared 5s budget, then rolls the results up into an overall status:
// unhealthy if any probe times out; otherwise healthy if every probe
// succeeds, degraded if at least one fails while others succeed, and
// unhealthy if all fail. With no adapters to probe the status is healthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	type probe struct {
		name string
		fn   func(context.Context) error
	}
	var probes []probe
	if s.HealthAdapters.Tracker != nil {
		probes = append(probes, probe{"issue_tracker", s.HealthAdapters.Tracker.Validate})
	}
	if s.HealthAdapters.Forge != nil {
		probes = append(probes, probe{"source_forge", s.HealthAdapters.Forge.Validate})
	}
	if s.HealthAdapters.Wiki != nil {
		probes = append(probes, probe{"wiki", s.HealthAdapters.Wiki.Validate})
	}

	results := make([]serviceHealth, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func(i int, p probe) {
			defer wg.Done()
			start := time.Now()
			err := p.fn(ctx)
			result := serviceHealth{Service: p.name, ResponseMs: time.Since(start).Milliseconds()}
			switch {
			case err == nil:
				result.Status = "healthy"
			case ctx.Err() != nil:
				result.Status = "timeout"
				result.Error = err.Error()
			default:
				result.Status = "unhealthy"
				result.Error = err.Error()
			}
			results[i] = result
		}(i, p)
	}
	wg.Wait()

	overall := "healthy"
	unhealthy, timedOut := 0, 0
	for _, res := range results {
		switch res.Status {
		case "unhealthy":
			unhealthy++
		case "timeout":
			timedOut++
		}
	}
	if timedOut > 0 {
		overall = "unhealthy"
	} else if unhealthy > 0 {
		if unhealthy == len(results) {
			overall = "unhealthy"
		} else {
			overall = "degraded"
		}
	}
	if len(results) == 0 {
		overall = "healthy" // no live adapters configured (mock-APIs mode): nothing to probe
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     overall,
		"services":   results,
		"uptime_s":   time.Since(s.startedAt).Seconds(),
		"goroutines": runtime.NumGoroutine(),
		"alloc_mb":   mem.Alloc / (1024 * 1024),
	})
}
