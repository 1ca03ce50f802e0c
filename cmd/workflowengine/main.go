// Command workflowengine runs the release-automation and QA workflow
// HTTP service: classify an incoming chat message, drive it through the
// matching graph, and expose its lifecycle over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	issuetrackerlive "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/issuetracker/live"
	issuetrackermock "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/issuetracker/mock"
	sourceforgelive "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/sourceforge/live"
	sourceforgemock "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/sourceforge/mock"
	wikilive "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/wiki/live"
	wikimock "github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/wiki/mock"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/classifier"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/emit"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/model"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/model/anthropic"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/model/google"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/model/openai"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/store"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/httpapi"
	internalconfig "github.com/ProjectEnigmaHackathon/release-workflow-engine/internal/config"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/internal/obslog"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/qa"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/release"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	internalconfig.Defaults(v)

	root := &cobra.Command{Use: "workflowengine"}
	root.PersistentFlags().String("config", "", "path to a config file (yaml/json/toml)")
	root.PersistentFlags().String("environment", internalconfig.EnvDevelopment, "development|production|testing")
	root.PersistentFlags().String("port", "8080", "HTTP listen port")
	root.PersistentFlags().Bool("use-mock-apis", true, "use in-memory mock adapters instead of live third-party APIs")
	_ = v.BindPFlag("environment", root.PersistentFlags().Lookup("environment"))
	_ = v.BindPFlag("port", root.PersistentFlags().Lookup("port"))
	_ = v.BindPFlag("use_mock_apis", root.PersistentFlags().Lookup("use-mock-apis"))
	v.SetEnvPrefix("WORKFLOWENGINE")
	v.AutomaticEnv()

	root.AddCommand(newServeCmd(v, root))
	return root
}

func newServeCmd(v *viper.Viper, root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the workflow engine HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := root.PersistentFlags().GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config file: %w", err)
				}
			}

			cfg, err := internalconfig.Load(v)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func runServer(cfg internalconfig.Config) error {
	log := obslog.New(cfg.Environment)
	log.WithFields(logrus.Fields{"environment": cfg.Environment, "use_mock_apis": cfg.UseMockAPIs}).Info("starting workflow engine")

	registry := prometheus.NewRegistry()
	metrics := graph.NewPrometheusMetrics(registry)

	releaseDeps, qaDeps, err := buildAdapters(cfg)
	if err != nil {
		return fmt.Errorf("building adapters: %w", err)
	}

	chat := buildChatModel(cfg)
	cls := classifier.New(chat)

	states := workflow.NewStateStore(cfg.TTL)
	persist, err := workflow.NewPersistence(cfg.DataRoot, log)
	if err != nil {
		return fmt.Errorf("opening persistence directory: %w", err)
	}

	releaseMgr, releaseHistory, err := buildReleaseManager(cfg, releaseDeps, states, persist, metrics, log)
	if err != nil {
		return fmt.Errorf("building release manager: %w", err)
	}
	qaMgr, qaHistory, err := buildQAManager(cfg, chat, qaDeps, states, persist, metrics, log)
	if err != nil {
		return fmt.Errorf("building qa manager: %w", err)
	}

	wfRegistry := workflow.Init(func(r *workflow.Registry) {
		r.Register(releaseMgr)
		r.Register(qaMgr)
	})

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	eventHistories := map[string]*emit.BufferedEmitter{
		workflow.KindRelease: releaseHistory,
		workflow.KindQA:      qaHistory,
	}
	server := httpapi.New(wfRegistry, releaseMgr, qaMgr, cls, cfg.Environment, log, metricsHandler, eventHistories, releaseDeps.Primary)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sig:
		log.Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	states.Close()
	return httpServer.Shutdown(ctx)
}

// buildChatModel resolves the configured provider. With no provider
// configured (the default for UseMockAPIs runs) it falls back to a
// MockChatModel that answers directly rather than leave the classifier
// and QA loop without a model to call.
func buildChatModel(cfg internalconfig.Config) model.ChatModel {
	switch cfg.LLMProvider {
	case "anthropic":
		return anthropic.NewChatModel(cfg.AnthropicAPIKey, "claude-3-5-sonnet-latest")
	case "openai":
		return openai.NewChatModel(cfg.OpenAIAPIKey, "gpt-4o")
	case "google":
		return google.NewChatModel(cfg.GoogleAPIKey, "gemini-1.5-pro")
	default:
		return &model.MockChatModel{
			Responses: []model.ChatOut{{Text: "I don't have a language model configured, so I can only answer with what the workflow tools report directly."}},
		}
	}
}

// buildAdapters builds both adapter sets from shared live/mock wiring: a
// release pipeline's Deps carries both a primary set (live, when configured) and
// an always-mock fallback set (rule 3's "continue on partial failure");
// the QA tool loop only ever needs one set, since it has no fallback
// concept of its own.
func buildAdapters(cfg internalconfig.Config) (release.Deps, qa.Adapters, error) {
	fallback := release.Adapters{
		Tracker: issuetrackermock.New(),
		Forge:   sourceforgemock.New(),
		Wiki:    wikimock.New(),
	}

	if cfg.UseMockAPIs {
		return release.Deps{Primary: fallback, Fallback: fallback},
			qa.Adapters{Forge: fallback.Forge, Tracker: fallback.Tracker, Wiki: fallback.Wiki}, nil
	}

	forge, err := sourceforgelive.New(cfg.SourceForge.BaseURL, cfg.SourceForgeOwner, cfg.SourceForge.Token, cfg.RatePerSecond, cfg.RateBurst)
	if err != nil {
		return release.Deps{}, qa.Adapters{}, err
	}
	primary := release.Adapters{
		Tracker: issuetrackerlive.New(cfg.IssueTracker.BaseURL, cfg.IssueTracker.Token, cfg.RatePerSecond, cfg.RateBurst),
		Forge:   forge,
		Wiki:    wikilive.New(cfg.Wiki.BaseURL, cfg.Wiki.Token, cfg.RatePerSecond, cfg.RateBurst),
	}
	return release.Deps{Primary: primary, Fallback: fallback},
		qa.Adapters{Forge: primary.Forge, Tracker: primary.Tracker, Wiki: primary.Wiki}, nil
}

// buildEngineStore resolves the graph engine's step-checkpoint store from
// cfg.StoreBackend. name distinguishes the release and QA engines' SQLite
// files when no explicit DSN is configured.
func buildEngineStore[S any](cfg internalconfig.Config, name string) (store.Store[S], error) {
	switch cfg.StoreBackend {
	case internalconfig.StoreBackendSQLite:
		path := cfg.StoreDSN
		if path == "" {
			path = filepath.Join(cfg.DataRoot, name+".db")
		}
		return store.NewSQLiteStore[S](path)
	case internalconfig.StoreBackendMySQL:
		return store.NewMySQLStore[S](cfg.StoreDSN)
	default:
		return store.NewMemStore[S](), nil
	}
}

// buildEngineEmitter chains the manager's own emitter (mandatory: it drives
// the manager's snapshot/metadata bookkeeping) with whichever observability
// emitters cfg enables, plus an always-on BufferedEmitter the HTTP layer
// queries for a workflow's raw event history.
func buildEngineEmitter(cfg internalconfig.Config, mgrEmitter emit.Emitter, tracerName string) (emit.Emitter, *emit.BufferedEmitter) {
	history := emit.NewBufferedEmitter()
	emitters := []emit.Emitter{mgrEmitter, history}
	if cfg.EnableTracing {
		emitters = append(emitters, emit.NewOTelEmitter(otel.Tracer(tracerName)))
	}
	if cfg.EnableEventLog {
		emitters = append(emitters, emit.NewLogEmitter(os.Stdout, true))
	}
	return emit.Chain(emitters...), history
}

func buildReleaseManager(cfg internalconfig.Config, deps release.Deps, states *workflow.StateStore, persist *workflow.Persistence, metrics *graph.PrometheusMetrics, log *logrus.Logger) (*workflow.Manager[workflow.ReleaseState], *emit.BufferedEmitter, error) {
	ops := workflow.StateOps[workflow.ReleaseState]{
		SetWorkflowID: func(state workflow.ReleaseState, id string) workflow.ReleaseState {
			state.WorkflowID = id
			return state
		},
		GetError: func(state workflow.ReleaseState) string { return state.Error },
		ClearForResume: func(state workflow.ReleaseState) workflow.ReleaseState {
			state.Error = ""
			state.WorkflowPaused = false
			return state
		},
	}

	engineStore, err := buildEngineStore[workflow.ReleaseState](cfg, "release")
	if err != nil {
		return nil, nil, fmt.Errorf("release store: %w", err)
	}

	mgr := workflow.NewPendingManager[workflow.ReleaseState](workflow.KindRelease, "start", states, persist, ops, log)
	emitter, history := buildEngineEmitter(cfg, mgr.Emitter(), "release-workflow-engine")
	engine := graph.New[workflow.ReleaseState](
		workflow.ReduceReleaseState,
		engineStore,
		emitter,
		graph.WithMaxSteps(200),
		graph.WithDefaultNodeTimeout(30*time.Second),
		graph.WithMetrics(metrics),
	)
	if err := release.Build(engine, deps); err != nil {
		return nil, nil, err
	}
	mgr.Attach(engine)
	return mgr, history, nil
}

func buildQAManager(cfg internalconfig.Config, chat model.ChatModel, deps qa.Adapters, states *workflow.StateStore, persist *workflow.Persistence, metrics *graph.PrometheusMetrics, log *logrus.Logger) (*workflow.Manager[workflow.QAState], *emit.BufferedEmitter, error) {
	ops := workflow.StateOps[workflow.QAState]{
		SetWorkflowID: func(state workflow.QAState, id string) workflow.QAState {
			state.WorkflowID = id
			return state
		},
		GetError:       func(state workflow.QAState) string { return "" },
		ClearForResume: func(state workflow.QAState) workflow.QAState { return state },
	}

	engineStore, err := buildEngineStore[workflow.QAState](cfg, "qa")
	if err != nil {
		return nil, nil, fmt.Errorf("qa store: %w", err)
	}

	mgr := workflow.NewPendingManager[workflow.QAState](workflow.KindQA, "chatbot", states, persist, ops, log)
	emitter, history := buildEngineEmitter(cfg, mgr.Emitter(), "qa-workflow-engine")
	engine := graph.New[workflow.QAState](
		workflow.ReduceQAState,
		engineStore,
		emitter,
		graph.WithMaxSteps(50),
		graph.WithDefaultNodeTimeout(30*time.Second),
		graph.WithMetrics(metrics),
	)
	if err := qa.Build(engine, chat, deps); err != nil {
		return nil, nil, err
	}
	mgr.Attach(engine)
	return mgr, history, nil
}
