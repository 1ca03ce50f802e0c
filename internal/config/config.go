// Package config loads the process's runtime configuration from flags,
// environment variables, and an optional config file, via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment values gate documentation exposure per the HTTP boundary.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// ServiceCreds bundles one external service's reachability and auth.
type ServiceCreds struct {
	BaseURL string
	Token   string
}

// Config is the fully resolved set of options the server reads at
// startup, after flags/env/config-file precedence has been applied by
// viper and Load has read every key back out.
type Config struct {
	Environment string
	Port        string

	UseMockAPIs               bool
	EnableWorkflowPersistence bool
	DataRoot                  string

	// StoreBackend selects the graph engine's own step-checkpoint store
	// (distinct from the workflow-level persistence snapshot above):
	// "memory" (default), "sqlite", or "mysql".
	StoreBackend string
	StoreDSN     string

	IssueTracker ServiceCreds
	SourceForge  ServiceCreds
	Wiki         ServiceCreds

	SourceForgeOwner string

	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	LLMProvider     string

	RatePerSecond float64
	RateBurst     int

	TTL                   time.Duration
	SweepPeriod           time.Duration
	SnapshotFlushInterval time.Duration

	EnableTracing  bool
	EnableEventLog bool
}

// Store backend choices for StoreBackend.
const (
	StoreBackendMemory = "memory"
	StoreBackendSQLite = "sqlite"
	StoreBackendMySQL  = "mysql"
)

// Defaults populates viper with every option's default value. Call before
// reading a config file or environment so unset keys still resolve.
func Defaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("port", "8080")

	v.SetDefault("use_mock_apis", true)
	v.SetDefault("enable_workflow_persistence", true)
	v.SetDefault("data_root", "./data")

	v.SetDefault("store.backend", StoreBackendMemory)
	v.SetDefault("store.dsn", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("event_log.enabled", false)

	v.SetDefault("issuetracker.base_url", "")
	v.SetDefault("issuetracker.token", "")
	v.SetDefault("sourceforge.base_url", "")
	v.SetDefault("sourceforge.token", "")
	v.SetDefault("sourceforge.owner", "")
	v.SetDefault("wiki.base_url", "")
	v.SetDefault("wiki.token", "")

	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.google_api_key", "")

	v.SetDefault("rate.per_second", 5.0)
	v.SetDefault("rate.burst", 10)

	v.SetDefault("ttl_hours", 24)
	v.SetDefault("sweep_period_minutes", 60)
	v.SetDefault("snapshot_flush_seconds", 30)
}

// Load resolves a Config from v, after flags/env/config-file have all
// been merged into it.
func Load(v *viper.Viper) (Config, error) {
	env := strings.ToLower(v.GetString("environment"))
	switch env {
	case EnvDevelopment, EnvProduction, EnvTesting:
	default:
		return Config{}, fmt.Errorf("config: unrecognized environment %q", env)
	}

	storeBackend := strings.ToLower(v.GetString("store.backend"))
	switch storeBackend {
	case StoreBackendMemory, StoreBackendSQLite, StoreBackendMySQL:
	default:
		return Config{}, fmt.Errorf("config: unrecognized store backend %q", storeBackend)
	}

	return Config{
		Environment: env,
		Port:        v.GetString("port"),

		UseMockAPIs:               v.GetBool("use_mock_apis"),
		EnableWorkflowPersistence: v.GetBool("enable_workflow_persistence"),
		DataRoot:                  v.GetString("data_root"),

		StoreBackend: storeBackend,
		StoreDSN:     v.GetString("store.dsn"),

		IssueTracker: ServiceCreds{BaseURL: v.GetString("issuetracker.base_url"), Token: v.GetString("issuetracker.token")},
		SourceForge:  ServiceCreds{BaseURL: v.GetString("sourceforge.base_url"), Token: v.GetString("sourceforge.token")},
		Wiki:         ServiceCreds{BaseURL: v.GetString("wiki.base_url"), Token: v.GetString("wiki.token")},

		SourceForgeOwner: v.GetString("sourceforge.owner"),

		LLMProvider:     v.GetString("llm.provider"),
		AnthropicAPIKey: v.GetString("llm.anthropic_api_key"),
		OpenAIAPIKey:    v.GetString("llm.openai_api_key"),
		GoogleAPIKey:    v.GetString("llm.google_api_key"),

		RatePerSecond: v.GetFloat64("rate.per_second"),
		RateBurst:     v.GetInt("rate.burst"),

		TTL:                   time.Duration(v.GetInt("ttl_hours")) * time.Hour,
		SweepPeriod:           time.Duration(v.GetInt("sweep_period_minutes")) * time.Minute,
		SnapshotFlushInterval: time.Duration(v.GetInt("snapshot_flush_seconds")) * time.Second,

		EnableTracing:  v.GetBool("tracing.enabled"),
		EnableEventLog: v.GetBool("event_log.enabled"),
	}, nil
}
