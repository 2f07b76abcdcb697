package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/fraud-ensemble/internal/model"
	"github.com/sells-group/fraud-ensemble/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Agents     []AgentConfig    `yaml:"agents" mapstructure:"agents"`
	Ensemble   EnsembleConfig   `yaml:"ensemble" mapstructure:"ensemble"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	ReadTimeoutSecs  int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// AgentConfig describes one scoring agent endpoint.
type AgentConfig struct {
	ID         string `yaml:"id" mapstructure:"id"`
	Name       string `yaml:"name" mapstructure:"name"`
	URL        string `yaml:"url" mapstructure:"url"`
	ScoreField string `yaml:"score_field" mapstructure:"score_field"`
	TimeoutMS  int    `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	Payload    string `yaml:"payload" mapstructure:"payload"`
}

// EnsembleConfig configures weighting and the missing-agent policy.
type EnsembleConfig struct {
	Weights            []float64 `yaml:"weights" mapstructure:"weights"`
	MissingAgentPolicy string    `yaml:"missing_agent_policy" mapstructure:"missing_agent_policy"`
	NeutralScore       float64   `yaml:"neutral_score" mapstructure:"neutral_score"`
	RejectOutOfRange   bool      `yaml:"reject_out_of_range" mapstructure:"reject_out_of_range"`
}

// RetryConfig configures per-agent retries of transient failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// AuditConfig configures the optional decision audit store.
type AuditConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BatchConfig configures offline batch scoring.
type BatchConfig struct {
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// TelemetryConfig configures OpenTelemetry tracing and metrics.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// MonitoringConfig configures decision health alerts. Alerts need an
// audit store to read decisions from.
type MonitoringConfig struct {
	Enabled               bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	MinDecisions          int     `yaml:"min_decisions" mapstructure:"min_decisions"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DegradedRateThreshold float64 `yaml:"degraded_rate_threshold" mapstructure:"degraded_rate_threshold"`
	HighRiskScore         float64 `yaml:"high_risk_score" mapstructure:"high_risk_score"`
	HighRiskRateThreshold float64 `yaml:"high_risk_rate_threshold" mapstructure:"high_risk_rate_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultAgents returns the three stock agents behind the local gateway.
func DefaultAgents() []AgentConfig {
	return []AgentConfig{
		{ID: "agent1", Name: "Context Analyser", URL: "http://localhost:80/context-analyser/predict", ScoreField: "anomaly_score", TimeoutMS: 20000, Payload: string(model.PayloadContext)},
		{ID: "agent2", Name: "Transaction History", URL: "http://localhost:80/transaction-history/predict", ScoreField: "pattern_score", TimeoutMS: 20000, Payload: string(model.PayloadHistory)},
		{ID: "agent3", Name: "Fraud Matcher", URL: "http://localhost:80/fraud-matcher/predict", ScoreField: "fraud_probability", TimeoutMS: 20000, Payload: string(model.PayloadPattern)},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FRAUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout_secs", 15)
	v.SetDefault("server.write_timeout_secs", 60)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("agents", agentDefaults())
	v.SetDefault("ensemble.missing_agent_policy", "fail")
	v.SetDefault("ensemble.neutral_score", 0.0)
	v.SetDefault("ensemble.reject_out_of_range", true)
	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.initial_backoff_ms", 100)
	v.SetDefault("retry.max_backoff_ms", 2000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("audit.driver", "none")
	v.SetDefault("audit.database_url", "fraud-audit.db")
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.rate_per_sec", 0)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "fraud-ensemble")
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.min_decisions", 5)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.degraded_rate_threshold", 0.20)
	v.SetDefault("monitoring.high_risk_score", 0.8)
	v.SetDefault("monitoring.high_risk_rate_threshold", 0.05)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func agentDefaults() []map[string]any {
	agents := DefaultAgents()
	out := make([]map[string]any, len(agents))
	for i, a := range agents {
		out[i] = map[string]any{
			"id":          a.ID,
			"name":        a.Name,
			"url":         a.URL,
			"score_field": a.ScoreField,
			"timeout_ms":  a.TimeoutMS,
			"payload":     a.Payload,
		}
	}
	return out
}

// AgentSpecs builds the read-only agent specs shared by every request.
func (c *Config) AgentSpecs() []model.AgentSpec {
	specs := make([]model.AgentSpec, len(c.Agents))
	for i, a := range c.Agents {
		specs[i] = model.AgentSpec{
			ID:         a.ID,
			Name:       a.Name,
			Endpoint:   a.URL,
			ScoreField: a.ScoreField,
			Timeout:    time.Duration(a.TimeoutMS) * time.Millisecond,
			Payload:    model.PayloadKind(a.Payload),
		}
	}
	return specs
}

// RetryPolicy converts the retry section to a resilience.RetryConfig.
func (c *Config) RetryPolicy() resilience.RetryConfig {
	r := c.Retry
	return resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMS, r.MaxBackoffMS, r.Multiplier, r.JitterFraction)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
