package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	return &Config{
		Server: ServerConfig{Port: 8000},
		Agents: DefaultAgents(),
		Ensemble: EnsembleConfig{
			Weights:            []float64{0.4, 0.3, 0.3},
			MissingAgentPolicy: "fail",
			RejectOutOfRange:   true,
		},
		Retry: RetryConfig{MaxAttempts: 1},
		Audit: AuditConfig{Driver: "none"},
		Batch: BatchConfig{Concurrency: 4},
	}
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateAgents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"empty", func(c *Config) { c.Agents = nil }, "agents must not be empty"},
		{"missing id", func(c *Config) { c.Agents[0].ID = "" }, "agents[0].id is required"},
		{"duplicate id", func(c *Config) { c.Agents[2].ID = "agent1" }, `agents[2].id "agent1" is duplicated`},
		{"relative url", func(c *Config) { c.Agents[1].URL = "/predict" }, "agents[1].url must be an absolute URL"},
		{"missing field", func(c *Config) { c.Agents[1].ScoreField = "" }, "agents[1].score_field is required"},
		{"zero timeout", func(c *Config) { c.Agents[0].TimeoutMS = 0 }, "agents[0].timeout_ms must be > 0"},
		{"unknown payload", func(c *Config) { c.Agents[2].Payload = "graph" }, `agents[2].payload "graph"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			for _, mode := range []string{"serve", "score", "batch"} {
				err := cfg.Validate(mode)
				if assert.Error(t, err, mode) {
					assert.Contains(t, err.Error(), tt.want)
				}
			}
		})
	}
}

func TestValidateEnsemble(t *testing.T) {
	cfg := validDefaults()
	cfg.Ensemble.Weights = []float64{0.5, 0.5}
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ensemble.weights has 2 entries for 3 agents")

	cfg = validDefaults()
	cfg.Ensemble.Weights = []float64{0.5, -0.5, 1}
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "values must be finite and >= 0")

	cfg = validDefaults()
	cfg.Ensemble.Weights = []float64{0, 0, 0}
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must not sum to zero")

	cfg = validDefaults()
	cfg.Ensemble.Weights = nil
	assert.NoError(t, cfg.Validate("serve"), "empty weights fall back to defaults")

	cfg = validDefaults()
	cfg.Ensemble.MissingAgentPolicy = "average"
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing_agent_policy")

	cfg = validDefaults()
	cfg.Ensemble.NeutralScore = 1.5
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "neutral_score")
}

func TestValidateAudit(t *testing.T) {
	cfg := validDefaults()
	cfg.Audit.Driver = "mysql"
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `audit.driver "mysql"`)

	cfg.Audit = AuditConfig{Driver: "sqlite"}
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "audit.database_url is required")

	cfg.Audit.DatabaseURL = "audit.db"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateDecisions_RequiresStore(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("decisions")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "audit.driver must be sqlite or postgres")

	cfg.Audit = AuditConfig{Driver: "postgres", DatabaseURL: "postgres://localhost/fraud"}
	assert.NoError(t, cfg.Validate("decisions"))
}

func TestValidateBatchBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate("batch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 64")

	cfg.Batch.Concurrency = 65
	assert.Error(t, cfg.Validate("batch"))

	cfg.Batch.Concurrency = 64
	cfg.Batch.RatePerSec = -1
	err = cfg.Validate("batch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate_per_sec")

	cfg.Batch.RatePerSec = 10
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidateAggregate_IgnoresAgents(t *testing.T) {
	cfg := &Config{}
	assert.NoError(t, cfg.Validate("aggregate"))

	cfg.Ensemble.Weights = []float64{0, 0}
	assert.Error(t, cfg.Validate("aggregate"))
}

func TestValidateRetryBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Retry.MaxAttempts = 11
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry.max_attempts")
}

func TestValidateServe_MonitoringRequiresAudit(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring = MonitoringConfig{Enabled: true, FailureRateThreshold: 0.1}

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.enabled requires audit.driver")
}

func TestValidateServe_MonitoringThresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Audit = AuditConfig{Driver: "sqlite", DatabaseURL: "audit.db"}
	cfg.Monitoring = MonitoringConfig{
		Enabled:              true,
		WebhookURL:           "hooks.local/alert",
		FailureRateThreshold: 1.5,
	}

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.webhook_url must be an absolute URL")
	assert.Contains(t, err.Error(), "monitoring.failure_rate_threshold must be between 0 and 1")
}

func TestValidateServe_MonitoringValid(t *testing.T) {
	cfg := validDefaults()
	cfg.Audit = AuditConfig{Driver: "sqlite", DatabaseURL: "audit.db"}
	cfg.Monitoring = MonitoringConfig{
		Enabled:               true,
		WebhookURL:            "https://hooks.example.com/fraud",
		FailureRateThreshold:  0.1,
		DegradedRateThreshold: 0.2,
		HighRiskScore:         0.8,
		HighRiskRateThreshold: 0.05,
	}
	assert.NoError(t, cfg.Validate("serve"))
}
