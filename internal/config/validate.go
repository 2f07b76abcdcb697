package config

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fraud-ensemble/internal/model"
)

// Validate checks that the configuration is usable for the given command
// mode: "serve", "score", "batch", "aggregate" or "decisions".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		errs = append(errs, c.validateAgents()...)
		errs = append(errs, c.validateEnsemble()...)
		errs = append(errs, c.validateAudit()...)
		errs = append(errs, c.validateMonitoring()...)
	case "score":
		errs = append(errs, c.validateAgents()...)
		errs = append(errs, c.validateEnsemble()...)
		errs = append(errs, c.validateAudit()...)
	case "batch":
		errs = append(errs, c.validateAgents()...)
		errs = append(errs, c.validateEnsemble()...)
		errs = append(errs, c.validateAudit()...)
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
			errs = append(errs, "batch.concurrency must be between 1 and 64")
		}
		if c.Batch.RatePerSec < 0 {
			errs = append(errs, "batch.rate_per_sec must be >= 0")
		}
	case "aggregate":
		if len(c.Ensemble.Weights) > 0 {
			errs = append(errs, validateWeights(c.Ensemble.Weights)...)
		}
	case "decisions":
		if c.Audit.Driver == "" || c.Audit.Driver == "none" {
			errs = append(errs, "audit.driver must be sqlite or postgres")
		}
		errs = append(errs, c.validateAudit()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Retry.MaxAttempts < 0 || c.Retry.MaxAttempts > 10 {
		errs = append(errs, "retry.max_attempts must be between 0 and 10")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateAgents() []string {
	if len(c.Agents) == 0 {
		return []string{"agents must not be empty"}
	}
	var errs []string
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if a.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, a.ID))
		}
		seen[a.ID] = true

		if u, err := url.Parse(a.URL); a.URL == "" || err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, prefix+".url must be an absolute URL")
		}
		if a.ScoreField == "" {
			errs = append(errs, prefix+".score_field is required")
		}
		if a.TimeoutMS <= 0 {
			errs = append(errs, prefix+".timeout_ms must be > 0")
		}
		if !model.PayloadKind(a.Payload).Valid() {
			errs = append(errs, fmt.Sprintf("%s.payload %q must be context, history or pattern", prefix, a.Payload))
		}
	}
	return errs
}

func (c *Config) validateEnsemble() []string {
	var errs []string
	e := c.Ensemble
	if len(e.Weights) > 0 {
		if len(e.Weights) != len(c.Agents) {
			errs = append(errs, fmt.Sprintf("ensemble.weights has %d entries for %d agents", len(e.Weights), len(c.Agents)))
		}
		errs = append(errs, validateWeights(e.Weights)...)
	}
	switch e.MissingAgentPolicy {
	case "", "fail", "neutral":
	default:
		errs = append(errs, fmt.Sprintf("ensemble.missing_agent_policy %q must be fail or neutral", e.MissingAgentPolicy))
	}
	if e.NeutralScore < 0 || e.NeutralScore > 1 {
		errs = append(errs, "ensemble.neutral_score must be between 0 and 1")
	}
	return errs
}

func validateWeights(w []float64) []string {
	var sum float64
	for _, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return []string{"ensemble.weights values must be finite and >= 0"}
		}
		sum += v
	}
	if sum == 0 {
		return []string{"ensemble.weights must not sum to zero"}
	}
	return nil
}

func (c *Config) validateMonitoring() []string {
	m := c.Monitoring
	if !m.Enabled {
		return nil
	}
	var errs []string
	if c.Audit.Driver == "" || c.Audit.Driver == "none" {
		errs = append(errs, "monitoring.enabled requires audit.driver sqlite or postgres")
	}
	if m.WebhookURL != "" {
		if u, err := url.Parse(m.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "monitoring.webhook_url must be an absolute URL")
		}
	}
	for name, v := range map[string]float64{
		"failure_rate_threshold":   m.FailureRateThreshold,
		"degraded_rate_threshold":  m.DegradedRateThreshold,
		"high_risk_score":          m.HighRiskScore,
		"high_risk_rate_threshold": m.HighRiskRateThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("monitoring.%s must be between 0 and 1", name))
		}
	}
	sort.Strings(errs)
	return errs
}

func (c *Config) validateAudit() []string {
	switch c.Audit.Driver {
	case "", "none":
		return nil
	case "sqlite", "postgres":
		if c.Audit.DatabaseURL == "" {
			return []string{"audit.database_url is required when audit.driver is set"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("audit.driver %q must be none, sqlite or postgres", c.Audit.Driver)}
	}
}
