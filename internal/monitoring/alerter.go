package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fraud-ensemble/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertAgentFailureRate AlertType = "agent_failure_rate"
	AlertDegradedRate     AlertType = "degraded_rate"
	AlertHighRiskRate     AlertType = "high_risk_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Windows with fewer than MinDecisions dispatched decisions never alert.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	dispatched := snap.Dispatched()
	if dispatched == 0 || dispatched < a.cfg.MinDecisions {
		return nil
	}

	if a.cfg.FailureRateThreshold > 0 && snap.FailureRate > a.cfg.FailureRateThreshold {
		failing := snap.FailingAgents()
		alerts = append(alerts, Alert{
			Type:     AlertAgentFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Agent failure rate %.1f%% exceeds threshold %.1f%% (%d rejected / %d dispatched in last %dh; failing: %s)",
				snap.FailureRate*100, a.cfg.FailureRateThreshold*100,
				snap.AgentFailure, dispatched, snap.LookbackHours, strings.Join(failing, ", "),
			),
			Details: map[string]any{
				"failure_rate":   snap.FailureRate,
				"threshold":      a.cfg.FailureRateThreshold,
				"rejected":       snap.AgentFailure,
				"dispatched":     dispatched,
				"agent_failures": snap.AgentFailures,
			},
			Timestamp: now,
		})
	}

	if a.cfg.DegradedRateThreshold > 0 && snap.DegradedRate > a.cfg.DegradedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDegradedRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Degraded result rate %.1f%% exceeds threshold %.1f%% (%d / %d dispatched in last %dh)",
				snap.DegradedRate*100, a.cfg.DegradedRateThreshold*100,
				snap.Degraded, dispatched, snap.LookbackHours,
			),
			Details: map[string]any{
				"degraded_rate": snap.DegradedRate,
				"threshold":     a.cfg.DegradedRateThreshold,
				"degraded":      snap.Degraded,
				"dispatched":    dispatched,
			},
			Timestamp: now,
		})
	}

	if a.cfg.HighRiskRateThreshold > 0 && snap.HighRiskRate > a.cfg.HighRiskRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertHighRiskRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"High-risk rate %.1f%% (score >= %.2f) exceeds threshold %.1f%% in last %dh",
				snap.HighRiskRate*100, a.cfg.HighRiskScore, a.cfg.HighRiskRateThreshold*100, snap.LookbackHours,
			),
			Details: map[string]any{
				"high_risk_rate":  snap.HighRiskRate,
				"threshold":       a.cfg.HighRiskRateThreshold,
				"high_risk":       snap.HighRisk,
				"high_risk_score": a.cfg.HighRiskScore,
				"avg_score":       snap.AvgScore,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
