package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fraud-ensemble/internal/config"
)

func thresholds() config.MonitoringConfig {
	return config.MonitoringConfig{
		MinDecisions:          5,
		FailureRateThreshold:  0.10,
		DegradedRateThreshold: 0.20,
		HighRiskScore:         0.8,
		HighRiskRateThreshold: 0.05,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	snap := &Snapshot{
		Total:         100,
		Scored:        95,
		AgentFailure:  5,
		FailureRate:   0.05,
		HighRiskRate:  0.01,
		LookbackHours: 24,
	}
	assert.Empty(t, NewAlerter(thresholds()).Evaluate(snap))
}

func TestAlerter_Evaluate_AgentFailureRate(t *testing.T) {
	snap := &Snapshot{
		Total:         20,
		Scored:        12,
		AgentFailure:  8,
		FailureRate:   0.4,
		AgentFailures: map[string]int{"agent2": 8, "agent3": 1},
		LookbackHours: 24,
	}

	alerts := NewAlerter(thresholds()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertAgentFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Contains(t, alerts[0].Message, "failing: agent2, agent3")
}

func TestAlerter_Evaluate_DegradedAndHighRisk(t *testing.T) {
	snap := &Snapshot{
		Total:         10,
		Scored:        7,
		Degraded:      3,
		DegradedRate:  0.3,
		HighRisk:      2,
		HighRiskRate:  0.2,
		LookbackHours: 1,
	}

	alerts := NewAlerter(thresholds()).Evaluate(snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertDegradedRate, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Equal(t, AlertHighRiskRate, alerts[1].Type)
	assert.Contains(t, alerts[1].Message, "score >= 0.80")
}

func TestAlerter_Evaluate_BelowMinDecisions(t *testing.T) {
	snap := &Snapshot{Total: 3, Scored: 1, AgentFailure: 2, FailureRate: 0.66}
	assert.Empty(t, NewAlerter(thresholds()).Evaluate(snap))
}

func TestAlerter_Evaluate_ZeroThresholdDisablesCheck(t *testing.T) {
	cfg := thresholds()
	cfg.FailureRateThreshold = 0
	snap := &Snapshot{Total: 10, Scored: 5, AgentFailure: 5, FailureRate: 0.5}
	assert.Empty(t, NewAlerter(cfg).Evaluate(snap))
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	var last Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&last))
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := thresholds()
	cfg.WebhookURL = srv.URL
	sent := NewAlerter(cfg).SendAlerts(context.Background(), []Alert{
		{Type: AlertAgentFailureRate, Severity: "high", Message: "agents down"},
	})

	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, AlertAgentFailureRate, last.Type)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := thresholds()
	cfg.WebhookURL = srv.URL
	sent := NewAlerter(cfg).SendAlerts(context.Background(), []Alert{{Type: AlertDegradedRate}})
	assert.Zero(t, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	assert.Zero(t, NewAlerter(thresholds()).SendAlerts(context.Background(), []Alert{{Type: AlertDegradedRate}}))
}
