package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fraud-ensemble"

// Metrics holds the fraud check instruments.
type Metrics struct {
	Checks        metric.Int64Counter
	AgentFailures metric.Int64Counter
	CheckDuration metric.Float64Histogram
	FinalScore    metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global MeterProvider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Checks, err = meter.Int64Counter("fraud.checks",
		metric.WithDescription("Number of fraud checks by decision status"))
	if err != nil {
		return nil, err
	}

	m.AgentFailures, err = meter.Int64Counter("fraud.agent.failures",
		metric.WithDescription("Number of agent calls without a usable score"))
	if err != nil {
		return nil, err
	}

	m.CheckDuration, err = meter.Float64Histogram("fraud.check.duration_seconds",
		metric.WithDescription("Fraud check duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.FinalScore, err = meter.Float64Histogram("fraud.check.final_score",
		metric.WithDescription("Final ensemble risk score"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCheck counts one finished fraud check. score is recorded only for
// checks that produced one.
func (m *Metrics) RecordCheck(ctx context.Context, status string, d time.Duration, score *float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("decision.status", status))
	m.Checks.Add(ctx, 1, attrs)
	m.CheckDuration.Record(ctx, d.Seconds(), attrs)
	if score != nil {
		m.FinalScore.Record(ctx, *score)
	}
}

// RecordAgentFailure counts one failed agent.
func (m *Metrics) RecordAgentFailure(ctx context.Context, agentID, reason string) {
	if m == nil {
		return
	}
	m.AgentFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("agent.outcome", reason),
	))
}
