// Package store persists an audit trail of fraud-check decisions. It is
// write-only from the request path: nothing read back from a store ever
// influences scoring.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fraud-ensemble/internal/model"
)

// ErrNotFound is returned when a decision id does not exist.
var ErrNotFound = eris.New("store: decision not found")

// DecisionStatus is the terminal state of one fraud check.
type DecisionStatus string

// Decision statuses.
const (
	StatusScored       DecisionStatus = "scored"
	StatusDegraded     DecisionStatus = "degraded"
	StatusAgentFailure DecisionStatus = "agent_failure"
	StatusInvalid      DecisionStatus = "invalid"
)

// Decision is one audited fraud check.
type Decision struct {
	ID            string               `json:"id" yaml:"id"`
	EventID       string               `json:"event_id,omitempty" yaml:"event_id,omitempty"`
	Status        DecisionStatus       `json:"status" yaml:"status"`
	FinalScore    *float64             `json:"final_score,omitempty" yaml:"final_score,omitempty"`
	AgentScores   map[string]float64   `json:"agent_scores,omitempty" yaml:"agent_scores,omitempty"`
	Contributions map[string]float64   `json:"contributions,omitempty" yaml:"contributions,omitempty"`
	Weights       []float64            `json:"weights,omitempty" yaml:"weights,omitempty"`
	Failures      []model.AgentFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Substituted   []string             `json:"substituted,omitempty" yaml:"substituted,omitempty"`
	Error         string               `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMS    int64                `json:"duration_ms" yaml:"duration_ms"`
	CreatedAt     time.Time            `json:"created_at" yaml:"created_at"`
}

// DecisionFilter specifies criteria for listing decisions.
type DecisionFilter struct {
	Status       DecisionStatus `json:"status,omitempty"`
	EventID      string         `json:"event_id,omitempty"`
	CreatedAfter time.Time      `json:"created_after,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Offset       int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for decision audits.
type Store interface {
	RecordDecision(ctx context.Context, d *Decision) error
	GetDecision(ctx context.Context, id string) (*Decision, error)
	ListDecisions(ctx context.Context, filter DecisionFilter) ([]Decision, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// details holds the structured parts of a decision stored as one JSON
// document.
type details struct {
	AgentScores   map[string]float64   `json:"agent_scores,omitempty"`
	Contributions map[string]float64   `json:"contributions,omitempty"`
	Weights       []float64            `json:"weights,omitempty"`
	Failures      []model.AgentFailure `json:"failures,omitempty"`
	Substituted   []string             `json:"substituted,omitempty"`
}

func detailsOf(d *Decision) details {
	return details{
		AgentScores:   d.AgentScores,
		Contributions: d.Contributions,
		Weights:       d.Weights,
		Failures:      d.Failures,
		Substituted:   d.Substituted,
	}
}

func (dt details) apply(d *Decision) {
	d.AgentScores = dt.AgentScores
	d.Contributions = dt.Contributions
	d.Weights = dt.Weights
	d.Failures = dt.Failures
	d.Substituted = dt.Substituted
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func prepare(d *Decision) error {
	if d == nil {
		return eris.New("store: nil decision")
	}
	if d.ID == "" {
		return eris.New("store: decision id is required")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return nil
}
