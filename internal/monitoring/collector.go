// Package monitoring watches audited decisions and raises webhook alerts
// when agent failures, degraded results or high-risk scores spike.
package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fraud-ensemble/internal/store"
)

const maxSnapshotDecisions = 10000

// Snapshot holds a point-in-time view of decision health.
type Snapshot struct {
	Total        int `json:"total"`
	Scored       int `json:"scored"`
	Degraded     int `json:"degraded"`
	AgentFailure int `json:"agent_failure"`
	Invalid      int `json:"invalid"`

	// Rates are relative to decisions that reached the agents, which
	// excludes invalid requests.
	FailureRate  float64 `json:"failure_rate"`
	DegradedRate float64 `json:"degraded_rate"`
	HighRisk     int     `json:"high_risk"`
	HighRiskRate float64 `json:"high_risk_rate"`

	AvgScore      float64        `json:"avg_score"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	AgentFailures map[string]int `json:"agent_failures,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Dispatched returns the number of decisions that reached the agents.
func (s *Snapshot) Dispatched() int {
	return s.Scored + s.Degraded + s.AgentFailure
}

// FailingAgents returns the agent ids with at least one failure, most
// failures first.
func (s *Snapshot) FailingAgents() []string {
	ids := make([]string, 0, len(s.AgentFailures))
	for id := range s.AgentFailures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if s.AgentFailures[ids[i]] != s.AgentFailures[ids[j]] {
			return s.AgentFailures[ids[i]] > s.AgentFailures[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// DecisionLister is the subset of store.Store the collector reads.
type DecisionLister interface {
	ListDecisions(ctx context.Context, filter store.DecisionFilter) ([]store.Decision, error)
}

// Collector builds snapshots from the audit store.
type Collector struct {
	decisions     DecisionLister
	highRiskScore float64
}

// NewCollector creates a collector. Scores at or above highRiskScore count
// as high risk.
func NewCollector(decisions DecisionLister, highRiskScore float64) *Collector {
	return &Collector{decisions: decisions, highRiskScore: highRiskScore}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{
		AgentFailures: make(map[string]int),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	decisions, err := c.decisions.ListDecisions(ctx, store.DecisionFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        maxSnapshotDecisions,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list decisions")
	}

	var totalScore, totalDuration float64
	var withScore int
	for _, d := range decisions {
		snap.Total++
		totalDuration += float64(d.DurationMS)
		switch d.Status {
		case store.StatusScored:
			snap.Scored++
		case store.StatusDegraded:
			snap.Degraded++
		case store.StatusAgentFailure:
			snap.AgentFailure++
		case store.StatusInvalid:
			snap.Invalid++
		}
		for _, f := range d.Failures {
			snap.AgentFailures[f.AgentID]++
		}
		if d.FinalScore != nil {
			withScore++
			totalScore += *d.FinalScore
			if *d.FinalScore >= c.highRiskScore {
				snap.HighRisk++
			}
		}
	}

	if n := snap.Dispatched(); n > 0 {
		snap.FailureRate = float64(snap.AgentFailure) / float64(n)
		snap.DegradedRate = float64(snap.Degraded) / float64(n)
	}
	if withScore > 0 {
		snap.AvgScore = totalScore / float64(withScore)
		snap.HighRiskRate = float64(snap.HighRisk) / float64(withScore)
	}
	if snap.Total > 0 {
		snap.AvgDurationMS = totalDuration / float64(snap.Total)
	}
	return snap, nil
}
