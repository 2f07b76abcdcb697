package model

import (
	"time"
)

// AgentSpec describes one scoring agent. Specs are built once from config
// and shared read-only across requests.
type AgentSpec struct {
	ID         string        `json:"id" yaml:"id"`
	Name       string        `json:"name,omitempty" yaml:"name,omitempty"`
	Endpoint   string        `json:"endpoint" yaml:"endpoint"`
	ScoreField string        `json:"score_field" yaml:"score_field"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	Payload    PayloadKind   `json:"payload" yaml:"payload"`
}

// AgentScore is one successful agent score in dispatch order.
type AgentScore struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// AgentIDs returns the ids of specs in order.
func AgentIDs(specs []AgentSpec) []string {
	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = s.ID
	}
	return ids
}

// MaxTimeout returns the largest per-agent timeout among specs.
func MaxTimeout(specs []AgentSpec) time.Duration {
	var max time.Duration
	for _, s := range specs {
		if s.Timeout > max {
			max = s.Timeout
		}
	}
	return max
}
