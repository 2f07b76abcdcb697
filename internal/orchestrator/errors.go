package orchestrator

import (
	"fmt"
	"strings"

	"github.com/sells-group/fraud-ensemble/internal/model"
)

// AgentFailureError is returned when one or more agents produced no usable
// score and the missing-agent policy is PolicyFail. Diagnostics carries the
// scores of the agents that did succeed.
type AgentFailureError struct {
	RequestID   string
	Agents      int
	Failures    []model.AgentFailure
	Diagnostics map[string]float64
}

func (e *AgentFailureError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s (%s)", f.AgentID, f.Reason)
	}
	return fmt.Sprintf("orchestrator: %d of %d agents failed: %s", len(e.Failures), e.Agents, strings.Join(parts, ", "))
}

// FailedAgents returns the ids of the failed agents in id order.
func (e *AgentFailureError) FailedAgents() []string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.AgentID
	}
	return ids
}
