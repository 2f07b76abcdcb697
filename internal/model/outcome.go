package model

import (
	"fmt"
	"math"
	"sort"
)

// FailureReason classifies why an agent produced no usable score.
type FailureReason string

// Failure reasons reported per agent.
const (
	ReasonTimeout      FailureReason = "timeout"
	ReasonCanceled     FailureReason = "canceled"
	ReasonTransport    FailureReason = "transport"
	ReasonStatus       FailureReason = "status"
	ReasonMalformed    FailureReason = "malformed"
	ReasonMissingField FailureReason = "missing_field"
	ReasonOutOfRange   FailureReason = "out_of_range"
)

// ScoreOutcome is the per-agent result of one dispatch: either a score or a
// failure. The zero value is not meaningful; use Succeeded or Failed.
type ScoreOutcome struct {
	ok         bool
	score      float64
	reason     FailureReason
	detail     string
	statusCode int
}

// Succeeded returns a successful outcome carrying score.
func Succeeded(score float64) ScoreOutcome {
	return ScoreOutcome{ok: true, score: score}
}

// Failed returns a failed outcome.
func Failed(reason FailureReason, detail string) ScoreOutcome {
	return ScoreOutcome{reason: reason, detail: detail}
}

// FailedStatus returns a failed outcome for a non-success HTTP status.
func FailedStatus(code int, detail string) ScoreOutcome {
	return ScoreOutcome{reason: ReasonStatus, detail: detail, statusCode: code}
}

// OK reports whether the agent returned a score.
func (o ScoreOutcome) OK() bool { return o.ok }

// Score returns the score and true on success.
func (o ScoreOutcome) Score() (float64, bool) { return o.score, o.ok }

// Reason returns the failure reason, or "" on success.
func (o ScoreOutcome) Reason() FailureReason { return o.reason }

// Detail returns a human-readable failure description.
func (o ScoreOutcome) Detail() string { return o.detail }

// StatusCode returns the HTTP status of a status failure, or 0.
func (o ScoreOutcome) StatusCode() int { return o.statusCode }

// InRange reports whether a successful score is a finite value in [0,1].
func (o ScoreOutcome) InRange() bool {
	if !o.ok {
		return false
	}
	if math.IsNaN(o.score) || math.IsInf(o.score, 0) {
		return false
	}
	return o.score >= 0 && o.score <= 1
}

func (o ScoreOutcome) String() string {
	if o.ok {
		return fmt.Sprintf("success(%g)", o.score)
	}
	if o.detail == "" {
		return fmt.Sprintf("failure(%s)", o.reason)
	}
	return fmt.Sprintf("failure(%s: %s)", o.reason, o.detail)
}

// AgentFailure is the serializable form of a failed outcome.
type AgentFailure struct {
	AgentID    string        `json:"agent_id"`
	Reason     FailureReason `json:"reason"`
	Detail     string        `json:"detail,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
}

// Outcomes maps agent id to that agent's outcome for one request.
type Outcomes map[string]ScoreOutcome

// AllSucceeded reports whether every outcome is a success.
func (o Outcomes) AllSucceeded() bool {
	for _, out := range o {
		if !out.OK() {
			return false
		}
	}
	return true
}

// Failures returns the failed outcomes sorted by agent id.
func (o Outcomes) Failures() []AgentFailure {
	var out []AgentFailure
	for id, oc := range o {
		if oc.OK() {
			continue
		}
		out = append(out, AgentFailure{
			AgentID:    id,
			Reason:     oc.Reason(),
			Detail:     oc.Detail(),
			StatusCode: oc.StatusCode(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Scores returns the successful scores keyed by agent id.
func (o Outcomes) Scores() map[string]float64 {
	out := make(map[string]float64, len(o))
	for id, oc := range o {
		if s, ok := oc.Score(); ok {
			out[id] = s
		}
	}
	return out
}
