// Package orchestrator runs one fraud check end to end: fan out to agents,
// apply the missing-agent policy, normalize weights, aggregate, and compose
// the explainable result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/sells-group/fraud-ensemble/internal/ensemble"
	"github.com/sells-group/fraud-ensemble/internal/model"
	"github.com/sells-group/fraud-ensemble/internal/store"
	"github.com/sells-group/fraud-ensemble/internal/telemetry"
)

// Policy decides what happens when an agent fails.
type Policy string

// Missing-agent policies.
const (
	// PolicyFail rejects the whole request when any agent fails.
	PolicyFail Policy = "fail"
	// PolicyNeutral substitutes NeutralScore for failed agents and flags
	// the result as degraded.
	PolicyNeutral Policy = "neutral"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyFail || p == PolicyNeutral
}

// Config controls scoring policy.
type Config struct {
	DefaultWeights     []float64
	MissingAgentPolicy Policy
	NeutralScore       float64
	RejectOutOfRange   bool
}

// DefaultConfig returns the fail-closed policy with range checking on.
func DefaultConfig() Config {
	return Config{
		MissingAgentPolicy: PolicyFail,
		RejectOutOfRange:   true,
	}
}

// Dispatcher fans a transaction out to agents and returns one outcome per
// spec keyed by agent id.
type Dispatcher interface {
	Dispatch(ctx context.Context, tx model.Transaction, specs []model.AgentSpec) (model.Outcomes, error)
}

// Recorder receives an audit record for every handled request.
type Recorder interface {
	RecordDecision(ctx context.Context, d *store.Decision) error
}

// Result is the response for a scored transaction.
type Result struct {
	RequestID      string                   `json:"request_id"`
	AgentScores    map[string]float64       `json:"agent_scores"`
	FinalRiskScore float64                  `json:"final_risk_score"`
	Explanation    *model.AggregationResult `json:"explanation"`
	Degraded       bool                     `json:"degraded"`
	Substituted    []string                 `json:"substituted,omitempty"`
	DurationMS     int64                    `json:"duration_ms"`
}

// Orchestrator scores transactions against a fixed agent set. It is safe
// for concurrent use; no state is carried between requests.
type Orchestrator struct {
	specs      []model.AgentSpec
	dispatcher Dispatcher
	cfg        Config
	recorder   Recorder
	metrics    *telemetry.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets the decision recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithMetrics records check counts and durations on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an Orchestrator for specs. The specs slice is copied.
func New(specs []model.AgentSpec, dispatcher Dispatcher, cfg Config, opts ...Option) (*Orchestrator, error) {
	if len(specs) == 0 {
		return nil, eris.New("orchestrator: no agents configured")
	}
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.ID == "" || seen[s.ID] {
			return nil, eris.Errorf("orchestrator: agent ids must be unique and non-empty, got %q", s.ID)
		}
		seen[s.ID] = true
	}
	if dispatcher == nil {
		return nil, eris.New("orchestrator: dispatcher is required")
	}
	if cfg.MissingAgentPolicy == "" {
		cfg.MissingAgentPolicy = PolicyFail
	}
	if !cfg.MissingAgentPolicy.Valid() {
		return nil, eris.Errorf("orchestrator: unknown missing agent policy %q", cfg.MissingAgentPolicy)
	}
	if len(cfg.DefaultWeights) > 0 {
		if _, err := ensemble.Normalize(cfg.DefaultWeights, len(specs), nil); err != nil {
			return nil, eris.Wrap(err, "orchestrator: default weights")
		}
	}

	o := &Orchestrator{
		specs:      append([]model.AgentSpec(nil), specs...),
		dispatcher: dispatcher,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Specs returns a copy of the configured agents.
func (o *Orchestrator) Specs() []model.AgentSpec {
	return append([]model.AgentSpec(nil), o.specs...)
}

// Config returns the scoring policy.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

type handleOptions struct {
	weights   []float64
	requestID string
}

// HandleOption adjusts one call to Handle.
type HandleOption func(*handleOptions)

// WithWeights overrides the default weights for one request.
func WithWeights(w []float64) HandleOption {
	return func(h *handleOptions) {
		h.weights = w
	}
}

// WithRequestID sets the request id instead of generating one.
func WithRequestID(id string) HandleOption {
	return func(h *handleOptions) {
		h.requestID = id
	}
}

// Handle scores tx. It returns *ensemble.ValidationError for bad weights,
// *AgentFailureError when agents failed under PolicyFail, and a plain error
// only for dispatch defects.
func (o *Orchestrator) Handle(ctx context.Context, tx model.Transaction, opts ...HandleOption) (*Result, error) {
	var ho handleOptions
	for _, opt := range opts {
		opt(&ho)
	}
	if ho.requestID == "" {
		ho.requestID = uuid.NewString()
	}

	start := time.Now()
	ctx, span := telemetry.StartCheckSpan(ctx, ho.requestID, len(o.specs))
	defer span.End()

	log := zap.L().With(
		zap.String("request_id", ho.requestID),
		zap.String("event_id", tx.EventID),
	)

	res, dec, err := o.handle(ctx, tx, ho)
	dec.ID = ho.requestID
	dec.EventID = tx.EventID
	dec.DurationMS = time.Since(start).Milliseconds()
	o.record(ctx, dec)
	o.metrics.RecordCheck(ctx, string(dec.Status), time.Since(start), dec.FinalScore)
	for _, f := range dec.Failures {
		o.metrics.RecordAgentFailure(ctx, f.AgentID, string(f.Reason))
	}

	span.SetAttributes(attribute.String("decision.status", string(dec.Status)))
	if err != nil {
		var afe *AgentFailureError
		if errors.As(err, &afe) {
			afe.RequestID = ho.requestID
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dec.Status))
		log.Warn("fraud check rejected",
			zap.String("status", string(dec.Status)),
			zap.Error(err),
		)
		return nil, err
	}

	res.RequestID = ho.requestID
	res.DurationMS = dec.DurationMS
	span.SetAttributes(attribute.Float64("decision.score", res.FinalRiskScore))
	log.Info("fraud check scored",
		zap.Float64("final_risk_score", res.FinalRiskScore),
		zap.Bool("degraded", res.Degraded),
		zap.Int64("duration_ms", res.DurationMS),
	)
	return res, nil
}

func (o *Orchestrator) handle(ctx context.Context, tx model.Transaction, ho handleOptions) (*Result, *store.Decision, error) {
	weights, err := ensemble.Normalize(ho.weights, len(o.specs), o.cfg.DefaultWeights)
	if err != nil {
		return nil, invalidDecision(err), err
	}

	outcomes, err := o.dispatcher.Dispatch(ctx, tx, o.specs)
	if err != nil {
		err = eris.Wrap(err, "orchestrator: dispatch")
		return nil, &store.Decision{Status: store.StatusAgentFailure, Error: err.Error()}, err
	}
	rejectUnusable(outcomes, o.cfg.RejectOutOfRange)
	for _, s := range o.specs {
		if _, ok := outcomes[s.ID]; !ok {
			outcomes[s.ID] = model.Failed(model.ReasonMalformed, "no outcome returned")
		}
	}

	failures := outcomes.Failures()
	if len(failures) > 0 && o.cfg.MissingAgentPolicy != PolicyNeutral {
		ferr := &AgentFailureError{
			Agents:      len(o.specs),
			Failures:    failures,
			Diagnostics: outcomes.Scores(),
		}
		return nil, &store.Decision{
			Status:      store.StatusAgentFailure,
			AgentScores: ferr.Diagnostics,
			Failures:    failures,
			Error:       ferr.Error(),
		}, ferr
	}

	scores := make([]model.AgentScore, len(o.specs))
	agentScores := make(map[string]float64, len(o.specs))
	var substituted []string
	for i, s := range o.specs {
		v, ok := outcomes[s.ID].Score()
		if !ok {
			v = o.cfg.NeutralScore
			substituted = append(substituted, s.ID)
		}
		scores[i] = model.AgentScore{AgentID: s.ID, Score: v}
		agentScores[s.ID] = v
	}

	agg, err := ensemble.Aggregate(scores, weights)
	if err != nil {
		return nil, invalidDecision(err), err
	}

	res := &Result{
		AgentScores:    agentScores,
		FinalRiskScore: agg.FinalScore,
		Explanation:    agg,
		Degraded:       len(substituted) > 0,
		Substituted:    substituted,
	}
	dec := &store.Decision{
		Status:        store.StatusScored,
		FinalScore:    &agg.FinalScore,
		AgentScores:   agentScores,
		Contributions: agg.Contributions,
		Weights:       agg.WeightsUsed,
	}
	if res.Degraded {
		dec.Status = store.StatusDegraded
		dec.Failures = failures
		dec.Substituted = substituted
	}
	return res, dec, nil
}

// rejectUnusable turns non-finite scores into out_of_range failures, and
// finite scores outside [0,1] as well when bounded is set.
func rejectUnusable(outcomes model.Outcomes, bounded bool) {
	for id, out := range outcomes {
		s, ok := out.Score()
		switch {
		case !ok:
		case math.IsNaN(s) || math.IsInf(s, 0):
			outcomes[id] = model.Failed(model.ReasonOutOfRange, fmt.Sprintf("score %g is not finite", s))
		case bounded && !out.InRange():
			outcomes[id] = model.Failed(model.ReasonOutOfRange, fmt.Sprintf("score %g outside [0,1]", s))
		}
	}
}

func invalidDecision(err error) *store.Decision {
	return &store.Decision{Status: store.StatusInvalid, Error: err.Error()}
}

func (o *Orchestrator) record(ctx context.Context, d *store.Decision) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordDecision(context.WithoutCancel(ctx), d); err != nil {
		zap.L().Error("orchestrator: record decision failed",
			zap.String("request_id", d.ID),
			zap.Error(err),
		)
	}
}

// IsValidation reports whether err is a weight or score validation failure.
func IsValidation(err error) bool {
	var ve *ensemble.ValidationError
	return errors.As(err, &ve)
}
