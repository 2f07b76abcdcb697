// Package fanout dispatches one transaction to every configured agent in
// parallel and joins on all of them.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fraud-ensemble/internal/agentclient"
	"github.com/sells-group/fraud-ensemble/internal/model"
	"github.com/sells-group/fraud-ensemble/internal/resilience"
)

// ErrNoAgents is returned when Dispatch is called without any agents.
var ErrNoAgents = eris.New("fanout: no agents configured")

// Coordinator fans a transaction out to agents. It holds no per-request
// state and is safe for concurrent use.
type Coordinator struct {
	client agentclient.Client
	retry  resilience.RetryConfig
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRetry sets the per-agent retry policy. Only transient outcomes are
// retried.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Coordinator) {
		c.retry = cfg
	}
}

// NewCoordinator creates a Coordinator that issues calls through client.
func NewCoordinator(client agentclient.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		client: client,
		retry:  resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deadline returns the outer bound for one dispatch round: the slowest
// agent's timeout for every attempt plus the worst-case backoff.
func (c *Coordinator) Deadline(specs []model.AgentSpec) time.Duration {
	maxTimeout := model.MaxTimeout(specs)
	if maxTimeout <= 0 {
		return 0
	}
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return maxTimeout*time.Duration(attempts) + resilience.BackoffBudget(c.retry)
}

// Dispatch calls every agent concurrently and waits for all of them. A
// failing agent never cancels its siblings. The returned map always holds
// exactly one outcome per spec, keyed by agent id.
func (c *Coordinator) Dispatch(ctx context.Context, tx model.Transaction, specs []model.AgentSpec) (model.Outcomes, error) {
	if len(specs) == 0 {
		return nil, ErrNoAgents
	}
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if seen[s.ID] {
			return nil, eris.Errorf("fanout: duplicate agent id %q", s.ID)
		}
		seen[s.ID] = true
	}

	if d := c.Deadline(specs); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var (
		mu       sync.Mutex
		outcomes = make(model.Outcomes, len(specs))
		g        errgroup.Group
	)
	record := func(id string, out model.ScoreOutcome) {
		mu.Lock()
		outcomes[id] = out
		mu.Unlock()
	}

	for _, spec := range specs {
		payload, err := tx.Project(spec.Payload)
		if err != nil {
			record(spec.ID, model.Failed(model.ReasonMalformed, err.Error()))
			continue
		}
		g.Go(func() error {
			record(spec.ID, c.call(ctx, spec, payload))
			return nil
		})
	}
	_ = g.Wait()

	if failures := outcomes.Failures(); len(failures) > 0 {
		zap.L().Info("fanout: agents failed",
			zap.Int("agents", len(specs)),
			zap.Int("failed", len(failures)),
		)
	}
	return outcomes, nil
}

func (c *Coordinator) call(ctx context.Context, spec model.AgentSpec, payload any) model.ScoreOutcome {
	cfg := c.retry
	cfg.ShouldRetry = resilience.IsTransient
	cfg.OnRetry = resilience.RetryLogger(spec.ID)

	out, _ := resilience.DoVal(ctx, cfg, func(ctx context.Context) (model.ScoreOutcome, error) {
		o := c.client.Call(ctx, spec, payload)
		return o, resilience.OutcomeError(o)
	})
	return out
}
