package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fraud-ensemble/internal/agentclient"
	"github.com/sells-group/fraud-ensemble/internal/config"
	"github.com/sells-group/fraud-ensemble/internal/fanout"
	"github.com/sells-group/fraud-ensemble/internal/orchestrator"
	"github.com/sells-group/fraud-ensemble/internal/store"
	"github.com/sells-group/fraud-ensemble/internal/telemetry"
)

// scoringEnv holds the components shared by every scoring command.
type scoringEnv struct {
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store

	shutdownTelemetry telemetry.ShutdownFunc
}

// Close flushes telemetry and releases the audit store.
func (e *scoringEnv) Close() {
	if e.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.shutdownTelemetry(ctx); err != nil {
			zap.L().Warn("shutdown telemetry", zap.Error(err))
		}
	}
	if e.Store == nil {
		return
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close audit store", zap.Error(err))
	}
}

// initScoring validates c for mode and builds the orchestrator on top of
// the HTTP agent client. The audit store is opened only when configured.
func initScoring(ctx context.Context, c *config.Config, mode string, client agentclient.Client) (*scoringEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	env := &scoringEnv{Store: st}

	if c.Telemetry.Enabled {
		env.shutdownTelemetry = telemetry.Init(c.Telemetry.ServiceName)
	}
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init metrics")
	}

	coord := fanout.NewCoordinator(client, fanout.WithRetry(c.RetryPolicy()))

	opts := []orchestrator.Option{orchestrator.WithMetrics(metrics)}
	if st != nil {
		opts = append(opts, orchestrator.WithRecorder(st))
	}
	env.Orchestrator, err = orchestrator.New(c.AgentSpecs(), coord, orchestratorConfig(c), opts...)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init orchestrator")
	}

	zap.L().Info("orchestrator ready",
		zap.Int("agents", len(c.Agents)),
		zap.Float64s("weights", c.Ensemble.Weights),
		zap.String("missing_agent_policy", string(env.Orchestrator.Config().MissingAgentPolicy)),
		zap.String("audit_driver", c.Audit.Driver),
		zap.Bool("telemetry", c.Telemetry.Enabled),
	)
	return env, nil
}

// initStore opens the audit store. It returns nil when auditing is off.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Audit.Driver, c.Audit.DatabaseURL, &store.PoolConfig{
		MaxConns: c.Audit.MaxConns,
		MinConns: c.Audit.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init audit store")
	}
	return st, nil
}

func orchestratorConfig(c *config.Config) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.DefaultWeights = c.Ensemble.Weights
	if c.Ensemble.MissingAgentPolicy != "" {
		oc.MissingAgentPolicy = orchestrator.Policy(c.Ensemble.MissingAgentPolicy)
	}
	oc.NeutralScore = c.Ensemble.NeutralScore
	oc.RejectOutOfRange = c.Ensemble.RejectOutOfRange
	return oc
}
