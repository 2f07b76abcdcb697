package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fraud-ensemble/internal/agentclient"
	"github.com/sells-group/fraud-ensemble/internal/api"
	"github.com/sells-group/fraud-ensemble/internal/config"
	"github.com/sells-group/fraud-ensemble/internal/monitoring"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fraud-check HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initScoring(ctx, cfg, "serve", agentclient.New())
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled && env.Store != nil {
			go newChecker(cfg, env.Store).Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      newAPIServer(cfg, env).Routes(),
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newAPIServer wires the orchestrator and, when auditing is on, the
// decision endpoints into the HTTP API.
func newAPIServer(c *config.Config, env *scoringEnv) *api.Server {
	opts := []api.Option{
		api.WithDefaultWeights(c.Ensemble.Weights),
		api.WithCORSOrigins(c.Server.CORSOrigins),
	}
	if env.Store != nil {
		opts = append(opts, api.WithDecisions(env.Store))
	}
	return api.NewServer(env.Orchestrator, opts...)
}

func newChecker(c *config.Config, decisions monitoring.DecisionLister) *monitoring.Checker {
	collector := monitoring.NewCollector(decisions, c.Monitoring.HighRiskScore)
	return monitoring.NewChecker(collector, monitoring.NewAlerter(c.Monitoring), c.Monitoring)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
