package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fraud-ensemble/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fraud-cli",
	Short: "Fraud-risk ensemble orchestrator",
	Long:  "Fans each transaction out to the configured scoring agents in parallel, normalizes the ensemble weights, and returns an explainable weighted fraud-risk score.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
