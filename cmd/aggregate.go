package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fraud-ensemble/internal/ensemble"
	"github.com/sells-group/fraud-ensemble/internal/model"
)

var (
	aggScores  []float64
	aggWeights []float64
	aggAgents  []string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Combine agent scores offline with the weighted ensemble",
	Long:  "Normalizes the weights and prints the weighted score with its per-agent explanation. No agents are called.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("aggregate"); err != nil {
			return err
		}
		res, err := aggregateScores(aggScores, aggWeights, aggAgents, cfg.Ensemble.Weights)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, res)
	},
}

func init() {
	aggregateCmd.Flags().Float64SliceVar(&aggScores, "scores", nil, "agent scores in [0,1] (comma-separated)")
	aggregateCmd.Flags().Float64SliceVar(&aggWeights, "weights", nil, "weights, one per score (default from config)")
	aggregateCmd.Flags().StringSliceVar(&aggAgents, "agents", nil, "agent ids, one per score (default agent1..agentN)")
	_ = aggregateCmd.MarkFlagRequired("scores")
	rootCmd.AddCommand(aggregateCmd)
}

// aggregateScores normalizes weights and combines scores. Configured
// weights apply only when their length matches the number of scores.
func aggregateScores(scores, weights []float64, agents []string, configured []float64) (*model.AggregationResult, error) {
	if len(scores) == 0 {
		return nil, eris.New("aggregate: at least one score is required")
	}
	if len(agents) > 0 && len(agents) != len(scores) {
		return nil, eris.Errorf("aggregate: %d agents for %d scores", len(agents), len(scores))
	}

	as := make([]model.AgentScore, len(scores))
	for i, s := range scores {
		if s < 0 || s > 1 {
			return nil, eris.Errorf("aggregate: score %d is %v, want a value in [0,1]", i+1, s)
		}
		id := fmt.Sprintf("agent%d", i+1)
		if len(agents) > 0 {
			id = agents[i]
		}
		as[i] = model.AgentScore{AgentID: id, Score: s}
	}

	w, err := ensemble.Normalize(weights, len(scores), ensemble.DefaultWeights(len(scores), configured))
	if err != nil {
		return nil, err
	}
	return ensemble.Aggregate(as, w)
}
