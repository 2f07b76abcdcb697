package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fraud-ensemble/internal/agentclient"
	"github.com/sells-group/fraud-ensemble/internal/api"
	"github.com/sells-group/fraud-ensemble/internal/model"
	"github.com/sells-group/fraud-ensemble/internal/orchestrator"
)

var scoreWeights []float64

var scoreCmd = &cobra.Command{
	Use:   "score [file]",
	Short: "Score one transaction from a JSON file or stdin",
	Long:  "Reads a transaction JSON document (from the given file, or stdin when the file is omitted or \"-\"), fans it out to every configured agent, and prints the ensemble result.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := readInput(args)
		if err != nil {
			return err
		}

		env, err := initScoring(ctx, cfg, "score", agentclient.New())
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := scoreTransaction(ctx, env.Orchestrator, raw, scoreWeights)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, res)
	},
}

func init() {
	scoreCmd.Flags().Float64SliceVar(&scoreWeights, "weights", nil, "override ensemble weights (comma-separated, one per agent)")
	rootCmd.AddCommand(scoreCmd)
}

// scoreTransaction validates raw against the transaction schema and runs
// one fraud check. Weights passed on the command line take precedence over
// weights in the document.
func scoreTransaction(ctx context.Context, scorer api.Scorer, raw []byte, weights []float64) (*orchestrator.Result, error) {
	req, err := model.DecodeFraudCheck(raw)
	if err != nil {
		return nil, err
	}
	if len(weights) == 0 {
		weights = req.Weights
	}
	return scorer.Handle(ctx, req.Transaction, orchestrator.WithWeights(weights))
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		raw, err := io.ReadAll(os.Stdin)
		return raw, eris.Wrap(err, "read stdin")
	}
	raw, err := os.ReadFile(args[0])
	return raw, eris.Wrapf(err, "read %s", args[0])
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
