package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fraud-ensemble/internal/config"
	"github.com/sells-group/fraud-ensemble/internal/ensemble"
)

var agentsFormat string

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show the configured scoring agents and their default weights",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch agentsFormat {
		case "table":
			formatAgentsTable(os.Stdout, cfg.Agents, cfg.Ensemble.Weights)
			return nil
		case "yaml":
			return formatAgentsYAML(os.Stdout, cfg.Agents)
		default:
			return eris.Errorf("agents: unknown format %q", agentsFormat)
		}
	},
}

func init() {
	agentsCmd.Flags().StringVar(&agentsFormat, "format", "table", "output format (table, yaml)")
	rootCmd.AddCommand(agentsCmd)
}

// formatAgentsTable writes one row per agent with the weight it receives
// when a request carries no weights.
func formatAgentsTable(out io.Writer, agents []config.AgentConfig, configured []float64) {
	weights := ensemble.DefaultWeights(len(agents), configured)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tURL\tSCORE_FIELD\tPAYLOAD\tTIMEOUT\tWEIGHT")
	for i, a := range agents {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dms\t%.4f\n",
			a.ID, a.Name, a.URL, a.ScoreField, a.Payload, a.TimeoutMS, weights[i])
	}
	_ = w.Flush()
}

func formatAgentsYAML(out io.Writer, agents []config.AgentConfig) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"agents": agents}); err != nil {
		return eris.Wrap(err, "agents: encode yaml")
	}
	return enc.Close()
}
