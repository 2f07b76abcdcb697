package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fraud-ensemble/internal/monitoring"
	"github.com/sells-group/fraud-ensemble/internal/store"
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Inspect audited fraud-check decisions",
	Long:  "Commands for listing and viewing the decisions recorded by the audit store.",
}

// -- decisions list --

var decisionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded decisions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("decisions"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		eventID, _ := cmd.Flags().GetString("event-id")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		format, _ := cmd.Flags().GetString("format")

		decisions, err := st.ListDecisions(ctx, store.DecisionFilter{
			Status:  store.DecisionStatus(status),
			EventID: eventID,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return eris.Wrap(err, "decisions list")
		}

		if len(decisions) == 0 && format == "table" {
			fmt.Fprintln(os.Stderr, "No decisions found.")
			return nil
		}
		return writeDecisions(os.Stdout, format, decisions)
	},
}

// -- decisions show --

var decisionsShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show full details of a decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("decisions"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		d, err := st.GetDecision(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "decisions show")
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "table" {
			format = "json"
		}
		return writeDecisions(os.Stdout, format, d)
	},
}

// -- decisions stats --

var decisionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show decision health over a lookback window and the alerts it would raise",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("decisions"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		send, _ := cmd.Flags().GetBool("send")

		mcfg := cfg.Monitoring
		mcfg.LookbackWindowHours = int(since.Hours())
		if mcfg.LookbackWindowHours < 1 {
			mcfg.LookbackWindowHours = 1
		}

		snap, err := monitoring.NewCollector(st, mcfg.HighRiskScore).Collect(ctx, mcfg.LookbackWindowHours)
		if err != nil {
			return eris.Wrap(err, "decisions stats")
		}
		alerter := monitoring.NewAlerter(mcfg)
		alerts := alerter.Evaluate(snap)

		formatDecisionStats(os.Stdout, snap, alerts)
		if send {
			alerter.SendAlerts(ctx, alerts)
		}
		return nil
	},
}

func init() {
	decisionsListCmd.Flags().String("status", "", "filter by status (scored, degraded, agent_failure, invalid)")
	decisionsListCmd.Flags().String("event-id", "", "filter by transaction event id")
	decisionsListCmd.Flags().Int("limit", 50, "max number of decisions to display")
	decisionsListCmd.Flags().Int("offset", 0, "number of decisions to skip")
	decisionsListCmd.Flags().String("format", "table", "output format (table, json, yaml)")

	decisionsShowCmd.Flags().String("format", "json", "output format (json, yaml)")

	decisionsStatsCmd.Flags().Duration("since", 24*time.Hour, "lookback window, rounded down to whole hours (e.g. 24h, 168h)")
	decisionsStatsCmd.Flags().Bool("send", false, "post triggered alerts to monitoring.webhook_url")

	decisionsCmd.AddCommand(decisionsListCmd)
	decisionsCmd.AddCommand(decisionsShowCmd)
	decisionsCmd.AddCommand(decisionsStatsCmd)
	rootCmd.AddCommand(decisionsCmd)
}

// writeDecisions renders v, either a decision list or a single decision.
func writeDecisions(out io.Writer, format string, v any) error {
	switch format {
	case "json":
		return writeJSON(out, v)
	case "yaml":
		if err := yaml.NewEncoder(out).Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return nil
	case "table":
		list, ok := v.([]store.Decision)
		if !ok {
			return eris.New("table format requires a decision list")
		}
		formatDecisionsList(out, list)
		return nil
	default:
		return eris.Errorf("unknown format %q", format)
	}
}

// formatDecisionsList writes a tabular list of decisions to w.
func formatDecisionsList(out io.Writer, decisions []store.Decision) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEVENT\tSTATUS\tSCORE\tFAILED\tDURATION\tCREATED")
	for _, d := range decisions {
		score := "-"
		if d.FinalScore != nil {
			score = fmt.Sprintf("%.4f", *d.FinalScore)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dms\t%s\n",
			d.ID,
			d.EventID,
			d.Status,
			score,
			failedAgents(d),
			d.DurationMS,
			d.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	_ = w.Flush()
}

func failedAgents(d store.Decision) string {
	if len(d.Failures) == 0 {
		return "-"
	}
	ids := make([]string, len(d.Failures))
	for i, f := range d.Failures {
		ids[i] = f.AgentID
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// formatDecisionStats writes a snapshot summary followed by any alerts.
func formatDecisionStats(out io.Writer, snap *monitoring.Snapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", snap.Total)
	_, _ = fmt.Fprintf(w, "Scored:\t%d\n", snap.Scored)
	_, _ = fmt.Fprintf(w, "Degraded:\t%d (%.1f%%)\n", snap.Degraded, snap.DegradedRate*100)
	_, _ = fmt.Fprintf(w, "Agent failure:\t%d (%.1f%%)\n", snap.AgentFailure, snap.FailureRate*100)
	_, _ = fmt.Fprintf(w, "Invalid:\t%d\n", snap.Invalid)
	_, _ = fmt.Fprintf(w, "High risk:\t%d (%.1f%%)\n", snap.HighRisk, snap.HighRiskRate*100)
	_, _ = fmt.Fprintf(w, "Avg score:\t%.4f\n", snap.AvgScore)
	_, _ = fmt.Fprintf(w, "Avg duration:\t%.0fms\n", snap.AvgDurationMS)
	for _, id := range snap.FailingAgents() {
		_, _ = fmt.Fprintf(w, "Failures %s:\t%d\n", id, snap.AgentFailures[id])
	}
	_ = w.Flush()

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo alerts.")
		return
	}
	_, _ = fmt.Fprintln(out, "\nAlerts:")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "  [%s] %s: %s\n", a.Severity, a.Type, a.Message)
	}
}
