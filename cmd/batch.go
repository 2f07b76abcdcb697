package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/fraud-ensemble/internal/agentclient"
	"github.com/sells-group/fraud-ensemble/internal/api"
	"github.com/sells-group/fraud-ensemble/internal/model"
	"github.com/sells-group/fraud-ensemble/internal/orchestrator"
)

const maxBatchLine = 1 << 20

// Batch line statuses.
const (
	batchScored       = "scored"
	batchDegraded     = "degraded"
	batchInvalid      = "invalid"
	batchAgentFailure = "agent_failure"
	batchError        = "error"
)

var (
	batchInput       string
	batchOutput      string
	batchConcurrency int
	batchRate        float64
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Score a JSONL file of transactions",
	Long:  "Reads one transaction JSON document per line and writes one result line per input line, in input order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initScoring(ctx, cfg, "batch", agentclient.New())
		if err != nil {
			return err
		}
		defer env.Close()

		in := io.Reader(os.Stdin)
		if batchInput != "" && batchInput != "-" {
			f, err := os.Open(batchInput)
			if err != nil {
				return eris.Wrap(err, "open batch input")
			}
			defer f.Close() //nolint:errcheck
			in = f
		}

		out := io.Writer(os.Stdout)
		if batchOutput != "" && batchOutput != "-" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrap(err, "create batch output")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		opts := batchOptions{
			Concurrency: cfg.Batch.Concurrency,
			RatePerSec:  cfg.Batch.RatePerSec,
		}
		if batchConcurrency > 0 {
			opts.Concurrency = batchConcurrency
		}
		if batchRate > 0 {
			opts.RatePerSec = batchRate
		}

		_, err = processBatch(ctx, env.Orchestrator, in, out, opts)
		return err
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchInput, "input", "i", "", "JSONL input file (default stdin)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "JSONL output file (default stdout)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "transactions scored in parallel (default from config)")
	batchCmd.Flags().Float64Var(&batchRate, "rate", 0, "max transactions started per second (default from config, 0 = unlimited)")
	rootCmd.AddCommand(batchCmd)
}

type batchOptions struct {
	Concurrency int
	RatePerSec  float64
}

// batchLine is one output record.
type batchLine struct {
	Line         int                  `json:"line"`
	EventID      string               `json:"event_id,omitempty"`
	Status       string               `json:"status"`
	Result       *orchestrator.Result `json:"result,omitempty"`
	FailedAgents []string             `json:"failed_agents,omitempty"`
	Error        string               `json:"error,omitempty"`
}

type batchSummary struct {
	Total    int
	Scored   int
	Degraded int
	Failed   int
}

type batchInputLine struct {
	n   int
	raw []byte
}

// processBatch scores every non-blank line of in and writes the results to
// out in input order. A failing line never aborts the batch; only a
// canceled context or an I/O error does.
func processBatch(ctx context.Context, scorer api.Scorer, in io.Reader, out io.Writer, opts batchOptions) (batchSummary, error) {
	lines, err := readBatchLines(in)
	if err != nil {
		return batchSummary{}, err
	}
	if len(lines) == 0 {
		zap.L().Info("no transactions in batch input")
		return batchSummary{}, nil
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}

	zap.L().Info("processing batch",
		zap.Int("transactions", len(lines)),
		zap.Int("concurrency", concurrency),
		zap.Float64("rate_per_sec", opts.RatePerSec),
	)

	results := make([]batchLine, len(lines))
	var scored, degraded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, line := range lines {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = scoreLine(gctx, scorer, line)
			switch results[i].Status {
			case batchScored:
				scored.Add(1)
			case batchDegraded:
				degraded.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return batchSummary{}, eris.Wrap(err, "batch processing")
	}
	if err := ctx.Err(); err != nil {
		return batchSummary{}, eris.Wrap(err, "batch processing")
	}

	enc := json.NewEncoder(out)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return batchSummary{}, eris.Wrap(err, "write batch output")
		}
	}

	summary := batchSummary{
		Total:    len(lines),
		Scored:   int(scored.Load()),
		Degraded: int(degraded.Load()),
		Failed:   int(failed.Load()),
	}
	zap.L().Info("batch complete",
		zap.Int("total", summary.Total),
		zap.Int("scored", summary.Scored),
		zap.Int("degraded", summary.Degraded),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func readBatchLines(in io.Reader) ([]batchInputLine, error) {
	var lines []batchInputLine
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxBatchLine)
	n := 0
	for sc.Scan() {
		n++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		lines = append(lines, batchInputLine{n: n, raw: bytes.Clone(raw)})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read batch input")
	}
	return lines, nil
}

func scoreLine(ctx context.Context, scorer api.Scorer, line batchInputLine) batchLine {
	out := batchLine{Line: line.n}

	req, err := model.DecodeFraudCheck(line.raw)
	if err != nil {
		out.Status = batchInvalid
		out.Error = err.Error()
		return out
	}
	out.EventID = req.EventID

	res, err := scorer.Handle(ctx, req.Transaction, orchestrator.WithWeights(req.Weights))
	var afe *orchestrator.AgentFailureError
	switch {
	case err == nil:
		out.Result = res
		out.Status = batchScored
		if res.Degraded {
			out.Status = batchDegraded
		}
	case errors.As(err, &afe):
		out.Status = batchAgentFailure
		out.FailedAgents = afe.FailedAgents()
		out.Error = err.Error()
	case orchestrator.IsValidation(err):
		out.Status = batchInvalid
		out.Error = err.Error()
	default:
		out.Status = batchError
		out.Error = err.Error()
	}
	return out
}
