package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/batchserve/serve"
	"github.com/inference-sim/batchserve/serve/predict"
	"github.com/inference-sim/batchserve/serve/trace"
	"github.com/inference-sim/batchserve/serve/workload"
)

type benchOptions struct {
	config         configFlags
	workload       workload.Spec
	latency        time.Duration
	latencyPerItem time.Duration
	traceLevel     string
}

func newBenchCmd() *cobra.Command {
	opts := &benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive a synthetic workload through an in-process replica pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, &opts.config)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runBench(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}
	addConfigFlags(cmd, &opts.config)
	cmd.Flags().IntVar(&opts.workload.Requests, "requests", 1000, "Number of requests")
	cmd.Flags().IntVar(&opts.workload.Concurrency, "concurrency", 64, "Max requests in flight")
	cmd.Flags().Float64Var(&opts.workload.Rate, "rate", 0, "Requests arrival per second (0 = unpaced)")
	cmd.Flags().Float64Var(&opts.workload.ItemsMean, "items", 4, "Average items per request")
	cmd.Flags().Float64Var(&opts.workload.ItemsStdDev, "items-stdev", 2, "Stddev items per request")
	cmd.Flags().IntVar(&opts.workload.ItemsMin, "items-min", 0, "Min items per request")
	cmd.Flags().IntVar(&opts.workload.ItemsMax, "items-max", 16, "Max items per request")
	cmd.Flags().DurationVar(&opts.latency, "latency", 2*time.Millisecond, "Simulated compute latency per batch")
	cmd.Flags().DurationVar(&opts.latencyPerItem, "latency-per-item", 100*time.Microsecond, "Simulated compute latency per item")
	cmd.Flags().StringVar(&opts.traceLevel, "trace-level", string(trace.TraceLevelDecisions), "Decision trace level (none, decisions); none skips the batching and routing report")
	return cmd
}

func runBench(ctx context.Context, out io.Writer, cfg *serve.ServingConfig, opts *benchOptions) error {
	if !trace.IsValidTraceLevel(opts.traceLevel) {
		return fmt.Errorf("unknown trace level %q (valid: none, decisions)", opts.traceLevel)
	}
	rng := serve.NewPartitionedRNG(serve.NewSeedKey(opts.config.seed))
	gen, err := workload.NewGenerator(opts.workload, rng.ForSubsystem(serve.SubsystemWorkload))
	if err != nil {
		return err
	}

	recorder := trace.NewRecorder(trace.TraceLevel(opts.traceLevel))
	compute := predict.WithLatency(opts.latency, opts.latencyPerItem, predict.Echo[int])
	stack, err := buildStack(cfg, rng, compute, nil, recorder)
	if err != nil {
		return err
	}

	stats, runErr := workload.Run(ctx, opts.workload, gen, func(ctx context.Context, req *serve.PendingRequest[int]) error {
		results, err := stack.dispatcher.Dispatch(ctx, req)
		if err != nil {
			return err
		}
		return checkEcho(req.Items, results)
	})
	stack.close()
	if stats == nil {
		return runErr
	}

	var summary *trace.TraceSummary
	if recorder.Enabled() {
		summary = trace.Summarize(recorder)
	}
	printBenchReport(out, stats, summary)
	if runErr != nil {
		return runErr
	}
	if stats.Failed > 0 {
		logrus.Warnf("%d of %d requests failed", stats.Failed, stats.Sent)
	}
	return nil
}

// checkEcho verifies that every item came back in its own slot.
func checkEcho(items, results []int) error {
	if len(items) != len(results) {
		return fmt.Errorf("got %d results for %d items", len(results), len(items))
	}
	for i := range items {
		if items[i] != results[i] {
			return fmt.Errorf("result %d: got %d, want %d", i, results[i], items[i])
		}
	}
	return nil
}

func printBenchReport(out io.Writer, stats *workload.Stats, summary *trace.TraceSummary) {
	_, _ = fmt.Fprintln(out, "=== Bench Results ===")
	_, _ = fmt.Fprintf(out, "Requests: %d sent, %d succeeded, %d failed in %s (%.1f req/s)\n",
		stats.Sent, stats.Succeeded, stats.Failed, stats.Elapsed.Round(time.Millisecond), stats.Throughput())
	_, _ = fmt.Fprintf(out, "Latency: p50=%s p90=%s p99=%s\n",
		stats.Percentile(50), stats.Percentile(90), stats.Percentile(99))
	if summary == nil {
		return
	}

	_, _ = fmt.Fprintln(out, "=== Batching ===")
	_, _ = fmt.Fprintf(out, "Batches: %d (%d failed), items=%d, mean items=%.2f, mean requests=%.2f, max items=%d\n",
		summary.TotalBatches, summary.FailedBatches, summary.TotalItems,
		summary.MeanBatchItems, summary.MeanBatchMembers, summary.MaxBatchItems)
	for _, reason := range sortedKeys(summary.CloseReasons) {
		_, _ = fmt.Fprintf(out, "  closed by %-12s %d\n", reason+":", summary.CloseReasons[reason])
	}

	_, _ = fmt.Fprintln(out, "=== Routing ===")
	_, _ = fmt.Fprintf(out, "Decisions: %d (%d empty), targets=%d\n",
		summary.TotalDecisions, summary.EmptyDecisions, summary.UniqueTargets)
	for _, id := range sortedKeys(summary.TargetDistribution) {
		_, _ = fmt.Fprintf(out, "  %-12s %d\n", id+":", summary.TargetDistribution[id])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
