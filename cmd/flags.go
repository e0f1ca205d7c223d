package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/inference-sim/batchserve/serve"
)

// configFlags are the serving config flags shared by serve and bench.
// Explicitly set flags override the config file.
type configFlags struct {
	path               string
	maxBatchSize       int
	maxWaitTime        time.Duration
	computeTimeout     time.Duration
	routingPolicy      string
	k                  int
	replicas           int
	maxOngoingRequests int
	seed               int64
}

func addConfigFlags(cmd *cobra.Command, f *configFlags) {
	defaults := serve.DefaultServingConfig()
	cmd.Flags().StringVar(&f.path, "config", "", "Path to a serving config YAML file")
	cmd.Flags().IntVar(&f.maxBatchSize, "max-batch-size", defaults.Batching.MaxBatchSize, "Max flattened items per batch (1 disables batching)")
	cmd.Flags().DurationVar(&f.maxWaitTime, "max-wait-time", defaults.Batching.MaxWaitTime, "Max time a batch waits for more requests after its first")
	cmd.Flags().DurationVar(&f.computeTimeout, "compute-timeout", 0, "Bound on a single compute call (0 = none)")
	cmd.Flags().StringVar(&f.routingPolicy, "routing-policy", defaults.Routing.Policy, "Replica routing policy (uniform, power_of_k)")
	cmd.Flags().IntVar(&f.k, "k", defaults.Routing.K, "Candidates sampled by power_of_k")
	cmd.Flags().IntVar(&f.replicas, "replicas", defaults.Replicas.Count, "Number of in-process replicas")
	cmd.Flags().IntVar(&f.maxOngoingRequests, "max-ongoing-requests", 0, "Per-replica concurrency cap (0 = derived from max batch size)")
	cmd.Flags().Int64Var(&f.seed, "seed", 42, "Seed for routing and workload randomness")
}

// resolveConfig loads the config file (or the defaults) and applies the
// flags the user set explicitly.
func resolveConfig(cmd *cobra.Command, f *configFlags) (*serve.ServingConfig, error) {
	cfg := serve.DefaultServingConfig()
	if f.path != "" {
		loaded, err := serve.LoadServingConfig(f.path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("max-batch-size") {
		cfg.Batching.MaxBatchSize = f.maxBatchSize
	}
	if flags.Changed("max-wait-time") {
		cfg.Batching.MaxWaitTime = f.maxWaitTime
	}
	if flags.Changed("compute-timeout") {
		cfg.Batching.ComputeTimeout = f.computeTimeout
	}
	if flags.Changed("routing-policy") {
		cfg.Routing.Policy = f.routingPolicy
	}
	if flags.Changed("k") {
		cfg.Routing.K = f.k
	}
	if flags.Changed("replicas") {
		cfg.Replicas.Count = f.replicas
	}
	if flags.Changed("max-ongoing-requests") {
		cfg.Replicas.MaxOngoingRequests = f.maxOngoingRequests
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
