package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inference-sim/batchserve/serve"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate CONFIG...",
		Short: "Check serving config files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				cfg, err := serve.LoadServingConfig(path)
				if err != nil {
					failed++
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (max_batch_size=%d, routing=%s, replicas=%d, max_ongoing_requests=%d)\n",
					path, cfg.Batching.MaxBatchSize, cfg.Routing.Policy, cfg.Replicas.Count, cfg.EffectiveMaxOngoingRequests())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d config files invalid", failed, len(args))
			}
			return nil
		},
	}
}
