package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/batchserve/serve"
)

// writeDefaultConfig encodes the default serving config as YAML, with the
// derived max_ongoing_requests filled in so the file states the effective cap.
func writeDefaultConfig(w io.Writer, maxBatchSize int) error {
	cfg := serve.DefaultServingConfig()
	if maxBatchSize > 0 {
		cfg.Batching.MaxBatchSize = maxBatchSize
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Replicas.MaxOngoingRequests = cfg.EffectiveMaxOngoingRequests()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

func newInitConfigCmd() *cobra.Command {
	var (
		output       string
		maxBatchSize int
	)
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a serving config file with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" || output == "-" {
				return writeDefaultConfig(cmd.OutOrStdout(), maxBatchSize)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := writeDefaultConfig(f, maxBatchSize); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving config saved to %s\n", output)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Run `batchserve serve --config %s --watch` to serve it.\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write (default stdout)")
	cmd.Flags().IntVar(&maxBatchSize, "max-batch-size", 0, "Max batch size to write (0 = default)")
	return cmd
}
