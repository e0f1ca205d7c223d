package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/batchserve/serve"
	"github.com/inference-sim/batchserve/serve/api"
	"github.com/inference-sim/batchserve/serve/predict"
	"github.com/inference-sim/batchserve/serve/reload"
)

type serveOptions struct {
	config          configFlags
	addr            string
	routePrefix     string
	watch           bool
	upstreamURL     string
	upstreamAPIKey  string
	upstreamTimeout time.Duration
	shutdownTimeout time.Duration
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve batched predictions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, &opts.config)
			if err != nil {
				return err
			}
			if opts.watch && opts.config.path == "" {
				return fmt.Errorf("--watch requires --config")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runServe(ctx, cfg, opts)
		},
	}
	addConfigFlags(cmd, &opts.config)
	cmd.Flags().StringVar(&opts.addr, "addr", ":8000", "HTTP listen address")
	cmd.Flags().StringVar(&opts.routePrefix, "route-prefix", "/predict", "Path of the prediction endpoint")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload batching and routing settings when the config file changes")
	cmd.Flags().StringVar(&opts.upstreamURL, "upstream-url", "", "Model server prediction URL (empty = echo model)")
	cmd.Flags().StringVar(&opts.upstreamAPIKey, "upstream-api-key", "", "Bearer token for the model server")
	cmd.Flags().DurationVar(&opts.upstreamTimeout, "upstream-timeout", time.Minute, "HTTP timeout for model server calls")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "Grace period for in-flight requests on shutdown")
	return cmd
}

func runServe(ctx context.Context, cfg *serve.ServingConfig, opts *serveOptions) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := serve.NewMetrics(reg)

	compute := serve.ComputeFunc[json.RawMessage, json.RawMessage](predict.Echo[json.RawMessage])
	if opts.upstreamURL != "" {
		compute = predict.NewHTTPPredictor(opts.upstreamURL, opts.upstreamAPIKey, opts.upstreamTimeout).Predict
		logrus.Infof("forwarding batches to %s", opts.upstreamURL)
	} else {
		logrus.Info("no upstream configured, serving the echo model")
	}

	rng := serve.NewPartitionedRNG(serve.NewSeedKey(opts.config.seed))
	stack, err := buildStack(cfg, rng, compute, metrics, nil)
	if err != nil {
		return err
	}
	defer stack.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if opts.watch {
		w, err := reload.NewWatcher(opts.config.path)
		if err != nil {
			return err
		}
		w.OnChange(stack.apply)
		g.Go(func() error { return w.Run(gctx) })
		logrus.Infof("watching %s for changes", opts.config.path)
	}

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           api.NewHandler(opts.routePrefix, stack.dispatcher, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logrus.Infof("listening on %s, predictions at POST %s", opts.addr, opts.routePrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
		defer cancel()
		logrus.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
