// Package workload generates synthetic request streams for the bench command.
package workload

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/inference-sim/batchserve/serve"
)

// Spec describes a synthetic workload.
type Spec struct {
	Requests    int     // total requests to send
	Concurrency int     // max requests in flight
	Rate        float64 // arrivals per second; <= 0 means as fast as possible
	ItemsMean   float64
	ItemsStdDev float64
	ItemsMin    int
	ItemsMax    int
}

// Validate checks the workload parameters.
func (s Spec) Validate() error {
	if s.Requests < 1 {
		return fmt.Errorf("requests must be >= 1, got %d", s.Requests)
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", s.Concurrency)
	}
	if _, err := NewGaussianSampler(s.ItemsMean, s.ItemsStdDev, s.ItemsMin, s.ItemsMax); err != nil {
		return err
	}
	return nil
}

// Generator produces requests whose items are consecutive integers, so an
// identity compute function lets the caller check every result slot.
type Generator struct {
	lengths LengthSampler
	rng     NormSource
	next    atomic.Int64
}

// NewGenerator creates a Generator drawing item counts from rng.
func NewGenerator(spec Spec, rng NormSource) (*Generator, error) {
	lengths, err := NewGaussianSampler(spec.ItemsMean, spec.ItemsStdDev, spec.ItemsMin, spec.ItemsMax)
	if err != nil {
		return nil, err
	}
	return &Generator{lengths: lengths, rng: rng}, nil
}

// Next returns a new request. Safe for concurrent use.
func (g *Generator) Next() *serve.PendingRequest[int] {
	n := g.lengths.Sample(g.rng)
	start := int(g.next.Add(int64(n))) - n
	items := make([]int, n)
	for i := range items {
		items[i] = start + i
	}
	return serve.NewPendingRequest(items)
}

// Stats summarizes a workload run.
type Stats struct {
	Sent      int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
	latencies []time.Duration
}

// Throughput returns completed requests per second.
func (s *Stats) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Succeeded) / s.Elapsed.Seconds()
}

// Percentile returns the p-th latency percentile (0 < p <= 100) over
// successful requests, using nearest rank.
func (s *Stats) Percentile(p float64) time.Duration {
	if len(s.latencies) == 0 {
		return 0
	}
	rank := int(math.Ceil(p/100*float64(len(s.latencies)))) - 1
	rank = max(0, min(rank, len(s.latencies)-1))
	return s.latencies[rank]
}

// DoFunc sends one request; a non-nil error counts the request as failed.
type DoFunc func(ctx context.Context, req *serve.PendingRequest[int]) error

// Run sends spec.Requests requests from gen through do, paced by spec.Rate
// with at most spec.Concurrency in flight. Request failures are counted, not
// returned; Run only fails when ctx ends (or would end) before every request
// was sent.
func Run(ctx context.Context, spec Spec, gen *Generator, do DoFunc) (*Stats, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	limit := rate.Inf
	if spec.Rate > 0 {
		limit = rate.Limit(spec.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	var (
		mu    sync.Mutex
		stats = &Stats{latencies: make([]time.Duration, 0, spec.Requests)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(spec.Concurrency)

	var paceErr error
	start := time.Now()
	for i := 0; i < spec.Requests; i++ {
		if err := limiter.Wait(gctx); err != nil {
			paceErr = err
			break
		}
		req := gen.Next()
		g.Go(func() error {
			sent := time.Now()
			err := do(gctx, req)
			elapsed := time.Since(sent)

			mu.Lock()
			defer mu.Unlock()
			stats.Sent++
			if err != nil {
				stats.Failed++
				logrus.Debugf("request %s failed: %v", req.ID, err)
				return nil
			}
			stats.Succeeded++
			stats.latencies = append(stats.latencies, elapsed)
			return nil
		})
	}
	_ = g.Wait()
	stats.Elapsed = time.Since(start)
	sort.Slice(stats.latencies, func(i, j int) bool { return stats.latencies[i] < stats.latencies[j] })

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, paceErr
}
