package workload

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/batchserve/serve"
)

func testSpec() Spec {
	return Spec{Requests: 50, Concurrency: 8, ItemsMean: 3, ItemsStdDev: 2, ItemsMin: 0, ItemsMax: 6}
}

func TestGaussianSampler_StaysInBounds(t *testing.T) {
	// GIVEN a wide distribution clamped to [0, 6]
	s, err := NewGaussianSampler(3, 10, 0, 6)
	require.NoError(t, err)
	rng := serve.NewLockedSource(1)

	// WHEN sampled many times
	for i := 0; i < 1000; i++ {
		// THEN every value is within bounds
		if v := s.Sample(rng); v < 0 || v > 6 {
			t.Fatalf("sample %d out of [0, 6]", v)
		}
	}
}

func TestGaussianSampler_FixedWidth(t *testing.T) {
	s, err := NewGaussianSampler(100, 50, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Sample(serve.NewLockedSource(1)))
}

func TestNewGaussianSampler_InvalidBounds(t *testing.T) {
	_, err := NewGaussianSampler(1, 1, -1, 3)
	assert.Error(t, err)
	_, err = NewGaussianSampler(1, 1, 5, 3)
	assert.Error(t, err)
	_, err = NewGaussianSampler(1, -1, 0, 3)
	assert.Error(t, err)
}

func TestGenerator_ItemsAreConsecutive(t *testing.T) {
	// GIVEN a generator
	gen, err := NewGenerator(testSpec(), serve.NewLockedSource(5))
	require.NoError(t, err)

	// WHEN several requests are drawn
	next := 0
	for i := 0; i < 20; i++ {
		req := gen.Next()

		// THEN items continue the global sequence
		for _, item := range req.Items {
			if item != next {
				t.Fatalf("request %d: item %d, want %d", i, item, next)
			}
			next++
		}
		assert.NotEmpty(t, req.ID)
	}
}

func TestGenerator_SameSeed_SameLengths(t *testing.T) {
	g1, err := NewGenerator(testSpec(), serve.NewPartitionedRNG(serve.NewSeedKey(3)).ForSubsystem(serve.SubsystemWorkload))
	require.NoError(t, err)
	g2, err := NewGenerator(testSpec(), serve.NewPartitionedRNG(serve.NewSeedKey(3)).ForSubsystem(serve.SubsystemWorkload))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		assert.Equal(t, len(g1.Next().Items), len(g2.Next().Items), "request %d", i)
	}
}

func TestRun_CountsSuccessesAndFailures(t *testing.T) {
	// GIVEN a do function that fails every third request
	spec := testSpec()
	gen, err := NewGenerator(spec, serve.NewLockedSource(1))
	require.NoError(t, err)
	var calls, inflight, peak atomic.Int64
	do := func(_ context.Context, _ *serve.PendingRequest[int]) error {
		cur := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		if calls.Add(1)%3 == 0 {
			return errors.New("nope")
		}
		return nil
	}

	// WHEN the workload runs
	stats, err := Run(context.Background(), spec, gen, do)

	// THEN every request is accounted for
	require.NoError(t, err)
	assert.Equal(t, spec.Requests, stats.Sent)
	assert.Equal(t, spec.Requests/3, stats.Failed)
	assert.Equal(t, spec.Requests-spec.Requests/3, stats.Succeeded)

	// AND concurrency never exceeded the limit
	assert.LessOrEqual(t, peak.Load(), int64(spec.Concurrency))

	// AND latency percentiles are ordered
	assert.LessOrEqual(t, stats.Percentile(50), stats.Percentile(99))
	assert.Greater(t, stats.Throughput(), 0.0)
}

func TestRun_RatePacing(t *testing.T) {
	// GIVEN 10 requests at 200/s
	spec := testSpec()
	spec.Requests = 10
	spec.Rate = 200
	gen, err := NewGenerator(spec, serve.NewLockedSource(1))
	require.NoError(t, err)

	// WHEN run
	stats, err := Run(context.Background(), spec, gen, func(context.Context, *serve.PendingRequest[int]) error { return nil })

	// THEN arrivals were spread over at least ~9 intervals of 5ms
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.Elapsed, 40*time.Millisecond)
}

func TestRun_CancelledContext(t *testing.T) {
	spec := testSpec()
	spec.Rate = 1
	gen, err := NewGenerator(spec, serve.NewLockedSource(1))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	stats, err := Run(ctx, spec, gen, func(context.Context, *serve.PendingRequest[int]) error { return nil })

	assert.Error(t, err)
	require.NotNil(t, stats)
	assert.Less(t, stats.Sent, spec.Requests)
}

func TestSpec_Validate(t *testing.T) {
	assert.NoError(t, testSpec().Validate())

	s := testSpec()
	s.Requests = 0
	assert.Error(t, s.Validate())

	s = testSpec()
	s.Concurrency = 0
	assert.Error(t, s.Validate())

	s = testSpec()
	s.ItemsMax = -1
	assert.Error(t, s.Validate())
}

func TestStats_Percentile_Empty(t *testing.T) {
	var s Stats
	assert.Equal(t, time.Duration(0), s.Percentile(99))
	assert.Equal(t, 0.0, s.Throughput())
}
