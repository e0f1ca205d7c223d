// Package predict provides batch compute functions for replicas: an echo
// model for benchmarks and tests, a latency wrapper, and an HTTP client for
// an upstream model server.
package predict

import (
	"context"
	"time"

	"github.com/inference-sim/batchserve/serve"
)

// Echo returns each item as its own result.
func Echo[T any](_ context.Context, items []T) ([]T, error) {
	out := make([]T, len(items))
	copy(out, items)
	return out, nil
}

// WithLatency wraps compute so every call takes at least base plus perItem
// for each item. The delay is abandoned when ctx ends.
func WithLatency[I, R any](base, perItem time.Duration, compute serve.ComputeFunc[I, R]) serve.ComputeFunc[I, R] {
	return func(ctx context.Context, items []I) ([]R, error) {
		d := base + time.Duration(len(items))*perItem
		if d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return compute(ctx, items)
	}
}
