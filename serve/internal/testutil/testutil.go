// Package testutil provides shared test infrastructure for the serve
// packages: a recording compute function and small fixtures.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// ComputeSpy is an identity compute function that records every call.
// Set Gate to hold calls until the channel is closed; set Err to fail them.
type ComputeSpy[T any] struct {
	Gate  chan struct{}
	Err   error
	Delay time.Duration

	mu    sync.Mutex
	calls [][]T
}

// Compute records items and returns a copy of them.
func (s *ComputeSpy[T]) Compute(ctx context.Context, items []T) ([]T, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]T(nil), items...))
	s.mu.Unlock()

	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]T{}, items...), nil
}

// Calls returns the recorded batches in call order.
func (s *ComputeSpy[T]) Calls() [][]T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]T, len(s.calls))
	copy(out, s.calls)
	return out
}

// NumCalls returns how many times Compute ran.
func (s *ComputeSpy[T]) NumCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Ints returns n consecutive ints starting at start.
func Ints(start, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = start + i
	}
	return out
}

// WriteFile writes content to name inside dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// WaitForChannel returns the next value from ch, or false after timeout.
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}
