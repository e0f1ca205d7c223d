package serve

import (
	"fmt"
	"math"
	"time"
)

// BatchConfig groups the batching bounds of one Aggregator.
type BatchConfig struct {
	MaxBatchSize   int           `yaml:"max_batch_size"`  // flattened items per batch; 1 disables batching
	MaxWaitTime    time.Duration `yaml:"max_wait_time"`   // wait after the first member; ignored when MaxBatchSize == 1
	ComputeTimeout time.Duration `yaml:"compute_timeout"` // bound on a single compute call; 0 = none
}

// Batching reports whether requests are coalesced at all.
func (c BatchConfig) Batching() bool {
	return c.MaxBatchSize > 1
}

// Validate checks the bounds.
func (c BatchConfig) Validate() error {
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("%w: max_batch_size must be >= 1, got %d", ErrInvalidConfig, c.MaxBatchSize)
	}
	if c.MaxWaitTime < 0 {
		return fmt.Errorf("%w: max_wait_time must be non-negative, got %s", ErrInvalidConfig, c.MaxWaitTime)
	}
	if c.ComputeTimeout < 0 {
		return fmt.Errorf("%w: compute_timeout must be non-negative, got %s", ErrInvalidConfig, c.ComputeTimeout)
	}
	return nil
}

// RoutingConfig selects the replica routing policy.
type RoutingConfig struct {
	Policy string `yaml:"policy"` // "uniform" or "power_of_k"
	K      int    `yaml:"k"`      // candidates sampled by power_of_k
}

// Validate checks the policy name and K.
func (c RoutingConfig) Validate() error {
	if !IsValidRoutingPolicy(c.Policy) {
		return fmt.Errorf("%w: unknown routing policy %q (valid: %v)", ErrInvalidConfig, c.Policy, ValidRoutingPolicyNames())
	}
	if c.K < 1 {
		return fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidConfig, c.K)
	}
	return nil
}

// ReplicaConfig sizes the in-process replica pool.
type ReplicaConfig struct {
	Count              int `yaml:"count"`
	MaxOngoingRequests int `yaml:"max_ongoing_requests"` // 0 = derived from max_batch_size
}

// Validate checks the pool size.
func (c ReplicaConfig) Validate() error {
	if c.Count < 1 {
		return fmt.Errorf("%w: replicas.count must be >= 1, got %d", ErrInvalidConfig, c.Count)
	}
	if c.MaxOngoingRequests < 0 {
		return fmt.Errorf("%w: replicas.max_ongoing_requests must be non-negative, got %d", ErrInvalidConfig, c.MaxOngoingRequests)
	}
	return nil
}

// MaxOngoingRequests derives the per-replica concurrency cap from the batch
// size: the target is one full batch (two requests when batching is off) and
// the cap leaves 20% headroom above it, at least one extra request.
func MaxOngoingRequests(maxBatchSize int) int {
	target := 2
	if maxBatchSize > 1 {
		target = maxBatchSize
	}
	return max(int(math.Round(float64(target)*1.2)), target+1)
}
