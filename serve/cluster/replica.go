// Package cluster provides the in-process replica pool.
//
// Each replica owns its own serve.Aggregator; the Dispatcher routes a
// request to one replica (router + picker) and submits it to that replica's
// aggregator.
package cluster

import (
	"sync/atomic"

	"github.com/inference-sim/batchserve/serve"
)

// ReplicaHandle wraps one replica's Aggregator with an admin state and an
// ongoing-request counter.
//
// Thread-safety: safe for concurrent use.
type ReplicaHandle[I, R any] struct {
	id  string
	agg *serve.Aggregator[I, R]

	state      atomic.Int32
	ongoing    atomic.Int64
	maxOngoing atomic.Int64 // 0 = unlimited
}

// NewReplicaHandle creates a replica with its own aggregator.
func NewReplicaHandle[I, R any](id string, cfg serve.BatchConfig, maxOngoing int, compute serve.ComputeFunc[I, R], opts ...serve.AggregatorOption) (*ReplicaHandle[I, R], error) {
	opts = append(append([]serve.AggregatorOption{}, opts...), serve.WithName(id))
	agg, err := serve.NewAggregator(cfg, compute, opts...)
	if err != nil {
		return nil, err
	}
	h := &ReplicaHandle[I, R]{id: id, agg: agg}
	h.maxOngoing.Store(int64(maxOngoing))
	return h, nil
}

// ID returns the replica identity.
func (h *ReplicaHandle[I, R]) ID() string {
	return h.id
}

// Submit hands req to the replica's aggregator. The request counts as
// ongoing until its future resolves, whether or not anyone still waits on it.
func (h *ReplicaHandle[I, R]) Submit(req *serve.PendingRequest[I]) *serve.Future[R] {
	h.ongoing.Add(1)
	return h.agg.SubmitNotify(req, h.release)
}

func (h *ReplicaHandle[I, R]) release() {
	h.ongoing.Add(-1)
}

// State returns the admin state.
func (h *ReplicaHandle[I, R]) State() serve.ReplicaState {
	return serve.ReplicaState(h.state.Load())
}

// SetState changes the admin state.
func (h *ReplicaHandle[I, R]) SetState(s serve.ReplicaState) {
	h.state.Store(int32(s))
}

// Load returns the number of ongoing requests.
func (h *ReplicaHandle[I, R]) Load() int {
	return int(h.ongoing.Load())
}

// Snapshot returns the routing view of the replica. A replica at its
// max_ongoing_requests cap is reported unavailable until work drains.
func (h *ReplicaHandle[I, R]) Snapshot() serve.Replica {
	load := h.Load()
	state := h.State()
	if limit := h.maxOngoing.Load(); state == serve.ReplicaAvailable && limit > 0 && int64(load) >= limit {
		state = serve.ReplicaUnavailable
	}
	return serve.Replica{ID: h.id, State: state, Load: load}
}

// Reconfigure applies new batching bounds and concurrency cap.
func (h *ReplicaHandle[I, R]) Reconfigure(cfg serve.BatchConfig, maxOngoing int) error {
	if err := h.agg.Reconfigure(cfg); err != nil {
		return err
	}
	h.maxOngoing.Store(int64(maxOngoing))
	return nil
}

// Aggregator exposes the underlying aggregator.
func (h *ReplicaHandle[I, R]) Aggregator() *serve.Aggregator[I, R] {
	return h.agg
}

// Close flushes and stops the aggregator.
func (h *ReplicaHandle[I, R]) Close() {
	h.agg.Close()
}
