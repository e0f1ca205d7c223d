package cluster

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/batchserve/serve"
)

var (
	// ErrReplicaExists is returned by Add for a duplicate ID.
	ErrReplicaExists = errors.New("replica already exists")
	// ErrUnknownReplica is returned for IDs not in the pool.
	ErrUnknownReplica = errors.New("unknown replica")
)

// Pool is a dynamic set of in-process replicas. It is the replica snapshot
// provider for routing and the LoadReader for picking.
type Pool[I, R any] struct {
	compute serve.ComputeFunc[I, R]
	opts    []serve.AggregatorOption

	mu         sync.RWMutex
	batching   serve.BatchConfig
	maxOngoing int
	replicas   map[string]*ReplicaHandle[I, R]
	order      []string // insertion order, keeps snapshots stable
}

// NewPool creates an empty pool. New replicas are built with the pool's
// current batching bounds; opts are applied to every replica aggregator.
func NewPool[I, R any](batching serve.BatchConfig, maxOngoing int, compute serve.ComputeFunc[I, R], opts ...serve.AggregatorOption) (*Pool[I, R], error) {
	if err := batching.Validate(); err != nil {
		return nil, err
	}
	return &Pool[I, R]{
		compute:    compute,
		opts:       opts,
		batching:   batching,
		maxOngoing: maxOngoing,
		replicas:   make(map[string]*ReplicaHandle[I, R]),
	}, nil
}

// Add creates and registers a replica.
func (p *Pool[I, R]) Add(id string) (*ReplicaHandle[I, R], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.replicas[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrReplicaExists, id)
	}
	h, err := NewReplicaHandle(id, p.batching, p.maxOngoing, p.compute, p.opts...)
	if err != nil {
		return nil, err
	}
	p.replicas[id] = h
	p.order = append(p.order, id)
	logrus.Debugf("replica %s added (%d total)", id, len(p.order))
	return h, nil
}

// Remove unregisters a replica, then flushes and waits for its in-flight
// batches. Requests already accepted by it still complete.
func (p *Pool[I, R]) Remove(id string) error {
	p.mu.Lock()
	h, ok := p.replicas[id]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownReplica, id)
	}
	delete(p.replicas, id)
	for i, rid := range p.order {
		if rid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	h.Close()
	logrus.Debugf("replica %s removed", id)
	return nil
}

// SetState changes a replica's admin state.
func (p *Pool[I, R]) SetState(id string, state serve.ReplicaState) error {
	h, ok := p.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReplica, id)
	}
	h.SetState(state)
	return nil
}

// Get returns the replica with the given ID.
func (p *Pool[I, R]) Get(id string) (*ReplicaHandle[I, R], bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.replicas[id]
	return h, ok
}

// Len returns the number of registered replicas.
func (p *Pool[I, R]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Snapshot returns a fresh, read-only view of every replica, in insertion order.
func (p *Pool[I, R]) Snapshot() []serve.Replica {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := make([]serve.Replica, 0, len(p.order))
	for _, id := range p.order {
		snap = append(snap, p.replicas[id].Snapshot())
	}
	return snap
}

// Load implements serve.LoadReader.
func (p *Pool[I, R]) Load(id string) (int, bool) {
	h, ok := p.Get(id)
	if !ok {
		return 0, false
	}
	return h.Load(), true
}

// Reconfigure applies batching bounds and the concurrency cap to every
// replica and to replicas added later. Invalid bounds change nothing.
func (p *Pool[I, R]) Reconfigure(batching serve.BatchConfig, maxOngoing int) error {
	if err := batching.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batching = batching
	p.maxOngoing = maxOngoing
	for _, id := range p.order {
		if err := p.replicas[id].Reconfigure(batching, maxOngoing); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and stops every replica.
func (p *Pool[I, R]) Close() {
	p.mu.Lock()
	handles := make([]*ReplicaHandle[I, R], 0, len(p.order))
	for _, id := range p.order {
		handles = append(handles, p.replicas[id])
	}
	p.replicas = make(map[string]*ReplicaHandle[I, R])
	p.order = nil
	p.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
}
