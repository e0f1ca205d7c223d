package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/batchserve/serve"
	"github.com/inference-sim/batchserve/serve/cluster"
	"github.com/inference-sim/batchserve/serve/trace"
)

// servingStack is a replica pool with its router and dispatcher.
type servingStack[I, R any] struct {
	pool       *cluster.Pool[I, R]
	router     *serve.Router
	dispatcher *cluster.Dispatcher[I, R]
}

// buildStack creates cfg.Replicas.Count replicas named replica_0..N-1.
// metrics and recorder may be nil.
func buildStack[I, R any](cfg *serve.ServingConfig, rng *serve.PartitionedRNG, compute serve.ComputeFunc[I, R],
	metrics *serve.Metrics, recorder *trace.Recorder) (*servingStack[I, R], error) {

	pool, err := cluster.NewPool(cfg.Batching, cfg.EffectiveMaxOngoingRequests(), compute,
		serve.WithMetrics(metrics), serve.WithTraceRecorder(recorder))
	if err != nil {
		return nil, err
	}
	for i := 0; i < cfg.Replicas.Count; i++ {
		if _, err := pool.Add(serve.SubsystemReplica(i)); err != nil {
			pool.Close()
			return nil, fmt.Errorf("adding replica %d: %w", i, err)
		}
	}

	router, err := serve.NewRouter(cfg.Routing, rng.ForSubsystem(serve.SubsystemRouter), metrics)
	if err != nil {
		pool.Close()
		return nil, err
	}

	logrus.Infof("started %d replicas: max_batch_size=%d max_wait_time=%s max_ongoing_requests=%d routing=%s",
		cfg.Replicas.Count, cfg.Batching.MaxBatchSize, cfg.Batching.MaxWaitTime,
		cfg.EffectiveMaxOngoingRequests(), cfg.Routing.Policy)

	return &servingStack[I, R]{
		pool:       pool,
		router:     router,
		dispatcher: cluster.NewDispatcher(pool, router, cluster.DefaultRetryPolicy(), recorder),
	}, nil
}

// apply hot-swaps the reloadable parts of cfg. Replica count is fixed at
// startup.
func (s *servingStack[I, R]) apply(cfg *serve.ServingConfig) {
	if err := s.pool.Reconfigure(cfg.Batching, cfg.EffectiveMaxOngoingRequests()); err != nil {
		logrus.Warnf("batching reconfiguration rejected: %v", err)
	}
	if err := s.router.Reconfigure(cfg.Routing); err != nil {
		logrus.Warnf("routing reconfiguration rejected: %v", err)
	}
	if n := s.pool.Len(); cfg.Replicas.Count != n {
		logrus.Warnf("replicas.count changed to %d; restart to resize the pool (running %d)", cfg.Replicas.Count, n)
	}
}

func (s *servingStack[I, R]) close() {
	s.pool.Close()
}
