package serve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/batchserve/serve/trace"
)

// ComputeFunc is the batched model call. It must return exactly one result
// per input item, in input order.
type ComputeFunc[I, R any] func(ctx context.Context, items []I) ([]R, error)

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*aggregatorOptions)

type aggregatorOptions struct {
	name     string
	metrics  *Metrics
	recorder *trace.Recorder
}

// WithName labels logs, metrics and trace records (usually the replica ID).
func WithName(name string) AggregatorOption {
	return func(o *aggregatorOptions) { o.name = name }
}

// WithMetrics records batch metrics into m.
func WithMetrics(m *Metrics) AggregatorOption {
	return func(o *aggregatorOptions) { o.metrics = m }
}

// WithTraceRecorder records every dispatched batch into r.
func WithTraceRecorder(r *trace.Recorder) AggregatorOption {
	return func(o *aggregatorOptions) { o.recorder = r }
}

// Aggregator coalesces concurrently submitted requests into batches and
// calls the compute function once per batch.
//
// The open batch is the only shared mutable state and is guarded by mu:
// joining, opening and closing a batch all happen under it, so a request
// lands in exactly one batch and a batch is dispatched exactly once.
// Closed batches run on their own goroutines, in parallel.
type Aggregator[I, R any] struct {
	compute  ComputeFunc[I, R]
	name     string
	metrics  *Metrics
	recorder *trace.Recorder

	// ctx bounds compute calls; it outlives every caller context.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	cfg    BatchConfig
	open   *Batch[I, R]
	nextID uint64
	closed bool

	inflight sync.WaitGroup
}

// NewAggregator creates an Aggregator with the given bounds.
func NewAggregator[I, R any](cfg BatchConfig, compute ComputeFunc[I, R], opts ...AggregatorOption) (*Aggregator[I, R], error) {
	if compute == nil {
		return nil, fmt.Errorf("%w: nil compute function", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := aggregatorOptions{name: "default"}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Aggregator[I, R]{
		compute:  compute,
		name:     o.name,
		metrics:  o.metrics,
		recorder: o.recorder,
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
	}, nil
}

// Submit enqueues req and returns its Future. It never waits for the batch.
func (a *Aggregator[I, R]) Submit(req *PendingRequest[I]) *Future[R] {
	return a.SubmitNotify(req, nil)
}

// SubmitNotify is Submit with a completion callback. onResolve runs exactly
// once, on the goroutine that resolves the future, so it must not block.
func (a *Aggregator[I, R]) SubmitNotify(req *PendingRequest[I], onResolve func()) *Future[R] {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return failedFuture[R](ErrAggregatorClosed, onResolve)
	}
	a.metrics.observeRequest(a.name)

	m := member[I, R]{req: req, future: newFuture[R]()}
	m.future.onResolve = onResolve

	if !a.cfg.Batching() {
		b := a.newBatchLocked()
		b.add(m)
		a.dispatchLocked(b, ClosePassthrough)
		return m.future
	}

	if a.open != nil && !a.open.fits(len(req.Items)) {
		a.closeOpenLocked(CloseOverflow)
	}
	if a.open == nil {
		b := a.newBatchLocked()
		b.timer = time.AfterFunc(time.Until(b.Deadline), func() { a.expire(b) })
		a.open = b
	}

	b := a.open
	b.add(m)
	if b.full() {
		a.closeOpenLocked(CloseSize)
	}
	return m.future
}

// Do submits items as a new request and waits for its results.
func (a *Aggregator[I, R]) Do(ctx context.Context, items []I) ([]R, error) {
	return a.Submit(NewPendingRequest(items)).Wait(ctx)
}

// Reconfigure swaps the batching bounds. The open batch keeps the bounds it
// was formed with; later batches use cfg. An invalid cfg is rejected and
// the current bounds stay in force.
func (a *Aggregator[I, R]) Reconfigure(cfg BatchConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	old := a.cfg
	a.cfg = cfg
	a.mu.Unlock()

	logrus.WithField("replica", a.name).Infof("batching reconfigured: max_batch_size %d -> %d, max_wait_time %s -> %s",
		old.MaxBatchSize, cfg.MaxBatchSize, old.MaxWaitTime, cfg.MaxWaitTime)
	return nil
}

// Config returns the bounds applied to the next batch.
func (a *Aggregator[I, R]) Config() BatchConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Close dispatches the open batch, waits for every running compute call and
// rejects further submissions. Safe to call more than once.
func (a *Aggregator[I, R]) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.open != nil {
		a.closeOpenLocked(CloseFlush)
	}
	a.mu.Unlock()

	a.inflight.Wait()
	a.cancel()
}

// expire is the timer trigger. It is a no-op when the count trigger (or a
// flush) already closed b.
func (a *Aggregator[I, R]) expire(b *Batch[I, R]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open == b {
		a.closeOpenLocked(CloseTimeout)
	}
}

func (a *Aggregator[I, R]) newBatchLocked() *Batch[I, R] {
	a.nextID++
	return newBatch[I, R](a.nextID, a.cfg, time.Now())
}

func (a *Aggregator[I, R]) closeOpenLocked(reason CloseReason) {
	b := a.open
	a.open = nil
	if b.timer != nil {
		b.timer.Stop()
	}
	a.dispatchLocked(b, reason)
}

func (a *Aggregator[I, R]) dispatchLocked(b *Batch[I, R], reason CloseReason) {
	b.Reason = reason
	b.ClosedAt = time.Now()
	a.inflight.Add(1)
	go a.run(b)
}

// run computes one closed batch and resolves all of its members.
func (a *Aggregator[I, R]) run(b *Batch[I, R]) {
	defer a.inflight.Done()

	log := logrus.WithFields(logrus.Fields{"replica": a.name, "batch": b.ID})
	items := b.flatten()

	start := time.Now()
	var (
		results []R
		err     error
	)
	// A batch made only of zero-item requests has nothing to compute.
	if len(items) > 0 {
		results, err = a.call(b, items)
	}
	elapsed := time.Since(start)

	failure := ""
	switch {
	case err != nil:
		err = fmt.Errorf("%w: batch %d: %w", ErrComputeFailure, b.ID, err)
		failure = "compute"
		log.Warnf("compute failed for %d requests (%d items): %v", b.Len(), b.Size(), err)
	case len(results) != len(items):
		err = fmt.Errorf("%w: batch %d: compute returned %d results for %d items",
			ErrBatchContractViolation, b.ID, len(results), len(items))
		failure = "contract"
		log.Errorf("invariant breach: %v", err)
	}

	if err != nil {
		b.fail(err)
	} else {
		b.split(results)
	}

	log.Debugf("batch done: reason=%s members=%d items=%d wait=%s slack=%s compute=%s",
		b.Reason, b.Len(), b.Size(), b.ClosedAt.Sub(b.CreatedAt), b.slack(), elapsed)
	a.metrics.observeBatch(a.name, b.Reason, b.Len(), b.Size(), elapsed, failure)

	record := trace.BatchRecord{
		Replica:  a.name,
		BatchID:  b.ID,
		Members:  b.Len(),
		Items:    b.Size(),
		Reason:   string(b.Reason),
		Wait:     b.ClosedAt.Sub(b.CreatedAt),
		Slack:    b.slack(),
		Duration: elapsed,
	}
	if err != nil {
		record.Error = err.Error()
	}
	a.recorder.RecordBatch(record)
}

// call invokes compute, turning a panic into an error.
func (a *Aggregator[I, R]) call(b *Batch[I, R], items []I) (results []R, err error) {
	ctx := a.ctx
	if b.computeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.computeTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.compute(ctx, items)
}
