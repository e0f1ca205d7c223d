package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/batchserve/serve"
	"github.com/inference-sim/batchserve/serve/trace"
)

// RetryPolicy controls how a Dispatcher reacts to empty routing decisions.
type RetryPolicy struct {
	MaxAttempts    int           // total routing attempts, >= 1
	InitialBackoff time.Duration // wait after the first empty decision
	MaxBackoff     time.Duration // backoff doubles up to this cap
}

// DefaultRetryPolicy returns a short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
	}
}

// Dispatcher sends a request through router, picker and the chosen
// replica's aggregator.
type Dispatcher[I, R any] struct {
	pool     *Pool[I, R]
	router   *serve.Router
	picker   *serve.LeastLoadedPicker
	retry    RetryPolicy
	recorder *trace.Recorder
}

// NewDispatcher creates a Dispatcher over pool. recorder may be nil.
func NewDispatcher[I, R any](pool *Pool[I, R], router *serve.Router, retry RetryPolicy, recorder *trace.Recorder) *Dispatcher[I, R] {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Dispatcher[I, R]{
		pool:     pool,
		router:   router,
		picker:   serve.NewLeastLoadedPicker(pool),
		retry:    retry,
		recorder: recorder,
	}
}

// Dispatch submits req and waits for its results.
func (d *Dispatcher[I, R]) Dispatch(ctx context.Context, req *serve.PendingRequest[I]) ([]R, error) {
	f, err := d.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// Submit routes req to a replica and returns its future. Empty decisions
// (and replicas that closed between snapshot and submit) are retried with
// exponential backoff; past the retry budget it returns
// serve.ErrNoAvailableReplica.
func (d *Dispatcher[I, R]) Submit(ctx context.Context, req *serve.PendingRequest[I]) (*serve.Future[R], error) {
	backoff := d.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if f, ok := d.try(req, attempt); ok {
			return f, nil
		}
		if attempt >= d.retry.MaxAttempts {
			return nil, fmt.Errorf("%w: request %s after %d attempts", serve.ErrNoAvailableReplica, req.ID, attempt)
		}

		logrus.Debugf("request %s: no serviceable replica (attempt %d), backing off %s", req.ID, attempt, backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, d.retry.MaxBackoff)
	}
}

func (d *Dispatcher[I, R]) try(req *serve.PendingRequest[I], attempt int) (*serve.Future[R], bool) {
	decision := d.router.Choose(d.pool.Snapshot(), req.Route())
	replica, ok := d.picker.Pick(decision)

	record := trace.RoutingRecord{
		RequestID:  req.ID,
		Policy:     decision.Policy,
		Candidates: decision.IDs(),
		Reason:     decision.Reason,
		Attempt:    attempt,
	}
	if ok {
		record.ChosenInstance = replica.ID
	}
	d.recorder.RecordRouting(record)

	if !ok {
		return nil, false
	}
	h, ok := d.pool.Get(replica.ID)
	if !ok {
		return nil, false
	}
	f := h.Submit(req)
	if f.Resolved() {
		if _, err := f.Result(); errors.Is(err, serve.ErrAggregatorClosed) {
			return nil, false
		}
	}
	return f, true
}
