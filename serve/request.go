package serve

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PendingRequest is one inbound unit of work awaiting dispatch.
// Items may be empty; a zero-item request resolves to an empty result.
type PendingRequest[I any] struct {
	ID          string
	Items       []I
	ArrivalTime time.Time
}

// NewPendingRequest creates a PendingRequest with a fresh ID, stamped now.
func NewPendingRequest[I any](items []I) *PendingRequest[I] {
	return &PendingRequest[I]{
		ID:          uuid.NewString(),
		Items:       items,
		ArrivalTime: time.Now(),
	}
}

// Route returns the routing view of the request.
func (r *PendingRequest[I]) Route() RouteRequest {
	return RouteRequest{ID: r.ID, NumItems: len(r.Items), ArrivalTime: r.ArrivalTime}
}

// Future is the write-once completion slot of a PendingRequest.
// It is resolved exactly once, by the goroutine running the request's batch.
type Future[R any] struct {
	done      chan struct{}
	result    []R
	err       error
	onResolve func() // runs on the resolving goroutine after done is closed
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// failedFuture returns a Future that is already resolved with err.
func failedFuture[R any](err error, onResolve func()) *Future[R] {
	f := newFuture[R]()
	f.onResolve = onResolve
	f.resolve(nil, err)
	return f
}

// resolve must be called at most once; the caller (the batch runner) owns
// that guarantee since each member belongs to exactly one batch.
func (f *Future[R]) resolve(result []R, err error) {
	f.result = result
	f.err = err
	close(f.done)
	if f.onResolve != nil {
		f.onResolve()
	}
}

// Done is closed once the result is available.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether the result is available.
func (f *Future[R]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result blocks until the future resolves and returns its outcome.
func (f *Future[R]) Result() ([]R, error) {
	<-f.done
	return f.result, f.err
}

// Wait blocks until the result is available or ctx is done.
// Giving up on ctx does not withdraw the request from its batch.
func (f *Future[R]) Wait(ctx context.Context) ([]R, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
