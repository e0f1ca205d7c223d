package serve

import "time"

// CloseReason records which trigger closed a batch.
type CloseReason string

const (
	// CloseSize: accumulated items reached max_batch_size.
	CloseSize CloseReason = "size"
	// CloseOverflow: the next request did not fit, so the batch closed early.
	CloseOverflow CloseReason = "overflow"
	// CloseTimeout: max_wait_time elapsed since the first member.
	CloseTimeout CloseReason = "timeout"
	// ClosePassthrough: batching is disabled, the request was dispatched alone.
	ClosePassthrough CloseReason = "passthrough"
	// CloseFlush: the aggregator was closed with the batch still open.
	CloseFlush CloseReason = "flush"
)

type member[I, R any] struct {
	req    *PendingRequest[I]
	future *Future[R]
}

// Batch groups the requests of one compute call. Members keep arrival
// order; membership is frozen once the batch is dispatched.
type Batch[I, R any] struct {
	ID        uint64
	CreatedAt time.Time
	Deadline  time.Time // formation deadline; zero for pass-through batches
	Reason    CloseReason
	ClosedAt  time.Time

	members        []member[I, R]
	size           int
	maxSize        int
	computeTimeout time.Duration
	timer          *time.Timer
}

func newBatch[I, R any](id uint64, cfg BatchConfig, now time.Time) *Batch[I, R] {
	b := &Batch[I, R]{
		ID:             id,
		CreatedAt:      now,
		maxSize:        cfg.MaxBatchSize,
		computeTimeout: cfg.ComputeTimeout,
	}
	if cfg.Batching() {
		b.Deadline = now.Add(cfg.MaxWaitTime)
	}
	return b
}

// Size returns the number of flattened items.
func (b *Batch[I, R]) Size() int {
	return b.size
}

// Len returns the number of member requests.
func (b *Batch[I, R]) Len() int {
	return len(b.members)
}

// slack is the time left before the formation deadline when the batch
// closed. Zero for pass-through batches and batches closed by the timer.
func (b *Batch[I, R]) slack() time.Duration {
	if b.Deadline.IsZero() || !b.ClosedAt.Before(b.Deadline) {
		return 0
	}
	return b.Deadline.Sub(b.ClosedAt)
}

// fits reports whether n more items may join. An empty batch takes any request.
func (b *Batch[I, R]) fits(n int) bool {
	return len(b.members) == 0 || b.size+n <= b.maxSize
}

func (b *Batch[I, R]) full() bool {
	return b.size >= b.maxSize
}

func (b *Batch[I, R]) add(m member[I, R]) {
	b.members = append(b.members, m)
	b.size += len(m.req.Items)
}

// flatten concatenates member items in member order.
func (b *Batch[I, R]) flatten() []I {
	items := make([]I, 0, b.size)
	for _, m := range b.members {
		items = append(items, m.req.Items...)
	}
	return items
}

// split hands each member its sub-range of results, walking members in the
// same order and with the same counts as flatten. len(results) must equal Size().
func (b *Batch[I, R]) split(results []R) {
	if results == nil {
		results = []R{}
	}
	offset := 0
	for _, m := range b.members {
		n := len(m.req.Items)
		m.future.resolve(results[offset:offset+n:offset+n], nil)
		offset += n
	}
}

// fail resolves every member with the same error.
func (b *Batch[I, R]) fail(err error) {
	for _, m := range b.members {
		m.future.resolve(nil, err)
	}
}
