package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/batchserve/serve"
	"github.com/inference-sim/batchserve/serve/internal/testutil"
)

func newTestPool(t *testing.T, batching serve.BatchConfig, maxOngoing int, compute serve.ComputeFunc[int, int], ids ...string) *Pool[int, int] {
	t.Helper()
	pool, err := NewPool(batching, maxOngoing, compute)
	require.NoError(t, err)
	for _, id := range ids {
		_, err := pool.Add(id)
		require.NoError(t, err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func snapshotIDs(snap []serve.Replica) []string {
	ids := make([]string, len(snap))
	for i, r := range snap {
		ids[i] = r.ID
	}
	return ids
}

func TestPool_Membership(t *testing.T) {
	// GIVEN a pool with three replicas
	spy := &testutil.ComputeSpy[int]{}
	pool := newTestPool(t, serve.BatchConfig{MaxBatchSize: 1}, 0, spy.Compute, "a", "b", "c")

	// THEN snapshots list them in insertion order
	assert.Equal(t, []string{"a", "b", "c"}, snapshotIDs(pool.Snapshot()))
	assert.Equal(t, 3, pool.Len())

	// WHEN a duplicate is added
	_, err := pool.Add("b")
	assert.ErrorIs(t, err, ErrReplicaExists)

	// WHEN one is removed
	require.NoError(t, pool.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, snapshotIDs(pool.Snapshot()))
	_, ok := pool.Load("b")
	assert.False(t, ok)

	// AND unknown IDs are rejected
	assert.ErrorIs(t, pool.Remove("b"), ErrUnknownReplica)
	assert.ErrorIs(t, pool.SetState("zzz", serve.ReplicaDraining), ErrUnknownReplica)
}

func TestPool_SetState_ShowsInSnapshot(t *testing.T) {
	spy := &testutil.ComputeSpy[int]{}
	pool := newTestPool(t, serve.BatchConfig{MaxBatchSize: 1}, 0, spy.Compute, "a", "b")

	require.NoError(t, pool.SetState("a", serve.ReplicaDraining))

	snap := pool.Snapshot()
	assert.Equal(t, serve.ReplicaDraining, snap[0].State)
	assert.Equal(t, serve.ReplicaAvailable, snap[1].State)
}

func TestReplicaHandle_SaturatedReportsUnavailable(t *testing.T) {
	// GIVEN a replica capped at one ongoing request and a blocked model
	spy := &testutil.ComputeSpy[int]{Gate: make(chan struct{})}
	pool := newTestPool(t, serve.BatchConfig{MaxBatchSize: 1}, 1, spy.Compute, "a")
	h, ok := pool.Get("a")
	require.True(t, ok)

	// WHEN one request is in flight
	f := h.Submit(serve.NewPendingRequest([]int{1}))

	// THEN the replica is reported unavailable with load 1
	snap := pool.Snapshot()
	assert.Equal(t, serve.ReplicaUnavailable, snap[0].State)
	assert.Equal(t, 1, snap[0].Load)

	// WHEN the request completes
	close(spy.Gate)
	_, err := f.Result()
	require.NoError(t, err)

	// THEN it becomes available again
	require.Eventually(t, func() bool {
		return pool.Snapshot()[0].State == serve.ReplicaAvailable
	}, time.Second, time.Millisecond)
	load, ok := pool.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 0, load)
}

func TestReplicaHandle_LoadTracksCompletion(t *testing.T) {
	// GIVEN a batching replica with a held model
	spy := &testutil.ComputeSpy[int]{Gate: make(chan struct{})}
	pool := newTestPool(t, serve.BatchConfig{MaxBatchSize: 4, MaxWaitTime: time.Millisecond}, 0, spy.Compute, "a")
	h, ok := pool.Get("a")
	require.True(t, ok)

	// WHEN many requests are accepted
	const n = 40
	futures := make([]*serve.Future[int], n)
	for i := range futures {
		futures[i] = h.Submit(serve.NewPendingRequest([]int{i}))
	}

	// THEN every one counts as ongoing
	assert.Equal(t, n, h.Load())

	// WHEN the model releases them
	close(spy.Gate)
	for _, f := range futures {
		_, err := f.Result()
		require.NoError(t, err)
	}

	// THEN the load drains back to zero
	require.Eventually(t, func() bool { return h.Load() == 0 }, time.Second, time.Millisecond)
}

func TestPool_Reconfigure(t *testing.T) {
	// GIVEN a pool with two replicas
	spy := &testutil.ComputeSpy[int]{}
	pool := newTestPool(t, serve.BatchConfig{MaxBatchSize: 4, MaxWaitTime: time.Millisecond}, 5, spy.Compute, "a", "b")

	// WHEN the batch size changes
	require.NoError(t, pool.Reconfigure(serve.BatchConfig{MaxBatchSize: 8, MaxWaitTime: time.Millisecond}, 10))

	// THEN existing and new replicas use it
	_, err := pool.Add("c")
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		h, ok := pool.Get(id)
		require.True(t, ok)
		assert.Equal(t, 8, h.Aggregator().Config().MaxBatchSize, id)
	}

	// AND invalid bounds are rejected without changes
	err = pool.Reconfigure(serve.BatchConfig{MaxBatchSize: 0}, 10)
	assert.ErrorIs(t, err, serve.ErrInvalidConfig)
	h, _ := pool.Get("a")
	assert.Equal(t, 8, h.Aggregator().Config().MaxBatchSize)
}

func TestPool_Remove_CompletesAcceptedRequests(t *testing.T) {
	// GIVEN a request waiting in an open batch on replica a
	spy := &testutil.ComputeSpy[int]{}
	pool := newTestPool(t, serve.BatchConfig{MaxBatchSize: 10, MaxWaitTime: time.Hour}, 0, spy.Compute, "a")
	h, _ := pool.Get("a")
	f := h.Submit(serve.NewPendingRequest([]int{7}))

	// WHEN the replica is removed
	require.NoError(t, pool.Remove("a"))

	// THEN the accepted request is still computed
	got, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, []int{7}, got)
}
