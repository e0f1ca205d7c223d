package reload

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/batchserve/serve"
	"github.com/inference-sim/batchserve/serve/internal/testutil"
)

func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give fsnotify time to register the directory watch.
	time.Sleep(50 * time.Millisecond)
}

// replaceFile saves content atomically, the way most editors do.
func replaceFile(t *testing.T, dir, name, content string) {
	t.Helper()
	tmp := testutil.WriteFile(t, dir, "."+name+".tmp", content)
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, name)))
}

func TestNewWatcher_LoadsInitialConfig(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "serving.yaml", "batching:\n  max_batch_size: 6\n")

	w, err := NewWatcher(path)

	require.NoError(t, err)
	assert.Equal(t, 6, w.Current().Batching.MaxBatchSize)
}

func TestNewWatcher_InvalidInitialConfig(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "serving.yaml", "batching:\n  max_batch_size: 0\n")

	_, err := NewWatcher(path)

	assert.ErrorIs(t, err, serve.ErrInvalidConfig)
}

func TestWatcher_AppliesValidEdit(t *testing.T) {
	// GIVEN a watched config file with a change callback
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "serving.yaml", "batching:\n  max_batch_size: 4\n")
	w, err := NewWatcher(path)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)
	changes := make(chan *serve.ServingConfig, 4)
	w.OnChange(func(cfg *serve.ServingConfig) { changes <- cfg })
	startWatcher(t, w)

	// WHEN the file is replaced with a new batch size
	replaceFile(t, dir, "serving.yaml", "batching:\n  max_batch_size: 12\n")

	// THEN the callback receives it and Current reflects it
	cfg, ok := testutil.WaitForChannel(changes, 2*time.Second)
	require.True(t, ok, "no reload observed")
	assert.Equal(t, 12, cfg.Batching.MaxBatchSize)
	assert.Equal(t, 12, w.Current().Batching.MaxBatchSize)
}

func TestWatcher_RejectsInvalidEdit(t *testing.T) {
	// GIVEN a watched config file
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "serving.yaml", "batching:\n  max_batch_size: 4\n")
	w, err := NewWatcher(path)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)
	var calls atomic.Int32
	w.OnChange(func(*serve.ServingConfig) { calls.Add(1) })
	startWatcher(t, w)

	// WHEN an invalid edit is saved
	replaceFile(t, dir, "serving.yaml", "batching:\n  max_batch_size: -2\n")
	time.Sleep(200 * time.Millisecond)

	// THEN the previous config stays and no callback ran
	assert.Equal(t, 4, w.Current().Batching.MaxBatchSize)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	// GIVEN a watched config in a shared directory
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "serving.yaml", "batching:\n  max_batch_size: 4\n")
	w, err := NewWatcher(path)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)
	var calls atomic.Int32
	w.OnChange(func(*serve.ServingConfig) { calls.Add(1) })
	startWatcher(t, w)

	// WHEN a sibling file changes
	testutil.WriteFile(t, dir, "other.yaml", "batching:\n  max_batch_size: 9\n")
	time.Sleep(200 * time.Millisecond)

	// THEN nothing is reloaded
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcher_InPlaceWrite(t *testing.T) {
	// GIVEN a watched config file
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "serving.yaml", "routing:\n  policy: uniform\n")
	w, err := NewWatcher(path)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)
	startWatcher(t, w)

	// WHEN the file is written in place
	testutil.WriteFile(t, dir, "serving.yaml", "routing:\n  policy: power_of_k\n  k: 3\n")

	// THEN the new policy is picked up
	require.Eventually(t, func() bool {
		return w.Current().Routing.Policy == serve.PolicyPowerOfK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, w.Current().Routing.K)
}

func TestWatcher_Reload_Direct(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "serving.yaml", "")
	w, err := NewWatcher(path)
	require.NoError(t, err)
	assert.Equal(t, serve.DefaultServingConfig(), *w.Current())

	testutil.WriteFile(t, dir, "serving.yaml", "replicas:\n  count: 3\n")
	require.NoError(t, w.Reload())
	assert.Equal(t, 3, w.Current().Replicas.Count)
}
