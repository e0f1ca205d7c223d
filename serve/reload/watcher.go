// Package reload watches a serving config file and applies changes to a
// running server without restarting it.
package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/batchserve/serve"
)

// DefaultDebounce coalesces the burst of events editors emit for one save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher holds the current serving config for a file and re-reads it when
// the file changes. Invalid edits are logged and the previous config stays.
type Watcher struct {
	path     string
	debounce time.Duration

	mu        sync.RWMutex
	current   *serve.ServingConfig
	callbacks []func(*serve.ServingConfig)
}

// NewWatcher loads path and returns a watcher for it. The initial load must
// succeed.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := serve.LoadServingConfig(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, debounce: DefaultDebounce, current: cfg}, nil
}

// SetDebounce overrides DefaultDebounce. Call before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Current returns the last valid config.
func (w *Watcher) Current() *serve.ServingConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback run after each successful reload.
func (w *Watcher) OnChange(cb func(*serve.ServingConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Reload re-reads the file. On error the current config is unchanged.
func (w *Watcher) Reload() error {
	cfg, err := serve.LoadServingConfig(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = cfg
	callbacks := append([]func(*serve.ServingConfig){}, w.callbacks...)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	return nil
}

// Run watches the file until ctx ends. The parent directory is watched so
// that atomic rename-style saves are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	base := filepath.Base(w.path)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			if err := w.Reload(); err != nil {
				logrus.Warnf("config reload from %s rejected, keeping previous config: %v", w.path, err)
				continue
			}
			logrus.Infof("config reloaded from %s", w.path)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logrus.Warnf("file watcher error: %v", err)
		}
	}
}
