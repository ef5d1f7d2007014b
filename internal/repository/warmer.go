package repository

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Warmer guards bulk cache warm-ups so each key runs once per process.
// Concurrent callers for the same key wait for the single run. A failed run
// may be retried.
type Warmer struct {
	mu    sync.Mutex
	done  map[string]bool
	group singleflight.Group
}

// NewWarmer returns an empty guard.
func NewWarmer() *Warmer {
	return &Warmer{done: make(map[string]bool)}
}

// Do runs fn for key unless it already completed. ran reports whether this
// call did the work.
func (w *Warmer) Do(key string, fn func() error) (ran bool, err error) {
	if w.Done(key) {
		return false, nil
	}
	v, err, shared := w.group.Do(key, func() (any, error) {
		if w.Done(key) {
			return false, nil
		}
		if err := fn(); err != nil {
			return false, err
		}
		w.mu.Lock()
		w.done[key] = true
		w.mu.Unlock()
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return !shared && v.(bool), nil
}

// Done reports whether key was warmed.
func (w *Warmer) Done(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done[key]
}
