// Package capture decides whether reference index updates are intercepted and
// queued or passed straight through to an immediate recompute.
//
// A Toggle is owned by the call chain (one per CLI invocation, request, or
// drain run) instead of living in package state, so tests and concurrent
// callers never observe each other's settings. Every consumer is captured
// until told otherwise.
package capture

import "sync"

// Consumer names a logical caller whose index updates may be captured.
type Consumer string

// Toggle holds per-consumer capture flags. The zero value is ready to use and
// captures every consumer.
type Toggle struct {
	mu      sync.RWMutex
	enabled map[Consumer]bool
}

// New returns a Toggle with every consumer captured.
func New() *Toggle {
	return &Toggle{}
}

// Set enables or disables capture for consumer.
func (t *Toggle) Set(consumer Consumer, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled == nil {
		t.enabled = make(map[Consumer]bool)
	}
	t.enabled[consumer] = enabled
}

// IsCaptured reports whether consumer's updates are queued. Unset consumers
// are captured. A nil Toggle captures everything.
func (t *Toggle) IsCaptured(consumer Consumer) bool {
	if t == nil {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	enabled, ok := t.enabled[consumer]
	return !ok || enabled
}

// Suspend disables capture for consumer and returns a func that restores the
// previous setting. Call the restore func on every exit path, typically via
// defer.
func (t *Toggle) Suspend(consumer Consumer) (restore func()) {
	t.mu.Lock()
	if t.enabled == nil {
		t.enabled = make(map[Consumer]bool)
	}
	previous, wasSet := t.enabled[consumer]
	t.enabled[consumer] = false
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if wasSet {
				t.enabled[consumer] = previous
				return
			}
			delete(t.enabled, consumer)
		})
	}
}
