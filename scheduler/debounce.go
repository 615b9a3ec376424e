package scheduler

import (
	"sync"
	"time"
)

// debouncer coalesces bursts of requests into at most one call per
// interval, via cancel-and-replace: each request discards any pending
// timer and arms a new one, so the last request wins.
type debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	stopped  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

// Trigger schedules fn to run after the debounce interval, replacing any
// pending invocation.
func (d *debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, fn)
}

// Stop cancels any pending invocation and rejects further triggers
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
