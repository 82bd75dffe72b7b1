package frame

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultResizeDebounce coalesces a drag-resize into a single re-render.
const DefaultResizeDebounce = 80 * time.Millisecond

// Debouncer runs the most recently triggered function once the triggers
// have been quiet for the wait period.
type Debouncer struct {
	clock clockwork.Clock
	wait  time.Duration

	mu    sync.Mutex
	timer clockwork.Timer
	seq   uint64
}

// NewDebouncer creates a debouncer. A non-positive wait uses
// DefaultResizeDebounce.
func NewDebouncer(clock clockwork.Clock, wait time.Duration) *Debouncer {
	if wait <= 0 {
		wait = DefaultResizeDebounce
	}
	return &Debouncer{clock: clock, wait: wait}
}

// Trigger (re)arms the debouncer with fn. Any previously armed function is
// dropped.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Replace the pending timer; the sequence check covers a callback that
	// already fired and is waiting on the lock.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(d.wait, func() {
		d.mu.Lock()
		if seq != d.seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Stop drops the pending function, if any, and reports whether one was
// pending.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	return true
}

// Pending reports whether a function is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
