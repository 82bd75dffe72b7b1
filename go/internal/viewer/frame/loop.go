package frame

import (
	"sync"
	"time"
)

// Loop re-runs a callback on every frame until stopped. At most one callback
// is scheduled at any time; Start tears down whatever was running before.
type Loop struct {
	sched Scheduler

	mu      sync.Mutex
	epoch   uint64
	running bool
	handle  Handle
}

// NewLoop creates a stopped loop on top of sched.
func NewLoop(sched Scheduler) *Loop {
	return &Loop{sched: sched}
}

// Start begins calling fn once per frame, replacing any previous callback.
func (l *Loop) Start(fn Callback) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()
	l.running = true
	l.scheduleLocked(l.epoch, fn)
}

// Stop cancels the scheduled callback. Calling Stop on a stopped loop is a
// no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

// Running reports whether a callback is scheduled.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) stopLocked() {
	l.epoch++
	l.running = false
	if l.handle != nil {
		l.handle.Cancel()
		l.handle = nil
	}
}

func (l *Loop) scheduleLocked(epoch uint64, fn Callback) {
	l.handle = l.sched.Request(func(now time.Time) {
		l.mu.Lock()
		if l.epoch != epoch || !l.running {
			l.mu.Unlock()
			return
		}
		l.handle = nil
		l.mu.Unlock()

		fn(now)

		l.mu.Lock()
		defer l.mu.Unlock()
		// fn may have stopped or restarted the loop
		if l.epoch == epoch && l.running && l.handle == nil {
			l.scheduleLocked(epoch, fn)
		}
	})
}
