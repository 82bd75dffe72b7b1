// Package frame schedules work on display-frame boundaries.
//
// A headless viewer has no compositor, so a "display frame" is a fixed tick
// driven by a clockwork.Clock. Everything that the browser would do in a
// requestAnimationFrame callback (timer repaint, pointer broadcast flush, the
// post-commit layout re-measure) goes through a Scheduler so that tests can
// step frames deterministically with Manual.
package frame

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultInterval approximates a 60Hz display.
const DefaultInterval = time.Second / 60

// Callback runs once on a frame boundary.
type Callback func(now time.Time)

// Handle cancels a requested frame callback. Cancel reports whether the
// callback was prevented from running.
type Handle interface {
	Cancel() bool
}

// Scheduler runs a callback on the next display frame.
type Scheduler interface {
	Request(fn Callback) Handle
}

// ClockScheduler ticks frames off a clock.
type ClockScheduler struct {
	clock    clockwork.Clock
	interval time.Duration
}

// NewClockScheduler creates a scheduler that fires callbacks one interval
// after they are requested. A non-positive interval uses DefaultInterval.
func NewClockScheduler(clock clockwork.Clock, interval time.Duration) *ClockScheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &ClockScheduler{clock: clock, interval: interval}
}

// Interval returns the frame period.
func (s *ClockScheduler) Interval() time.Duration {
	return s.interval
}

type clockHandle struct {
	timer    clockwork.Timer
	canceled atomic.Bool
}

func (h *clockHandle) Cancel() bool {
	if h.canceled.Swap(true) {
		return false
	}
	return h.timer.Stop()
}

// Request implements Scheduler.
func (s *ClockScheduler) Request(fn Callback) Handle {
	h := &clockHandle{}
	h.timer = s.clock.AfterFunc(s.interval, func() {
		if h.canceled.Load() {
			return
		}
		fn(s.clock.Now())
	})
	return h
}

// Manual is a Scheduler stepped explicitly with Tick. It backs deterministic
// replays and tests.
type Manual struct {
	mu    sync.Mutex
	queue []*manualEntry
}

type manualEntry struct {
	m        *Manual
	fn       Callback
	canceled bool
	taken    bool
}

func (e *manualEntry) Cancel() bool {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	if e.canceled || e.taken {
		return false
	}
	e.canceled = true
	return true
}

// NewManual returns an empty manual scheduler.
func NewManual() *Manual {
	return &Manual{}
}

// Request implements Scheduler.
func (m *Manual) Request(fn Callback) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &manualEntry{m: m, fn: fn}
	m.queue = append(m.queue, e)
	return e
}

// Tick runs every callback requested before the call. Callbacks requested
// while ticking wait for the next Tick. It returns how many callbacks ran.
func (m *Manual) Tick(now time.Time) int {
	m.mu.Lock()
	batch := m.queue
	m.queue = nil
	for _, e := range batch {
		if !e.canceled {
			e.taken = true
		}
	}
	m.mu.Unlock()

	ran := 0
	for _, e := range batch {
		if !e.taken {
			continue
		}
		e.fn(now)
		ran++
	}
	return ran
}

// Pending returns the number of live callbacks waiting for a tick.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.queue {
		if !e.canceled {
			n++
		}
	}
	return n
}

// Next blocks until the next frame boundary or until ctx is done.
func Next(ctx context.Context, s Scheduler) error {
	fired := make(chan struct{})
	h := s.Request(func(time.Time) { close(fired) })
	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		h.Cancel()
		return ctx.Err()
	}
}
