// Package timer mirrors the room's server-authoritative stopwatch.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/deckcast/go/internal/viewer/frame"
)

// State is the stopwatch state as last reported by the server.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Snapshot is one timer_update from the server.
type Snapshot struct {
	Running bool
	// Accumulated is the elapsed time banked before the current run.
	Accumulated time.Duration
	// ServerStart is when the current run started, nil when stopped.
	ServerStart *time.Time
	// ServerNow is the server clock when the snapshot was sent. The zero
	// value means the server did not say.
	ServerNow time.Time
	// Received is when the snapshot reached this client. The zero value
	// means it is being applied as it arrives.
	Received time.Time
}

// Display shows the elapsed time.
type Display interface {
	ShowElapsed(d time.Duration)
}

// Controls says which timer buttons make sense in the current state.
type Controls struct {
	Start bool `json:"start"`
	Stop  bool `json:"stop"`
	Reset bool `json:"reset"`
}

// ControlsFor returns the available controls for s. A running timer can only
// be stopped; a stopped one can be started or reset.
func ControlsFor(s State) Controls {
	running := s == Running
	return Controls{Start: !running, Stop: running, Reset: !running}
}

// Format renders d as mm:ss.d with tenths of a second. Negative durations
// show as zero.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d.%d", ms/60000, (ms%60000)/1000, (ms%1000)/100)
}

// SyncedTimer projects the last snapshot onto the local clock and repaints
// the display every frame while running. The state only changes on Apply.
type SyncedTimer struct {
	clock   clockwork.Clock
	loop    *frame.Loop
	display Display

	mu        sync.Mutex
	state     State
	snap      Snapshot
	offset    time.Duration
	start     time.Time
	lastShown time.Duration
	closed    bool
}

// New creates a stopped timer showing zero.
func New(clock clockwork.Clock, frames frame.Scheduler, display Display) *SyncedTimer {
	return &SyncedTimer{
		clock:   clock,
		loop:    frame.NewLoop(frames),
		display: display,
	}
}

// Apply adopts a server snapshot. Running snapshots (re)start the display
// loop; stopped ones stop it and freeze the display at the accumulated time.
func (t *SyncedTimer) Apply(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	now := t.clock.Now()
	receipt := s.Received
	if receipt.IsZero() || receipt.After(now) {
		receipt = now
	}
	serverNow := s.ServerNow
	if serverNow.IsZero() {
		serverNow = receipt
	}
	if s.Accumulated < 0 {
		s.Accumulated = 0
	}

	wasRunning := t.state == Running
	t.snap = s
	t.offset = receipt.Sub(serverNow)

	log.Debug().
		Bool("running", s.Running).
		Dur("accumulated", s.Accumulated).
		Dur("offset", t.offset).
		Msg("timer snapshot")

	if !s.Running {
		t.state = Stopped
		t.loop.Stop()
		t.lastShown = s.Accumulated
		t.display.ShowElapsed(s.Accumulated)
		return
	}

	t.state = Running
	t.start = serverNow
	if s.ServerStart != nil {
		t.start = *s.ServerStart
	}
	if !wasRunning {
		t.lastShown = 0
	}
	t.showLocked(now)
	t.loop.Start(t.tick)
}

// Elapsed returns the value the display currently shows.
func (t *SyncedTimer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastShown
}

// State returns the last reported state.
func (t *SyncedTimer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Controls returns the controls available in the current state.
func (t *SyncedTimer) Controls() Controls {
	return ControlsFor(t.State())
}

// Close stops the display loop. Later snapshots are ignored.
func (t *SyncedTimer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.loop.Stop()
}

func (t *SyncedTimer) tick(time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running || t.closed {
		return
	}
	t.showLocked(t.clock.Now())
}

// showLocked clamps to the last shown value: the display never goes
// backwards while running, even when a fresh snapshot moves the offset.
func (t *SyncedTimer) showLocked(now time.Time) {
	run := now.Add(-t.offset).Sub(t.start)
	if run < 0 {
		run = 0
	}
	elapsed := t.snap.Accumulated + run
	if elapsed < t.lastShown {
		elapsed = t.lastShown
	}
	t.lastShown = elapsed
	t.display.ShowElapsed(elapsed)
}
