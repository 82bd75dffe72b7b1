package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/deckcast/go/internal/viewer/frame"
)

type recordingDisplay struct {
	mu     sync.Mutex
	values []time.Duration
}

func (d *recordingDisplay) ShowElapsed(v time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values = append(d.values, v)
}

func (d *recordingDisplay) last() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.values[len(d.values)-1]
}

func (d *recordingDisplay) all() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.values...)
}

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestTimer() (*SyncedTimer, *clockwork.FakeClock, *frame.Manual, *recordingDisplay) {
	clock := clockwork.NewFakeClockAt(epoch)
	frames := frame.NewManual()
	display := &recordingDisplay{}
	return New(clock, frames, display), clock, frames, display
}

func TestRunningSnapshotProjects(t *testing.T) {
	timer, clock, frames, display := newTestTimer()
	start := epoch

	timer.Apply(Snapshot{
		Running:     true,
		Accumulated: 5000 * time.Millisecond,
		ServerStart: &start,
		ServerNow:   epoch,
	})
	if got := display.last(); got != 5000*time.Millisecond {
		t.Fatalf("initial display = %v, want 5s", got)
	}

	prev := display.last()
	for i := 0; i < 20; i++ {
		clock.Advance(100 * time.Millisecond)
		if ran := frames.Tick(clock.Now()); ran != 1 {
			t.Fatalf("frame %d ran %d callbacks, want 1", i, ran)
		}
		got := display.last()
		if got <= prev {
			t.Fatalf("frame %d: display %v did not increase from %v", i, got, prev)
		}
		prev = got
	}

	if got := timer.Elapsed(); got != 7000*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 7s", got)
	}
	if timer.State() != Running {
		t.Errorf("State() = %v, want running", timer.State())
	}
	if frames.Pending() != 1 {
		t.Errorf("pending frames = %d, want exactly 1", frames.Pending())
	}
}

func TestRunningSnapshotCorrectsClockOffset(t *testing.T) {
	timer, clock, frames, _ := newTestTimer()

	// The server clock is 30s behind the client and the run started 1s
	// before the server sent the snapshot.
	serverNow := epoch.Add(-30 * time.Second)
	start := serverNow.Add(-time.Second)
	timer.Apply(Snapshot{Running: true, ServerStart: &start, ServerNow: serverNow})

	clock.Advance(time.Second)
	frames.Tick(clock.Now())
	if got := timer.Elapsed(); got != 2*time.Second {
		t.Errorf("Elapsed() = %v, want 2s", got)
	}
}

func TestRunningSnapshotNeverNegative(t *testing.T) {
	timer, _, _, display := newTestTimer()

	// Start in the future relative to the projected server clock.
	start := epoch.Add(time.Minute)
	timer.Apply(Snapshot{Running: true, Accumulated: 0, ServerStart: &start, ServerNow: epoch})

	if got := display.last(); got != 0 {
		t.Errorf("display = %v, want 0", got)
	}
}

func TestRunningResyncNeverDecreases(t *testing.T) {
	timer, clock, frames, display := newTestTimer()
	start := epoch

	timer.Apply(Snapshot{Running: true, ServerStart: &start, ServerNow: epoch})
	clock.Advance(3 * time.Second)
	frames.Tick(clock.Now())
	before := display.last()

	// A second snapshot whose server clock lags puts the projection behind.
	timer.Apply(Snapshot{Running: true, ServerStart: &start, ServerNow: clock.Now().Add(-500 * time.Millisecond)})
	if got := display.last(); got < before {
		t.Errorf("display went backwards: %v -> %v", before, got)
	}
	if frames.Pending() != 1 {
		t.Errorf("pending frames = %d, want exactly 1", frames.Pending())
	}
}

func TestStoppedSnapshotFreezes(t *testing.T) {
	timer, clock, frames, display := newTestTimer()
	start := epoch

	timer.Apply(Snapshot{Running: true, Accumulated: time.Second, ServerStart: &start, ServerNow: epoch})
	clock.Advance(time.Second)
	frames.Tick(clock.Now())

	timer.Apply(Snapshot{Running: false, Accumulated: 12345 * time.Millisecond, ServerNow: clock.Now()})

	if got := display.last(); got != 12345*time.Millisecond {
		t.Errorf("display = %v, want 12.345s", got)
	}
	if frames.Pending() != 0 {
		t.Errorf("pending frames = %d, want 0", frames.Pending())
	}

	n := len(display.all())
	clock.Advance(time.Second)
	if ran := frames.Tick(clock.Now()); ran != 0 {
		t.Errorf("stopped timer ran %d frame callbacks", ran)
	}
	if len(display.all()) != n {
		t.Error("stopped timer repainted")
	}
	if timer.State() != Stopped || timer.Elapsed() != 12345*time.Millisecond {
		t.Errorf("state = %v elapsed = %v", timer.State(), timer.Elapsed())
	}
}

func TestMissingServerNowUsesLocalClock(t *testing.T) {
	timer, clock, frames, _ := newTestTimer()
	timer.Apply(Snapshot{Running: true, Accumulated: time.Second})

	clock.Advance(250 * time.Millisecond)
	frames.Tick(clock.Now())
	if got := timer.Elapsed(); got != 1250*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 1.25s", got)
	}
}

func TestQueuedSnapshotUsesArrivalTime(t *testing.T) {
	timer, clock, _, display := newTestTimer()
	start := epoch

	// Arrived at epoch, applied two seconds later.
	clock.Advance(2 * time.Second)
	timer.Apply(Snapshot{
		Running:     true,
		Accumulated: 5 * time.Second,
		ServerStart: &start,
		ServerNow:   epoch,
		Received:    epoch,
	})
	if got := display.last(); got != 7*time.Second {
		t.Errorf("display = %v, want 7s", got)
	}
}

func TestCloseStopsLoop(t *testing.T) {
	timer, _, frames, display := newTestTimer()
	timer.Apply(Snapshot{Running: true})
	timer.Close()

	if frames.Pending() != 0 {
		t.Errorf("pending frames after Close = %d", frames.Pending())
	}
	n := len(display.all())
	timer.Apply(Snapshot{Running: true})
	if len(display.all()) != n || frames.Pending() != 0 {
		t.Error("closed timer accepted a snapshot")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00.0"},
		{-time.Second, "00:00.0"},
		{12345 * time.Millisecond, "00:12.3"},
		{61*time.Second + 999*time.Millisecond, "01:01.9"},
		{75 * time.Minute, "75:00.0"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestControls(t *testing.T) {
	if diff := cmp.Diff(Controls{Start: true, Stop: false, Reset: true}, ControlsFor(Stopped)); diff != "" {
		t.Errorf("stopped controls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Controls{Start: false, Stop: true, Reset: false}, ControlsFor(Running)); diff != "" {
		t.Errorf("running controls mismatch (-want +got):\n%s", diff)
	}
}
