package pointer

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/deckcast/go/internal/viewer/frame"
)

// Broadcaster publishes pointer events to the room.
type Broadcaster interface {
	BroadcastMove(u Update) error
	BroadcastHide() error
}

// SenderStats counts what the sender emitted.
type SenderStats struct {
	Samples    uint64 `json:"samples"`
	Broadcasts uint64 `json:"broadcasts"`
	Hides      uint64 `json:"hides"`
}

// Sender samples local pointer motion and broadcasts the latest sample once
// per display frame while the modifier key is held.
//
// Broadcaster calls are made with the sender's lock held so that a hide can
// never overtake a move. Broadcasters must not block and must not call back
// into the sender.
type Sender struct {
	frames frame.Scheduler
	out    Broadcaster
	geom   Geometry
	local  *Receiver
	page   func() int

	mu      sync.Mutex
	active  bool
	last    *Update
	pending frame.Handle
	closed  bool
	stats   SenderStats
}

// NewSender creates a sender. local echoes samples on this client's own
// indicator and may be nil.
func NewSender(frames frame.Scheduler, out Broadcaster, geom Geometry, local *Receiver, page func() int) *Sender {
	return &Sender{
		frames: frames,
		out:    out,
		geom:   geom,
		local:  local,
		page:   page,
	}
}

// Move handles pointer motion at screen position (x, y). held reports
// whether the modifier key is down; motion without it ends broadcasting.
func (s *Sender) Move(x, y float64, held bool) {
	if !held {
		s.stop("modifier up")
		return
	}

	r := s.geom.SurfaceRect()
	u := Update{
		X:    clamp01((x - r.Left) / math.Max(1, r.Width)),
		Y:    clamp01((y - r.Top) / math.Max(1, r.Height)),
		Page: s.page(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.last = &u
	s.active = true
	s.stats.Samples++
	if s.local != nil {
		s.local.Place(u.X, u.Y)
	}
	if s.pending == nil {
		s.pending = s.frames.Request(s.flush)
	}
}

// Release handles the modifier key going up.
func (s *Sender) Release() { s.stop("modifier released") }

// Leave handles the pointer leaving the window.
func (s *Sender) Leave() { s.stop("pointer left") }

// Blur handles the window losing focus.
func (s *Sender) Blur() { s.stop("focus lost") }

// Active reports whether the sender is currently broadcasting.
func (s *Sender) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stats returns a snapshot of the sender counters.
func (s *Sender) Stats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close cancels a pending flush. Viewers are not notified.
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.active = false
	s.last = nil
	s.cancelPendingLocked()
}

func (s *Sender) flush(time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	if !s.active || s.last == nil {
		return
	}
	u := *s.last
	s.last = nil
	s.stats.Broadcasts++
	if err := s.out.BroadcastMove(u); err != nil {
		log.Warn().Err(err).Msg("failed to broadcast pointer move")
	}
}

// stop emits exactly one hide for an active sender and drops any sample
// still waiting for a frame.
func (s *Sender) stop(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false
	s.last = nil
	s.cancelPendingLocked()

	s.stats.Hides++
	if s.local != nil {
		s.local.Hide()
	}
	log.Debug().Str("reason", reason).Msg("pointer broadcast stopped")
	if err := s.out.BroadcastHide(); err != nil {
		log.Warn().Err(err).Msg("failed to broadcast pointer hide")
	}
}

func (s *Sender) cancelPendingLocked() {
	if s.pending == nil {
		return
	}
	s.pending.Cancel()
	s.pending = nil
}
