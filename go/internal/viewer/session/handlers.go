package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/deckcast/go/internal/viewer/events"
	"github.com/mcdev12/deckcast/go/internal/viewer/pointer"
	"github.com/mcdev12/deckcast/go/internal/viewer/render"
	"github.com/mcdev12/deckcast/go/internal/viewer/timer"
)

// Handle applies one room event. Rendering and loading continue in the
// background; Handle itself never blocks on them, so events are applied in
// delivery order. It fails only for malformed payloads.
func (s *Session) Handle(ctx context.Context, env *events.Envelope) error {
	payload, err := events.ParsePayload(env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.handled++
	s.mu.Unlock()

	switch p := payload.(type) {
	case events.SyncPayload:
		s.handleSync(ctx, p)
	case events.ResetPayload:
		s.handleReset(ctx, p)
	case events.PDFChangedPayload:
		s.handlePDFChanged(ctx, p)
	case events.PointerUpdatePayload:
		s.handlePointerUpdate(p)
	case events.PointerHidePayload:
		if s.receiver != nil {
			s.receiver.Hide()
		}
	case events.TimerUpdatePayload:
		snap := p.Snapshot()
		snap.Received = env.ReceivedAt
		s.timer.Apply(snap)
	case events.LockDeniedPayload:
		s.handleLockDenied(p)
	default:
		log.Debug().Str("event_type", string(env.Type)).Msg("ignoring event")
	}
	return nil
}

func (s *Session) handleSync(ctx context.Context, p events.SyncPayload) {
	page := p.CurrentPage
	if page == 0 {
		page = 1
	}

	s.mu.Lock()
	s.lockedBy = p.LockedBy
	if p.NumPages != nil {
		s.serverPages = *p.NumPages
	}
	s.mu.Unlock()

	log.Debug().Int("page", page).Bool("locked", p.LockedBy != nil).Msg("sync")
	s.render(ctx, page)
}

func (s *Session) handleReset(ctx context.Context, p events.ResetPayload) {
	page := 1
	if p.CurrentPage != nil && *p.CurrentPage != 0 {
		page = *p.CurrentPage
	}

	if s.cfg.Role.ReloadsOnReset() {
		s.mu.Lock()
		ref := s.docRef
		s.mu.Unlock()
		if ref != "" {
			log.Info().Str("document", ref).Int("page", page).Msg("reset, reloading document")
			s.load(ctx, ref, page)
			return
		}
	}
	s.render(ctx, page)
}

func (s *Session) handlePDFChanged(ctx context.Context, p events.PDFChangedPayload) {
	if p.URL == "" {
		log.Warn().Msg("pdf_changed without a url")
		return
	}
	log.Info().Str("document", p.URL).Msg("document changed")
	if s.receiver != nil {
		s.receiver.Hide()
	}
	s.load(ctx, p.URL, 1)
}

func (s *Session) handlePointerUpdate(p events.PointerUpdatePayload) {
	if s.receiver == nil {
		return
	}
	u, ok := p.Update()
	if !ok {
		log.Debug().Msg("pointer_update without coordinates")
		return
	}
	s.receiver.Update(u)
}

func (s *Session) handleLockDenied(p events.LockDeniedPayload) {
	log.Warn().Str("locked_by", p.LockedBy).Msg("lock denied")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockDenied = p.LockedBy
}

func (s *Session) control(t events.Type, payload any) error {
	if !s.cfg.Role.CanControl() {
		return ErrReadOnly
	}
	return s.send(t, payload)
}

// Step asks the room to move delta pages.
func (s *Session) Step(delta int) error {
	return s.control(events.TypeStep, events.StepPayload{Room: s.cfg.Room, Delta: delta})
}

// Goto asks the room to show page.
func (s *Session) Goto(page int) error {
	return s.control(events.TypeGoto, events.GotoPayload{Room: s.cfg.Room, Page: page})
}

// ToggleLock takes the room lock when nobody holds it and releases it
// otherwise. force breaks someone else's lock.
func (s *Session) ToggleLock(force bool) error {
	s.mu.Lock()
	locked := s.lockedBy != nil
	s.mu.Unlock()

	t := events.TypeLock
	switch {
	case force:
		t = events.TypeForceUnlock
	case locked:
		t = events.TypeUnlock
	}
	return s.control(t, events.RoomPayload{Room: s.cfg.Room})
}

// TimerStart asks the room to start the stopwatch.
func (s *Session) TimerStart() error {
	return s.control(events.TypeTimerStart, events.RoomPayload{Room: s.cfg.Room})
}

// TimerStop asks the room to stop the stopwatch.
func (s *Session) TimerStop() error {
	return s.control(events.TypeTimerStop, events.RoomPayload{Room: s.cfg.Room})
}

// TimerReset asks the room to zero the stopwatch.
func (s *Session) TimerReset() error {
	return s.control(events.TypeTimerReset, events.RoomPayload{Room: s.cfg.Room})
}

// Key handles a navigation key. Keys other than the arrow and page keys are
// ignored.
func (s *Session) Key(key string) error {
	switch key {
	case "ArrowRight", "PageDown":
		return s.Step(1)
	case "ArrowLeft", "PageUp":
		return s.Step(-1)
	default:
		return nil
	}
}

// Resized notes that a surface container changed size.
func (s *Session) Resized(ctx context.Context) {
	s.sched.Resized(ctx)
}

// PointerMove feeds local pointer motion at screen position (x, y). held
// reports whether the laser modifier is down.
func (s *Session) PointerMove(x, y float64, held bool) error {
	if s.sender == nil {
		return ErrReadOnly
	}
	s.sender.Move(x, y, held)
	return nil
}

// PointerRelease notes that the laser modifier was released.
func (s *Session) PointerRelease() error {
	if s.sender == nil {
		return ErrReadOnly
	}
	s.sender.Release()
	return nil
}

// PointerLeave notes that the pointer left the surface.
func (s *Session) PointerLeave() error {
	if s.sender == nil {
		return ErrReadOnly
	}
	s.sender.Leave()
	return nil
}

// PointerBlur notes that the viewer lost focus.
func (s *Session) PointerBlur() error {
	if s.sender == nil {
		return ErrReadOnly
	}
	s.sender.Blur()
	return nil
}

// Status is a snapshot of the session for display and diagnostics.
type Status struct {
	ID            string                            `json:"id"`
	Room          string                            `json:"room"`
	Role          Role                              `json:"role"`
	Document      string                            `json:"document"`
	Page          int                               `json:"page"`
	PageCount     int                               `json:"page_count"`
	ServerPages   int                               `json:"server_pages,omitempty"`
	LockedBy      *string                           `json:"locked_by"`
	LockText      string                            `json:"lock_text"`
	LockDenied    string                            `json:"lock_denied,omitempty"`
	Timer         string                            `json:"timer"`
	TimerState    string                            `json:"timer_state"`
	TimerControls timer.Controls                    `json:"timer_controls"`
	Pointer       *pointer.State                    `json:"pointer,omitempty"`
	Sender        *pointer.SenderStats              `json:"sender,omitempty"`
	Surfaces      map[render.SurfaceID]render.Stats `json:"surfaces"`
	Events        uint64                            `json:"events"`
	Joins         uint64                            `json:"joins"`
	LastError     string                            `json:"last_error,omitempty"`
}

// Status returns the current session state.
func (s *Session) Status() Status {
	st := Status{
		ID:            s.id,
		Room:          s.cfg.Room,
		Role:          s.cfg.Role,
		Page:          s.sched.Page(),
		PageCount:     s.sched.PageCount(),
		Timer:         timer.Format(s.timer.Elapsed()),
		TimerState:    s.timer.State().String(),
		TimerControls: s.timer.Controls(),
		Surfaces:      make(map[render.SurfaceID]render.Stats),
	}
	for _, surf := range s.sched.Surfaces() {
		st.Surfaces[surf.ID()] = surf.Stats()
	}
	if s.receiver != nil {
		ps := s.receiver.State()
		st.Pointer = &ps
	}
	if s.sender != nil {
		ss := s.sender.Stats()
		st.Sender = &ss
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.Document = s.docRef
	st.ServerPages = s.serverPages
	st.LockedBy = s.lockedBy
	st.LockText = lockText(s.lockedBy != nil)
	st.LockDenied = s.lockDenied
	st.Events = s.handled
	st.Joins = s.joins
	st.LastError = s.lastErr
	return st
}

func lockText(locked bool) string {
	if locked {
		return "Controls locked."
	}
	return "Controls unlocked."
}

func (st Status) String() string {
	return fmt.Sprintf("%s %s page %d/%d timer %s", st.Room, st.Role, st.Page, st.PageCount, st.Timer)
}
