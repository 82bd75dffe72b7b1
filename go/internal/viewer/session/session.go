// Package session is one viewer attached to one room. It consumes the room's
// events in order, keeps the page, lock, pointer and timer state, and turns
// local input into outbound events according to the viewer's role.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/deckcast/go/internal/viewer/document"
	"github.com/mcdev12/deckcast/go/internal/viewer/events"
	"github.com/mcdev12/deckcast/go/internal/viewer/frame"
	"github.com/mcdev12/deckcast/go/internal/viewer/pointer"
	"github.com/mcdev12/deckcast/go/internal/viewer/render"
	"github.com/mcdev12/deckcast/go/internal/viewer/timer"
	"github.com/mcdev12/deckcast/go/internal/viewer/transport"
)

var (
	// ErrReadOnly is returned when the role may not perform an action.
	ErrReadOnly = errors.New("action not allowed for this role")
	// ErrNotConnected is returned by actions while the room connection is
	// down.
	ErrNotConnected = transport.ErrNotConnected
)

// Config holds the viewer's identity in the room.
type Config struct {
	Room string
	Role Role
	// Document is loaded when Run starts. It may be empty; the room then
	// supplies one with pdf_changed.
	Document string

	// ResizeDebounce coalesces Resized calls. Zero uses the frame default.
	ResizeDebounce time.Duration
	// SettleRetries bounds re-renders after layout drift. Negative uses the
	// render default.
	SettleRetries int
}

// Options are the collaborators a session drives.
type Options struct {
	Transport  transport.Transport
	Loader     document.Loader
	Rasterizer document.Rasterizer
	Frames     frame.Scheduler
	Clock      clockwork.Clock
	Surfaces   []render.SurfaceConfig

	// Geometry and Indicator place the laser dot. Roles that show the
	// pointer need both.
	Geometry  pointer.Geometry
	Indicator pointer.Indicator
	Display   timer.Display
}

// Session owns all mutable viewer state.
type Session struct {
	id    string
	cfg   Config
	tr    transport.Transport
	sched *render.Scheduler
	timer *timer.SyncedTimer

	// receiver is nil for roles without a laser dot, sender for roles that
	// cannot point.
	receiver *pointer.Receiver
	sender   *pointer.Sender

	life    context.Context
	kill    context.CancelFunc
	renders sync.WaitGroup

	mu          sync.Mutex
	docRef      string
	lockedBy    *string
	lockDenied  string
	serverPages int
	lastErr     string
	handled     uint64
	joins       uint64
	closed      bool
}

// New creates a session. Nothing happens until Run.
func New(cfg Config, opts Options) (*Session, error) {
	if cfg.Room == "" {
		return nil, errors.New("session needs a room")
	}
	role, err := ParseRole(string(cfg.Role))
	if err != nil {
		return nil, err
	}
	cfg.Role = role
	if opts.Transport == nil || opts.Loader == nil || opts.Rasterizer == nil || opts.Frames == nil {
		return nil, errors.New("session needs a transport, loader, rasterizer and frame scheduler")
	}
	if len(opts.Surfaces) == 0 {
		return nil, errors.New("session needs at least one surface")
	}
	if opts.Display == nil {
		return nil, errors.New("session needs a timer display")
	}
	if cfg.Role.ShowsPointer() && (opts.Geometry == nil || opts.Indicator == nil) {
		return nil, fmt.Errorf("role %s needs pointer geometry and indicator", cfg.Role)
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Session{
		id:     uuid.New().String(),
		cfg:    cfg,
		tr:     opts.Transport,
		docRef: cfg.Document,
	}
	s.life, s.kill = context.WithCancel(context.Background())
	s.sched = render.NewScheduler(render.Options{
		Loader:         opts.Loader,
		Rasterizer:     opts.Rasterizer,
		Frames:         opts.Frames,
		Clock:          clock,
		ResizeDebounce: cfg.ResizeDebounce,
		SettleRetries:  cfg.SettleRetries,
		OnError:        s.fail,
	}, opts.Surfaces...)
	s.timer = timer.New(clock, opts.Frames, opts.Display)

	if cfg.Role.ShowsPointer() {
		s.receiver = pointer.NewReceiver(opts.Geometry, opts.Indicator, s.sched.Page)
	}
	if cfg.Role.CanPoint() {
		s.sender = pointer.NewSender(opts.Frames, broadcaster{s}, opts.Geometry, s.receiver, s.sched.Page)
	}
	return s, nil
}

// ID identifies this session instance.
func (s *Session) ID() string { return s.id }

// Role returns the session's role.
func (s *Session) Role() Role { return s.cfg.Role }

// Run connects to the room, loads the configured document and handles room
// events until ctx is done or the transport gives up. Everything the session
// started is released before Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info().
		Str("session_id", s.id).
		Str("room", s.cfg.Room).
		Str("role", s.cfg.Role.String()).
		Str("document", s.cfg.Document).
		Msg("viewer session starting")

	s.tr.OnConnect(s.join)
	if s.cfg.Document != "" {
		s.load(ctx, s.cfg.Document, 0)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- s.tr.Run(ctx)
	}()

	for env := range s.tr.Events() {
		if err := s.Handle(ctx, env); err != nil {
			log.Warn().Err(err).Str("event_type", string(env.Type)).Msg("dropping room event")
		}
	}

	err := <-runErr
	log.Info().Str("session_id", s.id).Msg("viewer session stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("room transport: %w", err)
	}
	return nil
}

// Close stops the timer loop, drops a pending pointer broadcast and resize,
// cancels every render and load, and waits for their goroutines. It is safe
// to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.kill()
	s.timer.Close()
	if s.sender != nil {
		s.sender.Close()
	}
	s.sched.Close()
	s.renders.Wait()
}

// join announces the viewer on every (re)connect. The server answers with
// fresh sync and timer_update snapshots.
func (s *Session) join() {
	s.mu.Lock()
	s.joins++
	joins := s.joins
	s.mu.Unlock()

	if err := s.send(events.TypeJoin, events.RoomPayload{Room: s.cfg.Room}); err != nil {
		log.Error().Err(err).Str("room", s.cfg.Room).Msg("failed to join room")
		return
	}
	log.Info().Str("room", s.cfg.Room).Uint64("joins", joins).Msg("joined room")

	// A load that finished while disconnected could not report its pages.
	if n := s.sched.PageCount(); n > 0 {
		s.reportPages(n)
	}
}

func (s *Session) reportPages(n int) {
	if !s.cfg.Role.ReportsPages() {
		return
	}
	err := s.send(events.TypeReportNumPages, events.ReportNumPagesPayload{Room: s.cfg.Room, NumPages: n})
	if err != nil {
		log.Warn().Err(err).Int("pages", n).Msg("failed to report page count")
	}
}

// spawn runs fn on a tracked goroutine. fn's context ends with ctx or when
// the session closes.
func (s *Session) spawn(ctx context.Context, fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.renders.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.renders.Done()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(s.life, cancel)
		defer stop()
		fn(ctx)
	}()
}

// render issues page now, in event order, and rasterizes it in the
// background. Without a document the page is only recorded; the running
// load renders it when it completes.
func (s *Session) render(ctx context.Context, page int) {
	b, err := s.sched.Issue(page)
	if err != nil {
		log.Debug().Int("page", page).Msg("no document yet, page recorded")
		return
	}
	s.spawn(ctx, func(ctx context.Context) {
		if err := b.Run(ctx); err != nil {
			s.fail(err)
		}
	})
}

// load replaces the document with ref. A positive page is recorded as the
// page to show once the document is in.
func (s *Session) load(ctx context.Context, ref string, page int) {
	s.mu.Lock()
	s.docRef = ref
	s.mu.Unlock()

	l := s.sched.BeginLoad(ref)
	if page > 0 {
		_, _ = s.sched.Issue(page)
	}

	s.spawn(ctx, func(ctx context.Context) {
		n, err := l.Wait(ctx)
		if errors.Is(err, render.ErrSuperseded) {
			return
		}
		if err != nil {
			s.fail(err)
			return
		}
		s.mu.Lock()
		s.lastErr = ""
		s.mu.Unlock()

		s.reportPages(n)

		b, err := s.sched.Reissue()
		if err != nil {
			return
		}
		if err := b.Run(ctx); err != nil {
			s.fail(err)
		}
	})
}

func (s *Session) fail(err error) {
	log.Error().Err(err).Str("room", s.cfg.Room).Msg("viewer error")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
}

func (s *Session) send(t events.Type, payload any) error {
	env, err := events.New(t, payload)
	if err != nil {
		return err
	}
	if err := s.tr.Send(env); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	return nil
}

// broadcaster publishes the sender's samples to the room.
type broadcaster struct {
	s *Session
}

func (b broadcaster) BroadcastMove(u pointer.Update) error {
	return b.s.send(events.TypePointerMove, events.PointerMovePayload{
		Room: b.s.cfg.Room,
		X:    u.X,
		Y:    u.Y,
		Page: u.Page,
	})
}

func (b broadcaster) BroadcastHide() error {
	return b.s.send(events.TypePointerHide, events.RoomPayload{Room: b.s.cfg.Room})
}
