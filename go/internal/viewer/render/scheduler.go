package render

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/deckcast/go/internal/viewer/document"
	"github.com/mcdev12/deckcast/go/internal/viewer/frame"
)

// Options configures a Scheduler.
type Options struct {
	Loader     document.Loader
	Rasterizer document.Rasterizer
	Frames     frame.Scheduler
	Clock      clockwork.Clock

	// ResizeDebounce coalesces Resized calls. Zero uses
	// frame.DefaultResizeDebounce.
	ResizeDebounce time.Duration
	// SettleRetries bounds the post-commit re-measure loop. Negative uses
	// DefaultSettleRetries.
	SettleRetries int

	// OnError receives failures of renders the scheduler starts on its own
	// (debounced resizes). Nil logs them.
	OnError func(err error)
}

// Scheduler owns the document handle and every surface of one viewer.
// A single-surface viewer has one surface at offset 0; the presenter view
// has "current" at offset 0 and "next" at offset 1.
//
// Work is split into a synchronous issue step and a blocking run step. Issue
// in event order and run wherever convenient: the order of issue decides
// which render and which load win.
type Scheduler struct {
	loader   document.Loader
	surfaces []*Surface
	offsets  []int
	debounce *frame.Debouncer
	onError  func(err error)

	mu         sync.Mutex
	doc        document.Document
	page       int
	loadSeq    uint64
	loadCancel context.CancelFunc
	closed     bool
	bg         sync.WaitGroup
}

// NewScheduler creates a scheduler rendering into the given surfaces.
func NewScheduler(opts Options, surfaces ...SurfaceConfig) *Scheduler {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Scheduler{
		loader:   opts.Loader,
		debounce: frame.NewDebouncer(clock, opts.ResizeDebounce),
		onError:  opts.OnError,
		page:     1,
	}
	for _, cfg := range surfaces {
		s.surfaces = append(s.surfaces, NewSurface(cfg, opts.Rasterizer, opts.Frames, opts.SettleRetries))
		s.offsets = append(s.offsets, cfg.Offset)
	}
	if s.onError == nil {
		s.onError = func(err error) {
			log.Error().Err(err).Msg("background render failed")
		}
	}
	return s
}

// Load is an issued document load.
type Load struct {
	s   *Scheduler
	ref string
	seq uint64
}

// BeginLoad drops the current document, invalidates every surface (canceling
// in-flight work) and cancels any load still running. Until the returned
// load completes, rendering fails with document.ErrNoDocument.
func (s *Scheduler) BeginLoad(ref string) *Load {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.doc = nil
	if s.loadCancel != nil {
		s.loadCancel()
		s.loadCancel = nil
	}
	s.mu.Unlock()

	for _, surf := range s.surfaces {
		surf.Invalidate()
	}
	return &Load{s: s, ref: ref, seq: seq}
}

// Wait fetches the document and adopts it if no newer load was issued
// meanwhile. It returns the page count. A load overtaken by a newer one
// returns ErrSuperseded; a failed load returns *document.LoadError and
// leaves the scheduler without a document.
func (l *Load) Wait(ctx context.Context) (int, error) {
	s := l.s
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if l.seq != s.loadSeq {
		s.mu.Unlock()
		return 0, ErrSuperseded
	}
	s.loadCancel = cancel
	s.mu.Unlock()

	doc, err := s.loader.Load(ctx, l.ref)

	s.mu.Lock()
	defer s.mu.Unlock()

	if l.seq != s.loadSeq {
		return 0, ErrSuperseded
	}
	s.loadCancel = nil
	if err != nil {
		var le *document.LoadError
		if !errors.As(err, &le) {
			err = &document.LoadError{Ref: l.ref, Err: err}
		}
		return 0, err
	}
	if doc.PageCount() < 1 {
		return 0, &document.LoadError{Ref: l.ref, Err: errors.New("document has no pages")}
	}

	s.doc = doc
	s.page = document.ClampPage(s.page, doc.PageCount())

	log.Info().
		Str("ref", l.ref).
		Int("pages", doc.PageCount()).
		Msg("document adopted")

	return doc.PageCount(), nil
}

// Load replaces the document and waits for the result.
func (s *Scheduler) Load(ctx context.Context, ref string) (int, error) {
	return s.BeginLoad(ref).Wait(ctx)
}

// Batch is a render issued on every surface.
type Batch struct {
	reqs []*Request
}

// Run renders every surface of the batch. The surfaces render concurrently
// and may finish in either order.
func (b *Batch) Run(ctx context.Context) error {
	if len(b.reqs) == 1 {
		return b.reqs[0].Run(ctx)
	}
	var g errgroup.Group
	for _, req := range b.reqs {
		g.Go(func() error {
			return req.Run(ctx)
		})
	}
	return g.Wait()
}

// Issue records page as the current page and issues a render of it on every
// surface, each at its own offset. Without a document it records the page
// and returns document.ErrNoDocument.
func (s *Scheduler) Issue(page int) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(page)
}

// Reissue issues a render of the current page. Use it instead of
// Issue(Page()), which could reissue a page that changed in between.
func (s *Scheduler) Reissue() (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(s.page)
}

func (s *Scheduler) issueLocked(page int) (*Batch, error) {
	if s.doc == nil {
		if page < 1 {
			page = 1
		}
		s.page = page
		return nil, document.ErrNoDocument
	}
	count := s.doc.PageCount()
	s.page = document.ClampPage(page, count)

	b := &Batch{}
	for i, surf := range s.surfaces {
		b.reqs = append(b.reqs, surf.Issue(s.doc, document.ClampPage(s.page+s.offsets[i], count)))
	}
	return b, nil
}

// RenderPage issues a render of page and waits for it.
func (s *Scheduler) RenderPage(ctx context.Context, page int) error {
	b, err := s.Issue(page)
	if err != nil {
		return err
	}
	return b.Run(ctx)
}

// Resized notes a container size change. After the debounce window the
// current page is re-rendered on every surface.
func (s *Scheduler) Resized(ctx context.Context) {
	s.debounce.Trigger(func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.bg.Add(1)
		s.mu.Unlock()
		defer s.bg.Done()

		b, err := s.Reissue()
		if err != nil {
			return
		}
		if err := b.Run(ctx); err != nil {
			s.onError(err)
		}
	})
}

// Page returns the page the scheduler last rendered or was asked to render.
func (s *Scheduler) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// PageCount returns the page count of the current document, or 0.
func (s *Scheduler) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return 0
	}
	return s.doc.PageCount()
}

// Document returns the current document handle, or nil.
func (s *Scheduler) Document() document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Surfaces returns the scheduler's surfaces in construction order.
func (s *Scheduler) Surfaces() []*Surface {
	return s.surfaces
}

// Close drops any pending resize, cancels a running load and active
// rasterizations and waits for background renders to return. The scheduler
// must not be used after.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	if s.loadCancel != nil {
		s.loadCancel()
		s.loadCancel = nil
	}
	s.mu.Unlock()

	s.debounce.Stop()
	for _, surf := range s.surfaces {
		surf.Invalidate()
	}
	s.bg.Wait()
}
