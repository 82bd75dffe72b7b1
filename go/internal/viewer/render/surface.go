package render

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/deckcast/go/internal/viewer/document"
	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
	"github.com/mcdev12/deckcast/go/internal/viewer/frame"
)

// DefaultSettleRetries bounds the post-commit re-measure loop.
const DefaultSettleRetries = 2

// SurfaceConfig describes one surface.
type SurfaceConfig struct {
	ID        SurfaceID
	Container Container
	Target    Target
	// Label is optional.
	Label       Label
	LabelPrefix string
	// Offset is added to the scheduler's page: 0 for the current page,
	// 1 for a "next slide" preview.
	Offset int
}

// Stats counts what happened to a surface's render requests.
type Stats struct {
	Generation      uint64 `json:"generation"`
	Active          bool   `json:"active"`
	LastAppliedPage int    `json:"last_applied_page"`
	Issued          uint64 `json:"issued"`
	Committed       uint64 `json:"committed"`
	Stale           uint64 `json:"stale"`
	Canceled        uint64 `json:"canceled"`
	Failed          uint64 `json:"failed"`
	Settles         uint64 `json:"settles"`
}

// Surface owns the render pipeline of one target: a generation counter and
// at most one active rasterization. A completion is applied only while its
// generation is still the latest issued.
type Surface struct {
	cfg           SurfaceConfig
	raster        document.Rasterizer
	frames        frame.Scheduler
	settleRetries int

	mu          sync.Mutex
	generation  uint64
	active      *activeTask
	lastApplied int
	stats       Stats
}

type activeTask struct {
	generation uint64
	task       *document.Task
}

type attempt struct {
	committed bool
	measured  fit.Size
}

// NewSurface creates a surface. settleRetries < 0 uses DefaultSettleRetries.
func NewSurface(cfg SurfaceConfig, raster document.Rasterizer, frames frame.Scheduler, settleRetries int) *Surface {
	if settleRetries < 0 {
		settleRetries = DefaultSettleRetries
	}
	return &Surface{
		cfg:           cfg,
		raster:        raster,
		frames:        frames,
		settleRetries: settleRetries,
	}
}

// ID returns the surface identifier.
func (s *Surface) ID() SurfaceID { return s.cfg.ID }

// Request is one issued render of a surface. Its generation is reserved at
// Issue time, so requests issued in order are ordered even when they run
// concurrently.
type Request struct {
	s    *Surface
	doc  document.Document
	page int
	gen  uint64
}

// Issue clamps page, reserves the next generation and cancels the active
// rasterization. Nothing is drawn until Run is called.
func (s *Surface) Issue(doc document.Document, page int) *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cancelActiveLocked()
	s.stats.Issued++
	return &Request{
		s:    s,
		doc:  doc,
		page: document.ClampPage(page, doc.PageCount()),
		gen:  s.generation,
	}
}

// Page returns the clamped page the request renders.
func (r *Request) Page() int { return r.page }

// Run performs the render. It returns once the render was committed,
// discarded as stale, or canceled; only a genuine rasterization failure is
// returned as an error (*RenderError).
//
// After a commit the surface waits one frame and re-measures its container.
// If the content box drifted it renders the same page again, at most
// settleRetries times, and only while no newer request was issued.
func (r *Request) Run(ctx context.Context) error {
	s := r.s
	gen := r.gen
	for retry := 0; ; retry++ {
		res, err := s.renderOnce(ctx, r.doc, r.page, gen)
		if err != nil || !res.committed {
			return err
		}
		if retry >= s.settleRetries {
			return nil
		}
		if err := frame.Next(ctx, s.frames); err != nil {
			return nil
		}

		after := fit.ContentBox(s.cfg.Container.Measure(), s.cfg.Target.Margin())
		if !fit.Drifted(res.measured, after, s.cfg.Target.PixelDensity()) {
			return nil
		}
		next, ok := s.reissue(gen)
		if !ok {
			return nil
		}
		gen = next

		log.Debug().
			Str("surface", string(s.cfg.ID)).
			Int("page", r.page).
			Float64("width", after.Width).
			Float64("height", after.Height).
			Msg("layout drifted after commit, re-rendering")
	}
}

// Render issues and runs a render of page.
func (s *Surface) Render(ctx context.Context, doc document.Document, page int) error {
	if doc == nil {
		return document.ErrNoDocument
	}
	return s.Issue(doc, page).Run(ctx)
}

// reissue reserves a new generation for a settle re-render, but only if gen
// is still the latest.
func (s *Surface) reissue(gen uint64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return 0, false
	}
	s.generation++
	s.stats.Issued++
	s.stats.Settles++
	return s.generation, true
}

func (s *Surface) renderOnce(ctx context.Context, doc document.Document, n int, gen uint64) (attempt, error) {
	if !s.isLatest(gen) {
		s.countStale()
		return attempt{}, nil
	}

	p, err := doc.Page(ctx, n)
	if err != nil {
		if ctx.Err() != nil || !s.isLatest(gen) {
			return attempt{}, nil
		}
		s.countFailure()
		return attempt{}, &RenderError{Surface: s.cfg.ID, Page: n, Err: err}
	}

	measured := fit.ContentBox(s.cfg.Container.Measure(), s.cfg.Target.Margin())
	vp := fit.Fit(p.Size(), p.Rotation(), measured, s.cfg.Target.PixelDensity())

	s.mu.Lock()
	if gen != s.generation {
		s.stats.Stale++
		s.mu.Unlock()
		return attempt{}, nil
	}
	task := s.raster.Rasterize(ctx, p, vp)
	s.active = &activeTask{generation: gen, task: task}
	s.mu.Unlock()

	img, err := task.Result()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && s.active.generation == gen {
		s.active = nil
	}

	if err != nil {
		switch {
		case errors.Is(err, document.ErrCanceled):
			s.stats.Canceled++
			return attempt{}, nil
		case gen != s.generation:
			s.stats.Stale++
			return attempt{}, nil
		default:
			s.stats.Failed++
			return attempt{}, &RenderError{Surface: s.cfg.ID, Page: n, Err: err}
		}
	}

	if gen != s.generation {
		s.stats.Stale++
		log.Debug().
			Str("surface", string(s.cfg.ID)).
			Int("page", n).
			Uint64("generation", gen).
			Uint64("latest", s.generation).
			Msg("discarding stale render")
		return attempt{}, nil
	}

	s.cfg.Target.Commit(Frame{
		Surface:    s.cfg.ID,
		Page:       n,
		PageCount:  doc.PageCount(),
		Generation: gen,
		Viewport:   vp,
		Image:      img,
	})
	if s.cfg.Label != nil {
		s.cfg.Label.SetText(fmt.Sprintf("%s%d/%d", s.cfg.LabelPrefix, n, doc.PageCount()))
	}
	s.lastApplied = n
	s.stats.Committed++

	return attempt{committed: true, measured: measured}, nil
}

// Invalidate makes every in-flight request stale and cancels the active
// rasterization.
func (s *Surface) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cancelActiveLocked()
}

// Stats returns a snapshot of the surface counters.
func (s *Surface) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Generation = s.generation
	st.Active = s.active != nil
	st.LastAppliedPage = s.lastApplied
	return st
}

func (s *Surface) isLatest(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

func (s *Surface) countFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Failed++
}

func (s *Surface) countStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Stale++
}

// cancelActiveLocked is best-effort: Task.Cancel never blocks.
func (s *Surface) cancelActiveLocked() {
	if s.active == nil {
		return
	}
	s.active.task.Cancel()
	s.active = nil
}
