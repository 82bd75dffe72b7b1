// Package screen is the headless stand-in for a browser page: layout boxes
// that surfaces render into, page labels, the laser overlay and the timer
// readout. The preview server exposes its state.
package screen

import (
	"errors"
	"fmt"
	"image/png"
	"io"
	"math"
	"sync"
	"time"

	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
	"github.com/mcdev12/deckcast/go/internal/viewer/pointer"
	"github.com/mcdev12/deckcast/go/internal/viewer/render"
	"github.com/mcdev12/deckcast/go/internal/viewer/timer"
)

// ErrNoFrame is returned when a surface has not committed anything yet.
var ErrNoFrame = errors.New("surface has no frame yet")

// Layout is the box model of one surface: the container and the margin of
// the render target inside it.
type Layout struct {
	Width        float64    `yaml:"width" json:"width"`
	Height       float64    `yaml:"height" json:"height"`
	Padding      fit.Insets `yaml:"padding" json:"padding"`
	Border       fit.Insets `yaml:"border" json:"border"`
	Margin       fit.Insets `yaml:"margin" json:"margin"`
	PixelDensity float64    `yaml:"pixel_density" json:"pixel_density"`
}

// Spec names a surface and its layout.
type Spec struct {
	ID     render.SurfaceID
	Layout Layout
}

// Surface is a headless render target. It implements render.Container,
// render.Target and render.Label.
type Surface struct {
	id render.SurfaceID

	mu     sync.RWMutex
	layout Layout
	frame  *render.Frame
	label  string
}

// ID returns the surface identifier.
func (s *Surface) ID() render.SurfaceID { return s.id }

// Measure implements render.Container.
func (s *Surface) Measure() fit.Box {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fit.Box{
		Width:   s.layout.Width,
		Height:  s.layout.Height,
		Padding: s.layout.Padding,
		Border:  s.layout.Border,
	}
}

// Margin implements render.Target.
func (s *Surface) Margin() fit.Insets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout.Margin
}

// PixelDensity implements render.Target.
func (s *Surface) PixelDensity() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout.PixelDensity
}

// Commit implements render.Target.
func (s *Surface) Commit(f render.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = &f
}

// SetText implements render.Label.
func (s *Surface) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = text
}

// Label returns the page label.
func (s *Surface) Label() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.label
}

// Frame returns the last committed frame.
func (s *Surface) Frame() (render.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return render.Frame{}, false
	}
	return *s.frame, true
}

// Resize changes the container size.
func (s *Surface) Resize(width, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layout.Width = width
	s.layout.Height = height
}

// Layout returns the current layout.
func (s *Surface) Layout() Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout
}

// Rect is where the rendered page sits, in container coordinates. The page
// is centered in the content box; before the first frame the whole content
// box is used.
func (s *Surface) Rect() pointer.Rect {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.layout
	left := l.Padding.Left + l.Border.Left + l.Margin.Left
	top := l.Padding.Top + l.Border.Top + l.Margin.Top
	content := fit.ContentBox(fit.Box{
		Width:   l.Width,
		Height:  l.Height,
		Padding: l.Padding,
		Border:  l.Border,
	}, l.Margin)

	if s.frame == nil {
		return pointer.Rect{Left: left, Top: top, Width: content.Width, Height: content.Height}
	}
	w, h := s.frame.Viewport.DisplaySize()
	return pointer.Rect{
		Left:   left + math.Max(0, (content.Width-float64(w))/2),
		Top:    top + math.Max(0, (content.Height-float64(h))/2),
		Width:  float64(w),
		Height: float64(h),
	}
}

// WritePNG encodes the last committed frame.
func (s *Surface) WritePNG(w io.Writer) error {
	f, ok := s.Frame()
	if !ok || f.Image == nil {
		return ErrNoFrame
	}
	if err := png.Encode(w, f.Image); err != nil {
		return fmt.Errorf("encode %s frame: %w", s.id, err)
	}
	return nil
}

// Screen groups the surfaces of one viewer with its overlay and timer
// readout. The first surface carries the laser overlay.
type Screen struct {
	surfaces []*Surface
	byID     map[render.SurfaceID]*Surface

	mu        sync.RWMutex
	indicator pointer.Rect
	elapsed   time.Duration
}

// New creates a screen. At least one spec is required.
func New(specs ...Spec) (*Screen, error) {
	if len(specs) == 0 {
		return nil, errors.New("screen needs at least one surface")
	}
	sc := &Screen{
		byID:      make(map[render.SurfaceID]*Surface, len(specs)),
		indicator: pointer.Rect{Left: pointer.Offscreen, Top: pointer.Offscreen},
	}
	for _, spec := range specs {
		if _, dup := sc.byID[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate surface %q", spec.ID)
		}
		layout := spec.Layout
		if layout.PixelDensity <= 0 {
			layout.PixelDensity = 1
		}
		surf := &Surface{id: spec.ID, layout: layout}
		sc.surfaces = append(sc.surfaces, surf)
		sc.byID[spec.ID] = surf
	}
	return sc, nil
}

// Surface returns the surface with the given id, or nil.
func (sc *Screen) Surface(id render.SurfaceID) *Surface {
	return sc.byID[id]
}

// Surfaces returns every surface in construction order.
func (sc *Screen) Surfaces() []*Surface {
	return sc.surfaces
}

// SurfaceConfigs wires every surface into the render pipeline. The
// presenter's "next" surface shows the page after the current one.
func (sc *Screen) SurfaceConfigs() []render.SurfaceConfig {
	cfgs := make([]render.SurfaceConfig, 0, len(sc.surfaces))
	for _, s := range sc.surfaces {
		cfg := render.SurfaceConfig{ID: s.id, Container: s, Target: s, Label: s}
		switch s.id {
		case render.SurfaceCurrent:
			cfg.LabelPrefix = "Current: "
		case render.SurfaceNext:
			cfg.LabelPrefix = "Next: "
			cfg.Offset = 1
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs
}

// SurfaceRect implements pointer.Geometry.
func (sc *Screen) SurfaceRect() pointer.Rect {
	return sc.surfaces[0].Rect()
}

// OverlayRect implements pointer.Geometry. The overlay covers the first
// surface's container.
func (sc *Screen) OverlayRect() pointer.Rect {
	l := sc.surfaces[0].Layout()
	return pointer.Rect{Width: l.Width, Height: l.Height}
}

// Translate implements pointer.Indicator.
func (sc *Screen) Translate(x, y float64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.indicator.Left = x
	sc.indicator.Top = y
}

// Indicator returns the laser dot position relative to the overlay.
func (sc *Screen) Indicator() (x, y float64) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.indicator.Left, sc.indicator.Top
}

// ShowElapsed implements timer.Display.
func (sc *Screen) ShowElapsed(d time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.elapsed = d
}

// Elapsed returns the timer readout.
func (sc *Screen) Elapsed() time.Duration {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.elapsed
}

// TimerText returns the timer readout as shown on screen.
func (sc *Screen) TimerText() string {
	return timer.Format(sc.Elapsed())
}

// SurfaceInfo describes one surface for status reports.
type SurfaceInfo struct {
	ID       render.SurfaceID `json:"id"`
	Label    string           `json:"label"`
	Page     int              `json:"page"`
	Pages    int              `json:"pages"`
	Scale    float64          `json:"scale"`
	Rotation int              `json:"rotation"`
	Pixels   [2]int           `json:"pixels"`
	Layout   Layout           `json:"layout"`
}

// Info describes the whole screen.
type Info struct {
	Surfaces  []SurfaceInfo `json:"surfaces"`
	Indicator [2]float64    `json:"indicator"`
	Timer     string        `json:"timer"`
}

// Info returns a snapshot of what is on screen.
func (sc *Screen) Info() Info {
	x, y := sc.Indicator()
	info := Info{Indicator: [2]float64{x, y}, Timer: sc.TimerText()}
	for _, s := range sc.surfaces {
		si := SurfaceInfo{ID: s.id, Label: s.Label(), Layout: s.Layout()}
		if f, ok := s.Frame(); ok {
			w, h := f.Viewport.PixelSize()
			si.Page = f.Page
			si.Pages = f.PageCount
			si.Scale = f.Viewport.Scale
			si.Rotation = f.Viewport.Rotation
			si.Pixels = [2]int{w, h}
		}
		info.Surfaces = append(info.Surfaces, si)
	}
	return info
}
