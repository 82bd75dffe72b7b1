// Package pointer carries the presenter's laser pointer between clients.
//
// Every client runs a Receiver that places an indicator over its surface.
// The host additionally runs a Sender that samples local motion while the
// modifier key is held and broadcasts it, at most once per display frame.
package pointer

import (
	"math"
	"sync"
)

// Offscreen is where a hidden indicator is parked.
const Offscreen = -9999

// Update is a pointer position in surface-normalized coordinates.
type Update struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Page int     `json:"page"`
}

// Rect is a box in screen pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Indicator is the on-screen laser dot. Translate moves it relative to the
// overlay's origin without re-layout.
type Indicator interface {
	Translate(x, y float64)
}

// Geometry reports where the rendered surface and the overlay currently are.
type Geometry interface {
	SurfaceRect() Rect
	OverlayRect() Rect
}

// State is the last pointer position a receiver applied.
type State struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Page    int     `json:"page"`
	Visible bool    `json:"visible"`
}

// Receiver applies remote pointer updates to the local indicator.
type Receiver struct {
	geom      Geometry
	indicator Indicator
	page      func() int

	mu    sync.Mutex
	state State
}

// NewReceiver creates a receiver. page returns the page the viewer is
// currently showing.
func NewReceiver(geom Geometry, indicator Indicator, page func() int) *Receiver {
	return &Receiver{geom: geom, indicator: indicator, page: page}
}

// Update moves the indicator to u. Updates for another page, or with
// coordinates that are not finite numbers, are ignored. It reports whether
// the indicator moved.
func (r *Receiver) Update(u Update) bool {
	if !finite(u.X) || !finite(u.Y) {
		return false
	}
	if u.Page != r.page() {
		return false
	}
	r.place(u.X, u.Y, u.Page)
	return true
}

// Place moves the indicator without a page check. The sender uses it to echo
// its own samples.
func (r *Receiver) Place(x, y float64) {
	r.place(x, y, r.page())
}

func (r *Receiver) place(x, y float64, page int) {
	surface := r.geom.SurfaceRect()
	overlay := r.geom.OverlayRect()
	left := surface.Left + x*surface.Width
	top := surface.Top + y*surface.Height

	r.mu.Lock()
	defer r.mu.Unlock()
	r.indicator.Translate(left-overlay.Left, top-overlay.Top)
	r.state = State{X: x, Y: y, Page: page, Visible: true}
}

// Hide parks the indicator off-canvas.
func (r *Receiver) Hide() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indicator.Translate(Offscreen, Offscreen)
	r.state.Visible = false
}

// State returns the last applied position.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
