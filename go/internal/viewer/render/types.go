package render

import (
	"errors"
	"fmt"
	"image"

	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
)

// SurfaceID names an on-screen render target.
type SurfaceID string

const (
	SurfaceMain    SurfaceID = "main"
	SurfaceCurrent SurfaceID = "current"
	SurfaceNext    SurfaceID = "next"
)

// ErrSuperseded is returned by Load when a newer Load started before this one
// finished. The newer load owns the scheduler; callers should drop the result.
var ErrSuperseded = errors.New("load superseded by a newer document")

// Frame is a committed render.
type Frame struct {
	Surface    SurfaceID
	Page       int
	PageCount  int
	Generation uint64
	Viewport   fit.Viewport
	Image      image.Image
}

// Container is the layout box a surface lives in.
type Container interface {
	Measure() fit.Box
}

// Target receives committed frames.
type Target interface {
	// Margin is the target's own margin inside the container.
	Margin() fit.Insets
	// PixelDensity is the device pixel ratio to rasterize at.
	PixelDensity() float64
	// Commit replaces the displayed pixels. It is called with the surface
	// lock held and must not call back into the surface.
	Commit(f Frame)
}

// Label shows "<prefix><page>/<count>" next to a surface.
type Label interface {
	SetText(text string)
}

// RenderError is a rasterization failure that was not a cancellation.
type RenderError struct {
	Surface SurfaceID
	Page    int
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s page %d: %v", e.Surface, e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
