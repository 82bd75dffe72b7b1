package fit

import "math"

// MinScale keeps a page visible when the container collapses to nothing.
const MinScale = 0.1

// DriftTolerance is how far, in device pixels, a measured content box may move
// before a committed render is considered out of date.
const DriftTolerance = 1.0

// Size is a width/height pair in CSS pixels (or PDF points at scale 1).
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Viewport is the transform a page is rasterized with.
// Width and Height are the on-screen size; the pixel buffer is that size
// multiplied by PixelDensity.
type Viewport struct {
	Scale        float64 `json:"scale"`
	Rotation     int     `json:"rotation"`
	PixelDensity float64 `json:"pixel_density"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
}

// NormalizeRotation folds any rotation in degrees into {0, 90, 180, 270}.
// Values that are not multiples of 90 snap down to the previous quarter turn.
func NormalizeRotation(deg int) int {
	r := ((deg % 360) + 360) % 360
	return r - r%90
}

// Rotated returns the page size after applying rotation.
func Rotated(page Size, rotation int) Size {
	switch NormalizeRotation(rotation) {
	case 90, 270:
		return Size{Width: page.Height, Height: page.Width}
	default:
		return page
	}
}

// Fit computes the largest scale at which the rotated page fits inside avail.
// The result is floored at MinScale. A density <= 0 is treated as 1.
func Fit(page Size, rotation int, avail Size, density float64) Viewport {
	if density <= 0 {
		density = 1
	}
	rot := NormalizeRotation(rotation)
	base := Rotated(page, rot)

	scale := MinScale
	if base.Width > 0 && base.Height > 0 {
		scale = math.Max(MinScale, math.Min(avail.Width/base.Width, avail.Height/base.Height))
	}

	return Viewport{
		Scale:        scale,
		Rotation:     rot,
		PixelDensity: density,
		Width:        base.Width * scale,
		Height:       base.Height * scale,
	}
}

// PixelSize is the rasterization buffer size.
func (v Viewport) PixelSize() (int, int) {
	return int(math.Ceil(v.Width * v.PixelDensity)), int(math.Ceil(v.Height * v.PixelDensity))
}

// DisplaySize is the on-screen size, independent of pixel density.
func (v Viewport) DisplaySize() (int, int) {
	return int(math.Ceil(v.Width)), int(math.Ceil(v.Height))
}

// Drifted reports whether either axis of a content box, measured in CSS px,
// moved by more than DriftTolerance device pixels at the given density.
func Drifted(before, after Size, density float64) bool {
	if density <= 0 {
		density = 1
	}
	return math.Abs(after.Width-before.Width)*density > DriftTolerance ||
		math.Abs(after.Height-before.Height)*density > DriftTolerance
}
