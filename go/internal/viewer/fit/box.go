package fit

import "math"

// Insets are per-edge lengths such as padding, border or margin.
type Insets struct {
	Top    float64 `json:"top" yaml:"top"`
	Right  float64 `json:"right" yaml:"right"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
	Left   float64 `json:"left" yaml:"left"`
}

// Uniform returns insets with the same length on every edge.
func Uniform(v float64) Insets {
	return Insets{Top: v, Right: v, Bottom: v, Left: v}
}

// Horizontal is Left + Right.
func (i Insets) Horizontal() float64 { return i.Left + i.Right }

// Vertical is Top + Bottom.
func (i Insets) Vertical() float64 { return i.Top + i.Bottom }

// Box is a container measurement: its bounding box plus the padding and
// border drawn inside it.
type Box struct {
	Width   float64 `json:"width" yaml:"width"`
	Height  float64 `json:"height" yaml:"height"`
	Padding Insets  `json:"padding" yaml:"padding"`
	Border  Insets  `json:"border" yaml:"border"`
}

// ContentBox returns the space a render target can actually occupy inside
// container: the bounding box minus container padding and border and minus
// the target's own margin. Each axis is floored at 1.
func ContentBox(container Box, margin Insets) Size {
	w := container.Width - container.Padding.Horizontal() - container.Border.Horizontal() - margin.Horizontal()
	h := container.Height - container.Padding.Vertical() - container.Border.Vertical() - margin.Vertical()
	return Size{Width: math.Max(1, w), Height: math.Max(1, h)}
}
