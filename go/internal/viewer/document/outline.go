package document

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
)

// OutlineRasterizer draws a page placeholder: the page frame at the exact
// viewport size with its number in the middle. It needs no native
// libraries, which makes it the fallback when MuPDF is unavailable.
type OutlineRasterizer struct {
	Background color.Color
	Frame      color.Color
	Ink        color.Color
}

// NewOutlineRasterizer returns a rasterizer with a white page, grey frame
// and black label.
func NewOutlineRasterizer() *OutlineRasterizer {
	return &OutlineRasterizer{
		Background: color.White,
		Frame:      color.Gray{Y: 0x99},
		Ink:        color.Black,
	}
}

// Rasterize implements Rasterizer.
func (r *OutlineRasterizer) Rasterize(ctx context.Context, page Page, vp fit.Viewport) *Task {
	return Go(ctx, func(ctx context.Context) (image.Image, error) {
		w, h := vp.PixelSize()
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("empty viewport %dx%d", w, h)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(img, img.Bounds(), image.NewUniform(r.Background), image.Point{}, draw.Src)

		stroke := int(math.Max(1, math.Round(vp.PixelDensity)))
		frame := image.NewUniform(r.Frame)
		for _, edge := range []image.Rectangle{
			image.Rect(0, 0, w, stroke),
			image.Rect(0, h-stroke, w, h),
			image.Rect(0, 0, stroke, h),
			image.Rect(w-stroke, 0, w, h),
		} {
			draw.Draw(img, edge, frame, image.Point{}, draw.Src)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		label := fmt.Sprintf("%d", page.Number())
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(r.Ink),
			Face: basicfont.Face7x13,
		}
		tw := d.MeasureString(label).Ceil()
		d.Dot = fixed.P((w-tw)/2, h/2+basicfont.Face7x13.Ascent/2)
		d.DrawString(label)

		return img, nil
	})
}
