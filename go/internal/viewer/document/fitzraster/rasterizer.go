// Package fitzraster rasterizes PDF pages with MuPDF through go-fitz.
// It requires cgo.
package fitzraster

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/mcdev12/deckcast/go/internal/viewer/document"
	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
)

// pointsPerInch is the PDF user-space unit.
const pointsPerInch = 72.0

// rawSource is implemented by documents that can hand over their bytes.
type rawSource interface {
	Data() []byte
}

// Rasterizer renders pages with MuPDF. It keeps a MuPDF handle open for the
// current document. Handles of replaced documents are closed once the last
// render still using them returns.
type Rasterizer struct {
	mu      sync.Mutex
	current *handle
}

type handle struct {
	owner   document.Document
	doc     *fitz.Document
	refs    int
	retired bool
}

// New returns a rasterizer with no open document.
func New() *Rasterizer {
	return &Rasterizer{}
}

// Rasterize implements document.Rasterizer. MuPDF cannot be interrupted
// mid-page, so cancellation only takes effect before and after the native
// call.
func (r *Rasterizer) Rasterize(ctx context.Context, page document.Page, vp fit.Viewport) *document.Task {
	return document.Go(ctx, func(ctx context.Context) (image.Image, error) {
		h, err := r.acquire(page.Document())
		if err != nil {
			return nil, err
		}
		defer r.release(h)

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dpi := pointsPerInch * vp.Scale * vp.PixelDensity
		src, err := h.doc.ImageDPI(page.Number()-1, dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", page.Number(), err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// MuPDF rounds the page box on its own; resample so the buffer is
		// exactly the size the viewport asked for.
		w, hgt := vp.PixelSize()
		if src.Bounds().Dx() == w && src.Bounds().Dy() == hgt {
			return src, nil
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, hgt))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		return dst, nil
	})
}

func (r *Rasterizer) acquire(owner document.Document) (*handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.current.owner == owner {
		r.current.refs++
		return r.current, nil
	}

	raw, ok := owner.(rawSource)
	if !ok {
		return nil, fmt.Errorf("document %q does not expose its bytes", owner.Source())
	}
	doc, err := fitz.NewFromMemory(raw.Data())
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}

	if prev := r.current; prev != nil {
		prev.retired = true
		if prev.refs == 0 {
			closeHandle(prev)
		}
	}
	r.current = &handle{owner: owner, doc: doc, refs: 1}
	return r.current, nil
}

func (r *Rasterizer) release(h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h.refs--
	if h.retired && h.refs == 0 {
		closeHandle(h)
	}
}

func closeHandle(h *handle) {
	if err := h.doc.Close(); err != nil {
		log.Warn().Err(err).Str("source", h.owner.Source()).Msg("failed to close MuPDF document")
	}
}

// Close releases the current MuPDF handle. Renders still running keep it
// open until they return.
func (r *Rasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return nil
	}
	h := r.current
	r.current = nil
	h.retired = true
	if h.refs == 0 {
		return h.doc.Close()
	}
	return nil
}
