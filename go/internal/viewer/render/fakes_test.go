package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/deckcast/go/internal/viewer/document"
	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
	"github.com/mcdev12/deckcast/go/internal/viewer/frame"
)

type fakePage struct {
	doc *fakeDoc
	n   int
}

func (p fakePage) Number() int                 { return p.n }
func (p fakePage) Size() fit.Size              { return fit.Size{Width: 600, Height: 800} }
func (p fakePage) Rotation() int               { return 0 }
func (p fakePage) Document() document.Document { return p.doc }

type fakeDoc struct {
	name  string
	pages int
}

func (d *fakeDoc) Source() string { return d.name }
func (d *fakeDoc) PageCount() int { return d.pages }
func (d *fakeDoc) Page(_ context.Context, n int) (document.Page, error) {
	if n < 1 || n > d.pages {
		return nil, &document.PageError{Page: n, Err: errors.New("out of range")}
	}
	return fakePage{doc: d, n: n}, nil
}

type fakeLoader struct {
	mu      sync.Mutex
	docs    map[string]*fakeDoc
	gates   map[string]chan struct{}
	entered chan string
}

func newFakeLoader(docs ...*fakeDoc) *fakeLoader {
	l := &fakeLoader{
		docs:    make(map[string]*fakeDoc),
		gates:   make(map[string]chan struct{}),
		entered: make(chan string, 16),
	}
	for _, d := range docs {
		l.docs[d.name] = d
	}
	return l
}

func (l *fakeLoader) gate(ref string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan struct{})
	l.gates[ref] = ch
	return ch
}

func (l *fakeLoader) Load(ctx context.Context, ref string) (document.Document, error) {
	l.entered <- ref
	l.mu.Lock()
	gate := l.gates[ref]
	doc, ok := l.docs[ref]
	l.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, &document.LoadError{Ref: ref, Err: errors.New("not found")}
	}
	return doc, nil
}

// rasterRequest is one Rasterize call. The test decides when and how it
// completes by sending on release; the task ignores cancellation the way a
// rasterizer stuck in native code would.
type rasterRequest struct {
	page    int
	vp      fit.Viewport
	release chan error
}

type gatedRaster struct {
	immediate bool
	requests  chan *rasterRequest

	mu    sync.Mutex
	calls int
}

func newGatedRaster() *gatedRaster {
	return &gatedRaster{requests: make(chan *rasterRequest, 64)}
}

func newImmediateRaster() *gatedRaster {
	r := newGatedRaster()
	r.immediate = true
	return r
}

func (r *gatedRaster) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *gatedRaster) Rasterize(ctx context.Context, page document.Page, vp fit.Viewport) *document.Task {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	req := &rasterRequest{page: page.Number(), vp: vp, release: make(chan error, 1)}
	if r.immediate {
		req.release <- nil
	} else {
		r.requests <- req
	}
	return document.Go(ctx, func(context.Context) (image.Image, error) {
		if err := <-req.release; err != nil {
			return nil, err
		}
		return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
	})
}

func (r *gatedRaster) next(t *testing.T) *rasterRequest {
	t.Helper()
	select {
	case req := <-r.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rasterize request")
		return nil
	}
}

// cancelAwareRaster respects cancellation and reports it through the
// context error.
type cancelAwareRaster struct {
	started chan struct{}
}

func (r *cancelAwareRaster) Rasterize(ctx context.Context, page document.Page, vp fit.Viewport) *document.Task {
	return document.Go(ctx, func(ctx context.Context) (image.Image, error) {
		r.started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

type fakeContainer struct {
	mu  sync.Mutex
	box fit.Box
}

func newContainer(w, h float64) *fakeContainer {
	return &fakeContainer{box: fit.Box{Width: w, Height: h}}
}

func (c *fakeContainer) Measure() fit.Box {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.box
}

func (c *fakeContainer) resize(dw, dh float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.box.Width += dw
	c.box.Height += dh
}

type fakeTarget struct {
	mu        sync.Mutex
	frames    []Frame
	committed chan Frame
	onCommit  func(Frame)
	density   float64
}

func newTarget() *fakeTarget {
	return &fakeTarget{committed: make(chan Frame, 64)}
}

func (t *fakeTarget) Margin() fit.Insets { return fit.Insets{} }

func (t *fakeTarget) PixelDensity() float64 {
	if t.density == 0 {
		return 1
	}
	return t.density
}
func (t *fakeTarget) Commit(f Frame) {
	t.mu.Lock()
	t.frames = append(t.frames, f)
	hook := t.onCommit
	t.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	t.committed <- f
}

func (t *fakeTarget) pages() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int
	for _, f := range t.frames {
		out = append(out, f.Page)
	}
	return out
}

type fakeLabel struct {
	mu   sync.Mutex
	text string
}

func (l *fakeLabel) SetText(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.text = text
}

func (l *fakeLabel) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text
}

// tickUntil steps the manual frame scheduler until done is closed.
func tickUntil(t *testing.T, frames *frame.Manual, done <-chan struct{}) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("timed out ticking frames")
		default:
			frames.Tick(time.Now())
			time.Sleep(time.Millisecond)
		}
	}
}

func runAsync(fn func() error) (<-chan error, <-chan struct{}) {
	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		errCh <- fn()
	}()
	return errCh, done
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for render to return")
		return nil
	}
}

func docWith(name string, pages int) *fakeDoc {
	return &fakeDoc{name: name, pages: pages}
}

func (d *fakeDoc) String() string { return fmt.Sprintf("%s(%d)", d.name, d.pages) }
