package screen

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
	"github.com/mcdev12/deckcast/go/internal/viewer/pointer"
	"github.com/mcdev12/deckcast/go/internal/viewer/render"
)

// Compile-time checks that the screen satisfies every collaborator role.
var (
	_ render.Container  = (*Surface)(nil)
	_ render.Target     = (*Surface)(nil)
	_ render.Label      = (*Surface)(nil)
	_ pointer.Indicator = (*Screen)(nil)
	_ pointer.Geometry  = (*Screen)(nil)
)

func TestNewRejectsBadSpecs(t *testing.T) {
	if _, err := New(); err == nil {
		t.Error("New() with no surfaces succeeded")
	}
	_, err := New(Spec{ID: render.SurfaceMain}, Spec{ID: render.SurfaceMain})
	if err == nil {
		t.Error("New() with duplicate surfaces succeeded")
	}
}

func TestSurfaceMeasureAndResize(t *testing.T) {
	sc, err := New(Spec{ID: render.SurfaceMain, Layout: Layout{
		Width:   800,
		Height:  600,
		Padding: fit.Uniform(10),
		Border:  fit.Uniform(1),
		Margin:  fit.Uniform(4),
	}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	surf := sc.Surface(render.SurfaceMain)

	content := fit.ContentBox(surf.Measure(), surf.Margin())
	if diff := cmp.Diff(fit.Size{Width: 770, Height: 570}, content); diff != "" {
		t.Errorf("content box mismatch (-want +got):\n%s", diff)
	}
	if surf.PixelDensity() != 1 {
		t.Errorf("default pixel density = %v, want 1", surf.PixelDensity())
	}

	surf.Resize(400, 300)
	if got := surf.Measure(); got.Width != 400 || got.Height != 300 {
		t.Errorf("Measure() after resize = %+v", got)
	}
}

func TestSurfaceRectCentersFrame(t *testing.T) {
	sc, _ := New(Spec{ID: render.SurfaceMain, Layout: Layout{Width: 800, Height: 600, Padding: fit.Uniform(10)}})
	surf := sc.Surface(render.SurfaceMain)

	if got := sc.SurfaceRect(); got != (pointer.Rect{Left: 10, Top: 10, Width: 780, Height: 580}) {
		t.Errorf("rect before first frame = %+v", got)
	}

	surf.Commit(render.Frame{
		Surface:  render.SurfaceMain,
		Page:     1,
		Viewport: fit.Viewport{Scale: 0.5, PixelDensity: 1, Width: 300, Height: 580},
	})
	want := pointer.Rect{Left: 250, Top: 10, Width: 300, Height: 580}
	if got := sc.SurfaceRect(); got != want {
		t.Errorf("rect = %+v, want %+v", got, want)
	}
	if got := sc.OverlayRect(); got != (pointer.Rect{Width: 800, Height: 600}) {
		t.Errorf("overlay = %+v", got)
	}
}

func TestWritePNG(t *testing.T) {
	sc, _ := New(Spec{ID: render.SurfaceMain, Layout: Layout{Width: 100, Height: 100}})
	surf := sc.Surface(render.SurfaceMain)

	var buf bytes.Buffer
	if err := surf.WritePNG(&buf); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("WritePNG() before commit = %v, want ErrNoFrame", err)
	}

	surf.Commit(render.Frame{Image: image.NewRGBA(image.Rect(0, 0, 12, 7))})
	if err := surf.WritePNG(&buf); err != nil {
		t.Fatalf("WritePNG() error = %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 12 || b.Dy() != 7 {
		t.Errorf("decoded size = %v", b)
	}
}

func TestPointerAndTimerState(t *testing.T) {
	sc, _ := New(
		Spec{ID: render.SurfaceCurrent, Layout: Layout{Width: 800, Height: 600}},
		Spec{ID: render.SurfaceNext, Layout: Layout{Width: 400, Height: 300}},
	)

	if x, y := sc.Indicator(); x != pointer.Offscreen || y != pointer.Offscreen {
		t.Errorf("initial indicator = (%v, %v), want offscreen", x, y)
	}
	sc.Translate(12, 34)
	if x, y := sc.Indicator(); x != 12 || y != 34 {
		t.Errorf("indicator = (%v, %v)", x, y)
	}

	sc.ShowElapsed(83*time.Second + 400*time.Millisecond)
	if got := sc.TimerText(); got != "01:23.4" {
		t.Errorf("TimerText() = %q", got)
	}

	sc.Surface(render.SurfaceNext).SetText("Next: 2/5")
	info := sc.Info()
	if len(info.Surfaces) != 2 || info.Surfaces[1].Label != "Next: 2/5" {
		t.Errorf("info surfaces = %+v", info.Surfaces)
	}
	if info.Timer != "01:23.4" || info.Indicator != [2]float64{12, 34} {
		t.Errorf("info = %+v", info)
	}
}

func TestSurfaceConfigs(t *testing.T) {
	sc, _ := New(
		Spec{ID: render.SurfaceCurrent, Layout: Layout{Width: 800, Height: 600}},
		Spec{ID: render.SurfaceNext, Layout: Layout{Width: 400, Height: 300}},
	)

	type row struct {
		ID     render.SurfaceID
		Prefix string
		Offset int
	}
	var got []row
	for _, cfg := range sc.SurfaceConfigs() {
		got = append(got, row{cfg.ID, cfg.LabelPrefix, cfg.Offset})
		if cfg.Container != sc.Surface(cfg.ID) || cfg.Target != sc.Surface(cfg.ID) {
			t.Errorf("surface %s not wired to itself", cfg.ID)
		}
	}
	want := []row{
		{render.SurfaceCurrent, "Current: ", 0},
		{render.SurfaceNext, "Next: ", 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("configs mismatch (-want +got):\n%s", diff)
	}
}
