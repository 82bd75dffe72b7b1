package pdfdoc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcdev12/deckcast/go/internal/viewer/document"
	"github.com/mcdev12/deckcast/go/internal/viewer/document/pdftest"
	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
)

func TestLoadMissingFile(t *testing.T) {
	l, err := NewLoader("")
	if err != nil {
		t.Fatal(err)
	}
	_, err = l.Load(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))

	var le *document.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *document.LoadError", err)
	}
}

func TestLoadEmptyRef(t *testing.T) {
	l, _ := NewLoader("")
	if _, err := l.Load(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty reference")
	}
}

func TestLoadResolvesRelativeAgainstBase(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		http.NotFound(w, r)
	}))
	defer srv.Close()

	l, err := NewLoader(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	_, err = l.Load(context.Background(), "/static/uploads/deck.pdf")

	var le *document.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *document.LoadError", err)
	}
	if gotPath != "/static/uploads/deck.pdf" {
		t.Errorf("server saw path %q", gotPath)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a pdf"))
	}))
	defer srv.Close()

	l, _ := NewLoader("")
	_, err := l.Load(context.Background(), srv.URL+"/deck.pdf")
	var le *document.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *document.LoadError", err)
	}
}

func TestDocumentPages(t *testing.T) {
	doc := NewDocument("deck.pdf", nil,
		[]fit.Size{{Width: 612, Height: 792}, {Width: 792, Height: 612}},
		[]int{0, 90},
	)
	if doc.PageCount() != 2 {
		t.Fatalf("PageCount = %d", doc.PageCount())
	}

	p, err := doc.Page(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Number() != 2 || p.Rotation() != 90 || p.Size().Width != 792 {
		t.Errorf("page 2 = %d %d %+v", p.Number(), p.Rotation(), p.Size())
	}
	if p.Document() != doc {
		t.Error("page does not point back at its document")
	}

	_, err = doc.Page(context.Background(), 3)
	var pe *document.PageError
	if !errors.As(err, &pe) || pe.Page != 3 {
		t.Errorf("err = %v, want PageError for page 3", err)
	}
}

func TestLoadReadsPageGeometry(t *testing.T) {
	crop := [4]float64{50, 50, 350, 450}
	rotated := pdftest.Portrait()
	rotated.Rotate = 90
	cropped := pdftest.Portrait()
	cropped.CropBox = &crop

	path := filepath.Join(t.TempDir(), "deck.pdf")
	if err := os.WriteFile(path, pdftest.Deck(pdftest.Portrait(), rotated, cropped), 0o644); err != nil {
		t.Fatal(err)
	}

	l, _ := NewLoader("")
	doc, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.PageCount() != 3 {
		t.Fatalf("PageCount() = %d, want 3", doc.PageCount())
	}

	tests := []struct {
		page     int
		size     fit.Size
		rotation int
	}{
		{1, fit.Size{Width: 600, Height: 800}, 0},
		{2, fit.Size{Width: 600, Height: 800}, 90},
		{3, fit.Size{Width: 300, Height: 400}, 0},
	}
	for _, tt := range tests {
		p, err := doc.Page(context.Background(), tt.page)
		if err != nil {
			t.Fatalf("Page(%d) error = %v", tt.page, err)
		}
		if p.Size() != tt.size || p.Rotation() != tt.rotation {
			t.Errorf("page %d: size %+v rotation %d, want %+v rotation %d",
				tt.page, p.Size(), p.Rotation(), tt.size, tt.rotation)
		}
	}
	if raw := doc.(*Document).Data(); len(raw) == 0 {
		t.Error("Data() is empty")
	}
}

func TestLoadOverHTTP(t *testing.T) {
	data := pdftest.Deck(pdftest.Portrait())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(data)
	}))
	defer srv.Close()

	l, err := NewLoader(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := l.Load(context.Background(), "/uploads/deck.pdf")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.PageCount() != 1 || doc.Source() != "/uploads/deck.pdf" {
		t.Errorf("doc = %d pages from %q", doc.PageCount(), doc.Source())
	}
}
