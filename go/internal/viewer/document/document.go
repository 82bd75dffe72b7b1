// Package document defines the document decoding and rasterization
// collaborators the viewer renders through.
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
)

var (
	// ErrCanceled is the outcome of a rasterization that was superseded.
	// It is expected and never reported.
	ErrCanceled = errors.New("rasterization canceled")

	// ErrNoDocument is returned when rendering is requested before a
	// document has been loaded, or after the last load failed.
	ErrNoDocument = errors.New("no document loaded")
)

// LoadError is returned when a document reference cannot be loaded.
type LoadError struct {
	Ref string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load document %q: %v", e.Ref, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PageError is returned when a page of a loaded document cannot be read.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("get page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Page is one page of a loaded document.
type Page interface {
	// Number is the 1-based page number.
	Number() int
	// Size is the unrotated page size at scale 1.
	Size() fit.Size
	// Rotation is the page's intrinsic rotation in degrees.
	Rotation() int
	// Document is the handle the page belongs to.
	Document() Document
}

// Document is a loaded document handle.
type Document interface {
	Source() string
	PageCount() int
	Page(ctx context.Context, n int) (Page, error)
}

// Loader resolves a reference (path or URL) into a Document.
type Loader interface {
	Load(ctx context.Context, ref string) (Document, error)
}

// Rasterizer starts a cancelable rasterization of a page.
type Rasterizer interface {
	Rasterize(ctx context.Context, page Page, vp fit.Viewport) *Task
}

// ClampPage limits n to [1, count]. With no pages it returns 1.
func ClampPage(n, count int) int {
	if count < 1 {
		return 1
	}
	if n < 1 {
		return 1
	}
	if n > count {
		return count
	}
	return n
}
