package pdfdoc

import (
	"context"
	"fmt"

	"github.com/mcdev12/deckcast/go/internal/viewer/document"
	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
)

type pageInfo struct {
	size     fit.Size
	rotation int
}

// Document is a parsed PDF. It keeps the raw bytes so a rasterizer can open
// its own handle on them.
type Document struct {
	source string
	data   []byte
	pages  []pageInfo
}

// NewDocument builds a document from already-known page geometry.
func NewDocument(source string, data []byte, sizes []fit.Size, rotations []int) *Document {
	pages := make([]pageInfo, len(sizes))
	for i, s := range sizes {
		pages[i].size = s
		if i < len(rotations) {
			pages[i].rotation = rotations[i]
		}
	}
	return &Document{source: source, data: data, pages: pages}
}

// Source implements document.Document.
func (d *Document) Source() string { return d.source }

// PageCount implements document.Document.
func (d *Document) PageCount() int { return len(d.pages) }

// Data returns the raw document bytes. Callers must not modify them.
func (d *Document) Data() []byte { return d.data }

// Page implements document.Document.
func (d *Document) Page(ctx context.Context, n int) (document.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &document.PageError{Page: n, Err: err}
	}
	if n < 1 || n > len(d.pages) {
		return nil, &document.PageError{Page: n, Err: fmt.Errorf("out of range 1..%d", len(d.pages))}
	}
	return &Page{doc: d, number: n, info: d.pages[n-1]}, nil
}

// Page is a page of a Document.
type Page struct {
	doc    *Document
	number int
	info   pageInfo
}

func (p *Page) Number() int { return p.number }
func (p *Page) Size() fit.Size { return p.info.size }
func (p *Page) Rotation() int { return p.info.rotation }
func (p *Page) Document() document.Document { return p.doc }
