// Package pdfdoc loads PDF documents with pdfcpu and exposes their page
// geometry to the viewer.
package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/deckcast/go/internal/viewer/document"
	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
)

// DefaultMaxBytes caps how much of a remote document is read.
const DefaultMaxBytes = 256 << 20

// Loader fetches a document by file path or http(s) URL and parses it.
type Loader struct {
	client   *http.Client
	baseURL  *url.URL
	maxBytes int64
}

// NewLoader creates a loader. Relative references such as "/uploads/x.pdf"
// are resolved against baseURL when it is non-empty.
func NewLoader(baseURL string) (*Loader, error) {
	l := &Loader{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxBytes: DefaultMaxBytes,
	}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base URL: %w", err)
		}
		l.baseURL = u
	}
	return l, nil
}

// Load implements document.Loader. Every failure is a *document.LoadError.
func (l *Loader) Load(ctx context.Context, ref string) (document.Document, error) {
	if ref == "" {
		return nil, &document.LoadError{Ref: ref, Err: fmt.Errorf("empty reference")}
	}

	data, err := l.fetch(ctx, ref)
	if err != nil {
		return nil, &document.LoadError{Ref: ref, Err: err}
	}

	doc, err := Parse(ref, data)
	if err != nil {
		return nil, &document.LoadError{Ref: ref, Err: err}
	}

	log.Debug().
		Str("ref", ref).
		Int("pages", doc.PageCount()).
		Int("bytes", len(data)).
		Msg("document loaded")

	return doc, nil
}

func (l *Loader) fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return os.ReadFile(ref)
	}
	if !u.IsAbs() && l.baseURL != nil {
		u = l.baseURL.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return os.ReadFile(ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("document server returned status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", l.maxBytes)
	}
	return data, nil
}

// Parse reads page count and per-page boxes and rotation from raw PDF bytes.
func Parse(source string, data []byte) (*Document, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	if ctx.PageCount < 1 {
		return nil, fmt.Errorf("document has no pages")
	}

	pages := make([]pageInfo, ctx.PageCount)
	for n := 1; n <= ctx.PageCount; n++ {
		_, _, attrs, err := ctx.PageDict(n, false)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		if attrs == nil {
			return nil, fmt.Errorf("page %d: missing page attributes", n)
		}
		box := attrs.CropBox
		if box == nil {
			box = attrs.MediaBox
		}
		if box == nil {
			return nil, fmt.Errorf("page %d: no media box", n)
		}
		pages[n-1] = pageInfo{
			size:     fit.Size{Width: box.Width(), Height: box.Height()},
			rotation: attrs.Rotate,
		}
	}

	return &Document{source: source, data: data, pages: pages}, nil
}
