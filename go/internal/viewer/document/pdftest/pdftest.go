// Package pdftest builds small, valid PDF files for tests.
package pdftest

import (
	"fmt"
	"strings"
)

// Page describes one generated page. Boxes are [llx lly urx ury] in points.
type Page struct {
	MediaBox [4]float64
	// CropBox is omitted when nil.
	CropBox *[4]float64
	Rotate  int
}

// Portrait is a 600x800 pt page.
func Portrait() Page {
	return Page{MediaBox: [4]float64{0, 0, 600, 800}}
}

// Deck returns a PDF with one filled rectangle per page and proper xref
// offsets.
func Deck(pages ...Page) []byte {
	// Objects: 1 catalog, 2 pages, then a page and a content stream per page.
	count := 2 + 2*len(pages)
	offsets := make([]int, count+1)

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), len(pages))

	for i, p := range pages {
		pageObj, contentObj := 3+2*i, 4+2*i

		offsets[pageObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox %s", pageObj, box(p.MediaBox))
		if p.CropBox != nil {
			fmt.Fprintf(&b, " /CropBox %s", box(*p.CropBox))
		}
		if p.Rotate != 0 {
			fmt.Fprintf(&b, " /Rotate %d", p.Rotate)
		}
		fmt.Fprintf(&b, " /Contents %d 0 R /Resources << >> >>\nendobj\n", contentObj)

		stream := fmt.Sprintf("0 0 1 rg\n%g %g 100 100 re\nf", p.MediaBox[0]+50, p.MediaBox[1]+50)
		offsets[contentObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", contentObj, len(stream), stream)
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", count+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= count; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", count+1, xref)

	return []byte(b.String())
}

func box(r [4]float64) string {
	return fmt.Sprintf("[%g %g %g %g]", r[0], r[1], r[2], r[3])
}
