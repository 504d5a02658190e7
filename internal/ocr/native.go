package ocr

import (
	"bytes"
	"context"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// NativePDF reads the PDF text layer in process, without external tools.
type NativePDF struct{}

// NewNativePDF creates a NativePDF extractor.
func NewNativePDF() *NativePDF { return &NativePDF{} }

// Name returns the engine name.
func (n *NativePDF) Name() string { return "native" }

// Accepts reports whether the engine can read mimeType.
func (n *NativePDF) Accepts(mimeType string) bool { return mimeType == MIMEPDF }

// ExtractText rebuilds each page row by row. Pages are separated by form
// feeds.
func (n *NativePDF) ExtractText(ctx context.Context, doc Document, _ string) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("ocr: malformed PDF %s: %v", doc.Name, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	if err != nil {
		return "", eris.Wrapf(err, "ocr: open PDF %s", doc.Name)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", eris.Wrap(err, "ocr: native extraction")
		}
		if i > 1 {
			sb.WriteString(pageBreak)
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", eris.Wrapf(err, "ocr: read page %d of %s", i, doc.Name)
		}
		for _, row := range rows {
			sb.WriteString(joinRow(row.Content))
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}

// joinRow places text runs by their horizontal gaps: adjacent runs are
// concatenated, a word-sized gap becomes a space and anything wider becomes a
// column break of two spaces.
func joinRow(runs []pdf.Text) string {
	var sb strings.Builder
	for i, t := range runs {
		if i > 0 {
			prev := runs[i-1]
			gap := t.X - (prev.X + prev.W)
			size := max(prev.FontSize, 1)
			switch {
			case gap > size:
				sb.WriteString("  ")
			case gap > size*0.15:
				sb.WriteString(" ")
			}
		}
		sb.WriteString(t.S)
	}
	return strings.TrimSpace(sb.String())
}
