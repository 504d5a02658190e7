package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// Name returns the engine name.
func (p *PdfToText) Name() string { return "pdftotext" }

// Accepts reports whether the engine can read mimeType.
func (p *PdfToText) Accepts(mimeType string) bool { return mimeType == MIMEPDF }

// ExtractText writes the document to a temp file, runs pdftotext -layout on
// it and returns stdout.
func (p *PdfToText) ExtractText(ctx context.Context, doc Document, _ string) (string, error) {
	f, err := os.CreateTemp("", "invoice-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "ocr: create temp file")
	}
	defer os.Remove(f.Name()) //nolint:errcheck

	if _, err := f.Write(doc.Content); err != nil {
		f.Close() //nolint:errcheck,gosec
		return "", eris.Wrap(err, "ocr: write temp file")
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "ocr: close temp file")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", f.Name(), "-") //nolint:gosec

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", doc.Name, stderr.String())
	}

	return stdout.String(), nil
}
