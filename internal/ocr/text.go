package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// pageBreak separates pages in extracted text, matching pdftotext output.
const pageBreak = "\f"

// Extractor pulls the text layer out of a document.
type Extractor interface {
	ExtractText(ctx context.Context, doc Document, mimeType string) (string, error)
	Accepts(mimeType string) bool
	Name() string
}

// NewExtractor creates an Extractor for the configured text engine.
func NewExtractor(cfg config.TextConfig) (Extractor, error) {
	switch cfg.Engine {
	case "pdftotext", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral engine requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	case "native":
		return NewNativePDF(), nil
	default:
		return nil, eris.Errorf("ocr: unknown text engine %q", cfg.Engine)
	}
}

// TextClient extracts the text layer with an Extractor and finds invoice
// fields by scanning it for labels.
type TextClient struct {
	ext Extractor
}

// NewTextClient wraps a text extractor.
func NewTextClient(ext Extractor) *TextClient {
	return &TextClient{ext: ext}
}

// Name returns the provider name.
func (c *TextClient) Name() string { return "text/" + c.ext.Name() }

// Extract reads the document text and scans it for labelled fields and a
// line-item table.
func (c *TextClient) Extract(ctx context.Context, doc Document) (*model.RawExtraction, error) {
	mt, err := DetectMIME(doc)
	if err != nil {
		return nil, err
	}
	if !c.ext.Accepts(mt) {
		return nil, eris.Wrapf(ErrUnsupportedFileType, "ocr: %s cannot read %s", c.ext.Name(), mt)
	}

	text, err := c.ext.ExtractText(ctx, doc, mt)
	if err != nil {
		return nil, err
	}

	scan := ScanLabels(text)
	raw := &model.RawExtraction{
		Text:            text,
		Entities:        scan.Entities,
		LineItemCells:   scan.Cells,
		LineItemColumns: scan.Columns,
		Provider:        c.Name(),
	}
	if strings.TrimSpace(text) != "" {
		raw.PageCount = strings.Count(strings.TrimRight(text, pageBreak+"\n"), pageBreak) + 1
	}
	return raw, nil
}
