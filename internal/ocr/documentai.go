package ocr

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/pkg/docai"
)

// DocumentAI extracts invoices with a Document AI invoice processor.
type DocumentAI struct {
	api docai.Client
}

// NewDocumentAI wraps a Document AI client.
func NewDocumentAI(api docai.Client) *DocumentAI {
	return &DocumentAI{api: api}
}

// Name returns the provider name.
func (d *DocumentAI) Name() string { return "documentai" }

// Extract sends the document to the processor and maps its entities and
// tables onto a RawExtraction.
func (d *DocumentAI) Extract(ctx context.Context, doc Document) (*model.RawExtraction, error) {
	mt, err := DetectMIME(doc)
	if err != nil {
		return nil, err
	}

	out, err := d.api.Process(ctx, doc.Content, mt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ocr: documentai")
		}
		var apiErr *docai.APIError
		if errors.As(err, &apiErr) {
			return nil, classify(d.Name(), apiErr.StatusCode, apiErr.RetryAfter, apiErr)
		}
		return nil, classify(d.Name(), 0, "", err)
	}

	raw := &model.RawExtraction{
		Text:      out.Text,
		Provider:  d.Name(),
		PageCount: len(out.Pages),
	}
	for _, e := range out.Entities {
		raw.Entities = append(raw.Entities, convertEntity(out, e))
	}
	raw.LineItemColumns, raw.LineItemCells = tableCells(out)
	return raw, nil
}

func convertEntity(doc *docai.Document, e docai.Entity) model.Entity {
	ent := model.Entity{
		Kind:       e.Type,
		Value:      e.MentionText,
		Confidence: e.Confidence,
	}
	if e.NormalizedValue != nil {
		ent.NormalizedValue = e.NormalizedValue.Text
	}
	if e.TextAnchor != nil && len(e.TextAnchor.TextSegments) > 0 {
		segs := e.TextAnchor.TextSegments
		ent.Span = model.Span{Start: int(segs[0].StartIndex), End: int(segs[len(segs)-1].EndIndex)}
		if ent.Value == "" {
			ent.Value = doc.AnchorText(e.TextAnchor)
		}
	}
	for _, p := range e.Properties {
		ent.Properties = append(ent.Properties, convertEntity(doc, p))
	}
	return ent
}

// tableCells flattens detected tables into line-item cells. The header of the
// first table that has one names the columns; body rows are numbered across
// tables starting at 1.
func tableCells(doc *docai.Document) ([]string, []model.LineItemCell) {
	var (
		columns []string
		cells   []model.LineItemCell
		row     int
	)
	for _, page := range doc.Pages {
		for _, table := range page.Tables {
			if columns == nil && len(table.HeaderRows) > 0 {
				for _, c := range table.HeaderRows[0].Cells {
					columns = append(columns, cellText(doc, c))
				}
			}
			for _, r := range table.BodyRows {
				row++
				for col, c := range r.Cells {
					text := cellText(doc, c)
					if text == "" {
						continue
					}
					cells = append(cells, model.LineItemCell{
						Row:        row,
						Column:     col,
						Text:       text,
						Confidence: c.Layout.Confidence,
					})
				}
			}
		}
	}
	return columns, cells
}

func cellText(doc *docai.Document, c docai.TableCell) string {
	return strings.Join(strings.Fields(doc.AnchorText(c.Layout.TextAnchor)), " ")
}
