// Package export writes persisted invoices to spreadsheet workbooks.
package export

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/internal/sink"
)

// Sheet names in an exported workbook.
const (
	SheetInvoices  = "Invoices"
	SheetLineItems = "Line Items"
)

const amountFormat = "#,##0.00"

// HeaderColumns are the Invoices sheet columns in order.
var HeaderColumns = []string{
	"Record Key", "Fingerprint", "Mode", "File", "Invoice Number", "Issue Date",
	"Due Date", "Vendor", "Vendor Address", "Payment Terms", "Currency",
	"Subtotal", "Tax", "Total", "Totals Consistent", "Line Items",
	"Refinement Used", "Confidence Mean", "Confidence Min", "Diagnostics", "Processed At",
}

// LineItemColumns are the Line Items sheet columns in order.
var LineItemColumns = []string{
	"Record Key", "Line", "Description", "Quantity", "Unit Price", "Line Total", "Consistent", "Refinement Used",
}

// Summary counts what a workbook holds.
type Summary struct {
	Invoices  int `json:"invoices"`
	LineItems int `json:"line_items"`
}

// Write renders every header matching q, and its line items, as a workbook.
func Write(ctx context.Context, r sink.Reader, q sink.HeaderQuery, w io.Writer) (Summary, error) {
	headers, err := r.ListHeaders(ctx, q)
	if err != nil {
		return Summary{}, eris.Wrap(err, "export: list headers")
	}

	f := xlsx.NewFile()
	invoices, err := f.AddSheet(SheetInvoices)
	if err != nil {
		return Summary{}, eris.Wrap(err, "export: add invoices sheet")
	}
	lines, err := f.AddSheet(SheetLineItems)
	if err != nil {
		return Summary{}, eris.Wrap(err, "export: add line items sheet")
	}
	titleRow(invoices, HeaderColumns)
	titleRow(lines, LineItemColumns)

	var sum Summary
	for i := range headers {
		if err := ctx.Err(); err != nil {
			return Summary{}, eris.Wrap(err, "export: canceled")
		}
		h := &headers[i]
		headerRow(invoices.AddRow(), h)
		sum.Invoices++

		items, err := r.ListLineItems(ctx, h.RecordKey)
		if err != nil {
			return Summary{}, eris.Wrapf(err, "export: list line items for %s", h.RecordKey)
		}
		for j := range items {
			lineItemRow(lines.AddRow(), &items[j])
			sum.LineItems++
		}
	}

	if err := f.Write(w); err != nil {
		return Summary{}, eris.Wrap(err, "export: write workbook")
	}
	zap.L().Debug("export: workbook written", zap.Int("invoices", sum.Invoices), zap.Int("line_items", sum.LineItems))
	return sum, nil
}

// WriteFile is Write to a file path.
func WriteFile(ctx context.Context, r sink.Reader, q sink.HeaderQuery, path string) (Summary, error) {
	out, err := os.Create(path) //nolint:gosec
	if err != nil {
		return Summary{}, eris.Wrapf(err, "export: create %s", path)
	}
	sum, err := Write(ctx, r, q, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = eris.Wrapf(cerr, "export: close %s", path)
	}
	return sum, err
}

func titleRow(sheet *xlsx.Sheet, titles []string) {
	row := sheet.AddRow()
	for _, t := range titles {
		row.AddCell().SetString(t)
	}
}

func headerRow(row *xlsx.Row, h *model.InvoiceHeaderRow) {
	str(row, h.RecordKey)
	str(row, h.FileFingerprint)
	str(row, string(h.ProcessingMode))
	str(row, h.OriginalFilename)
	opt(row, h.InvoiceNumber)
	opt(row, h.IssueDate)
	opt(row, h.DueDate)
	opt(row, h.VendorName)
	opt(row, h.VendorAddress)
	opt(row, h.PaymentTerms)
	opt(row, h.Currency)
	amount(row, h.Subtotal)
	amount(row, h.Tax)
	amount(row, h.Total)
	row.AddCell().SetBool(h.TotalsConsistent)
	row.AddCell().SetInt(h.LineItemCount)
	row.AddCell().SetBool(h.RefinementUsed)
	row.AddCell().SetFloatWithFormat(h.ConfidenceMean, "0.00")
	row.AddCell().SetFloatWithFormat(h.ConfidenceMin, "0.00")
	str(row, strings.Join(h.Diagnostics, ", "))
	row.AddCell().SetDateTime(h.ProcessedAt.UTC())
}

func lineItemRow(row *xlsx.Row, li *model.LineItemRow) {
	str(row, li.RecordKey)
	row.AddCell().SetInt(li.LineNumber)
	opt(row, li.Description)
	amount(row, li.Quantity)
	amount(row, li.UnitPrice)
	amount(row, li.LineTotal)
	row.AddCell().SetBool(li.Consistent)
	row.AddCell().SetBool(li.RefinementUsed)
}

func str(row *xlsx.Row, v string) {
	row.AddCell().SetString(v)
}

// opt leaves unresolved values blank.
func opt(row *xlsx.Row, v *string) {
	cell := row.AddCell()
	if v != nil {
		cell.SetString(*v)
	}
}

// amount writes decimal strings as numbers. Values that do not parse are kept
// as text.
func amount(row *xlsx.Row, v *string) {
	cell := row.AddCell()
	if v == nil {
		return
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		cell.SetString(*v)
		return
	}
	cell.SetFloatWithFormat(d.InexactFloat64(), amountFormat)
}

// ParseSince accepts a date (2006-01-02), an RFC 3339 timestamp or a
// duration such as 72h counted back from now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d).UTC(), nil
	}
	if days, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil && strings.HasSuffix(s, "d") {
		return now.AddDate(0, 0, -days).UTC(), nil
	}
	return time.Time{}, eris.Errorf("export: cannot parse since %q", s)
}
