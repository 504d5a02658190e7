package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Diagnostic flags attached to a draft.
const (
	DiagEmptyExtraction       = "empty_extraction"
	DiagTotalsInconsistent    = "totals_inconsistent"
	DiagLineItemsInconsistent = "line_items_inconsistent"
	DiagAmbiguousAmount       = "ambiguous_amount"
	DiagUnparsedDate          = "unparsed_date"
)

// Money is a monetary or quantity field.
type Money = Field[decimal.Decimal]

// LineItem is one invoice line. Incomplete rows are kept with unresolved fields.
type LineItem struct {
	Row          int           `json:"row"`
	Description  Field[string] `json:"description"`
	Quantity     Money         `json:"quantity"`
	UnitPrice    Money         `json:"unit_price"`
	LineTotal    Money         `json:"line_total"`
	Inconsistent bool          `json:"inconsistent"`
}

// CheckTotal reports whether quantity x unit price differs from the line
// total by less than tol. Lines missing any of the three values are not
// checkable and report true.
func (li LineItem) CheckTotal(tol decimal.Decimal) bool {
	q, okQ := li.Quantity.Get()
	p, okP := li.UnitPrice.Get()
	t, okT := li.LineTotal.Get()
	if !okQ || !okP || !okT {
		return true
	}
	return q.Mul(p).Sub(t).Abs().LessThan(tol)
}

// InvoiceDraft is the partially resolved invoice produced by normalization and
// adjusted by reconciliation. It belongs to a single processing attempt.
type InvoiceDraft struct {
	InvoiceNumber Field[string]    `json:"invoice_number"`
	IssueDate     Field[time.Time] `json:"issue_date"`
	DueDate       Field[time.Time] `json:"due_date"`
	VendorName    Field[string]    `json:"vendor_name"`
	VendorAddress Field[string]    `json:"vendor_address"`
	PaymentTerms  Field[string]    `json:"payment_terms"`
	Subtotal      Money            `json:"subtotal"`
	Tax           Money            `json:"tax"`
	Total         Money            `json:"total"`
	Currency      Field[string]    `json:"currency"`
	LineItems     []LineItem       `json:"line_items"`

	TotalsInconsistent bool     `json:"totals_inconsistent"`
	Diagnostics        []string `json:"diagnostics,omitempty"`
}

// NewUnresolvedDraft returns a draft with every header field unresolved.
func NewUnresolvedDraft() InvoiceDraft {
	return InvoiceDraft{
		InvoiceNumber: Unresolved[string](""),
		IssueDate:     Unresolved[time.Time](""),
		DueDate:       Unresolved[time.Time](""),
		VendorName:    Unresolved[string](""),
		VendorAddress: Unresolved[string](""),
		PaymentTerms:  Unresolved[string](""),
		Subtotal:      Unresolved[decimal.Decimal](""),
		Tax:           Unresolved[decimal.Decimal](""),
		Total:         Unresolved[decimal.Decimal](""),
		Currency:      Unresolved[string](""),
	}
}

// Clone returns a deep copy of the draft.
func (d InvoiceDraft) Clone() InvoiceDraft {
	out := d
	out.LineItems = slices.Clone(d.LineItems)
	out.Diagnostics = slices.Clone(d.Diagnostics)
	return out
}

// CheckTotals reports whether subtotal + tax differs from total by less than
// tol. Drafts missing any of the three values report true.
func (d InvoiceDraft) CheckTotals(tol decimal.Decimal) bool {
	s, okS := d.Subtotal.Get()
	x, okX := d.Tax.Get()
	t, okT := d.Total.Get()
	if !okS || !okX || !okT {
		return true
	}
	return s.Add(x).Sub(t).Abs().LessThan(tol)
}

// Evaluate recomputes the consistency flags and the diagnostics derived from
// them.
func (d *InvoiceDraft) Evaluate(tol decimal.Decimal) {
	d.TotalsInconsistent = !d.CheckTotals(tol)
	anyLine := false
	for i := range d.LineItems {
		d.LineItems[i].Inconsistent = !d.LineItems[i].CheckTotal(tol)
		if d.LineItems[i].Inconsistent {
			anyLine = true
		}
	}

	d.Diagnostics = slices.DeleteFunc(d.Diagnostics, func(s string) bool {
		return s == DiagTotalsInconsistent || s == DiagLineItemsInconsistent
	})
	if d.TotalsInconsistent {
		d.AddDiagnostic(DiagTotalsInconsistent)
	}
	if anyLine {
		d.AddDiagnostic(DiagLineItemsInconsistent)
	}
}

// AddDiagnostic appends a flag once.
func (d *InvoiceDraft) AddDiagnostic(flag string) {
	if !slices.Contains(d.Diagnostics, flag) {
		d.Diagnostics = append(d.Diagnostics, flag)
	}
}

// HasDiagnostic reports whether flag is set.
func (d InvoiceDraft) HasDiagnostic(flag string) bool {
	return slices.Contains(d.Diagnostics, flag)
}

// FieldProvenance returns the provenance of every header field keyed by
// column name.
func (d InvoiceDraft) FieldProvenance() map[string]Provenance {
	return map[string]Provenance{
		"invoice_number": d.InvoiceNumber.Provenance,
		"issue_date":     d.IssueDate.Provenance,
		"due_date":       d.DueDate.Provenance,
		"vendor_name":    d.VendorName.Provenance,
		"vendor_address": d.VendorAddress.Provenance,
		"payment_terms":  d.PaymentTerms.Provenance,
		"subtotal":       d.Subtotal.Provenance,
		"tax":            d.Tax.Provenance,
		"total":          d.Total.Provenance,
		"currency":       d.Currency.Provenance,
	}
}

// ConfidenceSummary aggregates extractor confidence over extracted fields.
type ConfidenceSummary struct {
	Mean    float64 `json:"mean"`
	Min     float64 `json:"min"`
	Fields  int     `json:"fields"`
	Refined int     `json:"refined"`
}

// Confidence summarizes confidence of the extracted header fields. Refined
// fields are counted but carry no extractor confidence.
func (d InvoiceDraft) Confidence() ConfidenceSummary {
	confs := []struct {
		p Provenance
		c float64
	}{
		{d.InvoiceNumber.Provenance, d.InvoiceNumber.Confidence},
		{d.IssueDate.Provenance, d.IssueDate.Confidence},
		{d.DueDate.Provenance, d.DueDate.Confidence},
		{d.VendorName.Provenance, d.VendorName.Confidence},
		{d.VendorAddress.Provenance, d.VendorAddress.Confidence},
		{d.PaymentTerms.Provenance, d.PaymentTerms.Confidence},
		{d.Subtotal.Provenance, d.Subtotal.Confidence},
		{d.Tax.Provenance, d.Tax.Confidence},
		{d.Total.Provenance, d.Total.Confidence},
		{d.Currency.Provenance, d.Currency.Confidence},
	}

	var s ConfidenceSummary
	var sum float64
	for _, f := range confs {
		switch f.p {
		case ProvenanceExtracted:
			if s.Fields == 0 || f.c < s.Min {
				s.Min = f.c
			}
			sum += f.c
			s.Fields++
		case ProvenanceRefined:
			s.Refined++
		}
	}
	if s.Fields > 0 {
		s.Mean = sum / float64(s.Fields)
	}
	return s
}

// UnresolvedFields lists header fields that are still unresolved.
func (d InvoiceDraft) UnresolvedFields() []string {
	var out []string
	for name, p := range d.FieldProvenance() {
		if p == ProvenanceUnresolved {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
