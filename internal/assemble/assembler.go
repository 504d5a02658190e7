// Package assemble turns a reconciled invoice draft into the header and
// line-item rows handed to the record sink.
package assemble

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// DefaultMaxLineItems bounds the rows produced for a single invoice.
const DefaultMaxLineItems = 500

const dateLayout = "2006-01-02"

// AssemblyError reports a draft that cannot be turned into rows. Assembly is
// deterministic, so retrying the same draft fails the same way.
type AssemblyError struct {
	Reason string
}

func (e *AssemblyError) Error() string {
	return "assemble: " + e.Reason
}

var recordKeySpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:invoice-intel:record-key"))

// RecordKey derives the key shared by an attempt's rows from the content
// fingerprint, mode and generation. Every attempt of one run gets the same
// key, so a retry after a lost ledger update rewrites nothing; a forced
// reprocess starts a new generation and a new key.
func RecordKey(rec model.FileRecord) string {
	name := string(rec.Mode) + "/" + rec.Fingerprint + "/" + strconv.Itoa(rec.Generation)
	return uuid.NewSHA1(recordKeySpace, []byte(name)).String()
}

// Assembler builds record sets.
type Assembler struct {
	maxLineItems int
	keyFor       func(model.FileRecord) string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithKeyFunc replaces RecordKey.
func WithKeyFunc(fn func(model.FileRecord) string) Option {
	return func(a *Assembler) { a.keyFor = fn }
}

// New creates an Assembler. maxLineItems <= 0 uses DefaultMaxLineItems.
func New(maxLineItems int, opts ...Option) *Assembler {
	if maxLineItems <= 0 {
		maxLineItems = DefaultMaxLineItems
	}
	a := &Assembler{maxLineItems: maxLineItems, keyFor: RecordKey}
	for _, o := range opts {
		o(a)
	}
	return a
}

// FromConfig creates an Assembler from the assemble config section.
func FromConfig(cfg config.AssembleConfig, opts ...Option) *Assembler {
	return New(cfg.MaxLineItems, opts...)
}

// Assemble builds one header row and a row per line item, all sharing the
// record key for rec. The output depends only on draft and rec. Nothing is
// returned on error.
func (a *Assembler) Assemble(draft model.InvoiceDraft, rec model.FileRecord) (*model.RecordSet, error) {
	switch {
	case rec.Fingerprint == "":
		return nil, &AssemblyError{Reason: "file record has no fingerprint"}
	case rec.AttemptID == "":
		return nil, &AssemblyError{Reason: "file record has no ledger attempt"}
	case len(draft.LineItems) > a.maxLineItems:
		return nil, &AssemblyError{
			Reason: fmt.Sprintf("%d line items exceeds the limit of %d", len(draft.LineItems), a.maxLineItems),
		}
	}

	key := a.keyFor(rec)
	processedAt := rec.StartedAt.UTC()
	conf := draft.Confidence()

	header := model.InvoiceHeaderRow{
		RecordKey:        key,
		FileFingerprint:  rec.Fingerprint,
		LedgerAttemptID:  rec.AttemptID,
		ProcessingMode:   rec.Mode,
		OriginalFilename: rec.OriginalFilename,
		StoragePath:      rec.StoragePath,
		InvoiceNumber:    text(draft.InvoiceNumber),
		IssueDate:        date(draft.IssueDate),
		DueDate:          date(draft.DueDate),
		VendorName:       text(draft.VendorName),
		VendorAddress:    text(draft.VendorAddress),
		PaymentTerms:     text(draft.PaymentTerms),
		Currency:         text(draft.Currency),
		Subtotal:         amount(draft.Subtotal),
		Tax:              amount(draft.Tax),
		Total:            amount(draft.Total),
		TotalsConsistent: !draft.TotalsInconsistent,
		LineItemCount:    len(draft.LineItems),
		RefinementUsed:   rec.RefinementUsed,
		ConfidenceMean:   conf.Mean,
		ConfidenceMin:    conf.Min,
		FieldProvenance:  draft.FieldProvenance(),
		RawValues: raws(map[string]string{
			"invoice_number": draft.InvoiceNumber.Raw,
			"issue_date":     draft.IssueDate.Raw,
			"due_date":       draft.DueDate.Raw,
			"vendor_name":    draft.VendorName.Raw,
			"vendor_address": draft.VendorAddress.Raw,
			"payment_terms":  draft.PaymentTerms.Raw,
			"currency":       draft.Currency.Raw,
			"subtotal":       draft.Subtotal.Raw,
			"tax":            draft.Tax.Raw,
			"total":          draft.Total.Raw,
		}),
		Diagnostics: append([]string{}, draft.Diagnostics...),
		ProcessedAt: processedAt,
	}
	slices.Sort(header.Diagnostics)

	lines := make([]model.LineItemRow, len(draft.LineItems))
	for i, li := range draft.LineItems {
		lines[i] = model.LineItemRow{
			RecordKey:       key,
			LineNumber:      i + 1,
			FileFingerprint: rec.Fingerprint,
			Description:     text(li.Description),
			Quantity:        amount(li.Quantity),
			UnitPrice:       amount(li.UnitPrice),
			LineTotal:       amount(li.LineTotal),
			Consistent:      !li.Inconsistent,
			RefinementUsed:  rec.RefinementUsed,
			FieldProvenance: map[string]model.Provenance{
				"description": li.Description.Provenance,
				"quantity":    li.Quantity.Provenance,
				"unit_price":  li.UnitPrice.Provenance,
				"line_total":  li.LineTotal.Provenance,
			},
			RawValues: raws(map[string]string{
				"description": li.Description.Raw,
				"quantity":    li.Quantity.Raw,
				"unit_price":  li.UnitPrice.Raw,
				"line_total":  li.LineTotal.Raw,
			}),
			ProcessedAt: processedAt,
		}
	}

	return &model.RecordSet{RecordKey: key, Header: header, LineItems: lines}, nil
}

func text(f model.Field[string]) *string {
	v, ok := f.Get()
	if !ok {
		return nil
	}
	return &v
}

func date(f model.Field[time.Time]) *string {
	v, ok := f.Get()
	if !ok {
		return nil
	}
	s := v.Format(dateLayout)
	return &s
}

func amount(f model.Field[decimal.Decimal]) *string {
	v, ok := f.Get()
	if !ok {
		return nil
	}
	s := v.String()
	return &s
}

// raws drops empty raw values.
func raws(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
