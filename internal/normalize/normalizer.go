// Package normalize turns a raw extraction into a typed invoice draft.
// Normalization never fails: anything that cannot be read becomes an
// unresolved field with its raw text kept for audit.
package normalize

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// Options controls parsing and consistency checks.
type Options struct {
	Tolerance   decimal.Decimal
	DateFormats []string
}

// DefaultTolerance is the absolute difference allowed in totals checks.
var DefaultTolerance = decimal.RequireFromString("0.01")

// OptionsFromConfig builds Options from the normalize config section.
func OptionsFromConfig(c config.NormalizeConfig) (Options, error) {
	opts := Options{Tolerance: DefaultTolerance, DateFormats: c.DateFormats}
	if c.Tolerance != "" {
		tol, err := decimal.NewFromString(c.Tolerance)
		if err != nil {
			return Options{}, err
		}
		opts.Tolerance = tol.Abs()
	}
	if len(opts.DateFormats) == 0 {
		opts.DateFormats = config.DefaultDateFormats
	}
	return opts, nil
}

// Header fields an entity kind can map to.
const (
	fieldInvoiceNumber = "invoice_number"
	fieldIssueDate     = "issue_date"
	fieldDueDate       = "due_date"
	fieldVendorName    = "vendor_name"
	fieldVendorAddress = "vendor_address"
	fieldPaymentTerms  = "payment_terms"
	fieldSubtotal      = "subtotal"
	fieldTax           = "tax"
	fieldTotal         = "total"
	fieldCurrency      = "currency"
)

var entityAliases = map[string]string{
	"invoice_id":       fieldInvoiceNumber,
	"invoice_number":   fieldInvoiceNumber,
	"invoice_date":     fieldIssueDate,
	"issue_date":       fieldIssueDate,
	"due_date":         fieldDueDate,
	"supplier_name":    fieldVendorName,
	"vendor_name":      fieldVendorName,
	"supplier_address": fieldVendorAddress,
	"vendor_address":   fieldVendorAddress,
	"payment_terms":    fieldPaymentTerms,
	"net_amount":       fieldSubtotal,
	"subtotal":         fieldSubtotal,
	"total_tax_amount": fieldTax,
	"tax":              fieldTax,
	"total_amount":     fieldTotal,
	"total":            fieldTotal,
	"currency":         fieldCurrency,
}

// Normalizer maps raw extractions onto drafts.
type Normalizer struct {
	opts Options
	log  *zap.Logger
}

// New creates a Normalizer. Missing options fall back to defaults.
func New(opts Options) *Normalizer {
	if len(opts.DateFormats) == 0 {
		opts.DateFormats = config.DefaultDateFormats
	}
	if opts.Tolerance.IsZero() {
		opts.Tolerance = DefaultTolerance
	}
	return &Normalizer{opts: opts, log: zap.L().Named("normalize")}
}

// Tolerance returns the configured consistency tolerance.
func (n *Normalizer) Tolerance() decimal.Decimal {
	return n.opts.Tolerance
}

// DateFormats returns the accepted date layouts in priority order.
func (n *Normalizer) DateFormats() []string {
	return n.opts.DateFormats
}

// Normalize builds a draft from raw. It never fails.
func (n *Normalizer) Normalize(raw model.RawExtraction) model.InvoiceDraft {
	draft := model.NewUnresolvedDraft()
	if raw.Empty() {
		draft.AddDiagnostic(model.DiagEmptyExtraction)
		return draft
	}
	diag := func(flag string) { draft.AddDiagnostic(flag) }

	best, ignored := pickEntities(raw.Entities)
	if len(ignored) > 0 {
		n.log.Debug("normalize: ignored entity kinds", zap.Strings("kinds", ignored))
	}

	if e, ok := best[fieldInvoiceNumber]; ok {
		draft.InvoiceNumber = text(e)
	}
	if e, ok := best[fieldVendorName]; ok {
		draft.VendorName = text(e)
	}
	if e, ok := best[fieldVendorAddress]; ok {
		draft.VendorAddress = text(e)
	}
	if e, ok := best[fieldPaymentTerms]; ok {
		draft.PaymentTerms = text(e)
	}
	if e, ok := best[fieldIssueDate]; ok {
		draft.IssueDate = n.date(e, fieldIssueDate, diag)
	}
	if e, ok := best[fieldDueDate]; ok {
		draft.DueDate = n.date(e, fieldDueDate, diag)
	}

	if e, ok := best[fieldCurrency]; ok {
		draft.Currency = currencyField(e)
	}
	hint, _ := draft.Currency.Get()

	for _, f := range []struct {
		name string
		dst  *model.Money
	}{
		{fieldSubtotal, &draft.Subtotal},
		{fieldTax, &draft.Tax},
		{fieldTotal, &draft.Total},
	} {
		e, ok := best[f.name]
		if !ok {
			continue
		}
		*f.dst = n.money(e.Value, hint, e.Confidence, f.name, diag)
		if !draft.Currency.Resolved() {
			if code := DetectCurrency(e.Value); code != "" {
				draft.Currency = model.Extracted(code, e.Value, e.Confidence)
			}
		}
	}

	hint, _ = draft.Currency.Get()
	draft.LineItems = n.lineItems(raw, hint, diag)

	draft.Evaluate(n.opts.Tolerance)
	return draft
}

// pickEntities keeps the highest-confidence mention per field and lists the
// kinds that map to nothing.
func pickEntities(entities []model.Entity) (map[string]model.Entity, []string) {
	best := make(map[string]model.Entity)
	unknown := make(map[string]bool)
	for _, e := range entities {
		kind := strings.ToLower(strings.TrimSpace(e.Kind))
		field, ok := entityAliases[kind]
		if !ok {
			if kind != "line_item" {
				unknown[kind] = true
			}
			continue
		}
		if cur, seen := best[field]; !seen || e.Confidence > cur.Confidence {
			best[field] = e
		}
	}

	ignored := make([]string, 0, len(unknown))
	for k := range unknown {
		ignored = append(ignored, k)
	}
	sort.Strings(ignored)
	return best, ignored
}

func text(e model.Entity) model.Field[string] {
	v := collapse(e.Value)
	if v == "" {
		v = collapse(e.NormalizedValue)
	}
	if v == "" {
		return model.Unresolved[string](e.Value)
	}
	return model.Extracted(v, e.Value, e.Confidence)
}

func (n *Normalizer) date(e model.Entity, field string, diag func(string)) model.Field[time.Time] {
	t, err := ParseDate(e.Value, e.NormalizedValue, n.opts.DateFormats)
	if err != nil {
		diag(model.DiagUnparsedDate + ":" + field)
		return model.Unresolved[time.Time](e.Value)
	}
	return model.Extracted(t, e.Value, e.Confidence)
}

func currencyField(e model.Entity) model.Field[string] {
	for _, s := range []string{e.NormalizedValue, e.Value} {
		if code, ok := ParseCurrency(s); ok {
			return model.Extracted(code, e.Value, e.Confidence)
		}
	}
	if code := DetectCurrency(e.Value); code != "" {
		return model.Extracted(code, e.Value, e.Confidence)
	}
	return model.Unresolved[string](e.Value)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
