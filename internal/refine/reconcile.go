package refine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/internal/normalize"
)

// Options controls how refined values are parsed and checked.
type Options struct {
	Tolerance   decimal.Decimal
	DateFormats []string
}

// Reconcile merges a refinement reply into draft and returns the result. The
// input draft is not modified.
//
// Precedence is unresolved < extracted-consistent < refined-correction:
// a refined value fills any unresolved field, and replaces an extracted value
// only when the field belongs to an inconsistent group (the totals, or one
// line item's numbers) and adopting the refined values makes that group
// consistent. Draft line items are never removed; extra proposed items are
// appended. Reconcile is pure and idempotent.
func Reconcile(draft model.InvoiceDraft, text string, opts Options) model.InvoiceDraft {
	return Apply(draft, ParseProposal(text), opts)
}

// Apply merges an already parsed proposal. See Reconcile.
func Apply(draft model.InvoiceDraft, p Proposal, opts Options) model.InvoiceDraft {
	if opts.Tolerance.IsZero() {
		opts.Tolerance = normalize.DefaultTolerance
	}
	out := draft.Clone()
	out.Evaluate(opts.Tolerance)
	wasInconsistent := out.TotalsInconsistent

	fillText(&out.InvoiceNumber, p.Fields["invoice_number"])
	fillText(&out.VendorName, p.Fields["vendor_name"])
	fillText(&out.VendorAddress, p.Fields["vendor_address"])
	fillText(&out.PaymentTerms, p.Fields["payment_terms"])
	fillDate(&out.IssueDate, p.Fields["issue_date"], opts.DateFormats)
	fillDate(&out.DueDate, p.Fields["due_date"], opts.DateFormats)

	if !out.Currency.Resolved() {
		if code, ok := normalize.ParseCurrency(p.Fields["currency"]); ok {
			out.Currency = model.Refined(code, p.Fields["currency"])
		}
	}
	hint, _ := out.Currency.Get()

	totals := []*model.Money{&out.Subtotal, &out.Tax, &out.Total}
	proposed := []model.Money{
		p.amount("subtotal", hint),
		p.amount("tax", hint),
		p.amount("total", hint),
	}
	fillGroup(totals, proposed, wasInconsistent, func() bool { return out.CheckTotals(opts.Tolerance) })

	lastRow := -1
	for i := range out.LineItems {
		lastRow = max(lastRow, out.LineItems[i].Row)
		if i >= len(p.LineItems) {
			continue
		}
		mergeLine(&out.LineItems[i], p.LineItems[i], hint, opts.Tolerance)
	}
	for i := len(out.LineItems); i < len(p.LineItems); i++ {
		lastRow++
		out.LineItems = append(out.LineItems, newRefinedLine(lastRow, p.LineItems[i], hint))
	}

	out.Evaluate(opts.Tolerance)
	return out
}

func fillText(f *model.Field[string], raw string) {
	if f.Resolved() {
		return
	}
	v := strings.Join(strings.Fields(raw), " ")
	if v == "" {
		return
	}
	*f = model.Refined(v, raw)
}

func fillDate(f *model.Field[time.Time], raw string, layouts []string) {
	if f.Resolved() || raw == "" {
		return
	}
	t, err := normalize.ParseDate(raw, "", append([]string{"2006-01-02"}, layouts...))
	if err != nil {
		return
	}
	*f = model.Refined(t, raw)
}

func (p Proposal) amount(field, hint string) model.Money {
	if d, ok := p.Numbers[field]; ok {
		return model.Refined(d, p.Fields[field])
	}
	return refinedMoney(p.Fields[field], hint)
}

// proposed returns the line's quantity, unit price and line total.
func (p ProposedLine) proposed(hint string) []model.Money {
	raw := []string{p.Quantity, p.UnitPrice, p.LineTotal}
	out := make([]model.Money, len(raw))
	for i, key := range []string{"quantity", "unit_price", "line_total"} {
		switch d, ok := p.Numbers[key]; {
		case ok:
			out[i] = model.Refined(d, raw[i])
		case i == 0:
			out[i] = refinedQuantity(raw[i], hint)
		default:
			out[i] = refinedMoney(raw[i], hint)
		}
	}
	return out
}

// refinedMoney parses a proposed amount given as text. Unparsable proposals
// come back unresolved and are ignored by the merge.
func refinedMoney(raw, hint string) model.Money {
	if raw == "" {
		return model.Unresolved[decimal.Decimal]("")
	}
	amt, err := normalize.ParseAmount(raw, hint)
	if err != nil {
		return model.Unresolved[decimal.Decimal](raw)
	}
	return model.Refined(amt.Value, raw)
}

func refinedQuantity(raw, hint string) model.Money {
	if raw == "" {
		return model.Unresolved[decimal.Decimal]("")
	}
	q, err := normalize.ParseQuantity(raw, hint)
	if err != nil {
		return model.Unresolved[decimal.Decimal](raw)
	}
	return model.Refined(q, raw)
}

// fillGroup applies proposals to a group of related amounts. Unresolved
// members are always filled. When the group was inconsistent, extracted
// members may be replaced, preferring a single replacement over replacing
// every proposed member, and only if the result checks out.
func fillGroup(group []*model.Money, proposed []model.Money, inconsistent bool, consistent func() bool) {
	for i, dst := range group {
		if !dst.Resolved() && proposed[i].Resolved() {
			*dst = proposed[i]
		}
	}
	if !inconsistent || consistent() {
		return
	}

	snapshot := make([]model.Money, len(group))
	for i, dst := range group {
		snapshot[i] = *dst
	}
	restore := func() {
		for i, dst := range group {
			*dst = snapshot[i]
		}
	}

	for i, dst := range group {
		if !replaceable(*dst, proposed[i]) {
			continue
		}
		*dst = proposed[i]
		if consistent() {
			return
		}
		restore()
	}

	changed := false
	for i, dst := range group {
		if replaceable(*dst, proposed[i]) {
			*dst = proposed[i]
			changed = true
		}
	}
	if changed && consistent() {
		return
	}
	restore()
}

func replaceable(cur, proposed model.Money) bool {
	if !proposed.Resolved() || cur.Provenance == model.ProvenanceRefined {
		return false
	}
	return !cur.Value.Equal(proposed.Value)
}

func mergeLine(li *model.LineItem, p ProposedLine, hint string, tol decimal.Decimal) {
	wasInconsistent := !li.CheckTotal(tol)
	fillText(&li.Description, p.Description)
	group := []*model.Money{&li.Quantity, &li.UnitPrice, &li.LineTotal}
	fillGroup(group, p.proposed(hint), wasInconsistent, func() bool { return li.CheckTotal(tol) })
}

func newRefinedLine(row int, p ProposedLine, hint string) model.LineItem {
	nums := p.proposed(hint)
	li := model.LineItem{
		Row:         row,
		Description: model.Unresolved[string](""),
		Quantity:    nums[0],
		UnitPrice:   nums[1],
		LineTotal:   nums[2],
	}
	fillText(&li.Description, p.Description)
	return li
}
