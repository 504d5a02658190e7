package refine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func money(s string) model.Money { return model.Extracted(dec(s), s, 0.9) }

var testOpts = Options{Tolerance: dec("0.01")}

func consistentDraft() model.InvoiceDraft {
	d := model.NewUnresolvedDraft()
	d.Subtotal = money("90.00")
	d.Tax = money("10.00")
	d.Total = money("100.00")
	d.Evaluate(testOpts.Tolerance)
	return d
}

func TestReconcile_ExtractedConsistentWins(t *testing.T) {
	d := consistentDraft()
	out := Reconcile(d, `{"total": "150.00"}`, testOpts)

	assert.True(t, out.Total.Value.Equal(dec("100.00")))
	assert.Equal(t, model.ProvenanceExtracted, out.Total.Provenance)
	assert.False(t, out.TotalsInconsistent)
}

func TestReconcile_FillsUnresolved(t *testing.T) {
	d := consistentDraft()
	out := Reconcile(d, `{"vendor_name": "Acme Co", "due_date": "2024-04-30", "currency": "usd"}`, testOpts)

	assert.Equal(t, "Acme Co", out.VendorName.Value)
	assert.Equal(t, model.ProvenanceRefined, out.VendorName.Provenance)
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), out.DueDate.Value)
	assert.Equal(t, "USD", out.Currency.Value)

	assert.Equal(t, model.ProvenanceUnresolved, d.VendorName.Provenance, "input draft untouched")
}

func TestReconcile_CorrectsInconsistentTotals(t *testing.T) {
	d := consistentDraft()
	d.Total = money("1000.00")
	d.Evaluate(testOpts.Tolerance)
	require.True(t, d.TotalsInconsistent)

	out := Reconcile(d, `{"subtotal": "90.00", "tax": "10.00", "total": "100.00"}`, testOpts)

	assert.False(t, out.TotalsInconsistent)
	assert.True(t, out.Total.Value.Equal(dec("100.00")))
	assert.Equal(t, model.ProvenanceRefined, out.Total.Provenance)
	assert.Equal(t, model.ProvenanceExtracted, out.Subtotal.Provenance, "unchanged members keep extracted provenance")
	assert.False(t, out.HasDiagnostic(model.DiagTotalsInconsistent))
}

func TestReconcile_RejectsCorrectionThatDoesNotFix(t *testing.T) {
	d := consistentDraft()
	d.Total = money("1000.00")
	d.Evaluate(testOpts.Tolerance)

	out := Reconcile(d, `{"total": "500.00"}`, testOpts)

	assert.True(t, out.Total.Value.Equal(dec("1000.00")))
	assert.Equal(t, model.ProvenanceExtracted, out.Total.Provenance)
	assert.True(t, out.TotalsInconsistent)
}

func TestReconcile_LineItems(t *testing.T) {
	d := model.NewUnresolvedDraft()
	d.LineItems = []model.LineItem{
		{Row: 0, Description: model.Extracted("Bolts", "Bolts", 0.9), Quantity: money("3"), UnitPrice: money("10.00"), LineTotal: money("29.99")},
		{Row: 4, Description: model.Unresolved[string](""), Quantity: model.Unresolved[decimal.Decimal]("1.OO"), UnitPrice: money("5.00"), LineTotal: money("5.00")},
	}
	d.Evaluate(testOpts.Tolerance)
	require.True(t, d.LineItems[0].Inconsistent)

	text := `{"line_items": [
		{"description": "Hex bolts", "quantity": "3", "unit_price": "10.00", "line_total": "30.00"},
		{"description": "Nuts", "quantity": "1"},
		{"description": "Washers", "quantity": "2", "unit_price": "0.50", "line_total": "1.00"}
	]}`
	out := Reconcile(d, text, testOpts)

	require.Len(t, out.LineItems, 3)

	first := out.LineItems[0]
	assert.Equal(t, "Bolts", first.Description.Value, "resolved description kept")
	assert.True(t, first.LineTotal.Value.Equal(dec("30.00")))
	assert.Equal(t, model.ProvenanceRefined, first.LineTotal.Provenance)
	assert.False(t, first.Inconsistent)

	second := out.LineItems[1]
	assert.Equal(t, "Nuts", second.Description.Value)
	assert.True(t, second.Quantity.Value.Equal(dec("1")))
	assert.Equal(t, model.ProvenanceRefined, second.Quantity.Provenance)

	third := out.LineItems[2]
	assert.Equal(t, 5, third.Row)
	assert.Equal(t, model.ProvenanceRefined, third.Description.Provenance)
	assert.True(t, third.LineTotal.Value.Equal(dec("1.00")))

	assert.False(t, out.HasDiagnostic(model.DiagLineItemsInconsistent))
}

func TestReconcile_NeverDropsItems(t *testing.T) {
	d := model.NewUnresolvedDraft()
	d.LineItems = []model.LineItem{{Row: 0}, {Row: 1}}
	out := Reconcile(d, `{"line_items": []}`, testOpts)
	assert.Len(t, out.LineItems, 2)
}

func TestReconcile_Idempotent(t *testing.T) {
	d := consistentDraft()
	d.Total = money("1000.00")
	d.LineItems = []model.LineItem{{Row: 0, Quantity: money("2"), UnitPrice: money("4.00"), LineTotal: money("9.00")}}
	d.Evaluate(testOpts.Tolerance)

	text := `{"vendor_name": "Acme Co", "total": "100.00",
		"line_items": [{"line_total": "8.00"}, {"description": "Extra", "line_total": "1.00"}]}`

	once := Reconcile(d, text, testOpts)
	again := Reconcile(d, text, testOpts)
	twice := Reconcile(once, text, testOpts)

	assert.Equal(t, once, again, "same input, same result")
	assert.Equal(t, once, twice)
}

func TestReconcile_CommaDecimalCurrencyAcceptsNumericReply(t *testing.T) {
	d := model.NewUnresolvedDraft()
	d.Currency = model.Extracted("EUR", "EUR", 0.9)
	d.Evaluate(testOpts.Tolerance)

	text := "```json\n" + `{"subtotal": 90.00, "tax": 10.50, "total": 100.50,
		"line_items": [{"description": "Beratung", "quantity": 1, "unit_price": 100.50, "line_total": 100.50}]}` + "\n```"
	out := Reconcile(d, text, testOpts)

	for name, f := range map[string]model.Money{"subtotal": out.Subtotal, "tax": out.Tax, "total": out.Total} {
		assert.Equal(t, model.ProvenanceRefined, f.Provenance, name)
	}
	assert.True(t, out.Subtotal.Value.Equal(dec("90")))
	assert.True(t, out.Tax.Value.Equal(dec("10.50")))
	assert.True(t, out.Total.Value.Equal(dec("100.50")))
	assert.False(t, out.TotalsInconsistent)

	require.Len(t, out.LineItems, 1)
	li := out.LineItems[0]
	assert.True(t, li.Quantity.Value.Equal(dec("1")))
	assert.True(t, li.UnitPrice.Value.Equal(dec("100.50")))
	assert.True(t, li.LineTotal.Value.Equal(dec("100.50")))
	assert.Equal(t, model.ProvenanceRefined, li.LineTotal.Provenance)
	assert.False(t, li.Inconsistent)
}

func TestReconcile_CommaDecimalCurrencyReadsTextWithConvention(t *testing.T) {
	d := model.NewUnresolvedDraft()
	d.Currency = model.Extracted("EUR", "EUR", 0.9)
	d.Evaluate(testOpts.Tolerance)

	text := `{"tax": "10,50", "line_items": [{"quantity": "1.000", "unit_price": "0,25", "line_total": "250,00"}]}`
	out := Reconcile(d, text, testOpts)

	assert.True(t, out.Tax.Value.Equal(dec("10.5")))
	require.Len(t, out.LineItems, 1)
	li := out.LineItems[0]
	assert.True(t, li.Quantity.Value.Equal(dec("1000")))
	assert.True(t, li.LineTotal.Value.Equal(dec("250")))
	assert.False(t, li.Inconsistent)
}

func TestReconcile_UnparsableReply(t *testing.T) {
	d := consistentDraft()
	out := Reconcile(d, "I cannot read this invoice.", testOpts)
	assert.Equal(t, d, out)
}
