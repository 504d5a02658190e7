package assemble

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

func money(s string) model.Money {
	return model.Extracted(decimal.RequireFromString(s), s, 0.9)
}

func testDraft() model.InvoiceDraft {
	d := model.NewUnresolvedDraft()
	d.InvoiceNumber = model.Extracted("INV-42", "INV-42", 0.8)
	d.IssueDate = model.Extracted(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "March 1, 2024", 0.7)
	d.VendorName = model.Refined("Acme Co", "Acme Co")
	d.Currency = model.Extracted("USD", "$", 1.0)
	d.Subtotal = money("90.00")
	d.Tax = money("10.00")
	d.Total = model.Unresolved[decimal.Decimal]("1OO.OO")
	d.LineItems = []model.LineItem{
		{Row: 3, Description: model.Extracted("Bolts", "Bolts", 0.9), Quantity: money("3"), UnitPrice: money("10.00"), LineTotal: money("29.99")},
		{Row: 7, Description: model.Unresolved[string](""), LineTotal: money("60.00")},
	}
	d.Evaluate(decimal.RequireFromString("0.01"))
	d.AddDiagnostic("ambiguous_amount:total")
	return d
}

func testRecord() model.FileRecord {
	return model.FileRecord{
		AttemptID:        "att-1",
		Fingerprint:      "fp-abc",
		Attempt:          1,
		Mode:             model.ModeProduction,
		OriginalFilename: "inv.pdf",
		StoragePath:      "prod/inv.pdf",
		RefinementUsed:   true,
		Status:           model.FileStatusPending,
		StartedAt:        time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func seqKeys() func(model.FileRecord) string {
	n := 0
	return func(model.FileRecord) string {
		n++
		return fmt.Sprintf("rk-%d", n)
	}
}

func TestAssemble_Header(t *testing.T) {
	a := New(0, WithKeyFunc(seqKeys()))

	rs, err := a.Assemble(testDraft(), testRecord())
	require.NoError(t, err)

	h := rs.Header
	assert.Equal(t, "rk-1", rs.RecordKey)
	assert.Equal(t, "rk-1", h.RecordKey)
	assert.Equal(t, "fp-abc", h.FileFingerprint)
	assert.Equal(t, "att-1", h.LedgerAttemptID)
	assert.Equal(t, model.ModeProduction, h.ProcessingMode)
	assert.Equal(t, "INV-42", *h.InvoiceNumber)
	assert.Equal(t, "2024-03-01", *h.IssueDate)
	assert.Nil(t, h.DueDate)
	assert.Equal(t, "Acme Co", *h.VendorName)
	assert.Equal(t, "90", *h.Subtotal)
	assert.Nil(t, h.Total, "unresolved total is null")
	assert.True(t, h.TotalsConsistent, "totals with an unresolved member are not checkable")
	assert.Equal(t, 2, h.LineItemCount)
	assert.True(t, h.RefinementUsed)
	assert.Equal(t, model.ProvenanceRefined, h.FieldProvenance["vendor_name"])
	assert.Equal(t, model.ProvenanceUnresolved, h.FieldProvenance["total"])
	assert.Equal(t, "1OO.OO", h.RawValues["total"])
	assert.NotContains(t, h.RawValues, "due_date")
	assert.Equal(t, []string{"ambiguous_amount:total", model.DiagLineItemsInconsistent}, h.Diagnostics)
	assert.InDelta(t, (0.8+0.7+1.0+0.9+0.9)/5, h.ConfidenceMean, 1e-9)
	assert.InDelta(t, 0.7, h.ConfidenceMin, 1e-9)
	assert.Equal(t, testRecord().StartedAt, h.ProcessedAt)
}

func TestAssemble_LineItems(t *testing.T) {
	rs, err := New(10, WithKeyFunc(seqKeys())).Assemble(testDraft(), testRecord())
	require.NoError(t, err)
	require.Len(t, rs.LineItems, 2)

	first := rs.LineItems[0]
	assert.Equal(t, "rk-1", first.RecordKey)
	assert.Equal(t, 1, first.LineNumber)
	assert.Equal(t, "29.99", *first.LineTotal)
	assert.False(t, first.Consistent, "3 x 10.00 vs 29.99 is kept and flagged")
	assert.True(t, first.RefinementUsed)

	second := rs.LineItems[1]
	assert.Equal(t, 2, second.LineNumber)
	assert.Nil(t, second.Description)
	assert.Nil(t, second.Quantity)
	assert.True(t, second.Consistent)
	assert.Equal(t, model.ProvenanceUnresolved, second.FieldProvenance["description"])

	records := rs.Records()
	require.Len(t, records, 3)
	assert.Equal(t, model.RecordKindHeader, records[0].Kind)
	assert.Equal(t, model.RecordKindLineItem, records[2].Kind)
}

func TestAssemble_DeterministicApartFromKey(t *testing.T) {
	a := New(0, WithKeyFunc(seqKeys()))
	d, rec := testDraft(), testRecord()

	first, err := a.Assemble(d, rec)
	require.NoError(t, err)
	second, err := a.Assemble(d, rec)
	require.NoError(t, err)

	assert.NotEqual(t, first.RecordKey, second.RecordKey)

	second.RecordKey = first.RecordKey
	second.Header.RecordKey = first.RecordKey
	for i := range second.LineItems {
		second.LineItems[i].RecordKey = first.RecordKey
	}
	assert.Equal(t, first, second)
}

func TestAssemble_DefaultKeyIsStableAcrossAttempts(t *testing.T) {
	a := FromConfig(config.AssembleConfig{MaxLineItems: 5})
	first, err := a.Assemble(testDraft(), testRecord())
	require.NoError(t, err)
	assert.Len(t, first.RecordKey, 36)

	retry := testRecord()
	retry.AttemptID = "att-2"
	retry.Attempt = 2
	retry.StartedAt = retry.StartedAt.Add(time.Hour)
	second, err := a.Assemble(testDraft(), retry)
	require.NoError(t, err)
	assert.Equal(t, first.RecordKey, second.RecordKey, "a retry of the same run reuses the key")

	forced := testRecord()
	forced.Generation = 1
	third, err := a.Assemble(testDraft(), forced)
	require.NoError(t, err)
	assert.NotEqual(t, first.RecordKey, third.RecordKey, "a forced reprocess gets a new key")

	other := testRecord()
	other.Mode = model.ModeAdhoc
	assert.NotEqual(t, RecordKey(testRecord()), RecordKey(other))
	assert.Equal(t, RecordKey(testRecord()), first.RecordKey)
}

func TestAssemble_Errors(t *testing.T) {
	a := New(1)

	_, err := a.Assemble(testDraft(), testRecord())
	var ae *AssemblyError
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Error(), "2 line items exceeds the limit of 1")

	rec := testRecord()
	rec.AttemptID = ""
	_, err = New(0).Assemble(testDraft(), rec)
	assert.ErrorAs(t, err, &ae)

	rec = testRecord()
	rec.Fingerprint = ""
	rs, err := New(0).Assemble(testDraft(), rec)
	assert.ErrorAs(t, err, &ae)
	assert.Nil(t, rs)
}
