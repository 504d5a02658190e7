package refine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProposal_FencedJSON(t *testing.T) {
	text := "Here are the corrections:\n```json\n" + `{
  "Vendor Name": "Acme Co",
  "total_amount": 150.00,
  "invoice_date": "2024-03-01",
  "currency": null,
  "line_items": [
    {"description": "Bolts", "qty": 3, "unit_price": "10.00", "amount": "30.00"}
  ]
}` + "\n```"

	p := ParseProposal(text)

	assert.Equal(t, "Acme Co", p.Fields["vendor_name"])
	assert.Equal(t, "150.00", p.Fields["total"])
	assert.Equal(t, "2024-03-01", p.Fields["issue_date"])
	assert.NotContains(t, p.Fields, "currency")
	require.Len(t, p.LineItems, 1)
	line := p.LineItems[0]
	assert.Equal(t, "Bolts", line.Description)
	assert.Equal(t, "3", line.Quantity)
	assert.Equal(t, "10.00", line.UnitPrice)
	assert.Equal(t, "30.00", line.LineTotal)
	assert.Equal(t, "3", line.Numbers["quantity"].String())
	assert.NotContains(t, line.Numbers, "unit_price", "quoted values stay text")
	assert.Equal(t, "150", p.Numbers["total"].String())
}

func TestParseProposal_NumbersKeepTheirValue(t *testing.T) {
	p := ParseProposal(`{"subtotal": 90.00, "tax": "10,50", "total": 100.5,
		"line_items": [{"qty": 1000, "price": 0.0905, "amount": 90.50}]}`)

	assert.True(t, p.Numbers["subtotal"].Equal(decimal.RequireFromString("90")))
	assert.True(t, p.Numbers["total"].Equal(decimal.RequireFromString("100.5")))
	assert.NotContains(t, p.Numbers, "tax")
	assert.Equal(t, "10,50", p.Fields["tax"])
	require.Len(t, p.LineItems, 1)
	nums := p.LineItems[0].Numbers
	assert.True(t, nums["quantity"].Equal(decimal.NewFromInt(1000)))
	assert.True(t, nums["unit_price"].Equal(decimal.RequireFromString("0.0905")))
	assert.True(t, nums["line_total"].Equal(decimal.RequireFromString("90.5")))
}

func TestParseProposal_JSONInProse(t *testing.T) {
	p := ParseProposal(`Sure. {"supplier": "Globex", "tax": "7.50"} Hope that helps.`)
	assert.Equal(t, "Globex", p.Fields["vendor_name"])
	assert.Equal(t, "7.50", p.Fields["tax"])
}

func TestParseProposal_YAML(t *testing.T) {
	p := ParseProposal("vendor_name: Initech\ntotal: 99.5\nline_items:\n  - description: Stapler\n    quantity: 1\n")
	assert.Equal(t, "Initech", p.Fields["vendor_name"])
	assert.Equal(t, "99.5", p.Fields["total"])
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, "Stapler", p.LineItems[0].Description)
	assert.Equal(t, "1", p.LineItems[0].Quantity)
	assert.True(t, p.Numbers["total"].Equal(decimal.RequireFromString("99.5")))
}

func TestParseProposal_KeyValueLines(t *testing.T) {
	text := `I could not produce JSON, but:
- Invoice Number = INV-77
- Vendor: "Umbrella Corp"
- Total Amount: $1,250.00
this line is noise
- favourite colour: blue`

	p := ParseProposal(text)
	assert.Equal(t, "INV-77", p.Fields["invoice_number"])
	assert.Equal(t, "Umbrella Corp", p.Fields["vendor_name"])
	assert.Equal(t, "$1,250.00", p.Fields["total"])
	assert.Len(t, p.Fields, 3)
}

func TestParseProposal_Garbage(t *testing.T) {
	assert.True(t, ParseProposal("I am unable to help with that.").Empty())
	assert.True(t, ParseProposal("").Empty())
	assert.True(t, ParseProposal("{not json").Empty())
}
