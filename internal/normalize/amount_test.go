package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw      string
		hint     string
		want     string
		currency string
	}{
		{"1,234.56", "", "1234.56", ""},
		{"1.234,56", "", "1234.56", ""},
		{"$1,234.56", "", "1234.56", "USD"},
		{"€1.234", "", "1234", "EUR"},
		{"1.234 EUR", "", "1234", "EUR"},
		{"$1.234", "", "1.234", "USD"},
		{"€12,50", "", "12.5", "EUR"},
		{"£1,000", "", "1000", "GBP"},
		{"1.234.567", "", "1234567", ""},
		{"1,234,567.89", "", "1234567.89", ""},
		{"100", "", "100", ""},
		{"10.5", "", "10.5", ""},
		{"29.99", "", "29.99", ""},
		{"12,5", "", "12.5", ""},
		{"(150.00)", "", "-150", ""},
		{"-$42.10", "", "-42.1", "USD"},
		{"1.234", "EUR", "1234", ""},
		{"1,234", "USD", "1234", ""},
		{"1 234,56 €", "", "1234.56", "EUR"},
		{"R$ 1.500,00", "", "1500", "BRL"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Value.String())
			assert.Equal(t, tt.currency, got.Currency)
		})
	}
}

func TestParseAmount_Ambiguous(t *testing.T) {
	for _, raw := range []string{"1.234", "1,234", "12,345"} {
		_, err := ParseAmount(raw, "")
		assert.ErrorIs(t, err, ErrAmbiguousAmount, raw)
	}
}

func TestParseAmount_Unparsable(t *testing.T) {
	for _, raw := range []string{"", "n/a", "1.2.3,4,5", "€12.5", "1,23,456.00"} {
		_, err := ParseAmount(raw, "")
		assert.ErrorIs(t, err, ErrUnparsableAmount, raw)
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		raw  string
		hint string
		want string
	}{
		{"3", "EUR", "3"},
		{"1.5", "EUR", "1.5"},
		{"2,5", "USD", "2.5"},
		{"1.000", "EUR", "1000"},
		{"1.000", "USD", "1"},
		{"1,250", "EUR", "1.25"},
		{"12.000", "CHF", "12"},
	}
	for _, tt := range tests {
		t.Run(tt.hint+" "+tt.raw, func(t *testing.T) {
			got, err := ParseQuantity(tt.raw, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseQuantity_AmbiguousWithoutCurrency(t *testing.T) {
	_, err := ParseQuantity("1.000", "")
	assert.ErrorIs(t, err, ErrAmbiguousAmount)
}

func TestParseCurrency(t *testing.T) {
	code, ok := ParseCurrency("usd")
	assert.True(t, ok)
	assert.Equal(t, "USD", code)

	code, ok = ParseCurrency("€")
	assert.True(t, ok)
	assert.Equal(t, "EUR", code)

	_, ok = ParseCurrency("dollars")
	assert.False(t, ok)
}

func TestDetectCurrency(t *testing.T) {
	assert.Equal(t, "CAD", DetectCurrency("C$ 12.00"))
	assert.Equal(t, "USD", DetectCurrency("$12.00"))
	assert.Equal(t, "CHF", DetectCurrency("CHF 1'200.00"))
	assert.Equal(t, "", DetectCurrency("12.00"))
}
