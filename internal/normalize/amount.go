package normalize

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	// ErrAmbiguousAmount means the separators admit two readings, e.g. "1.234"
	// with no currency to decide between 1234 and 1.234.
	ErrAmbiguousAmount = eris.New("normalize: ambiguous amount")
	// ErrUnparsableAmount means the text holds no well-formed number.
	ErrUnparsableAmount = eris.New("normalize: unparsable amount")
)

// symbols is checked in order so multi-rune prefixes win over "$".
var symbols = []struct {
	sym  string
	code string
}{
	{"US$", "USD"},
	{"C$", "CAD"},
	{"CA$", "CAD"},
	{"A$", "AUD"},
	{"AU$", "AUD"},
	{"R$", "BRL"},
	{"MX$", "MXN"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"$", "USD"},
}

// dotDecimal lists currencies whose invoices conventionally use "." as the
// decimal separator. Everything else is read comma-decimal.
var dotDecimal = map[string]bool{
	"USD": true, "GBP": true, "JPY": true, "INR": true, "CNY": true,
	"CAD": true, "AUD": true, "MXN": true, "CHF": true,
}

var (
	isoCodeRe = regexp.MustCompile(`\b[A-Z]{3}\b`)
	numberRe  = regexp.MustCompile(`\d[\d.,' \x{00a0}]*\d|\d`)
)

// Amount is a parsed monetary value and the currency detected in its text.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

// ParseAmount parses raw into a decimal. Separators are inferred from the
// currency symbol or ISO code in raw, falling back to hint (the document
// currency) when raw carries none.
func ParseAmount(raw, hint string) (Amount, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Amount{}, ErrUnparsableAmount
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	cur := DetectCurrency(s)
	conv := cur
	if conv == "" {
		conv = hint
	}

	loc := numberRe.FindStringIndex(s)
	if loc == nil {
		return Amount{}, ErrUnparsableAmount
	}
	if strings.Contains(s[:loc[0]], "-") {
		negative = true
	}

	num := strings.NewReplacer(" ", "", "'", "", "\u00a0", "").Replace(s[loc[0]:loc[1]])
	canonical, err := canonicalNumber(num, conv)
	if err != nil {
		return Amount{Currency: cur}, err
	}

	d, err := decimal.NewFromString(canonical)
	if err != nil {
		return Amount{Currency: cur}, ErrUnparsableAmount
	}
	if negative {
		d = d.Neg()
	}
	return Amount{Value: d, Currency: cur}, nil
}

// ParseQuantity parses a line item quantity. Quantities carry no currency,
// so separators are read locale-free first; only text that stays ambiguous
// (a lone separator before three digits) falls back to hint's convention.
func ParseQuantity(raw, hint string) (decimal.Decimal, error) {
	amt, err := ParseAmount(raw, "")
	if eris.Is(err, ErrAmbiguousAmount) && hint != "" {
		amt, err = ParseAmount(raw, hint)
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	return amt.Value, nil
}

// canonicalNumber rewrites num (digits plus "." and ",") into a plain
// dot-decimal string.
func canonicalNumber(num, cur string) (string, error) {
	dots := strings.Count(num, ".")
	commas := strings.Count(num, ",")

	switch {
	case dots == 0 && commas == 0:
		return num, nil

	case dots > 0 && commas > 0:
		dec := "."
		group := ","
		if strings.LastIndex(num, ",") > strings.LastIndex(num, ".") {
			dec, group = ",", "."
		}
		if strings.Count(num, dec) != 1 {
			return "", ErrUnparsableAmount
		}
		i := strings.LastIndex(num, dec)
		intPart, frac := num[:i], num[i+1:]
		if !validGrouping(intPart, group) {
			return "", ErrUnparsableAmount
		}
		return strings.ReplaceAll(intPart, group, "") + "." + frac, nil
	}

	sep := "."
	count := dots
	if commas > 0 {
		sep, count = ",", commas
	}

	if count > 1 {
		if !validGrouping(num, sep) {
			return "", ErrUnparsableAmount
		}
		return strings.ReplaceAll(num, sep, ""), nil
	}

	i := strings.Index(num, sep)
	intPart, frac := num[:i], num[i+1:]

	if cur != "" {
		convSep := ","
		if dotDecimal[cur] {
			convSep = "."
		}
		if sep == convSep {
			return intPart + "." + frac, nil
		}
		if !validGrouping(num, sep) {
			return "", ErrUnparsableAmount
		}
		return intPart + frac, nil
	}

	if len(frac) == 3 {
		return "", ErrAmbiguousAmount
	}
	return intPart + "." + frac, nil
}

// validGrouping checks that s splits on sep into a leading group of 1-3
// digits followed by groups of exactly three.
func validGrouping(s, sep string) bool {
	groups := strings.Split(s, sep)
	if len(groups[0]) < 1 || len(groups[0]) > 3 {
		return len(groups) == 1 && groups[0] != ""
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// DetectCurrency returns the ISO code implied by a symbol or code in s, or ""
// when none is present.
func DetectCurrency(s string) string {
	for _, m := range isoCodeRe.FindAllString(s, -1) {
		if code, ok := ParseCurrency(m); ok {
			return code
		}
	}
	for _, sym := range symbols {
		if strings.Contains(s, sym.sym) {
			return sym.code
		}
	}
	return ""
}

// ParseCurrency validates an ISO 4217 code or a known symbol.
func ParseCurrency(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, sym := range symbols {
		if s == sym.sym {
			return sym.code, true
		}
	}
	unit, err := currency.ParseISO(strings.ToUpper(s))
	if err != nil {
		return "", false
	}
	return unit.String(), true
}
