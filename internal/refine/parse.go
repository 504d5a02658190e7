package refine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Proposal is the set of field values a refinement response suggests. Values
// stay raw text; the reconciler parses them with the normalizer's rules.
// Numbers holds the fields the reply encoded as JSON or YAML numbers, which
// have no locale and skip separator inference.
type Proposal struct {
	Fields    map[string]string
	Numbers   map[string]decimal.Decimal
	LineItems []ProposedLine
}

// ProposedLine is one suggested line item. Empty strings mean "not proposed".
// Numbers is keyed "quantity", "unit_price" and "line_total".
type ProposedLine struct {
	Description string
	Quantity    string
	UnitPrice   string
	LineTotal   string
	Numbers     map[string]decimal.Decimal
}

// Empty reports whether the proposal suggests nothing.
func (p Proposal) Empty() bool {
	return len(p.Fields) == 0 && len(p.LineItems) == 0
}

var fieldAliases = map[string]string{
	"invoice_number":   "invoice_number",
	"invoice_id":       "invoice_number",
	"invoice_no":       "invoice_number",
	"number":           "invoice_number",
	"issue_date":       "issue_date",
	"invoice_date":     "issue_date",
	"date":             "issue_date",
	"due_date":         "due_date",
	"payment_due":      "due_date",
	"vendor_name":      "vendor_name",
	"vendor":           "vendor_name",
	"supplier":         "vendor_name",
	"supplier_name":    "vendor_name",
	"seller":           "vendor_name",
	"vendor_address":   "vendor_address",
	"supplier_address": "vendor_address",
	"address":          "vendor_address",
	"payment_terms":    "payment_terms",
	"terms":            "payment_terms",
	"subtotal":         "subtotal",
	"sub_total":        "subtotal",
	"net_amount":       "subtotal",
	"tax":              "tax",
	"tax_amount":       "tax",
	"total_tax_amount": "tax",
	"vat":              "tax",
	"total":            "total",
	"total_amount":     "total",
	"amount_due":       "total",
	"grand_total":      "total",
	"currency":         "currency",
	"currency_code":    "currency",
}

var lineAliases = map[string]string{
	"description": "description",
	"desc":        "description",
	"item":        "description",
	"quantity":    "quantity",
	"qty":         "quantity",
	"unit_price":  "unit_price",
	"price":       "unit_price",
	"rate":        "unit_price",
	"line_total":  "line_total",
	"amount":      "line_total",
	"total":       "line_total",
}

var (
	fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\n(.*?)```")
	lineRe  = regexp.MustCompile(`^\s*[-*]?\s*"?([A-Za-z][A-Za-z _\-]*?)"?\s*[:=]\s*(.+?)\s*,?\s*$`)
	keyRe   = regexp.MustCompile(`[\s\-]+`)
)

// ParseProposal reads a refinement reply. It accepts a JSON object (fenced or
// embedded in prose), a YAML mapping, or "key: value" / "key = value" lines.
// Anything it cannot read is skipped.
func ParseProposal(text string) Proposal {
	body := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}

	if obj, ok := decodeJSON(body); ok {
		return fromMap(obj)
	}

	var y map[string]any
	if err := yaml.Unmarshal([]byte(body), &y); err == nil && len(y) > 0 {
		if p := fromMap(y); !p.Empty() {
			return p
		}
	}

	return fromLines(body)
}

func decodeJSON(body string) (map[string]any, bool) {
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body[start : end+1])))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	return obj, true
}

func canonicalKey(k string) string {
	return keyRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(k)), "_")
}

func fromMap(m map[string]any) Proposal {
	p := Proposal{Fields: make(map[string]string), Numbers: make(map[string]decimal.Decimal)}
	for k, v := range m {
		key := canonicalKey(k)
		if key == "line_items" || key == "items" || key == "lines" {
			p.LineItems = parseLines(v)
			continue
		}
		field, ok := fieldAliases[key]
		if !ok {
			continue
		}
		if s, ok := scalar(v); ok {
			p.Fields[field] = s
			if d, ok := number(v); ok {
				p.Numbers[field] = d
			}
		}
	}
	return p
}

func parseLines(v any) []ProposedLine {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]ProposedLine, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var line ProposedLine
		for k, raw := range m {
			s, ok := scalar(raw)
			if !ok {
				continue
			}
			key := lineAliases[canonicalKey(k)]
			switch key {
			case "description":
				line.Description = s
				continue
			case "quantity":
				line.Quantity = s
			case "unit_price":
				line.UnitPrice = s
			case "line_total":
				line.LineTotal = s
			default:
				continue
			}
			if d, ok := number(raw); ok {
				if line.Numbers == nil {
					line.Numbers = make(map[string]decimal.Decimal)
				}
				line.Numbers[key] = d
			}
		}
		out = append(out, line)
	}
	return out
}

// scalar renders a decoded value as text, skipping nulls and placeholders.
func scalar(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case bool:
		return "", false
	case time.Time:
		s = t.Format("2006-01-02")
	case map[string]any:
		if inner, ok := t["value"]; ok {
			return scalar(inner)
		}
		return "", false
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a", "unknown", "-":
		return "", false
	}
	return s, true
}

// number returns the value of a decoded JSON or YAML number.
func number(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case map[string]any:
		if inner, ok := t["value"]; ok {
			return number(inner)
		}
	}
	return decimal.Decimal{}, false
}

func fromLines(body string) Proposal {
	p := Proposal{Fields: make(map[string]string)}
	for _, line := range strings.Split(body, "\n") {
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		field, ok := fieldAliases[canonicalKey(m[1])]
		if !ok {
			continue
		}
		if s, ok := scalar(strings.Trim(m[2], `"'`)); ok {
			p.Fields[field] = s
		}
	}
	return p
}
