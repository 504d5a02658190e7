package ocr

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// Confidence assigned to scanned values. Specific labels ("Invoice Date")
// rank above generic ones ("Date") so the normalizer prefers them.
const (
	confSpecific = 0.6
	confGeneric  = 0.4
	confCell     = 0.5
)

type labelRule struct {
	kind   string
	labels string
	value  string
	conf   float64
	// multiline lets the value start on the line after the label.
	multiline bool
}

const (
	textValue   = `(\S(?:.*?\S)?)`
	tokenValue  = `([A-Za-z0-9][A-Za-z0-9\-/_.]*)`
	amountValue = `(\(?-?(?:(?-i:[A-Z]{3}) ?|(?-i:[A-Z])?\$ ?|[€£¥₹] ?)?-?\d[\d.,']*\)?(?: ?(?:(?-i:[A-Z]{3})\b|[€£¥₹]))?)`
)

// Longer labels come first; Go's regexp prefers the leftmost alternative.
var labelRules = []labelRule{
	{kind: "invoice_id", labels: `invoice\s*(?:(?:number|num|no|id)\b\.?|#)`, value: tokenValue, conf: confSpecific},
	{kind: "invoice_date", labels: `(?:invoice|issue)\s+date\b|date\s+(?:of\s+issue|issued)\b`, value: textValue, conf: confSpecific},
	{kind: "invoice_date", labels: `date\b`, value: textValue, conf: confGeneric},
	{kind: "due_date", labels: `(?:due|payment\s+due)\s+date\b|payment\s+due\b`, value: textValue, conf: confSpecific},
	{kind: "payment_terms", labels: `(?:payment\s+)?terms\b`, value: textValue, conf: confSpecific},
	{kind: "supplier_name", labels: `(?:vendor|supplier|seller|sold\s+by|bill\s+from|from)\b`, value: textValue, conf: confGeneric, multiline: true},
	{kind: "currency", labels: `currency\b`, value: `([A-Za-z]{3})\b`, conf: confSpecific},
	{kind: "net_amount", labels: `sub\s*-?\s*total\b|net\s+(?:amount|total)\b`, value: amountValue, conf: confSpecific},
	{kind: "total_tax_amount", labels: `(?:(?:sales\s+)?tax|vat|gst)(?:\s+amount)?(?:\s*\(?\s*\d+(?:[.,]\d+)?\s*%\s*\)?)?`, value: amountValue, conf: confSpecific},
	{kind: "total_amount", labels: `(?:total|amount|balance)\s+due\b|(?:grand|invoice)\s+total\b`, value: amountValue, conf: confSpecific},
	{kind: "total_amount", labels: `total\b`, value: amountValue, conf: confGeneric},
}

type compiledRule struct {
	labelRule
	re *regexp.Regexp
}

var compiledRules = compileRules(labelRules)

// A label starts a line, follows a column gap or a table pipe. The value ends
// at the next column gap or the end of the line.
func compileRules(rules []labelRule) []compiledRule {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		sep := `[ \t]*[:#|]?[ \t]*`
		if r.multiline {
			sep = `[ \t]*[:#|]?\s*`
		}
		pattern := `(?im)(?:^|[ \t]{2,}|\|)[ \t]*(?:` + r.labels + `)` + sep + r.value + `(?:[ \t]{2,}|[ \t]*\||[ \t]*$)`
		out = append(out, compiledRule{labelRule: r, re: regexp.MustCompile(pattern)})
	}
	return out
}

// ScanResult is what label scanning found in a text layer.
type ScanResult struct {
	Entities []model.Entity
	Cells    []model.LineItemCell
	Columns  []string
}

// cleanText blanks markdown emphasis and turns page breaks into newlines.
// Replacements keep byte offsets intact.
var cleanText = strings.NewReplacer("**", "  ", "__", "  ", pageBreak, "\n")

// ScanLabels finds "Label: value" pairs and the first line-item table in
// extracted text. Entity spans index into text.
func ScanLabels(text string) ScanResult {
	clean := cleanText.Replace(text)

	var res ScanResult
	for _, r := range compiledRules {
		for _, m := range r.re.FindAllStringSubmatchIndex(clean, -1) {
			start, end := m[2], m[3]
			res.Entities = append(res.Entities, model.Entity{
				Kind:       r.kind,
				Value:      clean[start:end],
				Confidence: r.conf,
				Span:       model.Span{Start: start, End: end},
			})
		}
	}
	res.Columns, res.Cells = scanTable(clean)
	return res
}

var (
	columnGap     = regexp.MustCompile(`[ \t]{2,}`)
	digitRe       = regexp.MustCompile(`\d`)
	pipeRuleRe    = regexp.MustCompile(`^\|?[\s:|-]+\|?$`)
	tableStopRe   = regexp.MustCompile(`(?i)^\s*(?:sub\s*-?\s*total|total|tax|vat|gst|balance|amount\s+due|notes?|thank)\b`)
	headerWordsRe = regexp.MustCompile(`(?i)\b(?:description|item|product|service|details|qty|quantity|hours|units|unit\s+price|price|rate|amount|line\s+total|total)\b`)
)

// scanTable locates a header line naming at least two line-item columns and
// reads the rows beneath it until a totals line or two blank lines.
func scanTable(text string) ([]string, []model.LineItemCell) {
	lines := strings.Split(text, "\n")

	header := -1
	var columns []string
	for i, line := range lines {
		cols := splitColumns(line)
		if len(cols) < 2 {
			continue
		}
		hits := 0
		for _, c := range cols {
			if headerWordsRe.MatchString(c) {
				hits++
			}
		}
		if hits >= 2 {
			header, columns = i, cols
			break
		}
	}
	if header < 0 {
		return nil, nil
	}

	var (
		cells  []model.LineItemCell
		row    int
		blanks int
	)
	for _, line := range lines[header+1:] {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			blanks++
			if blanks >= 2 && row > 0 {
				return columns, cells
			}
			continue
		case pipeRuleRe.MatchString(trimmed):
			continue
		case tableStopRe.MatchString(strings.Trim(trimmed, "| ")):
			return columns, cells
		}
		blanks = 0

		parts := splitColumns(line)
		if len(parts) < 2 || !digitRe.MatchString(line) {
			continue
		}
		row++
		aligned := alignColumns(parts, len(columns))
		for _, col := range slices.Sorted(maps.Keys(aligned)) {
			cells = append(cells, model.LineItemCell{
				Row:        row,
				Column:     col,
				Text:       aligned[col],
				Confidence: confCell,
			})
		}
	}
	return columns, cells
}

// splitColumns splits a layout or markdown table line into cell texts.
func splitColumns(line string) []string {
	trimmed := strings.TrimSpace(line)
	var raw []string
	if strings.HasPrefix(trimmed, "|") {
		raw = strings.Split(strings.Trim(trimmed, "|"), "|")
	} else {
		raw = columnGap.Split(trimmed, -1)
	}
	out := raw[:0]
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// alignColumns maps row parts onto header column indexes. A short row keeps
// its first part in the first column and right-aligns the rest, since missing
// cells are usually optional numbers; a long row joins its extra leading parts
// into the first column.
func alignColumns(parts []string, ncols int) map[int]string {
	out := make(map[int]string, len(parts))
	switch {
	case len(parts) <= ncols:
		out[0] = parts[0]
		for i := 1; i < len(parts); i++ {
			out[ncols-(len(parts)-i)] = parts[i]
		}
	default:
		extra := len(parts) - ncols
		out[0] = strings.Join(parts[:extra+1], " ")
		for i := extra + 1; i < len(parts); i++ {
			out[i-extra] = parts[i]
		}
	}
	return out
}
