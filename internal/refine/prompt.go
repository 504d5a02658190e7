package refine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

const systemPrompt = `You review invoice data extracted by an OCR service.
You receive the full document text and the current draft, where each field is
marked extracted, refined or unresolved.
Reply with a single JSON object using these keys when you can read them from
the text: invoice_number, issue_date (YYYY-MM-DD), due_date (YYYY-MM-DD),
vendor_name, vendor_address, payment_terms, subtotal, tax, total, currency
(ISO 4217), line_items (array of {description, quantity, unit_price,
line_total}).
Use plain numbers for amounts. Omit keys you cannot read. Do not guess.`

// maxPromptText bounds the document text sent to the model.
const maxPromptText = 30000

type summaryField struct {
	Value  string `yaml:"value,omitempty"`
	Status string `yaml:"status"`
	Raw    string `yaml:"raw,omitempty"`
}

type summaryLine struct {
	Description summaryField `yaml:"description"`
	Quantity    summaryField `yaml:"quantity"`
	UnitPrice   summaryField `yaml:"unit_price"`
	LineTotal   summaryField `yaml:"line_total"`
	Flag        string       `yaml:"flag,omitempty"`
}

type draftSummary struct {
	Fields      map[string]summaryField `yaml:"fields"`
	LineItems   []summaryLine           `yaml:"line_items,omitempty"`
	Diagnostics []string                `yaml:"diagnostics,omitempty"`
}

func strField[T any](f model.Field[T], format func(T) string) summaryField {
	s := summaryField{Status: string(f.Provenance)}
	if v, ok := f.Get(); ok {
		s.Value = format(v)
	} else {
		s.Raw = f.Raw
	}
	return s
}

func str(s string) string { return s }

func day(t time.Time) string { return t.Format("2006-01-02") }

func decString(d decimal.Decimal) string { return d.String() }

// Summarize renders the draft as YAML for the refinement prompt.
func Summarize(d model.InvoiceDraft) (string, error) {
	sum := draftSummary{
		Fields: map[string]summaryField{
			"invoice_number": strField(d.InvoiceNumber, str),
			"issue_date":     strField(d.IssueDate, day),
			"due_date":       strField(d.DueDate, day),
			"vendor_name":    strField(d.VendorName, str),
			"vendor_address": strField(d.VendorAddress, str),
			"payment_terms":  strField(d.PaymentTerms, str),
			"subtotal":       strField(d.Subtotal, decString),
			"tax":            strField(d.Tax, decString),
			"total":          strField(d.Total, decString),
			"currency":       strField(d.Currency, str),
		},
		Diagnostics: d.Diagnostics,
	}
	for _, li := range d.LineItems {
		line := summaryLine{
			Description: strField(li.Description, str),
			Quantity:    strField(li.Quantity, decString),
			UnitPrice:   strField(li.UnitPrice, decString),
			LineTotal:   strField(li.LineTotal, decString),
		}
		if li.Inconsistent {
			line.Flag = "quantity x unit_price does not match line_total"
		}
		sum.LineItems = append(sum.LineItems, line)
	}

	out, err := yaml.Marshal(sum)
	if err != nil {
		return "", eris.Wrap(err, "refine: marshal draft summary")
	}
	return string(out), nil
}

func userPrompt(req Request) string {
	text := req.Text
	if len(text) > maxPromptText {
		text = text[:maxPromptText]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Current draft:\n%s\n", req.DraftSummary)
	fmt.Fprintf(&b, "Document text:\n%s\n", text)
	return b.String()
}
