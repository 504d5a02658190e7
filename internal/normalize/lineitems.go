package normalize

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

type column int

const (
	colUnknown column = iota
	colDescription
	colQuantity
	colUnitPrice
	colLineTotal
)

var cellKinds = map[string]column{
	"line_item/description": colDescription,
	"description":           colDescription,
	"line_item/quantity":    colQuantity,
	"quantity":              colQuantity,
	"qty":                   colQuantity,
	"line_item/unit_price":  colUnitPrice,
	"unit_price":            colUnitPrice,
	"price":                 colUnitPrice,
	"rate":                  colUnitPrice,
	"line_item/amount":      colLineTotal,
	"amount":                colLineTotal,
	"line_total":            colLineTotal,
}

// headerKeywords is matched in order against a lowercased column label.
var headerKeywords = []struct {
	word string
	col  column
}{
	{"qty", colQuantity},
	{"quantity", colQuantity},
	{"units", colQuantity},
	{"hours", colQuantity},
	{"unit price", colUnitPrice},
	{"unit cost", colUnitPrice},
	{"rate", colUnitPrice},
	{"price", colUnitPrice},
	{"amount", colLineTotal},
	{"total", colLineTotal},
	{"description", colDescription},
	{"item", colDescription},
	{"product", colDescription},
	{"service", colDescription},
	{"details", colDescription},
}

func columnForHeader(label string) column {
	l := strings.ToLower(strings.TrimSpace(label))
	for _, kw := range headerKeywords {
		if strings.Contains(l, kw.word) {
			return kw.col
		}
	}
	return colUnknown
}

func (n *Normalizer) columnFor(cell model.LineItemCell, headers []string) column {
	if c, ok := cellKinds[strings.ToLower(cell.Kind)]; ok {
		return c
	}
	if cell.Column >= 0 && cell.Column < len(headers) {
		return columnForHeader(headers[cell.Column])
	}
	return colUnknown
}

// cellsFromEntities flattens "line_item" entities with typed properties into
// cells, one row per entity.
func cellsFromEntities(entities []model.Entity) []model.LineItemCell {
	var cells []model.LineItemCell
	row := 0
	for _, e := range entities {
		if e.Kind != "line_item" {
			continue
		}
		for col, p := range e.Properties {
			text := p.Value
			if text == "" {
				text = p.NormalizedValue
			}
			cells = append(cells, model.LineItemCell{
				Row:        row,
				Column:     col,
				Kind:       p.Kind,
				Text:       text,
				Confidence: p.Confidence,
			})
		}
		row++
	}
	return cells
}

// lineItems groups cells by row into line items in ascending row order.
// Rows are never dropped; missing or unparsable numbers stay unresolved.
func (n *Normalizer) lineItems(raw model.RawExtraction, hint string, diag func(string)) []model.LineItem {
	cells := raw.LineItemCells
	if len(cells) == 0 {
		cells = cellsFromEntities(raw.Entities)
	}
	if len(cells) == 0 {
		return nil
	}

	rows := make(map[int][]model.LineItemCell)
	for _, c := range cells {
		rows[c.Row] = append(rows[c.Row], c)
	}
	order := make([]int, 0, len(rows))
	for r := range rows {
		order = append(order, r)
	}
	slices.Sort(order)

	items := make([]model.LineItem, 0, len(order))
	for idx, r := range order {
		rowCells := rows[r]
		slices.SortFunc(rowCells, func(a, b model.LineItemCell) int { return a.Column - b.Column })

		item := model.LineItem{
			Row:         r,
			Description: model.Unresolved[string](""),
			Quantity:    model.Unresolved[decimal.Decimal](""),
			UnitPrice:   model.Unresolved[decimal.Decimal](""),
			LineTotal:   model.Unresolved[decimal.Decimal](""),
		}

		var desc []string
		var descConf float64
		for _, c := range rowCells {
			text := strings.TrimSpace(c.Text)
			if text == "" {
				continue
			}
			name := fmt.Sprintf("line_items[%d]", idx)
			switch n.columnFor(c, raw.LineItemColumns) {
			case colDescription:
				desc = append(desc, collapse(text))
				descConf = max(descConf, c.Confidence)
			case colQuantity:
				item.Quantity = n.quantity(text, hint, c.Confidence, name+".quantity", diag)
			case colUnitPrice:
				item.UnitPrice = n.money(text, hint, c.Confidence, name+".unit_price", diag)
			case colLineTotal:
				item.LineTotal = n.money(text, hint, c.Confidence, name+".line_total", diag)
			}
		}
		if len(desc) > 0 {
			joined := strings.Join(desc, " ")
			item.Description = model.Extracted(joined, joined, descConf)
		}
		items = append(items, item)
	}
	return items
}

// money parses text into a Money field. Unparsable or ambiguous text stays
// unresolved with the raw value kept.
func (n *Normalizer) money(text, hint string, conf float64, field string, diag func(string)) model.Money {
	amt, err := ParseAmount(text, hint)
	if err != nil {
		if eris.Is(err, ErrAmbiguousAmount) {
			diag(model.DiagAmbiguousAmount + ":" + field)
		}
		return model.Unresolved[decimal.Decimal](text)
	}
	return model.Extracted(amt.Value, text, conf)
}

// quantity is money for the quantity column. See ParseQuantity.
func (n *Normalizer) quantity(text, hint string, conf float64, field string, diag func(string)) model.Money {
	q, err := ParseQuantity(text, hint)
	if err != nil {
		if eris.Is(err, ErrAmbiguousAmount) {
			diag(model.DiagAmbiguousAmount + ":" + field)
		}
		return model.Unresolved[decimal.Decimal](text)
	}
	return model.Extracted(q, text, conf)
}
