package model

import "strings"

// Span locates an entity mention in the extracted text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entity is a typed mention reported by the extraction service.
type Entity struct {
	Kind            string   `json:"kind"`
	Value           string   `json:"value"`
	NormalizedValue string   `json:"normalized_value,omitempty"`
	Confidence      float64  `json:"confidence"`
	Span            Span     `json:"span"`
	Properties      []Entity `json:"properties,omitempty"`
}

// LineItemCell is one table cell of a candidate line item. Kind is set when
// the service typed the cell; otherwise the column header decides.
type LineItemCell struct {
	Row        int     `json:"row"`
	Column     int     `json:"column"`
	Kind       string  `json:"kind,omitempty"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// RawExtraction is the immutable output of an extraction call.
type RawExtraction struct {
	Text            string         `json:"text"`
	Entities        []Entity       `json:"entities"`
	LineItemCells   []LineItemCell `json:"line_item_cells"`
	LineItemColumns []string       `json:"line_item_columns,omitempty"`
	Provider        string         `json:"provider"`
	PageCount       int            `json:"page_count"`
}

// Empty reports whether the extraction carries nothing to normalize.
func (r RawExtraction) Empty() bool {
	return strings.TrimSpace(r.Text) == "" && len(r.Entities) == 0 && len(r.LineItemCells) == 0
}
