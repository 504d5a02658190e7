package model

import "time"

// RecordKind distinguishes header rows from line-item rows.
type RecordKind string

// Record kinds.
const (
	RecordKindHeader   RecordKind = "header"
	RecordKindLineItem RecordKind = "line_item"
)

// InvoiceHeaderRow is the persisted header of one invoice. Amounts are decimal
// strings; nil means unresolved.
type InvoiceHeaderRow struct {
	RecordKey        string                `json:"record_key"`
	FileFingerprint  string                `json:"file_fingerprint"`
	LedgerAttemptID  string                `json:"ledger_attempt_id"`
	ProcessingMode   Mode                  `json:"processing_mode"`
	OriginalFilename string                `json:"original_filename"`
	StoragePath      string                `json:"storage_path"`
	InvoiceNumber    *string               `json:"invoice_number"`
	IssueDate        *string               `json:"issue_date"`
	DueDate          *string               `json:"due_date"`
	VendorName       *string               `json:"vendor_name"`
	VendorAddress    *string               `json:"vendor_address"`
	PaymentTerms     *string               `json:"payment_terms"`
	Currency         *string               `json:"currency"`
	Subtotal         *string               `json:"subtotal"`
	Tax              *string               `json:"tax"`
	Total            *string               `json:"total"`
	TotalsConsistent bool                  `json:"totals_consistent"`
	LineItemCount    int                   `json:"line_item_count"`
	RefinementUsed   bool                  `json:"refinement_used"`
	ConfidenceMean   float64               `json:"extraction_confidence_mean"`
	ConfidenceMin    float64               `json:"extraction_confidence_min"`
	FieldProvenance  map[string]Provenance `json:"field_provenance"`
	RawValues        map[string]string     `json:"raw_values"`
	Diagnostics      []string              `json:"diagnostics"`
	ProcessedAt      time.Time             `json:"processed_at"`
}

// LineItemRow is one persisted invoice line joined to its header by RecordKey.
type LineItemRow struct {
	RecordKey       string                `json:"record_key"`
	LineNumber      int                   `json:"line_number"`
	FileFingerprint string                `json:"file_fingerprint"`
	Description     *string               `json:"description"`
	Quantity        *string               `json:"quantity"`
	UnitPrice       *string               `json:"unit_price"`
	LineTotal       *string               `json:"line_total"`
	Consistent      bool                  `json:"consistent"`
	RefinementUsed  bool                  `json:"refinement_used"`
	FieldProvenance map[string]Provenance `json:"field_provenance"`
	RawValues       map[string]string     `json:"raw_values"`
	ProcessedAt     time.Time             `json:"processed_at"`
}

// PersistedInvoiceRecord is one row in the order the sink receives it.
// Exactly one of Header and LineItem is set.
type PersistedInvoiceRecord struct {
	Kind     RecordKind        `json:"kind"`
	Header   *InvoiceHeaderRow `json:"header,omitempty"`
	LineItem *LineItemRow      `json:"line_item,omitempty"`
}

// RecordSet is the complete output of one assembly: a header and its lines.
type RecordSet struct {
	RecordKey string           `json:"record_key"`
	Header    InvoiceHeaderRow `json:"header"`
	LineItems []LineItemRow    `json:"line_items"`
}

// Records returns the header followed by every line item.
func (rs *RecordSet) Records() []PersistedInvoiceRecord {
	out := make([]PersistedInvoiceRecord, 0, 1+len(rs.LineItems))
	h := rs.Header
	out = append(out, PersistedInvoiceRecord{Kind: RecordKindHeader, Header: &h})
	for i := range rs.LineItems {
		li := rs.LineItems[i]
		out = append(out, PersistedInvoiceRecord{Kind: RecordKindLineItem, LineItem: &li})
	}
	return out
}
