package sink

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/wheelerbb/gcp-invoice-intel/internal/db"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

//go:embed migrations/postgres.sql
var postgresSchema string

var headerColumns = []string{
	"record_key", "file_fingerprint", "ledger_attempt_id", "processing_mode",
	"original_filename", "storage_path", "invoice_number", "issue_date", "due_date",
	"vendor_name", "vendor_address", "payment_terms", "currency",
	"subtotal", "tax", "total", "totals_consistent", "line_item_count", "refinement_used",
	"extraction_confidence_mean", "extraction_confidence_min",
	"field_provenance", "raw_values", "diagnostics", "processed_at",
}

var lineItemColumns = []string{
	"record_key", "line_number", "file_fingerprint", "description",
	"quantity", "unit_price", "line_total", "consistent", "refinement_used",
	"field_provenance", "raw_values", "processed_at",
}

// PostgresStore writes record sets with COPY inside one transaction.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps a pool. The caller owns pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return eris.Wrap(err, "postgres: migrate sink")
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) Write(ctx context.Context, rs *model.RecordSet) error {
	if err := Validate(rs); err != nil {
		return err
	}

	headerRow, err := headerValues(rs.Header)
	if err != nil {
		return schemaMismatch(model.RecordKindHeader, 0, err)
	}
	lineRows := make([][]any, len(rs.LineItems))
	for i, li := range rs.LineItems {
		if lineRows[i], err = lineItemValues(li); err != nil {
			return schemaMismatch(model.RecordKindLineItem, i, err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyPostgres(eris.Wrap(err, "postgres: begin sink write"))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := db.InsertIgnore(ctx, tx, db.InsertConfig{
		Table:        "invoice_headers",
		Columns:      headerColumns,
		ConflictKeys: []string{"record_key"},
	}, [][]any{headerRow}); err != nil {
		return classifyPostgres(err)
	}
	if _, err := db.InsertIgnore(ctx, tx, db.InsertConfig{
		Table:        "invoice_line_items",
		Columns:      lineItemColumns,
		ConflictKeys: []string{"record_key", "line_number"},
	}, lineRows); err != nil {
		return classifyPostgres(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPostgres(eris.Wrap(err, "postgres: commit sink write"))
	}
	return nil
}

func headerValues(h model.InvoiceHeaderRow) ([]any, error) {
	issue, err := dateValue(h.IssueDate)
	if err != nil {
		return nil, err
	}
	due, err := dateValue(h.DueDate)
	if err != nil {
		return nil, err
	}
	subtotal, err := numericValue(h.Subtotal)
	if err != nil {
		return nil, err
	}
	tax, err := numericValue(h.Tax)
	if err != nil {
		return nil, err
	}
	total, err := numericValue(h.Total)
	if err != nil {
		return nil, err
	}
	diagnostics := h.Diagnostics
	if diagnostics == nil {
		diagnostics = []string{}
	}
	return []any{
		h.RecordKey, h.FileFingerprint, h.LedgerAttemptID, string(h.ProcessingMode),
		h.OriginalFilename, h.StoragePath, h.InvoiceNumber, issue, due,
		h.VendorName, h.VendorAddress, h.PaymentTerms, h.Currency,
		subtotal, tax, total, h.TotalsConsistent, h.LineItemCount, h.RefinementUsed,
		h.ConfidenceMean, h.ConfidenceMin,
		h.FieldProvenance, rawOrEmpty(h.RawValues), diagnostics, h.ProcessedAt,
	}, nil
}

func lineItemValues(li model.LineItemRow) ([]any, error) {
	qty, err := numericValue(li.Quantity)
	if err != nil {
		return nil, err
	}
	price, err := numericValue(li.UnitPrice)
	if err != nil {
		return nil, err
	}
	total, err := numericValue(li.LineTotal)
	if err != nil {
		return nil, err
	}
	return []any{
		li.RecordKey, li.LineNumber, li.FileFingerprint, li.Description,
		qty, price, total, li.Consistent, li.RefinementUsed,
		li.FieldProvenance, rawOrEmpty(li.RawValues), li.ProcessedAt,
	}, nil
}

func numericValue(s *string) (pgtype.Numeric, error) {
	if s == nil {
		return pgtype.Numeric{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return pgtype.Numeric{}, eris.Wrapf(err, "decimal %q", *s)
	}
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}, nil
}

func dateValue(s *string) (pgtype.Date, error) {
	if s == nil {
		return pgtype.Date{}, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return pgtype.Date{}, eris.Wrapf(err, "date %q", *s)
	}
	return pgtype.Date{Time: t, Valid: true}, nil
}

func rawOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// classifyPostgres maps server errors onto the sink error taxonomy:
// insufficient resources (class 53) is a quota problem, syntax and access
// rule violations (class 42) and data exceptions (class 22) are schema
// mismatches.
func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case strings.HasPrefix(pgErr.Code, "53"):
		return quotaExceeded("postgres", err)
	case strings.HasPrefix(pgErr.Code, "42"), strings.HasPrefix(pgErr.Code, "22"):
		return schemaMismatch(model.RecordKindHeader, 0, fmt.Errorf("%s: %w", pgErr.Code, err))
	default:
		return err
	}
}

const headerSelect = `SELECT record_key, file_fingerprint, ledger_attempt_id, processing_mode,
	original_filename, storage_path, invoice_number, issue_date::text, due_date::text,
	vendor_name, vendor_address, payment_terms, currency,
	subtotal::text, tax::text, total::text, totals_consistent, line_item_count, refinement_used,
	extraction_confidence_mean, extraction_confidence_min,
	field_provenance, raw_values, diagnostics, processed_at
	FROM invoice_headers WHERE true`

func (s *PostgresStore) ListHeaders(ctx context.Context, q HeaderQuery) ([]model.InvoiceHeaderRow, error) {
	query := headerSelect
	args := []any{}
	argIdx := 1

	if !q.Since.IsZero() {
		query += fmt.Sprintf(` AND processed_at >= $%d`, argIdx)
		args = append(args, q.Since)
		argIdx++
	}
	if q.Mode != "" {
		query += fmt.Sprintf(` AND processing_mode = $%d`, argIdx)
		args = append(args, string(q.Mode))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY processed_at, record_key LIMIT $%d`, argIdx)
	args = append(args, q.limit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list headers")
	}
	defer rows.Close()

	var out []model.InvoiceHeaderRow
	for rows.Next() {
		var h model.InvoiceHeaderRow
		var mode string
		if err := rows.Scan(&h.RecordKey, &h.FileFingerprint, &h.LedgerAttemptID, &mode,
			&h.OriginalFilename, &h.StoragePath, &h.InvoiceNumber, &h.IssueDate, &h.DueDate,
			&h.VendorName, &h.VendorAddress, &h.PaymentTerms, &h.Currency,
			&h.Subtotal, &h.Tax, &h.Total, &h.TotalsConsistent, &h.LineItemCount, &h.RefinementUsed,
			&h.ConfidenceMean, &h.ConfidenceMin,
			&h.FieldProvenance, &h.RawValues, &h.Diagnostics, &h.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan header")
		}
		h.ProcessingMode = model.Mode(mode)
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate headers")
}

func (s *PostgresStore) ListLineItems(ctx context.Context, recordKey string) ([]model.LineItemRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT record_key, line_number, file_fingerprint, description,
		quantity::text, unit_price::text, line_total::text, consistent, refinement_used,
		field_provenance, raw_values, processed_at
		FROM invoice_line_items WHERE record_key = $1 ORDER BY line_number`, recordKey)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list line items")
	}
	defer rows.Close()

	var out []model.LineItemRow
	for rows.Next() {
		var li model.LineItemRow
		if err := rows.Scan(&li.RecordKey, &li.LineNumber, &li.FileFingerprint, &li.Description,
			&li.Quantity, &li.UnitPrice, &li.LineTotal, &li.Consistent, &li.RefinementUsed,
			&li.FieldProvenance, &li.RawValues, &li.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan line item")
		}
		out = append(out, li)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate line items")
}
