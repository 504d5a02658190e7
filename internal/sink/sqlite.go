package sink

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

//go:embed migrations/sqlite.sql
var sqliteSchema string

// sqliteTime is fixed width so stored timestamps compare lexicographically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore writes record sets in a single SQLite transaction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite wraps an open database. The caller owns sqlDB.
func NewSQLite(sqlDB *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: sqlDB}
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return eris.Wrap(err, "sqlite: migrate sink")
}

// Close is a no-op; the database handle belongs to the caller.
func (s *SQLiteStore) Close() error { return nil }

func (s *SQLiteStore) Write(ctx context.Context, rs *model.RecordSet) error {
	if err := Validate(rs); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifySQLite(eris.Wrap(err, "sqlite: begin sink write"))
	}
	defer tx.Rollback() //nolint:errcheck

	h := rs.Header
	provenance, raw, diagnostics, err := jsonColumns(h.FieldProvenance, h.RawValues, h.Diagnostics)
	if err != nil {
		return schemaMismatch(model.RecordKindHeader, 0, err)
	}
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO invoice_headers (`+strings.Join(headerColumns, ", ")+`)
		VALUES (`+placeholders(len(headerColumns))+`)`,
		h.RecordKey, h.FileFingerprint, h.LedgerAttemptID, string(h.ProcessingMode),
		h.OriginalFilename, h.StoragePath, h.InvoiceNumber, h.IssueDate, h.DueDate,
		h.VendorName, h.VendorAddress, h.PaymentTerms, h.Currency,
		h.Subtotal, h.Tax, h.Total, h.TotalsConsistent, h.LineItemCount, h.RefinementUsed,
		h.ConfidenceMean, h.ConfidenceMin,
		provenance, raw, diagnostics, h.ProcessedAt.UTC().Format(sqliteTime),
	)
	if err != nil {
		return classifySQLite(eris.Wrap(err, "sqlite: insert header"))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Record key already persisted.
		return tx.Commit()
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO invoice_line_items (`+strings.Join(lineItemColumns, ", ")+`)
		VALUES (`+placeholders(len(lineItemColumns))+`)`)
	if err != nil {
		return classifySQLite(eris.Wrap(err, "sqlite: prepare line item insert"))
	}
	defer stmt.Close() //nolint:errcheck

	for i, li := range rs.LineItems {
		provenance, raw, _, err := jsonColumns(li.FieldProvenance, li.RawValues, nil)
		if err != nil {
			return schemaMismatch(model.RecordKindLineItem, i, err)
		}
		if _, err := stmt.ExecContext(ctx,
			li.RecordKey, li.LineNumber, li.FileFingerprint, li.Description,
			li.Quantity, li.UnitPrice, li.LineTotal, li.Consistent, li.RefinementUsed,
			provenance, raw, li.ProcessedAt.UTC().Format(sqliteTime),
		); err != nil {
			return classifySQLite(eris.Wrapf(err, "sqlite: insert line item %d", li.LineNumber))
		}
	}

	return classifySQLite(eris.Wrap(tx.Commit(), "sqlite: commit sink write"))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func jsonColumns(provenance map[string]model.Provenance, raw map[string]string, diagnostics []string) (string, string, string, error) {
	p, err := json.Marshal(provenance)
	if err != nil {
		return "", "", "", eris.Wrap(err, "marshal field provenance")
	}
	r, err := json.Marshal(rawOrEmpty(raw))
	if err != nil {
		return "", "", "", eris.Wrap(err, "marshal raw values")
	}
	if diagnostics == nil {
		diagnostics = []string{}
	}
	d, err := json.Marshal(diagnostics)
	if err != nil {
		return "", "", "", eris.Wrap(err, "marshal diagnostics")
	}
	return string(p), string(r), string(d), nil
}

// classifySQLite maps a full database onto QuotaExceededError and missing
// tables or columns onto SchemaMismatchError.
func classifySQLite(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_FULL {
		return quotaExceeded("sqlite", err)
	}
	msg := err.Error()
	if strings.Contains(msg, "no such table") || strings.Contains(msg, "has no column") {
		return schemaMismatch(model.RecordKindHeader, 0, err)
	}
	return err
}

func (s *SQLiteStore) ListHeaders(ctx context.Context, q HeaderQuery) ([]model.InvoiceHeaderRow, error) {
	var where []string
	var args []any
	if !q.Since.IsZero() {
		where = append(where, "processed_at >= ?")
		args = append(args, q.Since.UTC().Format(sqliteTime))
	}
	if q.Mode != "" {
		where = append(where, "processing_mode = ?")
		args = append(args, string(q.Mode))
	}
	query := `SELECT ` + strings.Join(headerColumns, ", ") + ` FROM invoice_headers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY processed_at, record_key LIMIT ?"
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list headers")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.InvoiceHeaderRow
	for rows.Next() {
		var (
			h                          model.InvoiceHeaderRow
			mode, prov, raw, diag, pAt string
		)
		if err := rows.Scan(&h.RecordKey, &h.FileFingerprint, &h.LedgerAttemptID, &mode,
			&h.OriginalFilename, &h.StoragePath, &h.InvoiceNumber, &h.IssueDate, &h.DueDate,
			&h.VendorName, &h.VendorAddress, &h.PaymentTerms, &h.Currency,
			&h.Subtotal, &h.Tax, &h.Total, &h.TotalsConsistent, &h.LineItemCount, &h.RefinementUsed,
			&h.ConfidenceMean, &h.ConfidenceMin,
			&prov, &raw, &diag, &pAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan header")
		}
		h.ProcessingMode = model.Mode(mode)
		if err := decodeJSONColumns(prov, raw, diag, &h.FieldProvenance, &h.RawValues, &h.Diagnostics); err != nil {
			return nil, err
		}
		if h.ProcessedAt, err = time.Parse(sqliteTime, pAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse processed_at")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate headers")
}

func (s *SQLiteStore) ListLineItems(ctx context.Context, recordKey string) ([]model.LineItemRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+strings.Join(lineItemColumns, ", ")+`
		FROM invoice_line_items WHERE record_key = ? ORDER BY line_number`, recordKey)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list line items")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LineItemRow
	for rows.Next() {
		var li model.LineItemRow
		var prov, raw, pAt string
		if err := rows.Scan(&li.RecordKey, &li.LineNumber, &li.FileFingerprint, &li.Description,
			&li.Quantity, &li.UnitPrice, &li.LineTotal, &li.Consistent, &li.RefinementUsed,
			&prov, &raw, &pAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan line item")
		}
		if err := decodeJSONColumns(prov, raw, "", &li.FieldProvenance, &li.RawValues, nil); err != nil {
			return nil, err
		}
		if li.ProcessedAt, err = time.Parse(sqliteTime, pAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse processed_at")
		}
		out = append(out, li)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate line items")
}

func decodeJSONColumns(prov, raw, diag string, provOut *map[string]model.Provenance, rawOut *map[string]string, diagOut *[]string) error {
	if err := json.Unmarshal([]byte(prov), provOut); err != nil {
		return eris.Wrap(err, "sqlite: decode field provenance")
	}
	if err := json.Unmarshal([]byte(raw), rawOut); err != nil {
		return eris.Wrap(err, "sqlite: decode raw values")
	}
	if diagOut != nil {
		if err := json.Unmarshal([]byte(diag), diagOut); err != nil {
			return eris.Wrap(err, "sqlite: decode diagnostics")
		}
	}
	return nil
}
