package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// tsLayout is fixed width so stored timestamps compare lexicographically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteLedger implements Ledger on a modernc.org/sqlite database.
type SQLiteLedger struct {
	db   *sql.DB
	opts Options
}

// NewSQLite wraps an open database. The caller owns sqlDB.
func NewSQLite(sqlDB *sql.DB, opts Options) *SQLiteLedger {
	return &SQLiteLedger{db: sqlDB, opts: opts}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	attempt_id        TEXT PRIMARY KEY,
	fingerprint       TEXT NOT NULL,
	attempt           INTEGER NOT NULL,
	original_filename TEXT NOT NULL DEFAULT '',
	storage_path      TEXT NOT NULL DEFAULT '',
	file_size         INTEGER NOT NULL DEFAULT 0,
	refinement_used   INTEGER NOT NULL DEFAULT 0,
	status            TEXT NOT NULL CHECK (status IN ('pending', 'succeeded', 'failed')),
	record_keys       TEXT NOT NULL DEFAULT '[]',
	error             TEXT NOT NULL DEFAULT '',
	started_at        TEXT NOT NULL,
	completed_at      TEXT,
	UNIQUE (fingerprint, attempt)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_pending ON %[1]s(fingerprint) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s(status, started_at);
`

func (l *SQLiteLedger) Migrate(ctx context.Context) error {
	for _, t := range tables {
		if _, err := l.db.ExecContext(ctx, fmt.Sprintf(sqliteSchema, t)); err != nil {
			return eris.Wrapf(err, "sqlite: migrate %s", t)
		}
	}
	return nil
}

// Close is a no-op; the database handle belongs to the caller.
func (l *SQLiteLedger) Close() error { return nil }

func (l *SQLiteLedger) BeginAttempt(ctx context.Context, fp string, mode model.Mode, meta AttemptMeta, force bool) (*AttemptToken, error) {
	table, err := tableFor(mode)
	if err != nil {
		return nil, err
	}
	now := l.opts.now()

	if l.opts.StaleAfter > 0 {
		_, err := l.db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET status = 'failed', error = ?, completed_at = ?
				WHERE fingerprint = ? AND status = 'pending' AND started_at < ?`, table),
			AbandonedError, now.Format(tsLayout), fp, now.Add(-l.opts.StaleAfter).Format(tsLayout),
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: reclaim stale attempts")
		}
	}

	token := &AttemptToken{
		AttemptID:   uuid.NewString(),
		Fingerprint: fp,
		Mode:        mode,
		Meta:        meta,
		StartedAt:   now,
	}

	// A single statement is atomic in SQLite; the partial unique index on
	// pending rows backs it up.
	res, err := l.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT OR IGNORE INTO %[1]s
			(attempt_id, fingerprint, attempt, original_filename, storage_path, file_size, status, started_at)
		SELECT ?, ?, (SELECT COALESCE(MAX(attempt), 0) + 1 FROM %[1]s WHERE fingerprint = ?), ?, ?, ?, 'pending', ?
		WHERE NOT EXISTS (SELECT 1 FROM %[1]s WHERE fingerprint = ? AND status = 'pending')
		  AND (? OR NOT EXISTS (SELECT 1 FROM %[1]s WHERE fingerprint = ? AND status = 'succeeded'))`, table),
		token.AttemptID, fp, fp, meta.OriginalFilename, meta.StoragePath, meta.FileSize, now.Format(tsLayout),
		fp, force, fp,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin attempt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return nil, l.rejection(ctx, table, fp)
	}

	err = l.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT attempt FROM %s WHERE attempt_id = ?`, table), token.AttemptID,
	).Scan(&token.Attempt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read attempt number")
	}
	return token, nil
}

// rejection explains why an insert was skipped.
func (l *SQLiteLedger) rejection(ctx context.Context, table, fp string) error {
	var pending, succeeded int
	err := l.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(MAX(status = 'pending'), 0), COALESCE(MAX(status = 'succeeded'), 0)
		FROM %s WHERE fingerprint = ?`, table), fp,
	).Scan(&pending, &succeeded)
	if err != nil {
		return eris.Wrap(err, "sqlite: classify rejected attempt")
	}
	if pending == 0 && succeeded == 1 {
		return ErrAlreadyProcessed
	}
	return ErrDuplicateInProgress
}

func (l *SQLiteLedger) Complete(ctx context.Context, token *AttemptToken, outcome Outcome) error {
	if err := outcome.validate(); err != nil {
		return err
	}
	table, err := tableFor(token.Mode)
	if err != nil {
		return err
	}
	keys, err := json.Marshal(nonNil(outcome.RecordKeys))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record keys")
	}

	res, err := l.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET status = ?, record_keys = ?, refinement_used = ?, error = ?, completed_at = ?
			WHERE attempt_id = ? AND status = 'pending'`, table),
		string(outcome.Status), string(keys), outcome.RefinementUsed, outcome.errorText(),
		l.opts.now().Format(tsLayout), token.AttemptID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete attempt %s", token.AttemptID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrAttemptNotPending
	}
	return nil
}

func (l *SQLiteLedger) HasSucceeded(ctx context.Context, mode model.Mode, fp string) (bool, error) {
	table, err := tableFor(mode)
	if err != nil {
		return false, err
	}
	var found int
	err = l.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE fingerprint = ? AND status = 'succeeded' LIMIT 1`, table), fp,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: has succeeded")
	}
	return true, nil
}

func (l *SQLiteLedger) List(ctx context.Context, mode model.Mode, filter Filter) ([]model.FileRecord, error) {
	table, err := tableFor(mode)
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.Fingerprint != "" {
		where = append(where, "fingerprint = ?")
		args = append(args, filter.Fingerprint)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := fmt.Sprintf(`SELECT attempt_id, fingerprint, attempt, original_filename, storage_path, file_size,
		refinement_used, status, record_keys, error, started_at, completed_at FROM %s`, table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, attempt DESC LIMIT ?"
	args = append(args, filter.limit())

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list attempts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FileRecord
	for rows.Next() {
		var (
			r                   model.FileRecord
			status, keys, start string
			completed           sql.NullString
		)
		if err := rows.Scan(&r.AttemptID, &r.Fingerprint, &r.Attempt, &r.OriginalFilename, &r.StoragePath,
			&r.FileSize, &r.RefinementUsed, &status, &keys, &r.Error, &start, &completed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attempt")
		}
		r.Mode = mode
		r.Status = model.FileStatus(status)
		if err := json.Unmarshal([]byte(keys), &r.RecordKeys); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode record keys")
		}
		if r.StartedAt, err = time.Parse(tsLayout, start); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse started_at")
		}
		if completed.Valid {
			t, err := time.Parse(tsLayout, completed.String)
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: parse completed_at")
			}
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate attempts")
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}
