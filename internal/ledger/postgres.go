package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/wheelerbb/gcp-invoice-intel/internal/db"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// PostgresLedger implements Ledger on PostgreSQL.
type PostgresLedger struct {
	pool db.Pool
	opts Options
}

// NewPostgres wraps a pool. The caller owns pool.
func NewPostgres(pool db.Pool, opts Options) *PostgresLedger {
	return &PostgresLedger{pool: pool, opts: opts}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	attempt_id        TEXT PRIMARY KEY,
	fingerprint       TEXT NOT NULL,
	attempt           INTEGER NOT NULL,
	original_filename TEXT NOT NULL DEFAULT '',
	storage_path      TEXT NOT NULL DEFAULT '',
	file_size         BIGINT NOT NULL DEFAULT 0,
	refinement_used   BOOLEAN NOT NULL DEFAULT false,
	status            TEXT NOT NULL CHECK (status IN ('pending', 'succeeded', 'failed')),
	record_keys       TEXT[] NOT NULL DEFAULT '{}',
	error             TEXT NOT NULL DEFAULT '',
	started_at        TIMESTAMPTZ NOT NULL,
	completed_at      TIMESTAMPTZ,
	UNIQUE (fingerprint, attempt)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_pending ON %[1]s (fingerprint) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s (status, started_at);
`

func (l *PostgresLedger) Migrate(ctx context.Context) error {
	for _, t := range tables {
		if _, err := l.pool.Exec(ctx, fmt.Sprintf(postgresSchema, t)); err != nil {
			return eris.Wrapf(err, "postgres: migrate %s", t)
		}
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (l *PostgresLedger) Close() error { return nil }

func (l *PostgresLedger) BeginAttempt(ctx context.Context, fp string, mode model.Mode, meta AttemptMeta, force bool) (*AttemptToken, error) {
	table, err := tableFor(mode)
	if err != nil {
		return nil, err
	}
	now := l.opts.now()

	if l.opts.StaleAfter > 0 {
		_, err := l.pool.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET status = 'failed', error = $1, completed_at = $2
				WHERE fingerprint = $3 AND status = 'pending' AND started_at < $4`, table),
			AbandonedError, now, fp, now.Add(-l.opts.StaleAfter),
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: reclaim stale attempts")
		}
	}

	token := &AttemptToken{
		AttemptID:   uuid.NewString(),
		Fingerprint: fp,
		Mode:        mode,
		Meta:        meta,
		StartedAt:   now,
	}

	// Concurrent inserters race on the partial unique index over pending
	// rows; the loser gets no row back.
	err = l.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (attempt_id, fingerprint, attempt, original_filename, storage_path, file_size, status, started_at)
		SELECT $1, $2, (SELECT COALESCE(MAX(attempt), 0) + 1 FROM %[1]s WHERE fingerprint = $2), $3, $4, $5, 'pending', $6
		WHERE NOT EXISTS (SELECT 1 FROM %[1]s WHERE fingerprint = $2 AND status = 'pending')
		  AND ($7 OR NOT EXISTS (SELECT 1 FROM %[1]s WHERE fingerprint = $2 AND status = 'succeeded'))
		ON CONFLICT DO NOTHING
		RETURNING attempt`, table),
		token.AttemptID, fp, meta.OriginalFilename, meta.StoragePath, meta.FileSize, now, force,
	).Scan(&token.Attempt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, l.rejection(ctx, table, fp)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin attempt")
	}
	return token, nil
}

func (l *PostgresLedger) rejection(ctx context.Context, table, fp string) error {
	var pending, succeeded bool
	err := l.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COALESCE(bool_or(status = 'pending'), false), COALESCE(bool_or(status = 'succeeded'), false)
		FROM %s WHERE fingerprint = $1`, table), fp,
	).Scan(&pending, &succeeded)
	if err != nil {
		return eris.Wrap(err, "postgres: classify rejected attempt")
	}
	if !pending && succeeded {
		return ErrAlreadyProcessed
	}
	return ErrDuplicateInProgress
}

func (l *PostgresLedger) Complete(ctx context.Context, token *AttemptToken, outcome Outcome) error {
	if err := outcome.validate(); err != nil {
		return err
	}
	table, err := tableFor(token.Mode)
	if err != nil {
		return err
	}

	tag, err := l.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET status = $1, record_keys = $2, refinement_used = $3, error = $4, completed_at = $5
			WHERE attempt_id = $6 AND status = 'pending'`, table),
		string(outcome.Status), nonNil(outcome.RecordKeys), outcome.RefinementUsed, outcome.errorText(),
		l.opts.now(), token.AttemptID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete attempt %s", token.AttemptID)
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptNotPending
	}
	return nil
}

func (l *PostgresLedger) HasSucceeded(ctx context.Context, mode model.Mode, fp string) (bool, error) {
	table, err := tableFor(mode)
	if err != nil {
		return false, err
	}
	var ok bool
	err = l.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE fingerprint = $1 AND status = 'succeeded')`, table), fp,
	).Scan(&ok)
	if err != nil {
		return false, eris.Wrap(err, "postgres: has succeeded")
	}
	return ok, nil
}

func (l *PostgresLedger) List(ctx context.Context, mode model.Mode, filter Filter) ([]model.FileRecord, error) {
	table, err := tableFor(mode)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT attempt_id, fingerprint, attempt, original_filename, storage_path, file_size,
		refinement_used, status, record_keys, error, started_at, completed_at FROM %s WHERE true`, table)
	args := []any{}
	argIdx := 1

	if filter.Fingerprint != "" {
		query += fmt.Sprintf(` AND fingerprint = $%d`, argIdx)
		args = append(args, filter.Fingerprint)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC, attempt DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list attempts")
	}
	defer rows.Close()

	var out []model.FileRecord
	for rows.Next() {
		var r model.FileRecord
		var status string
		if err := rows.Scan(&r.AttemptID, &r.Fingerprint, &r.Attempt, &r.OriginalFilename, &r.StoragePath,
			&r.FileSize, &r.RefinementUsed, &status, &r.RecordKeys, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attempt")
		}
		r.Mode = mode
		r.Status = model.FileStatus(status)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate attempts")
}
