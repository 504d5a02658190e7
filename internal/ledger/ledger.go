// Package ledger records one row per processing attempt of a file's content
// and enforces that each content fingerprint is persisted at most once per
// processing mode.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// Attempt rejections. They are control-flow signals, not failures.
var (
	ErrDuplicateInProgress = eris.New("ledger: an attempt for this content is already pending")
	ErrAlreadyProcessed    = eris.New("ledger: content already processed")
	ErrAttemptNotPending   = eris.New("ledger: attempt is not pending")
)

// AbandonedError is the error text recorded on reclaimed stale attempts.
const AbandonedError = "abandoned"

// AttemptMeta describes the file behind an attempt.
type AttemptMeta struct {
	OriginalFilename string
	StoragePath      string
	FileSize         int64
}

// AttemptToken identifies a pending attempt. Only its holder completes it.
type AttemptToken struct {
	AttemptID   string
	Fingerprint string
	Attempt     int
	Mode        model.Mode
	Meta        AttemptMeta
	StartedAt   time.Time
}

// FileRecord returns the pending ledger row this token represents.
func (t *AttemptToken) FileRecord() model.FileRecord {
	return model.FileRecord{
		AttemptID:        t.AttemptID,
		Fingerprint:      t.Fingerprint,
		Attempt:          t.Attempt,
		Mode:             t.Mode,
		OriginalFilename: t.Meta.OriginalFilename,
		StoragePath:      t.Meta.StoragePath,
		FileSize:         t.Meta.FileSize,
		Status:           model.FileStatusPending,
		StartedAt:        t.StartedAt,
	}
}

// Outcome is the terminal result of an attempt.
type Outcome struct {
	Status         model.FileStatus
	RecordKeys     []string
	RefinementUsed bool
	Err            error
}

func (o Outcome) validate() error {
	if o.Status != model.FileStatusSucceeded && o.Status != model.FileStatusFailed {
		return eris.Errorf("ledger: outcome status must be succeeded or failed, got %q", o.Status)
	}
	return nil
}

func (o Outcome) errorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Fingerprint string
	Status      model.FileStatus
	Limit       int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Ledger is the idempotency ledger.
type Ledger interface {
	// BeginAttempt atomically creates a pending attempt for fp. It fails
	// with ErrDuplicateInProgress when another attempt is pending, and with
	// ErrAlreadyProcessed when an attempt succeeded and force is false.
	BeginAttempt(ctx context.Context, fp string, mode model.Mode, meta AttemptMeta, force bool) (*AttemptToken, error)
	// Complete moves a pending attempt to succeeded or failed.
	Complete(ctx context.Context, token *AttemptToken, outcome Outcome) error
	HasSucceeded(ctx context.Context, mode model.Mode, fp string) (bool, error)
	// List returns attempts newest first.
	List(ctx context.Context, mode model.Mode, filter Filter) ([]model.FileRecord, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Options tunes ledger behavior shared by every backend.
type Options struct {
	// StaleAfter is the age after which a pending attempt is marked failed
	// by the next BeginAttempt for the same content. Zero disables reclaim.
	StaleAfter time.Duration
	Now        func() time.Time
}

// OptionsFromConfig builds Options from the ledger config section.
func OptionsFromConfig(cfg config.LedgerConfig) Options {
	return Options{StaleAfter: time.Duration(cfg.StaleAfterSecs) * time.Second}
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// Fingerprint returns the sha256 hex digest of r's content.
func Fingerprint(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", eris.Wrap(err, "ledger: read content")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintBytes is Fingerprint for in-memory content.
func FingerprintBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// tableFor maps a processing mode onto its ledger partition.
func tableFor(mode model.Mode) (string, error) {
	switch mode {
	case model.ModeProduction:
		return "ledger_production", nil
	case model.ModeAdhoc:
		return "ledger_adhoc", nil
	default:
		return "", eris.Errorf("ledger: unknown processing mode %q", mode)
	}
}

var tables = []string{"ledger_production", "ledger_adhoc"}
