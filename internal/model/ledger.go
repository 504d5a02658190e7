package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Mode selects the ledger partition an attempt is recorded against.
type Mode string

// Processing modes.
const (
	ModeProduction Mode = "production"
	ModeAdhoc      Mode = "adhoc"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeProduction, ModeAdhoc:
		return Mode(s), nil
	default:
		return "", eris.Errorf("model: unknown processing mode %q", s)
	}
}

// FileStatus is the lifecycle state of a ledger attempt.
type FileStatus string

// Ledger attempt statuses.
const (
	FileStatusPending   FileStatus = "pending"
	FileStatusSucceeded FileStatus = "succeeded"
	FileStatusFailed    FileStatus = "failed"
)

// ParseFileStatus validates a status string.
func ParseFileStatus(s string) (FileStatus, error) {
	switch FileStatus(s) {
	case FileStatusPending, FileStatusSucceeded, FileStatusFailed:
		return FileStatus(s), nil
	default:
		return "", eris.Errorf("model: unknown file status %q", s)
	}
}

// FileRecord is one ledger row: a single processing attempt of a content
// fingerprint. Failed attempts are kept for audit.
type FileRecord struct {
	AttemptID        string     `json:"attempt_id"`
	Fingerprint      string     `json:"fingerprint"`
	Attempt          int        `json:"attempt"`
	Mode             Mode       `json:"processing_mode"`
	OriginalFilename string     `json:"original_filename,omitempty"`
	StoragePath      string     `json:"storage_path,omitempty"`
	FileSize         int64      `json:"file_size"`
	RefinementUsed   bool       `json:"refinement_used"`
	Status           FileStatus `json:"status"`
	RecordKeys       []string   `json:"persisted_record_keys,omitempty"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	// Generation counts the succeeded attempts this one supersedes. It seeds
	// the record key and is never stored.
	Generation int `json:"-"`
}
