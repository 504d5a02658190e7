// Package sink persists assembled invoice records to the analytical store.
// Writes are append-only and validated against a JSON schema first.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/internal/resilience"
)

// Sink receives record sets. Writing a record key that already exists is a
// no-op.
type Sink interface {
	Write(ctx context.Context, rs *model.RecordSet) error
	Migrate(ctx context.Context) error
	Close() error
}

// HeaderQuery narrows ListHeaders. Zero values match everything.
type HeaderQuery struct {
	Since time.Time
	Mode  model.Mode
	Limit int
}

func (q HeaderQuery) limit() int {
	if q.Limit <= 0 {
		return 1000
	}
	return q.Limit
}

// Reader reads persisted rows back, oldest first.
type Reader interface {
	ListHeaders(ctx context.Context, q HeaderQuery) ([]model.InvoiceHeaderRow, error)
	ListLineItems(ctx context.Context, recordKey string) ([]model.LineItemRow, error)
}

// Store is a Sink that can also be read.
type Store interface {
	Sink
	Reader
}

// SchemaMismatchError reports a row the store's schema rejects. It is never
// retried.
type SchemaMismatchError struct {
	Kind  model.RecordKind
	Index int
	Err   error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("sink: %s row %d does not match schema: %v", e.Kind, e.Index, e.Err)
}

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

// QuotaExceededError reports a store that is out of space or capacity. It is
// returned wrapped in a resilience.TransientError.
type QuotaExceededError struct {
	Backend string
	Err     error
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("sink: %s quota exceeded: %v", e.Backend, e.Err)
}

func (e *QuotaExceededError) Unwrap() error { return e.Err }

func schemaMismatch(kind model.RecordKind, index int, err error) error {
	return resilience.Permanent(&SchemaMismatchError{Kind: kind, Index: index, Err: err})
}

func quotaExceeded(backend string, err error) error {
	return resilience.NewTransientError(&QuotaExceededError{Backend: backend, Err: err}, 0)
}

// RecordKeys returns the keys a successful Write persisted.
func RecordKeys(rs *model.RecordSet) []string {
	return []string{rs.RecordKey}
}
