package ledger

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// MemoryLedger keeps attempts in process memory. It is used by tests and by
// the memory store driver.
type MemoryLedger struct {
	opts Options

	mu      sync.Mutex
	records map[model.Mode][]model.FileRecord
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(opts Options) *MemoryLedger {
	return &MemoryLedger{opts: opts, records: make(map[model.Mode][]model.FileRecord)}
}

func (l *MemoryLedger) BeginAttempt(_ context.Context, fp string, mode model.Mode, meta AttemptMeta, force bool) (*AttemptToken, error) {
	if _, err := tableFor(mode); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.opts.now()
	recs := l.records[mode]
	last := 0
	pending, succeeded := false, false
	for i := range recs {
		r := &recs[i]
		if r.Fingerprint != fp {
			continue
		}
		last = max(last, r.Attempt)
		if r.Status == model.FileStatusPending && l.opts.StaleAfter > 0 && now.Sub(r.StartedAt) > l.opts.StaleAfter {
			r.Status = model.FileStatusFailed
			r.Error = AbandonedError
			completed := now
			r.CompletedAt = &completed
		}
		switch r.Status {
		case model.FileStatusPending:
			pending = true
		case model.FileStatusSucceeded:
			succeeded = true
		}
	}
	if pending {
		return nil, ErrDuplicateInProgress
	}
	if succeeded && !force {
		return nil, ErrAlreadyProcessed
	}

	token := &AttemptToken{
		AttemptID:   uuid.NewString(),
		Fingerprint: fp,
		Attempt:     last + 1,
		Mode:        mode,
		Meta:        meta,
		StartedAt:   now,
	}
	l.records[mode] = append(recs, token.FileRecord())
	return token, nil
}

func (l *MemoryLedger) Complete(_ context.Context, token *AttemptToken, outcome Outcome) error {
	if err := outcome.validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	recs := l.records[token.Mode]
	for i := range recs {
		r := &recs[i]
		if r.AttemptID != token.AttemptID {
			continue
		}
		if r.Status != model.FileStatusPending {
			return ErrAttemptNotPending
		}
		completed := l.opts.now()
		r.Status = outcome.Status
		r.RecordKeys = slices.Clone(outcome.RecordKeys)
		r.RefinementUsed = outcome.RefinementUsed
		r.Error = outcome.errorText()
		r.CompletedAt = &completed
		return nil
	}
	return ErrAttemptNotPending
}

func (l *MemoryLedger) HasSucceeded(_ context.Context, mode model.Mode, fp string) (bool, error) {
	if _, err := tableFor(mode); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.records[mode] {
		if r.Fingerprint == fp && r.Status == model.FileStatusSucceeded {
			return true, nil
		}
	}
	return false, nil
}

func (l *MemoryLedger) List(_ context.Context, mode model.Mode, filter Filter) ([]model.FileRecord, error) {
	if _, err := tableFor(mode); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.FileRecord
	for i := len(l.records[mode]) - 1; i >= 0 && len(out) < filter.limit(); i-- {
		r := l.records[mode][i]
		if filter.Fingerprint != "" && r.Fingerprint != filter.Fingerprint {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		r.RecordKeys = slices.Clone(r.RecordKeys)
		out = append(out, r)
	}
	return out, nil
}

func (l *MemoryLedger) Migrate(context.Context) error { return nil }

func (l *MemoryLedger) Close() error { return nil }
