package sink

import (
	"context"
	"sync"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// MemoryStore keeps record sets in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	order  []string
	byKey  map[string]model.RecordSet
	writes int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]model.RecordSet)}
}

func (m *MemoryStore) Write(_ context.Context, rs *model.RecordSet) error {
	if err := Validate(rs); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	if _, ok := m.byKey[rs.RecordKey]; ok {
		return nil
	}
	cp := *rs
	cp.LineItems = append([]model.LineItemRow(nil), rs.LineItems...)
	m.byKey[rs.RecordKey] = cp
	m.order = append(m.order, rs.RecordKey)
	return nil
}

// Len returns the number of stored record sets.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Writes returns the number of accepted Write calls, including duplicates.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MemoryStore) ListHeaders(_ context.Context, q HeaderQuery) ([]model.InvoiceHeaderRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.InvoiceHeaderRow
	for _, key := range m.order {
		h := m.byKey[key].Header
		if !q.Since.IsZero() && h.ProcessedAt.Before(q.Since) {
			continue
		}
		if q.Mode != "" && h.ProcessingMode != q.Mode {
			continue
		}
		out = append(out, h)
		if len(out) == q.limit() {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) ListLineItems(_ context.Context, recordKey string) ([]model.LineItemRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rs, ok := m.byKey[recordKey]
	if !ok {
		return nil, nil
	}
	return append([]model.LineItemRow(nil), rs.LineItems...), nil
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
