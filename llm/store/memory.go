package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests, development, and processes
// that do not need history to survive a restart. Records accumulate
// without bound; long-lived processes should call DeleteBefore
// periodically or use a database-backed store.
type MemStore struct {
	mu      sync.RWMutex
	closed  bool
	nextID  int64
	records []Record // append order, oldest first
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{nextID: 1}
}

// SaveRecord implements Store.
func (m *MemStore) SaveRecord(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}

	rec.ID = m.nextID
	m.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.records = append(m.records, *rec)
	return nil
}

// RecentRecords implements Store.
func (m *MemStore) RecentRecords(ctx context.Context, limit int) ([]Record, error) {
	return m.filter(ctx, limit, func(Record) bool { return true })
}

// RecordsByProvider implements Store.
func (m *MemStore) RecordsByProvider(ctx context.Context, provider string, limit int) ([]Record, error) {
	return m.filter(ctx, limit, func(r Record) bool { return r.Provider == provider })
}

// RecordsByModel implements Store.
func (m *MemStore) RecordsByModel(ctx context.Context, model string, limit int) ([]Record, error) {
	return m.filter(ctx, limit, func(r Record) bool { return r.Model == model })
}

func (m *MemStore) filter(ctx context.Context, limit int, keep func(Record) bool) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var out []Record
	if limit > 0 {
		out = make([]Record, 0, limit)
	}
	for i := len(m.records) - 1; i >= 0; i-- {
		if !keep(m.records[i]) {
			continue
		}
		out = append(out, m.records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Totals implements Store.
func (m *MemStore) Totals(ctx context.Context) (Totals, error) {
	if err := ctx.Err(); err != nil {
		return Totals{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Totals{}, fmt.Errorf("store is closed")
	}

	var t Totals
	for _, r := range m.records {
		t.Requests++
		t.InputTokens += r.InputTokens
		t.OutputTokens += r.OutputTokens
		t.CostUSD += r.CostUSD
	}
	return t, nil
}

// TotalsByModel implements Store.
func (m *MemStore) TotalsByModel(ctx context.Context) (map[string]Totals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	out := make(map[string]Totals)
	for _, r := range m.records {
		t := out[r.Model]
		t.Requests++
		t.InputTokens += r.InputTokens
		t.OutputTokens += r.OutputTokens
		t.CostUSD += r.CostUSD
		out[r.Model] = t
	}
	return out, nil
}

// DeleteBefore implements Store.
func (m *MemStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, fmt.Errorf("store is closed")
	}

	kept := m.records[:0]
	var deleted int64
	for _, r := range m.records {
		if r.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return deleted, nil
}

// Close implements Store. Double-close is a no-op.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
