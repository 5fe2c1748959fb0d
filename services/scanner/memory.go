package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and short-lived processes.
type MemStore struct {
	mu     sync.RWMutex
	scans  map[string]Scan
	issues map[string]Issue
	closed bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		scans:  make(map[string]Scan),
		issues: make(map[string]Issue),
	}
}

// guard must be called with mu held.
func (m *MemStore) guard() error {
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// SaveScan implements Store.
func (m *MemStore) SaveScan(ctx context.Context, sc *Scan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return err
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	m.scans[sc.ID] = cloneScan(*sc)
	return nil
}

// UpdateScan implements Store.
func (m *MemStore) UpdateScan(ctx context.Context, sc *Scan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return err
	}
	if _, ok := m.scans[sc.ID]; !ok {
		return ErrNotFound
	}
	m.scans[sc.ID] = cloneScan(*sc)
	return nil
}

// GetScan implements Store.
func (m *MemStore) GetScan(ctx context.Context, id string) (Scan, error) {
	if err := ctx.Err(); err != nil {
		return Scan{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.guard(); err != nil {
		return Scan{}, err
	}
	sc, ok := m.scans[id]
	if !ok {
		return Scan{}, ErrNotFound
	}
	return cloneScan(sc), nil
}

// ListScans implements Store.
func (m *MemStore) ListScans(ctx context.Context, limit int) ([]Scan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.guard(); err != nil {
		return nil, err
	}

	out := make([]Scan, 0, len(m.scans))
	for _, sc := range m.scans {
		out = append(out, cloneScan(sc))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteScan implements Store.
func (m *MemStore) DeleteScan(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return err
	}
	if _, ok := m.scans[id]; !ok {
		return ErrNotFound
	}
	delete(m.scans, id)
	for iid, is := range m.issues {
		if is.ScanID == id {
			delete(m.issues, iid)
		}
	}
	return nil
}

// SaveIssues implements Store.
func (m *MemStore) SaveIssues(ctx context.Context, issues []Issue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return err
	}
	for i := range issues {
		if issues[i].CreatedAt.IsZero() {
			issues[i].CreatedAt = time.Now().UTC()
		}
		m.issues[issues[i].ID] = issues[i]
	}
	return nil
}

// ListIssues implements Store.
func (m *MemStore) ListIssues(ctx context.Context, scanID string, f IssueFilter) ([]Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.guard(); err != nil {
		return nil, err
	}

	var out []Issue
	for _, is := range m.issues {
		if is.ScanID != scanID {
			continue
		}
		if f.Severity != "" && is.Severity != f.Severity {
			continue
		}
		if f.Category != "" && is.Category != f.Category {
			continue
		}
		if f.Unresolved && is.Resolved {
			continue
		}
		out = append(out, is)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ResolveIssue implements Store.
func (m *MemStore) ResolveIssue(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return err
	}
	is, ok := m.issues[id]
	if !ok {
		return ErrNotFound
	}
	is.Resolved = true
	m.issues[id] = is
	return nil
}

// Close implements Store. Double-close is a no-op.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneScan(sc Scan) Scan {
	if sc.Languages != nil {
		sc.Languages = append([]string(nil), sc.Languages...)
	}
	return sc
}
