package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store.
//
// A single-file database with WAL mode suits the router's write pattern:
// one short insert per request, occasional reads for reports. Use
// ":memory:" as the path for tests.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path and
// bootstraps the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	// created_at is stored as Unix nanoseconds so range queries do not
	// depend on a timestamp text format.
	table := `
		CREATE TABLE IF NOT EXISTS usage_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			operation TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create usage_records table: %w", err)
	}

	for _, index := range []string{
		"CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage_records(provider)",
		"CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_records(model)",
		"CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_records(created_at)",
	} {
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// SaveRecord implements Store.
func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *Record) error {
	if err := s.guard(); err != nil {
		return err
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO usage_records
		(request_id, provider, model, operation, input_tokens, output_tokens, cost_usd, latency_ms, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		rec.RequestID, rec.Provider, rec.Model, rec.Operation,
		rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.LatencyMS,
		rec.Status, rec.Error, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read record ID: %w", err)
	}
	rec.ID = id
	return nil
}

const selectColumns = `
	SELECT id, request_id, provider, model, operation, input_tokens, output_tokens, cost_usd, latency_ms, status, error, created_at
	FROM usage_records
`

// RecentRecords implements Store.
func (s *SQLiteStore) RecentRecords(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx, selectColumns+" ORDER BY id DESC LIMIT ?", normalizeLimit(limit))
}

// RecordsByProvider implements Store.
func (s *SQLiteStore) RecordsByProvider(ctx context.Context, provider string, limit int) ([]Record, error) {
	return s.query(ctx, selectColumns+" WHERE provider = ? ORDER BY id DESC LIMIT ?", provider, normalizeLimit(limit))
}

// RecordsByModel implements Store.
func (s *SQLiteStore) RecordsByModel(ctx context.Context, model string, limit int) ([]Record, error) {
	return s.query(ctx, selectColumns+" WHERE model = ? ORDER BY id DESC LIMIT ?", model, normalizeLimit(limit))
}

// normalizeLimit maps "no limit" onto SQLite's convention of -1.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var createdNS int64
		err := rows.Scan(&r.ID, &r.RequestID, &r.Provider, &r.Model, &r.Operation,
			&r.InputTokens, &r.OutputTokens, &r.CostUSD, &r.LatencyMS,
			&r.Status, &r.Error, &createdNS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.CreatedAt = time.Unix(0, createdNS).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// Totals implements Store.
func (s *SQLiteStore) Totals(ctx context.Context) (Totals, error) {
	if err := s.guard(); err != nil {
		return Totals{}, err
	}

	query := `
		SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		FROM usage_records
	`
	var t Totals
	err := s.db.QueryRowContext(ctx, query).Scan(&t.Requests, &t.InputTokens, &t.OutputTokens, &t.CostUSD)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to aggregate totals: %w", err)
	}
	return t, nil
}

// TotalsByModel implements Store.
func (s *SQLiteStore) TotalsByModel(ctx context.Context) (map[string]Totals, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT model, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		FROM usage_records
		GROUP BY model
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate totals by model: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Totals)
	for rows.Next() {
		var model string
		var t Totals
		if err := rows.Scan(&model, &t.Requests, &t.InputTokens, &t.OutputTokens, &t.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan totals: %w", err)
		}
		out[model] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate totals: %w", err)
	}
	return out, nil
}

// DeleteBefore implements Store.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM usage_records WHERE created_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted records: %w", err)
	}
	return n, nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close implements Store. Double-close is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
