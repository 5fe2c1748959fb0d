package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed Store for deployments where several
// processes share one usage history.
//
// The DSN follows the go-sql-driver format, e.g.
//
//	user:password@tcp(localhost:3306)/aicoder
//
// Keep credentials out of source; read the DSN from the environment.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore connects to MySQL, verifies the connection, and bootstraps
// the schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore{db: db}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS usage_records (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			request_id VARCHAR(255) NOT NULL,
			provider VARCHAR(64) NOT NULL,
			model VARCHAR(255) NOT NULL,
			operation VARCHAR(32) NOT NULL,
			input_tokens BIGINT NOT NULL DEFAULT 0,
			output_tokens BIGINT NOT NULL DEFAULT 0,
			cost_usd DOUBLE NOT NULL DEFAULT 0,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL,
			error TEXT,
			created_at BIGINT NOT NULL,
			INDEX idx_usage_provider (provider),
			INDEX idx_usage_model (model),
			INDEX idx_usage_created (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create usage_records table: %w", err)
	}
	return nil
}

func (m *MySQLStore) guard() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// SaveRecord implements Store.
func (m *MySQLStore) SaveRecord(ctx context.Context, rec *Record) error {
	if err := m.guard(); err != nil {
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
	res, err := m.db.ExecContext(ctx, query,
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

// RecentRecords implements Store.
func (m *MySQLStore) RecentRecords(ctx context.Context, limit int) ([]Record, error) {
	return m.queryRecords(ctx, selectColumns+" ORDER BY id DESC", nil, limit)
}

// RecordsByProvider implements Store.
func (m *MySQLStore) RecordsByProvider(ctx context.Context, provider string, limit int) ([]Record, error) {
	return m.queryRecords(ctx, selectColumns+" WHERE provider = ? ORDER BY id DESC", []any{provider}, limit)
}

// RecordsByModel implements Store.
func (m *MySQLStore) RecordsByModel(ctx context.Context, model string, limit int) ([]Record, error) {
	return m.queryRecords(ctx, selectColumns+" WHERE model = ? ORDER BY id DESC", []any{model}, limit)
}

func (m *MySQLStore) queryRecords(ctx context.Context, query string, args []any, limit int) ([]Record, error) {
	if err := m.guard(); err != nil {
		return nil, err
	}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var createdNS int64
		var errMsg sql.NullString
		err := rows.Scan(&r.ID, &r.RequestID, &r.Provider, &r.Model, &r.Operation,
			&r.InputTokens, &r.OutputTokens, &r.CostUSD, &r.LatencyMS,
			&r.Status, &errMsg, &createdNS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Error = errMsg.String
		r.CreatedAt = time.Unix(0, createdNS).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// Totals implements Store.
func (m *MySQLStore) Totals(ctx context.Context) (Totals, error) {
	if err := m.guard(); err != nil {
		return Totals{}, err
	}

	query := `
		SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		FROM usage_records
	`
	var t Totals
	err := m.db.QueryRowContext(ctx, query).Scan(&t.Requests, &t.InputTokens, &t.OutputTokens, &t.CostUSD)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to aggregate totals: %w", err)
	}
	return t, nil
}

// TotalsByModel implements Store.
func (m *MySQLStore) TotalsByModel(ctx context.Context) (map[string]Totals, error) {
	if err := m.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT model, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		FROM usage_records
		GROUP BY model
	`
	rows, err := m.db.QueryContext(ctx, query)
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
func (m *MySQLStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := m.guard(); err != nil {
		return 0, err
	}

	res, err := m.db.ExecContext(ctx, "DELETE FROM usage_records WHERE created_at < ?", cutoff.UnixNano())
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
func (m *MySQLStore) Ping(ctx context.Context) error {
	if err := m.guard(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}

// Close implements Store. Double-close is a no-op.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
