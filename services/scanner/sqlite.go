package scanner

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store. Use ":memory:" as the path for
// tests.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path
// and bootstraps the schema.
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
	// Timestamps are Unix nanoseconds; zero means "not yet".
	scans := `
		CREATE TABLE IF NOT EXISTS scans (
			id TEXT PRIMARY KEY,
			root TEXT NOT NULL,
			languages TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			file_count INTEGER NOT NULL DEFAULT 0,
			issue_count INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL DEFAULT 0,
			completed_at INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, scans); err != nil {
		return fmt.Errorf("failed to create scans table: %w", err)
	}

	issues := `
		CREATE TABLE IF NOT EXISTS issues (
			id TEXT PRIMARY KEY,
			scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
			file TEXT NOT NULL,
			line INTEGER NOT NULL DEFAULT 0,
			severity TEXT NOT NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			suggestion TEXT NOT NULL DEFAULT '',
			resolved INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, issues); err != nil {
		return fmt.Errorf("failed to create issues table: %w", err)
	}

	for _, index := range []string{
		"CREATE INDEX IF NOT EXISTS idx_scans_created ON scans(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_issues_scan ON issues(scan_id)",
		"CREATE INDEX IF NOT EXISTS idx_issues_severity ON issues(severity)",
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

// SaveScan implements Store.
func (s *SQLiteStore) SaveScan(ctx context.Context, sc *Scan) error {
	if err := s.guard(); err != nil {
		return err
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO scans (id, root, languages, status, error, file_count, issue_count, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		sc.ID, sc.Root, joinList(sc.Languages), sc.Status, sc.Error,
		sc.FileCount, sc.IssueCount,
		toNanos(sc.StartedAt), toNanos(sc.CompletedAt), sc.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}
	return nil
}

// UpdateScan implements Store.
func (s *SQLiteStore) UpdateScan(ctx context.Context, sc *Scan) error {
	if err := s.guard(); err != nil {
		return err
	}

	query := `
		UPDATE scans
		SET status = ?, error = ?, file_count = ?, issue_count = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		sc.Status, sc.Error, sc.FileCount, sc.IssueCount,
		toNanos(sc.StartedAt), toNanos(sc.CompletedAt), sc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count updated rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const scanColumns = `
	SELECT id, root, languages, status, error, file_count, issue_count, started_at, completed_at, created_at
	FROM scans
`

// GetScan implements Store.
func (s *SQLiteStore) GetScan(ctx context.Context, id string) (Scan, error) {
	if err := s.guard(); err != nil {
		return Scan{}, err
	}

	row := s.db.QueryRowContext(ctx, scanColumns+" WHERE id = ?", id)
	sc, err := scanScanRow(row.Scan)
	if err == sql.ErrNoRows {
		return Scan{}, ErrNotFound
	}
	if err != nil {
		return Scan{}, fmt.Errorf("failed to get scan: %w", err)
	}
	return sc, nil
}

// ListScans implements Store.
func (s *SQLiteStore) ListScans(ctx context.Context, limit int) ([]Scan, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, scanColumns+" ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var out []Scan
	for rows.Next() {
		sc, err := scanScanRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scans: %w", err)
	}
	return out, nil
}

// DeleteScan implements Store. Issues cascade via the foreign key.
func (s *SQLiteStore) DeleteScan(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM scans WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveIssues implements Store.
func (s *SQLiteStore) SaveIssues(ctx context.Context, issues []Issue) error {
	if err := s.guard(); err != nil {
		return err
	}
	if len(issues) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO issues (id, scan_id, file, line, severity, category, message, suggestion, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range issues {
		is := &issues[i]
		if is.CreatedAt.IsZero() {
			is.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, query,
			is.ID, is.ScanID, is.File, is.Line, is.Severity, is.Category,
			is.Message, is.Suggestion, boolToInt(is.Resolved), is.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to save issue: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit issues: %w", err)
	}
	return nil
}

// ListIssues implements Store.
func (s *SQLiteStore) ListIssues(ctx context.Context, scanID string, f IssueFilter) ([]Issue, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, scan_id, file, line, severity, category, message, suggestion, resolved, created_at
		FROM issues
		WHERE scan_id = ?
	`
	args := []any{scanID}
	if f.Severity != "" {
		query += " AND severity = ?"
		args = append(args, f.Severity)
	}
	if f.Category != "" {
		query += " AND category = ?"
		args = append(args, f.Category)
	}
	if f.Unresolved {
		query += " AND resolved = 0"
	}
	query += " ORDER BY file, line, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var out []Issue
	for rows.Next() {
		var is Issue
		var resolved int
		var createdNS int64
		if err := rows.Scan(&is.ID, &is.ScanID, &is.File, &is.Line, &is.Severity,
			&is.Category, &is.Message, &is.Suggestion, &resolved, &createdNS); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		is.Resolved = resolved != 0
		is.CreatedAt = time.Unix(0, createdNS).UTC()
		out = append(out, is)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate issues: %w", err)
	}
	return out, nil
}

// ResolveIssue implements Store.
func (s *SQLiteStore) ResolveIssue(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "UPDATE issues SET resolved = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to resolve issue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count updated rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
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

func scanScanRow(scan func(dest ...any) error) (Scan, error) {
	var sc Scan
	var languages string
	var startedNS, completedNS, createdNS int64
	err := scan(&sc.ID, &sc.Root, &languages, &sc.Status, &sc.Error,
		&sc.FileCount, &sc.IssueCount, &startedNS, &completedNS, &createdNS)
	if err != nil {
		return Scan{}, err
	}
	sc.Languages = splitList(languages)
	sc.StartedAt = fromNanos(startedNS)
	sc.CompletedAt = fromNanos(completedNS)
	sc.CreatedAt = time.Unix(0, createdNS).UTC()
	return sc, nil
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
