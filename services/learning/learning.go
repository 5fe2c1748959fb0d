// Package learning records continuous-learning events: accepted
// suggestions, corrections, scan outcomes, anything worth feeding back
// into prompts or training later. Events live in SQLite and export as
// JSONL for downstream pipelines.
package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested event does not exist.
var ErrNotFound = errors.New("not found")

// Event is one learning signal.
type Event struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows List and ExportJSONL. Zero values match everything.
type Filter struct {
	Source string
	Kind   string
	Since  time.Time
	Limit  int
}

// Stats summarizes the event corpus.
type Stats struct {
	Total    int            `json:"total"`
	ByKind   map[string]int `json:"by_kind"`
	BySource map[string]int `json:"by_source"`
}

// Service is the SQLite-backed event log. Use ":memory:" as the path
// for tests.
type Service struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) the event database at path and
// bootstraps the schema.
func Open(path string) (*Service, error) {
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

	s := &Service{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Service) createTables(ctx context.Context) error {
	// created_at is stored as Unix nanoseconds so Since and Prune are
	// plain integer comparisons.
	table := `
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			score REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	for _, index := range []string{
		"CREATE INDEX IF NOT EXISTS idx_events_source ON events(source)",
		"CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)",
		"CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at)",
	} {
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (s *Service) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("service is closed")
	}
	return nil
}

// Record stores a new event. A missing ID and CreatedAt are filled in.
func (s *Service) Record(ctx context.Context, ev *Event) error {
	if err := s.guard(); err != nil {
		return err
	}
	if ev.Source == "" {
		return fmt.Errorf("event source is empty")
	}
	if ev.Kind == "" {
		return fmt.Errorf("event kind is empty")
	}
	if ev.Content == "" {
		return fmt.Errorf("event content is empty")
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO events (id, source, kind, content, tags, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.Source, ev.Kind, ev.Content,
		joinTags(ev.Tags), ev.Score, ev.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

const selectEvent = `
	SELECT id, source, kind, content, tags, score, created_at
	FROM events
`

// Get fetches one event.
func (s *Service) Get(ctx context.Context, id string) (Event, error) {
	if err := s.guard(); err != nil {
		return Event{}, err
	}

	row := s.db.QueryRowContext(ctx, selectEvent+" WHERE id = ?", id)
	ev, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

// List returns matching events, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := selectEvent
	var (
		where []string
		args  []any
	)
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, normalizeLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return out, nil
}

// SetScore updates an event's usefulness score.
func (s *Service) SetScore(ctx context.Context, id string, score float64) error {
	if err := s.guard(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "UPDATE events SET score = ? WHERE id = ?", score, id)
	if err != nil {
		return fmt.Errorf("failed to set score: %w", err)
	}
	return requireRow(res)
}

// Delete removes one event.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return requireRow(res)
}

// Prune deletes events created before the cutoff and reports how many
// went.
func (s *Service) Prune(ctx context.Context, before time.Time) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE created_at < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned events: %w", err)
	}
	return n, nil
}

// Stats aggregates event counts by kind and by source.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	st := &Stats{
		ByKind:   make(map[string]int),
		BySource: make(map[string]int),
	}
	if err := s.countBy(ctx, "kind", st.ByKind); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "source", st.BySource); err != nil {
		return nil, err
	}
	for _, n := range st.ByKind {
		st.Total += n
	}
	return st, nil
}

func (s *Service) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, "SELECT "+column+", COUNT(*) FROM events GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("failed to aggregate by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		into[key] = n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate %s counts: %w", column, err)
	}
	return nil
}

// ExportJSONL writes matching events to w, one JSON object per line,
// newest first, and returns how many it wrote.
func (s *Service) ExportJSONL(ctx context.Context, w io.Writer, f Filter) (int, error) {
	events, err := s.List(ctx, f)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	for i, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return i, fmt.Errorf("failed to export event %s: %w", ev.ID, err)
		}
	}
	return len(events), nil
}

// Close releases the database. Double-close is a no-op.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func scanEvent(scan func(...any) error) (Event, error) {
	var (
		ev        Event
		tags      string
		createdNS int64
	)
	err := scan(&ev.ID, &ev.Source, &ev.Kind, &ev.Content, &tags, &ev.Score, &createdNS)
	if err != nil {
		return Event{}, err
	}
	ev.Tags = splitTags(tags)
	ev.CreatedAt = time.Unix(0, createdNS).UTC()
	return ev, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// normalizeLimit maps "no limit" onto SQLite's convention of -1.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
