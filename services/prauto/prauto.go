// Package prauto manages pull request drafts: what to propose, on which
// branch, in what state, with an optional LLM-written description.
//
// Drafts move draft -> ready -> submitted -> closed, with ready able to
// fall back to draft and every state able to close. The draft store is
// SQLite; use ":memory:" as the path for tests.
package prauto

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested draft does not exist.
var ErrNotFound = errors.New("not found")

// ErrTransition is returned by SetStatus for a move the lifecycle does
// not allow.
var ErrTransition = errors.New("illegal status transition")

// Draft statuses.
const (
	StatusDraft     = "draft"
	StatusReady     = "ready"
	StatusSubmitted = "submitted"
	StatusClosed    = "closed"
)

// transitions lists the legal moves out of each status. Closed is
// terminal.
var transitions = map[string]map[string]bool{
	StatusDraft:     {StatusReady: true, StatusClosed: true},
	StatusReady:     {StatusDraft: true, StatusSubmitted: true, StatusClosed: true},
	StatusSubmitted: {StatusClosed: true},
	StatusClosed:    {},
}

// Draft is one proposed pull request.
type Draft struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Branch      string    `json:"branch"`
	Base        string    `json:"base"`
	Description string    `json:"description,omitempty"`
	Files       []string  `json:"files,omitempty"`
	Labels      []string  `json:"labels,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Describer writes a pull request description for a draft.
type Describer interface {
	Describe(ctx context.Context, d Draft) (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithDescriber wires the description generator used by
// GenerateDescription.
func WithDescriber(d Describer) Option {
	return func(s *Service) { s.describer = d }
}

// Service is the SQLite-backed draft store.
type Service struct {
	db        *sql.DB
	describer Describer
	mu        sync.RWMutex
	closed    bool
}

// Open opens (creating if needed) the draft database at path and
// bootstraps the schema.
func Open(path string, opts ...Option) (*Service, error) {
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
	for _, opt := range opts {
		opt(s)
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Service) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS drafts (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			branch TEXT NOT NULL,
			base TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			files TEXT NOT NULL DEFAULT '',
			labels TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create drafts table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
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

// CreateDraft stores a new draft. A missing ID, Base, and Status are
// filled in (Base "main", Status draft).
func (s *Service) CreateDraft(ctx context.Context, d *Draft) error {
	if err := s.guard(); err != nil {
		return err
	}
	if d.Title == "" {
		return fmt.Errorf("draft title is empty")
	}
	if d.Branch == "" {
		return fmt.Errorf("draft branch is empty")
	}
	if d.Status == "" {
		d.Status = StatusDraft
	}
	if _, ok := transitions[d.Status]; !ok {
		return fmt.Errorf("unknown status %q", d.Status)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Base == "" {
		d.Base = "main"
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	query := `
		INSERT INTO drafts (id, title, branch, base, description, files, labels, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Title, d.Branch, d.Base, d.Description,
		joinList(d.Files), joinList(d.Labels), d.Status,
		d.CreatedAt.UnixNano(), d.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

const selectDraft = `
	SELECT id, title, branch, base, description, files, labels, status, created_at, updated_at
	FROM drafts
`

// GetDraft fetches one draft.
func (s *Service) GetDraft(ctx context.Context, id string) (Draft, error) {
	if err := s.guard(); err != nil {
		return Draft{}, err
	}

	row := s.db.QueryRowContext(ctx, selectDraft+" WHERE id = ?", id)
	d, err := scanDraft(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("failed to get draft: %w", err)
	}
	return d, nil
}

// ListDrafts returns drafts, newest first. An empty status matches all.
func (s *Service) ListDrafts(ctx context.Context, status string) ([]Draft, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := selectDraft
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		d, err := scanDraft(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate drafts: %w", err)
	}
	return out, nil
}

// UpdateDescription replaces a draft's description.
func (s *Service) UpdateDescription(ctx context.Context, id, description string) error {
	if err := s.guard(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE drafts SET description = ?, updated_at = ? WHERE id = ?",
		description, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to update description: %w", err)
	}
	return requireRow(res)
}

// SetStatus moves a draft through its lifecycle. Setting the current
// status again is a no-op.
func (s *Service) SetStatus(ctx context.Context, id, status string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if _, ok := transitions[status]; !ok {
		return fmt.Errorf("unknown status %q", status)
	}

	d, err := s.GetDraft(ctx, id)
	if err != nil {
		return err
	}
	if d.Status == status {
		return nil
	}
	if !transitions[d.Status][status] {
		return fmt.Errorf("%w: %s -> %s", ErrTransition, d.Status, status)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE drafts SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return requireRow(res)
}

// DeleteDraft removes one draft.
func (s *Service) DeleteDraft(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM drafts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return requireRow(res)
}

// GenerateDescription asks the configured Describer for a description,
// stores it on the draft, and returns it.
func (s *Service) GenerateDescription(ctx context.Context, id string) (string, error) {
	if err := s.guard(); err != nil {
		return "", err
	}
	if s.describer == nil {
		return "", fmt.Errorf("no describer configured")
	}

	d, err := s.GetDraft(ctx, id)
	if err != nil {
		return "", err
	}

	text, err := s.describer.Describe(ctx, d)
	if err != nil {
		return "", fmt.Errorf("failed to describe draft: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("describer returned an empty description")
	}

	if err := s.UpdateDescription(ctx, id, text); err != nil {
		return "", err
	}
	return text, nil
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

func scanDraft(scan func(...any) error) (Draft, error) {
	var (
		d         Draft
		files     string
		labels    string
		createdNS int64
		updatedNS int64
	)
	err := scan(&d.ID, &d.Title, &d.Branch, &d.Base, &d.Description,
		&files, &labels, &d.Status, &createdNS, &updatedNS)
	if err != nil {
		return Draft{}, err
	}
	d.Files = splitList(files)
	d.Labels = splitList(labels)
	d.CreatedAt = time.Unix(0, createdNS).UTC()
	d.UpdatedAt = time.Unix(0, updatedNS).UTC()
	return d, nil
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

func joinList(items []string) string {
	return strings.Join(items, ",")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
