package scanner

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested scan or issue does not exist.
var ErrNotFound = errors.New("not found")

// IssueFilter narrows ListIssues results. Zero-value fields do not
// filter.
type IssueFilter struct {
	// Severity keeps only issues with this severity.
	Severity string

	// Category keeps only issues with this category.
	Category string

	// Unresolved drops issues already marked resolved.
	Unresolved bool

	// Limit caps the result count; non-positive means no limit.
	Limit int
}

// Store persists scans and their issues.
//
// Implementations must be safe for concurrent use. Scans list newest
// first; issues list in file-then-line order. Deleting a scan deletes
// its issues.
type Store interface {
	// SaveScan inserts a new scan.
	SaveScan(ctx context.Context, sc *Scan) error

	// UpdateScan rewrites an existing scan's mutable fields (status,
	// error, counts, timestamps). ErrNotFound if the scan is missing.
	UpdateScan(ctx context.Context, sc *Scan) error

	// GetScan fetches one scan. ErrNotFound if missing.
	GetScan(ctx context.Context, id string) (Scan, error)

	// ListScans returns up to limit scans, newest first. Non-positive
	// limit means no limit.
	ListScans(ctx context.Context, limit int) ([]Scan, error)

	// DeleteScan removes a scan and its issues. ErrNotFound if missing.
	DeleteScan(ctx context.Context, id string) error

	// SaveIssues inserts a batch of issues atomically.
	SaveIssues(ctx context.Context, issues []Issue) error

	// ListIssues returns a scan's issues, filtered, in file-then-line
	// order.
	ListIssues(ctx context.Context, scanID string, f IssueFilter) ([]Issue, error)

	// ResolveIssue marks one issue resolved. ErrNotFound if missing.
	ResolveIssue(ctx context.Context, id string) error

	// Close releases backend resources. Operations after Close fail.
	Close() error
}
