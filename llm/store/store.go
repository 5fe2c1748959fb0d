// Package store persists the request history the router accumulates: one
// record per LLM call with token usage, accounted cost, latency and
// outcome. Backends share the Store interface; MemStore serves tests and
// short-lived processes, SQLiteStore single-machine deployments, and
// MySQLStore shared infrastructure.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Record statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Record is one completed (or failed) LLM call.
type Record struct {
	// ID is assigned by the store on save.
	ID int64 `json:"id"`
	// RequestID correlates the record with emitted events.
	RequestID string `json:"request_id"`
	// Provider is the vendor that ultimately served (or last failed) the
	// request.
	Provider string `json:"provider"`
	// Model is the model the request was routed to.
	Model string `json:"model"`
	// Operation is "chat", "complete" or "embed".
	Operation string `json:"operation"`
	// InputTokens and OutputTokens are the usage the provider reported.
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	// CostUSD is the accounted cost of the call.
	CostUSD float64 `json:"cost_usd"`
	// LatencyMS is the wall time of the successful attempt, or of the
	// whole failed request.
	LatencyMS int64 `json:"latency_ms"`
	// Status is StatusOK or StatusError.
	Status string `json:"status"`
	// Error holds the failure message when Status is StatusError.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the record was saved.
	CreatedAt time.Time `json:"created_at"`
}

// Totals aggregates usage across records.
type Totals struct {
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Store persists request records.
//
// Implementations must be safe for concurrent use. List methods return
// newest records first; a non-positive limit means no limit.
type Store interface {
	// SaveRecord appends a record, assigning its ID and, when unset, its
	// CreatedAt.
	SaveRecord(ctx context.Context, rec *Record) error

	// RecentRecords returns up to limit records, newest first.
	RecentRecords(ctx context.Context, limit int) ([]Record, error)

	// RecordsByProvider returns up to limit records for one provider,
	// newest first.
	RecordsByProvider(ctx context.Context, provider string, limit int) ([]Record, error)

	// RecordsByModel returns up to limit records for one model, newest
	// first.
	RecordsByModel(ctx context.Context, model string, limit int) ([]Record, error)

	// Totals aggregates all records.
	Totals(ctx context.Context) (Totals, error)

	// TotalsByModel aggregates records per model name.
	TotalsByModel(ctx context.Context) (map[string]Totals, error)

	// DeleteBefore removes records created before cutoff and reports how
	// many were deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases backend resources. Operations after Close fail.
	Close() error
}
