// Package scanner scans local source trees for security issues and
// persists the results.
//
// A scan walks its root directory, collects source files by language,
// and runs two layers of analysis: the built-in regex rule set
// (credentials, weak hashes, insecure transport, shell execution) and,
// when configured, an LLM-backed Analyzer that reviews batched file
// content through the request router. Scans and issues live in a Store
// (SQLite for deployments, memory for tests) with the usual CRUD
// surface on top.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/emit"
)

// Scan statuses.
const (
	ScanPending   = "pending"
	ScanRunning   = "running"
	ScanCompleted = "completed"
	ScanFailed    = "failed"
)

// Issue severities, ordered from most to least urgent.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Issue categories used by the built-in rules. LLM-backed analyzers may
// report additional categories.
const (
	CategoryCredentials = "credentials"
	CategoryCrypto      = "crypto"
	CategoryTransport   = "transport"
	CategoryExecution   = "execution"
)

// Scan is one analysis run over a source tree.
type Scan struct {
	ID          string    `json:"id"`
	Root        string    `json:"root"`
	Languages   []string  `json:"languages,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	FileCount   int       `json:"file_count"`
	IssueCount  int       `json:"issue_count"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Issue is one finding from a scan.
type Issue struct {
	ID         string    `json:"id"`
	ScanID     string    `json:"scan_id"`
	File       string    `json:"file"`
	Line       int       `json:"line"`
	Severity   string    `json:"severity"`
	Category   string    `json:"category"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"created_at"`
}

// Option configures a Service.
type Option func(*Service)

// WithRules replaces the built-in rule set.
func WithRules(rules []Rule) Option {
	return func(s *Service) { s.rules = rules }
}

// WithAnalyzer adds an LLM-backed review layer that runs after the rule
// analysis, one call per batch.
func WithAnalyzer(a Analyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

// WithEmitter sets the emitter notified of scan_start and scan_complete.
func WithEmitter(e emit.Emitter) Option {
	return func(s *Service) {
		if e != nil {
			s.emitter = e
		}
	}
}

// WithConcurrency bounds how many files are rule-analyzed (and batches
// reviewed) at once. Default 4.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMaxFileSize skips files larger than n bytes during discovery.
// Default 1 MiB.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) { s.maxFileSize = n }
}

// WithBatchBytes bounds the content size of each analyzer batch.
// Default 64 KiB.
func WithBatchBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchBytes = n
		}
	}
}

// Service runs scans and fronts the scan/issue CRUD.
//
// The store's lifecycle belongs to the caller. All methods are safe for
// concurrent use.
type Service struct {
	store       Store
	rules       []Rule
	analyzer    Analyzer
	emitter     emit.Emitter
	concurrency int
	maxFileSize int64
	batchBytes  int64
}

// NewService creates a scan service over st.
func NewService(st Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("NewService: store is nil")
	}
	s := &Service{
		store:       st,
		rules:       DefaultRules(),
		emitter:     emit.NewNullEmitter(),
		concurrency: 4,
		maxFileSize: 1 << 20,
		batchBytes:  64 << 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateScan registers a pending scan of root. languages filters
// discovery; nil scans every known language.
func (s *Service) CreateScan(ctx context.Context, root string, languages []string) (*Scan, error) {
	if root == "" {
		return nil, fmt.Errorf("CreateScan: root is empty")
	}
	sc := &Scan{
		ID:        uuid.NewString(),
		Root:      root,
		Languages: languages,
		Status:    ScanPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveScan(ctx, sc); err != nil {
		return nil, fmt.Errorf("failed to save scan: %w", err)
	}
	return sc, nil
}

// GetScan fetches one scan.
func (s *Service) GetScan(ctx context.Context, id string) (Scan, error) {
	return s.store.GetScan(ctx, id)
}

// ListScans returns up to limit scans, newest first.
func (s *Service) ListScans(ctx context.Context, limit int) ([]Scan, error) {
	return s.store.ListScans(ctx, limit)
}

// DeleteScan removes a scan and all its issues.
func (s *Service) DeleteScan(ctx context.Context, id string) error {
	return s.store.DeleteScan(ctx, id)
}

// ListIssues returns a scan's issues, filtered.
func (s *Service) ListIssues(ctx context.Context, scanID string, f IssueFilter) ([]Issue, error) {
	return s.store.ListIssues(ctx, scanID, f)
}

// ResolveIssue marks one issue resolved.
func (s *Service) ResolveIssue(ctx context.Context, id string) error {
	return s.store.ResolveIssue(ctx, id)
}

// Run executes a pending scan: discovery, rule analysis, optional LLM
// review, persistence. It returns the completed scan. A scan that is
// already running, completed, or failed is not rerun; create a new scan
// instead.
func (s *Service) Run(ctx context.Context, scanID string) (*Scan, error) {
	sc, err := s.store.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if sc.Status != ScanPending {
		return nil, fmt.Errorf("scan %s is %s; only pending scans can run", scanID, sc.Status)
	}

	sc.Status = ScanRunning
	sc.StartedAt = time.Now().UTC()
	if err := s.store.UpdateScan(ctx, &sc); err != nil {
		return nil, fmt.Errorf("failed to mark scan running: %w", err)
	}
	s.emitter.Emit(emit.Event{
		RequestID: sc.ID,
		Msg:       emit.MsgScanStart,
		Meta:      map[string]interface{}{"root": sc.Root},
	})

	issues, fileCount, runErr := s.analyze(ctx, &sc)
	if runErr != nil {
		return nil, s.fail(ctx, &sc, runErr)
	}

	// Deterministic report order regardless of worker interleaving.
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].File != issues[j].File {
			return issues[i].File < issues[j].File
		}
		return issues[i].Line < issues[j].Line
	})
	now := time.Now().UTC()
	for i := range issues {
		issues[i].ID = uuid.NewString()
		issues[i].ScanID = sc.ID
		issues[i].CreatedAt = now
	}
	if err := s.store.SaveIssues(ctx, issues); err != nil {
		return nil, s.fail(ctx, &sc, fmt.Errorf("failed to save issues: %w", err))
	}

	sc.Status = ScanCompleted
	sc.CompletedAt = time.Now().UTC()
	sc.FileCount = fileCount
	sc.IssueCount = len(issues)
	if err := s.store.UpdateScan(ctx, &sc); err != nil {
		return nil, fmt.Errorf("failed to mark scan completed: %w", err)
	}

	s.emitter.Emit(emit.Event{
		RequestID: sc.ID,
		Msg:       emit.MsgScanComplete,
		Meta: map[string]interface{}{
			"status":      sc.Status,
			"files":       sc.FileCount,
			"issues":      sc.IssueCount,
			"duration_ms": sc.CompletedAt.Sub(sc.StartedAt).Milliseconds(),
		},
	})
	return &sc, nil
}

// analyze discovers the files and runs both analysis layers, returning
// the unsorted findings and the number of files examined.
func (s *Service) analyze(ctx context.Context, sc *Scan) ([]Issue, int, error) {
	files, err := Discover(ctx, sc.Root, sc.Languages, s.maxFileSize)
	if err != nil {
		return nil, 0, err
	}

	var (
		mu     sync.Mutex
		issues []Issue
	)
	collect := func(found []Issue) {
		mu.Lock()
		issues = append(issues, found...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			collect(applyRules(s.rules, f))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	if s.analyzer != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for _, batch := range Batch(files, s.batchBytes) {
			batch := batch
			g.Go(func() error {
				found, err := s.analyzer.Analyze(gctx, batch)
				if err != nil {
					return fmt.Errorf("analyzer failed: %w", err)
				}
				collect(found)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, 0, err
		}
	}

	return issues, len(files), nil
}

// fail marks the scan failed and reports why. The original error wins
// over any store error while recording it.
func (s *Service) fail(ctx context.Context, sc *Scan, cause error) error {
	sc.Status = ScanFailed
	sc.Error = cause.Error()
	sc.CompletedAt = time.Now().UTC()
	_ = s.store.UpdateScan(context.WithoutCancel(ctx), sc)

	s.emitter.Emit(emit.Event{
		RequestID: sc.ID,
		Msg:       emit.MsgScanComplete,
		Meta: map[string]interface{}{
			"status": sc.Status,
			"error":  cause.Error(),
		},
	})
	return cause
}
