// Package standards manages the project's code standards: named rules
// with a regex pattern, scoped to a language, that code can be checked
// against.
//
// A service can live purely in memory or be bound to a JSON file, in
// which case every mutation is persisted back immediately with an
// atomic write. The file looks like:
//
//	{
//	  "standards": {
//	    "6b3f...": {
//	      "id": "6b3f...", "language": "go", "category": "errors",
//	      "rule": "no-panic", "pattern": "\\bpanic\\(",
//	      "description": "Return an error instead of panicking",
//	      "severity": "warning", "enabled": true
//	    }
//	  }
//	}
package standards

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested standard does not exist.
var ErrNotFound = errors.New("not found")

// Violation severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Standard is one enforceable rule.
type Standard struct {
	ID          string    `json:"id"`
	Language    string    `json:"language"`
	Category    string    `json:"category"`
	Rule        string    `json:"rule"`
	Description string    `json:"description,omitempty"`
	Severity    string    `json:"severity"`
	Pattern     string    `json:"pattern"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Violation is one place where code breaks a standard.
type Violation struct {
	StandardID  string `json:"standard_id"`
	Rule        string `json:"rule"`
	Severity    string `json:"severity"`
	Line        int    `json:"line"`
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
}

// Service is a concurrency-safe registry of standards, optionally backed
// by a JSON file. Patterns are compiled once at mutation or load time,
// never during Check.
type Service struct {
	mu        sync.RWMutex
	path      string
	standards map[string]Standard
	regexps   map[string]*regexp.Regexp
}

type fileFormat struct {
	Standards map[string]Standard `json:"standards"`
}

// New creates an empty in-memory service.
func New() *Service {
	return &Service{
		standards: make(map[string]Standard),
		regexps:   make(map[string]*regexp.Regexp),
	}
}

// Load reads standards from path and binds the service there, so later
// mutations persist back. A missing file is not an error; it yields an
// empty service that will create the file on first mutation. A standard
// whose pattern no longer compiles is kept but never matches.
func Load(path string) (*Service, error) {
	s := New()
	s.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read standards: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse standards: %w", err)
	}

	for id, st := range f.Standards {
		if st.ID == "" {
			st.ID = id
		}
		s.standards[st.ID] = st
		if re, err := regexp.Compile(st.Pattern); err == nil {
			s.regexps[st.ID] = re
		}
	}
	return s, nil
}

// Path returns the backing file path, or empty for in-memory services.
func (s *Service) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Save writes the standards to the backing file via a temp file and
// rename, so a crash mid-write never leaves a torn file behind.
func (s *Service) Save() error {
	s.mu.RLock()
	path := s.path
	f := fileFormat{Standards: make(map[string]Standard, len(s.standards))}
	for id, st := range s.standards {
		f.Standards[id] = st
	}
	s.mu.RUnlock()

	if path == "" {
		return nil
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal standards: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create standards directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".standards-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write standards: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close standards: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace standards: %w", err)
	}
	ok = true
	return nil
}

// Add registers a new standard and persists the set. The stored
// standard, with its generated ID and timestamps, is returned.
func (s *Service) Add(st Standard) (Standard, error) {
	if st.Language == "" {
		return Standard{}, fmt.Errorf("standard language is empty")
	}
	if st.Rule == "" {
		return Standard{}, fmt.Errorf("standard rule is empty")
	}
	re, err := regexp.Compile(st.Pattern)
	if err != nil {
		return Standard{}, fmt.Errorf("invalid pattern for %q: %w", st.Rule, err)
	}

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Severity == "" {
		st.Severity = SeverityWarning
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	s.mu.Lock()
	s.standards[st.ID] = st
	s.regexps[st.ID] = re
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		return Standard{}, err
	}
	return st, nil
}

// Get looks up a standard by ID.
func (s *Service) Get(id string) (Standard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.standards[id]
	return st, ok
}

// List returns standards matching the language and category, sorted by
// language then rule. Empty arguments match everything.
func (s *Service) List(language, category string) []Standard {
	s.mu.RLock()
	out := make([]Standard, 0, len(s.standards))
	for _, st := range s.standards {
		if language != "" && !strings.EqualFold(st.Language, language) {
			continue
		}
		if category != "" && !strings.EqualFold(st.Category, category) {
			continue
		}
		out = append(out, st)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Language != out[j].Language {
			return out[i].Language < out[j].Language
		}
		return out[i].Rule < out[j].Rule
	})
	return out
}

// Update replaces an existing standard, preserving its CreatedAt, and
// persists the set.
func (s *Service) Update(st Standard) error {
	if st.ID == "" {
		return fmt.Errorf("standard ID is empty")
	}
	re, err := regexp.Compile(st.Pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern for %q: %w", st.Rule, err)
	}

	s.mu.Lock()
	old, ok := s.standards[st.ID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	st.CreatedAt = old.CreatedAt
	st.UpdatedAt = time.Now().UTC()
	s.standards[st.ID] = st
	s.regexps[st.ID] = re
	s.mu.Unlock()

	return s.Save()
}

// Remove deletes a standard and persists the set.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	if _, ok := s.standards[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.standards, id)
	delete(s.regexps, id)
	s.mu.Unlock()

	return s.Save()
}

// SetEnabled toggles a standard and persists the set.
func (s *Service) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	st, ok := s.standards[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	st.Enabled = enabled
	st.UpdatedAt = time.Now().UTC()
	s.standards[id] = st
	s.mu.Unlock()

	return s.Save()
}

// Check applies every enabled standard for the language to code, line
// by line, and returns the violations in line order.
func (s *Service) Check(code, language string) []Violation {
	type compiled struct {
		st Standard
		re *regexp.Regexp
	}

	s.mu.RLock()
	active := make([]compiled, 0, len(s.standards))
	for id, st := range s.standards {
		if !st.Enabled {
			continue
		}
		if st.Language != "" && !strings.EqualFold(st.Language, language) {
			continue
		}
		re, ok := s.regexps[id]
		if !ok {
			continue
		}
		active = append(active, compiled{st: st, re: re})
	}
	s.mu.RUnlock()

	if len(active) == 0 {
		return nil
	}
	sort.Slice(active, func(i, j int) bool { return active[i].st.Rule < active[j].st.Rule })

	var violations []Violation
	for i, line := range strings.Split(code, "\n") {
		for _, c := range active {
			if !c.re.MatchString(line) {
				continue
			}
			violations = append(violations, Violation{
				StandardID:  c.st.ID,
				Rule:        c.st.Rule,
				Severity:    c.st.Severity,
				Line:        i + 1,
				Text:        line,
				Description: c.st.Description,
			})
		}
	}
	return violations
}

// DefaultStandards returns a starter rule set callers can Add and then
// tune per project.
func DefaultStandards() []Standard {
	return []Standard{
		{
			Language:    "go",
			Category:    "errors",
			Rule:        "no-panic",
			Description: "Return an error instead of panicking",
			Severity:    SeverityWarning,
			Pattern:     `\bpanic\(`,
			Enabled:     true,
		},
		{
			Language:    "go",
			Category:    "style",
			Rule:        "no-fmt-print",
			Description: "Use the project logger instead of fmt printing",
			Severity:    SeverityInfo,
			Pattern:     `\bfmt\.Print(ln|f)?\(`,
			Enabled:     true,
		},
		{
			Language:    "python",
			Category:    "style",
			Rule:        "no-print",
			Description: "Use logging instead of print",
			Severity:    SeverityInfo,
			Pattern:     `^\s*print\(`,
			Enabled:     true,
		},
		{
			Language:    "python",
			Category:    "errors",
			Rule:        "no-bare-except",
			Description: "Catch specific exceptions",
			Severity:    SeverityWarning,
			Pattern:     `except\s*:`,
			Enabled:     true,
		},
	}
}
