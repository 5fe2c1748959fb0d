package standards

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "standards.json")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := s.List("", ""); len(got) != 0 {
		t.Errorf("missing file should load as an empty set, got %d", len(got))
	}

	// First mutation creates the file.
	if _, err := s.Add(Standard{Language: "go", Rule: "no-panic", Pattern: `\bpanic\(`}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("standards file should exist after mutation: %v", err)
	}
}

func TestMutationsPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "standards.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	added, err := s.Add(Standard{
		Language:    "go",
		Category:    "errors",
		Rule:        "no-panic",
		Description: "Return an error instead of panicking",
		Severity:    SeverityWarning,
		Pattern:     `\bpanic\(`,
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if added.ID == "" {
		t.Fatal("Add should assign an ID")
	}
	if added.CreatedAt.IsZero() || added.UpdatedAt.IsZero() {
		t.Error("Add should stamp timestamps")
	}

	// A fresh load sees the standard, with its pattern compiled.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, ok := reloaded.Get(added.ID)
	if !ok {
		t.Fatal("standard should survive reload")
	}
	if got.Rule != "no-panic" || !got.Enabled {
		t.Errorf("reloaded standard mismatch: %+v", got)
	}
	if v := reloaded.Check("panic(\"boom\")", "go"); len(v) != 1 {
		t.Errorf("reloaded pattern should match, got %d violations", len(v))
	}

	if err := reloaded.Remove(added.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := again.Get(added.ID); ok {
		t.Error("removed standard should not survive reload")
	}
}

func TestAddValidation(t *testing.T) {
	s := New()

	if _, err := s.Add(Standard{Rule: "r", Pattern: "x"}); err == nil {
		t.Error("expected error for missing language")
	}
	if _, err := s.Add(Standard{Language: "go", Pattern: "x"}); err == nil {
		t.Error("expected error for missing rule")
	}
	if _, err := s.Add(Standard{Language: "go", Rule: "r", Pattern: "("}); err == nil {
		t.Error("expected error for invalid pattern")
	}

	added, err := s.Add(Standard{Language: "go", Rule: "r", Pattern: "x"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if added.Severity != SeverityWarning {
		t.Errorf("default severity = %q, want %q", added.Severity, SeverityWarning)
	}
}

func TestListFilters(t *testing.T) {
	s := New()
	mustAdd := func(st Standard) {
		t.Helper()
		if _, err := s.Add(st); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	mustAdd(Standard{Language: "go", Category: "errors", Rule: "no-panic", Pattern: `panic`})
	mustAdd(Standard{Language: "go", Category: "style", Rule: "no-fmt-print", Pattern: `fmt\.Print`})
	mustAdd(Standard{Language: "python", Category: "style", Rule: "no-print", Pattern: `print`})

	if got := s.List("", ""); len(got) != 3 {
		t.Errorf("List all = %d, want 3", len(got))
	}
	if got := s.List("go", ""); len(got) != 2 {
		t.Errorf("List go = %d, want 2", len(got))
	}
	if got := s.List("GO", "style"); len(got) != 1 || got[0].Rule != "no-fmt-print" {
		t.Errorf("List go/style = %+v", got)
	}
	if got := s.List("rust", ""); len(got) != 0 {
		t.Errorf("List rust = %d, want 0", len(got))
	}

	// Sorted by language, then rule.
	all := s.List("", "")
	if all[0].Rule != "no-fmt-print" || all[1].Rule != "no-panic" || all[2].Rule != "no-print" {
		t.Errorf("wrong order: %s, %s, %s", all[0].Rule, all[1].Rule, all[2].Rule)
	}
}

func TestUpdate(t *testing.T) {
	s := New()
	added, err := s.Add(Standard{Language: "go", Rule: "no-panic", Pattern: `panic`})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	updated := added
	updated.Description = "reworded"
	updated.Pattern = `\bpanic\(`
	if err := s.Update(updated); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, ok := s.Get(added.ID)
	if !ok {
		t.Fatal("standard vanished")
	}
	if got.Description != "reworded" || got.Pattern != `\bpanic\(` {
		t.Errorf("update lost: %+v", got)
	}
	if !got.CreatedAt.Equal(added.CreatedAt) {
		t.Errorf("CreatedAt should be preserved: %v vs %v", got.CreatedAt, added.CreatedAt)
	}

	missing := added
	missing.ID = "ghost"
	if err := s.Update(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	bad := added
	bad.Pattern = "("
	if err := s.Update(bad); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestRemoveAndSetEnabledMisses(t *testing.T) {
	s := New()
	if err := s.Remove("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove miss: expected ErrNotFound, got %v", err)
	}
	if err := s.SetEnabled("ghost", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetEnabled miss: expected ErrNotFound, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	s := New()
	enabled, err := s.Add(Standard{
		Language:    "go",
		Category:    "errors",
		Rule:        "no-panic",
		Description: "Return an error instead of panicking",
		Severity:    SeverityWarning,
		Pattern:     `\bpanic\(`,
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := s.Add(Standard{
		Language: "go",
		Rule:     "disabled-rule",
		Pattern:  `func`,
		Enabled:  false,
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := s.Add(Standard{
		Language: "python",
		Rule:     "no-print",
		Pattern:  `print\(`,
		Enabled:  true,
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	code := "func load() {\n" +
		"\tpanic(\"not implemented\")\n" +
		"}\n"

	violations := s.Check(code, "go")
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %+v", len(violations), violations)
	}
	v := violations[0]
	if v.StandardID != enabled.ID || v.Rule != "no-panic" {
		t.Errorf("wrong standard: %+v", v)
	}
	if v.Line != 2 {
		t.Errorf("line = %d, want 2", v.Line)
	}
	if v.Text != "\tpanic(\"not implemented\")" {
		t.Errorf("text = %q", v.Text)
	}
	if v.Severity != SeverityWarning || v.Description == "" {
		t.Errorf("metadata lost: %+v", v)
	}

	// Language matching is case-insensitive; other languages see nothing.
	if got := s.Check(code, "Go"); len(got) != 1 {
		t.Errorf("case-insensitive language: got %d violations", len(got))
	}
	if got := s.Check(code, "python"); len(got) != 0 {
		t.Errorf("python should have no violations here, got %d", len(got))
	}
}

func TestCheckMultipleMatchesInOrder(t *testing.T) {
	s := New()
	if _, err := s.Add(Standard{Language: "python", Rule: "no-print", Pattern: `print\(`, Enabled: true}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := s.Add(Standard{Language: "python", Rule: "no-bare-except", Pattern: `except\s*:`, Enabled: true}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	code := "try:\n" +
		"    print(x)\n" +
		"except:\n" +
		"    print(y)\n"

	violations := s.Check(code, "python")
	if len(violations) != 3 {
		t.Fatalf("expected 3 violations, got %d", len(violations))
	}
	wantLines := []int{2, 3, 4}
	for i, v := range violations {
		if v.Line != wantLines[i] {
			t.Errorf("violation %d line = %d, want %d", i, v.Line, wantLines[i])
		}
	}
}

func TestLoadKeepsBadPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "standards.json")
	raw := `{
  "standards": {
    "bad-1": {"language": "go", "rule": "broken", "pattern": "(", "enabled": true},
    "ok-1":  {"language": "go", "rule": "no-panic", "pattern": "panic", "enabled": true}
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// The broken standard is listed (IDs filled from the map key) but
	// never matches.
	if got := s.List("go", ""); len(got) != 2 {
		t.Fatalf("List = %d, want 2", len(got))
	}
	if _, ok := s.Get("bad-1"); !ok {
		t.Error("broken standard should still be listed")
	}
	violations := s.Check("panic(1)", "go")
	if len(violations) != 1 || violations[0].Rule != "no-panic" {
		t.Errorf("only the valid pattern should match: %+v", violations)
	}
}

func TestDefaultStandards(t *testing.T) {
	s := New()
	for _, st := range DefaultStandards() {
		if _, err := s.Add(st); err != nil {
			t.Fatalf("default standard %q should be addable: %v", st.Rule, err)
		}
	}

	if got := s.Check("    panic(\"boom\")", "go"); len(got) != 1 || got[0].Rule != "no-panic" {
		t.Errorf("go panic should violate no-panic: %+v", got)
	}
	if got := s.Check("print('debug')", "python"); len(got) != 1 || got[0].Rule != "no-print" {
		t.Errorf("python print should violate no-print: %+v", got)
	}
	if got := s.Check("logger.info('x')", "python"); len(got) != 0 {
		t.Errorf("logging call should be clean: %+v", got)
	}
}
