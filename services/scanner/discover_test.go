package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTree lays files out under a temp root and returns the root.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	return root
}

func TestDiscoverCollectsSourceFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":              "package main\n\nfunc main() {}\n",
		"app.py":               "print('hi')\n",
		"sub/util.js":          "export const x = 1;\n",
		"README.md":            "# docs\n",
		"node_modules/lib.js":  "ignored\n",
		".git/hooks/commit.py": "ignored\n",
	})

	files, err := Discover(context.Background(), root, nil, 0)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	byPath := make(map[string]File, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d: %v", len(files), byPath)
	}

	mainGo, ok := byPath["main.go"]
	if !ok {
		t.Fatal("main.go not discovered")
	}
	if mainGo.Language != "go" {
		t.Errorf("main.go language = %q, want go", mainGo.Language)
	}
	if mainGo.Lines != 3 {
		t.Errorf("main.go lines = %d, want 3", mainGo.Lines)
	}
	if !strings.Contains(mainGo.Content, "package main") {
		t.Errorf("content not loaded: %q", mainGo.Content)
	}

	util, ok := byPath["sub/util.js"]
	if !ok {
		t.Fatal("sub/util.js not discovered (paths must be slash-relative)")
	}
	if util.Language != "javascript" {
		t.Errorf("util.js language = %q, want javascript", util.Language)
	}

	if _, ok := byPath["node_modules/lib.js"]; ok {
		t.Error("node_modules should be skipped")
	}
	if _, ok := byPath["README.md"]; ok {
		t.Error("unknown extensions should be skipped")
	}
}

func TestDiscoverLanguageFilter(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go": "package main\n",
		"app.py":  "print('hi')\n",
		"web.ts":  "const x = 1;\n",
	})

	files, err := Discover(context.Background(), root, []string{"Go", "typescript"}, 0)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	for _, f := range files {
		if f.Language == "python" {
			t.Errorf("python should be filtered out, got %q", f.Path)
		}
	}
}

func TestDiscoverMaxFileSize(t *testing.T) {
	root := writeTree(t, map[string]string{
		"small.go": "package a\n",
		"big.go":   strings.Repeat("// padding\n", 100),
	})

	files, err := Discover(context.Background(), root, nil, 64)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(files) != 1 || files[0].Path != "small.go" {
		t.Errorf("expected only small.go, got %+v", files)
	}
}

func TestDiscoverBadRoot(t *testing.T) {
	if _, err := Discover(context.Background(), filepath.Join(t.TempDir(), "missing"), nil, 0); err == nil {
		t.Error("expected error for missing root")
	}

	root := writeTree(t, map[string]string{"f.go": "package f\n"})
	if _, err := Discover(context.Background(), filepath.Join(root, "f.go"), nil, 0); err == nil {
		t.Error("expected error for file root")
	}
}

func TestDiscoverHonorsContext(t *testing.T) {
	root := writeTree(t, map[string]string{"f.go": "package f\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Discover(ctx, root, nil, 0); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestBatchGroupsBySizeBudget(t *testing.T) {
	files := []File{
		{Path: "a", Size: 40},
		{Path: "b", Size: 40},
		{Path: "c", Size: 40},
		{Path: "d", Size: 200}, // alone over budget
		{Path: "e", Size: 10},
	}

	batches := Batch(files, 100)
	if len(batches) != 4 {
		t.Fatalf("expected 4 batches, got %d", len(batches))
	}
	if len(batches[0]) != 2 || batches[0][0].Path != "a" || batches[0][1].Path != "b" {
		t.Errorf("batch 0 wrong: %+v", batches[0])
	}
	if len(batches[1]) != 1 || batches[1][0].Path != "c" {
		t.Errorf("batch 1 wrong: %+v", batches[1])
	}
	if len(batches[2]) != 1 || batches[2][0].Path != "d" {
		t.Errorf("oversized file should sit alone, got %+v", batches[2])
	}
	if len(batches[3]) != 1 || batches[3][0].Path != "e" {
		t.Errorf("batch 3 wrong: %+v", batches[3])
	}
}

func TestBatchEdgeCases(t *testing.T) {
	if got := Batch(nil, 100); got != nil {
		t.Errorf("empty input should return nil, got %v", got)
	}

	files := []File{{Path: "a", Size: 10}, {Path: "b", Size: 10}}
	if got := Batch(files, 0); len(got) != 1 || len(got[0]) != 2 {
		t.Errorf("non-positive budget should return one batch, got %v", got)
	}

	huge := []File{{Path: "only", Size: 500}}
	if got := Batch(huge, 100); len(got) != 1 || len(got[0]) != 1 {
		t.Errorf("oversized single file should get its own batch, got %v", got)
	}
}

func TestCountLines(t *testing.T) {
	cases := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"one line\n", 1},
		{"no trailing newline", 1},
		{"a\nb\nc\n", 3},
		{"a\nb", 2},
	}
	for _, tc := range cases {
		if got := countLines(tc.content); got != tc.want {
			t.Errorf("countLines(%q) = %d, want %d", tc.content, got, tc.want)
		}
	}
}
