package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// File is one discovered source file, content included, path relative to
// the scan root.
type File struct {
	Path     string
	Language string
	Size     int64
	Lines    int
	Content  string
}

// languageByExt maps file extensions to the language names used in scan
// filters and issue reports.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".sh":    "shell",
	".kt":    "kotlin",
	".swift": "swift",
	".sql":   "sql",
}

// skipDirs are directory names never descended into: dependency caches,
// VCS metadata, and build output.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".idea":        true,
	".vscode":      true,
}

// Discover walks root and returns the source files to scan, in walk
// order. languages filters by language name (nil or empty means every
// known language); files larger than maxFileSize bytes are skipped, as
// are unreadable files and anything under a skipped directory.
func Discover(ctx context.Context, root string, languages []string, maxFileSize int64) ([]File, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to access scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root is not a directory: %s", root)
	}

	wanted := make(map[string]bool, len(languages))
	for _, l := range languages {
		wanted[strings.ToLower(l)] = true
	}

	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		if len(wanted) > 0 && !wanted[lang] {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if maxFileSize > 0 && fi.Size() > maxFileSize {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}

		files = append(files, File{
			Path:     filepath.ToSlash(rel),
			Language: lang,
			Size:     fi.Size(),
			Lines:    countLines(string(content)),
			Content:  string(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk scan root: %w", err)
	}
	return files, nil
}

// Batch groups files into analysis batches no larger than maxBytes of
// content each, preserving discovery order. A file bigger than the
// budget gets a batch of its own.
func Batch(files []File, maxBytes int64) [][]File {
	if len(files) == 0 {
		return nil
	}
	if maxBytes <= 0 {
		return [][]File{files}
	}

	var (
		batches [][]File
		current []File
		used    int64
	)
	for _, f := range files {
		if len(current) > 0 && used+f.Size > maxBytes {
			batches = append(batches, current)
			current = nil
			used = 0
		}
		current = append(current, f)
		used += f.Size
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}
