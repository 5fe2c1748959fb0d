package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm"
	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
)

// Analyzer reviews a batch of source files and reports issues. Returned
// issues need File, Line, Severity, Category, and Message set; the
// service fills the scan identity.
type Analyzer interface {
	Analyze(ctx context.Context, files []File) ([]Issue, error)
}

// ManagerAnalyzer reviews batches with a model routed through the
// request router, so LLM review inherits its retries, failover, and
// cost accounting.
type ManagerAnalyzer struct {
	mgr   *llm.Manager
	model string
}

// NewManagerAnalyzer creates an analyzer that sends each batch to model
// via mgr.
func NewManagerAnalyzer(mgr *llm.Manager, model string) (*ManagerAnalyzer, error) {
	if mgr == nil {
		return nil, fmt.Errorf("NewManagerAnalyzer: manager is nil")
	}
	if model == "" {
		return nil, fmt.Errorf("NewManagerAnalyzer: model is empty")
	}
	return &ManagerAnalyzer{mgr: mgr, model: model}, nil
}

const analyzerSystem = "You are an expert code reviewer. " +
	"Identify security problems, bugs, and bad practices in the code you are given. " +
	"Respond ONLY with valid JSON. No markdown, no explanation, just the JSON object."

// Analyze implements Analyzer.
func (a *ManagerAnalyzer) Analyze(ctx context.Context, files []File) ([]Issue, error) {
	if len(files) == 0 {
		return nil, nil
	}

	res, err := a.mgr.Chat(ctx, provider.ChatRequest{
		Model: a.model,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: analyzerSystem},
			{Role: provider.RoleUser, Content: buildReviewPrompt(files)},
		},
		Options: provider.Options{JSONMode: true},
	})
	if err != nil {
		return nil, err
	}
	return parseFindings(res.Text, files), nil
}

// buildReviewPrompt lays out the expected response shape followed by
// each file's content under a path header.
func buildReviewPrompt(files []File) string {
	var sb strings.Builder

	sb.WriteString("Review the following files and report every issue you find.\n\n")
	sb.WriteString("Return a JSON object with this structure:\n")
	sb.WriteString(`{
  "issues": [
    {
      "file": "path/to/file.go",
      "line": 10,
      "severity": "critical|high|medium|low|info",
      "category": "security|performance|style|best-practice",
      "message": "Brief description of the issue",
      "suggestion": "How to fix it"
    }
  ]
}

`)
	sb.WriteString("Files to review:\n\n")
	for _, f := range files {
		sb.WriteString("--- File: ")
		sb.WriteString(f.Path)
		sb.WriteString(" (")
		sb.WriteString(f.Language)
		sb.WriteString(") ---\n")
		sb.WriteString(f.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

type finding struct {
	File       string `json:"file"`
	Line       int    `json:"line"`
	Severity   string `json:"severity"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

var validSeverities = map[string]bool{
	SeverityCritical: true,
	SeverityHigh:     true,
	SeverityMedium:   true,
	SeverityLow:      true,
	SeverityInfo:     true,
}

// parseFindings extracts issues from the model's JSON reply. Malformed
// replies yield no issues rather than an error: one confused model
// response should not fail a whole scan. Individual findings are
// dropped when they are empty or carry an unknown severity.
func parseFindings(text string, files []File) []Issue {
	// Models sometimes wrap JSON in markdown fences despite instructions.
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var reply struct {
		Issues []finding `json:"issues"`
	}
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return nil
	}

	issues := make([]Issue, 0, len(reply.Issues))
	for _, f := range reply.Issues {
		if f.Message == "" || f.File == "" || f.Line < 0 {
			continue
		}
		sev := strings.ToLower(f.Severity)
		if !validSeverities[sev] {
			continue
		}
		issues = append(issues, Issue{
			File:       resolvePath(f.File, files),
			Line:       f.Line,
			Severity:   sev,
			Category:   strings.ToLower(f.Category),
			Message:    f.Message,
			Suggestion: f.Suggestion,
		})
	}
	return issues
}

// resolvePath maps the path a model reported back onto a batch file:
// exact match first, then suffix match for models that echo only the
// base name. Unmatched paths pass through untouched.
func resolvePath(name string, files []File) string {
	for _, f := range files {
		if f.Path == name {
			return f.Path
		}
	}
	for _, f := range files {
		if strings.HasSuffix(f.Path, "/"+name) || strings.HasSuffix(name, "/"+f.Path) {
			return f.Path
		}
	}
	return name
}
