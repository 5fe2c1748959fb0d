package scanner

import (
	"regexp"
	"strings"
)

// Rule is one pattern the built-in analysis applies line by line.
type Rule struct {
	// Name identifies the rule in reports.
	Name string

	// Category groups related rules (CategoryCredentials, ...).
	Category string

	// Severity is the severity assigned to matches.
	Severity string

	// Pattern flags a line when it matches.
	Pattern *regexp.Regexp

	// Exclude suppresses a match when it also matches the line. Used to
	// carve exceptions out of a broad pattern (localhost URLs etc.).
	Exclude *regexp.Regexp

	// Languages limits the rule to the named languages; empty applies
	// the rule everywhere.
	Languages []string

	// Message describes the finding.
	Message string

	// Suggestion describes the fix.
	Suggestion string
}

func (r Rule) appliesTo(language string) bool {
	if len(r.Languages) == 0 {
		return true
	}
	for _, l := range r.Languages {
		if strings.EqualFold(l, language) {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in security rule set: hardcoded
// credentials, weak hashes, insecure transport, and shell execution.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "hardcoded-password",
			Category:   CategoryCredentials,
			Severity:   SeverityCritical,
			Pattern:    regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["'][^"']{4,}["']`),
			Message:    "Hardcoded password in source",
			Suggestion: "Load the password from the environment or a secret store",
		},
		{
			Name:       "hardcoded-api-key",
			Category:   CategoryCredentials,
			Severity:   SeverityCritical,
			Pattern:    regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access[_-]?token|auth[_-]?token)\s*[:=]\s*["'][A-Za-z0-9_\-]{8,}["']`),
			Message:    "Hardcoded API key or token in source",
			Suggestion: "Load the credential from the environment or a secret store",
		},
		{
			Name:       "aws-access-key",
			Category:   CategoryCredentials,
			Severity:   SeverityCritical,
			Pattern:    regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
			Message:    "AWS access key ID in source",
			Suggestion: "Revoke the key and switch to IAM roles or environment credentials",
		},
		{
			Name:       "weak-hash",
			Category:   CategoryCrypto,
			Severity:   SeverityHigh,
			Pattern:    regexp.MustCompile(`(?i)(hashlib\.(md5|sha1)\b|\b(md5|sha1)\.(new|sum)\b|Digest::(MD5|SHA1)\b)`),
			Message:    "Weak hash algorithm (MD5/SHA-1)",
			Suggestion: "Use SHA-256 or stronger for anything security-relevant",
		},
		{
			Name:       "insecure-url",
			Category:   CategoryTransport,
			Severity:   SeverityMedium,
			Pattern:    regexp.MustCompile(`http://[^\s"']+`),
			Exclude:    regexp.MustCompile(`http://(localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1\])`),
			Message:    "Unencrypted http:// URL",
			Suggestion: "Use https:// for non-local endpoints",
		},
		{
			Name:       "shell-execution",
			Category:   CategoryExecution,
			Severity:   SeverityHigh,
			Pattern:    regexp.MustCompile(`(?i)(os\.system\s*\(|subprocess\.(call|run|popen|check_output)\s*\(|shell\s*=\s*true|\beval\s*\()`),
			Message:    "Dynamic command or code execution",
			Suggestion: "Validate inputs and avoid shell interpolation; prefer exec with an argument vector",
		},
	}
}

// applyRules runs every applicable rule against each line of f and
// returns the findings in line order. File and Line are set; the caller
// fills the scan identity.
func applyRules(rules []Rule, f File) []Issue {
	var issues []Issue
	lines := strings.Split(f.Content, "\n")
	for i, line := range lines {
		for _, r := range rules {
			if !r.appliesTo(f.Language) {
				continue
			}
			if !r.Pattern.MatchString(line) {
				continue
			}
			if r.Exclude != nil && r.Exclude.MatchString(line) {
				continue
			}
			issues = append(issues, Issue{
				File:       f.Path,
				Line:       i + 1,
				Severity:   r.Severity,
				Category:   r.Category,
				Message:    r.Message,
				Suggestion: r.Suggestion,
			})
		}
	}
	return issues
}
