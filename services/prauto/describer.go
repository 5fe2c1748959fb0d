package prauto

import (
	"context"
	"fmt"
	"strings"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm"
	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
)

// ManagerDescriber writes descriptions with a model routed through the
// request router, so generation inherits its retries, failover, and
// cost accounting.
type ManagerDescriber struct {
	mgr   *llm.Manager
	model string
}

// NewManagerDescriber creates a describer that sends each draft to
// model via mgr.
func NewManagerDescriber(mgr *llm.Manager, model string) (*ManagerDescriber, error) {
	if mgr == nil {
		return nil, fmt.Errorf("NewManagerDescriber: manager is nil")
	}
	if model == "" {
		return nil, fmt.Errorf("NewManagerDescriber: model is empty")
	}
	return &ManagerDescriber{mgr: mgr, model: model}, nil
}

const describerSystem = "You write pull request descriptions. " +
	"Summarize what the change does and why, in Markdown, starting with a one-paragraph overview. " +
	"Be specific and concise. Do not invent changes that are not in the file list."

// Describe implements Describer.
func (d *ManagerDescriber) Describe(ctx context.Context, draft Draft) (string, error) {
	res, err := d.mgr.Complete(ctx, provider.CompletionRequest{
		Model:  d.model,
		System: describerSystem,
		Prompt: buildDescribePrompt(draft),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

// buildDescribePrompt lays out the draft metadata the model should
// describe.
func buildDescribePrompt(d Draft) string {
	var sb strings.Builder

	sb.WriteString("Write a pull request description for the following change.\n\n")
	sb.WriteString("Title: ")
	sb.WriteString(d.Title)
	sb.WriteString("\nBranch: ")
	sb.WriteString(d.Branch)
	sb.WriteString(" -> ")
	sb.WriteString(d.Base)
	sb.WriteString("\n")
	if len(d.Labels) > 0 {
		sb.WriteString("Labels: ")
		sb.WriteString(strings.Join(d.Labels, ", "))
		sb.WriteString("\n")
	}
	if len(d.Files) > 0 {
		sb.WriteString("\nChanged files:\n")
		for _, f := range d.Files {
			sb.WriteString("- ")
			sb.WriteString(f)
			sb.WriteString("\n")
		}
	}
	if d.Description != "" {
		sb.WriteString("\nNotes from the author:\n")
		sb.WriteString(d.Description)
		sb.WriteString("\n")
	}
	return sb.String()
}
