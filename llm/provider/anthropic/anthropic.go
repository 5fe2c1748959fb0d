// Package anthropic adapts the official Anthropic Go SDK to the normalized
// provider interface. The Messages API serves both chat and completion;
// Anthropic has no embeddings endpoint.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
)

// defaultMaxTokens is used when the caller does not set Options.MaxTokens.
// The Messages API requires an explicit cap on every request.
const defaultMaxTokens = 4096

// Adapter implements provider.Provider using Anthropic's Messages API.
type Adapter struct {
	client *anthropic.Client
}

// Option configures an Adapter.
type Option func(*config)

type config struct {
	baseURL string
}

// WithBaseURL points the adapter at a proxy or regional endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// New creates an Anthropic adapter.
func New(apiKey string, opts ...Option) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key cannot be empty")
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	client := anthropic.NewClient(reqOpts...)
	return &Adapter{client: &client}, nil
}

// Name implements provider.Provider.
func (a *Adapter) Name() provider.Type {
	return provider.TypeAnthropic
}

// Chat implements provider.Provider.
//
// The Messages API takes the system prompt as a top-level field rather than
// a message role, so system messages are extracted from the conversation and
// joined before the call.
func (a *Adapter) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, provider.Errorf(provider.TypeAnthropic, provider.CodeBadRequest, "chat request has no messages")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	system, turns := splitSystem(req.Messages)
	if len(turns) == 0 {
		return nil, provider.Errorf(provider.TypeAnthropic, provider.CodeBadRequest, "chat request has no user or assistant messages")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: defaultMaxTokens,
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	applyOptions(&params, req.Options)

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}

	return &provider.ChatResponse{
		Text:     textContent(message),
		Model:    string(message.Model),
		Provider: provider.TypeAnthropic,
		Usage: provider.Usage{
			InputTokens:  message.Usage.InputTokens,
			OutputTokens: message.Usage.OutputTokens,
		}.Normalize(),
		FinishReason: string(message.StopReason),
	}, nil
}

// Complete implements provider.Provider.
func (a *Adapter) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if req.Prompt == "" {
		return nil, provider.Errorf(provider.TypeAnthropic, provider.CodeBadRequest, "completion request has no prompt")
	}

	messages := make([]provider.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: req.System})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: req.Prompt})

	out, err := a.Chat(ctx, provider.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Options:  req.Options,
	})
	if err != nil {
		return nil, err
	}

	return &provider.CompletionResponse{
		Text:     out.Text,
		Model:    out.Model,
		Provider: provider.TypeAnthropic,
		Usage:    out.Usage,
	}, nil
}

// Embed implements provider.Provider. Anthropic does not offer an
// embeddings endpoint; callers should route embedding requests elsewhere.
func (a *Adapter) Embed(ctx context.Context, req provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	return nil, provider.Errorf(provider.TypeAnthropic, provider.CodeUnsupported, "anthropic does not support embeddings")
}

// splitSystem separates system messages from conversation turns. Multiple
// system messages are joined with a blank line, preserving order.
func splitSystem(messages []provider.Message) (string, []anthropic.MessageParam) {
	var system []string
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case provider.RoleSystem:
			system = append(system, m.Content)
		case provider.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return strings.Join(system, "\n\n"), turns
}

// textContent concatenates the text blocks of a response, skipping tool-use
// and thinking blocks.
func textContent(message *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

func applyOptions(params *anthropic.MessageNewParams, opts provider.Options) {
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = anthropic.Float(*opts.TopP)
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = int64(*opts.MaxTokens)
	}
	if len(opts.Stop) > 0 {
		params.StopSequences = opts.Stop
	}
	// JSONMode has no Messages API equivalent and is dropped.
}

// mapError converts SDK errors into classified provider errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		msg := apierr.Error()
		switch {
		case apierr.StatusCode == 429:
			return provider.Errorf(provider.TypeAnthropic, provider.CodeRateLimited, "rate limit exceeded: %s", msg)
		case apierr.StatusCode == 401 || apierr.StatusCode == 403:
			return provider.Errorf(provider.TypeAnthropic, provider.CodeAuth, "authentication failed: %s", msg)
		case apierr.StatusCode == 400:
			return provider.Errorf(provider.TypeAnthropic, provider.CodeBadRequest, "invalid request: %s", msg)
		case apierr.StatusCode == 529:
			return provider.Errorf(provider.TypeAnthropic, provider.CodeServer, "overloaded: %s", msg)
		case apierr.StatusCode >= 500:
			return provider.Errorf(provider.TypeAnthropic, provider.CodeServer, "server error: %s", msg)
		}
	}

	return provider.Classify(provider.TypeAnthropic, err)
}
