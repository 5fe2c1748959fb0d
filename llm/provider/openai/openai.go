// Package openai adapts the official OpenAI Go SDK to the normalized
// provider interface: chat and completion over the chat completions
// endpoint, embeddings over the embeddings endpoint.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
)

// Adapter implements provider.Provider using OpenAI's API.
//
// The adapter is safe for concurrent use; the underlying SDK client handles
// its own connection pooling and thread safety.
type Adapter struct {
	client *openai.Client
}

// Option configures an Adapter.
type Option func(*config)

type config struct {
	baseURL string
}

// WithBaseURL points the adapter at an OpenAI-compatible endpoint
// (Azure OpenAI, a local gateway) instead of api.openai.com.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// New creates an OpenAI adapter.
//
// Returns an error if apiKey is empty; nothing is validated against the
// network until the first request.
func New(apiKey string, opts ...Option) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key cannot be empty")
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	client := openai.NewClient(reqOpts...)
	return &Adapter{client: &client}, nil
}

// Name implements provider.Provider.
func (a *Adapter) Name() provider.Type {
	return provider.TypeOpenAI
}

// Chat implements provider.Provider.
func (a *Adapter) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, provider.Errorf(provider.TypeOpenAI, provider.CodeBadRequest, "chat request has no messages")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: convertMessages(req.Messages),
	}
	applyOptions(&params, req.Options)

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, provider.Errorf(provider.TypeOpenAI, provider.CodeUnknown, "response contained no choices")
	}

	choice := completion.Choices[0]
	return &provider.ChatResponse{
		Text:     choice.Message.Content,
		Model:    completion.Model,
		Provider: provider.TypeOpenAI,
		Usage: provider.Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
			TotalTokens:  completion.Usage.TotalTokens,
		}.Normalize(),
		FinishReason: string(choice.FinishReason),
	}, nil
}

// Complete implements provider.Provider. OpenAI's legacy completions
// endpoint is deprecated for current models, so completion requests are
// served over chat.
func (a *Adapter) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if req.Prompt == "" {
		return nil, provider.Errorf(provider.TypeOpenAI, provider.CodeBadRequest, "completion request has no prompt")
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
		Provider: provider.TypeOpenAI,
		Usage:    out.Usage,
	}, nil
}

// Embed implements provider.Provider.
func (a *Adapter) Embed(ctx context.Context, req provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	if len(req.Input) == 0 {
		return nil, provider.Errorf(provider.TypeOpenAI, provider.CodeBadRequest, "embedding request has no input")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := a.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Input},
		Model: openai.EmbeddingModel(req.Model),
	})
	if err != nil {
		return nil, mapError(err)
	}
	if len(res.Data) == 0 {
		return nil, provider.Errorf(provider.TypeOpenAI, provider.CodeUnknown, "embedding response contained no data")
	}

	// Data order is not guaranteed; Index places each vector.
	vectors := make([][]float64, len(req.Input))
	for _, d := range res.Data {
		if d.Index < 0 || int(d.Index) >= len(vectors) {
			continue
		}
		vectors[d.Index] = d.Embedding
	}

	return &provider.EmbeddingResponse{
		Vectors:  vectors,
		Model:    res.Model,
		Provider: provider.TypeOpenAI,
		Usage: provider.Usage{
			InputTokens: res.Usage.PromptTokens,
			TotalTokens: res.Usage.TotalTokens,
		}.Normalize(),
	}, nil
}

// convertMessages maps normalized messages onto the SDK's role unions.
// Unknown roles are treated as user messages rather than dropped.
func convertMessages(messages []provider.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case provider.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case provider.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// applyOptions translates the normalized generation knobs onto the request
// params. Stop sequences are not forwarded here; the chat completions
// endpoint applies model defaults when they are absent.
func applyOptions(params *openai.ChatCompletionNewParams, opts provider.Options) {
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(*opts.TopP)
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*opts.MaxTokens))
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}
}

// mapError converts SDK errors into classified provider errors. HTTP status
// codes from the typed SDK error are authoritative; anything else falls back
// to message classification.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apierr *openai.Error
	if errors.As(err, &apierr) {
		msg := apierr.Error()
		switch {
		case apierr.StatusCode == 429 && strings.Contains(strings.ToLower(msg), "quota"):
			return provider.Errorf(provider.TypeOpenAI, provider.CodeQuota, "quota exceeded: %s", msg)
		case apierr.StatusCode == 429:
			return provider.Errorf(provider.TypeOpenAI, provider.CodeRateLimited, "rate limit exceeded: %s", msg)
		case apierr.StatusCode == 401 || apierr.StatusCode == 403:
			return provider.Errorf(provider.TypeOpenAI, provider.CodeAuth, "authentication failed: %s", msg)
		case apierr.StatusCode == 400:
			return provider.Errorf(provider.TypeOpenAI, provider.CodeBadRequest, "invalid request: %s", msg)
		case apierr.StatusCode >= 500:
			return provider.Errorf(provider.TypeOpenAI, provider.CodeServer, "server error: %s", msg)
		}
	}

	return provider.Classify(provider.TypeOpenAI, err)
}
