// Package ollama adapts a local Ollama server to the normalized provider
// interface over its HTTP API. Unlike the hosted vendors there is no SDK;
// requests go straight to /api/chat, /api/generate and /api/embeddings
// with streaming disabled.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
)

// DefaultBaseURL is the standard address of a local Ollama server.
const DefaultBaseURL = "http://localhost:11434"

// Adapter implements provider.Provider against an Ollama server.
type Adapter struct {
	baseURL   string
	keepAlive string
	client    *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL points the adapter at a non-default Ollama address.
func WithBaseURL(url string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.client = client }
}

// WithKeepAlive controls how long the server keeps the model loaded after a
// request: a duration string like "10m", "-1" to pin it in memory, or "0"
// to unload immediately.
func WithKeepAlive(keepAlive string) Option {
	return func(a *Adapter) { a.keepAlive = keepAlive }
}

// New creates an Ollama adapter. Local generation can be slow, so the
// default client allows five minutes per request.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []wireMessage  `json:"messages"`
	Stream    bool           `json:"stream"`
	Format    string         `json:"format,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

type chatResponse struct {
	Message         wireMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int64       `json:"prompt_eval_count"`
	EvalCount       int64       `json:"eval_count"`
}

type generateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	System    string         `json:"system,omitempty"`
	Stream    bool           `json:"stream"`
	Format    string         `json:"format,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int64  `json:"prompt_eval_count"`
	EvalCount       int64  `json:"eval_count"`
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float64 `json:"embedding"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Name implements provider.Provider.
func (a *Adapter) Name() provider.Type {
	return provider.TypeOllama
}

// Chat implements provider.Provider.
func (a *Adapter) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, provider.Errorf(provider.TypeOllama, provider.CodeBadRequest, "chat request has no messages")
	}

	messages := make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = wireMessage{Role: string(m.Role), Content: m.Content}
	}

	payload := chatRequest{
		Model:     req.Model,
		Messages:  messages,
		Stream:    false,
		Options:   optionsMap(req.Options),
		KeepAlive: a.keepAlive,
	}
	if req.Options.JSONMode {
		payload.Format = "json"
	}

	var out chatResponse
	if err := a.post(ctx, "/api/chat", payload, &out); err != nil {
		return nil, err
	}

	return &provider.ChatResponse{
		Text:     out.Message.Content,
		Model:    req.Model,
		Provider: provider.TypeOllama,
		Usage: provider.Usage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
		}.Normalize(),
		FinishReason: out.DoneReason,
	}, nil
}

// Complete implements provider.Provider using the native /api/generate
// endpoint, which takes a bare prompt and optional system text directly.
func (a *Adapter) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if req.Prompt == "" {
		return nil, provider.Errorf(provider.TypeOllama, provider.CodeBadRequest, "completion request has no prompt")
	}

	payload := generateRequest{
		Model:     req.Model,
		Prompt:    req.Prompt,
		System:    req.System,
		Stream:    false,
		Options:   optionsMap(req.Options),
		KeepAlive: a.keepAlive,
	}
	if req.Options.JSONMode {
		payload.Format = "json"
	}

	var out generateResponse
	if err := a.post(ctx, "/api/generate", payload, &out); err != nil {
		return nil, err
	}

	return &provider.CompletionResponse{
		Text:     out.Response,
		Model:    req.Model,
		Provider: provider.TypeOllama,
		Usage: provider.Usage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
		}.Normalize(),
	}, nil
}

// Embed implements provider.Provider. The embeddings endpoint takes one
// prompt per call, so inputs are embedded sequentially.
func (a *Adapter) Embed(ctx context.Context, req provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	if len(req.Input) == 0 {
		return nil, provider.Errorf(provider.TypeOllama, provider.CodeBadRequest, "embedding request has no input")
	}

	vectors := make([][]float64, 0, len(req.Input))
	for _, text := range req.Input {
		var out embeddingsResponse
		if err := a.post(ctx, "/api/embeddings", embeddingsRequest{Model: req.Model, Prompt: text}, &out); err != nil {
			return nil, err
		}
		vectors = append(vectors, out.Embedding)
	}

	return &provider.EmbeddingResponse{
		Vectors:  vectors,
		Model:    req.Model,
		Provider: provider.TypeOllama,
	}, nil
}

// Ping implements provider.Pinger by hitting /api/tags, the cheapest
// endpoint the server exposes.
func (a *Adapter) Ping(ctx context.Context) error {
	var out tagsResponse
	return a.get(ctx, "/api/tags", &out)
}

// ListModels implements provider.ModelLister, returning the names of all
// models pulled into the local server.
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	var out tagsResponse
	if err := a.get(ctx, "/api/tags", &out); err != nil {
		return nil, err
	}

	names := make([]string, len(out.Models))
	for i, m := range out.Models {
		names[i] = m.Name
	}
	return names, nil
}

// optionsMap translates normalized generation knobs onto Ollama's options
// object. Absent knobs are omitted so the server applies model defaults.
func optionsMap(opts provider.Options) map[string]any {
	m := make(map[string]any)
	if opts.Temperature != nil {
		m["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		m["top_p"] = *opts.TopP
	}
	if opts.MaxTokens != nil {
		m["num_predict"] = *opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		m["stop"] = opts.Stop
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func (a *Adapter) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return a.do(req, out)
}

func (a *Adapter) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return a.do(req, out)
}

func (a *Adapter) do(req *http.Request, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return provider.Classify(provider.TypeOllama, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Errorf(provider.TypeOllama, provider.CodeNetwork, "failed to read response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return provider.Errorf(provider.TypeOllama, provider.CodeUnknown, "failed to decode response: %v", err)
	}
	return nil
}

// statusError converts a non-200 response into a classified provider error.
// The server reports failures as {"error": "..."}.
func statusError(status int, body []byte) error {
	var wire struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != "" {
		msg = wire.Error
	}

	switch {
	case status == http.StatusNotFound && strings.Contains(msg, "not found"):
		return provider.Errorf(provider.TypeOllama, provider.CodeBadRequest, "%s; pull it with `ollama pull`", msg)
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return provider.Errorf(provider.TypeOllama, provider.CodeBadRequest, "invalid request: %s", msg)
	case status == http.StatusTooManyRequests:
		return provider.Errorf(provider.TypeOllama, provider.CodeRateLimited, "rate limit exceeded: %s", msg)
	case status >= 500:
		return provider.Errorf(provider.TypeOllama, provider.CodeServer, "server error (status %d): %s", status, msg)
	default:
		return provider.Errorf(provider.TypeOllama, provider.CodeUnknown, "unexpected status %d: %s", status, msg)
	}
}
