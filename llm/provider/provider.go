// Package provider defines the normalized surface shared by every LLM
// vendor adapter.
//
// Each adapter (openai, anthropic, google, ollama) converts its vendor's
// chat, completion, and embedding APIs into the shapes defined here so the
// router can treat providers interchangeably: the same message roles, the
// same generation options, the same usage accounting, and the same error
// classification.
package provider

import "context"

// Type identifies an LLM provider implementation.
type Type string

// Known provider types.
const (
	TypeOpenAI    Type = "openai"
	TypeAnthropic Type = "anthropic"
	TypeGoogle    Type = "google"
	TypeOllama    Type = "ollama"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries the generation knobs common to all vendors.
//
// Pointer fields distinguish "unset, use the provider default" from an
// explicit zero. Adapters translate each field into the vendor's native
// parameter and silently drop knobs the vendor does not support.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`

	// JSONMode requests a JSON-only response from vendors that support
	// constrained output. Vendors without native support receive the
	// request unchanged; callers must validate the response themselves.
	JSONMode bool `json:"json_mode,omitempty"`
}

// Usage is the token accounting for a single request.
//
// TotalTokens is always populated: adapters derive it from input + output
// when the vendor omits a total.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// ChatRequest is a normalized multi-turn chat request.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Options  Options   `json:"options"`
}

// ChatResponse is the normalized result of a chat request.
type ChatResponse struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	Provider     Type   `json:"provider"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// CompletionRequest is a normalized single-prompt completion request.
// Adapters without a dedicated completion endpoint serve it over chat.
type CompletionRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	System  string  `json:"system,omitempty"`
	Options Options `json:"options"`
}

// CompletionResponse is the normalized result of a completion request.
type CompletionResponse struct {
	Text     string `json:"text"`
	Model    string `json:"model"`
	Provider Type   `json:"provider"`
	Usage    Usage  `json:"usage"`
}

// EmbeddingRequest is a normalized embedding request for one or more inputs.
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse carries one vector per input, in input order.
type EmbeddingResponse struct {
	Vectors  [][]float64 `json:"vectors"`
	Model    string      `json:"model"`
	Provider Type        `json:"provider"`
	Usage    Usage       `json:"usage"`
}

// Provider is the interface every vendor adapter implements.
//
// Implementations must be safe for concurrent use, must respect context
// cancellation on every network call, and must classify every failure as a
// *Error so callers can branch on the code or the Retryable flag without
// knowing the vendor.
//
// An adapter that cannot serve an operation (for example Anthropic has no
// embedding endpoint) returns a *Error with CodeUnsupported so the router
// can move on to a provider that can.
type Provider interface {
	// Name returns the provider type for routing, logging, and accounting.
	Name() Type

	// Chat sends a multi-turn conversation and returns the assistant reply.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Complete sends a single prompt (with optional system preamble) and
	// returns the generated text.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Embed returns one embedding vector per input string.
	Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error)
}

// Pinger is implemented by adapters that can cheaply check reachability,
// such as the Ollama adapter probing the local daemon.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelLister is implemented by adapters that can enumerate the models
// available behind them.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Sum returns total tokens, deriving the value when the vendor omitted it.
func (u Usage) Sum() int64 {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.InputTokens + u.OutputTokens
}

// Normalize fills TotalTokens from the parts when it is missing.
func (u Usage) Normalize() Usage {
	u.TotalTokens = u.Sum()
	return u
}
