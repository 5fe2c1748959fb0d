package provider

import (
	"context"
	"sync"
)

// Mock is a test implementation of Provider.
//
// Use Mock in tests to exercise routing, failover, and accounting without
// real API calls. It provides:
//   - Configurable responses returned in sequence
//   - Error injection, either permanent or for the first N calls
//   - Call history tracking
//   - Thread-safe operation
//
// Example:
//
//	mock := &provider.Mock{
//	    Type: provider.TypeOpenAI,
//	    ChatResponses: []provider.ChatResponse{
//	        {Text: "first"},
//	        {Text: "second"},
//	    },
//	}
//	out, err := mock.Chat(ctx, req) // "first", then "second" on later calls
//
// Error injection:
//
//	mock := &provider.Mock{Type: provider.TypeOllama, Err: provider.ErrRateLimited}
//	_, err := mock.Chat(ctx, req) // returns the configured error
//
// FailFirst lets failover tests model a provider that recovers:
//
//	mock := &provider.Mock{Err: provider.ErrRateLimited, FailFirst: 2}
//	// first two calls fail, the rest succeed
type Mock struct {
	// Type is the identity reported by Name. Defaults to "mock" when empty.
	Type Type

	// ChatResponses are returned by Chat in order; the last one repeats.
	ChatResponses []ChatResponse

	// CompletionResponses are returned by Complete in order.
	CompletionResponses []CompletionResponse

	// EmbeddingResponses are returned by Embed in order.
	EmbeddingResponses []EmbeddingResponse

	// Err, if set, is returned instead of a response.
	Err error

	// FailFirst limits Err to the first N calls; after that, calls succeed.
	// Zero means Err (when set) applies to every call.
	FailFirst int

	// Calls records every invocation in order, for assertions.
	Calls []MockCall

	mu         sync.Mutex
	chatIdx    int
	complIdx   int
	embedIdx   int
	totalCalls int
}

// MockCall records a single invocation of any Mock operation.
type MockCall struct {
	Op    string // "chat", "complete", or "embed"
	Model string
}

// Name implements Provider.
func (m *Mock) Name() Type {
	if m.Type == "" {
		return Type("mock")
	}
	return m.Type
}

// Chat implements Provider.
func (m *Mock) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("chat", req.Model)
	if err := m.maybeFail(); err != nil {
		return nil, err
	}

	if len(m.ChatResponses) == 0 {
		resp := ChatResponse{Model: req.Model, Provider: m.Name()}
		return &resp, nil
	}
	idx := m.chatIdx
	if idx >= len(m.ChatResponses) {
		idx = len(m.ChatResponses) - 1
	} else {
		m.chatIdx++
	}
	resp := m.ChatResponses[idx]
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if resp.Provider == "" {
		resp.Provider = m.Name()
	}
	return &resp, nil
}

// Complete implements Provider.
func (m *Mock) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("complete", req.Model)
	if err := m.maybeFail(); err != nil {
		return nil, err
	}

	if len(m.CompletionResponses) == 0 {
		resp := CompletionResponse{Model: req.Model, Provider: m.Name()}
		return &resp, nil
	}
	idx := m.complIdx
	if idx >= len(m.CompletionResponses) {
		idx = len(m.CompletionResponses) - 1
	} else {
		m.complIdx++
	}
	resp := m.CompletionResponses[idx]
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if resp.Provider == "" {
		resp.Provider = m.Name()
	}
	return &resp, nil
}

// Embed implements Provider.
func (m *Mock) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("embed", req.Model)
	if err := m.maybeFail(); err != nil {
		return nil, err
	}

	if len(m.EmbeddingResponses) == 0 {
		resp := EmbeddingResponse{
			Vectors:  make([][]float64, len(req.Input)),
			Model:    req.Model,
			Provider: m.Name(),
		}
		return &resp, nil
	}
	idx := m.embedIdx
	if idx >= len(m.EmbeddingResponses) {
		idx = len(m.EmbeddingResponses) - 1
	} else {
		m.embedIdx++
	}
	resp := m.EmbeddingResponses[idx]
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if resp.Provider == "" {
		resp.Provider = m.Name()
	}
	return &resp, nil
}

// CallCount returns the number of operations invoked so far.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalCalls
}

// Reset clears the call history and response cursors.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.chatIdx = 0
	m.complIdx = 0
	m.embedIdx = 0
	m.totalCalls = 0
}

// record must be called with mu held.
func (m *Mock) record(op, model string) {
	m.Calls = append(m.Calls, MockCall{Op: op, Model: model})
	m.totalCalls++
}

// maybeFail must be called with mu held, after record.
func (m *Mock) maybeFail() error {
	if m.Err == nil {
		return nil
	}
	if m.FailFirst > 0 && m.totalCalls > m.FailFirst {
		return nil
	}
	return m.Err
}
