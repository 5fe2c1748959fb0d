package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
)

// ModelPricing defines input and output token costs for a model.
// Prices are in USD per 1M tokens (per million tokens).
type ModelPricing struct {
	InputPer1M  float64 // Cost per 1M input tokens in USD
	OutputPer1M float64 // Cost per 1M output tokens in USD
}

// Static pricing map for major LLM providers (as of 2025-01-01).
// Prices are in USD per 1M tokens.
//
// Sources:
//   - OpenAI: https://openai.com/pricing
//   - Anthropic: https://anthropic.com/pricing
//   - Google: https://ai.google.dev/pricing
//
// Models absent from this table (notably anything served by a local
// Ollama daemon) are accounted at zero cost. Catalog entries with explicit
// pricing override these defaults.
//
// Note: Prices subject to change. Update this map as providers adjust pricing.
var defaultModelPricing = map[string]ModelPricing{
	// OpenAI GPT-4o (optimized)
	"gpt-4o": {
		InputPer1M:  2.50,  // $2.50 per 1M input tokens
		OutputPer1M: 10.00, // $10.00 per 1M output tokens
	},
	"gpt-4o-2024-08-06": {
		InputPer1M:  2.50,
		OutputPer1M: 10.00,
	},

	// OpenAI GPT-4o-mini (smaller, cheaper)
	"gpt-4o-mini": {
		InputPer1M:  0.15, // $0.15 per 1M input tokens
		OutputPer1M: 0.60, // $0.60 per 1M output tokens
	},

	// OpenAI GPT-4 Turbo
	"gpt-4-turbo": {
		InputPer1M:  10.00,
		OutputPer1M: 30.00,
	},

	// OpenAI GPT-3.5 Turbo
	"gpt-3.5-turbo": {
		InputPer1M:  0.50,
		OutputPer1M: 1.50,
	},

	// OpenAI embeddings (input-only pricing)
	"text-embedding-3-small": {
		InputPer1M: 0.02,
	},
	"text-embedding-3-large": {
		InputPer1M: 0.13,
	},

	// Anthropic Claude 3.5 Sonnet
	"claude-3-5-sonnet-20241022": {
		InputPer1M:  3.00,
		OutputPer1M: 15.00,
	},
	"claude-3-5-sonnet": {
		InputPer1M:  3.00,
		OutputPer1M: 15.00,
	},

	// Anthropic Claude 3 Opus (most capable)
	"claude-3-opus-20240229": {
		InputPer1M:  15.00, // $15.00 per 1M input tokens
		OutputPer1M: 75.00, // $75.00 per 1M output tokens
	},
	"claude-3-opus": {
		InputPer1M:  15.00,
		OutputPer1M: 75.00,
	},

	// Anthropic Claude 3 Sonnet (balanced)
	"claude-3-sonnet-20240229": {
		InputPer1M:  3.00,
		OutputPer1M: 15.00,
	},
	"claude-3-sonnet": {
		InputPer1M:  3.00,
		OutputPer1M: 15.00,
	},

	// Anthropic Claude 3 Haiku (fastest, cheapest)
	"claude-3-haiku-20240307": {
		InputPer1M:  0.25, // $0.25 per 1M input tokens
		OutputPer1M: 1.25, // $1.25 per 1M output tokens
	},
	"claude-3-haiku": {
		InputPer1M:  0.25,
		OutputPer1M: 1.25,
	},

	// Google Gemini 1.5 Pro
	"gemini-1.5-pro": {
		InputPer1M:  1.25,
		OutputPer1M: 5.00,
	},

	// Google Gemini 1.5 Flash (faster, cheaper)
	"gemini-1.5-flash": {
		InputPer1M:  0.075, // $0.075 per 1M input tokens
		OutputPer1M: 0.30,  // $0.30 per 1M output tokens
	},

	// Google Gemini 1.0 Pro (legacy)
	"gemini-1.0-pro": {
		InputPer1M:  0.50,
		OutputPer1M: 1.50,
	},
}

// LLMCall represents a single LLM API invocation with token usage and cost.
type LLMCall struct {
	Provider     provider.Type // Adapter that served the call
	Model        string        // Model identifier (e.g., "gpt-4o", "claude-3-haiku")
	Operation    string        // "chat", "complete", or "embed"
	InputTokens  int64         // Number of input tokens consumed
	OutputTokens int64         // Number of output tokens generated
	CostUSD      float64       // Calculated cost in USD
	Timestamp    time.Time     // When the call was made
}

// CostTracker tracks financial costs associated with LLM API calls,
// providing token usage and cost attribution for production monitoring.
//
// Features:
//   - Per-model token counting (input/output separate)
//   - Cost calculation from a static pricing table with per-model overrides
//   - Cumulative cost tracking across calls
//   - Per-model and per-provider cost breakdown for attribution
//   - Thread-safe concurrent recording
//
// Usage:
//
//	tracker := NewCostTracker("USD")
//	tracker.RecordCall(provider.TypeOpenAI, "gpt-4o", "chat", usage)
//	total := tracker.GetTotalCost()
//	byModel := tracker.GetCostByModel()
type CostTracker struct {
	// Currency is the cost unit (e.g., "USD").
	Currency string

	// Pricing maps model names to their input/output token costs. The
	// tracker owns this map; use SetCustomPricing to change entries.
	Pricing map[string]ModelPricing

	// Calls records all LLM invocations in chronological order.
	Calls []LLMCall

	// TotalCost accumulates all costs in the specified currency.
	TotalCost float64

	// ModelCosts tracks costs per model for attribution.
	ModelCosts map[string]float64

	// ProviderCosts tracks costs per provider for attribution.
	ProviderCosts map[provider.Type]float64

	// InputTokens counts total input tokens across all calls.
	InputTokens int64

	// OutputTokens counts total output tokens across all calls.
	OutputTokens int64

	// CreatedAt marks when cost tracking began.
	CreatedAt time.Time

	mu      sync.RWMutex
	enabled bool
}

// NewCostTracker creates a cost tracker seeded with the default pricing
// table. The table is copied, so SetCustomPricing never affects other
// trackers.
func NewCostTracker(currency string) *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for model, p := range defaultModelPricing {
		pricing[model] = p
	}
	return &CostTracker{
		Currency:      currency,
		Pricing:       pricing,
		Calls:         make([]LLMCall, 0, 100),
		ModelCosts:    make(map[string]float64),
		ProviderCosts: make(map[provider.Type]float64),
		CreatedAt:     time.Now(),
		enabled:       true,
	}
}

// RecordCall records one LLM invocation, computes its cost from the
// pricing table, updates the cumulative totals, and returns the cost.
//
// Models absent from the pricing table are recorded at zero cost so token
// counts stay accurate even when pricing is unknown.
func (ct *CostTracker) RecordCall(p provider.Type, model, operation string, usage provider.Usage) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if !ct.enabled {
		return 0
	}

	cost := ct.costLocked(model, usage)

	ct.Calls = append(ct.Calls, LLMCall{
		Provider:     p,
		Model:        model,
		Operation:    operation,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
	})

	ct.TotalCost += cost
	ct.ModelCosts[model] += cost
	ct.ProviderCosts[p] += cost
	ct.InputTokens += usage.InputTokens
	ct.OutputTokens += usage.OutputTokens

	return cost
}

// EstimateCost computes what a call would cost without recording it.
func (ct *CostTracker) EstimateCost(model string, inputTokens, outputTokens int64) float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.costLocked(model, provider.Usage{InputTokens: inputTokens, OutputTokens: outputTokens})
}

// costLocked computes (tokens / 1M) * price_per_1M. Callers hold ct.mu.
func (ct *CostTracker) costLocked(model string, usage provider.Usage) float64 {
	pricing := ct.Pricing[model]
	inputCost := (float64(usage.InputTokens) / 1_000_000.0) * pricing.InputPer1M
	outputCost := (float64(usage.OutputTokens) / 1_000_000.0) * pricing.OutputPer1M
	return inputCost + outputCost
}

// GetTotalCost returns the cumulative cost across all recorded calls.
func (ct *CostTracker) GetTotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.TotalCost
}

// GetCostByModel returns a breakdown of costs attributed to each model.
// The returned map is a copy.
func (ct *CostTracker) GetCostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	costs := make(map[string]float64, len(ct.ModelCosts))
	for model, cost := range ct.ModelCosts {
		costs[model] = cost
	}
	return costs
}

// GetCostByProvider returns a breakdown of costs attributed to each
// provider. The returned map is a copy.
func (ct *CostTracker) GetCostByProvider() map[provider.Type]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	costs := make(map[provider.Type]float64, len(ct.ProviderCosts))
	for p, cost := range ct.ProviderCosts {
		costs[p] = cost
	}
	return costs
}

// GetCallHistory returns all recorded calls in chronological order.
// The returned slice is a copy.
func (ct *CostTracker) GetCallHistory() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	calls := make([]LLMCall, len(ct.Calls))
	copy(calls, ct.Calls)
	return calls
}

// GetCallCount returns the number of recorded calls.
func (ct *CostTracker) GetCallCount() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.Calls)
}

// GetTokenUsage returns total input and output token counts.
func (ct *CostTracker) GetTokenUsage() (inputTokens, outputTokens int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.InputTokens, ct.OutputTokens
}

// SetCustomPricing overrides pricing for a model. Useful for enterprise
// rates, new models, or catalog-driven pricing.
func (ct *CostTracker) SetCustomPricing(model string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.Pricing == nil {
		ct.Pricing = make(map[string]ModelPricing)
	}
	ct.Pricing[model] = ModelPricing{
		InputPer1M:  inputPer1M,
		OutputPer1M: outputPer1M,
	}
}

// Disable temporarily disables cost tracking (useful for testing).
func (ct *CostTracker) Disable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = false
}

// Enable re-enables cost tracking after Disable().
func (ct *CostTracker) Enable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = true
}

// Reset clears all recorded data and resets cumulative totals.
// Pricing configuration is preserved.
func (ct *CostTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.Calls = make([]LLMCall, 0, 100)
	ct.TotalCost = 0
	ct.ModelCosts = make(map[string]float64)
	ct.ProviderCosts = make(map[provider.Type]float64)
	ct.InputTokens = 0
	ct.OutputTokens = 0
}

// String returns a human-readable summary of cost tracking.
func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	return fmt.Sprintf(
		"CostTracker{Calls: %d, TotalCost: $%.4f %s, InputTokens: %d, OutputTokens: %d}",
		len(ct.Calls),
		ct.TotalCost,
		ct.Currency,
		ct.InputTokens,
		ct.OutputTokens,
	)
}
