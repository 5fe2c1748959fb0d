// Package llm routes LLM requests across multiple providers with retries,
// priority failover, and cost accounting.
//
// A Manager resolves each request's model to a provider through the
// catalog, calls the registered adapter with per-provider retries, and on
// exhaustion fails over to the next enabled provider in priority order,
// substituting that provider's own configured model. Every request is
// accounted (tokens, USD cost, latency) in a rolling in-memory history and
// optionally archived to a store backend, with observability events
// flowing to an emit.Emitter and optional Prometheus metrics.
//
// Basic usage:
//
//	cat, _ := catalog.Load("~/.config/aicoder/llm.json")
//	oa, _ := openai.New(os.Getenv("OPENAI_API_KEY"))
//	mgr, _ := llm.New(cat, llm.WithProvider(oa))
//	res, err := mgr.Chat(ctx, provider.ChatRequest{
//	    Model:    "gpt-4o-mini",
//	    Messages: []provider.Message{{Role: provider.RoleUser, Content: "hello"}},
//	})
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/catalog"
	"github.com/oldnordic/ai-coder-assistant-sub001/llm/emit"
	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
	"github.com/oldnordic/ai-coder-assistant-sub001/llm/store"
)

// Operation names used for routing, accounting, and metrics labels.
const (
	opChat     = "chat"
	opComplete = "complete"
	opEmbed    = "embed"
)

// Manager routes chat, completion, and embedding requests to provider
// adapters.
//
// Routing: the requested model is resolved to a provider via the catalog
// (explicit registration first, then name inference). That provider is
// tried with the configured retry policy. If it fails and failover is
// enabled, the remaining enabled providers are tried in priority order;
// each fallback provider serves the request with its own first catalog
// model that supports the operation, since model names do not transfer
// across vendors.
//
// Failures rooted in the request itself (bad request, content filtered)
// stop failover immediately: no other provider can serve them and each
// extra attempt costs money.
//
// All methods are safe for concurrent use.
type Manager struct {
	catalog      *catalog.Catalog
	retry        RetryPolicy
	tracker      *CostTracker
	metrics      *PrometheusMetrics
	emitter      emit.Emitter
	archive      store.Store
	historyLimit int
	failover     bool

	mu        sync.RWMutex
	providers map[provider.Type]provider.Provider
	closed    bool

	histMu     sync.Mutex
	history    []store.Record
	nextHistID int64
}

// New creates a Manager bound to a catalog. A nil catalog is replaced
// with an empty in-memory one, which is only useful in tests.
func New(cat *catalog.Catalog, opts ...Option) (*Manager, error) {
	if cat == nil {
		cat = catalog.New()
	}

	cfg := defaultManagerConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.tracker == nil {
		cfg.tracker = NewCostTracker("USD")
	}
	if cfg.emitter == nil {
		cfg.emitter = emit.NewNullEmitter()
	}

	return &Manager{
		catalog:      cat,
		retry:        cfg.retry,
		tracker:      cfg.tracker,
		metrics:      cfg.metrics,
		emitter:      cfg.emitter,
		archive:      cfg.archive,
		historyLimit: cfg.historyLimit,
		failover:     cfg.failover,
		providers:    cfg.providers,
	}, nil
}

// RegisterProvider adds or replaces a provider adapter at runtime.
func (m *Manager) RegisterProvider(p provider.Provider) error {
	if p == nil {
		return fmt.Errorf("RegisterProvider: provider is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	m.providers[p.Name()] = p
	return nil
}

// Providers returns the registered provider types, sorted.
func (m *Manager) Providers() []provider.Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]provider.Type, 0, len(m.providers))
	for t := range m.providers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Catalog returns the provider and model registry this manager routes
// with. Mutations through it take effect on the next request.
func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

// Costs returns the tracker accounting this manager's token usage and
// spend.
func (m *Manager) Costs() *CostTracker {
	return m.tracker
}

// Chat routes a multi-turn conversation to the model's provider, failing
// over per the manager configuration. Generation knobs the caller left
// unset are filled from the model's catalog entry.
func (m *Manager) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	var res *provider.ChatResponse
	err := m.execute(ctx, opChat, req.Model, func(ctx context.Context, c candidate) (provider.Usage, error) {
		r := req
		r.Model = c.model
		r.Options = applyModelDefaults(r.Options, c)
		out, err := c.prov.Chat(ctx, r)
		if err != nil {
			return provider.Usage{}, err
		}
		res = out
		return out.Usage, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Complete routes a single-prompt completion.
func (m *Manager) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	var res *provider.CompletionResponse
	err := m.execute(ctx, opComplete, req.Model, func(ctx context.Context, c candidate) (provider.Usage, error) {
		r := req
		r.Model = c.model
		r.Options = applyModelDefaults(r.Options, c)
		out, err := c.prov.Complete(ctx, r)
		if err != nil {
			return provider.Usage{}, err
		}
		res = out
		return out.Usage, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Embed routes an embedding request. Fallback candidates are limited to
// providers with a catalog model marked SupportsEmbedding.
func (m *Manager) Embed(ctx context.Context, req provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	var res *provider.EmbeddingResponse
	err := m.execute(ctx, opEmbed, req.Model, func(ctx context.Context, c candidate) (provider.Usage, error) {
		r := req
		r.Model = c.model
		out, err := c.prov.Embed(ctx, r)
		if err != nil {
			return provider.Usage{}, err
		}
		res = out
		return out.Usage, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// History returns the most recent request records, newest first. A
// non-positive limit returns the whole rolling window.
func (m *Manager) History(limit int) []store.Record {
	m.histMu.Lock()
	defer m.histMu.Unlock()

	n := len(m.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]store.Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.history[i])
	}
	return out
}

// Usage summarizes the successfully accounted calls: request count, token
// totals, and spend. Failed requests appear in History but not here.
func (m *Manager) Usage() store.Totals {
	in, out := m.tracker.GetTokenUsage()
	return store.Totals{
		Requests:     int64(m.tracker.GetCallCount()),
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      m.tracker.GetTotalCost(),
	}
}

// Close stops the manager. In-flight requests finish; new requests fail
// with ErrManagerClosed. The archive store, if any, belongs to the caller
// and is not closed here.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// candidate pairs a provider adapter with the model and configuration it
// will serve a request with.
type candidate struct {
	cfg      catalog.ProviderConfig
	prov     provider.Provider
	model    string
	modelCfg catalog.ModelConfig
	hasModel bool
}

func (m *Manager) guard() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrManagerClosed
	}
	return nil
}

func (m *Manager) providerFor(t provider.Type) provider.Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[t]
}

// candidates builds the ordered provider list for one request: the
// model's own provider first, then, when failover is on, the remaining
// enabled providers by ascending priority, each with its first catalog
// model capable of the operation.
func (m *Manager) candidates(model, op string) ([]candidate, error) {
	primary, ok := m.catalog.ResolveProvider(model)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}

	var out []candidate
	if primary.Enabled {
		if p := m.providerFor(primary.Type); p != nil {
			mc, hasMC := m.catalog.Model(model)
			out = append(out, candidate{cfg: primary, prov: p, model: model, modelCfg: mc, hasModel: hasMC})
		}
	}

	if m.failover {
		for _, cfg := range m.catalog.EnabledProviders() {
			if cfg.Type == primary.Type {
				continue
			}
			p := m.providerFor(cfg.Type)
			if p == nil {
				continue
			}
			mc, found := m.fallbackModel(cfg.Type, op)
			if !found {
				continue
			}
			out = append(out, candidate{cfg: cfg, prov: p, model: mc.Name, modelCfg: mc, hasModel: true})
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w for model %q", ErrNoProviders, model)
	}
	return out, nil
}

// fallbackModel picks the substitute model a fallback provider serves the
// operation with: its first catalog model (name order) that supports it.
func (m *Manager) fallbackModel(t provider.Type, op string) (catalog.ModelConfig, bool) {
	for _, mc := range m.catalog.ModelsFor(t) {
		if op == opEmbed {
			if mc.SupportsEmbedding {
				return mc, true
			}
			continue
		}
		if mc.SupportsChat {
			return mc, true
		}
	}
	return catalog.ModelConfig{}, false
}

// execute runs the full request lifecycle: candidate selection, retries,
// failover, accounting, history, and events. call performs one provider
// invocation and returns its token usage.
func (m *Manager) execute(ctx context.Context, op, model string, call func(context.Context, candidate) (provider.Usage, error)) error {
	if err := m.guard(); err != nil {
		return err
	}

	reqID := uuid.NewString()
	start := time.Now()

	m.emitter.Emit(emit.Event{
		RequestID: reqID,
		Model:     model,
		Msg:       emit.MsgRequestStart,
		Meta:      map[string]interface{}{"operation": op},
	})
	if m.metrics != nil {
		m.metrics.IncInflight()
		defer m.metrics.DecInflight()
	}

	cands, err := m.candidates(model, op)
	if err != nil {
		m.emitter.Emit(emit.Event{
			RequestID: reqID,
			Model:     model,
			Msg:       emit.MsgRequestError,
			Meta:      map[string]interface{}{"error": err.Error(), "duration_ms": time.Since(start).Milliseconds()},
		})
		return err
	}

	var attempts []Attempt
	for i, cand := range cands {
		if i > 0 {
			prev := attempts[len(attempts)-1]
			if m.metrics != nil {
				m.metrics.IncrementFallback(string(prev.Provider), errCode(prev.Err))
			}
			m.emitter.Emit(emit.Event{
				RequestID: reqID,
				Provider:  string(cand.cfg.Type),
				Model:     cand.model,
				Msg:       emit.MsgProviderFallback,
				Meta: map[string]interface{}{
					"from":  string(prev.Provider),
					"error": prev.Err.Error(),
				},
			})
		}

		usage, err := m.attempt(ctx, reqID, op, cand, call)
		if err == nil {
			m.finishOK(ctx, reqID, op, cand, usage, start)
			return nil
		}

		attempts = append(attempts, Attempt{Provider: cand.cfg.Type, Model: cand.model, Err: err})

		if ctx.Err() != nil || fatal(err) {
			break
		}
	}

	ferr := &FailoverError{Operation: op, Model: model, Attempts: attempts}
	m.finishErr(ctx, reqID, op, attempts[len(attempts)-1], ferr, start)
	return ferr
}

// attempt calls one candidate with the retry policy, honoring the
// provider's own retry budget and per-request timeout when configured.
func (m *Manager) attempt(ctx context.Context, reqID, op string, cand candidate, call func(context.Context, candidate) (provider.Usage, error)) (provider.Usage, error) {
	maxAttempts := m.retry.MaxAttempts
	if cand.cfg.MaxRetries > 0 {
		maxAttempts = cand.cfg.MaxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, m.retry.BaseDelay, m.retry.MaxDelay)
			select {
			case <-ctx.Done():
				return provider.Usage{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		m.emitter.Emit(emit.Event{
			RequestID: reqID,
			Provider:  string(cand.cfg.Type),
			Model:     cand.model,
			Msg:       emit.MsgProviderAttempt,
			Meta:      map[string]interface{}{"attempt": attempt, "operation": op},
		})

		attemptCtx := ctx
		cancel := func() {}
		if cand.cfg.TimeoutSeconds > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(cand.cfg.TimeoutSeconds)*time.Second)
		}
		usage, err := call(attemptCtx, cand)
		cancel()
		if err == nil {
			return usage, nil
		}
		lastErr = err

		if !m.retry.retryable(err) {
			break
		}
	}
	return provider.Usage{}, lastErr
}

func (m *Manager) finishOK(ctx context.Context, reqID, op string, cand candidate, usage provider.Usage, start time.Time) {
	latency := time.Since(start)

	// Catalog pricing, when present, overrides the tracker's static table.
	if cand.hasModel && (cand.modelCfg.InputCostPer1M > 0 || cand.modelCfg.OutputCostPer1M > 0) {
		m.tracker.SetCustomPricing(cand.model, cand.modelCfg.InputCostPer1M, cand.modelCfg.OutputCostPer1M)
	}
	cost := m.tracker.RecordCall(cand.cfg.Type, cand.model, op, usage)

	if m.metrics != nil {
		m.metrics.RecordRequest(string(cand.cfg.Type), cand.model, op, store.StatusOK, latency)
		m.metrics.AddTokens(string(cand.cfg.Type), cand.model, usage.InputTokens, usage.OutputTokens)
		m.metrics.AddCost(string(cand.cfg.Type), cand.model, cost)
	}

	m.saveRecord(ctx, store.Record{
		RequestID:    reqID,
		Provider:     string(cand.cfg.Type),
		Model:        cand.model,
		Operation:    op,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		LatencyMS:    latency.Milliseconds(),
		Status:       store.StatusOK,
		CreatedAt:    time.Now().UTC(),
	})

	m.emitter.Emit(emit.Event{
		RequestID: reqID,
		Provider:  string(cand.cfg.Type),
		Model:     cand.model,
		Msg:       emit.MsgRequestComplete,
		Meta: map[string]interface{}{
			"duration_ms": latency.Milliseconds(),
			"tokens_in":   usage.InputTokens,
			"tokens_out":  usage.OutputTokens,
			"cost_usd":    cost,
		},
	})
}

func (m *Manager) finishErr(ctx context.Context, reqID, op string, last Attempt, ferr *FailoverError, start time.Time) {
	latency := time.Since(start)

	if m.metrics != nil {
		m.metrics.RecordRequest(string(last.Provider), last.Model, op, store.StatusError, latency)
	}

	m.saveRecord(ctx, store.Record{
		RequestID: reqID,
		Provider:  string(last.Provider),
		Model:     last.Model,
		Operation: op,
		LatencyMS: latency.Milliseconds(),
		Status:    store.StatusError,
		Error:     ferr.Error(),
		CreatedAt: time.Now().UTC(),
	})

	m.emitter.Emit(emit.Event{
		RequestID: reqID,
		Provider:  string(last.Provider),
		Model:     last.Model,
		Msg:       emit.MsgRequestError,
		Meta: map[string]interface{}{
			"error":       ferr.Error(),
			"duration_ms": latency.Milliseconds(),
			"retryable":   provider.IsRetryable(last.Err),
		},
	})
}

// saveRecord appends to the rolling in-memory history and, when an
// archive store is configured, persists the record there. Archival is
// detached from request cancellation so a canceled request still gets a
// record; archive failures are emitted, never returned.
func (m *Manager) saveRecord(ctx context.Context, rec store.Record) {
	m.histMu.Lock()
	if m.historyLimit > 0 {
		m.nextHistID++
		rec.ID = m.nextHistID
		m.history = append(m.history, rec)
		if len(m.history) > m.historyLimit {
			m.history = m.history[len(m.history)-m.historyLimit:]
		}
	}
	m.histMu.Unlock()

	if m.archive == nil {
		return
	}
	arec := rec
	arec.ID = 0
	if err := m.archive.SaveRecord(context.WithoutCancel(ctx), &arec); err != nil {
		m.emitter.Emit(emit.Event{
			RequestID: rec.RequestID,
			Provider:  rec.Provider,
			Model:     rec.Model,
			Msg:       emit.MsgArchiveError,
			Meta:      map[string]interface{}{"error": err.Error()},
		})
	}
}

// applyModelDefaults fills generation knobs the caller left unset from
// the candidate's catalog model entry.
func applyModelDefaults(opts provider.Options, c candidate) provider.Options {
	if !c.hasModel {
		return opts
	}
	if opts.Temperature == nil && c.modelCfg.Temperature != nil {
		t := *c.modelCfg.Temperature
		opts.Temperature = &t
	}
	if opts.MaxTokens == nil && c.modelCfg.MaxTokens > 0 {
		mt := c.modelCfg.MaxTokens
		opts.MaxTokens = &mt
	}
	return opts
}

// fatal reports failures rooted in the request itself, where failover to
// another provider cannot help.
func fatal(err error) bool {
	var pe *provider.Error
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case provider.CodeBadRequest, provider.CodeContentFiltered:
		return true
	}
	return false
}

// errCode extracts the provider error code for metrics labels.
func errCode(err error) string {
	var pe *provider.Error
	if errors.As(err, &pe) {
		return string(pe.Code)
	}
	return string(provider.CodeUnknown)
}
