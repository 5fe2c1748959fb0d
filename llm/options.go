package llm

import (
	"fmt"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/emit"
	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
	"github.com/oldnordic/ai-coder-assistant-sub001/llm/store"
)

// Option is a functional option for configuring a Manager.
//
// Options are applied in order by New, so later options override earlier
// ones. An option that fails (nil provider, invalid retry policy) aborts
// construction.
//
// Example:
//
//	mgr, err := llm.New(cat,
//	    llm.WithProvider(openaiAdapter),
//	    llm.WithProvider(ollamaAdapter),
//	    llm.WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second}),
//	    llm.WithEmitter(emit.NewLogEmitter(nil, true)),
//	)
type Option func(*managerConfig) error

// managerConfig collects options before they are applied to a Manager.
type managerConfig struct {
	providers    map[provider.Type]provider.Provider
	retry        RetryPolicy
	tracker      *CostTracker
	metrics      *PrometheusMetrics
	emitter      emit.Emitter
	archive      store.Store
	historyLimit int
	failover     bool
}

func defaultManagerConfig() managerConfig {
	return managerConfig{
		providers:    make(map[provider.Type]provider.Provider),
		retry:        DefaultRetryPolicy(),
		historyLimit: 1000,
		failover:     true,
	}
}

// WithProvider registers a provider adapter under the type it reports via
// Name(). Registering a second adapter with the same type replaces the
// first.
//
// A catalog entry alone does not make a provider routable; the adapter
// must also be registered here (or later via Manager.RegisterProvider).
func WithProvider(p provider.Provider) Option {
	return func(cfg *managerConfig) error {
		if p == nil {
			return fmt.Errorf("WithProvider: provider is nil")
		}
		cfg.providers[p.Name()] = p
		return nil
	}
}

// WithRetryPolicy sets the per-provider retry behavior.
//
// Default: DefaultRetryPolicy() (3 attempts, 500ms base, 10s cap).
func WithRetryPolicy(rp RetryPolicy) Option {
	return func(cfg *managerConfig) error {
		if err := rp.Validate(); err != nil {
			return fmt.Errorf("WithRetryPolicy: %w", err)
		}
		cfg.retry = rp
		return nil
	}
}

// WithCostTracker sets the tracker that accounts token usage and spend.
// Use this to share one tracker across managers or to preload custom
// pricing.
//
// Default: a fresh NewCostTracker("USD").
func WithCostTracker(ct *CostTracker) Option {
	return func(cfg *managerConfig) error {
		if ct == nil {
			return fmt.Errorf("WithCostTracker: tracker is nil")
		}
		cfg.tracker = ct
		return nil
	}
}

// WithMetrics enables Prometheus metrics recording.
//
// Default: no metrics.
func WithMetrics(pm *PrometheusMetrics) Option {
	return func(cfg *managerConfig) error {
		cfg.metrics = pm
		return nil
	}
}

// WithEmitter sets the observability emitter that receives request,
// attempt, and failover events.
//
// Default: emit.NewNullEmitter() (events are discarded).
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *managerConfig) error {
		if e == nil {
			e = emit.NewNullEmitter()
		}
		cfg.emitter = e
		return nil
	}
}

// WithStore sets a persistent archive for usage records. Every request,
// successful or failed, is saved there in addition to the in-memory
// rolling history. Archive write failures are reported through the
// emitter but never fail the request.
//
// The caller owns the store's lifecycle; Manager.Close does not close it.
//
// Default: no archive (in-memory history only).
func WithStore(st store.Store) Option {
	return func(cfg *managerConfig) error {
		cfg.archive = st
		return nil
	}
}

// WithHistoryLimit bounds the in-memory rolling request history. Once the
// limit is reached, the oldest records are dropped. Zero or negative
// disables the in-memory history entirely.
//
// Default: 1000.
func WithHistoryLimit(n int) Option {
	return func(cfg *managerConfig) error {
		cfg.historyLimit = n
		return nil
	}
}

// WithFailover controls whether a request may move to other enabled
// providers after its own provider's retries are exhausted. With failover
// disabled the request is pinned to the provider that serves its model.
//
// Default: enabled.
func WithFailover(enabled bool) Option {
	return func(cfg *managerConfig) error {
		cfg.failover = enabled
		return nil
	}
}
