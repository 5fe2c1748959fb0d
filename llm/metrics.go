package llm

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for
// request routing in production environments.
//
// Metrics exposed (all namespaced with "aicoder_"):
//
//  1. llm_requests_total (counter): Completed requests.
//     Labels: provider, model, operation, status (ok/error).
//
//  2. llm_request_duration_ms (histogram): End-to-end request duration,
//     including retries and failover.
//     Labels: provider, model, operation.
//     Buckets span 10ms to 60s to cover local daemons and slow completions.
//
//  3. llm_tokens_input_total / llm_tokens_output_total (counter): Token
//     consumption. Labels: provider, model.
//
//  4. llm_cost_usd_total (counter): Accounted spend in USD.
//     Labels: provider, model.
//
//  5. llm_fallbacks_total (counter): Failovers away from a provider.
//     Labels: provider (the one that failed), reason (error code).
//
//  6. llm_inflight_requests (gauge): Requests currently being served.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := NewPrometheusMetrics(registry)
//	mgr, _ := llm.New(cat, llm.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: the underlying Prometheus collectors handle concurrency.
type PrometheusMetrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	tokensIn  *prometheus.CounterVec
	tokensOut *prometheus.CounterVec
	cost      *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	inflight  prometheus.Gauge

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all routing metrics with the
// provided registry. Pass nil to use the default global registry;
// a private registry is recommended for isolation and for tests.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.requests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aicoder",
		Name:      "llm_requests_total",
		Help:      "Completed LLM requests by provider, model, operation, and status",
	}, []string{"provider", "model", "operation", "status"})

	pm.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aicoder",
		Name:      "llm_request_duration_ms",
		Help:      "End-to-end request duration in milliseconds, including retries and failover",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	}, []string{"provider", "model", "operation"})

	pm.tokensIn = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aicoder",
		Name:      "llm_tokens_input_total",
		Help:      "Cumulative input tokens consumed",
	}, []string{"provider", "model"})

	pm.tokensOut = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aicoder",
		Name:      "llm_tokens_output_total",
		Help:      "Cumulative output tokens generated",
	}, []string{"provider", "model"})

	pm.cost = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aicoder",
		Name:      "llm_cost_usd_total",
		Help:      "Accounted LLM spend in USD",
	}, []string{"provider", "model"})

	pm.fallbacks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aicoder",
		Name:      "llm_fallbacks_total",
		Help:      "Requests that failed over away from a provider, by error code",
	}, []string{"provider", "reason"})

	pm.inflight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "aicoder",
		Name:      "llm_inflight_requests",
		Help:      "Requests currently being served",
	})

	return pm
}

// RecordRequest records one completed request: its counter by status and
// its duration histogram.
//
// Parameters:
//   - providerName: adapter that produced the final outcome
//   - model: model used for the final attempt
//   - operation: "chat", "complete", or "embed"
//   - status: "ok" or "error"
//   - duration: end-to-end wall time
func (pm *PrometheusMetrics) RecordRequest(providerName, model, operation, status string, duration time.Duration) {
	if !pm.isEnabled() {
		return
	}

	pm.requests.WithLabelValues(providerName, model, operation, status).Inc()
	pm.duration.WithLabelValues(providerName, model, operation).Observe(float64(duration.Milliseconds()))
}

// AddTokens adds token usage for one call.
func (pm *PrometheusMetrics) AddTokens(providerName, model string, inputTokens, outputTokens int64) {
	if !pm.isEnabled() {
		return
	}

	pm.tokensIn.WithLabelValues(providerName, model).Add(float64(inputTokens))
	pm.tokensOut.WithLabelValues(providerName, model).Add(float64(outputTokens))
}

// AddCost adds accounted spend for one call.
func (pm *PrometheusMetrics) AddCost(providerName, model string, costUSD float64) {
	if !pm.isEnabled() {
		return
	}

	pm.cost.WithLabelValues(providerName, model).Add(costUSD)
}

// IncrementFallback records that a request moved on from providerName
// because of the given error code.
func (pm *PrometheusMetrics) IncrementFallback(providerName, reason string) {
	if !pm.isEnabled() {
		return
	}

	pm.fallbacks.WithLabelValues(providerName, reason).Inc()
}

// IncInflight marks a request as started.
func (pm *PrometheusMetrics) IncInflight() {
	if !pm.isEnabled() {
		return
	}
	pm.inflight.Inc()
}

// DecInflight marks a request as finished.
func (pm *PrometheusMetrics) DecInflight() {
	if !pm.isEnabled() {
		return
	}
	pm.inflight.Dec()
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
