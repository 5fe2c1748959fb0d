// Package emit provides observability events for request routing and the
// background services, with pluggable backends: writer-based logging,
// OpenTelemetry spans, an in-memory buffer for tests and dashboards, and
// a discard emitter.
package emit

// Standard event messages. Routing emits the request_* and provider_*
// events; background services emit the scan_* and task_* events.
const (
	MsgRequestStart     = "request_start"
	MsgProviderAttempt  = "provider_attempt"
	MsgProviderFallback = "provider_fallback"
	MsgRequestComplete  = "request_complete"
	MsgRequestError     = "request_error"
	MsgArchiveError     = "archive_error"
	MsgScanStart        = "scan_start"
	MsgScanComplete     = "scan_complete"
	MsgTaskStart        = "task_start"
	MsgTaskComplete     = "task_complete"
)

// Event is one observability record: a routing decision, a provider
// attempt, a finished request, or a background task transition.
//
// Events flow to an Emitter, which may log them, turn them into spans,
// or buffer them for inspection.
type Event struct {
	// RequestID correlates every event produced while serving one request.
	RequestID string

	// Provider names the vendor involved, empty for events that are not
	// tied to a provider (e.g. task_start).
	Provider string

	// Model is the model the event concerns, when known.
	Model string

	// Msg is the event type, normally one of the Msg* constants.
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "duration_ms": elapsed time in milliseconds
	//   - "error": failure details
	//   - "tokens_in", "tokens_out": token usage
	//   - "cost_usd": accounted cost of the call
	//   - "attempt": retry attempt number, starting at 0
	//   - "retryable": whether the recorded error can be retried
	Meta map[string]interface{}
}
