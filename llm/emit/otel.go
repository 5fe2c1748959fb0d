package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by turning each event into an
// OpenTelemetry span:
//   - Span name: event.Msg (e.g. "provider_attempt", "request_complete")
//   - Attributes: request ID, provider, model, and all Meta fields under
//     the "aicoder." namespace
//   - Status: error when Meta["error"] is present
//
// Events mark points in time, so spans are ended immediately; durations
// travel as the "aicoder.duration_ms" attribute rather than span length.
//
// Usage:
//
//	tracer := otel.Tracer("ai-coder-assistant")
//	emitter := emit.NewOTelEmitter(tracer)
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter backed by the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records the event as an instant span.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("aicoder.request_id", event.RequestID),
		attribute.String("aicoder.provider", event.Provider),
		attribute.String("aicoder.model", event.Model),
	)
	addMetaAttributes(span, event.Meta)

	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}

// Flush forces export of buffered spans. Call before shutdown so the last
// requests are not lost in the batch processor.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// addMetaAttributes converts Meta entries into typed span attributes under
// the aicoder namespace. Token and cost keys map to fixed names so
// dashboards can rely on them.
func addMetaAttributes(span trace.Span, meta map[string]interface{}) {
	for key, value := range meta {
		attrKey := "aicoder." + key
		switch key {
		case "tokens_in":
			attrKey = "aicoder.llm.tokens_in"
		case "tokens_out":
			attrKey = "aicoder.llm.tokens_out"
		case "cost_usd":
			attrKey = "aicoder.llm.cost_usd"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
