package emit

// Emitter receives observability events from the router and the background
// services.
//
// Implementations must be safe for concurrent use and must not block:
// request latency should never depend on an observability backend. Emit
// must not panic; internal failures are swallowed or logged by the
// implementation itself.
type Emitter interface {
	Emit(event Event)
}

// MultiEmitter fans each event out to several backends, e.g. a JSONL file
// plus OpenTelemetry spans.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that forwards to each of emitters in
// order. Nil entries are skipped.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	kept := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			kept = append(kept, e)
		}
	}
	return &MultiEmitter{emitters: kept}
}

// Emit forwards the event to every configured backend.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}
