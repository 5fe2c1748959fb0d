package emit

import "sync"

// BufferedEmitter implements Emitter by holding events in memory, keyed by
// request ID, with query support. It exists for tests, debugging, and
// in-process dashboards.
//
// Everything stays in memory, so long-lived processes should Clear
// finished requests or use a persistent store for history instead.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // request ID -> events in emit order
}

// Filter selects events from a request's history. Empty fields match
// everything; set fields combine with AND.
type Filter struct {
	Provider string
	Model    string
	Msg      string
}

// NewBufferedEmitter creates an empty in-memory emitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores the event under its request ID.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RequestID] = append(b.events[event.RequestID], event)
}

// History returns all events for a request in emit order. The returned
// slice is a copy.
func (b *BufferedEmitter) History(requestID string) []Event {
	return b.HistoryWithFilter(requestID, Filter{})
}

// HistoryWithFilter returns the events for a request that match the
// filter, in emit order.
func (b *BufferedEmitter) HistoryWithFilter(requestID string, filter Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[requestID]
	result := make([]Event, 0, len(events))
	for _, event := range events {
		if filter.Provider != "" && event.Provider != filter.Provider {
			continue
		}
		if filter.Model != "" && event.Model != filter.Model {
			continue
		}
		if filter.Msg != "" && event.Msg != filter.Msg {
			continue
		}
		result = append(result, event)
	}
	return result
}

// RequestIDs returns the IDs of all requests with buffered events, in no
// particular order.
func (b *BufferedEmitter) RequestIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.events))
	for id := range b.events {
		ids = append(ids, id)
	}
	return ids
}

// Clear drops buffered events. A non-empty requestID clears one request;
// an empty requestID clears everything.
func (b *BufferedEmitter) Clear(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if requestID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, requestID)
}
