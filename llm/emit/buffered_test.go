package emit

import (
	"sync"
	"testing"
)

func TestBufferedEmitterHistory(t *testing.T) {
	emitter := NewBufferedEmitter()

	emitter.Emit(Event{RequestID: "req-1", Provider: "openai", Msg: MsgRequestStart})
	emitter.Emit(Event{RequestID: "req-1", Provider: "openai", Msg: MsgProviderAttempt})
	emitter.Emit(Event{RequestID: "req-2", Provider: "ollama", Msg: MsgRequestStart})

	history := emitter.History("req-1")
	if len(history) != 2 {
		t.Fatalf("len = %d, want 2", len(history))
	}
	if history[0].Msg != MsgRequestStart || history[1].Msg != MsgProviderAttempt {
		t.Errorf("events out of order: %v, %v", history[0].Msg, history[1].Msg)
	}

	if got := emitter.History("missing"); len(got) != 0 {
		t.Errorf("unknown request should have empty history, got %d events", len(got))
	}
}

func TestBufferedEmitterHistoryIsACopy(t *testing.T) {
	emitter := NewBufferedEmitter()
	emitter.Emit(Event{RequestID: "req-1", Msg: MsgRequestStart})

	history := emitter.History("req-1")
	history[0].Msg = "mutated"

	if got := emitter.History("req-1")[0].Msg; got != MsgRequestStart {
		t.Errorf("internal state mutated through returned slice: %q", got)
	}
}

func TestBufferedEmitterFilter(t *testing.T) {
	emitter := NewBufferedEmitter()
	emitter.Emit(Event{RequestID: "req-1", Provider: "openai", Msg: MsgProviderAttempt})
	emitter.Emit(Event{RequestID: "req-1", Provider: "anthropic", Msg: MsgProviderAttempt})
	emitter.Emit(Event{RequestID: "req-1", Provider: "anthropic", Msg: MsgRequestComplete})

	got := emitter.HistoryWithFilter("req-1", Filter{Provider: "anthropic"})
	if len(got) != 2 {
		t.Errorf("provider filter: len = %d, want 2", len(got))
	}

	got = emitter.HistoryWithFilter("req-1", Filter{Provider: "anthropic", Msg: MsgProviderAttempt})
	if len(got) != 1 {
		t.Errorf("combined filter: len = %d, want 1", len(got))
	}
}

func TestBufferedEmitterClear(t *testing.T) {
	emitter := NewBufferedEmitter()
	emitter.Emit(Event{RequestID: "req-1", Msg: MsgRequestStart})
	emitter.Emit(Event{RequestID: "req-2", Msg: MsgRequestStart})

	emitter.Clear("req-1")
	if len(emitter.History("req-1")) != 0 {
		t.Error("req-1 should be cleared")
	}
	if len(emitter.History("req-2")) != 1 {
		t.Error("req-2 should survive a targeted clear")
	}

	emitter.Clear("")
	if len(emitter.RequestIDs()) != 0 {
		t.Error("empty-ID clear should drop everything")
	}
}

func TestBufferedEmitterConcurrent(t *testing.T) {
	emitter := NewBufferedEmitter()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				emitter.Emit(Event{RequestID: "shared", Msg: MsgProviderAttempt})
				emitter.History("shared")
			}
		}()
	}
	wg.Wait()

	if got := len(emitter.History("shared")); got != 500 {
		t.Errorf("len = %d, want 500", got)
	}
}
