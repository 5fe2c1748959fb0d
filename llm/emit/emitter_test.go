package emit

import "testing"

func TestMultiEmitterFanOut(t *testing.T) {
	first := NewBufferedEmitter()
	second := NewBufferedEmitter()
	multi := NewMultiEmitter(first, nil, second)

	multi.Emit(Event{RequestID: "req-1", Msg: MsgRequestStart})

	if len(first.History("req-1")) != 1 {
		t.Error("first backend should receive the event")
	}
	if len(second.History("req-1")) != 1 {
		t.Error("second backend should receive the event")
	}
}

func TestNullEmitterDiscards(t *testing.T) {
	emitter := NewNullEmitter()
	// Must not panic or block.
	emitter.Emit(Event{RequestID: "req-1", Msg: MsgRequestStart})
	emitter.Emit(Event{})
}
