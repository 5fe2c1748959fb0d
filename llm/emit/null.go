package emit

// NullEmitter implements Emitter by discarding all events. It is the
// default when no emitter is configured.
type NullEmitter struct{}

// NewNullEmitter creates an emitter that drops everything.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(event Event) {}
