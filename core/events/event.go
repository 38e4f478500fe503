package events

import (
	"sync"

	"shodeposit/core/types"
)

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. indexers, CLIs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Typed is implemented by events that can be rendered as a flat attribute map.
type Typed interface {
	Event
	Event() *types.Event
}

// Recorder keeps every emitted event in order.
type Recorder struct {
	mu     sync.Mutex
	events []*types.Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	typed, ok := evt.(Typed)
	if !ok {
		return
	}
	rendered := typed.Event()
	if rendered == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, rendered.Clone())
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Event, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Clone()
	}
	return out
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Buffer holds events until the operation that produced them is known to have
// succeeded.
type Buffer struct {
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.pending = append(b.pending, evt)
}

// Flush forwards buffered events to dst in emission order and empties the
// buffer.
func (b *Buffer) Flush(dst Emitter) {
	pending := b.pending
	b.pending = nil
	if dst == nil {
		return
	}
	for _, evt := range pending {
		dst.Emit(evt)
	}
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int { return len(b.pending) }
