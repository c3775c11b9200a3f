// Package trace defines the fire-and-forget observability boundary: the
// executor emits one event per state transition and per capability outcome,
// and the emitter must never block or fail back into the engine. The tracing
// backend itself is an external collaborator; this package only carries
// events to it.
package trace

import (
	"time"

	"github.com/stratgov/researchgraph/core"
)

// Event is a single trace record. Events for one thread are emitted in the
// order the underlying transitions occur.
type Event struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	At       time.Time `json:"at"`

	// From/To describe a node transition; both empty for pure capability events.
	From core.Node `json:"from,omitempty"`
	To   core.Node `json:"to,omitempty"`

	Iteration int `json:"iteration,omitempty"`

	// Invocation is attached for capability call outcomes.
	Invocation *core.Invocation `json:"invocation,omitempty"`
	// Error is attached when the transition was driven by a failure.
	Error *core.ErrorContext `json:"error,omitempty"`

	Note string `json:"note,omitempty"`
}

// Emitter receives trace events. Implementations must return immediately and
// must not panic: the executor calls Emit inline on its hot path.
type Emitter interface {
	Emit(ev Event)
}

// NoOpEmitter discards all events. The default when tracing is not wired.
type NoOpEmitter struct{}

// Emit discards the event.
func (NoOpEmitter) Emit(Event) {}

// ChannelEmitter forwards events to a buffered channel, dropping on a full
// buffer rather than blocking the executor. The consumer owns draining.
type ChannelEmitter struct {
	ch chan Event
}

// NewChannelEmitter creates an emitter with the given buffer size.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelEmitter{ch: make(chan Event, buffer)}
}

// Emit enqueues the event, dropping it when the buffer is full.
func (e *ChannelEmitter) Emit(ev Event) {
	select {
	case e.ch <- ev:
	default:
		// Observability must never apply backpressure to the engine.
	}
}

// Events exposes the consumer side of the channel.
func (e *ChannelEmitter) Events() <-chan Event { return e.ch }

// Close closes the underlying channel. Emit must not be called afterwards.
func (e *ChannelEmitter) Close() { close(e.ch) }
