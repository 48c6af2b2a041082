package engine

import (
	"sync"

	"routines/runtime-go/pkg/interpreter"
)

// EventKind classifies an Event.
type EventKind string

const (
	EventStatus      EventKind = "status"
	EventMessage     EventKind = "message"
	EventInformation EventKind = "information"
	EventError       EventKind = "error"
)

// Event is one entry of the ordered stream a session produces.
type Event struct {
	Kind    EventKind
	Session string
	FrameID string
	Routine string
	// Status is set on status events.
	Status interpreter.ExecutionState
	Text   string
}

// Sink receives events in the order they happen. Emit is called from the
// goroutine driving the session and must not block for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

type nopSink struct{}

func (nopSink) Emit(Event) {}

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns only the recorded event kinds, in order.
func (r *Recorder) Kinds() []EventKind {
	events := r.Events()
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}
