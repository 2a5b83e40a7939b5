package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one published occurrence. Events are immutable after
// creation; the payload carries the execution envelope (execution id,
// stream id, sequence number) alongside type-specific fields.
type Event interface {
	// ID is the unique event identifier.
	ID() string

	// Type names the event variant, e.g. "node.completed".
	Type() string

	// Source names the component that published the event.
	Source() string

	// Timestamp is when the event was created.
	Timestamp() time.Time

	// Data is the payload as constructed.
	Data() any

	// DataBytes is the payload serialized to JSON for transport.
	DataBytes() []byte
}

// Header carries the identity fields shared by every event.
type Header struct {
	EventID     string    `json:"id"`
	EventType   string    `json:"type"`
	EventSource string    `json:"source"`
	At          time.Time `json:"ts"`
}

// TypedEvent is the Event implementation the runtime publishes. T is the
// payload type; DataBytes serializes it lazily and caches the result.
type TypedEvent[T any] struct {
	Header  Header `json:"header"`
	Payload T      `json:"payload"`

	raw []byte
}

// New creates an event of eventType from source carrying payload.
func New[T any](eventType, source string, payload T) *TypedEvent[T] {
	return &TypedEvent[T]{
		Header: Header{
			EventID:     uuid.New().String(),
			EventType:   eventType,
			EventSource: source,
			At:          time.Now().UTC(),
		},
		Payload: payload,
	}
}

// NewAny creates an event with an untyped payload.
func NewAny(eventType, source string, payload any) *TypedEvent[any] {
	return New[any](eventType, source, payload)
}

func (e *TypedEvent[T]) ID() string           { return e.Header.EventID }
func (e *TypedEvent[T]) Type() string         { return e.Header.EventType }
func (e *TypedEvent[T]) Source() string       { return e.Header.EventSource }
func (e *TypedEvent[T]) Timestamp() time.Time { return e.Header.At }
func (e *TypedEvent[T]) Data() any            { return e.Payload }

// DataBytes serializes the payload once and caches it. Serialization
// failures yield nil; the payload types the runtime publishes are all
// plain structs and maps.
func (e *TypedEvent[T]) DataBytes() []byte {
	if e.raw == nil {
		e.raw, _ = json.Marshal(e.Payload)
	}
	return e.raw
}

// Handler consumes delivered events. Handlers run on the subscriber's
// own delivery goroutine, never on the publisher's.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Decode unmarshals an event's payload into out, for observers working
// with the wire shape rather than the in-process payload value.
func Decode(evt Event, out any) error {
	return json.Unmarshal(evt.DataBytes(), out)
}
