package event

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Publish after the bus has shut down.
var ErrClosed = errors.New("event: bus closed")

// DeliveryError describes a handler failure for one delivered event. It
// is passed to the bus's OnError hook; delivery of later events is not
// affected.
type DeliveryError struct {
	EventID      string
	EventType    string
	SubscriberID string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("event %s (%s) to subscriber %s: %v", e.EventID, e.EventType, e.SubscriberID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
