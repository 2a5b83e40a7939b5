// Package event is the runtime's typed publish/subscribe surface.
//
// The executor publishes lifecycle and progress events (execution and
// node transitions, LLM deltas, tool calls, checkpoints) to a Bus;
// external observers attach with handler- or channel-based
// subscriptions, optionally filtered by event type.
//
// Delivery contract: publishers never block. Each subscriber owns a
// bounded buffer; when it fills, the oldest queued event is dropped and
// the subscriber receives a synthetic SubscriberLag marker ahead of its
// next event, carrying the number of events lost. Markers are tracked
// outside the buffer and are never themselves dropped. Events of one
// execution arrive in publish order; the bus stores nothing durably —
// durability belongs to the checkpoint store.
package event
