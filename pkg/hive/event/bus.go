package event

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Bus fans published events out to zero or more subscribers. Publish
// never blocks: a subscriber that cannot keep up loses its oldest
// queued events and is told so through SubscriberLag markers.
type Bus interface {
	// Publish delivers evt to every matching subscriber.
	Publish(ctx context.Context, evt Event) error

	// Subscribe attaches a handler for the named event types; an empty
	// types slice matches everything.
	Subscribe(types []string, handler Handler) Subscription

	// SubscribeAll attaches a handler for every event type.
	SubscribeAll(handler Handler) Subscription

	// Channel attaches a channel-based subscription for the named event
	// types; an empty types slice matches everything. The caller drains
	// Events() and calls Unsubscribe when done.
	Channel(types ...string) ChannelSubscription

	// Close tears down every subscription. Publish fails afterwards.
	Close() error
}

// Subscription is one attached observer.
type Subscription interface {
	// ID identifies the subscription, e.g. in SubscriberLag markers.
	ID() string

	// Unsubscribe detaches the observer and releases its buffer.
	Unsubscribe()
}

// ChannelSubscription exposes deliveries as a channel instead of a
// handler. Events() closes after Unsubscribe or bus Close.
type ChannelSubscription interface {
	Subscription
	Events() <-chan Event
}

// BusConfig tunes a LocalBus.
type BusConfig struct {
	// BufferSize bounds each subscriber's queue. Default 1024.
	BufferSize int

	// OnDrop observes each event dropped for a slow subscriber.
	OnDrop func(evt Event, subscriberID string)

	// OnError observes handler failures.
	OnError func(err *DeliveryError)
}

// DefaultBufferSize is the per-subscriber queue bound when BusConfig
// leaves BufferSize unset.
const DefaultBufferSize = 1024

// TypeSubscriberLag is the synthetic event type a subscriber receives in
// place of events dropped from its queue. Markers are synthesized from a
// counter held outside the queue, so they are never themselves dropped:
// they are the ground truth of loss.
const TypeSubscriberLag = "bus.subscriber_lag"

// SubscriberLagData is the payload of a TypeSubscriberLag event.
type SubscriberLagData struct {
	SubscriberID string `json:"subscriber_id"`

	// Dropped counts the events lost since the previous marker.
	Dropped int64 `json:"dropped"`
}

// LocalBus is the in-process Bus implementation.
type LocalBus struct {
	config BusConfig

	mu   sync.RWMutex
	subs map[string]*busSub

	nextID atomic.Int64
	closed atomic.Bool
}

// NewBus creates an in-process bus.
func NewBus(config BusConfig) *LocalBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	return &LocalBus{
		config: config,
		subs:   make(map[string]*busSub),
	}
}

// busSub is one subscriber: a bounded queue drained by its own
// goroutine, delivering either to a handler or to an exposed channel.
type busSub struct {
	id      string
	types   map[string]bool // nil matches every type
	handler Handler
	out     chan Event // channel mode; nil in handler mode

	queue chan Event
	done  chan struct{}
	once  sync.Once
	bus   *LocalBus

	// lagged counts drops since the last marker. Kept outside the queue
	// so the marker itself cannot be displaced.
	lagged atomic.Int64
}

// Publish implements Bus. It enqueues evt on every matching subscriber,
// displacing the oldest queued event when a queue is full.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.RLock()
	matched := make([]*busSub, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matches(evt.Type()) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		sub.enqueue(evt)
	}
	return nil
}

// Subscribe implements Bus.
func (b *LocalBus) Subscribe(types []string, handler Handler) Subscription {
	return b.attach(types, handler, false)
}

// SubscribeAll implements Bus.
func (b *LocalBus) SubscribeAll(handler Handler) Subscription {
	return b.attach(nil, handler, false)
}

// Channel implements Bus.
func (b *LocalBus) Channel(types ...string) ChannelSubscription {
	return b.attach(types, nil, true)
}

func (b *LocalBus) attach(types []string, handler Handler, channelMode bool) *busSub {
	sub := &busSub{
		id:      "sub-" + strconv.FormatInt(b.nextID.Add(1), 10),
		handler: handler,
		queue:   make(chan Event, b.config.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}
	if len(types) > 0 {
		sub.types = make(map[string]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	if channelMode {
		sub.out = make(chan Event)
	}

	if b.closed.Load() {
		// A subscription against a closed bus is inert: its channel is
		// already closed and nothing will ever be enqueued.
		sub.once.Do(func() { close(sub.done) })
		if sub.out != nil {
			close(sub.out)
		}
		return sub
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.deliver()
	return sub
}

// Close implements Bus.
func (b *LocalBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		sub.once.Do(func() { close(sub.done) })
		delete(b.subs, id)
	}
	return nil
}

func (s *busSub) matches(eventType string) bool {
	return s.types == nil || s.types[eventType]
}

// enqueue adds evt to the queue, displacing the oldest entry on
// overflow. Runs on the publisher's goroutine and never blocks it.
func (s *busSub) enqueue(evt Event) {
	for {
		select {
		case s.queue <- evt:
			return
		default:
		}
		select {
		case dropped := <-s.queue:
			s.lagged.Add(1)
			if s.bus.config.OnDrop != nil {
				s.bus.config.OnDrop(dropped, s.id)
			}
		default:
			// Lost the race with the delivery goroutine; the queue has
			// room again.
		}
	}
}

// deliver drains the queue, surfacing any accumulated loss as a marker
// ahead of the next regular event.
func (s *busSub) deliver() {
	for {
		select {
		case evt := <-s.queue:
			if n := s.lagged.Swap(0); n > 0 {
				s.dispatch(NewAny(TypeSubscriberLag, "event.bus", SubscriberLagData{
					SubscriberID: s.id,
					Dropped:      n,
				}))
			}
			s.dispatch(evt)
		case <-s.done:
			if s.out != nil {
				close(s.out)
			}
			return
		}
	}
}

func (s *busSub) dispatch(evt Event) {
	if s.out != nil {
		select {
		case s.out <- evt:
		case <-s.done:
		}
		return
	}
	if err := s.handler.Handle(context.Background(), evt); err != nil && s.bus.config.OnError != nil {
		s.bus.config.OnError(&DeliveryError{
			EventID:      evt.ID(),
			EventType:    evt.Type(),
			SubscriberID: s.id,
			Err:          err,
		})
	}
}

// ID implements Subscription.
func (s *busSub) ID() string { return s.id }

// Events implements ChannelSubscription.
func (s *busSub) Events() <-chan Event { return s.out }

// Unsubscribe implements Subscription.
func (s *busSub) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}
