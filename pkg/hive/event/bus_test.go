package event_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hive-run/graphrt/pkg/hive/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_TypeFilteredSubscription(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.Subscribe([]string{"node.completed"}, event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		received.Add(1)
		return nil
	}))
	defer sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), event.NewAny("node.completed", "test", nil)))
	require.NoError(t, bus.Publish(context.Background(), event.NewAny("node.started", "test", nil)))

	require.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load(), "non-matching type must not be delivered")
}

func TestBus_SubscribeAllReceivesEverything(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.SubscribeAll(event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		received.Add(1)
		return nil
	}))
	defer sub.Unsubscribe()

	for _, typ := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(context.Background(), event.NewAny(typ, "test", nil)))
	}
	require.Eventually(t, func() bool { return received.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestBus_SubscribeBeforePublishDeliversExactlyOnce(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var mu sync.Mutex
	var ids []string
	sub := bus.SubscribeAll(event.HandlerFunc(func(_ context.Context, evt event.Event) error {
		mu.Lock()
		ids = append(ids, evt.ID())
		mu.Unlock()
		return nil
	}))
	defer sub.Unsubscribe()

	evt := event.NewAny("x", "test", nil)
	require.NoError(t, bus.Publish(context.Background(), evt))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, evt.ID(), ids[0])
}

func TestBus_DeliveryPreservesPublishOrder(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var mu sync.Mutex
	var types []string
	sub := bus.SubscribeAll(event.HandlerFunc(func(_ context.Context, evt event.Event) error {
		mu.Lock()
		types = append(types, evt.Type())
		mu.Unlock()
		return nil
	}))
	defer sub.Unsubscribe()

	want := []string{"e1", "e2", "e3", "e4", "e5"}
	for _, typ := range want {
		require.NoError(t, bus.Publish(context.Background(), event.NewAny(typ, "test", nil)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(types) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, types)
}

func TestBus_ChannelSubscription(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	sub := bus.Channel("node.completed")
	require.NoError(t, bus.Publish(context.Background(), event.NewAny("node.completed", "test", nil)))

	select {
	case evt := <-sub.Events():
		assert.Equal(t, "node.completed", evt.Type())
	case <-time.After(time.Second):
		t.Fatal("event not delivered to channel")
	}

	sub.Unsubscribe()
	_, open := <-sub.Events()
	assert.False(t, open, "Events() must close after Unsubscribe")
}

func TestBus_SlowSubscriberGetsLagMarker(t *testing.T) {
	var droppedCount atomic.Int32
	bus := event.NewBus(event.BusConfig{
		BufferSize: 2,
		OnDrop:     func(_ event.Event, _ string) { droppedCount.Add(1) },
	})
	defer bus.Close()

	release := make(chan struct{})
	entered := make(chan struct{})
	var mu sync.Mutex
	var seen []event.Event
	first := true
	bus.SubscribeAll(event.HandlerFunc(func(_ context.Context, evt event.Event) error {
		if first {
			first = false
			close(entered)
			<-release
		}
		mu.Lock()
		seen = append(seen, evt)
		mu.Unlock()
		return nil
	}))

	// One event in flight at the handler plus a queue of two; everything
	// beyond that displaces the oldest queued event.
	require.NoError(t, bus.Publish(context.Background(), event.NewAny("tick", "test", nil)))
	<-entered
	for i := 1; i < 10; i++ {
		require.NoError(t, bus.Publish(context.Background(), event.NewAny("tick", "test", nil)))
	}
	require.Eventually(t, func() bool { return droppedCount.Load() > 0 }, time.Second, time.Millisecond)
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, evt := range seen {
			if evt.Type() == event.TypeSubscriberLag {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var total int64
	var lagIdx = -1
	for i, evt := range seen {
		if evt.Type() == event.TypeSubscriberLag {
			lagIdx = i
			var data event.SubscriberLagData
			require.NoError(t, event.Decode(evt, &data))
			total += data.Dropped
			assert.NotEmpty(t, data.SubscriberID)
		}
	}
	assert.Equal(t, int64(droppedCount.Load()), total, "lag markers must account for every drop")
	assert.Greater(t, lagIdx, 0, "marker is delivered ahead of a regular event, never first")
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := event.NewBus(event.BusConfig{BufferSize: 1})
	defer bus.Close()

	// A channel subscriber nobody drains.
	bus.Channel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = bus.Publish(context.Background(), event.NewAny("tick", "test", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestBus_PublishAfterCloseFails(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), event.NewAny("x", "test", nil))
	assert.ErrorIs(t, err, event.ErrClosed)

	// Close is idempotent.
	require.NoError(t, bus.Close())
}

func TestBus_HandlerErrorReachesOnError(t *testing.T) {
	var mu sync.Mutex
	var failures []*event.DeliveryError
	bus := event.NewBus(event.BusConfig{
		OnError: func(err *event.DeliveryError) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		},
	})
	defer bus.Close()

	bus.SubscribeAll(event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		return assert.AnError
	}))

	require.NoError(t, bus.Publish(context.Background(), event.NewAny("x", "test", nil)))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failures) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, failures[0], assert.AnError)
	assert.Equal(t, "x", failures[0].EventType)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.SubscribeAll(event.HandlerFunc(func(_ context.Context, _ event.Event) error {
		received.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), event.NewAny("x", "test", nil)))
	require.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), event.NewAny("x", "test", nil)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}
