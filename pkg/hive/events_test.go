package hive

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hive-run/graphrt/pkg/hive/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit_WireShape(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var mu sync.Mutex
	var captured event.Event
	bus.SubscribeAll(event.HandlerFunc(func(_ context.Context, evt event.Event) error {
		mu.Lock()
		captured = evt
		mu.Unlock()
		return nil
	}))

	exec := NewExecution("exec-9", "stream-3", TriggerWebhook, "entry", nil)
	emit(context.Background(), bus, exec, EventNodeStarted, NodeLifecycleData{NodeID: "entry", Attempt: 1})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return captured != nil
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventNodeStarted, captured.Type())
	assert.False(t, captured.Timestamp().IsZero())

	var wire struct {
		ExecutionID string `json:"execution_id"`
		StreamID    string `json:"stream_id"`
		Seq         uint64 `json:"seq"`
		Data        struct {
			NodeID  string `json:"node_id"`
			Attempt int    `json:"attempt"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(captured.DataBytes(), &wire))
	assert.Equal(t, "exec-9", wire.ExecutionID)
	assert.Equal(t, "stream-3", wire.StreamID)
	assert.Equal(t, uint64(1), wire.Seq)
	assert.Equal(t, "entry", wire.Data.NodeID)
	assert.Equal(t, 1, wire.Data.Attempt)
}

func TestEmit_NilBusIsNoOp(t *testing.T) {
	exec := NewExecution("exec-1", "s", TriggerManual, "entry", nil)
	emit(context.Background(), nil, exec, EventNodeStarted, NodeLifecycleData{NodeID: "entry"})
	// No sequence number may be consumed when nothing is published.
	assert.Equal(t, uint64(0), exec.LastSeq())
}

func TestEmit_NilExecutionIsNoOp(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()
	emit(context.Background(), bus, nil, EventNodeStarted, NodeLifecycleData{NodeID: "entry"})
}
