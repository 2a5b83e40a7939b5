package signal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hive-run/graphrt/pkg/hive/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignal(t *testing.T) {
	sig := signal.NewSignal("client_reply", "exec-1", map[string]any{"answer": "ok"})

	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, "client_reply", sig.Name)
	assert.Equal(t, "exec-1", sig.TargetID)
	assert.Equal(t, signal.StatusPending, sig.Status)
	assert.False(t, sig.SentAt.IsZero())
	assert.Equal(t, "ok", sig.Payload["answer"])
}

func TestSignal_CloneIsIndependent(t *testing.T) {
	sig := signal.NewSignal("cancel", "exec-1", map[string]any{"reason": "operator"})
	clone := sig.Clone()

	clone.Payload["reason"] = "changed"
	clone.Status = signal.StatusFailed

	assert.Equal(t, "operator", sig.Payload["reason"])
	assert.Equal(t, signal.StatusPending, sig.Status)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := signal.NewRegistry()
	handler := func(_ context.Context, _ string, _ *signal.Signal) error { return nil }

	require.NoError(t, r.Register("cancel", handler))

	_, ok := r.Get("cancel")
	assert.True(t, ok)
	_, ok = r.Get("unknown")
	assert.False(t, ok)
	assert.Equal(t, []string{"cancel"}, r.List())
}

func TestRegistry_RejectsDuplicatesAndEmpty(t *testing.T) {
	r := signal.NewRegistry()
	handler := func(_ context.Context, _ string, _ *signal.Signal) error { return nil }

	require.NoError(t, r.Register("cancel", handler))
	assert.Error(t, r.Register("cancel", handler))
	assert.Error(t, r.Register("", handler))
	assert.Error(t, r.Register("nil_handler", nil))
	assert.Panics(t, func() { r.MustRegister("cancel", handler) })
}

func TestMemoryStore_EnqueueAndGet(t *testing.T) {
	store := signal.NewMemoryStore()
	ctx := context.Background()

	sig := signal.NewSignal("cancel", "exec-1", nil)
	require.NoError(t, store.Enqueue(ctx, sig))

	got, err := store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancel", got.Name)
	assert.Equal(t, signal.StatusPending, got.Status)

	_, err = store.Get(ctx, "sig-missing")
	assert.ErrorIs(t, err, signal.ErrNotFound)
}

func TestMemoryStore_EnqueueFillsZeroFields(t *testing.T) {
	store := signal.NewMemoryStore()
	ctx := context.Background()

	sig := &signal.Signal{Name: "cancel", TargetID: "exec-1"}
	require.NoError(t, store.Enqueue(ctx, sig))

	assert.NotEmpty(t, sig.ID)
	assert.False(t, sig.SentAt.IsZero())
	assert.Equal(t, signal.StatusPending, sig.Status)
}

func TestMemoryStore_PendingAndHistory(t *testing.T) {
	store := signal.NewMemoryStore()
	ctx := context.Background()

	first := signal.NewSignal("cancel", "exec-1", nil)
	second := signal.NewSignal("client_reply", "exec-1", nil)
	other := signal.NewSignal("cancel", "exec-2", nil)
	require.NoError(t, store.Enqueue(ctx, first))
	require.NoError(t, store.Enqueue(ctx, second))
	require.NoError(t, store.Enqueue(ctx, other))

	require.NoError(t, store.MarkProcessed(ctx, first.ID))

	pending, err := store.Pending(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	history, err := store.History(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, second.ID, history[1].ID)
}

func TestMemoryStore_MarkProcessed(t *testing.T) {
	store := signal.NewMemoryStore()
	ctx := context.Background()

	sig := signal.NewSignal("cancel", "exec-1", nil)
	require.NoError(t, store.Enqueue(ctx, sig))
	require.NoError(t, store.MarkProcessed(ctx, sig.ID))

	got, err := store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, signal.StatusProcessed, got.Status)
	require.NotNil(t, got.ProcessedAt)
	assert.Empty(t, got.Error)
}

func TestMemoryStore_MarkFailed(t *testing.T) {
	store := signal.NewMemoryStore()
	ctx := context.Background()

	sig := signal.NewSignal("cancel", "exec-1", nil)
	require.NoError(t, store.Enqueue(ctx, sig))
	require.NoError(t, store.MarkFailed(ctx, sig.ID, errors.New("no such execution")))

	got, err := store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, signal.StatusFailed, got.Status)
	assert.Equal(t, "no such execution", got.Error)
}

func TestMemoryStore_MarkUnknownSignal(t *testing.T) {
	store := signal.NewMemoryStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.MarkProcessed(ctx, "sig-ghost"), signal.ErrNotFound)
	assert.ErrorIs(t, store.MarkFailed(ctx, "sig-ghost", errors.New("x")), signal.ErrNotFound)
}

func TestMemoryStore_GetReturnsCopies(t *testing.T) {
	store := signal.NewMemoryStore()
	ctx := context.Background()

	sig := signal.NewSignal("cancel", "exec-1", map[string]any{"reason": "a"})
	require.NoError(t, store.Enqueue(ctx, sig))

	got, err := store.Get(ctx, sig.ID)
	require.NoError(t, err)
	got.Payload["reason"] = "mutated"

	again, err := store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Payload["reason"])
}
