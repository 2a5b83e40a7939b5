package checkpoint_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/hive-run/graphrt/pkg/hive/checkpoint"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store1, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)

	cp := checkpoint.New("exec-1", "node-a", json.RawMessage(`{"v":"persistent"}`), nil)
	id, err := store1.Save(cp)
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	loaded, err := store2.Load(id)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":"persistent"}`, string(loaded.StateSnapshot))
}

func TestSQLiteStore_ClosedAfterClose(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close()) // idempotent

	_, err = store.Load("anything")
	require.ErrorIs(t, err, checkpoint.ErrStoreClosed)
}
