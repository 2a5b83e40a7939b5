package checkpoint_test

import (
	"encoding/json"
	"testing"

	"github.com/hive-run/graphrt/pkg/hive/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_New(t *testing.T) {
	state := json.RawMessage(`{"value": 42}`)
	cp := checkpoint.New("exec-123", "node-b", state, map[string]int{"node-a": 1})

	assert.Equal(t, checkpoint.Version, cp.Version)
	assert.Equal(t, "exec-123", cp.ExecutionID)
	assert.Equal(t, "node-b", cp.ResumeNode)
	assert.Equal(t, state, cp.StateSnapshot)
	assert.Equal(t, 1, cp.VisitCounts["node-a"])
	assert.NotEmpty(t, cp.CheckpointID)
	assert.NotEmpty(t, cp.Checksum)
	assert.Empty(t, cp.ParentCheckpoint)
	assert.False(t, cp.CreatedAt.IsZero())
}

func TestCheckpoint_WithPendingClientRequest(t *testing.T) {
	cp := checkpoint.New("exec-1", "node-a", json.RawMessage(`{}`), nil)
	before := cp.CheckpointID

	cp.WithPendingClientRequest(json.RawMessage(`{"prompt": "confirm?"}`))

	assert.NotEmpty(t, cp.PendingClientRequest)
	assert.NoError(t, cp.Verify())
	assert.NotEqual(t, before, cp.CheckpointID)
}

func TestCheckpoint_WithParent(t *testing.T) {
	cp := checkpoint.New("exec-1", "node-a", json.RawMessage(`{}`), nil)
	cp.WithParent("parent-checkpoint-id")

	assert.Equal(t, "parent-checkpoint-id", cp.ParentCheckpoint)
	assert.NoError(t, cp.Verify())
}

func TestCheckpoint_MarshalUnmarshalRoundTrip(t *testing.T) {
	cp := checkpoint.New("exec-1", "node-a", json.RawMessage(`{"x":1}`), map[string]int{"node-a": 2})

	data, err := cp.Marshal()
	require.NoError(t, err)

	restored, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, cp.CheckpointID, restored.CheckpointID)
	assert.Equal(t, cp.ExecutionID, restored.ExecutionID)
	assert.Equal(t, cp.ResumeNode, restored.ResumeNode)
	assert.JSONEq(t, string(cp.StateSnapshot), string(restored.StateSnapshot))
	assert.Equal(t, cp.Checksum, restored.Checksum)
}

func TestCheckpoint_UnmarshalDetectsCorruption(t *testing.T) {
	cp := checkpoint.New("exec-1", "node-a", json.RawMessage(`{}`), nil)
	data, err := cp.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["resume_node"] = "tampered"
	tampered, err := json.Marshal(raw)
	require.NoError(t, err)

	_, err = checkpoint.Unmarshal(tampered)
	require.ErrorIs(t, err, checkpoint.ErrCorrupt)
}

func TestCheckpoint_VerifyDetectsTamperedChecksum(t *testing.T) {
	cp := checkpoint.New("exec-1", "node-a", json.RawMessage(`{}`), nil)
	cp.Checksum = "not-the-real-checksum"
	assert.ErrorIs(t, cp.Verify(), checkpoint.ErrCorrupt)
}
