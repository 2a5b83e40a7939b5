// Package checkpoint provides durable, atomic persistence of execution
// snapshots so an in-flight graph execution can be suspended and resumed.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// Version is the current checkpoint format version.
const Version = 1

// Checkpoint is a durable snapshot sufficient to resume an execution at a
// named node. Each execution has at most one "active" (latest) checkpoint,
// but the full chain back through ParentCheckpoint is retained.
type Checkpoint struct {
	Version      int       `json:"version"`
	CheckpointID string    `json:"checkpoint_id"`
	ExecutionID  string    `json:"execution_id"`
	CreatedAt    time.Time `json:"created_at"`

	// ResumeNode is the node id execution re-enters at on resume.
	ResumeNode string `json:"resume_node"`

	// StateSnapshot is the execution-scoped SharedState at the moment of
	// checkpointing, keyed exactly as SharedState.Snapshot returns it.
	StateSnapshot json.RawMessage `json:"state_snapshot"`

	// PendingClientRequest carries the outstanding client_input prompt, if
	// this checkpoint was created because the execution paused for one.
	PendingClientRequest json.RawMessage `json:"pending_client_request,omitempty"`

	// ParentCheckpoint is the id of the checkpoint this one supersedes, or
	// empty for the first checkpoint of an execution.
	ParentCheckpoint string `json:"parent_checkpoint,omitempty"`

	// VisitCounts preserves per-node visit counts across resume so loop
	// bounds are not reset.
	VisitCounts map[string]int `json:"visit_counts,omitempty"`

	// LastSeq is the last event sequence number the execution published
	// before this checkpoint; a resumed execution continues from LastSeq+1
	// so the combined event stream stays gapless.
	LastSeq uint64 `json:"last_seq,omitempty"`

	// Checksum is the sha256 of the canonical JSON encoding of the fields
	// above (with Checksum and CheckpointID cleared), computed by New and
	// the With* setters and verified by Load.
	Checksum string `json:"checksum"`
}

// ErrCorrupt is returned when a loaded checkpoint's checksum does not match
// its contents.
var ErrCorrupt = errors.New("checkpoint: checksum mismatch")

// New builds a checkpoint with a freshly computed checksum. The checkpoint
// id is content-addressed: it is the first 16 hex characters of the
// checksum, and the stores save the checkpoint under that id.
func New(executionID, resumeNode string, stateSnapshot json.RawMessage, visitCounts map[string]int) *Checkpoint {
	cp := &Checkpoint{
		Version:       Version,
		ExecutionID:   executionID,
		CreatedAt:     time.Now().UTC(),
		ResumeNode:    resumeNode,
		StateSnapshot: stateSnapshot,
		VisitCounts:   visitCounts,
	}
	cp.Checksum = cp.computeChecksum()
	cp.CheckpointID = cp.Checksum[:16]
	return cp
}

// WithPendingClientRequest attaches a pending client_input payload and
// recomputes the checksum (and id, since it is content-addressed).
func (c *Checkpoint) WithPendingClientRequest(req json.RawMessage) *Checkpoint {
	c.PendingClientRequest = req
	c.Checksum = c.computeChecksum()
	c.CheckpointID = c.Checksum[:16]
	return c
}

// WithLastSeq records the event sequence high-water mark and recomputes
// the checksum.
func (c *Checkpoint) WithLastSeq(seq uint64) *Checkpoint {
	c.LastSeq = seq
	c.Checksum = c.computeChecksum()
	c.CheckpointID = c.Checksum[:16]
	return c
}

// WithParent sets the parent checkpoint id and recomputes the checksum.
func (c *Checkpoint) WithParent(parentID string) *Checkpoint {
	c.ParentCheckpoint = parentID
	c.Checksum = c.computeChecksum()
	c.CheckpointID = c.Checksum[:16]
	return c
}

// computeChecksum hashes every field except Checksum and CheckpointID
// themselves, so the id can be derived from the checksum.
func (c *Checkpoint) computeChecksum() string {
	shadow := *c
	shadow.Checksum = ""
	shadow.CheckpointID = ""
	b, _ := json.Marshal(shadow)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the checksum and compares it against the stored value.
func (c *Checkpoint) Verify() error {
	if c.computeChecksum() != c.Checksum {
		return ErrCorrupt
	}
	return nil
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes and verifies a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return &c, nil
}
