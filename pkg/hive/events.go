package hive

import (
	"context"

	"github.com/hive-run/graphrt/pkg/hive/event"
)

// Event type strings published to the EventBus. The event sum type:
// ExecutionStarted, ExecutionCompleted, ExecutionFailed,
// NodeStarted, NodeCompleted, NodeLoopStarted, NodeLoopIteration,
// LLMTextDelta, ClientOutputDelta, ClientInputRequested, ToolCallStarted,
// ToolCallCompleted, CheckpointCreated.
const (
	EventExecutionStarted     = "execution.started"
	EventExecutionCompleted   = "execution.completed"
	EventExecutionFailed      = "execution.failed"
	EventNodeStarted          = "node.started"
	EventNodeCompleted        = "node.completed"
	EventNodeLoopStarted      = "node.loop_started"
	EventNodeLoopIteration    = "node.loop_iteration"
	EventLLMTextDelta         = "llm.text_delta"
	EventClientOutputDelta    = "client.output_delta"
	EventClientInputRequested = "client.input_requested"
	EventToolCallStarted      = "tool.call_started"
	EventToolCallCompleted    = "tool.call_completed"
	EventCheckpointCreated    = "checkpoint.created"

	eventSource = "hive.executor"
)

// EventEnvelope carries the fields every published event needs: which
// execution and stream it belongs to and its gapless per-execution sequence
// number. The event.Header supplies type/ts/id; EventEnvelope supplies the rest.
type EventEnvelope struct {
	ExecutionID string `json:"execution_id"`
	StreamID    string `json:"stream_id"`
	Seq         uint64 `json:"seq"`
}

// payload wraps an EventEnvelope with event-specific fields, flattened into one
// JSON object on the wire.
type payload[T any] struct {
	EventEnvelope
	Data T `json:"data,omitempty"`
}

// ExecutionLifecycleData is the payload shared by ExecutionStarted,
// ExecutionCompleted, and ExecutionFailed.
type ExecutionLifecycleData struct {
	GraphID string `json:"graph_id,omitempty"`
	GoalID  string `json:"goal_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// NodeLifecycleData is the payload shared by NodeStarted, NodeCompleted,
// NodeLoopStarted, and NodeLoopIteration.
type NodeLifecycleData struct {
	NodeID     string `json:"node_id"`
	Attempt    int    `json:"attempt,omitempty"`
	Iteration  int    `json:"iteration,omitempty"`
	Status     string `json:"status,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TextDeltaData is the payload for LLMTextDelta and ClientOutputDelta.
type TextDeltaData struct {
	NodeID string `json:"node_id"`
	Text   string `json:"text"`
}

// ClientInputData is the payload for ClientInputRequested.
type ClientInputData struct {
	NodeID string         `json:"node_id"`
	Prompt map[string]any `json:"prompt,omitempty"`
}

// ToolCallData is the payload for ToolCallStarted/ToolCallCompleted.
type ToolCallData struct {
	NodeID   string `json:"node_id"`
	ToolName string `json:"tool_name"`
	Error    string `json:"error,omitempty"`
}

// CheckpointData is the payload for CheckpointCreated.
type CheckpointData struct {
	CheckpointID string `json:"checkpoint_id"`
	ResumeNode   string `json:"resume_node"`
}

// emit publishes eventType with data, stamping it with the execution's next
// gapless sequence number. A nil bus is a silent no-op: the EventBus is an
// observability surface, never load-bearing for executor correctness.
func emit[T any](ctx context.Context, bus event.Bus, exec *Execution, eventType string, data T) {
	if bus == nil || exec == nil {
		return
	}
	emitReserved(ctx, bus, exec, exec.NextSeq(), eventType, data)
}

// emitReserved publishes with a sequence number the caller already drew
// from the execution's counter. Checkpointing code reserves the seq of
// its CheckpointCreated event before snapshotting the counter, so a
// resumed execution never reissues it.
func emitReserved[T any](ctx context.Context, bus event.Bus, exec *Execution, seq uint64, eventType string, data T) {
	if bus == nil || exec == nil {
		return
	}
	env := EventEnvelope{ExecutionID: exec.ExecutionID, StreamID: exec.StreamID, Seq: seq}
	evt := event.New(eventType, eventSource, payload[T]{EventEnvelope: env, Data: data})
	_ = bus.Publish(ctx, evt)
}
