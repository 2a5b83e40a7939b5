package hive

import (
	"encoding/json"
	"fmt"

	"github.com/hive-run/graphrt/pkg/hive/checkpoint"
)

// Resume re-enters a suspended execution at the node its latest checkpoint
// names. The checkpoint's state snapshot is restored into the execution
// scope, visit counts and the event sequence counter are carried over, and
// reply (the client's answer, for a client_input pause) is merged into the
// namespace as the paused node's outputs before the walk continues.
//
// Given identical external responses, pause→resume→complete produces the
// same terminal output as an uninterrupted run.
func (x *Executor) Resume(ctx Context, executionID string, reply map[string]any) (*RunLog, error) {
	if x.checkpoints == nil {
		return nil, fmt.Errorf("resume %s: no checkpoint store configured", executionID)
	}
	cp, err := x.checkpoints.LatestFor(executionID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", executionID, err)
	}
	if cp == nil {
		return nil, fmt.Errorf("resume %s: %w", executionID, checkpoint.ErrNotFound)
	}
	return x.resumeFrom(ctx, cp, reply)
}

// ResumeAt re-enters an execution from a specific checkpoint in its chain
// rather than the latest one.
func (x *Executor) ResumeAt(ctx Context, checkpointID string, reply map[string]any) (*RunLog, error) {
	if x.checkpoints == nil {
		return nil, fmt.Errorf("resume checkpoint %s: no checkpoint store configured", checkpointID)
	}
	cp, err := x.checkpoints.Load(checkpointID)
	if err != nil {
		return nil, fmt.Errorf("resume checkpoint %s: %w", checkpointID, err)
	}
	return x.resumeFrom(ctx, cp, reply)
}

func (x *Executor) resumeFrom(ctx Context, cp *checkpoint.Checkpoint, reply map[string]any) (*RunLog, error) {
	resumeNode, ok := x.graph.Node(cp.ResumeNode)
	if !ok {
		return nil, fmt.Errorf("%w: resume node %q not in graph", ErrInvalidGraph, cp.ResumeNode)
	}

	var snapshot map[string]any
	if len(cp.StateSnapshot) > 0 {
		if err := json.Unmarshal(cp.StateSnapshot, &snapshot); err != nil {
			return nil, fmt.Errorf("%w: state snapshot unreadable: %v", ErrCorruptCheckpoint, err)
		}
	}
	x.state.Restore(cp.ExecutionID, snapshot)

	exec := NewExecution(cp.ExecutionID, ctx.StreamID(), TriggerManual, cp.ResumeNode, nil)
	exec.RestoreVisitCounts(cp.VisitCounts)
	exec.RestoreSeq(cp.LastSeq)

	ctx = NewContext(ctx,
		WithLogger(ctx.Logger().With("resumed_from", cp.CheckpointID)),
		WithLLM(x.llmClient(ctx)), WithCheckpointer(x.checkpoints),
		WithEvents(x.events), WithTools(x.deps.Tools), WithState(x.state),
		WithExecution(exec))

	// A client_input pause resumes past the pausing node: the reply stands
	// in for the node's outputs and the walk continues at the next edge.
	// Any other checkpoint re-enters at the recorded node itself.
	start := cp.ResumeNode
	input := reply
	if resumeNode.Type == NodeClientInput && len(cp.PendingClientRequest) > 0 {
		outputs := filterOutputs(resumeNode, reply, nil)
		x.mergeOutputs(cp.ExecutionID, outputs)

		var decisions []Decision
		next, err := x.selectEdge(cp.ExecutionID, &decisions, cp.ResumeNode)
		if err != nil {
			return nil, err
		}
		if next == "" {
			return nil, fmt.Errorf("%w: paused node %q has no matching outgoing edge", ErrNoMatchingEdge, cp.ResumeNode)
		}
		start = next
		input = nil

		run, err := x.executeFrom(ctx, start, input)
		if run != nil {
			run.Decisions = append(decisions, run.Decisions...)
		}
		return run, err
	}

	return x.executeFrom(ctx, start, input)
}
