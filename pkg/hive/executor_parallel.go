package hive

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// branchResult is what one parallel branch hands back at the join: the id
// and outputs of the last node it ran before reaching the convergence
// node, plus the branch-local log entries to merge into the parent run.
type branchResult struct {
	root     string
	lastNode string
	outputs  NodeOutputs
	log      RunLog
	err      error
	duration time.Duration
}

// runForkJoin executes all parallel targets fanning out from forkNode
// concurrently and returns the convergence node the main walk continues
// at. Each branch walks inside its own copy-on-fork state partition; the
// convergence node then receives the union of branch outputs keyed by the
// id of each branch's final node. The first branch error aborts the join.
func (x *Executor) runForkJoin(tracingCtx context.Context, ctx Context, exec *Execution, run *RunLog, forkNode string, targets []string) (string, error) {
	join, ok := x.graph.JoinNode(forkNode)
	if !ok {
		return "", fmt.Errorf("%w: fork at %q has no convergence node", ErrInvalidGraph, forkNode)
	}

	// A fan-out of one is just a sequential edge.
	if len(targets) == 1 && join == targets[0] {
		return join, nil
	}

	started := time.Now()
	parent := x.state.Snapshot(exec.ExecutionID)

	results := make(chan branchResult, len(targets))
	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(root string) {
			defer wg.Done()
			results <- x.walkBranch(tracingCtx, ctx, exec, root, join, parent)
		}(target)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	byRoot := make(map[string]branchResult, len(targets))
	var firstErr error
	var failedBranch string
	for res := range results {
		byRoot[res.root] = res
		if res.err != nil && firstErr == nil {
			firstErr = res.err
			failedBranch = res.root
		}
	}

	// Merge branch logs in declared target order so the RunLog stays
	// deterministic regardless of completion order.
	for _, target := range targets {
		res := byRoot[target]
		run.NodeVisits = append(run.NodeVisits, res.log.NodeVisits...)
		run.Decisions = append(run.Decisions, res.log.Decisions...)
		run.CostSummary.NodeExecutions += res.log.CostSummary.NodeExecutions
		run.CostSummary.LLMCalls += res.log.CostSummary.LLMCalls
		run.CostSummary.ToolCalls += res.log.CostSummary.ToolCalls
	}

	if firstErr != nil {
		return "", &ForkJoinError{NodeID: forkNode, Branch: failedBranch, Err: firstErr}
	}

	for _, target := range targets {
		res := byRoot[target]
		if res.lastNode != "" {
			x.state.Put(ScopeExecution, exec.ExecutionID, res.lastNode, map[string]any(res.outputs), Isolated)
		}
	}

	ctx.Logger().Info("fork/join completed",
		"fork_node", forkNode,
		"join_node", join,
		"branches", len(targets),
		"duration_ms", time.Since(started).Milliseconds())

	return join, nil
}

// walkBranch runs one parallel branch from its root until it reaches the
// convergence node or a terminal. The branch reads and writes a private
// state partition seeded from the parent snapshot; branches never observe
// each other's writes. Node events still publish under the parent
// execution's sequence counter.
func (x *Executor) walkBranch(tracingCtx context.Context, ctx Context, exec *Execution, root, join string, parent map[string]any) branchResult {
	started := time.Now()
	stateID := exec.ExecutionID + "#" + root
	x.state.Restore(stateID, parent)
	defer x.state.DropExecution(stateID)

	res := branchResult{root: root}
	current := root

	for current != "" && current != join {
		if err := ctx.Err(); err != nil {
			res.err = &CancellationError{NodeID: current, Err: err}
			res.duration = time.Since(started)
			return res
		}

		spec, ok := x.graph.Node(current)
		if !ok {
			res.err = fmt.Errorf("%w: node %q not found", ErrInvalidGraph, current)
			res.duration = time.Since(started)
			return res
		}

		visits := exec.IncrementVisit(current)
		if visits > spec.maxVisits() {
			res.err = fmt.Errorf("%w: %v", ErrLoopBudgetExceeded, &MaxIterationsError{NodeID: current, Max: spec.maxVisits()})
			res.duration = time.Since(started)
			return res
		}

		outputs, status, err := x.runNode(tracingCtx, ctx, exec, &res.log, spec, visits, stateID)
		if err != nil {
			res.err = err
			res.duration = time.Since(started)
			return res
		}
		if status == NodePaused {
			res.err = fmt.Errorf("node %q: client_input pause is not supported inside a parallel branch", spec.ID)
			res.duration = time.Since(started)
			return res
		}

		x.mergeOutputs(stateID, outputs)
		res.lastNode = current
		res.outputs = outputs

		if x.graph.IsTerminal(current) {
			break
		}

		next, err := x.selectEdge(stateID, &res.log.Decisions, current)
		if err != nil {
			res.err = err
			res.duration = time.Since(started)
			return res
		}
		if next == "" {
			res.err = fmt.Errorf("%w: node %q has no matching outgoing edge", ErrNoMatchingEdge, current)
			res.duration = time.Since(started)
			return res
		}
		current = next
	}

	res.duration = time.Since(started)
	return res
}
