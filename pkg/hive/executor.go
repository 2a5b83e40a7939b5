package hive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hive-run/graphrt/pkg/hive/checkpoint"
	hiveerrors "github.com/hive-run/graphrt/pkg/hive/errors"
	"github.com/hive-run/graphrt/pkg/hive/event"
	"github.com/hive-run/graphrt/pkg/hive/llm"
	"github.com/hive-run/graphrt/pkg/hive/observability"
	"go.opentelemetry.io/otel/trace"
)

// Executor walks a compiled graph from its entry node to a terminal state,
// producing a RunLog. One Executor serves any number of concurrent
// executions; all per-execution mutable state lives on the Execution and
// in the execution-scoped SharedState partition.
type Executor struct {
	graph   *CompiledGraph
	runners map[string]NodeRunner
	deps    NodeDeps

	state       *SharedState
	checkpoints checkpoint.Store
	events      event.Bus

	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	tracing bool

	retry  hiveerrors.RetryConfig
	budget BudgetGuard
}

// BudgetGuard inspects an execution before its first node runs. A non-nil
// return aborts the run with BudgetExceeded; the guard's message is
// carried as the failure cause. Guards typically consult cost or token
// accounting kept in stream/global state.
type BudgetGuard func(ctx Context, graph *GraphSpec) error

// WithExecutorBudget installs a pre-execution budget guard.
func WithExecutorBudget(guard BudgetGuard) ExecutorOption {
	return func(x *Executor) { x.budget = guard }
}

// ExecutorOption configures an Executor at construction time.
type ExecutorOption func(*Executor)

// WithExecutorState sets the SharedState the executor reads and writes.
func WithExecutorState(s *SharedState) ExecutorOption {
	return func(x *Executor) { x.state = s }
}

// WithExecutorCheckpoints enables checkpointing to store after every
// successful node and on pause/cancel.
func WithExecutorCheckpoints(store checkpoint.Store) ExecutorOption {
	return func(x *Executor) { x.checkpoints = store }
}

// WithExecutorEvents sets the bus lifecycle and progress events publish to.
func WithExecutorEvents(bus event.Bus) ExecutorOption {
	return func(x *Executor) { x.events = bus }
}

// WithExecutorMetrics sets the metrics recorder.
func WithExecutorMetrics(m observability.MetricsRecorder) ExecutorOption {
	return func(x *Executor) { x.metrics = m }
}

// WithExecutorTracing enables per-run and per-node spans.
func WithExecutorTracing(spans observability.SpanManager) ExecutorOption {
	return func(x *Executor) {
		x.spans = spans
		x.tracing = true
	}
}

// WithExecutorRetry overrides the retry policy applied to transient node
// failures.
func WithExecutorRetry(cfg hiveerrors.RetryConfig) ExecutorOption {
	return func(x *Executor) { x.retry = cfg }
}

// NewExecutor builds runners for every node in graph and returns an
// Executor ready to run. Fails with NodeNotRegistered when a function node
// references a name deps.Functions cannot resolve.
func NewExecutor(graph *CompiledGraph, deps NodeDeps, opts ...ExecutorOption) (*Executor, error) {
	if deps.Functions == nil {
		deps.Functions = NewFunctionRegistry()
	}

	x := &Executor{
		graph:   graph,
		deps:    deps,
		runners: make(map[string]NodeRunner, len(graph.spec.Nodes)),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		retry:   hiveerrors.NodeRetry,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.state == nil {
		x.state = NewSharedState()
	}
	if x.deps.RunSubGraph == nil {
		x.deps.RunSubGraph = x.runSubGraph
	}

	for i := range graph.spec.Nodes {
		n := &graph.spec.Nodes[i]
		runner, err := BuildNodeRunner(n, x.deps)
		if err != nil {
			return nil, err
		}
		x.runners[n.ID] = runner
	}
	return x, nil
}

// Graph returns the compiled graph this executor runs.
func (x *Executor) Graph() *CompiledGraph { return x.graph }

// State returns the SharedState backing this executor.
func (x *Executor) State() *SharedState { return x.state }

// Execute drives the graph from its entry node to a terminal state. The
// input map is merged into the execution-scoped namespace before the entry
// node runs. The returned RunLog always carries a terminal status
// (completed, failed, cancelled, or paused); the error mirrors
// RunLog.Error for failed runs so callers can use errors.Is.
func (x *Executor) Execute(ctx Context, input map[string]any) (*RunLog, error) {
	return x.executeFrom(ctx, x.graph.spec.EntryNode, input)
}

// ExecuteAt drives the graph starting at a named entry point from the
// graph's entry_points map.
func (x *Executor) ExecuteAt(ctx Context, entryPoint string, input map[string]any) (*RunLog, error) {
	node, ok := x.graph.spec.EntryPoints[entryPoint]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entry point %q", ErrInvalidGraph, entryPoint)
	}
	return x.executeFrom(ctx, node, input)
}

// executeFrom is the shared entry for Execute, ExecuteAt, and Resume.
func (x *Executor) executeFrom(ctx Context, startNode string, input map[string]any) (rl *RunLog, err error) {
	exec := ctx.Execution()
	if exec == nil {
		exec = NewExecution(ctx.ExecutionID(), ctx.StreamID(), TriggerManual, startNode, nil)
		ctx = NewContext(ctx,
			WithLogger(ctx.Logger()), WithLLM(x.llmClient(ctx)), WithCheckpointer(x.checkpoints),
			WithEvents(x.events), WithTools(x.deps.Tools), WithState(x.state),
			WithExecution(exec))
	}

	logger := ctx.Logger().With("execution_id", exec.ExecutionID, "graph_id", x.graph.spec.ID)
	start := time.Now()

	if x.budget != nil {
		if budgetErr := x.budget(ctx, x.graph.spec); budgetErr != nil {
			end := time.Now().UTC()
			run := &RunLog{
				RunID:   exec.ExecutionID,
				GoalID:  x.graph.spec.GoalID,
				GraphID: x.graph.spec.ID,
				Start:   start.UTC(),
				End:     &end,
				Status:  StatusFailed,
				Error:   budgetErr.Error(),
			}
			exec.SetStatus(StatusFailed)
			emit(ctx, x.events, exec, EventExecutionFailed, ExecutionLifecycleData{
				RunID: run.RunID, Status: string(StatusFailed), Reason: "budget_exceeded",
			})
			return run, fmt.Errorf("%w: %v", ErrBudgetExceeded, budgetErr)
		}
	}

	run := &RunLog{
		RunID:   exec.ExecutionID,
		GoalID:  x.graph.spec.GoalID,
		GraphID: x.graph.spec.ID,
		Start:   start.UTC(),
		Status:  StatusRunning,
	}

	observability.LogRunStart(logger, run.RunID)

	var tracingCtx context.Context = ctx
	var runSpan trace.Span
	if x.tracing {
		tracingCtx, runSpan = x.spans.StartRunSpan(ctx, x.graph.spec.ID, run.RunID)
	}

	emit(ctx, x.events, exec, EventExecutionStarted, ExecutionLifecycleData{
		GraphID: x.graph.spec.ID,
		GoalID:  x.graph.spec.GoalID,
		RunID:   run.RunID,
	})

	for k, v := range input {
		x.state.Put(ScopeExecution, exec.ExecutionID, k, v, Isolated)
	}

	walkErr := x.walk(tracingCtx, ctx, exec, run, startNode)

	end := time.Now().UTC()
	run.End = &end
	duration := time.Since(start)
	x.metrics.RecordGraphRun(ctx, walkErr == nil && run.Status != StatusFailed, duration)
	if x.tracing {
		x.spans.EndSpanWithError(runSpan, walkErr)
	}

	switch {
	case run.Status == StatusPaused:
		exec.SetStatus(StatusPaused)
		observability.LogRunComplete(logger, run.RunID, float64(duration.Milliseconds()), run.CostSummary.NodeExecutions)
		return run, nil
	case walkErr != nil:
		if isCancellation(walkErr) {
			run.Status = StatusCancelled
			run.Error = walkErr.Error()
			exec.SetStatus(StatusCancelled)
			x.finalizeCheckpoint(ctx, exec)
			emit(ctx, x.events, exec, EventExecutionFailed, ExecutionLifecycleData{
				RunID: run.RunID, Status: string(StatusCancelled), Reason: "cancelled",
			})
			observability.LogRunError(logger, run.RunID, walkErr, float64(duration.Milliseconds()), exec.CurrentNode())
			return run, fmt.Errorf("%w: %v", ErrCancelled, walkErr)
		}
		run.Status = StatusFailed
		run.Error = walkErr.Error()
		exec.SetStatus(StatusFailed)
		x.finalizeCheckpoint(ctx, exec)
		emit(ctx, x.events, exec, EventExecutionFailed, ExecutionLifecycleData{
			RunID: run.RunID, Status: string(StatusFailed), Reason: failureReason(walkErr),
		})
		observability.LogRunError(logger, run.RunID, walkErr, float64(duration.Milliseconds()), exec.CurrentNode())
		return run, walkErr
	default:
		run.Status = StatusCompleted
		exec.SetStatus(StatusCompleted)
		emit(ctx, x.events, exec, EventExecutionCompleted, ExecutionLifecycleData{
			RunID: run.RunID, Status: string(StatusCompleted),
		})
		observability.LogRunComplete(logger, run.RunID, float64(duration.Milliseconds()), run.CostSummary.NodeExecutions)
		return run, nil
	}
}

// walk is the main node loop. It mutates run in place and returns a
// non-nil error for failed runs; a paused run returns nil with run.Status
// already set to StatusPaused.
func (x *Executor) walk(tracingCtx context.Context, ctx Context, exec *Execution, run *RunLog, startNode string) error {
	current := startNode

	for current != "" {
		if err := ctx.Err(); err != nil {
			return &CancellationError{NodeID: current, Err: err}
		}

		exec.SetCurrentNode(current)
		spec, ok := x.graph.Node(current)
		if !ok {
			return fmt.Errorf("%w: node %q not found", ErrInvalidGraph, current)
		}

		visits := exec.IncrementVisit(current)
		if visits > spec.maxVisits() {
			run.Decisions = append(run.Decisions, Decision{
				ID:       uuid.New().String(),
				NodeID:   current,
				Intent:   "loop_budget",
				ChosenID: "abort",
				Outcome:  "failure",
				At:       time.Now().UTC(),
			})
			return fmt.Errorf("%w: %v", ErrLoopBudgetExceeded, &MaxIterationsError{NodeID: current, Max: spec.maxVisits()})
		}
		switch visits {
		case 1:
		case 2:
			emit(ctx, x.events, exec, EventNodeLoopStarted, NodeLifecycleData{NodeID: current, Iteration: visits})
		default:
			emit(ctx, x.events, exec, EventNodeLoopIteration, NodeLifecycleData{NodeID: current, Iteration: visits})
		}

		outputs, status, nodeErr := x.runNode(tracingCtx, ctx, exec, run, spec, visits, exec.ExecutionID)
		if nodeErr != nil {
			run.Decisions = append(run.Decisions, Decision{
				ID:       uuid.New().String(),
				NodeID:   current,
				Intent:   "node_execution",
				ChosenID: current,
				Outcome:  "failure",
				At:       time.Now().UTC(),
			})
			return nodeErr
		}

		x.mergeOutputs(exec.ExecutionID, outputs)

		if status == NodePaused {
			run.Status = StatusPaused
			namespace := x.state.Snapshot(exec.ExecutionID)
			prompt := make(NodeOutputs, len(spec.InputKeys))
			for _, k := range spec.InputKeys {
				if v, ok := namespace[k]; ok {
					prompt[k] = v
				}
			}
			x.savePauseCheckpoint(ctx, exec, spec.ID, prompt)
			return nil
		}

		if spec.Type == NodeRouter {
			x.recordRouterDecision(run, spec, outputs)
		}

		if x.graph.IsTerminal(current) {
			run.FinalOutput = x.state.Snapshot(exec.ExecutionID)
			return nil
		}

		// Fan-out: all targets marked parallel run concurrently and the
		// walk continues at their convergence node.
		if targets, ok := x.graph.ForkSet(current); ok {
			join, err := x.runForkJoin(tracingCtx, ctx, exec, run, current, targets)
			if err != nil {
				return err
			}
			x.saveStepCheckpoint(ctx, exec, current, join)
			current = join
			continue
		}

		next, err := x.selectEdge(exec.ExecutionID, &run.Decisions, current)
		if err != nil {
			return err
		}
		if next == "" {
			return fmt.Errorf("%w: node %q has no matching outgoing edge", ErrNoMatchingEdge, current)
		}

		x.saveStepCheckpoint(ctx, exec, current, next)
		current = next
	}

	run.FinalOutput = x.state.Snapshot(exec.ExecutionID)
	return nil
}

// runNode executes one node with observability, panic safety, and
// transient-error retry. Fatal errors propagate immediately; transient
// I/O failures back off and re-run up to the retry cap. stateID names the
// SharedState execution partition the node's inputs are read from —
// normally the execution id, or a branch partition inside a fan-out.
func (x *Executor) runNode(tracingCtx context.Context, ctx Context, exec *Execution, run *RunLog, spec *NodeSpec, attempt int, stateID string) (NodeOutputs, NodeStatus, error) {
	runner, ok := x.runners[spec.ID]
	if !ok {
		return nil, NodeFailure, fmt.Errorf("%w: no runner for node %q", ErrInvalidGraph, spec.ID)
	}

	nodeCtx := withNode(ctx, spec.ID, attempt)
	logger := nodeCtx.Logger()
	observability.LogNodeStart(logger, spec.ID)

	nodeTracingCtx := tracingCtx
	var nodeSpan trace.Span
	if x.tracing {
		nodeTracingCtx, nodeSpan = x.spans.StartNodeSpan(tracingCtx, spec.ID)
	}

	emit(ctx, x.events, exec, EventNodeStarted, NodeLifecycleData{NodeID: spec.ID, Attempt: attempt})

	started := time.Now()
	namespace := x.state.Snapshot(stateID)

	type runResult struct {
		outputs NodeOutputs
		status  NodeStatus
	}
	result := hiveerrors.WithRetryContext(nodeCtx, x.retry, func(context.Context) (runResult, error) {
		outputs, status, err := x.invoke(runner, nodeCtx, spec, namespace)
		return runResult{outputs: outputs, status: status}, err
	})

	duration := time.Since(started)
	x.metrics.RecordNodeExecution(nodeTracingCtx, spec.ID, duration, result.Err)
	if x.tracing {
		x.spans.EndSpanWithError(nodeSpan, result.Err)
	}

	visit := NodeVisit{
		NodeID:   spec.ID,
		Attempt:  attempt,
		Started:  started.UTC(),
		Duration: duration,
	}
	run.CostSummary.NodeExecutions++
	if spec.Type == NodeLLMGenerate || spec.Type == NodeLLMToolUse {
		run.CostSummary.LLMCalls++
	}

	if result.Err != nil {
		visit.Status = string(NodeFailure)
		visit.Error = result.Err.Error()
		run.NodeVisits = append(run.NodeVisits, visit)
		observability.LogNodeError(logger, spec.ID, result.Err)
		emit(ctx, x.events, exec, EventNodeCompleted, NodeLifecycleData{
			NodeID: spec.ID, Attempt: attempt, Status: string(NodeFailure),
			DurationMs: duration.Milliseconds(), Error: result.Err.Error(),
		})
		return nil, NodeFailure, &NodeError{NodeID: spec.ID, Err: result.Err}
	}

	visit.Status = string(result.Value.status)
	run.NodeVisits = append(run.NodeVisits, visit)
	observability.LogNodeComplete(logger, spec.ID, float64(duration.Milliseconds()))
	emit(ctx, x.events, exec, EventNodeCompleted, NodeLifecycleData{
		NodeID: spec.ID, Attempt: attempt, Status: string(result.Value.status),
		DurationMs: duration.Milliseconds(),
	})
	return result.Value.outputs, result.Value.status, nil
}

// invoke runs a single runner call with panic recovery.
func (x *Executor) invoke(runner NodeRunner, ctx Context, spec *NodeSpec, namespace map[string]any) (outputs NodeOutputs, status NodeStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			outputs, status = nil, NodeFailure
			err = &PanicError{NodeID: spec.ID, Value: r}
		}
	}()
	return runner.Run(ctx, namespace)
}

// recordRouterDecision appends the routing choice a router node made,
// surfacing its label as the chosen id.
func (x *Executor) recordRouterDecision(run *RunLog, spec *NodeSpec, outputs NodeOutputs) {
	key := "routed"
	if len(spec.OutputKeys) > 0 {
		key = spec.OutputKeys[0]
	}
	label, _ := outputs[key].(string)
	run.Decisions = append(run.Decisions, Decision{
		ID:        uuid.New().String(),
		NodeID:    spec.ID,
		Intent:    "route",
		ChosenID:  label,
		Reasoning: fmt.Sprintf("router %s emitted label %q", spec.ID, label),
		Outcome:   "success",
		At:        time.Now().UTC(),
	})
}

// selectEdge picks the next node from current's outgoing edges: candidates
// are evaluated in ascending priority order (ties broken by edge id), and
// the first whose condition holds over the stateID namespace wins. The
// choice is appended to decisions; no matching edge returns "".
func (x *Executor) selectEdge(stateID string, decisions *[]Decision, current string) (string, error) {
	edges := x.graph.OutEdges(current)
	if len(edges) == 0 {
		return "", nil
	}

	namespace := x.state.Snapshot(stateID)
	options := make([]string, 0, len(edges))
	for _, e := range edges {
		options = append(options, e.ID)
	}

	for _, e := range edges {
		if !x.edgeMatches(e, namespace) {
			continue
		}
		*decisions = append(*decisions, Decision{
			ID:       uuid.New().String(),
			NodeID:   current,
			Intent:   "edge_selection",
			Options:  options,
			ChosenID: e.ID,
			Outcome:  "success",
			At:       time.Now().UTC(),
		})
		return e.Target, nil
	}
	return "", nil
}

// edgeMatches evaluates one edge condition. on_success and on_failure are
// shorthands over the last node's status; everything else goes through the
// expression evaluator, where unresolved names and malformed expressions
// evaluate to false.
func (x *Executor) edgeMatches(e EdgeSpec, namespace map[string]any) bool {
	switch e.Condition {
	case CondOnSuccess:
		// A failing node aborts the walk before edge selection, so any
		// edge being evaluated follows a successful node.
		return true
	case CondOnFailure:
		return false
	default:
		return evalCondition(e.Condition, namespace)
	}
}

// mergeOutputs writes a node's outputs into the stateID partition.
func (x *Executor) mergeOutputs(stateID string, outputs NodeOutputs) {
	for k, v := range outputs {
		x.state.Put(ScopeExecution, stateID, k, v, Isolated)
	}
}

// saveStepCheckpoint persists progress after a successful node when a
// checkpoint store is configured. Checkpoint failures here are non-fatal:
// the run continues and the gap is logged.
func (x *Executor) saveStepCheckpoint(ctx Context, exec *Execution, nodeID, resumeNode string) {
	if x.checkpoints == nil || resumeNode == "" {
		return
	}
	var seq uint64
	if x.events != nil {
		seq = exec.NextSeq()
	}
	cp, err := x.buildCheckpoint(exec, resumeNode, nil)
	if err != nil {
		observability.LogCheckpointError(ctx.Logger(), nodeID, "serialize", err)
		return
	}
	id, err := x.checkpoints.Save(cp)
	if err != nil {
		observability.LogCheckpointError(ctx.Logger(), nodeID, "save", err)
		return
	}
	observability.LogCheckpoint(ctx.Logger(), nodeID, len(cp.StateSnapshot))
	x.metrics.RecordCheckpoint(ctx, nodeID, int64(len(cp.StateSnapshot)))
	emitReserved(ctx, x.events, exec, seq, EventCheckpointCreated, CheckpointData{CheckpointID: id, ResumeNode: resumeNode})
}

// savePauseCheckpoint persists the checkpoint a client_input pause resumes
// from, carrying the pending prompt so the client can be re-asked after a
// restart.
func (x *Executor) savePauseCheckpoint(ctx Context, exec *Execution, nodeID string, prompt NodeOutputs) {
	if x.checkpoints == nil {
		return
	}
	var seq uint64
	if x.events != nil {
		seq = exec.NextSeq()
	}
	pending, _ := json.Marshal(prompt)
	cp, err := x.buildCheckpoint(exec, nodeID, pending)
	if err != nil {
		observability.LogCheckpointError(ctx.Logger(), nodeID, "serialize", err)
		return
	}
	id, err := x.checkpoints.Save(cp)
	if err != nil {
		observability.LogCheckpointError(ctx.Logger(), nodeID, "save", err)
		return
	}
	observability.LogCheckpoint(ctx.Logger(), nodeID, len(cp.StateSnapshot))
	emitReserved(ctx, x.events, exec, seq, EventCheckpointCreated, CheckpointData{CheckpointID: id, ResumeNode: nodeID})
}

// finalizeCheckpoint writes a last checkpoint on failure or cancellation
// so the execution can be inspected or resumed at the node it stopped on.
func (x *Executor) finalizeCheckpoint(ctx Context, exec *Execution) {
	if x.checkpoints == nil {
		return
	}
	cp, err := x.buildCheckpoint(exec, exec.CurrentNode(), nil)
	if err != nil {
		observability.LogCheckpointError(ctx.Logger(), exec.CurrentNode(), "serialize", err)
		return
	}
	if _, err := x.checkpoints.Save(cp); err != nil {
		observability.LogCheckpointError(ctx.Logger(), exec.CurrentNode(), "save", err)
	}
}

// buildCheckpoint snapshots execution state into a checkpoint, chaining it
// to the execution's previous latest checkpoint when one exists.
func (x *Executor) buildCheckpoint(exec *Execution, resumeNode string, pending json.RawMessage) (*checkpoint.Checkpoint, error) {
	snapshot, err := json.Marshal(x.state.Snapshot(exec.ExecutionID))
	if err != nil {
		return nil, err
	}
	cp := checkpoint.New(exec.ExecutionID, resumeNode, snapshot, exec.VisitCounts()).
		WithLastSeq(exec.LastSeq())
	if len(pending) > 0 {
		cp = cp.WithPendingClientRequest(pending)
	}
	if prev, err := x.checkpoints.LatestFor(exec.ExecutionID); err == nil && prev != nil {
		cp = cp.WithParent(prev.CheckpointID)
	}
	return cp, nil
}

// runSubGraph executes an embedded graph in a child execution that
// inherits stream-scoped state but owns a fresh execution-scoped
// namespace and fresh visit counts. The parent node's own visit count
// covers the whole sub-graph invocation.
func (x *Executor) runSubGraph(ctx Context, spec *GraphSpec, input map[string]any) (map[string]any, error) {
	compiled, err := Compile(spec)
	if err != nil {
		return nil, err
	}
	child, err := NewExecutor(compiled, x.deps,
		WithExecutorState(x.state),
		WithExecutorEvents(x.events),
		WithExecutorMetrics(x.metrics),
		WithExecutorRetry(x.retry),
	)
	if err != nil {
		return nil, err
	}

	childExec := NewExecution(uuid.New().String(), ctx.StreamID(), TriggerManual, spec.EntryNode, nil)
	childCtx := NewContext(ctx,
		WithLogger(ctx.Logger().With("sub_graph", spec.ID)),
		WithLLM(ctx.LLM()), WithEvents(x.events),
		WithTools(x.deps.Tools), WithState(x.state),
		WithExecution(childExec))

	run, err := child.Execute(childCtx, input)
	x.state.DropExecution(childExec.ExecutionID)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusCompleted {
		return nil, fmt.Errorf("sub-graph %q ended with status %s", spec.ID, run.Status)
	}
	return run.FinalOutput, nil
}

func (x *Executor) llmClient(ctx Context) llm.Client {
	if x.deps.LLM != nil {
		return x.deps.LLM
	}
	return ctx.LLM()
}

// isCancellation reports whether err stems from context cancellation
// rather than a node-level failure.
func isCancellation(err error) bool {
	var cancelErr *CancellationError
	if errors.As(err, &cancelErr) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled)
}

// failureReason maps an error to the reason string carried on
// ExecutionFailed events.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrBudgetExceeded):
		return "budget_exceeded"
	case errors.Is(err, ErrLoopBudgetExceeded):
		return "loop_budget_exceeded"
	case errors.Is(err, ErrNoMatchingEdge):
		return "no_matching_edge"
	case errors.Is(err, ErrMissingInput):
		return "missing_input"
	case errors.Is(err, ErrToolLoopExceeded):
		return "tool_loop_exceeded"
	default:
		return "node_failure"
	}
}
