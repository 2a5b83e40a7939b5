package hive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hive-run/graphrt/pkg/hive/checkpoint"
	"github.com/hive-run/graphrt/pkg/hive/event"
	"github.com/hive-run/graphrt/pkg/hive/llm"
	"github.com/hive-run/graphrt/pkg/hive/mcp"
	"github.com/hive-run/graphrt/pkg/hive/observability"
	"github.com/hive-run/graphrt/pkg/hive/query"
	"github.com/hive-run/graphrt/pkg/hive/registry"
	"github.com/hive-run/graphrt/pkg/hive/signal"
)

// Runtime is the composition root: it exclusively owns the compiled
// graph, the SharedState, the CheckpointStore, the EventBus, and the
// streams that feed executions into the executor.
type Runtime struct {
	graph       *CompiledGraph
	goal        *Goal
	executor    *Executor
	state       *SharedState
	checkpoints checkpoint.Store
	events      event.Bus
	functions   *FunctionRegistry
	tools       *registry.ToolRegistry
	llmClient   llm.Client
	llmTimeout  time.Duration
	logger      *slog.Logger

	queries *query.Executor
	signals *signal.Registry
	sigLog  signal.Store

	mu      sync.Mutex
	streams map[string]*Stream
	mcps    []mcp.Client
	resumed map[string]*RunLog
}

// Signal names the runtime handles out of the box.
const (
	SignalCancel      = "cancel"
	SignalClientReply = "client_reply"
)

// RuntimeOption configures a Runtime at construction time.
type RuntimeOption func(*Runtime)

// WithRuntimeGoal attaches the goal the graph pursues.
func WithRuntimeGoal(goal *Goal) RuntimeOption {
	return func(r *Runtime) { r.goal = goal }
}

// WithRuntimeState supplies a SharedState; one is created when absent.
func WithRuntimeState(s *SharedState) RuntimeOption {
	return func(r *Runtime) { r.state = s }
}

// WithRuntimeCheckpoints supplies the checkpoint store.
func WithRuntimeCheckpoints(store checkpoint.Store) RuntimeOption {
	return func(r *Runtime) { r.checkpoints = store }
}

// WithRuntimeEvents supplies the event bus.
func WithRuntimeEvents(bus event.Bus) RuntimeOption {
	return func(r *Runtime) { r.events = bus }
}

// WithRuntimeFunctions supplies the function registry.
func WithRuntimeFunctions(fns *FunctionRegistry) RuntimeOption {
	return func(r *Runtime) { r.functions = fns }
}

// WithRuntimeTools supplies the tool registry.
func WithRuntimeTools(tools *registry.ToolRegistry) RuntimeOption {
	return func(r *Runtime) { r.tools = tools }
}

// WithRuntimeLLM supplies the LLM client llm_generate/llm_tool_use nodes
// call.
func WithRuntimeLLM(client llm.Client) RuntimeOption {
	return func(r *Runtime) { r.llmClient = client }
}

// WithRuntimeLLMTimeout overrides the per-call LLM deadline.
func WithRuntimeLLMTimeout(d time.Duration) RuntimeOption {
	return func(r *Runtime) { r.llmTimeout = d }
}

// WithRuntimeLogger supplies the base logger.
func WithRuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) { r.logger = logger }
}

// NewRuntime validates and compiles spec, constructs the executor, and
// wires the query surface. Streams are added afterwards via AddStream.
func NewRuntime(spec *GraphSpec, opts ...RuntimeOption) (*Runtime, error) {
	compiled, err := Compile(spec)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		graph:   compiled,
		logger:  slog.Default(),
		streams: make(map[string]*Stream),
		resumed: make(map[string]*RunLog),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.state == nil {
		r.state = NewSharedState()
	}
	if r.functions == nil {
		r.functions = NewFunctionRegistry()
	}
	if r.tools == nil {
		r.tools = registry.NewToolRegistry()
	}

	execOpts := []ExecutorOption{
		WithExecutorState(r.state),
		WithExecutorMetrics(observability.NewMetricsRecorder()),
	}
	if r.checkpoints != nil {
		execOpts = append(execOpts, WithExecutorCheckpoints(r.checkpoints))
	}
	if r.events != nil {
		execOpts = append(execOpts, WithExecutorEvents(r.events))
	}
	r.executor, err = NewExecutor(compiled, NodeDeps{
		Functions:  r.functions,
		Tools:      r.tools,
		LLM:        r.llmClient,
		LLMTimeout: r.llmTimeout,
	}, execOpts...)
	if err != nil {
		return nil, err
	}

	queries := query.NewRegistry()
	if err := query.RegisterBuiltins(queries, r.loadQueryState); err != nil {
		return nil, err
	}
	r.queries = query.NewExecutor(queries, r.loadQueryState)

	r.signals = signal.NewRegistry()
	r.sigLog = signal.NewMemoryStore()
	r.signals.MustRegister(SignalCancel, func(_ context.Context, targetID string, _ *signal.Signal) error {
		r.Cancel(targetID)
		return nil
	})
	r.signals.MustRegister(SignalClientReply, func(ctx context.Context, targetID string, sig *signal.Signal) error {
		_, err := r.Resume(ctx, targetID, sig.Payload)
		return err
	})

	return r, nil
}

// Graph returns the compiled graph the runtime owns.
func (r *Runtime) Graph() *CompiledGraph { return r.graph }

// Goal returns the goal this runtime's graph pursues, if one was set.
func (r *Runtime) Goal() *Goal { return r.goal }

// Executor returns the graph executor.
func (r *Runtime) Executor() *Executor { return r.executor }

// State returns the runtime's SharedState.
func (r *Runtime) State() *SharedState { return r.state }

// Events returns the runtime's event bus, or nil when none is configured.
func (r *Runtime) Events() event.Bus { return r.events }

// Functions returns the function registry nodes resolve against.
func (r *Runtime) Functions() *FunctionRegistry { return r.functions }

// Tools returns the tool registry.
func (r *Runtime) Tools() *registry.ToolRegistry { return r.tools }

// AddStream creates, registers, and returns a stream. The stream still
// needs Start (or runtime Start) before it admits triggers.
func (r *Runtime) AddStream(cfg StreamConfig) *Stream {
	s := newStream(r, cfg)
	r.mu.Lock()
	r.streams[s.ID()] = s
	r.mu.Unlock()
	return s
}

// Stream returns a registered stream by id.
func (r *Runtime) Stream(id string) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	return s, ok
}

// Start starts every registered stream. Idempotent.
func (r *Runtime) Start() {
	r.mu.Lock()
	streams := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.Unlock()
	for _, s := range streams {
		s.Start()
	}
}

// Stop stops all streams concurrently, waits out their shutdown budgets,
// closes connected MCP clients, and closes the event bus.
func (r *Runtime) Stop(ctx context.Context) {
	r.mu.Lock()
	streams := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	clients := r.mcps
	r.mcps = nil
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func(s *Stream) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()

	for _, c := range clients {
		if err := c.Close(ctx); err != nil {
			r.logger.Warn("mcp client close failed", "error", err)
		}
	}
	if r.events != nil {
		if err := r.events.Close(); err != nil {
			r.logger.Warn("event bus close failed", "error", err)
		}
	}
}

// Trigger starts one execution on the named stream.
func (r *Runtime) Trigger(ctx context.Context, streamID string, input map[string]any) (string, error) {
	s, ok := r.Stream(streamID)
	if !ok {
		return "", fmt.Errorf("runtime: unknown stream %q", streamID)
	}
	return s.Trigger(ctx, input)
}

// Cancel cooperatively cancels an execution on whichever stream owns it.
func (r *Runtime) Cancel(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.streams {
		s.Cancel(executionID)
	}
}

// Resume re-enters a paused execution with the client's reply. The
// resumed walk runs on the caller's goroutine and returns its RunLog.
func (r *Runtime) Resume(ctx context.Context, executionID string, reply map[string]any) (*RunLog, error) {
	hctx := NewContext(ctx,
		WithLogger(r.logger),
		WithLLM(r.llmClient),
		WithCheckpointer(r.checkpoints),
		WithEvents(r.events),
		WithTools(r.tools),
		WithState(r.state))
	run, err := r.executor.Resume(hctx, executionID, reply)
	if run != nil {
		r.mu.Lock()
		r.resumed[executionID] = run
		r.mu.Unlock()
		if run.Status != StatusPaused {
			r.state.DropExecution(executionID)
		}
	}
	return run, err
}

// Signal delivers a fire-and-forget message to an execution: "cancel"
// cancels it, "client_reply" resumes a paused one with the payload as the
// client's answer. Custom signal handlers can be added via Signals().
// Every delivery attempt is recorded in the signal store.
func (r *Runtime) Signal(ctx context.Context, executionID, name string, payload map[string]any) error {
	sig := signal.NewSignal(name, executionID, payload)
	_ = r.sigLog.Enqueue(ctx, sig)

	handler, ok := r.signals.Get(name)
	if !ok {
		_ = r.sigLog.MarkFailed(ctx, sig.ID, signal.ErrNoHandler)
		return fmt.Errorf("%w: %q", signal.ErrNoHandler, name)
	}
	if err := handler(ctx, executionID, sig); err != nil {
		_ = r.sigLog.MarkFailed(ctx, sig.ID, err)
		return err
	}
	return r.sigLog.MarkProcessed(ctx, sig.ID)
}

// Signals returns the signal handler registry for custom signal names.
func (r *Runtime) Signals() *signal.Registry { return r.signals }

// Query answers a read-only inspection query (status, progress,
// current_node, variables, pending human task) about a live or completed
// execution.
func (r *Runtime) Query(ctx context.Context, executionID, queryName string, args any) (any, error) {
	return r.queries.Execute(ctx, executionID, queryName, args)
}

// ConnectMCP connects an MCP client and registers every tool it
// advertises into the runtime's tool registry, proxied through CallTool.
// The client is closed on runtime Stop.
func (r *Runtime) ConnectMCP(ctx context.Context, client mcp.Client) error {
	if err := client.Connect(ctx); err != nil {
		return err
	}
	descriptors, err := client.ListTools(ctx)
	if err != nil {
		return err
	}
	for _, d := range descriptors {
		desc := registry.ToolDescriptor{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.InputSchema,
		}
		r.tools.RegisterRemote(desc, func(name string) registry.ToolHandler {
			return func(ctx context.Context, args map[string]any) (map[string]any, error) {
				res, err := client.CallTool(ctx, name, args)
				if err != nil {
					return nil, err
				}
				return res.Content, nil
			}
		}(d.Name))
	}
	r.mu.Lock()
	r.mcps = append(r.mcps, client)
	r.mu.Unlock()
	return nil
}

// execute runs one stream-admitted execution to a terminal state. Called
// from the stream's per-execution goroutine.
func (r *Runtime) execute(ctx context.Context, exec *Execution, input map[string]any) (*RunLog, error) {
	hctx := NewContext(ctx,
		WithLogger(r.logger.With("stream_id", exec.StreamID, "trigger", string(exec.Trigger))),
		WithLLM(r.llmClient),
		WithCheckpointer(r.checkpoints),
		WithEvents(r.events),
		WithTools(r.tools),
		WithState(r.state),
		WithExecution(exec))
	return r.executor.Execute(hctx, input)
}

// loadQueryState adapts live executions and retained RunLogs to the query
// package's state shape.
func (r *Runtime) loadQueryState(_ context.Context, executionID string) (*query.State, error) {
	r.mu.Lock()
	streams := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	resumedRun := r.resumed[executionID]
	r.mu.Unlock()

	// A run that went through Resume supersedes whatever the owning
	// stream retained from before the pause.
	if resumedRun != nil {
		return &query.State{
			TargetID:  executionID,
			Status:    string(resumedRun.Status),
			Progress:  1.0,
			Variables: resumedRun.FinalOutput,
		}, nil
	}

	for _, s := range streams {
		if exec, ok := s.execution(executionID); ok {
			st := &query.State{
				TargetID:    executionID,
				Status:      string(exec.Status()),
				CurrentNode: exec.CurrentNode(),
				Variables:   r.state.Snapshot(executionID),
			}
			if exec.Status() == StatusPaused {
				st.PendingTask = r.pendingTask(executionID)
			}
			return st, nil
		}
	}
	for _, s := range streams {
		// A paused run's log carries no pending task; with a checkpoint
		// store it is answered from its checkpoint below.
		if run := s.findRecent(executionID); run != nil && (run.Status != StatusPaused || r.checkpoints == nil) {
			return &query.State{
				TargetID:  executionID,
				Status:    string(run.Status),
				Progress:  1.0,
				Variables: run.FinalOutput,
			}, nil
		}
	}

	// Paused executions have left the live map; their latest checkpoint
	// is the source of truth.
	if r.checkpoints != nil {
		if cp, err := r.checkpoints.LatestFor(executionID); err == nil && cp != nil {
			st := &query.State{
				TargetID:    executionID,
				Status:      string(StatusPaused),
				CurrentNode: cp.ResumeNode,
			}
			var vars map[string]any
			if json.Unmarshal(cp.StateSnapshot, &vars) == nil {
				st.Variables = vars
			}
			if len(cp.PendingClientRequest) > 0 {
				st.PendingTask = &query.PendingTask{
					TaskID:    cp.CheckpointID,
					NodeID:    cp.ResumeNode,
					Title:     "awaiting client input",
					CreatedAt: cp.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				}
			}
			return st, nil
		}
	}
	return nil, query.ErrTargetNotFound
}

func (r *Runtime) pendingTask(executionID string) *query.PendingTask {
	if r.checkpoints == nil {
		return nil
	}
	cp, err := r.checkpoints.LatestFor(executionID)
	if err != nil || cp == nil || len(cp.PendingClientRequest) == 0 {
		return nil
	}
	return &query.PendingTask{
		TaskID: cp.CheckpointID,
		NodeID: cp.ResumeNode,
		Title:  "awaiting client input",
	}
}
