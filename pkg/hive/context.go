package hive

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hive-run/graphrt/pkg/hive/checkpoint"
	"github.com/hive-run/graphrt/pkg/hive/event"
	"github.com/hive-run/graphrt/pkg/hive/llm"
	"github.com/hive-run/graphrt/pkg/hive/registry"
)

// Context provides execution context to node implementations. It extends
// context.Context with the runtime services a node may need and the
// metadata identifying which execution/node/attempt it runs under.
// Context is immutable after creation; the executor derives a new Context
// per node with an enriched logger and updated NodeID/Attempt.
type Context interface {
	context.Context

	Logger() *slog.Logger
	LLM() llm.Client
	Checkpointer() checkpoint.Store
	Events() event.Bus
	Tools() *registry.ToolRegistry
	State() *SharedState

	ExecutionID() string
	StreamID() string
	NodeID() string
	Attempt() int

	// Execution returns the runtime Execution record this Context was
	// derived for, or nil for a bare top-level Context (e.g. in a test
	// that never went through an ExecutionStream). Node implementations
	// use it only to stamp outgoing events with the execution's sequence
	// counter.
	Execution() *Execution
}

type execContext struct {
	context.Context

	logger       *slog.Logger
	llmClient    llm.Client
	checkpointer checkpoint.Store
	events       event.Bus
	tools        *registry.ToolRegistry
	state        *SharedState

	executionID string
	streamID    string
	nodeID      string
	attempt     int

	exec *Execution
}

func (c *execContext) Logger() *slog.Logger           { return c.logger }
func (c *execContext) LLM() llm.Client                { return c.llmClient }
func (c *execContext) Checkpointer() checkpoint.Store { return c.checkpointer }
func (c *execContext) Events() event.Bus              { return c.events }
func (c *execContext) Tools() *registry.ToolRegistry  { return c.tools }
func (c *execContext) State() *SharedState            { return c.state }
func (c *execContext) ExecutionID() string            { return c.executionID }
func (c *execContext) StreamID() string               { return c.streamID }
func (c *execContext) NodeID() string                 { return c.nodeID }
func (c *execContext) Attempt() int                   { return c.attempt }
func (c *execContext) Execution() *Execution          { return c.exec }

// ContextOption configures a Context at construction time.
type ContextOption func(*execContext)

func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *execContext) { c.logger = logger }
}

func WithLLM(client llm.Client) ContextOption {
	return func(c *execContext) { c.llmClient = client }
}

func WithCheckpointer(store checkpoint.Store) ContextOption {
	return func(c *execContext) { c.checkpointer = store }
}

func WithEvents(bus event.Bus) ContextOption {
	return func(c *execContext) { c.events = bus }
}

func WithTools(tools *registry.ToolRegistry) ContextOption {
	return func(c *execContext) { c.tools = tools }
}

func WithState(state *SharedState) ContextOption {
	return func(c *execContext) { c.state = state }
}

func WithExecutionID(id string) ContextOption {
	return func(c *execContext) { c.executionID = id }
}

func WithStreamID(id string) ContextOption {
	return func(c *execContext) { c.streamID = id }
}

// WithExecution binds the runtime Execution record whose sequence counter
// stamps outgoing events. It also aligns the Context's execution and
// stream ids with the record's.
func WithExecution(exec *Execution) ContextOption {
	return func(c *execContext) {
		c.exec = exec
		if exec != nil {
			c.executionID = exec.ExecutionID
			c.streamID = exec.StreamID
		}
	}
}

// NewContext wraps a standard context.Context with hive services.
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &execContext{
		Context:     ctx,
		logger:      slog.Default(),
		executionID: uuid.New().String(),
		attempt:     1,
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// withNode returns a derived Context scoped to a specific node execution
// attempt, with a logger enriched with execution/node/attempt fields.
func withNode(c Context, nodeID string, attempt int) Context {
	base, ok := c.(*execContext)
	if !ok {
		// Fall back to wrapping via NewContext's options if given a
		// non-*execContext implementation (e.g. a test double).
		return NewContext(c,
			WithLogger(c.Logger().With("execution_id", c.ExecutionID(), "node_id", nodeID, "attempt", attempt)),
			WithLLM(c.LLM()), WithCheckpointer(c.Checkpointer()), WithEvents(c.Events()),
			WithTools(c.Tools()), WithState(c.State()),
			WithExecutionID(c.ExecutionID()), WithStreamID(c.StreamID()),
			WithExecution(c.Execution()))
	}
	derived := *base
	derived.logger = base.logger.With("execution_id", base.executionID, "node_id", nodeID, "attempt", attempt)
	derived.nodeID = nodeID
	derived.attempt = attempt
	return &derived
}
