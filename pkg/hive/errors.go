package hive

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Compile and Execute. Wrap with fmt.Errorf
// and %w so callers can match with errors.Is.
var (
	ErrInvalidGraph       = errors.New("invalid graph")
	ErrNodeNotRegistered  = errors.New("node function not registered")
	ErrBudgetExceeded     = errors.New("budget exceeded")
	ErrCancelled          = errors.New("execution cancelled")
	ErrNoMatchingEdge     = errors.New("no matching edge")
	ErrLoopBudgetExceeded = errors.New("loop budget exceeded")
	ErrMissingInput       = errors.New("missing input")
	ErrToolLoopExceeded   = errors.New("tool call loop exceeded")
	ErrTransportClosed    = errors.New("transport closed")
	ErrCorruptCheckpoint  = errors.New("checkpoint corrupt")
)

// NodeError wraps a failure that occurred while running a specific node.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// RouterError wraps a failure computing a router node's label.
type RouterError struct {
	NodeID string
	Err    error
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router %s: %v", e.NodeID, e.Err)
}

func (e *RouterError) Unwrap() error { return e.Err }

// PanicError records a node implementation that panicked during Run.
type PanicError struct {
	NodeID string
	Value  any
	Stack  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError indicates an execution stopped because its context
// was cancelled.
type CancellationError struct {
	NodeID string
	Err    error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled at node %s: %v", e.NodeID, e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// MaxIterationsError indicates a node exceeded its max_node_visits bound.
type MaxIterationsError struct {
	NodeID string
	Max    int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("node %s exceeded max_node_visits=%d", e.NodeID, e.Max)
}

// ForkJoinError aggregates branch failures from a parallel fan-out.
type ForkJoinError struct {
	NodeID string
	Branch string
	Err    error
}

func (e *ForkJoinError) Error() string {
	return fmt.Sprintf("fork/join branch %s (from %s): %v", e.Branch, e.NodeID, e.Err)
}

func (e *ForkJoinError) Unwrap() error { return e.Err }

// Envelope is the user-facing structured error representation: a stack
// trace is never surfaced to a caller outside the process.
type Envelope struct {
	Error    string `json:"error"`
	Help     string `json:"help,omitempty"`
	Category string `json:"category,omitempty"`
}

// NewEnvelope builds an Envelope from err, filling Help with the known
// remediation hint for common failure causes.
func NewEnvelope(err error, category string) Envelope {
	env := Envelope{Error: err.Error(), Category: category}
	switch {
	case errors.Is(err, ErrBudgetExceeded):
		env.Help = "increase the execution's cost/token/step budget or narrow the goal"
	case errors.Is(err, ErrLoopBudgetExceeded):
		env.Help = "raise max_node_visits on the looping node or fix the loop condition"
	case errors.Is(err, ErrNodeNotRegistered):
		env.Help = "register the named function with the runtime's function registry before compiling the graph"
	case errors.Is(err, ErrTransportClosed):
		env.Help = "the MCP server connection failed; call Connect again before retrying the tool call"
	}
	return env
}
