// Package query is the runtime's read-only inspection surface: named,
// synchronous queries answered over the state of a live or completed
// execution, without touching it. The runtime wires a StateLoader over
// its live execution map, its retained run logs, and the checkpoint
// store; callers ask by execution id and query name.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Handler answers one query about one execution. Handlers must not
// mutate execution state.
type Handler func(ctx context.Context, executionID string, args any) (any, error)

// ErrQueryNotFound is returned for a query name with no handler.
var ErrQueryNotFound = errors.New("query: no such query")

// ErrTargetNotFound is returned when the execution id resolves to
// nothing the runtime knows about.
var ErrTargetNotFound = errors.New("query: no such execution")

// Registry holds query handlers by name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under name. Re-registering a name is an
// error: built-ins and custom queries share one namespace and a silent
// replacement would hide the collision.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return errors.New("query: name is required")
	}
	if handler == nil {
		return errors.New("query: handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("query: %q already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

// MustRegister is Register that panics on error, for wiring done at
// startup.
func (r *Registry) MustRegister(name string, handler Handler) {
	if err := r.Register(name, handler); err != nil {
		panic(err)
	}
}

// Get looks up a handler by name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// List names every registered query, in no particular order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// State is the queryable view of one execution.
type State struct {
	TargetID    string         `json:"target_id"`
	Status      string         `json:"status"`
	CurrentNode string         `json:"current_node,omitempty"`
	Progress    float64        `json:"progress"`
	Variables   map[string]any `json:"variables,omitempty"`
	PendingTask *PendingTask   `json:"pending_task,omitempty"`
}

// PendingTask describes a client_input pause awaiting an answer.
type PendingTask struct {
	TaskID      string `json:"task_id"`
	NodeID      string `json:"node_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// StateLoader resolves an execution id to its queryable state. A nil
// State with a nil error means the execution is unknown.
type StateLoader func(ctx context.Context, executionID string) (*State, error)

// Executor dispatches queries through a registry.
type Executor struct {
	registry *Registry
	load     StateLoader
}

// NewExecutor pairs a registry with the loader its built-ins read from.
func NewExecutor(registry *Registry, load StateLoader) *Executor {
	return &Executor{registry: registry, load: load}
}

// Execute answers one query about one execution.
func (e *Executor) Execute(ctx context.Context, executionID, name string, args any) (any, error) {
	if executionID == "" {
		return nil, errors.New("query: execution id is required")
	}
	handler, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrQueryNotFound, name)
	}
	return handler(ctx, executionID, args)
}

// Built-in query names.
const (
	QueryStatus      = "status"
	QueryProgress    = "progress"
	QueryCurrentNode = "current_node"
	QueryVariables   = "variables"
	QueryPendingTask = "pending_task"
	QueryState       = "state"
)

// RegisterBuiltins installs the standard queries, all answered from the
// loader's State.
func RegisterBuiltins(registry *Registry, load StateLoader) error {
	builtins := map[string]func(st *State, args any) (any, error){
		QueryStatus:      func(st *State, _ any) (any, error) { return st.Status, nil },
		QueryProgress:    func(st *State, _ any) (any, error) { return st.Progress, nil },
		QueryCurrentNode: func(st *State, _ any) (any, error) { return st.CurrentNode, nil },
		QueryPendingTask: func(st *State, _ any) (any, error) { return st.PendingTask, nil },
		QueryState:       func(st *State, _ any) (any, error) { return st, nil },
		QueryVariables: func(st *State, args any) (any, error) {
			// A string argument selects one variable.
			if name, ok := args.(string); ok && name != "" {
				v, exists := st.Variables[name]
				if !exists {
					return nil, fmt.Errorf("query: variable %q not set", name)
				}
				return v, nil
			}
			return st.Variables, nil
		},
	}

	for name, answer := range builtins {
		answer := answer
		err := registry.Register(name, func(ctx context.Context, executionID string, args any) (any, error) {
			st, err := load(ctx, executionID)
			if err != nil {
				return nil, err
			}
			if st == nil {
				return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, executionID)
			}
			return answer(st, args)
		})
		if err != nil {
			return fmt.Errorf("query: register builtin %q: %w", name, err)
		}
	}
	return nil
}
