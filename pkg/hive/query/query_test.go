package query_test

import (
	"context"
	"testing"

	"github.com/hive-run/graphrt/pkg/hive/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticLoader(states map[string]*query.State) query.StateLoader {
	return func(_ context.Context, executionID string) (*query.State, error) {
		return states[executionID], nil
	}
}

func TestRegistry_RegisterRejectsDuplicates(t *testing.T) {
	r := query.NewRegistry()
	handler := func(_ context.Context, _ string, _ any) (any, error) { return nil, nil }

	require.NoError(t, r.Register("custom", handler))
	err := r.Register("custom", handler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := query.NewRegistry()
	assert.Error(t, r.Register("", func(_ context.Context, _ string, _ any) (any, error) { return nil, nil }))
	assert.Error(t, r.Register("name", nil))
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	r := query.NewRegistry()
	handler := func(_ context.Context, _ string, _ any) (any, error) { return nil, nil }
	r.MustRegister("once", handler)
	assert.Panics(t, func() { r.MustRegister("once", handler) })
}

func TestRegistry_GetAndList(t *testing.T) {
	r := query.NewRegistry()
	r.MustRegister("a", func(_ context.Context, _ string, _ any) (any, error) { return nil, nil })
	r.MustRegister("b", func(_ context.Context, _ string, _ any) (any, error) { return nil, nil })

	_, ok := r.Get("a")
	assert.True(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"a", "b"}, r.List())
}

func TestExecutor_Builtins(t *testing.T) {
	states := map[string]*query.State{
		"exec-1": {
			TargetID:    "exec-1",
			Status:      "running",
			CurrentNode: "analyze",
			Progress:    0.5,
			Variables:   map[string]any{"x": 3, "label": "pos"},
		},
	}
	r := query.NewRegistry()
	require.NoError(t, query.RegisterBuiltins(r, staticLoader(states)))
	x := query.NewExecutor(r, staticLoader(states))

	status, err := x.Execute(context.Background(), "exec-1", query.QueryStatus, nil)
	require.NoError(t, err)
	assert.Equal(t, "running", status)

	node, err := x.Execute(context.Background(), "exec-1", query.QueryCurrentNode, nil)
	require.NoError(t, err)
	assert.Equal(t, "analyze", node)

	progress, err := x.Execute(context.Background(), "exec-1", query.QueryProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, progress)

	st, err := x.Execute(context.Background(), "exec-1", query.QueryState, nil)
	require.NoError(t, err)
	assert.Equal(t, states["exec-1"], st)
}

func TestExecutor_VariablesQuery(t *testing.T) {
	states := map[string]*query.State{
		"exec-1": {TargetID: "exec-1", Variables: map[string]any{"x": 3}},
	}
	r := query.NewRegistry()
	require.NoError(t, query.RegisterBuiltins(r, staticLoader(states)))
	x := query.NewExecutor(r, staticLoader(states))

	// No argument returns the whole map.
	all, err := x.Execute(context.Background(), "exec-1", query.QueryVariables, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 3}, all)

	// A string argument selects one variable.
	v, err := x.Execute(context.Background(), "exec-1", query.QueryVariables, "x")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = x.Execute(context.Background(), "exec-1", query.QueryVariables, "missing")
	assert.Error(t, err)
}

func TestExecutor_PendingTaskQuery(t *testing.T) {
	pending := &query.PendingTask{TaskID: "cp-1", NodeID: "ask", Title: "awaiting client input"}
	states := map[string]*query.State{
		"paused": {TargetID: "paused", Status: "paused", PendingTask: pending},
		"live":   {TargetID: "live", Status: "running"},
	}
	r := query.NewRegistry()
	require.NoError(t, query.RegisterBuiltins(r, staticLoader(states)))
	x := query.NewExecutor(r, staticLoader(states))

	got, err := x.Execute(context.Background(), "paused", query.QueryPendingTask, nil)
	require.NoError(t, err)
	assert.Equal(t, pending, got)

	got, err = x.Execute(context.Background(), "live", query.QueryPendingTask, nil)
	require.NoError(t, err)
	assert.Nil(t, got.(*query.PendingTask))
}

func TestExecutor_UnknownQuery(t *testing.T) {
	r := query.NewRegistry()
	x := query.NewExecutor(r, staticLoader(nil))

	_, err := x.Execute(context.Background(), "exec-1", "nope", nil)
	assert.ErrorIs(t, err, query.ErrQueryNotFound)
}

func TestExecutor_UnknownExecution(t *testing.T) {
	r := query.NewRegistry()
	require.NoError(t, query.RegisterBuiltins(r, staticLoader(nil)))
	x := query.NewExecutor(r, staticLoader(nil))

	_, err := x.Execute(context.Background(), "ghost", query.QueryStatus, nil)
	assert.ErrorIs(t, err, query.ErrTargetNotFound)
}

func TestExecutor_EmptyExecutionID(t *testing.T) {
	r := query.NewRegistry()
	x := query.NewExecutor(r, staticLoader(nil))

	_, err := x.Execute(context.Background(), "", query.QueryStatus, nil)
	assert.Error(t, err)
}

func TestExecutor_CustomQuery(t *testing.T) {
	r := query.NewRegistry()
	r.MustRegister("echo_args", func(_ context.Context, executionID string, args any) (any, error) {
		return map[string]any{"execution_id": executionID, "args": args}, nil
	})
	x := query.NewExecutor(r, staticLoader(nil))

	got, err := x.Execute(context.Background(), "exec-1", "echo_args", 42)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"execution_id": "exec-1", "args": 42}, got)
}
