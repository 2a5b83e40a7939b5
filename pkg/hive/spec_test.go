package hive

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeSpec_VisitCapDefaults(t *testing.T) {
	n := &NodeSpec{ID: "n"}
	assert.Equal(t, 10, n.maxVisits())

	n.MaxNodeVisits = 3
	assert.Equal(t, 3, n.maxVisits())

	n.MaxNodeVisits = -1
	assert.Equal(t, 10, n.maxVisits(), "nonsensical caps fall back to the default")
}

func TestEdgeSpec_PriorityDefaults(t *testing.T) {
	e := &EdgeSpec{ID: "e"}
	assert.Equal(t, 100, e.priority())

	e.Priority = 5
	assert.Equal(t, 5, e.priority())
}

func TestNodeType_Valid(t *testing.T) {
	for _, typ := range []NodeType{NodeLLMGenerate, NodeLLMToolUse, NodeFunction, NodeRouter, NodeClientInput, NodeSubGraph} {
		assert.True(t, typ.valid(), "type %s", typ)
	}
	assert.False(t, NodeType("shell").valid())
	assert.False(t, NodeType("").valid())
}

func TestGraphSpec_IsTerminal(t *testing.T) {
	g := &GraphSpec{TerminalNodes: []string{"done", "abort"}}
	assert.True(t, g.IsTerminal("done"))
	assert.True(t, g.IsTerminal("abort"))
	assert.False(t, g.IsTerminal("start"))
}

func TestGraphSpec_Validate(t *testing.T) {
	valid := func() *GraphSpec {
		return &GraphSpec{
			ID:            "g",
			EntryNode:     "a",
			TerminalNodes: []string{"b"},
			EntryPoints:   map[string]string{"alt": "a"},
			Nodes: []NodeSpec{
				{ID: "a", Type: NodeFunction, Function: "work"},
				{ID: "b", Type: NodeFunction, Function: "work"},
			},
			Edges: []EdgeSpec{{ID: "e1", Source: "a", Target: "b", Condition: CondAlways}},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*GraphSpec)
		want   string
	}{
		{"missing entry node", func(g *GraphSpec) { g.EntryNode = "" }, "entry_node"},
		{"entry node unknown", func(g *GraphSpec) { g.EntryNode = "ghost" }, "entry node"},
		{"node with empty id", func(g *GraphSpec) { g.Nodes[0].ID = "" }, "empty id"},
		{"duplicate node ids", func(g *GraphSpec) { g.Nodes[1].ID = "a" }, "duplicate node id"},
		{"unknown node type", func(g *GraphSpec) { g.Nodes[0].Type = "shell" }, "unknown type"},
		{"function node without function", func(g *GraphSpec) { g.Nodes[0].Function = "" }, "no function reference"},
		{"sub_graph node without graph", func(g *GraphSpec) {
			g.Nodes[0].Type = NodeSubGraph
			g.Nodes[0].Function = ""
		}, "no embedded graph"},
		{"terminal node unknown", func(g *GraphSpec) { g.TerminalNodes = []string{"ghost"} }, "terminal node"},
		{"entry point to unknown node", func(g *GraphSpec) { g.EntryPoints["alt"] = "ghost" }, "entry point"},
		{"edge with empty id", func(g *GraphSpec) { g.Edges[0].ID = "" }, "empty id"},
		{"duplicate edge ids", func(g *GraphSpec) {
			g.Edges = append(g.Edges, EdgeSpec{ID: "e1", Source: "a", Target: "b", Condition: CondAlways})
		}, "duplicate edge id"},
		{"edge from unknown source", func(g *GraphSpec) { g.Edges[0].Source = "ghost" }, "unknown source"},
		{"edge to unknown target", func(g *GraphSpec) { g.Edges[0].Target = "ghost" }, "unknown target"},
		{"edge out of terminal node", func(g *GraphSpec) {
			g.Edges = append(g.Edges, EdgeSpec{ID: "e2", Source: "b", Target: "a", Condition: CondAlways})
		}, "terminal node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := valid()
			tt.mutate(g)
			err := g.Validate()
			require.ErrorIs(t, err, ErrInvalidGraph)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGraphSpec_JSONShape(t *testing.T) {
	raw := []byte(`{
		"id": "triage",
		"goal_id": "goal-1",
		"version": "2",
		"entry_node": "classify",
		"terminal_nodes": ["done"],
		"entry_points": {"replay": "classify"},
		"nodes": [
			{"id": "classify", "name": "classify", "type": "router", "input_keys": ["ticket"], "output_keys": ["routed"], "max_node_visits": 2},
			{"id": "done", "name": "done", "type": "function", "function": "archive", "input_keys": [], "output_keys": []}
		],
		"edges": [
			{"id": "e1", "source": "classify", "target": "done", "condition": "routed == \"ok\"", "priority": 1, "parallel": false}
		]
	}`)

	var g GraphSpec
	require.NoError(t, json.Unmarshal(raw, &g))
	require.NoError(t, g.Validate())

	assert.Equal(t, "triage", g.ID)
	assert.Equal(t, "classify", g.EntryNode)
	assert.Equal(t, NodeRouter, g.Nodes[0].Type)
	assert.Equal(t, 2, g.Nodes[0].MaxNodeVisits)
	assert.Equal(t, []string{"ticket"}, g.Nodes[0].InputKeys)
	assert.Equal(t, `routed == "ok"`, g.Edges[0].Condition)
	assert.Equal(t, 1, g.Edges[0].Priority)
}
