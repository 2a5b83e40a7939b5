// Package hive implements the graph execution engine at the core of the
// runtime: it walks a GraphSpec from its entry node to a terminal state,
// resolving edges conditionally, bounding loops, and fanning work out and
// back in where the graph asks for it.
package hive

import "fmt"

// NodeType identifies which node implementation variant a NodeSpec uses.
type NodeType string

// Node type variants. Each variant exposes
// Run(ctx, stateNamespace) -> (outputs, status).
const (
	NodeLLMGenerate NodeType = "llm_generate"
	NodeLLMToolUse  NodeType = "llm_tool_use"
	NodeFunction    NodeType = "function"
	NodeRouter      NodeType = "router"
	NodeClientInput NodeType = "client_input"
	NodeSubGraph    NodeType = "sub_graph"
)

func (t NodeType) valid() bool {
	switch t {
	case NodeLLMGenerate, NodeLLMToolUse, NodeFunction, NodeRouter, NodeClientInput, NodeSubGraph:
		return true
	}
	return false
}

// EdgeCondition shorthands recognized without invoking the expression
// evaluator.
const (
	CondAlways    = "always"
	CondOnSuccess = "on_success"
	CondOnFailure = "on_failure"
)

// NodeSpec describes one addressable unit of work in a graph.
type NodeSpec struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Type          NodeType `json:"type" yaml:"type"`
	InputKeys     []string `json:"input_keys" yaml:"input_keys"`
	OutputKeys    []string `json:"output_keys" yaml:"output_keys"`
	Tools         []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Function      string   `json:"function,omitempty" yaml:"function,omitempty"`
	MaxNodeVisits int      `json:"max_node_visits,omitempty" yaml:"max_node_visits,omitempty"`
	LoopCondition string   `json:"loop_condition,omitempty" yaml:"loop_condition,omitempty"`
	ClientFacing  bool     `json:"client_facing,omitempty" yaml:"client_facing,omitempty"`

	// SubGraph holds the embedded GraphSpec for type sub_graph.
	SubGraph *GraphSpec `json:"sub_graph,omitempty" yaml:"sub_graph,omitempty"`
}

func (n *NodeSpec) maxVisits() int {
	if n.MaxNodeVisits <= 0 {
		return 10
	}
	return n.MaxNodeVisits
}

// EdgeSpec is a directed, conditioned connection between two nodes.
type EdgeSpec struct {
	ID        string `json:"id" yaml:"id"`
	Source    string `json:"source" yaml:"source"`
	Target    string `json:"target" yaml:"target"`
	Condition string `json:"condition" yaml:"condition"`
	Priority  int    `json:"priority,omitempty" yaml:"priority,omitempty"`
	Parallel  bool   `json:"parallel,omitempty" yaml:"parallel,omitempty"`
}

func (e *EdgeSpec) priority() int {
	if e.Priority == 0 {
		return 100
	}
	return e.Priority
}

// ConstraintCategory classifies a Goal constraint.
type ConstraintCategory string

// Constraint categories.
const (
	ConstraintCost       ConstraintCategory = "cost"
	ConstraintQuality    ConstraintCategory = "quality"
	ConstraintFunctional ConstraintCategory = "functional"
	ConstraintSafety     ConstraintCategory = "safety"
)

// ConstraintKind distinguishes hard requirements from soft preferences.
type ConstraintKind string

// Constraint kinds.
const (
	ConstraintHard ConstraintKind = "hard"
	ConstraintSoft ConstraintKind = "soft"
)

// Constraint is one bound on how a Goal may be pursued.
type Constraint struct {
	Description string             `json:"description" yaml:"description"`
	Category    ConstraintCategory `json:"category" yaml:"category"`
	Kind        ConstraintKind     `json:"kind" yaml:"kind"`
}

// Goal names the outcome a graph is trying to reach and the constraints
// it must respect while doing so.
type Goal struct {
	ID              string       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Description     string       `json:"description" yaml:"description"`
	SuccessCriteria []string     `json:"success_criteria,omitempty" yaml:"success_criteria,omitempty"`
	Constraints     []Constraint `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// GraphSpec is the immutable-after-load description of an agent's graph.
type GraphSpec struct {
	ID            string            `json:"id" yaml:"id"`
	GoalID        string            `json:"goal_id" yaml:"goal_id"`
	Version       string            `json:"version,omitempty" yaml:"version,omitempty"`
	EntryNode     string            `json:"entry_node" yaml:"entry_node"`
	TerminalNodes []string          `json:"terminal_nodes" yaml:"terminal_nodes"`
	EntryPoints   map[string]string `json:"entry_points,omitempty" yaml:"entry_points,omitempty"`
	Nodes         []NodeSpec        `json:"nodes" yaml:"nodes"`
	Edges         []EdgeSpec        `json:"edges" yaml:"edges"`
}

// IsTerminal reports whether nodeID is one of the graph's terminal nodes.
func (g *GraphSpec) IsTerminal(nodeID string) bool {
	for _, t := range g.TerminalNodes {
		if t == nodeID {
			return true
		}
	}
	return false
}

// Validate checks structural invariants that do not require running the
// fork/join analysis: unique node ids, resolvable edge endpoints, a known
// entry node, and no outgoing edge from a terminal node.
func (g *GraphSpec) Validate() error {
	if g.EntryNode == "" {
		return fmt.Errorf("%w: entry_node is required", ErrInvalidGraph)
	}
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node with empty id", ErrInvalidGraph)
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: duplicate node id %q", ErrInvalidGraph, n.ID)
		}
		seen[n.ID] = true
		if !n.Type.valid() {
			return fmt.Errorf("%w: node %q has unknown type %q", ErrInvalidGraph, n.ID, n.Type)
		}
		if n.Type == NodeFunction && n.Function == "" {
			return fmt.Errorf("%w: function node %q has no function reference", ErrInvalidGraph, n.ID)
		}
		if n.Type == NodeSubGraph && n.SubGraph == nil {
			return fmt.Errorf("%w: sub_graph node %q has no embedded graph", ErrInvalidGraph, n.ID)
		}
	}
	if !seen[g.EntryNode] {
		return fmt.Errorf("%w: entry node %q not found among nodes", ErrInvalidGraph, g.EntryNode)
	}
	for _, t := range g.TerminalNodes {
		if !seen[t] {
			return fmt.Errorf("%w: terminal node %q not found among nodes", ErrInvalidGraph, t)
		}
	}
	for name, id := range g.EntryPoints {
		if !seen[id] {
			return fmt.Errorf("%w: entry point %q references unknown node %q", ErrInvalidGraph, name, id)
		}
	}
	terminal := make(map[string]bool, len(g.TerminalNodes))
	for _, t := range g.TerminalNodes {
		terminal[t] = true
	}
	edgeIDs := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e.ID == "" {
			return fmt.Errorf("%w: edge with empty id", ErrInvalidGraph)
		}
		if edgeIDs[e.ID] {
			return fmt.Errorf("%w: duplicate edge id %q", ErrInvalidGraph, e.ID)
		}
		edgeIDs[e.ID] = true
		if !seen[e.Source] {
			return fmt.Errorf("%w: edge %q has unknown source %q", ErrInvalidGraph, e.ID, e.Source)
		}
		if !seen[e.Target] {
			return fmt.Errorf("%w: edge %q has unknown target %q", ErrInvalidGraph, e.ID, e.Target)
		}
		if terminal[e.Source] {
			return fmt.Errorf("%w: edge %q originates from terminal node %q", ErrInvalidGraph, e.ID, e.Source)
		}
	}
	return nil
}
