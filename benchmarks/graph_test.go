package benchmarks

import (
	"fmt"
	"testing"

	"github.com/hive-run/graphrt/pkg/hive"
)

// noop is the function behind most benchmark nodes: minimal work so the
// numbers measure framework overhead, not payload cost.
func noop(_ hive.Context, in map[string]any) (map[string]any, error) {
	return in, nil
}

func benchFunctions() *hive.FunctionRegistry {
	fns := hive.NewFunctionRegistry()
	fns.Register("noop", noop)
	fns.Register("bump", func(_ hive.Context, in map[string]any) (map[string]any, error) {
		n, _ := in["n"].(int)
		return map[string]any{"n": n + 1}, nil
	})
	return fns
}

func nodeID(n int) string {
	return fmt.Sprintf("n%03d", n)
}

func buildLinearSpec(n int) *hive.GraphSpec {
	spec := &hive.GraphSpec{
		ID:            fmt.Sprintf("linear-%d", n),
		EntryNode:     nodeID(0),
		TerminalNodes: []string{nodeID(n - 1)},
	}
	for i := 0; i < n; i++ {
		spec.Nodes = append(spec.Nodes, hive.NodeSpec{
			ID: nodeID(i), Name: nodeID(i), Type: hive.NodeFunction, Function: "noop",
		})
	}
	for i := 0; i < n-1; i++ {
		spec.Edges = append(spec.Edges, hive.EdgeSpec{
			ID: fmt.Sprintf("e%03d", i), Source: nodeID(i), Target: nodeID(i + 1), Condition: hive.CondAlways,
		})
	}
	return spec
}

func buildBranchingSpec() *hive.GraphSpec {
	return &hive.GraphSpec{
		ID:            "branching",
		EntryNode:     "route",
		TerminalNodes: []string{"merge"},
		Nodes: []hive.NodeSpec{
			{ID: "route", Name: "route", Type: hive.NodeFunction, Function: "bump", InputKeys: []string{"n"}, OutputKeys: []string{"n"}},
			{ID: "even", Name: "even", Type: hive.NodeFunction, Function: "noop"},
			{ID: "odd", Name: "odd", Type: hive.NodeFunction, Function: "noop"},
			{ID: "merge", Name: "merge", Type: hive.NodeFunction, Function: "noop"},
		},
		Edges: []hive.EdgeSpec{
			{ID: "re", Source: "route", Target: "even", Condition: "n == 2", Priority: 1},
			{ID: "ro", Source: "route", Target: "odd", Condition: hive.CondAlways, Priority: 2},
			{ID: "em", Source: "even", Target: "merge", Condition: hive.CondAlways},
			{ID: "om", Source: "odd", Target: "merge", Condition: hive.CondAlways},
		},
	}
}

// BenchmarkCompile_Linear measures compile cost across graph sizes.
func BenchmarkCompile_Linear(b *testing.B) {
	for _, n := range []int{5, 10, 50, 100} {
		spec := buildLinearSpec(n)
		b.Run(fmt.Sprintf("%d_nodes", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := hive.Compile(spec); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkCompile_Branching compiles a graph with conditional edges.
func BenchmarkCompile_Branching(b *testing.B) {
	spec := buildBranchingSpec()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := hive.Compile(spec); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkValidate measures bare structural validation.
func BenchmarkValidate(b *testing.B) {
	spec := buildLinearSpec(50)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := spec.Validate(); err != nil {
			b.Fatal(err)
		}
	}
}
