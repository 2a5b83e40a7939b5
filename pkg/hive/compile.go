package hive

import (
	"fmt"
	"sort"
)

// CompiledGraph is the immutable, validated form of a GraphSpec with the
// fan-out/fan-in structure precomputed at load time so the executor never
// has to search for a convergence node while a run is in flight.
type CompiledGraph struct {
	spec *GraphSpec

	nodesByID map[string]*NodeSpec
	outEdges  map[string][]EdgeSpec // sorted by (priority, id)
	terminal  map[string]bool

	// forkSets maps a fan-out source node to its parallel target node ids.
	forkSets map[string][]string
	// joinFor maps a fan-out source node to its convergence (join) node id.
	joinFor map[string]string
}

// Spec returns the GraphSpec this graph was compiled from.
func (c *CompiledGraph) Spec() *GraphSpec { return c.spec }

// Node looks up a node by id.
func (c *CompiledGraph) Node(id string) (*NodeSpec, bool) {
	n, ok := c.nodesByID[id]
	return n, ok
}

// IsTerminal reports whether id names a terminal node.
func (c *CompiledGraph) IsTerminal(id string) bool { return c.terminal[id] }

// OutEdges returns the outgoing edges of id in selection order: ascending
// priority, ties broken by edge id.
func (c *CompiledGraph) OutEdges(id string) []EdgeSpec { return c.outEdges[id] }

// ForkSet returns the parallel targets fanning out from id, if any.
func (c *CompiledGraph) ForkSet(id string) ([]string, bool) {
	targets, ok := c.forkSets[id]
	return targets, ok
}

// JoinNode returns the convergence node for a fork at id, if any.
func (c *CompiledGraph) JoinNode(id string) (string, bool) {
	j, ok := c.joinFor[id]
	return j, ok
}

// Compile validates a GraphSpec and precomputes its fork/join structure.
// The returned CompiledGraph is safe for concurrent use by many executions.
func Compile(spec *GraphSpec) (*CompiledGraph, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	c := &CompiledGraph{
		spec:      spec,
		nodesByID: make(map[string]*NodeSpec, len(spec.Nodes)),
		outEdges:  make(map[string][]EdgeSpec),
		terminal:  make(map[string]bool, len(spec.TerminalNodes)),
		forkSets:  make(map[string][]string),
		joinFor:   make(map[string]string),
	}
	for i := range spec.Nodes {
		n := &spec.Nodes[i]
		c.nodesByID[n.ID] = n
	}
	for _, t := range spec.TerminalNodes {
		c.terminal[t] = true
	}
	for _, e := range spec.Edges {
		c.outEdges[e.Source] = append(c.outEdges[e.Source], e)
	}
	for src, edges := range c.outEdges {
		sort.SliceStable(edges, func(i, j int) bool {
			pi, pj := edges[i].priority(), edges[j].priority()
			if pi != pj {
				return pi < pj
			}
			return edges[i].ID < edges[j].ID
		})
		c.outEdges[src] = edges
	}

	if err := c.detectReachability(); err != nil {
		return nil, err
	}
	if err := c.detectForkJoin(); err != nil {
		return nil, err
	}
	return c, nil
}

// detectReachability ensures every node is reachable from the entry node,
// InvalidGraph is returned if reachability analysis finds a node unreachable from the entry node.
func (c *CompiledGraph) detectReachability() error {
	visited := c.computeReachable(c.spec.EntryNode)
	for id := range c.nodesByID {
		if !visited[id] {
			return fmt.Errorf("%w: node %q is unreachable from entry node %q", ErrInvalidGraph, id, c.spec.EntryNode)
		}
	}
	return nil
}

// computeReachable runs a BFS from start over the edge set, ignoring
// conditions (reachability is a structural property, not a runtime one).
func (c *CompiledGraph) computeReachable(start string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range c.outEdges[cur] {
			if !visited[e.Target] {
				visited[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return visited
}

// detectForkJoin finds, for every node with at least one edge marked
// parallel:true, the set of parallel targets and their common convergence
// node — the lowest node reachable from every parallel branch, determined
// by BFS at compile time.
func (c *CompiledGraph) detectForkJoin() error {
	for src, edges := range c.outEdges {
		var parallelTargets []string
		for _, e := range edges {
			if e.Parallel {
				parallelTargets = append(parallelTargets, e.Target)
			}
		}
		if len(parallelTargets) == 0 {
			continue
		}
		join, err := c.findJoinNode(src, parallelTargets)
		if err != nil {
			return err
		}
		c.forkSets[src] = parallelTargets
		c.joinFor[src] = join
	}
	return nil
}

// findJoinNode computes the closest common descendant of all branch roots,
// excluding the branch roots themselves, by BFS layer from each root and
// intersecting reachable sets, picking the one minimizing total BFS depth.
func (c *CompiledGraph) findJoinNode(src string, branchRoots []string) (string, error) {
	if len(branchRoots) == 1 {
		// A fan-out of one behaves like a sequential edge; there is no
		// real join — the branch's own continuation is its join.
		return branchRoots[0], nil
	}

	reachablePerBranch := make([]map[string]int, len(branchRoots))
	for i, root := range branchRoots {
		reachablePerBranch[i] = c.bfsDepths(root)
	}

	isRoot := make(map[string]bool, len(branchRoots))
	for _, root := range branchRoots {
		isRoot[root] = true
	}

	common := make(map[string]int)
	for id, depth0 := range reachablePerBranch[0] {
		if isRoot[id] {
			continue
		}
		total := depth0
		inAll := true
		for i := 1; i < len(reachablePerBranch); i++ {
			d, ok := reachablePerBranch[i][id]
			if !ok {
				inAll = false
				break
			}
			total += d
		}
		if inAll {
			common[id] = total
		}
	}
	if len(common) == 0 {
		return "", fmt.Errorf("%w: fan-out from %q has no common convergence node", ErrInvalidGraph, src)
	}

	var best string
	bestDepth := -1
	var ids []string
	for id := range common {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := common[id]
		if bestDepth == -1 || d < bestDepth {
			best = id
			bestDepth = d
		}
	}
	return best, nil
}

// bfsDepths returns every node reachable from start (start included, at
// depth 0) mapped to its BFS depth.
func (c *CompiledGraph) bfsDepths(start string) map[string]int {
	depths := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range c.outEdges[cur] {
			if _, ok := depths[e.Target]; !ok {
				depths[e.Target] = depths[cur] + 1
				queue = append(queue, e.Target)
			}
		}
	}
	return depths
}
