package graph

import (
	"gonum.org/v1/gonum/graph/simple"
)

// Graph is the bipartite Declaration/Definition dependency graph built by
// Build. After construction it is read-only: walks and checks never
// mutate it, so no locking is needed while it is shared across worker
// goroutines (spec §5 "Graph: read-only after build").
type Graph struct {
	g     *simple.DirectedGraph
	nodes map[int64]*Node
	order []int64 // insertion order, for deterministic iteration

	Roots     []*Node // no outgoing edges (units with no dependencies)
	Terminals []*Node // no incoming edges (DFS starting points)
	Public    []*Node
	External  []*Node

	// Invalid is true if the declaration sub-graph contains a cycle not
	// cut by any body-only import (spec I2, §4.7 "mark the graph
	// invalid").
	Invalid bool
}

// Node returns the node with the given encoded ID, or nil.
func (g *Graph) Node(id int64) *Node {
	return g.nodes[id]
}

// NodeCount returns the total number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Dependencies returns the nodes N depends on (N's outgoing edges).
func (g *Graph) Dependencies(n *Node) []*Node {
	it := g.g.From(n.id)
	var out []*Node
	for it.Next() {
		out = append(out, g.nodes[it.Node().ID()])
	}
	return out
}

// Dependents returns the nodes that depend on N (N's incoming edges).
func (g *Graph) Dependents(n *Node) []*Node {
	it := g.g.To(n.id)
	var out []*Node
	for it.Next() {
		out = append(out, g.nodes[it.Node().ID()])
	}
	return out
}

// All returns every node in the graph, in an unspecified but stable
// (insertion) order.
func (g *Graph) All() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}
