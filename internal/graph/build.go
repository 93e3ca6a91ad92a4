package graph

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/kaomoneus/cppl/internal/depfile"
	"github.com/kaomoneus/cppl/internal/pool"
)

// UnknownImportError is a GraphError (spec §7): an import target that
// does not appear in the set of parsed-imports records the graph was
// built from.
type UnknownImportError struct {
	From, To string
}

func (e UnknownImportError) Error() string {
	return fmt.Sprintf("graph: %q imports unknown unit %q", e.From, e.To)
}

// CycleError is a GraphError (spec §7, I2): the declaration sub-graph
// contains a cycle that no body-only import cuts.
type CycleError struct {
	Cycle []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("graph: cycle in declaration imports: %v", e.Cycle)
}

// Build constructs the bipartite Declaration/Definition graph from a set
// of per-unit parsed-imports records (spec §4.7). p interns unit
// identifiers into the pool.ID values used as node keys.
func Build(p *pool.Pool, imports map[string]depfile.ParsedImports) (*Graph, error) {
	g := &Graph{
		g:     simple.NewDirectedGraph(),
		nodes: make(map[int64]*Node),
	}

	// stable iteration order over input units, for deterministic node
	// creation order (P2).
	unitIDs := make([]string, 0, len(imports))
	for id := range imports {
		unitIDs = append(unitIDs, id)
	}
	sort.Strings(unitIDs)

	for _, id := range unitIDs {
		rec := imports[id]
		unit := p.Intern(id)
		decl := newNode(Declaration, unit)
		decl.Public = rec.IsPublic
		decl.External = rec.IsExternal
		g.addNode(decl)

		if !rec.IsExternal {
			def := newNode(Definition, unit)
			g.addNode(def)
		}
	}

	for _, id := range unitIDs {
		rec := imports[id]
		unit := p.Intern(id)
		decl := g.nodes[EncodeID(Declaration, unit)]
		def, hasDef := g.nodes[EncodeID(Definition, unit)]

		for _, dep := range rec.DeclImports {
			depID, ok := p.Lookup(dep)
			if !ok {
				return nil, UnknownImportError{From: id, To: dep}
			}
			depDecl, ok := g.nodes[EncodeID(Declaration, depID)]
			if !ok {
				return nil, UnknownImportError{From: id, To: dep}
			}
			g.addEdge(decl, depDecl)
			if hasDef {
				g.addEdge(def, depDecl)
			}
		}
		for _, dep := range rec.BodyImports {
			if !hasDef {
				continue
			}
			depID, ok := p.Lookup(dep)
			if !ok {
				return nil, UnknownImportError{From: id, To: dep}
			}
			depDecl, ok := g.nodes[EncodeID(Declaration, depID)]
			if !ok {
				return nil, UnknownImportError{From: id, To: dep}
			}
			g.addEdge(def, depDecl)
		}
	}

	g.computeRootsAndTerminals()
	g.computePublicClosure()
	g.computeExternal()

	if g.NodeCount() > 0 && len(g.Roots) == 0 {
		g.Invalid = true
	}
	if cyc := g.declarationCycle(); cyc != nil {
		g.Invalid = true
		return g, CycleError{Cycle: cyc}
	}

	return g, nil
}

func (g *Graph) addNode(n *Node) {
	g.g.AddNode(n)
	g.nodes[n.id] = n
	g.order = append(g.order, n.id)
}

func (g *Graph) addEdge(from, to *Node) {
	if g.g.HasEdgeFromTo(from.id, to.id) {
		return
	}
	g.g.SetEdge(simple.Edge{F: from, T: to})
}

func (g *Graph) computeRootsAndTerminals() {
	for _, id := range g.order {
		n := g.nodes[id]
		if g.g.From(n.id).Len() == 0 {
			g.Roots = append(g.Roots, n)
		}
		if g.g.To(n.id).Len() == 0 {
			g.Terminals = append(g.Terminals, n)
		}
	}
}

// computePublicClosure implements I4: public is closed under ordinary-
// import-derived declaration edges. By construction, every outgoing edge
// from a Declaration node is an ordinary-import Declaration->Declaration
// edge (body-only imports only ever originate from Definition nodes), so
// a plain forward walk restricted to Declaration nodes is sufficient.
func (g *Graph) computePublicClosure() {
	var seeds []*Node
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Kind == Declaration && n.Public {
			seeds = append(seeds, n)
		}
	}
	visited := make(map[int64]bool)
	var visit func(n *Node)
	visit = func(n *Node) {
		if visited[n.id] {
			return
		}
		visited[n.id] = true
		n.Public = true
		for _, dep := range g.Dependencies(n) {
			if dep.Kind == Declaration {
				visit(dep)
			}
		}
	}
	for _, s := range seeds {
		visit(s)
	}
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Kind == Declaration && n.Public {
			g.Public = append(g.Public, n)
		}
	}
}

func (g *Graph) computeExternal() {
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Kind == Declaration && n.External {
			g.External = append(g.External, n)
		}
	}
}

// declarationCycle runs a topological sort restricted to Declaration
// nodes (and their ordinary-import edges) to find a cycle, if any, that
// the cheaper "roots is empty" check in Build might miss for graphs with
// multiple connected components.
func (g *Graph) declarationCycle() []string {
	declOnly := simple.NewDirectedGraph()
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Kind == Declaration {
			declOnly.AddNode(n)
		}
	}
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Kind != Declaration {
			continue
		}
		for _, dep := range g.Dependencies(n) {
			if dep.Kind == Declaration {
				declOnly.SetEdge(simple.Edge{F: n, T: dep})
			}
		}
	}
	if _, err := topo.Sort(declOnly); err != nil {
		cycles := topo.DirectedCyclesIn(declOnly)
		if len(cycles) == 0 {
			return []string{"<unknown>"}
		}
		out := make([]string, 0, len(cycles[0]))
		for _, n := range cycles[0] {
			out = append(out, fmt.Sprintf("%d", n.ID()))
		}
		return out
	}
	return nil
}
