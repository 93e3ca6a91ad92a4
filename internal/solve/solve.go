// Package solve computes per-node transitive dependency lists and
// provides the dsf_jobs walk primitive (spec §4.8): a dependency-first
// traversal of the graph that runs a callback on each node exactly once,
// fanning subnode work out across the task manager.
package solve

import (
	"context"
	"sync"

	"github.com/kaomoneus/cppl/internal/graph"
	"github.com/kaomoneus/cppl/internal/task"
)

// TransitiveDeps computes n's full transitive dependency list: every node
// reachable from n by following Dependencies edges, deduplicated and in
// post-order (each node after its own dependencies). Results are memoized
// across calls sharing a Solver, since sibling nodes frequently share
// large parts of their dependency subtrees.
type Solver struct {
	g *graph.Graph

	mu   sync.Mutex
	memo map[int64][]*graph.Node
}

// New creates a Solver over g. g must not be mutated afterward (it is
// read-only after Build per spec §5, which is what makes sharing it
// across worker goroutines here safe).
func New(g *graph.Graph) *Solver {
	return &Solver{g: g, memo: make(map[int64][]*graph.Node)}
}

// TransitiveDeps returns n's full transitive dependency list: the
// declaration (and, where reachable, definition) artifacts that must be
// preloaded to compile n. The slice is deduplicated within n, but the
// same node may legitimately appear in more than one call's result.
func (s *Solver) TransitiveDeps(n *graph.Node) []*graph.Node {
	s.mu.Lock()
	if cached, ok := s.memo[n.ID()]; ok {
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	visited := make(map[int64]bool)
	var order []*graph.Node
	var visit func(n *graph.Node)
	visit = func(n *graph.Node) {
		for _, dep := range s.g.Dependencies(n) {
			if visited[dep.ID()] {
				continue
			}
			visited[dep.ID()] = true
			visit(dep)
			order = append(order, dep)
		}
	}
	visit(n)

	s.mu.Lock()
	s.memo[n.ID()] = order
	s.mu.Unlock()
	return order
}

// OnNode is the per-node callback dsf_jobs invokes after all of n's
// subnodes have completed. It returns whether processing n succeeded.
type OnNode func(ctx context.Context, n *graph.Node) bool

// Walker runs a dsf_jobs traversal once, ensuring every node's subtree of
// subnode-processing runs at most once even when the node is reachable
// from more than one terminal (spec §4.8 step 5, "Visited").
type Walker struct {
	g      *graph.Graph
	mgr    *task.Manager
	onNode OnNode

	mu      sync.Mutex
	visited map[int64]*nodeRun
}

type nodeRun struct {
	done chan struct{}
	ok   bool
}

// NewWalker creates a Walker that processes g's nodes using mgr for
// scheduling, invoking onNode once per node after its subnodes are done.
func NewWalker(g *graph.Graph, mgr *task.Manager, onNode OnNode) *Walker {
	return &Walker{
		g:       g,
		mgr:     mgr,
		onNode:  onNode,
		visited: make(map[int64]*nodeRun),
	}
}

// Run starts the walk from every terminal node (spec §4.8 step 1) and
// blocks until the whole graph has been processed. It returns false if
// any node's subtask or onNode invocation failed.
func (w *Walker) Run(ctx context.Context) bool {
	ids := make([]task.ID, 0, len(w.g.Terminals))
	for _, term := range w.g.Terminals {
		term := term
		ids = append(ids, w.mgr.AddTask(func(ctx context.Context) bool {
			return w.process(ctx, term)
		}))
	}
	w.mgr.WaitForTasks(ids...)
	return w.mgr.AllSuccessful(ids...)
}

// process runs n's subtree at most once (spec §4.8 step 5): concurrent
// callers racing to process the same node all wait on the single actual
// run and share its result.
func (w *Walker) process(ctx context.Context, n *graph.Node) bool {
	w.mu.Lock()
	if run, already := w.visited[n.ID()]; already {
		w.mu.Unlock()
		<-run.done
		return run.ok
	}
	run := &nodeRun{done: make(chan struct{})}
	w.visited[n.ID()] = run
	w.mu.Unlock()

	ok := w.runSubnodes(ctx, w.g.Dependencies(n))
	if ok {
		ok = w.onNode(ctx, n)
	}
	run.ok = ok
	close(run.done)
	return ok
}

// runSubnodes implements spec §4.8 steps 2-4: process n's subnodes
// before n itself. All but the last dependency are submitted normally
// (task.Manager.RunTask); the last is submitted via AddTaskSameThread so
// the calling worker tail-calls straight into it instead of spawning a
// goroutine that would have to wait for a permit. If the caller holds a
// permit of its own, it is released before blocking on the rest and
// reacquired after, so the wait never shrinks the pool's concurrency.
func (w *Walker) runSubnodes(ctx context.Context, deps []*graph.Node) bool {
	if len(deps) == 0 {
		return true
	}

	ids := make([]task.ID, 0, len(deps))
	for i, dep := range deps {
		dep := dep
		if i == len(deps)-1 {
			ids = append(ids, w.mgr.AddTaskSameThread(ctx, func(ctx context.Context) bool {
				return w.process(ctx, dep)
			}))
			continue
		}
		ids = append(ids, w.mgr.RunTask(ctx, func(ctx context.Context) bool {
			return w.process(ctx, dep)
		}))
	}

	if len(ids) > 1 {
		pending := ids[:len(ids)-1]
		if task.HoldsPermit(ctx) {
			w.mgr.ReleasePermit()
			defer func() {
				// Best effort: if reacquiring fails (ctx cancelled) the
				// overall walk is already failing, so don't mask it.
				_ = w.mgr.ReacquirePermit(ctx)
			}()
		}
		w.mgr.WaitForTasks(pending...)
	}

	return w.mgr.AllSuccessful(ids...)
}
