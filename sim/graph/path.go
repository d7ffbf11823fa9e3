package graph

import (
	"fmt"
	"math"
	"sync"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// PathFinder answers shortest-path queries over a Graph using Dijkstra.
// Link cost is EdgeLength; parallel links contribute their cheapest member.
// Shortest-path trees are cached per source node.
type PathFinder struct {
	g *Graph

	once sync.Once
	wg   traverse.Graph
	err  error

	mu    sync.Mutex
	trees map[int64]path.Shortest
}

func newPathFinder(g *Graph) *PathFinder {
	return &PathFinder{g: g, trees: make(map[int64]path.Shortest)}
}

func (pf *PathFinder) init() {
	g := pf.g
	var (
		add func(from, to gonum.Node, w float64)
		wg  traverse.Graph
	)
	if g.directed {
		dg := simple.NewWeightedDirectedGraph(0, math.Inf(1))
		for i := range g.nodes {
			dg.AddNode(simple.Node(int64(i)))
		}
		add = func(from, to gonum.Node, w float64) {
			if e := dg.WeightedEdge(from.ID(), to.ID()); e != nil && e.Weight() <= w {
				return
			}
			dg.SetWeightedEdge(dg.NewWeightedEdge(from, to, w))
		}
		wg = dg
	} else {
		ug := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
		for i := range g.nodes {
			ug.AddNode(simple.Node(int64(i)))
		}
		add = func(from, to gonum.Node, w float64) {
			if e := ug.WeightedEdge(from.ID(), to.ID()); e != nil && e.Weight() <= w {
				return
			}
			ug.SetWeightedEdge(ug.NewWeightedEdge(from, to, w))
		}
		wg = ug
	}

	for _, l := range g.links {
		if l.Source == l.Target {
			continue
		}
		w, err := g.linkLength(l)
		if err != nil {
			pf.err = err
			return
		}
		if w < 0 || math.IsNaN(w) {
			pf.err = &GraphIntegrityError{Reason: fmt.Sprintf("link %q-%q has invalid length %v for path search", l.Source, l.Target, w)}
			return
		}
		add(simple.Node(int64(g.index[l.Source])), simple.Node(int64(g.index[l.Target])), w)
	}
	pf.wg = wg
}

// ShortestPath returns the node ids along a cheapest path from -> to, both
// ends included. It fails with NoPathError when to is unreachable.
func (pf *PathFinder) ShortestPath(from, to NodeID) ([]NodeID, error) {
	src, ok := pf.g.index[from]
	if !ok {
		return nil, &NoPathError{From: from, To: to}
	}
	dst, ok := pf.g.index[to]
	if !ok {
		return nil, &NoPathError{From: from, To: to}
	}
	pf.once.Do(pf.init)
	if pf.err != nil {
		return nil, pf.err
	}

	tree := pf.tree(int64(src))
	nodes, _ := tree.To(int64(dst))
	if len(nodes) == 0 {
		return nil, &NoPathError{From: from, To: to}
	}
	out := make([]NodeID, len(nodes))
	for i, n := range nodes {
		out[i] = pf.g.nodes[n.ID()].ID
	}
	return out, nil
}

func (pf *PathFinder) tree(src int64) path.Shortest {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if t, ok := pf.trees[src]; ok {
		return t
	}
	t := path.DijkstraFrom(simple.Node(src), pf.wg)
	pf.trees[src] = t
	return t
}

func (g *Graph) linkLength(l Link) (float64, error) {
	if w, ok := l.Weight(); ok {
		return w, nil
	}
	return g.Distance(l.Source, l.Target)
}
