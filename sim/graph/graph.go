// Package graph holds the spatial street graph agents move on.
//
// A Graph is built once from nodes and links and is never mutated afterwards,
// so it can be shared by the environment, every agent and the path finder
// without synchronization.
package graph

import (
	"fmt"
	"math"
)

// Link attributes read as the link's length, in order of preference.
const (
	WeightKey = "weight"
	LengthKey = "length"
)

// NodeID identifies a node within one graph.
type NodeID string

// Attrs is an open attribute mapping carried by graphs, nodes and links.
type Attrs map[string]any

// Node is a point of the street graph.
type Node struct {
	ID    NodeID
	Lat   float64
	Lon   float64
	Attrs Attrs
}

// Link connects Source to Target. Key distinguishes parallel links of a
// multigraph and is assigned by Build.
type Link struct {
	Source NodeID
	Target NodeID
	Key    int
	Attrs  Attrs
}

// Weight returns the numeric weight attribute of the link, falling back to
// its length attribute.
func (l Link) Weight() (float64, bool) {
	if w, ok := toFloat(l.Attrs[WeightKey]); ok {
		return w, true
	}
	return toFloat(l.Attrs[LengthKey])
}

// Neighbor is a node reachable over one link.
type Neighbor struct {
	ID    NodeID
	Attrs Attrs
}

// Options are the graph-level flags fixed for a run.
type Options struct {
	Directed   bool
	Multigraph bool
	Attrs      Attrs
}

// Graph is an immutable spatial graph.
type Graph struct {
	directed   bool
	multigraph bool
	attrs      Attrs

	nodes []Node
	index map[NodeID]int
	links []Link
	// adjacency: node -> indices into links, in insertion order
	adj map[NodeID][]int

	finder *PathFinder
}

type pairKey struct{ a, b NodeID }

// Build constructs a Graph. It fails with GraphIntegrityError when node ids
// repeat, coordinates are not finite, a link references an unknown node, or
// parallel links are supplied to a graph that is not a multigraph.
func Build(nodes []Node, links []Link, opts Options) (*Graph, error) {
	g := &Graph{
		directed:   opts.Directed,
		multigraph: opts.Multigraph,
		attrs:      cloneAttrs(opts.Attrs),
		nodes:      make([]Node, 0, len(nodes)),
		index:      make(map[NodeID]int, len(nodes)),
		links:      make([]Link, 0, len(links)),
		adj:        make(map[NodeID][]int, len(nodes)),
	}

	for _, n := range nodes {
		if _, dup := g.index[n.ID]; dup {
			return nil, &GraphIntegrityError{Reason: fmt.Sprintf("duplicate node id %q", n.ID)}
		}
		if !isFinite(n.Lat) || !isFinite(n.Lon) {
			return nil, &GraphIntegrityError{Reason: fmt.Sprintf("node %q has non-finite coordinates (%v, %v)", n.ID, n.Lat, n.Lon)}
		}
		g.index[n.ID] = len(g.nodes)
		g.nodes = append(g.nodes, Node{ID: n.ID, Lat: n.Lat, Lon: n.Lon, Attrs: cloneAttrs(n.Attrs)})
	}

	parallel := make(map[pairKey]int)
	for i, l := range links {
		if _, ok := g.index[l.Source]; !ok {
			return nil, &GraphIntegrityError{Reason: fmt.Sprintf("link %d references unknown source node %q", i, l.Source)}
		}
		if _, ok := g.index[l.Target]; !ok {
			return nil, &GraphIntegrityError{Reason: fmt.Sprintf("link %d references unknown target node %q", i, l.Target)}
		}
		pk := g.pair(l.Source, l.Target)
		count := parallel[pk]
		if count > 0 && !g.multigraph {
			return nil, &GraphIntegrityError{Reason: fmt.Sprintf("duplicate link %q-%q in a graph that is not a multigraph", l.Source, l.Target)}
		}
		parallel[pk] = count + 1

		idx := len(g.links)
		g.links = append(g.links, Link{Source: l.Source, Target: l.Target, Key: count, Attrs: cloneAttrs(l.Attrs)})
		g.adj[l.Source] = append(g.adj[l.Source], idx)
		if !g.directed && l.Source != l.Target {
			g.adj[l.Target] = append(g.adj[l.Target], idx)
		}
	}

	g.finder = newPathFinder(g)
	return g, nil
}

// Empty returns a graph with no nodes and no links.
func Empty() *Graph {
	g, _ := Build(nil, nil, Options{})
	return g
}

// pair normalizes an endpoint pair so undirected links compare equal in
// either orientation.
func (g *Graph) pair(a, b NodeID) pairKey {
	if !g.directed && b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

func (g *Graph) Directed() bool   { return g.directed }
func (g *Graph) Multigraph() bool { return g.multigraph }

// Attrs returns the graph-level attributes. Callers must not mutate the result.
func (g *Graph) Attrs() Attrs { return g.attrs }

// Nodes returns the nodes in insertion order. Callers must not mutate the result.
func (g *Graph) Nodes() []Node { return g.nodes }

// Links returns the links in insertion order. Callers must not mutate the result.
func (g *Graph) Links() []Link { return g.links }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// HasNode reports whether id is a node of the graph.
func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.index[id]
	return ok
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Neighbors returns the nodes adjacent to id with the attributes of the
// connecting link. Successors only for directed graphs. Order follows link
// insertion order; parallel links yield one entry each.
func (g *Graph) Neighbors(id NodeID) []Neighbor {
	idxs := g.adj[id]
	out := make([]Neighbor, 0, len(idxs))
	for _, i := range idxs {
		l := g.links[i]
		other := l.Target
		if l.Target == id && !g.directed {
			other = l.Source
		}
		out = append(out, Neighbor{ID: other, Attrs: l.Attrs})
	}
	return out
}

// EdgeBetween returns the first link from a to b (either orientation for
// undirected graphs).
func (g *Graph) EdgeBetween(a, b NodeID) (Link, bool) {
	for _, i := range g.adj[a] {
		l := g.links[i]
		if l.Source == a && l.Target == b {
			return l, true
		}
		if !g.directed && l.Source == b && l.Target == a {
			return l, true
		}
	}
	return Link{}, false
}

// Distance returns the geodesic distance in meters between two nodes.
func (g *Graph) Distance(a, b NodeID) (float64, error) {
	na, ok := g.Node(a)
	if !ok {
		return 0, fmt.Errorf("distance: unknown node %q", a)
	}
	nb, ok := g.Node(b)
	if !ok {
		return 0, fmt.Errorf("distance: unknown node %q", b)
	}
	return Geodesic(na.Lat, na.Lon, nb.Lat, nb.Lon), nil
}

// EdgeLength is the travel length from a to b: the weight of the link between
// them when it carries one, the geodesic distance otherwise. Between parallel
// links of a multigraph the cheapest one counts, matching ShortestPath; this
// may differ from the first match returned by EdgeBetween.
func (g *Graph) EdgeLength(a, b NodeID) (float64, error) {
	best, found := 0.0, false
	for _, i := range g.adj[a] {
		l := g.links[i]
		if !(l.Source == a && l.Target == b) && !(!g.directed && l.Source == b && l.Target == a) {
			continue
		}
		w, err := g.linkLength(l)
		if err != nil {
			return 0, err
		}
		if !found || w < best {
			best, found = w, true
		}
	}
	if found {
		return best, nil
	}
	return g.Distance(a, b)
}

// ShortestPath delegates to the graph's path finder.
func (g *Graph) ShortestPath(from, to NodeID) ([]NodeID, error) {
	return g.finder.ShortestPath(from, to)
}

func cloneAttrs(a Attrs) Attrs {
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case interface{ Float64() (float64, error) }:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
