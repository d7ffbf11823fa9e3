package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/streetsim/streetsim/sim/graph"
)

// FloodDepthKey is the node attribute set by AnnotateFloodDepth.
const FloodDepthKey = "flood_depth"

// FloodGroup selects which hazard map the depth comes from.
type FloodGroup string

const (
	FloodMax     FloodGroup = "max"     // largest assumed rainfall
	FloodPlanned FloodGroup = "planned" // planned-scale rainfall
	FloodNone    FloodGroup = "none"    // no grouping
)

// csvScale maps the group onto the API's CSVScale parameter.
func (fg FloodGroup) csvScale() (int, error) {
	switch fg {
	case FloodMax, "":
		return 0, nil
	case FloodPlanned:
		return 1, nil
	case FloodNone:
		return -1, nil
	}
	return 0, fmt.Errorf("unknown flood group %q (want max, planned or none)", fg)
}

// MaxFloodDepth returns the expected maximum flood depth in meters at node.
// ok is false when the hazard map has no depth for the location; such
// answers are not cached. force skips the cached value and refreshes it.
func (r *Resolver) MaxFloodDepth(ctx context.Context, g *graph.Graph, node graph.NodeID, group FloodGroup, force bool) (depth float64, ok bool, err error) {
	n, found := g.Node(node)
	if !found {
		return 0, false, &LookupError{Query: string(node), Err: errors.New("node is not in the graph")}
	}
	scale, err := group.csvScale()
	if err != nil {
		return 0, false, err
	}
	if group == "" {
		group = FloodMax
	}

	key := graphQuery(g) + "|" + string(node) + "|" + string(group)
	if !force {
		if data, hit := r.cached(ctx, KindFloodDepth, key); hit {
			if d, perr := strconv.ParseFloat(string(data), 64); perr == nil {
				return d, true, nil
			}
		}
	}

	u, err := url.Parse(r.FloodURL)
	if err != nil {
		return 0, false, err
	}
	q := u.Query()
	q.Set("lon", strconv.FormatFloat(n.Lon, 'f', -1, 64))
	q.Set("lat", strconv.FormatFloat(n.Lat, 'f', -1, 64))
	q.Set("CSVScale", strconv.Itoa(scale))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, false, err
	}
	var body struct {
		Depth *json.Number `json:"Depth"`
	}
	if err := r.do(req, &body); err != nil {
		return 0, false, &LookupError{Query: string(node), Err: fmt.Errorf("flood depth: %w", err)}
	}
	if body.Depth == nil {
		logrus.Debugf("geo: no flood depth at node %s (%s)", node, group)
		return 0, false, nil
	}
	depth, err = body.Depth.Float64()
	if err != nil {
		return 0, false, &LookupError{Query: string(node), Err: fmt.Errorf("flood depth: %w", err)}
	}
	r.store(ctx, KindFloodDepth, key, []byte(strconv.FormatFloat(depth, 'g', -1, 64)))
	return depth, true, nil
}

// AnnotateFloodDepth returns a copy of g whose nodes carry FloodDepthKey
// wherever the hazard map knows a depth.
func (r *Resolver) AnnotateFloodDepth(ctx context.Context, g *graph.Graph, group FloodGroup, force bool) (*graph.Graph, error) {
	nodes := make([]graph.Node, 0, g.NodeCount())
	known := 0
	for _, n := range g.Nodes() {
		depth, ok, err := r.MaxFloodDepth(ctx, g, n.ID, group, force)
		if err != nil {
			return nil, err
		}
		attrs := make(graph.Attrs, len(n.Attrs)+1)
		for k, v := range n.Attrs {
			attrs[k] = v
		}
		if ok {
			attrs[FloodDepthKey] = depth
			known++
		}
		nodes = append(nodes, graph.Node{ID: n.ID, Lat: n.Lat, Lon: n.Lon, Attrs: attrs})
	}
	logrus.Infof("geo: flood depth known for %d of %d nodes", known, len(nodes))
	return graph.Build(nodes, g.Links(), graph.Options{
		Directed:   g.Directed(),
		Multigraph: g.Multigraph(),
		Attrs:      g.Attrs(),
	})
}
