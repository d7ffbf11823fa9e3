package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// NodeLinkData is the flat node-link form of a graph used on the wire.
// Every node record carries id, lat and lon; every link record carries
// source and target (and key for multigraphs).
type NodeLinkData struct {
	Directed   bool             `json:"directed"`
	Multigraph bool             `json:"multigraph"`
	Graph      map[string]any   `json:"graph"`
	Nodes      []map[string]any `json:"nodes"`
	Links      []map[string]any `json:"links"`
}

// NodeLinkData converts g into node-link form.
func (g *Graph) NodeLinkData() NodeLinkData {
	d := NodeLinkData{
		Directed:   g.directed,
		Multigraph: g.multigraph,
		Graph:      map[string]any(cloneAttrs(g.attrs)),
		Nodes:      make([]map[string]any, 0, len(g.nodes)),
		Links:      make([]map[string]any, 0, len(g.links)),
	}
	for _, n := range g.nodes {
		rec := map[string]any(cloneAttrs(n.Attrs))
		rec["id"] = string(n.ID)
		rec["lat"] = n.Lat
		rec["lon"] = n.Lon
		d.Nodes = append(d.Nodes, rec)
	}
	for _, l := range g.links {
		rec := map[string]any(cloneAttrs(l.Attrs))
		rec["source"] = string(l.Source)
		rec["target"] = string(l.Target)
		if g.multigraph {
			rec["key"] = l.Key
		}
		d.Links = append(d.Links, rec)
	}
	return d
}

// FromNodeLinkData builds a graph from node-link form. Node ids may be
// strings or numbers; numbers are kept in their decimal text form.
func FromNodeLinkData(d NodeLinkData) (*Graph, error) {
	nodes := make([]Node, 0, len(d.Nodes))
	for i, rec := range d.Nodes {
		id, err := nodeIDOf(rec["id"])
		if err != nil {
			return nil, &GraphIntegrityError{Reason: fmt.Sprintf("node %d: %v", i, err)}
		}
		lat, ok := toFloat(rec["lat"])
		if !ok {
			return nil, &GraphIntegrityError{Reason: fmt.Sprintf("node %q: missing or non-numeric lat", id)}
		}
		lon, ok := toFloat(rec["lon"])
		if !ok {
			return nil, &GraphIntegrityError{Reason: fmt.Sprintf("node %q: missing or non-numeric lon", id)}
		}
		attrs := make(Attrs, len(rec))
		for k, v := range rec {
			switch k {
			case "id", "lat", "lon":
				continue
			}
			attrs[k] = v
		}
		nodes = append(nodes, Node{ID: id, Lat: lat, Lon: lon, Attrs: attrs})
	}

	links := make([]Link, 0, len(d.Links))
	for i, rec := range d.Links {
		src, err := nodeIDOf(rec["source"])
		if err != nil {
			return nil, &GraphIntegrityError{Reason: fmt.Sprintf("link %d source: %v", i, err)}
		}
		dst, err := nodeIDOf(rec["target"])
		if err != nil {
			return nil, &GraphIntegrityError{Reason: fmt.Sprintf("link %d target: %v", i, err)}
		}
		attrs := make(Attrs, len(rec))
		for k, v := range rec {
			switch k {
			case "source", "target", "key":
				continue
			}
			attrs[k] = v
		}
		links = append(links, Link{Source: src, Target: dst, Attrs: attrs})
	}

	return Build(nodes, links, Options{Directed: d.Directed, Multigraph: d.Multigraph, Attrs: d.Graph})
}

// ReadNodeLinkData decodes a node-link JSON document and builds the graph.
func ReadNodeLinkData(r io.Reader) (*Graph, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var d NodeLinkData
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode node-link data: %w", err)
	}
	return FromNodeLinkData(d)
}

// WriteNodeLinkData encodes g as a node-link JSON document.
func WriteNodeLinkData(w io.Writer, g *Graph) error {
	if err := json.NewEncoder(w).Encode(g.NodeLinkData()); err != nil {
		return fmt.Errorf("failed to encode node-link data: %w", err)
	}
	return nil
}

func nodeIDOf(v any) (NodeID, error) {
	switch x := v.(type) {
	case string:
		return NodeID(x), nil
	case json.Number:
		return NodeID(x.String()), nil
	case float64:
		return NodeID(strconv.FormatFloat(x, 'f', -1, 64)), nil
	case int:
		return NodeID(strconv.Itoa(x)), nil
	case int64:
		return NodeID(strconv.FormatInt(x, 10)), nil
	case nil:
		return "", fmt.Errorf("missing id")
	}
	return "", fmt.Errorf("unsupported id type %T", v)
}
