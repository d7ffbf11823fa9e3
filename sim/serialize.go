package sim

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/streetsim/streetsim/sim/graph"
)

// Simulation is the single artifact of a run: the graph in node-link form,
// every agent's final state with its timeline, and the timelimit.
type Simulation struct {
	NodeLinkData graph.NodeLinkData `json:"node_link_data"`
	Agents       []map[string]any   `json:"agents"`
	Timelimit    float64            `json:"timelimit"`
}

// Serialize converts the final graph and agents into a Simulation. It is
// deterministic and fails only with EncodingError.
func Serialize(g *graph.Graph, agents []*Agent, timelimit float64) (*Simulation, error) {
	if g == nil {
		g = graph.Empty()
	}
	if err := checkFinite("timelimit", timelimit); err != nil {
		return nil, err
	}
	out := &Simulation{
		NodeLinkData: g.NodeLinkData(),
		Agents:       make([]map[string]any, 0, len(agents)),
		Timelimit:    timelimit,
	}
	if err := checkFinite("node_link_data.graph", out.NodeLinkData.Graph); err != nil {
		return nil, err
	}
	for i, n := range out.NodeLinkData.Nodes {
		if err := checkFinite(fmt.Sprintf("node_link_data.nodes[%d]", i), n); err != nil {
			return nil, err
		}
	}
	for i, l := range out.NodeLinkData.Links {
		if err := checkFinite(fmt.Sprintf("node_link_data.links[%d]", i), l); err != nil {
			return nil, err
		}
	}
	for _, a := range agents {
		rec, err := a.record()
		if err != nil {
			return nil, &EncodingError{Path: fmt.Sprintf("agents[%s]", a.id), Err: err}
		}
		out.Agents = append(out.Agents, rec)
	}
	return out, nil
}

// Encode writes the simulation as one line of JSON. Map keys are sorted, so
// identical runs encode to identical bytes.
func (s *Simulation) Encode(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(s); err != nil {
		var uve *json.UnsupportedValueError
		var ute *json.UnsupportedTypeError
		if errors.As(err, &uve) || errors.As(err, &ute) {
			return &EncodingError{Err: err}
		}
		return fmt.Errorf("failed to write simulation: %w", err)
	}
	return nil
}

// Bytes returns the encoded simulation.
func (s *Simulation) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// checkFinite walks decoded-JSON-like values looking for NaN or infinities.
func checkFinite(path string, v any) error {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return &EncodingError{Path: path, Err: fmt.Errorf("non-finite number %v", x)}
		}
	case float32:
		return checkFinite(path, float64(x))
	case map[string]any:
		for k, e := range x {
			if err := checkFinite(path+"."+k, e); err != nil {
				return err
			}
		}
	case graph.Attrs:
		return checkFinite(path, map[string]any(x))
	case []any:
		for i, e := range x {
			if err := checkFinite(fmt.Sprintf("%s[%d]", path, i), e); err != nil {
				return err
			}
		}
	case []float64:
		for i, e := range x {
			if err := checkFinite(fmt.Sprintf("%s[%d]", path, i), e); err != nil {
				return err
			}
		}
	}
	return nil
}
