// Package scenario loads YAML run descriptions and assembles them into the
// graph, agent specs and config a simulation needs.
package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/streetsim/streetsim/sim"
	"github.com/streetsim/streetsim/sim/behavior"
	"github.com/streetsim/streetsim/sim/graph"
)

var validate = validator.New()

// Scenario is the top-level YAML document.
type Scenario struct {
	Version     string       `yaml:"version"`
	Seed        int64        `yaml:"seed"`
	Timelimit   float64      `yaml:"timelimit" validate:"gte=0"`
	ErrorPolicy string       `yaml:"error_policy" validate:"omitempty,oneof=isolate abort"`
	Graph       GraphSpec    `yaml:"graph"`
	Agents      []AgentGroup `yaml:"agents" validate:"dive"`
}

// GraphSpec selects the graph: a node-link JSON file, a place resolved
// through the geocoder, or neither for an empty graph.
type GraphSpec struct {
	File  string `yaml:"file" validate:"excluded_with=Place"`
	Place string `yaml:"place"`
	Force bool   `yaml:"force"` // bypass the geocoder cache
}

// AgentGroup creates Count agents sharing one behavior.
type AgentGroup struct {
	Behavior string `yaml:"behavior" validate:"required"`
	Count    int    `yaml:"count" validate:"gte=1"`
	// Start is one of "none" (default), "node", "place" or "random".
	Start  string    `yaml:"start" validate:"omitempty,oneof=none node place random"`
	Node   string    `yaml:"node" validate:"required_if=Start node"`
	Place  string    `yaml:"place" validate:"required_if=Start place"`
	Params yaml.Node `yaml:"params"`
}

// Resolver is the geocoding collaborator used for place queries.
type Resolver interface {
	ResolveGraph(ctx context.Context, query string, force bool) (*graph.Graph, error)
	ResolveNode(ctx context.Context, g *graph.Graph, query string, force bool) (graph.NodeID, error)
}

// Assembly is a scenario ready to simulate.
type Assembly struct {
	Graph  *graph.Graph
	Agents []sim.AgentSpec
	Config sim.Config
}

// Load parses a scenario with strict field checking and validates it.
func Load(r io.Reader) (*Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if err := validate.Struct(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// LoadFile loads the scenario at path.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Assemble builds the graph and one AgentSpec per agent. Relative graph
// files are resolved against baseDir. res may be nil when the scenario uses
// no place queries.
func (sc *Scenario) Assemble(ctx context.Context, baseDir string, res Resolver) (*Assembly, error) {
	g, err := sc.loadGraph(ctx, baseDir, res)
	if err != nil {
		return nil, err
	}

	var resolveNode behavior.NodeResolver
	if res != nil {
		resolveNode = func(ctx context.Context, g *graph.Graph, query string) (graph.NodeID, error) {
			return res.ResolveNode(ctx, g, query, sc.Graph.Force)
		}
	}

	placement := sim.NewPartitionedRNG(sc.Seed).ForSubsystem(sim.SubsystemPlacement)
	nodes := g.Nodes()

	var specs []sim.AgentSpec
	for gi := range sc.Agents {
		grp := &sc.Agents[gi]
		for i := 0; i < grp.Count; i++ {
			var start graph.NodeID
			switch grp.Start {
			case "node":
				start = graph.NodeID(grp.Node)
			case "place":
				if resolveNode == nil {
					return nil, fmt.Errorf("agents[%d]: start place %q needs a geocoder", gi, grp.Place)
				}
				if start, err = resolveNode(ctx, g, grp.Place); err != nil {
					return nil, fmt.Errorf("agents[%d]: %w", gi, err)
				}
			case "random":
				if len(nodes) == 0 {
					return nil, fmt.Errorf("agents[%d]: random start on an empty graph", gi)
				}
				start = nodes[placement.Intn(len(nodes))].ID
			}
			if start != "" && !g.HasNode(start) {
				return nil, fmt.Errorf("agents[%d]: start node %q is not in the graph", gi, start)
			}

			b, err := behavior.New(grp.Behavior, behavior.Params{
				Ctx:         ctx,
				Graph:       g,
				Node:        start,
				Raw:         &grp.Params,
				ResolveNode: resolveNode,
			})
			if err != nil {
				return nil, fmt.Errorf("agents[%d] (%s): %w", gi, grp.Behavior, err)
			}
			specs = append(specs, sim.AgentSpec{Node: start, Behavior: b})
		}
	}

	logrus.Infof("Assembled scenario: %d agents over %d nodes", len(specs), g.NodeCount())
	return &Assembly{
		Graph:  g,
		Agents: specs,
		Config: sim.Config{
			Timelimit:   sc.Timelimit,
			ErrorPolicy: sim.ErrorPolicy(sc.ErrorPolicy),
			Seed:        sc.Seed,
		},
	}, nil
}

func (sc *Scenario) loadGraph(ctx context.Context, baseDir string, res Resolver) (*graph.Graph, error) {
	switch {
	case sc.Graph.File != "":
		path := sc.Graph.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open graph file: %w", err)
		}
		defer f.Close()
		return graph.ReadNodeLinkData(f)
	case sc.Graph.Place != "":
		if res == nil {
			return nil, errors.New("graph place query needs a geocoder")
		}
		return res.ResolveGraph(ctx, sc.Graph.Place, sc.Graph.Force)
	}
	return graph.Empty(), nil
}
