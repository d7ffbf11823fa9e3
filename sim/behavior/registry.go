// Package behavior provides the built-in agent behaviors a scenario can
// select by name.
//
// Implementations register a Factory from an init() function; scenarios look
// them up with New.
package behavior

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/streetsim/streetsim/sim"
	"github.com/streetsim/streetsim/sim/graph"
)

// validate is a singleton validator instance
var validate = validator.New()

// NodeResolver turns a place query into the nearest node of g.
type NodeResolver func(ctx context.Context, g *graph.Graph, query string) (graph.NodeID, error)

// Params carries what a Factory needs to build one behavior instance.
type Params struct {
	Ctx   context.Context
	Graph *graph.Graph
	// Node is the agent's start node ("" when unplaced).
	Node graph.NodeID
	// Raw holds the YAML params mapping; may be nil.
	Raw *yaml.Node
	// ResolveNode is nil when no geocoder is configured.
	ResolveNode NodeResolver
}

// Decode strictly decodes the params mapping into v and validates the result.
func (p Params) Decode(v any) error {
	if p.Raw != nil && p.Raw.Kind != 0 {
		raw, err := yaml.Marshal(p.Raw)
		if err != nil {
			return fmt.Errorf("failed to re-encode params: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("invalid params: %w", err)
		}
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// Factory builds a behavior for one agent.
type Factory func(p Params) (sim.Behavior, error)

var registry = map[string]Factory{}

// Register makes a factory available under name. It panics on duplicates.
func Register(name string, f Factory) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("behavior %q registered twice", name))
	}
	registry[name] = f
}

// New builds the behavior registered under name.
func New(name string, p Params) (sim.Behavior, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown behavior %q (known: %v)", name, Names())
	}
	if p.Ctx == nil {
		p.Ctx = context.Background()
	}
	return f(p)
}

// Names lists the registered behaviors in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
