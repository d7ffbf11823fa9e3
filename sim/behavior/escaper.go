package behavior

import (
	"errors"

	"github.com/streetsim/streetsim/sim"
	"github.com/streetsim/streetsim/sim/graph"
)

func init() {
	Register("escaper", newEscaper)
}

// Escaper walks the shortest path from its start node to Goal, one link at a
// time, and logs at the start and after every hop.
type Escaper struct {
	Goal    graph.NodeID   `json:"goal"`
	Speed   float64        `json:"speed"`
	Route   []graph.NodeID `json:"route"`
	Arrived bool           `json:"arrived"`
}

type escaperParams struct {
	Goal      string  `yaml:"goal" validate:"required_without=GoalPlace,excluded_with=GoalPlace"`
	GoalPlace string  `yaml:"goal_place"`
	Speed     float64 `yaml:"speed" validate:"gt=0"`
}

func newEscaper(p Params) (sim.Behavior, error) {
	params := escaperParams{Speed: 1.0}
	if err := p.Decode(&params); err != nil {
		return nil, err
	}
	goal := graph.NodeID(params.Goal)
	if params.GoalPlace != "" {
		if p.ResolveNode == nil {
			return nil, errors.New("escaper: goal_place needs a geocoder")
		}
		var err error
		if goal, err = p.ResolveNode(p.Ctx, p.Graph, params.GoalPlace); err != nil {
			return nil, err
		}
	}
	if p.Graph != nil && !p.Graph.HasNode(goal) {
		return nil, &sim.UnreachableNodeError{Node: goal}
	}
	return &Escaper{Goal: goal, Speed: params.Speed, Route: []graph.NodeID{}}, nil
}

// OnStarted plans the route and logs the origin. A NoPathError leaves the
// agent where it is.
func (e *Escaper) OnStarted(a *sim.Agent) error {
	route, err := a.Env().Graph().ShortestPath(a.Node(), e.Goal)
	if err == nil {
		// first node is where we stand
		e.Route = route[1:]
		e.Arrived = len(e.Route) == 0
	}
	if lerr := a.Log(); lerr != nil {
		return lerr
	}
	if err != nil {
		return err
	}
	return e.step(a)
}

func (e *Escaper) OnMoved(a *sim.Agent) error {
	e.Arrived = len(e.Route) == 0 && a.Node() == e.Goal
	if err := a.Log(); err != nil {
		return err
	}
	return e.step(a)
}

func (e *Escaper) step(a *sim.Agent) error {
	if len(e.Route) == 0 {
		return nil
	}
	next := e.Route[0]
	e.Route = e.Route[1:]
	return a.Move(next, e.Speed)
}
