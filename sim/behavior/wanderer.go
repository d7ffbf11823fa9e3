package behavior

import (
	"github.com/streetsim/streetsim/sim"
)

func init() {
	Register("wanderer", newWanderer)
}

// Wanderer performs a random walk over the graph, pausing Pause time units
// at every node. It stops at dead ends.
type Wanderer struct {
	Speed float64 `json:"speed"`
	Hops  int     `json:"hops"`

	pause float64
}

type wandererParams struct {
	Speed float64 `yaml:"speed" validate:"gt=0"`
	Pause float64 `yaml:"pause" validate:"gte=0"`
}

func newWanderer(p Params) (sim.Behavior, error) {
	params := wandererParams{Speed: 1.0}
	if err := p.Decode(&params); err != nil {
		return nil, err
	}
	return &Wanderer{Speed: params.Speed, pause: params.Pause}, nil
}

func (w *Wanderer) OnStarted(a *sim.Agent) error {
	if err := a.Log(); err != nil {
		return err
	}
	return a.Plan(w.pause, func() error { return w.hop(a) })
}

func (w *Wanderer) OnMoved(a *sim.Agent) error {
	w.Hops++
	if err := a.Log(); err != nil {
		return err
	}
	return a.Plan(w.pause, func() error { return w.hop(a) })
}

func (w *Wanderer) hop(a *sim.Agent) error {
	nb := a.Env().Graph().Neighbors(a.Node())
	if len(nb) == 0 {
		return nil
	}
	return a.Move(nb[a.Rand().Intn(len(nb))].ID, w.Speed)
}
