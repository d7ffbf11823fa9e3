package behavior

import (
	"github.com/streetsim/streetsim/sim"
)

func init() {
	Register("wealth", newWealth)
}

// Wealth is the money-transfer model: every Period it gives one unit to a
// randomly chosen agent (possibly itself) while it has any, then logs.
type Wealth struct {
	Wealth int `json:"wealth"`

	initial int
	period  float64
}

type wealthParams struct {
	Initial int     `yaml:"initial" validate:"gte=0"`
	Period  float64 `yaml:"period" validate:"gt=0"`
}

func newWealth(p Params) (sim.Behavior, error) {
	params := wealthParams{Initial: 1, Period: 1.0}
	if err := p.Decode(&params); err != nil {
		return nil, err
	}
	return &Wealth{initial: params.Initial, period: params.Period}, nil
}

func (w *Wealth) OnStarted(a *sim.Agent) error {
	w.Wealth = w.initial
	return a.Plan(w.period, func() error { return w.transfer(a) })
}

func (w *Wealth) OnMoved(*sim.Agent) error { return nil }

func (w *Wealth) transfer(a *sim.Agent) error {
	if w.Wealth > 0 {
		agents := a.Env().Agents()
		other := agents[a.Rand().Intn(len(agents))]
		if ow, ok := other.Behavior().(*Wealth); ok {
			ow.Wealth++
			w.Wealth--
		}
	}
	if err := a.Log(); err != nil {
		return err
	}
	return a.Plan(w.period, func() error { return w.transfer(a) })
}
