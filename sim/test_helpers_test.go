package sim

import (
	"testing"

	"github.com/streetsim/streetsim/sim/graph"
)

// twoNodeGraph returns A(0,0) and B(0,1) joined by one link of weight 1.
func twoNodeGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Build(
		[]graph.Node{{ID: "A", Lat: 0, Lon: 0}, {ID: "B", Lat: 0, Lon: 1}},
		[]graph.Link{{Source: "A", Target: "B", Attrs: graph.Attrs{"weight": 1.0}}},
		graph.Options{},
	)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	return g
}

// hookFuncs adapts plain functions to Behavior.
type hookFuncs struct {
	Base
	started func(a *Agent) error
	moved   func(a *Agent) error
}

func (h *hookFuncs) OnStarted(a *Agent) error {
	if h.started == nil {
		return nil
	}
	return h.started(a)
}

func (h *hookFuncs) OnMoved(a *Agent) error {
	if h.moved == nil {
		return nil
	}
	return h.moved(a)
}

// walker moves to Target on start and logs on arrival.
type walker struct {
	Target graph.NodeID `json:"-"`
	Speed  float64      `json:"speed"`
	Steps  int          `json:"steps"`
}

func (w *walker) OnStarted(a *Agent) error { return a.Move(w.Target, w.Speed) }

func (w *walker) OnMoved(a *Agent) error {
	w.Steps++
	return a.Log()
}

func mustRun(t *testing.T, s *Simulator) {
	t.Helper()
	if err := s.Run(testContext(t)); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
