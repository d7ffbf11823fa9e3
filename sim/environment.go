package sim

import (
	"math/rand"

	"github.com/streetsim/streetsim/sim/graph"
)

// Environment is the context shared by all agents of a run: the clock, the
// graph and the agent list. Agent code may read all of it; only the engine
// advances the clock.
type Environment struct {
	time    float64
	graph   *graph.Graph
	agents  []*Agent
	queue   *EventQueue
	rng     *PartitionedRNG
	metrics *Metrics
}

func newEnvironment(g *graph.Graph, queue *EventQueue, rng *PartitionedRNG, metrics *Metrics) *Environment {
	return &Environment{
		graph:   g,
		queue:   queue,
		rng:     rng,
		metrics: metrics,
	}
}

// Time returns the current simulation time.
func (e *Environment) Time() float64 { return e.time }

// Graph returns the shared, read-only graph.
func (e *Environment) Graph() *graph.Graph { return e.graph }

// Agents returns every agent in creation order. The list never changes
// during a run; callers must not reorder it.
func (e *Environment) Agents() []*Agent { return e.agents }

// Rand returns the environment-wide random stream.
func (e *Environment) Rand() *rand.Rand { return e.rng.ForSubsystem(SubsystemEnvironment) }

func (e *Environment) schedule(at float64, owner *Agent, label string, fn Callback) error {
	if _, err := e.queue.Schedule(at, owner, label, fn); err != nil {
		return err
	}
	e.metrics.EventsScheduled.Inc()
	return nil
}
