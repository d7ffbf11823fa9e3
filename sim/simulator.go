// sim/simulator.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/streetsim/streetsim/sim/graph"
	"github.com/streetsim/streetsim/sim/trace"
)

// State is the lifecycle state of a Simulator.
type State int

const (
	StateInitializing State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// Simulator is the core object that holds the environment, the event queue
// and the event loop of one run.
type Simulator struct {
	cfg     Config
	env     *Environment
	queue   *EventQueue
	state   State
	metrics *Metrics

	// isolated per-event failures, in drain order
	diagnostics []*EventError
	// set when Run stopped early (abort or cancellation)
	runErr error
}

// NewSimulator builds the environment, creates one agent per spec in order
// and schedules every agent's OnStarted at time 0. Setup failures are fatal.
func NewSimulator(g *graph.Graph, specs []AgentSpec, cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g == nil {
		g = graph.Empty()
	}

	metrics := NewMetrics(cfg.Registerer)
	queue := NewEventQueue()
	rng := NewPartitionedRNG(cfg.Seed)
	env := newEnvironment(g, queue, rng, metrics)

	s := &Simulator{
		cfg:     cfg,
		env:     env,
		queue:   queue,
		state:   StateInitializing,
		metrics: metrics,
	}

	env.agents = make([]*Agent, 0, len(specs))
	for i, spec := range specs {
		id := strconv.Itoa(i)
		if spec.Behavior == nil {
			return nil, fmt.Errorf("agent %s: behavior is nil", id)
		}
		if spec.Node != "" && !g.HasNode(spec.Node) {
			return nil, fmt.Errorf("agent %s setup: %w", id, &UnreachableNodeError{Agent: id, Node: spec.Node})
		}
		env.agents = append(env.agents, &Agent{
			id:        id,
			node:      spec.Node,
			behavior:  spec.Behavior,
			timelines: make([]TimelineEntry, 0),
			env:       env,
			rng:       rng.ForSubsystem(SubsystemAgent(id)),
		})
	}
	metrics.Agents.Set(float64(len(env.agents)))

	for _, a := range env.agents {
		a := a
		if err := env.schedule(0, a, "started", func() error { return a.behavior.OnStarted(a) }); err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.id, err)
		}
	}

	logrus.Infof("Simulation initialized: %d agents, %d nodes, %d links, timelimit=%v, policy=%s",
		len(env.agents), g.NodeCount(), len(g.Links()), cfg.Timelimit, cfg.ErrorPolicy)
	return s, nil
}

// Environment returns the shared environment of the run.
func (s *Simulator) Environment() *Environment { return s.env }

// State returns the lifecycle state.
func (s *Simulator) State() State { return s.state }

// Metrics returns the run metrics.
func (s *Simulator) Metrics() *Metrics { return s.metrics }

// Diagnostics returns the per-event errors isolated during the run.
func (s *Simulator) Diagnostics() []*EventError { return s.diagnostics }

// Run drains the event queue until it is empty or the next event is later
// than the timelimit. Under ErrorPolicyAbort the first failing event ends the
// run with its error. Run returns ctx.Err() if the host cancels.
func (s *Simulator) Run(ctx context.Context) error {
	if s.state != StateInitializing {
		return fmt.Errorf("simulator already %s", s.state)
	}
	s.state = StateRunning
	defer func() { s.state = StateCompleted }()

	for {
		if err := ctx.Err(); err != nil {
			s.runErr = err
			return err
		}
		next := s.queue.Peek()
		if next == nil {
			break
		}
		if next.time > s.cfg.Timelimit {
			// everything left is later still
			s.metrics.EventsDiscarded.Add(float64(s.queue.Len()))
			logrus.Debugf("[t %012.3f] Discarding %d events past timelimit %v", next.time, s.queue.Len(), s.cfg.Timelimit)
			break
		}

		ev := s.queue.PopNext()
		if ev.time < s.env.time {
			panic(fmt.Sprintf("event queue drained t=%v after t=%v", ev.time, s.env.time))
		}
		s.env.time = ev.time
		s.metrics.SimTime.Set(ev.time)
		logrus.Debugf("[t %012.3f] Executing %s for agent %s", ev.time, ev.label, ownerID(ev))

		err := s.execute(ev)
		s.metrics.EventsExecuted.Inc()
		s.traceEvent(ev, err)
		if err == nil {
			continue
		}

		evErr := &EventError{Time: ev.time, Seq: ev.seq, Label: ev.label, Agent: ownerID(ev), Err: err}
		s.metrics.EventErrors.WithLabelValues(errorKind(err)).Inc()
		if s.cfg.ErrorPolicy == ErrorPolicyAbort {
			logrus.Errorf("[t %012.3f] Aborting run: %v", ev.time, evErr)
			s.runErr = evErr
			return evErr
		}
		s.diagnostics = append(s.diagnostics, evErr)
		logrus.WithFields(logrus.Fields{
			"agent": evErr.Agent,
			"event": evErr.Label,
			"time":  evErr.Time,
		}).Warnf("Isolated event error: %v", err)
	}

	logrus.Infof("[t %012.3f] Simulation ended (%d isolated errors)", s.env.time, len(s.diagnostics))
	return nil
}

// execute runs the event's callback and turns a panic into a CallbackError.
func (s *Simulator) execute(ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = &CallbackError{Value: e}
				return
			}
			err = &CallbackError{Value: r}
		}
	}()
	return ev.fn()
}

func (s *Simulator) traceEvent(ev *Event, err error) {
	if s.cfg.Trace == nil {
		return
	}
	rec := trace.EventRecord{Time: ev.time, Seq: ev.seq, Label: ev.label, Agent: ownerID(ev)}
	if ev.owner != nil {
		rec.Node = string(ev.owner.node)
	}
	if err != nil {
		rec.Err = err.Error()
	}
	s.cfg.Trace.RecordEvent(rec)
}

// Result serializes the completed run. A run that was aborted or cancelled
// has no result; its error is returned instead.
func (s *Simulator) Result() (*Simulation, error) {
	if s.state != StateCompleted {
		return nil, errors.New("simulation has not completed")
	}
	if s.runErr != nil {
		return nil, fmt.Errorf("simulation stopped early: %w", s.runErr)
	}
	return Serialize(s.env.graph, s.env.agents, s.cfg.Timelimit)
}

// Simulate runs specs on g until timelimit and returns the serialized run.
// The caller receives either a complete Simulation or a single fatal error;
// isolated per-event errors are only logged.
func Simulate(ctx context.Context, specs []AgentSpec, g *graph.Graph, timelimit float64, opts ...Option) (*Simulation, error) {
	cfg := Config{Timelimit: timelimit, ErrorPolicy: ErrorPolicyIsolate}
	for _, opt := range opts {
		opt(&cfg)
	}
	s, err := NewSimulator(g, specs, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Run(ctx); err != nil {
		return nil, err
	}
	return s.Result()
}

func ownerID(ev *Event) string {
	if ev.owner == nil {
		return "-"
	}
	return ev.owner.id
}
