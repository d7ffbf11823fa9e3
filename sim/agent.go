package sim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/streetsim/streetsim/sim/graph"
)

// Behavior is the user code driving an agent. Its exported, JSON-encodable
// fields are the agent's declared state: they are snapshotted by Log and
// written to the output.
//
// Hooks run on the engine's single goroutine and never interleave, so a
// behavior may read or write other agents' state through Env().Agents()
// without locking.
type Behavior interface {
	// OnStarted runs once at time 0 before any other event of the agent.
	OnStarted(a *Agent) error
	// OnMoved runs once per completed Move, after Node is the destination.
	OnMoved(a *Agent) error
}

// Base provides no-op hooks. Embed it in behaviors that implement only one.
type Base struct{}

func (Base) OnStarted(*Agent) error { return nil }
func (Base) OnMoved(*Agent) error   { return nil }

// AgentSpec describes an agent to create at simulation start. Node may be
// empty for agents that never move.
type AgentSpec struct {
	Node     graph.NodeID
	Behavior Behavior
}

// TimelineEntry is one logged state of an agent.
type TimelineEntry struct {
	Time   float64
	Node   graph.NodeID
	Fields map[string]any
}

// record flattens the entry. time and node win over user fields of the
// same name.
func (e TimelineEntry) record() map[string]any {
	m := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["time"] = e.Time
	m["node"] = nodeValue(e.Node)
	return m
}

// MarshalJSON encodes the entry as a flat record.
func (e TimelineEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.record())
}

// Agent is the runtime state of one simulated agent.
type Agent struct {
	id        string
	node      graph.NodeID
	behavior  Behavior
	timelines []TimelineEntry

	env *Environment
	rng *rand.Rand
}

// ID returns the agent's identity: its position in the agent list.
func (a *Agent) ID() string { return a.id }

// Node returns the node the agent currently stands on.
func (a *Agent) Node() graph.NodeID { return a.node }

// Behavior returns the user code of the agent.
func (a *Agent) Behavior() Behavior { return a.behavior }

// Timelines returns the logged entries in logging order.
func (a *Agent) Timelines() []TimelineEntry { return a.timelines }

// Env returns the shared environment.
func (a *Agent) Env() *Environment { return a.env }

// Now returns the current simulation time.
func (a *Agent) Now() float64 { return a.env.Time() }

// Rand returns the agent's own random stream, derived from the run seed.
func (a *Agent) Rand() *rand.Rand { return a.rng }

// Move schedules an arrival at target after EdgeLength(current, target)/speed
// time units. The arrival sets Node to target and then runs OnMoved.
//
// Overlapping moves are not merged: a second Move before the first arrival
// schedules a second, independent arrival and both fire.
func (a *Agent) Move(target graph.NodeID, speed float64) error {
	now := a.env.Time()
	if !(speed > 0) {
		return &InvalidScheduleError{At: now, Now: now, Reason: fmt.Sprintf("speed must be > 0, got %v", speed)}
	}
	g := a.env.Graph()
	if !g.HasNode(target) {
		return &UnreachableNodeError{Agent: a.id, Node: target}
	}
	if !g.HasNode(a.node) {
		return &UnreachableNodeError{Agent: a.id, Node: a.node}
	}
	length, err := g.EdgeLength(a.node, target)
	if err != nil {
		return fmt.Errorf("agent %s: %w", a.id, err)
	}
	return a.env.schedule(now+length/speed, a, "arrival", func() error {
		a.node = target
		return a.behavior.OnMoved(a)
	})
}

// Plan schedules fn after delay time units. A callback may call Plan again
// to repeat itself.
func (a *Agent) Plan(delay float64, fn Callback) error {
	now := a.env.Time()
	if !(delay >= 0) {
		return &InvalidScheduleError{At: now + delay, Now: now, Reason: fmt.Sprintf("delay must be >= 0, got %v", delay)}
	}
	return a.env.schedule(now+delay, a, "plan", fn)
}

// Log appends the current time, node and a snapshot of the behavior's
// fields to the agent's timeline.
func (a *Agent) Log() error {
	fields, err := snapshot(a.behavior)
	if err != nil {
		return &EncodingError{Path: fmt.Sprintf("agents[%s]", a.id), Err: err}
	}
	a.timelines = append(a.timelines, TimelineEntry{Time: a.env.Time(), Node: a.node, Fields: fields})
	a.env.metrics.TimelineEntries.Inc()
	logrus.Tracef("[t %012.3f] agent %s logged at node %q", a.env.Time(), a.id, a.node)
	return nil
}

// record returns the final state of the agent as an output record.
func (a *Agent) record() (map[string]any, error) {
	fields, err := snapshot(a.behavior)
	if err != nil {
		return nil, err
	}
	timelines := make([]map[string]any, 0, len(a.timelines))
	for _, e := range a.timelines {
		timelines = append(timelines, e.record())
	}
	fields["id"] = a.id
	fields["node"] = nodeValue(a.node)
	fields["timelines"] = timelines
	return fields, nil
}

// snapshot copies the exported fields of b through their JSON encoding.
// Numbers stay json.Number so the copy re-encodes byte for byte.
func snapshot(b Behavior) (map[string]any, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("behavior %T does not encode to an object: %w", b, err)
	}
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}

func nodeValue(id graph.NodeID) any {
	if id == "" {
		return nil
	}
	return string(id)
}
