package sim

import (
	"errors"
	"fmt"

	"github.com/streetsim/streetsim/sim/graph"
)

// InvalidScheduleError reports an attempt to schedule an event before the
// queue's current drain position, or with a negative delay or non-positive
// speed.
type InvalidScheduleError struct {
	At     float64
	Now    float64
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid schedule at t=%v (now %v): %s", e.At, e.Now, e.Reason)
	}
	return fmt.Sprintf("invalid schedule at t=%v: earlier than now %v", e.At, e.Now)
}

// UnreachableNodeError reports a move whose endpoint is not a node of the graph.
type UnreachableNodeError struct {
	Agent string
	Node  graph.NodeID
}

func (e *UnreachableNodeError) Error() string {
	return fmt.Sprintf("agent %s: node %q is not in the graph", e.Agent, e.Node)
}

// EncodingError reports state that cannot be encoded into the output, such as
// non-finite numbers.
type EncodingError struct {
	Path string
	Err  error
}

func (e *EncodingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("encoding: %v", e.Err)
	}
	return fmt.Sprintf("encoding %s: %v", e.Path, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// CallbackError wraps a panic raised inside agent code.
type CallbackError struct {
	Value any
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback panicked: %v", e.Value)
}

func (e *CallbackError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// EventError records a failure of a single drained event.
type EventError struct {
	Time  float64
	Seq   uint64
	Label string
	Agent string
	Err   error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event %q (agent %s, t=%v): %v", e.Label, e.Agent, e.Time, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }

// errorKind buckets an error for metrics labels.
func errorKind(err error) string {
	var (
		unreachable *UnreachableNodeError
		schedule    *InvalidScheduleError
		noPath      *graph.NoPathError
		encoding    *EncodingError
		callback    *CallbackError
	)
	switch {
	case errors.As(err, &unreachable):
		return "unreachable_node"
	case errors.As(err, &schedule):
		return "invalid_schedule"
	case errors.As(err, &noPath):
		return "no_path"
	case errors.As(err, &encoding):
		return "encoding"
	case errors.As(err, &callback):
		return "panic"
	}
	return "other"
}
