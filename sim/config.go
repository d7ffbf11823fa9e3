package sim

import (
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streetsim/streetsim/sim/trace"
)

// ErrorPolicy selects how the engine reacts to an error returned (or a panic
// raised) by a drained event.
type ErrorPolicy string

const (
	// ErrorPolicyIsolate drops the failing event's remaining effects, records
	// the error and keeps draining. Default.
	ErrorPolicyIsolate ErrorPolicy = "isolate"
	// ErrorPolicyAbort stops the run at the first failing event.
	ErrorPolicyAbort ErrorPolicy = "abort"
)

// Config groups the run parameters of a Simulator.
type Config struct {
	Timelimit   float64     // events later than this are discarded (simulation time, >= 0)
	ErrorPolicy ErrorPolicy // "isolate" (default) or "abort"
	Seed        int64       // master seed for PartitionedRNG

	// Registerer receives the run metrics. nil keeps them unregistered.
	Registerer prometheus.Registerer
	// Trace records drained events when non-nil.
	Trace *trace.SimulationTrace
}

// Option adjusts a Config.
type Option func(*Config)

// WithErrorPolicy sets the per-event error policy.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(c *Config) { c.ErrorPolicy = p }
}

// WithSeed sets the master seed.
func WithSeed(seed int64) Option {
	return func(c *Config) { c.Seed = seed }
}

// WithRegisterer registers run metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) { c.Registerer = reg }
}

// WithTrace records drained events into st.
func WithTrace(st *trace.SimulationTrace) Option {
	return func(c *Config) { c.Trace = st }
}

// Validate fills defaults and rejects unusable values.
func (c *Config) Validate() error {
	if math.IsNaN(c.Timelimit) || math.IsInf(c.Timelimit, 0) || c.Timelimit < 0 {
		return fmt.Errorf("timelimit must be a finite number >= 0, got %v", c.Timelimit)
	}
	switch c.ErrorPolicy {
	case "":
		c.ErrorPolicy = ErrorPolicyIsolate
	case ErrorPolicyIsolate, ErrorPolicyAbort:
	default:
		return fmt.Errorf("unknown error policy %q (want %q or %q)", c.ErrorPolicy, ErrorPolicyIsolate, ErrorPolicyAbort)
	}
	return nil
}
