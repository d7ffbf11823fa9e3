// Package sim provides the discrete-event simulation core of streetsim.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - queue.go: EventQueue, ordered by (time, insertion sequence)
//   - agent.go: Behavior hooks and the Move/Plan/Log primitives
//   - simulator.go: the Initializing -> Running -> Completed event loop
//   - serialize.go: the Simulation output record
//
// # Architecture
//
// The sim package owns the run; collaborators live in sub-packages:
//   - sim/graph/: the immutable street graph, node-link codec, shortest paths
//   - sim/behavior/: built-in agent behaviors selectable from scenarios
//   - sim/scenario/: YAML scenario loading and assembly
//   - sim/geo/: place lookup and graph acquisition with a persistent cache
//   - sim/trace/: optional record of every drained event
//
// # Execution model
//
// Everything runs on the goroutine that calls Simulator.Run. Move and Plan
// only enqueue events; the work happens when the engine drains them, one at
// a time. Behaviors may therefore touch other agents' state without locks.
// Randomness comes from PartitionedRNG streams derived from the run seed,
// never from the global math/rand source.
package sim
