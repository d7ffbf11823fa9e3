package sim

import (
	"hash/fnv"
	"math/rand"
)

// RNG stream names.
const (
	// SubsystemPlacement draws random start nodes for scenario agents.
	SubsystemPlacement = "placement"
	// SubsystemEnvironment backs Environment.Rand.
	SubsystemEnvironment = "environment"
)

// SubsystemAgent names the private stream of agent id.
func SubsystemAgent(id string) string {
	return "agent_" + id
}

// PartitionedRNG hands out one seeded *rand.Rand per named stream. Stream
// seeds are the run seed XOR the FNV-1a hash of the name, so draws in one
// agent never shift another agent's sequence. Not safe for concurrent use.
type PartitionedRNG struct {
	seed    int64
	streams map[string]*rand.Rand
}

// NewPartitionedRNG derives streams from seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{seed: seed, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream for name, creating it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	r, ok := p.streams[name]
	if !ok {
		h := fnv.New64a()
		h.Write([]byte(name))
		r = rand.New(rand.NewSource(p.seed ^ int64(h.Sum64())))
		p.streams[name] = r
	}
	return r
}
