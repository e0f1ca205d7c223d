package serve

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
)

// === SeedKey ===

// SeedKey identifies a reproducible run. Two processes built from the same
// SeedKey and configuration draw identical random sequences per subsystem.
type SeedKey int64

// NewSeedKey creates a SeedKey from a seed value.
func NewSeedKey(seed int64) SeedKey {
	return SeedKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemWorkload is the RNG subsystem for bench workload generation.
	// Uses the master seed directly.
	SubsystemWorkload = "workload"

	// SubsystemRouter is the RNG subsystem for replica routing decisions.
	SubsystemRouter = "router"
)

// SubsystemReplica returns the subsystem name for replica N.
func SubsystemReplica(id int) string {
	return fmt.Sprintf("replica_%d", id)
}

// === Source ===

// Source is the random source consumed by routing policies.
// Implementations must be safe for concurrent use.
type Source interface {
	// Intn returns a uniform int in [0, n). n must be > 0.
	Intn(n int) int
}

// LockedSource serializes access to a seeded *rand.Rand.
type LockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLockedSource creates a LockedSource seeded with seed.
func NewLockedSource(seed int64) *LockedSource {
	return &LockedSource{rng: rand.New(rand.NewSource(seed))}
}

// Intn implements Source.
func (s *LockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// Float64 returns a uniform float64 in [0, 1).
func (s *LockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// NormFloat64 returns a standard normal sample.
func (s *LockedSource) NormFloat64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.NormFloat64()
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated sources per subsystem.
//
// Derivation formula:
//   - For SubsystemWorkload: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: safe for concurrent use, and so are the returned sources.
type PartitionedRNG struct {
	key SeedKey

	mu         sync.Mutex
	subsystems map[string]*LockedSource
}

// NewPartitionedRNG creates a PartitionedRNG from a SeedKey.
func NewPartitionedRNG(key SeedKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*LockedSource),
	}
}

// ForSubsystem returns a deterministically-seeded source for the named subsystem.
// The same subsystem name always returns the same *LockedSource (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *LockedSource {
	p.mu.Lock()
	defer p.mu.Unlock()

	if src, ok := p.subsystems[name]; ok {
		return src
	}

	derivedSeed := int64(p.key)
	if name != SubsystemWorkload {
		derivedSeed ^= fnv1a64(name)
	}

	src := NewLockedSource(derivedSeed)
	p.subsystems[name] = src
	return src
}

// Key returns the SeedKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SeedKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
