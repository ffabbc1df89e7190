package model

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// SimulationKey uniquely identifies a reproducible run. Two runs with the
// same key and configuration produce bit-for-bit identical K/V and tokens.
type SimulationKey int64

// Subsystem names for seed derivation.
const (
	SubsystemKV      = "kv"
	SubsystemSampler = "sampler"
)

// SubsystemToken returns the subsystem name for one token at one position.
func SubsystemToken(token, position int) string {
	return fmt.Sprintf("%s/token_%d/pos_%d", SubsystemKV, token, position)
}

// Seeds derives isolated, deterministic RNGs per subsystem.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName).
//
// Unlike a cached per-subsystem stream, every call returns a fresh *rand.Rand
// so that results depend only on the subsystem name, never on call order.
// This makes Seeds safe for concurrent use.
type Seeds struct {
	key SimulationKey
}

func NewSeeds(key SimulationKey) Seeds {
	return Seeds{key: key}
}

// ForSubsystem returns a newly seeded RNG for the named subsystem.
func (s Seeds) ForSubsystem(name string) *rand.Rand {
	return rand.New(rand.NewSource(int64(s.key) ^ fnv1a64(name)))
}

func (s Seeds) Key() SimulationKey { return s.key }

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
