// Package randstream derives independent, reproducible random streams from a
// single root seed. Every parallel unit of work (a sweep point, a Monte Carlo
// chunk) gets its own stream so results do not depend on the degree of
// parallelism or on scheduling order.
package randstream

import "golang.org/x/exp/rand"

// Stream identifies one deterministic random stream.
type Stream struct {
	seed uint64
}

// New returns the root stream for the given seed.
func New(seed uint64) Stream { return Stream{seed: seed} }

// Child derives the i-th sub-stream. Derivation is pure: the same (seed, i)
// always yields the same child.
func (s Stream) Child(i uint64) Stream { return Stream{seed: mix(s.seed, i)} }

// Rand returns a fresh generator positioned at the start of the stream.
func (s Stream) Rand() *rand.Rand { return rand.New(rand.NewSource(s.seed)) }

// Seed exposes the stream seed, mainly for logging.
func (s Stream) Seed() uint64 { return s.seed }

// mix is the splitmix64 finalizer over the seed advanced by i+1 increments of
// the golden-ratio constant.
func mix(seed, i uint64) uint64 {
	z := seed + (i+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
