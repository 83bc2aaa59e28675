// Package rng provides thread-local random sources seeded from a
// shared atomic counter, so concurrent dropout masks, weight
// initializers, and dataset shuffles never contend on one *rand.Rand.
// Grounded on the teacher's per-layer Base.rng field populated via
// WithRNG, generalized here into an explicit Source threaded by the
// caller rather than stashed on every layer.
package rng

import (
	"math/rand"
	"sync/atomic"
)

var counter int64

// Source wraps a *rand.Rand. It is not safe for concurrent use by
// multiple goroutines; callers needing parallelism should call
// NewThreadLocal once per goroutine.
type Source struct {
	r *rand.Rand
}

// New builds a Source seeded deterministically from seed.
func New(seed int64) *Source {
	return &Source{r: rand.New(rand.NewSource(seed))}
}

// NewThreadLocal builds a Source seeded from a shared, atomically
// incremented counter, so repeated calls never collide even when
// issued from concurrent goroutines within the same process run.
func NewThreadLocal() *Source {
	seed := atomic.AddInt64(&counter, 1)
	return New(seed)
}

// Float32 returns a uniform value in [0,1).
func (s *Source) Float32() float32 { return s.r.Float32() }

// NormFloat32 returns a standard-normal sample.
func (s *Source) NormFloat32() float32 { return float32(s.r.NormFloat64()) }

// Uniform returns a uniform value in [lo, hi).
func (s *Source) Uniform(lo, hi float32) float32 {
	return lo + s.Float32()*(hi-lo)
}

// Intn returns a uniform value in [0, n).
func (s *Source) Intn(n int) int { return s.r.Intn(n) }

// Shuffle permutes n elements in place via swap, per rand.Shuffle.
func (s *Source) Shuffle(n int, swap func(i, j int)) { s.r.Shuffle(n, swap) }
