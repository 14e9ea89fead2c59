package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/mdstore/event"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniformRange fills dst with uniform values in [lo[d], hi[d]).
func (r *RNG) FillUniformRange(dst, lo, hi []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for d := range dst {
		dst[d] = lo[d] + r.rand.Float32()*(hi[d]-lo[d])
	}
}

// UniformEvents returns num lean events uniformly distributed in
// [lo, hi). Signal is uniform in [0.5, 1.5) and errorSquared equals
// signal, as for counting statistics.
func (r *RNG) UniformEvents(num int, lo, hi []float32) []event.Event {
	nd := len(lo)
	events := make([]event.Event, num)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range events {
		e := &events[i]
		for d := 0; d < nd; d++ {
			e.Center[d] = lo[d] + r.rand.Float32()*(hi[d]-lo[d])
		}
		e.Signal = 0.5 + r.rand.Float64()
		e.ErrorSquared = e.Signal
	}
	return events
}

// GaussianEvents returns num unit-signal events normally distributed
// around center with standard deviation sigma.
func (r *RNG) GaussianEvents(num int, center []float32, sigma float32) []event.Event {
	events := make([]event.Event, num)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range events {
		e := &events[i]
		for d, c := range center {
			e.Center[d] = c + float32(r.rand.NormFloat64())*sigma
		}
		e.Signal = 1
		e.ErrorSquared = 1
	}
	return events
}

// FullEvents returns num events with provenance. Run indices cycle
// through runs; detector ids count up from 1.
func (r *RNG) FullEvents(num int, lo, hi []float32, runs uint16) []event.Event {
	events := r.UniformEvents(num, lo, hi)
	for i := range events {
		if runs > 0 {
			events[i].RunIndex = uint16(i % int(runs))
		}
		events[i].GoniometerIndex = uint16(i % 2)
		events[i].DetectorID = int32(i + 1)
	}
	return events
}

// ShellEvents returns num events on circles between inner and outer
// around the origin of the first two of nd dimensions. Radii are spread
// evenly across the open interval (inner, outer) and event i has signal
// i+1 and errorSquared i+1.
func ShellEvents(num, nd int, inner, outer float64) []event.Event {
	events := make([]event.Event, num)
	for i := range events {
		frac := (float64(i) + 0.5) / float64(num)
		radius := inner + frac*(outer-inner)
		angle := 2 * math.Pi * frac
		e := &events[i]
		e.Center[0] = float32(radius * math.Cos(angle))
		if nd > 1 {
			e.Center[1] = float32(radius * math.Sin(angle))
		}
		e.Signal = float64(i + 1)
		e.ErrorSquared = float64(i + 1)
	}
	return events
}

