package testutil

import (
	"math"
	"testing"

	"github.com/hupe1980/mdstore/event"
	"github.com/stretchr/testify/assert"
)

func TestUniformEvents(t *testing.T) {
	rng := NewRNG(4711)

	events := rng.UniformEvents(100, []float32{0, -1}, []float32{10, 1})

	assert.Len(t, events, 100)
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Center[0], float32(0))
		assert.Less(t, e.Center[0], float32(10))
		assert.GreaterOrEqual(t, e.Center[1], float32(-1))
		assert.Less(t, e.Center[1], float32(1))
		assert.Zero(t, e.Center[2])
		assert.Equal(t, e.Signal, e.ErrorSquared)
	}
}

func TestRNGIsDeterministic(t *testing.T) {
	a := NewRNG(42).UniformEvents(10, []float32{0}, []float32{1})
	b := NewRNG(42).UniformEvents(10, []float32{0}, []float32{1})
	assert.Equal(t, a, b)

	rng := NewRNG(42)
	first := rng.Intn(1000)
	rng.Reset()
	assert.Equal(t, first, rng.Intn(1000))
	assert.Equal(t, int64(42), rng.Seed())
}

func TestFullEvents(t *testing.T) {
	events := NewRNG(1).FullEvents(6, []float32{0}, []float32{1}, 3)

	assert.Equal(t, uint16(0), events[0].RunIndex)
	assert.Equal(t, uint16(2), events[5].RunIndex)
	assert.Equal(t, int32(6), events[5].DetectorID)
}

func TestShellEvents(t *testing.T) {
	events := ShellEvents(100, 3, 1, 2)

	for i, e := range events {
		r := math.Hypot(float64(e.Center[0]), float64(e.Center[1]))
		assert.Greater(t, r, 1.0)
		assert.Less(t, r, 2.0)
		assert.Equal(t, float64(i+1), e.Signal)
	}

	signal, errSq := event.Sum(events)
	assert.Equal(t, 5050.0, signal)
	assert.Equal(t, 5050.0, errSq)
}

func TestGaussianEvents(t *testing.T) {
	events := NewRNG(7).GaussianEvents(2000, []float32{5}, 0.1)

	var mean float64
	for _, e := range events {
		mean += float64(e.Center[0])
	}
	mean /= float64(len(events))
	assert.InDelta(t, 5.0, mean, 0.02)
}
