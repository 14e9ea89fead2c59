// Package testutil provides testing utilities for mdstore.
//
// This package is intended for use in tests and benchmarks only.
// It provides a deterministic RNG and generators for events.
//
// # Random Events
//
//	rng := testutil.NewRNG(seed)
//	events := rng.UniformEvents(1000, []float32{0, 0}, []float32{10, 10})
//	peak := rng.GaussianEvents(1000, []float32{5, 5}, 0.5)
//
// # Shells
//
//	shell := testutil.ShellEvents(100, 3, 1.0, 2.0) // signal 1..100
package testutil
