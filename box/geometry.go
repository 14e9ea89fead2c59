package box

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/mdstore/event"
)

// IntegrateSphere sums the events whose transformed coordinate out[0]
// (a squared radius) is below radiusSquared.
//
// With a nonzero innerRadiusSquared only the shell between the two radii
// is summed. The shell events are ordered by signal and, with
// useOnePercentBackgroundCorrection, the strongest 1% are left out.
func (b *Box) IntegrateSphere(t CoordTransform, radiusSquared, innerRadiusSquared float32, useOnePercentBackgroundCorrection bool) (signal, errorSquared float64, err error) {
	events, err := b.ConstEvents()
	if err != nil {
		return 0, 0, err
	}
	defer b.ReleaseEvents()

	nd := b.bc.NumDims()
	var out [2]float32

	if innerRadiusSquared == 0 {
		for i := range events {
			e := &events[i]
			t.Apply(e.Center[:nd], out[:])
			if out[0] < radiusSquared {
				signal += e.Signal
				errorSquared += e.ErrorSquared
			}
		}
		return signal, errorSquared, nil
	}

	type sample struct{ signal, errorSquared float64 }
	var shell []sample
	for i := range events {
		e := &events[i]
		t.Apply(e.Center[:nd], out[:])
		if out[0] < radiusSquared && out[0] > innerRadiusSquared {
			shell = append(shell, sample{e.Signal, e.ErrorSquared})
		}
	}
	slices.SortFunc(shell, func(a, b sample) int {
		if c := cmp.Compare(a.signal, b.signal); c != 0 {
			return c
		}
		return cmp.Compare(a.errorSquared, b.errorSquared)
	})

	end := len(shell)
	if useOnePercentBackgroundCorrection {
		end = int(0.99 * float64(end))
	}
	for _, s := range shell[:end] {
		signal += s.signal
		errorSquared += s.errorSquared
	}
	return signal, errorSquared, nil
}

// IntegrateCylinder sums the events within radius of the cylinder axis
// (out[0]) and within half a length plus half a step along it (out[1]).
// The signal of each such event is also added to the channel of
// signalFit its axial position falls in; signalFit needs at least two
// channels.
func (b *Box) IntegrateCylinder(t CoordTransform, radius, length float32, signalFit []float64) (signal, errorSquared float64, err error) {
	numSteps := len(signalFit)
	if numSteps < 2 {
		return 0, 0, fmt.Errorf("%w: cylinder profile needs at least 2 channels, got %d", ErrInvalidArgument, numSteps)
	}

	events, err := b.ConstEvents()
	if err != nil {
		return 0, 0, err
	}
	defer b.ReleaseEvents()

	nd := b.bc.NumDims()
	deltaQ := float64(length) / float64(numSteps-1)
	halfWidth := 0.5*float64(length) + 0.5*deltaQ
	mid := numSteps/2 - 1

	var out [2]float32
	for i := range events {
		e := &events[i]
		t.Apply(e.Center[:nd], out[:])
		axial := float64(out[1])
		if out[0] >= radius || math.Abs(axial) >= halfWidth {
			continue
		}

		var ch int
		if axial < 0 {
			ch = int(axial/deltaQ-0.5) + mid
		} else {
			ch = int(axial/deltaQ+0.5) + mid
		}
		if ch >= 0 && ch < numSteps {
			signalFit[ch] += e.Signal
		}
		signal += e.Signal
		errorSquared += e.ErrorSquared
	}
	return signal, errorSquared, nil
}

// CentroidSphere adds coordinate times signal of every event with out[0]
// below radiusSquared into centroid and returns the summed signal of those
// events. Dividing centroid by the signal summed over all boxes gives the
// centroid.
func (b *Box) CentroidSphere(t CoordTransform, radiusSquared float32, centroid []float64) (float64, error) {
	nd := b.bc.NumDims()
	if len(centroid) != nd {
		return 0, &ErrDimensionMismatch{Expected: nd, Actual: len(centroid)}
	}

	events, err := b.ConstEvents()
	if err != nil {
		return 0, err
	}
	defer b.ReleaseEvents()

	var (
		signal float64
		out    [2]float32
	)
	for i := range events {
		e := &events[i]
		t.Apply(e.Center[:nd], out[:])
		if out[0] < radiusSquared {
			for d := 0; d < nd; d++ {
				centroid[d] += float64(e.Center[d]) * e.Signal
			}
			signal += e.Signal
		}
	}
	return signal, nil
}

// CalculateCentroid writes the signal-weighted mean position of the box's
// events into centroid. A box with zero cached signal yields zeros.
func (b *Box) CalculateCentroid(centroid []float32) error {
	return b.calculateCentroid(centroid, func(*event.Event) bool { return true })
}

// CalculateCentroidForRun is CalculateCentroid restricted to events of one
// run. The sum is still divided by the total signal of the box.
func (b *Box) CalculateCentroidForRun(centroid []float32, runIndex uint16) error {
	return b.calculateCentroid(centroid, func(e *event.Event) bool { return e.RunIndex == runIndex })
}

func (b *Box) calculateCentroid(centroid []float32, keep func(*event.Event) bool) error {
	nd := b.bc.NumDims()
	if len(centroid) != nd {
		return &ErrDimensionMismatch{Expected: nd, Actual: len(centroid)}
	}
	clear(centroid)

	total := b.Signal()
	if total == 0 {
		return nil
	}

	events, err := b.ConstEvents()
	if err != nil {
		return err
	}
	defer b.ReleaseEvents()

	sum := make([]float64, nd)
	for i := range events {
		e := &events[i]
		if !keep(e) {
			continue
		}
		for d := 0; d < nd; d++ {
			sum[d] += float64(e.Center[d]) * e.Signal
		}
	}
	for d := range sum {
		centroid[d] = float32(sum[d] / total)
	}
	return nil
}
