package box

import "slices"

// Bin accumulates the signal of events falling inside [Min, Max) per
// dimension.
type Bin struct {
	Min          []float32
	Max          []float32
	Signal       float64
	ErrorSquared float64
}

// NewBin returns an empty bin over [lo, hi).
func NewBin(lo, hi []float32) *Bin {
	return &Bin{Min: slices.Clone(lo), Max: slices.Clone(hi)}
}

// Reset zeroes the accumulated signal and error.
func (b *Bin) Reset() {
	b.Signal = 0
	b.ErrorSquared = 0
}

// Contains reports whether coords lies inside the bin. Dimensions with
// fullyContained[d] set are not checked.
func (b *Bin) Contains(coords []float32, fullyContained []bool) bool {
	for d, x := range coords {
		if fullyContained != nil && fullyContained[d] {
			continue
		}
		if b.Min[d] > x || b.Max[d] <= x {
			return false
		}
	}
	return true
}

func (b *Bin) empty() Bin {
	return Bin{Min: b.Min, Max: b.Max}
}

// CenterpointBin adds every event whose centre lies inside bin to it.
// fullyContained may be nil; a true entry marks a dimension in which the
// whole box is known to be inside the bin.
func (b *Box) CenterpointBin(bin *Bin, fullyContained []bool) error {
	nd := b.bc.NumDims()
	if len(bin.Min) != nd || len(bin.Max) != nd {
		return &ErrDimensionMismatch{Expected: nd, Actual: min(len(bin.Min), len(bin.Max))}
	}
	if fullyContained != nil && len(fullyContained) != nd {
		return &ErrDimensionMismatch{Expected: nd, Actual: len(fullyContained)}
	}

	events, err := b.ConstEvents()
	if err != nil {
		return err
	}
	defer b.ReleaseEvents()

	for i := range events {
		e := &events[i]
		if bin.Contains(e.Center[:nd], fullyContained) {
			bin.Signal += e.Signal
			bin.ErrorSquared += e.ErrorSquared
		}
	}
	return nil
}

// GeneralBin adds every event whose centre fn contains to bin.
func (b *Box) GeneralBin(bin *Bin, fn ImplicitFunction) error {
	events, err := b.ConstEvents()
	if err != nil {
		return err
	}
	defer b.ReleaseEvents()

	nd := b.bc.NumDims()
	for i := range events {
		e := &events[i]
		if fn.IsPointContained(e.Center[:nd]) {
			bin.Signal += e.Signal
			bin.ErrorSquared += e.ErrorSquared
		}
	}
	return nil
}
