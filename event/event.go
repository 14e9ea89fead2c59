package event

import (
	"errors"
	"fmt"
	"math"
)

// MaxDimensions is the largest supported dimensionality.
const MaxDimensions = 9

// ErrInvalidDimensions is returned for a dimensionality outside [1, MaxDimensions].
var ErrInvalidDimensions = errors.New("event: invalid number of dimensions")

// Kind selects whether events carry provenance fields.
type Kind uint8

const (
	// Lean events carry coordinates, signal and error only.
	Lean Kind = iota
	// Full events additionally carry run, goniometer and detector ids.
	Full
)

func (k Kind) String() string {
	switch k {
	case Lean:
		return "lean"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind parses "lean" or "full".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "lean", "":
		return Lean, nil
	case "full":
		return Full, nil
	default:
		return 0, fmt.Errorf("event: unknown kind %q", s)
	}
}

// Event is one n-dimensional data point.
//
// Only the first Layout.NumDims entries of Center are meaningful.
type Event struct {
	Center          [MaxDimensions]float32
	Signal          float64
	ErrorSquared    float64
	RunIndex        uint16
	GoniometerIndex uint16
	DetectorID      int32
}

// New creates a lean event. Coordinates beyond MaxDimensions are ignored.
func New(signal, errorSquared float64, center ...float32) Event {
	e := Event{Signal: signal, ErrorSquared: errorSquared}
	copy(e.Center[:], center)
	return e
}

// NewFull creates an event with provenance.
func NewFull(signal, errorSquared float64, runIndex, goniometerIndex uint16, detectorID int32, center ...float32) Event {
	e := New(signal, errorSquared, center...)
	e.RunIndex = runIndex
	e.GoniometerIndex = goniometerIndex
	e.DetectorID = detectorID
	return e
}

// Sum returns the total signal and squared error of events.
func Sum(events []Event) (signal, errorSquared float64) {
	for i := range events {
		signal += events[i].Signal
		errorSquared += events[i].ErrorSquared
	}
	return signal, errorSquared
}

// Coord returns the d-th coordinate.
func (e *Event) Coord(d int) float32 { return e.Center[d] }

// Error returns the error (square root of ErrorSquared).
func (e *Event) Error() float64 {
	return math.Sqrt(e.ErrorSquared)
}

// Layout fixes the dimensionality and kind of every event in a session.
type Layout struct {
	nd   int
	kind Kind
}

// NewLayout validates nd and returns a layout.
func NewLayout(nd int, kind Kind) (Layout, error) {
	if nd < 1 || nd > MaxDimensions {
		return Layout{}, fmt.Errorf("%w: %d", ErrInvalidDimensions, nd)
	}
	if kind != Lean && kind != Full {
		return Layout{}, fmt.Errorf("event: unknown kind %d", kind)
	}
	return Layout{nd: nd, kind: kind}, nil
}

// MustLayout is like NewLayout but panics on error. Intended for tests and
// package-level variables.
func MustLayout(nd int, kind Kind) Layout {
	l, err := NewLayout(nd, kind)
	if err != nil {
		panic(err)
	}
	return l
}

// NumDims returns the number of meaningful coordinates.
func (l Layout) NumDims() int { return l.nd }

// Kind returns the event kind.
func (l Layout) Kind() Kind { return l.kind }

// IsZero reports whether the layout was never initialised.
func (l Layout) IsZero() bool { return l.nd == 0 }

// RecordSize returns the on-disk size of one event in bytes.
func (l Layout) RecordSize() int {
	size := 16 + 4*l.nd
	if l.kind == Full {
		size += 8
	}
	return size
}

// Columns returns the number of table columns per event.
func (l Layout) Columns() int {
	if l.kind == Full {
		return l.nd + 5
	}
	return l.nd + 2
}

func (l Layout) String() string {
	return fmt.Sprintf("%s/%dd", l.kind, l.nd)
}
