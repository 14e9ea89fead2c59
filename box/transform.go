package box

import (
	"fmt"
	"math"
)

// CoordTransform maps event coordinates to the coordinates a geometric
// query works in. Sphere queries read out[0]; cylinder queries read out[0]
// and out[1].
type CoordTransform interface {
	Apply(in []float32, out []float32)
}

// CoordTransformFunc adapts a function to CoordTransform.
type CoordTransformFunc func(in []float32, out []float32)

// Apply calls f(in, out).
func (f CoordTransformFunc) Apply(in []float32, out []float32) { f(in, out) }

// ImplicitFunction selects points for GeneralBin.
type ImplicitFunction interface {
	IsPointContained(coords []float32) bool
}

// ImplicitFunctionFunc adapts a predicate to ImplicitFunction.
type ImplicitFunctionFunc func(coords []float32) bool

// IsPointContained calls f(coords).
func (f ImplicitFunctionFunc) IsPointContained(coords []float32) bool { return f(coords) }

// SphereTransform writes the squared distance to Center into out[0].
type SphereTransform struct {
	Center []float32
}

// NewSphereTransform returns a squared radius transform around center.
func NewSphereTransform(center []float32) *SphereTransform {
	return &SphereTransform{Center: center}
}

// Apply implements CoordTransform.
func (t *SphereTransform) Apply(in []float32, out []float32) {
	var r2 float32
	for d, c := range t.Center {
		dx := in[d] - c
		r2 += dx * dx
	}
	out[0] = r2
}

// CylinderTransform writes the distance from the cylinder axis into out[0]
// and the signed offset along the axis from Center into out[1].
type CylinderTransform struct {
	Center []float32
	Axis   []float32 // unit length
}

// NewCylinderTransform returns a cylinder transform around the line
// through center along axis. The axis is normalised.
func NewCylinderTransform(center, axis []float32) (*CylinderTransform, error) {
	if len(center) != len(axis) {
		return nil, &ErrDimensionMismatch{Expected: len(center), Actual: len(axis)}
	}
	var norm float64
	for _, a := range axis {
		norm += float64(a) * float64(a)
	}
	if norm == 0 {
		return nil, fmt.Errorf("%w: zero cylinder axis", ErrInvalidArgument)
	}
	norm = math.Sqrt(norm)

	unit := make([]float32, len(axis))
	for d, a := range axis {
		unit[d] = float32(float64(a) / norm)
	}
	return &CylinderTransform{Center: center, Axis: unit}, nil
}

// Apply implements CoordTransform.
func (t *CylinderTransform) Apply(in []float32, out []float32) {
	var r2, along float64
	for d, c := range t.Center {
		dx := float64(in[d] - c)
		r2 += dx * dx
		along += dx * float64(t.Axis[d])
	}
	radial := r2 - along*along
	if radial < 0 {
		radial = 0
	}
	out[0] = float32(math.Sqrt(radial))
	out[1] = float32(along)
}
