package box

import (
	"context"
	"math"
	"testing"

	"github.com/hupe1980/mdstore/event"
	"github.com/hupe1980/mdstore/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSphereTransform(t *testing.T) {
	tr := NewSphereTransform([]float32{1, 1})
	out := make([]float32, 1)
	tr.Apply([]float32{4, 5}, out)
	assert.Equal(t, float32(25), out[0])
}

func TestCylinderTransform(t *testing.T) {
	tr, err := NewCylinderTransform([]float32{0, 0, 0}, []float32{0, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1}, tr.Axis)

	out := make([]float32, 2)
	tr.Apply([]float32{3, 4, -2}, out)
	assert.InDelta(t, 5, out[0], 1e-6)
	assert.InDelta(t, -2, out[1], 1e-6)

	_, err = NewCylinderTransform([]float32{0, 0}, []float32{0, 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewCylinderTransform([]float32{0, 0}, []float32{1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBox_IntegrateSphere(t *testing.T) {
	b := newBox(t, newController(t, 1))
	for _, x := range []float32{1, 2, 9} {
		b.AddEvent(event.New(1, 0.5, x))
	}

	signal, errSq, err := b.IntegrateSphere(NewSphereTransform([]float32{0}), 9, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 2.0, signal)
	assert.Equal(t, 1.0, errSq)

	// The boundary is exclusive.
	signal, _, err = b.IntegrateSphere(NewSphereTransform([]float32{0}), 4, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, signal)
}

func TestBox_IntegrateSphereBackgroundShell(t *testing.T) {
	b := newBox(t, newController(t, 2))
	shell := testutil.ShellEvents(100, 2, 1, 2)
	// Insert in reverse to make sure the correction sorts by signal.
	for i := len(shell) - 1; i >= 0; i-- {
		b.AddEvent(shell[i])
	}
	// Inside the inner radius: never part of the shell.
	b.AddEvent(event.New(1000, 1000, 0.1, 0))

	tr := NewSphereTransform([]float32{0, 0})

	signal, errSq, err := b.IntegrateSphere(tr, 4, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 4950.0, signal, "the event with signal 100 is excluded")
	assert.Equal(t, 4950.0, errSq)

	signal, _, err = b.IntegrateSphere(tr, 4, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 5050.0, signal)

	signal, _, err = b.IntegrateSphere(tr, 4, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 6050.0, signal)
}

func TestBox_IntegrateCylinder(t *testing.T) {
	b := newBox(t, newController(t, 2))
	b.AddEvents([]event.Event{
		event.New(1, 1, -0.5, 0),
		event.New(2, 1, 0, 0),
		event.New(4, 1, 0.5, 0),
		event.New(8, 1, 1.2, 0),
		event.New(16, 1, 1.6, 0), // beyond the half length plus half step
		event.New(32, 1, 0, 5),   // outside the radius
	})

	tr, err := NewCylinderTransform([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)

	fit := make([]float64, 3)
	signal, errSq, err := b.IntegrateCylinder(tr, 1, 2, fit)
	require.NoError(t, err)
	assert.Equal(t, 15.0, signal)
	assert.Equal(t, 4.0, errSq)
	// -0.5 maps to channel -1 and is only counted in the total.
	assert.Equal(t, []float64{2, 12, 0}, fit)

	_, _, err = b.IntegrateCylinder(tr, 1, 2, make([]float64, 1))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBox_CentroidSphere(t *testing.T) {
	b := newBox(t, newController(t, 1))
	b.AddEvents([]event.Event{event.New(1, 1, 1), event.New(3, 3, 3), event.New(1, 1, 9)})

	centroid := make([]float64, 1)
	signal, err := b.CentroidSphere(NewSphereTransform([]float32{0}), 16, centroid)
	require.NoError(t, err)
	assert.Equal(t, 4.0, signal)
	assert.Equal(t, 10.0, centroid[0])
	assert.Equal(t, 2.5, centroid[0]/signal)

	_, err = b.CentroidSphere(NewSphereTransform([]float32{0}), 16, make([]float64, 2))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBox_CalculateCentroid(t *testing.T) {
	bc, err := NewController(event.MustLayout(1, event.Full))
	require.NoError(t, err)
	b := newBox(t, bc)
	b.AddEvents([]event.Event{
		event.NewFull(1, 1, 0, 0, 1, 1),
		event.NewFull(3, 3, 1, 0, 2, 3),
	})

	centroid := []float32{7}
	require.NoError(t, b.CalculateCentroid(centroid))
	assert.Equal(t, []float32{0}, centroid, "zero cached signal yields zeros")

	b.RefreshCache()
	require.NoError(t, b.CalculateCentroid(centroid))
	assert.InDelta(t, 2.5, centroid[0], 1e-6)

	// Run-filtered sums are divided by the signal of the whole box.
	require.NoError(t, b.CalculateCentroidForRun(centroid, 1))
	assert.InDelta(t, 2.25, centroid[0], 1e-6)
	require.NoError(t, b.CalculateCentroidForRun(centroid, 0))
	assert.InDelta(t, 0.25, centroid[0], 1e-6)
	require.NoError(t, b.CalculateCentroidForRun(centroid, 9))
	assert.Equal(t, []float32{0}, centroid)

	assert.ErrorIs(t, b.CalculateCentroid(make([]float32, 2)), ErrInvalidArgument)
}

func TestBox_CenterpointBin(t *testing.T) {
	b := newBox(t, newController(t, 2))
	b.AddEvents([]event.Event{
		event.New(1, 1, 0, 0),   // on the lower edge: inside
		event.New(2, 2, 4.9, 1), // inside
		event.New(4, 4, 5, 1),   // on the upper edge: outside
		event.New(8, 8, 7, 2),   // outside in x only
	})

	bin := NewBin([]float32{0, 0}, []float32{5, 5})
	require.NoError(t, b.CenterpointBin(bin, nil))
	assert.Equal(t, 3.0, bin.Signal)
	assert.Equal(t, 3.0, bin.ErrorSquared)

	bin.Reset()
	require.NoError(t, b.CenterpointBin(bin, []bool{true, false}))
	assert.Equal(t, 15.0, bin.Signal)

	assert.ErrorIs(t, b.CenterpointBin(NewBin([]float32{0}, []float32{1}), nil), ErrInvalidArgument)
	assert.ErrorIs(t, b.CenterpointBin(bin, []bool{true}), ErrInvalidArgument)
}

func TestBox_GeneralBin(t *testing.T) {
	b := newBox(t, newController(t, 2))
	b.AddEvents([]event.Event{event.New(1, 1, 1, 1), event.New(2, 2, 3, 3), event.New(4, 4, 1, 3)})

	above := ImplicitFunctionFunc(func(c []float32) bool { return c[1] > c[0] })
	bin := &Bin{}
	require.NoError(t, b.GeneralBin(bin, above))
	assert.Equal(t, 4.0, bin.Signal)
}

func TestBox_QueriesReleaseFileBackedBox(t *testing.T) {
	fb := newFileBacked(t, 1, 1000)
	b := newBox(t, fb.bc)
	b.SetFileBacked()
	b.AddEvents([]event.Event{event.New(1, 1, 1), event.New(1, 1, 2)})
	require.NoError(t, b.SaveAt(fb.port, 0))
	b.ClearDataFromMemory()

	signal, _, err := b.IntegrateSphere(NewSphereTransform([]float32{0}), 100, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 2.0, signal)
	assert.False(t, b.Handle().IsBusy())
	assert.False(t, b.Handle().IsDataChanged())
	assert.True(t, b.Handle().IsLoaded())

	bin := NewBin([]float32{0}, []float32{10})
	require.NoError(t, b.CenterpointBin(bin, nil))
	assert.False(t, b.Handle().IsBusy())
}

func TestAddEventsParallel(t *testing.T) {
	fb := newFileBacked(t, 2, 1<<20)
	rng := testutil.NewRNG(5)

	boxes := make([]*Box, 16)
	batches := make([][]event.Event, len(boxes))
	for i := range boxes {
		boxes[i] = newBox(t, fb.bc)
		boxes[i].SetFileBacked()
		batches[i] = rng.UniformEvents(100+i, []float32{0, 0}, []float32{10, 10})
	}

	require.NoError(t, AddEventsParallel(context.Background(), boxes, batches, 4))
	for i, b := range boxes {
		assert.Equal(t, uint64(100+i), b.NPoints())
		assert.True(t, fb.buffer.IsQueued(b.ID()))
		signal, errSq := event.Sum(batches[i])
		assert.InDelta(t, signal, b.Signal(), 1e-9)
		assert.InDelta(t, errSq, b.ErrorSquared(), 1e-9)
	}

	err := AddEventsParallel(context.Background(), boxes, batches[:1], 4)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, AddEventsParallel(ctx, boxes, batches, 2), context.Canceled)
}

func TestCenterpointBinAll(t *testing.T) {
	bc := newController(t, 1)
	var boxes []*Box
	for i := 0; i < 10; i++ {
		b := newBox(t, bc)
		b.AddEvents([]event.Event{event.New(1, 1, 1), event.New(1, 1, 8)})
		boxes = append(boxes, b)
	}
	boxes[3].Mask()

	bin := NewBin([]float32{0}, []float32{5})
	bin.Signal = 0.5

	out, err := CenterpointBinAll(context.Background(), boxes, bin, 3)
	require.NoError(t, err)
	assert.Equal(t, 9.5, out.Signal)
	assert.Equal(t, 9.0, out.ErrorSquared)
	assert.Equal(t, 0.5, bin.Signal, "input bin is not modified")
	assert.False(t, math.IsNaN(out.Signal))
}
