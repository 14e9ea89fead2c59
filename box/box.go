package box

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/mdstore/event"
)

// Extent is the half-open range [Min, Max) of one dimension.
type Extent struct {
	Min float32
	Max float32
}

// Width returns Max - Min.
func (e Extent) Width() float32 { return e.Max - e.Min }

// Box is a leaf region of n-dimensional space holding a contiguous run of
// events, either in memory, on disk, or split across both.
//
// Signal and ErrorSquared are cached aggregates over all events of the box.
// They are refreshed by RefreshCache and SaveAt, not by the Add methods, and
// may be read without locking while other goroutines add events.
type Box struct {
	bc    *Controller
	id    uint64
	depth uint32

	mu       sync.Mutex
	extents  []Extent
	events   []event.Event
	centroid []float32

	handle       atomic.Pointer[Handle]
	signal       atomic.Uint64
	errorSquared atomic.Uint64
	masked       atomic.Bool
}

// New creates an empty box at the given depth covering extents.
func New(bc *Controller, depth uint32, extents []Extent) (*Box, error) {
	if bc == nil {
		return nil, fmt.Errorf("%w: nil controller", ErrInvalidArgument)
	}
	return NewWithID(bc, bc.NextID(), depth, extents)
}

// NewWithID is like New but uses a known id, e.g. when restoring boxes
// from a manifest.
func NewWithID(bc *Controller, id uint64, depth uint32, extents []Extent) (*Box, error) {
	if bc == nil {
		return nil, fmt.Errorf("%w: nil controller", ErrInvalidArgument)
	}
	if len(extents) != bc.NumDims() {
		return nil, &ErrDimensionMismatch{Expected: bc.NumDims(), Actual: len(extents)}
	}
	bc.ReserveID(id)
	return &Box{
		bc:      bc,
		id:      id,
		depth:   depth,
		extents: slices.Clone(extents),
	}, nil
}

// ID returns the box id, unique within its controller.
func (b *Box) ID() uint64 { return b.id }

// Depth returns the recursion depth of the box.
func (b *Box) Depth() uint32 { return b.depth }

// Controller returns the controller the box belongs to.
func (b *Box) Controller() *Controller { return b.bc }

// Extents returns a copy of the box extents.
func (b *Box) Extents() []Extent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.extents)
}

// Volume returns the product of the extent widths.
func (b *Box) Volume() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := 1.0
	for _, e := range b.extents {
		v *= float64(e.Width())
	}
	return v
}

// Signal returns the cached total signal.
func (b *Box) Signal() float64 { return math.Float64frombits(b.signal.Load()) }

// ErrorSquared returns the cached total squared error.
func (b *Box) ErrorSquared() float64 { return math.Float64frombits(b.errorSquared.Load()) }

// SetSignal overwrites the cached total signal.
func (b *Box) SetSignal(v float64) { b.signal.Store(math.Float64bits(v)) }

// SetErrorSquared overwrites the cached total squared error.
func (b *Box) SetErrorSquared(v float64) { b.errorSquared.Store(math.Float64bits(v)) }

// AddToCache adds signal and errorSquared to the cached aggregates.
func (b *Box) AddToCache(signal, errorSquared float64) {
	addFloat(&b.signal, signal)
	addFloat(&b.errorSquared, errorSquared)
}

func addFloat(v *atomic.Uint64, delta float64) {
	for {
		old := v.Load()
		if v.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+delta)) {
			return
		}
	}
}

// SignalNormalized returns the signal divided by the box volume.
func (b *Box) SignalNormalized() float64 { return b.Signal() / b.Volume() }

func (b *Box) setAggregates(signal, errorSquared float64) {
	b.SetSignal(signal)
	b.SetErrorSquared(errorSquared)
}

// Mask marks the box as masked and sets its aggregates to NaN.
func (b *Box) Mask() {
	b.setAggregates(math.NaN(), math.NaN())
	b.masked.Store(true)
}

// Unmask clears the masked flag. The aggregates keep their NaN values
// until the next RefreshCache or SaveAt.
func (b *Box) Unmask() { b.masked.Store(false) }

// IsMasked reports whether the box is masked.
func (b *Box) IsMasked() bool { return b.masked.Load() }

// Centroid returns a copy of the stored centroid, or nil.
func (b *Box) Centroid() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.centroid)
}

// SetCentroid stores a centroid with one value per dimension.
func (b *Box) SetCentroid(c []float32) error {
	if len(c) != b.bc.NumDims() {
		return &ErrDimensionMismatch{Expected: b.bc.NumDims(), Actual: len(c)}
	}
	b.mu.Lock()
	b.centroid = slices.Clone(c)
	b.mu.Unlock()
	return nil
}

// markChanged flags in-memory data as differing from disk. Must hold b.mu.
func (b *Box) markChanged() {
	if h := b.handle.Load(); h != nil {
		h.dirty.Store(true)
	}
}

// lockHandle locks and returns the current handle, or returns nil for a
// box that is not file-backed. Holding the handle lock keeps the disk
// buffer from evicting the box.
func (b *Box) lockHandle() *Handle {
	for {
		h := b.handle.Load()
		if h == nil {
			return nil
		}
		h.Lock()
		if b.handle.Load() == h {
			return h
		}
		h.Unlock()
	}
}

func unlockHandle(h *Handle) {
	if h != nil {
		h.Unlock()
	}
}

// AddEvent appends one event. It is safe for concurrent use.
func (b *Box) AddEvent(e event.Event) int {
	h := b.lockHandle()
	defer unlockHandle(h)

	b.mu.Lock()
	b.events = append(b.events, e)
	b.markChanged()
	b.mu.Unlock()
	return 1
}

// AddEventUnsafe appends one event without locking. The caller must be the
// only goroutine touching the box.
func (b *Box) AddEventUnsafe(e event.Event) int {
	b.events = append(b.events, e)
	b.markChanged()
	return 1
}

// AddEvents appends events in order. It returns the number of rejected
// events, which is always 0 for a leaf box.
func (b *Box) AddEvents(es []event.Event) int {
	if len(es) == 0 {
		return 0
	}
	h := b.lockHandle()
	defer unlockHandle(h)

	b.mu.Lock()
	b.events = append(b.events, es...)
	b.markChanged()
	b.mu.Unlock()
	return 0
}

// AddEventsAndCache is AddEvents that also adds the sums of es to the
// cached aggregates in the same critical section, so Signal stays current
// without a RefreshCache. RefreshCache must not follow on a saved box that
// is not loaded, since it would count the in-memory events twice.
func (b *Box) AddEventsAndCache(es []event.Event) int {
	if len(es) == 0 {
		return 0
	}
	signal, errorSquared := event.Sum(es)

	h := b.lockHandle()
	defer unlockHandle(h)

	b.mu.Lock()
	b.events = append(b.events, es...)
	b.markChanged()
	b.AddToCache(signal, errorSquared)
	b.mu.Unlock()
	return 0
}

// AddEventsUnsafe is AddEvents without locking.
func (b *Box) AddEventsUnsafe(es []event.Event) int {
	b.events = append(b.events, es...)
	b.markChanged()
	return 0
}

func (b *Box) buildEvent(signal, errorSquared float64, coords []float32, runIndex, goniometerIndex uint16, detectorID int32) (event.Event, error) {
	if len(coords) != b.bc.NumDims() {
		return event.Event{}, &ErrDimensionMismatch{Expected: b.bc.NumDims(), Actual: len(coords)}
	}
	if b.bc.Layout().Kind() == event.Full {
		return event.NewFull(signal, errorSquared, runIndex, goniometerIndex, detectorID, coords...), nil
	}
	return event.New(signal, errorSquared, coords...), nil
}

// BuildAndAddEvent constructs an event and appends it. Provenance is
// dropped for lean layouts.
func (b *Box) BuildAndAddEvent(signal, errorSquared float64, coords []float32, runIndex, goniometerIndex uint16, detectorID int32) error {
	e, err := b.buildEvent(signal, errorSquared, coords, runIndex, goniometerIndex, detectorID)
	if err != nil {
		return err
	}
	b.AddEvent(e)
	return nil
}

// BuildAndAddEventUnsafe is BuildAndAddEvent without locking.
func (b *Box) BuildAndAddEventUnsafe(signal, errorSquared float64, coords []float32, runIndex, goniometerIndex uint16, detectorID int32) error {
	e, err := b.buildEvent(signal, errorSquared, coords, runIndex, goniometerIndex, detectorID)
	if err != nil {
		return err
	}
	b.AddEventUnsafe(e)
	return nil
}

// BuildAndAddEvents appends events given as parallel arrays: sigErrSq
// holds signal, errorSquared pairs and coords holds NumDims values per
// event. The provenance slices may be nil; otherwise they need one entry
// per event. It returns the number of events added.
func (b *Box) BuildAndAddEvents(sigErrSq []float64, coords []float32, runIndex, goniometerIndex []uint16, detectorID []int32) (int, error) {
	if len(sigErrSq)%2 != 0 {
		return 0, fmt.Errorf("%w: odd signal/error array length %d", ErrInvalidArgument, len(sigErrSq))
	}
	n := len(sigErrSq) / 2
	nd := b.bc.NumDims()
	if len(coords) != n*nd {
		return 0, fmt.Errorf("%w: %d coordinates for %d events of %d dimensions", ErrInvalidArgument, len(coords), n, nd)
	}
	for name, l := range map[string]int{"run": len(runIndex), "goniometer": len(goniometerIndex), "detector": len(detectorID)} {
		if l != 0 && l != n {
			return 0, fmt.Errorf("%w: %d %s indices for %d events", ErrInvalidArgument, l, name, n)
		}
	}

	full := b.bc.Layout().Kind() == event.Full
	es := make([]event.Event, n)
	for i := range es {
		e := &es[i]
		e.Signal = sigErrSq[2*i]
		e.ErrorSquared = sigErrSq[2*i+1]
		copy(e.Center[:nd], coords[i*nd:(i+1)*nd])
		if !full {
			continue
		}
		if runIndex != nil {
			e.RunIndex = runIndex[i]
		}
		if goniometerIndex != nil {
			e.GoniometerIndex = goniometerIndex[i]
		}
		if detectorID != nil {
			e.DetectorID = detectorID[i]
		}
	}
	b.AddEvents(es)
	return n, nil
}

// Reserve grows the in-memory capacity for n more events.
func (b *Box) Reserve(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = slices.Grow(b.events, n)
}

// Events returns the box's events for modification, loading them from disk
// first if needed. The box is pinned and marked changed; call ReleaseEvents
// when done.
func (b *Box) Events() ([]event.Event, error) { return b.pin(true) }

// ConstEvents returns the box's events for reading, loading them from disk
// first if needed. The box is pinned until ReleaseEvents.
func (b *Box) ConstEvents() ([]event.Event, error) { return b.pin(false) }

func (b *Box) pin(mutable bool) ([]event.Event, error) {
	h := b.lockHandle()
	if h != nil {
		if err := h.loadRest(); err != nil {
			h.Unlock()
			return nil, err
		}
		h.busy.Store(true)
		if mutable {
			h.dirty.Store(true)
		}
		h.Unlock()

		if buf := b.bc.Buffer(); buf != nil {
			if err := buf.ToWrite(h); err != nil {
				h.busy.Store(false)
				return nil, err
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events, nil
}

// ReleaseEvents unpins the box. It is safe to call on a box that was never
// pinned.
func (b *Box) ReleaseEvents() {
	if h := b.handle.Load(); h != nil {
		h.busy.Store(false)
	}
}

// EventsCopy returns a copy of all events of the box.
func (b *Box) EventsCopy() ([]event.Event, error) {
	events, err := b.ConstEvents()
	if err != nil {
		return nil, err
	}
	defer b.ReleaseEvents()

	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(events), nil
}

// NPoints returns the logical number of events: the in-memory events plus,
// for a saved box whose block is not loaded, the events on disk.
func (b *Box) NPoints() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := uint64(len(b.events))
	h := b.handle.Load()
	if h == nil || !h.saved.Load() || h.loaded.Load() {
		return n
	}
	return h.size.Load() + n
}

// TotalDataSize is an alias of NPoints.
func (b *Box) TotalDataSize() uint64 { return b.NPoints() }

// DataInMemorySize returns the number of events held in memory.
func (b *Box) DataInMemorySize() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.events))
}

// RefreshCache recomputes the aggregates from the in-memory events. For a
// saved box whose block is not loaded, the cached values are taken as the
// contribution of the disk events and added. Calling it twice without a
// load in between counts that contribution twice.
func (b *Box) RefreshCache() {
	b.mu.Lock()
	defer b.mu.Unlock()

	signal, errorSquared := event.Sum(b.events)
	if h := b.handle.Load(); h != nil && h.saved.Load() && !h.loaded.Load() {
		signal += b.Signal()
		errorSquared += b.ErrorSquared()
	}
	b.setAggregates(signal, errorSquared)
}

// Clear releases the box's file block and disk buffer registration, zeroes
// the aggregates and frees the in-memory events. It is idempotent.
func (b *Box) Clear() {
	if h := b.lockHandle(); h != nil {
		h.busy.Store(true)
		b.handle.Store(nil)
		h.Unlock()
		if buf := b.bc.Buffer(); buf != nil {
			buf.ObjectDeleted(h)
		}
	}

	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
	b.setAggregates(0, 0)
}

// ClearDataFromMemory frees the in-memory events but keeps the file block
// and the aggregates. The handle becomes not loaded, clean and not busy.
func (b *Box) ClearDataFromMemory() {
	h := b.lockHandle()
	defer unlockHandle(h)
	b.clearDataFromMemory(h)
}

func (b *Box) clearDataFromMemory(h *Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
	if h != nil {
		h.loaded.Store(false)
		h.dirty.Store(false)
		h.busy.Store(false)
	}
}

// QueueForWrite registers a file-backed box with the disk buffer so that
// its in-memory events are eventually written.
func (b *Box) QueueForWrite() error {
	h := b.handle.Load()
	buf := b.bc.Buffer()
	if h == nil || buf == nil {
		return nil
	}
	return buf.ToWrite(h)
}

// EventsData returns the events as a flat row-major table.
func (b *Box) EventsData() ([]float64, int, error) {
	events, err := b.ConstEvents()
	if err != nil {
		return nil, 0, err
	}
	defer b.ReleaseEvents()

	b.mu.Lock()
	defer b.mu.Unlock()
	data, nColumns, _, _ := b.bc.Layout().ToTable(events, nil)
	return data, nColumns, nil
}

// SetEventsData replaces all events of the box with the rows of a flat
// table and recomputes the aggregates. Disk data of a file-backed box
// becomes obsolete and is rewritten on the next save.
func (b *Box) SetEventsData(data []float64, nColumns int) error {
	events, err := b.bc.Layout().FromTable(data, nColumns, nil)
	if err != nil {
		return fmt.Errorf("box %d: %w", b.id, err)
	}

	h := b.lockHandle()
	defer unlockHandle(h)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = events
	if h != nil {
		h.loaded.Store(true)
		h.dirty.Store(true)
	}
	b.setAggregates(event.Sum(events))
	return nil
}

// TransformDimensions maps every extent and event coordinate x of
// dimension d to x*scaling[d] + offset[d].
func (b *Box) TransformDimensions(scaling, offset []float64) error {
	nd := b.bc.NumDims()
	if len(scaling) != nd {
		return &ErrDimensionMismatch{Expected: nd, Actual: len(scaling)}
	}
	if len(offset) != nd {
		return &ErrDimensionMismatch{Expected: nd, Actual: len(offset)}
	}

	if _, err := b.Events(); err != nil {
		return err
	}
	defer b.ReleaseEvents()

	b.mu.Lock()
	defer b.mu.Unlock()
	for d := range b.extents {
		lo := float32(float64(b.extents[d].Min)*scaling[d] + offset[d])
		hi := float32(float64(b.extents[d].Max)*scaling[d] + offset[d])
		if lo > hi {
			lo, hi = hi, lo
		}
		b.extents[d] = Extent{Min: lo, Max: hi}
	}
	for i := range b.events {
		c := &b.events[i].Center
		for d := 0; d < nd; d++ {
			c[d] = float32(float64(c[d])*scaling[d] + offset[d])
		}
	}
	return nil
}

// logSave records a finished block write.
func (b *Box) logSave(position uint64, n int, start time.Time, err error) {
	b.bc.metrics.OnSave(uint64(n), time.Since(start), err)
	if err != nil {
		b.bc.logger.Error("save failed", "box", b.id, "position", position, "events", n, "error", err)
		return
	}
	b.bc.logger.Debug("saved", "box", b.id, "position", position, "events", n)
}

// logLoad records a finished block read.
func (b *Box) logLoad(position, n uint64, start time.Time, err error) {
	b.bc.metrics.OnLoad(n, time.Since(start), err)
	if err != nil {
		b.bc.logger.Error("load failed", "box", b.id, "position", position, "events", n, "error", err)
		return
	}
	b.bc.logger.Debug("loaded", "box", b.id, "position", position, "events", n)
}
