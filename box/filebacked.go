package box

import (
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/mdstore/event"
	"github.com/hupe1980/mdstore/fileio"
)

const saveAll = math.MaxUint64

// IsFileBacked reports whether the box has a handle.
func (b *Box) IsFileBacked() bool { return b.handle.Load() != nil }

// Handle returns the box's handle, or nil.
func (b *Box) Handle() *Handle { return b.handle.Load() }

// SetFileBacked gives the box a handle with no file block. Events already
// in memory are marked changed so the disk buffer writes them before
// eviction. Calling it again has no effect.
func (b *Box) SetFileBacked() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle.Load() != nil {
		return
	}
	h := newHandle(b)
	h.dirty.Store(len(b.events) > 0)
	b.handle.Store(h)
}

// SetFileBackedAt makes the box file-backed with a known block of size
// records at position. With markSaved the block is taken as the box's
// authoritative data: the in-memory events are dropped and reloaded on
// demand.
func (b *Box) SetFileBackedAt(position, size uint64, markSaved bool) {
	b.SetFileBacked()
	h := b.lockHandle()
	if h == nil {
		return
	}
	defer h.Unlock()

	h.position.Store(position)
	h.size.Store(size)
	h.saved.Store(markSaved)
	if markSaved {
		b.clearDataFromMemory(h)
	}
}

// SaveAt writes all events of the box to port starting at record position
// and recomputes the aggregates from them. A file-backed box first loads
// any events that are only on disk and then records the new block. Boxes
// without events write nothing.
//
// When the controller has a disk buffer, position must be a block of at
// least NPoints records reserved with diskbuffer.Buffer.Allocate. SaveAt
// does not reserve it, and the buffer hands out unreserved records again.
func (b *Box) SaveAt(port fileio.Port, position uint64) error {
	if port == nil || !port.IsOpen() {
		return ErrNoFilePort
	}
	if h := b.lockHandle(); h != nil {
		defer h.Unlock()
		if err := h.loadRest(); err != nil {
			return err
		}
	}
	return b.saveAt(port, position, saveAll)
}

// saveAt writes at most limit in-memory events. Events beyond limit stay
// in memory and keep the handle dirty.
func (b *Box) saveAt(port fileio.Port, position, limit uint64) error {
	if port == nil || !port.IsOpen() {
		return ErrNoFilePort
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}
	events := b.events
	if uint64(len(events)) > limit {
		events = events[:limit]
	}

	start := time.Now()
	err := port.SaveBlock(events, position)
	b.logSave(position, len(events), start, err)
	if err != nil {
		return fmt.Errorf("box %d: save %d events at %d: %w", b.id, len(events), position, err)
	}

	b.setAggregates(event.Sum(b.events))
	if h := b.handle.Load(); h != nil {
		h.markSaved(position, uint64(len(events)), len(events) < len(b.events))
	}
	return nil
}

// LoadAndAddFrom reads count records at position from port and appends
// them to the in-memory events. scratch, if given, is reused as the read
// buffer. On failure the in-memory events are left untouched.
//
// If the block is the box's own unloaded block, the box becomes loaded;
// any other block is treated as new data.
func (b *Box) LoadAndAddFrom(port fileio.Port, position, count uint64, scratch []event.Event) error {
	if port == nil || !port.IsOpen() {
		return ErrNoFilePort
	}

	h := b.lockHandle()
	defer unlockHandle(h)

	if h != nil && h.saved.Load() && !h.loaded.Load() &&
		h.position.Load() == position && h.size.Load() == count {
		return b.loadFrom(port, position, count, scratch, h)
	}
	if err := b.loadFrom(port, position, count, scratch, nil); err != nil {
		return err
	}
	if h != nil && count > 0 {
		h.dirty.Store(true)
	}
	return nil
}

// loadFrom reads a block. With own set, the block is the handle's: its
// events are placed in front of the in-memory ones and own becomes loaded
// in the same critical section. Otherwise they are appended.
func (b *Box) loadFrom(port fileio.Port, position, count uint64, scratch []event.Event, own *Handle) error {
	if port == nil || !port.IsOpen() {
		return ErrNoFilePort
	}

	var (
		loaded []event.Event
		err    error
	)
	if count > 0 {
		start := time.Now()
		loaded, err = port.LoadBlock(scratch, position, count)
		b.logLoad(position, count, start, err)
		if err != nil {
			return fmt.Errorf("box %d: load %d events at %d: %w", b.id, count, position, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case len(loaded) == 0:
	case scratch == nil && len(b.events) == 0:
		b.events = loaded
	case own != nil:
		merged := make([]event.Event, 0, len(loaded)+len(b.events))
		merged = append(merged, loaded...)
		b.events = append(merged, b.events...)
	default:
		b.events = append(b.events, loaded...)
	}
	if own != nil {
		own.loaded.Store(true)
	}
	return nil
}

// ClearFileBacked removes the box's handle and releases its file block.
// With loadDiskBackedData, events that are only on disk are read first so
// nothing is lost. Without it they are discarded and the aggregates are
// recomputed from the in-memory events.
func (b *Box) ClearFileBacked(loadDiskBackedData bool) error {
	h := b.lockHandle()
	if h == nil {
		return nil
	}
	if loadDiskBackedData {
		if err := h.loadRest(); err != nil {
			h.Unlock()
			return err
		}
	}
	// Pin so the buffer leaves the handle alone until it is unregistered.
	h.busy.Store(true)
	b.handle.Store(nil)
	h.Unlock()

	if buf := b.bc.Buffer(); buf != nil {
		buf.ObjectDeleted(h)
	}
	if !loadDiskBackedData {
		b.RefreshCache()
	}
	return nil
}
