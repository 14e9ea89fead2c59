package box

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/mdstore/diskbuffer"
)

// Handle is the Saveable view of a file-backed box. It is created lazily by
// SetFileBacked and owned exclusively by its box.
//
// Flags are atomics so the buffer and lock-free readers can inspect them;
// transitions that must be atomic with respect to eviction happen under
// the handle lock.
type Handle struct {
	mu  sync.Mutex
	box *Box

	position atomic.Uint64
	size     atomic.Uint64
	saved    atomic.Bool
	loaded   atomic.Bool
	busy     atomic.Bool
	dirty    atomic.Bool
}

var _ diskbuffer.Saveable = (*Handle)(nil)

func newHandle(b *Box) *Handle {
	h := &Handle{box: b}
	h.position.Store(diskbuffer.Unassigned)
	h.loaded.Store(true)
	return h
}

func (h *Handle) Lock()   { h.mu.Lock() }
func (h *Handle) Unlock() { h.mu.Unlock() }

// ID returns the id of the owning box.
func (h *Handle) ID() uint64 { return h.box.id }

// IsBusy reports whether a caller holds the box's events.
func (h *Handle) IsBusy() bool { return h.busy.Load() }

// IsDataChanged reports whether the in-memory events differ from disk.
func (h *Handle) IsDataChanged() bool { return h.dirty.Load() }

// WasSaved reports whether the box has a block on disk.
func (h *Handle) WasSaved() bool { return h.saved.Load() }

// IsLoaded reports whether the on-disk block has been read back.
func (h *Handle) IsLoaded() bool { return h.loaded.Load() }

// FilePosition returns the block position in records, or
// diskbuffer.Unassigned.
func (h *Handle) FilePosition() uint64 { return h.position.Load() }

// FileSize returns the number of records in the block.
func (h *Handle) FileSize() uint64 { return h.size.Load() }

// TotalDataSize returns the logical number of events of the box.
func (h *Handle) TotalDataSize() uint64 { return h.box.NPoints() }

// DataMemorySize returns the number of events held in memory.
func (h *Handle) DataMemorySize() uint64 { return h.box.DataInMemorySize() }

// SaveAt brings disk-resident events into memory and writes all of them to
// a block at position. A size of 0 leaves the box without a block. The
// caller holds the handle lock.
func (h *Handle) SaveAt(position, size uint64) error {
	if size == 0 {
		h.position.Store(diskbuffer.Unassigned)
		h.size.Store(0)
		h.saved.Store(false)
		h.loaded.Store(true)
		h.dirty.Store(false)
		return nil
	}
	if err := h.loadRest(); err != nil {
		return err
	}
	return h.box.saveAt(h.box.bc.Port(), position, size)
}

// ClearDataFromMemory drops the box's in-memory events. The caller holds
// the handle lock.
func (h *Handle) ClearDataFromMemory() { h.box.clearDataFromMemory(h) }

// loadRest reads the on-disk block into memory if it is not loaded yet.
// Disk events are placed before events added since the last save. The
// caller holds the handle lock.
func (h *Handle) loadRest() error {
	if !h.saved.Load() || h.loaded.Load() {
		return nil
	}
	return h.box.loadFrom(h.box.bc.Port(), h.position.Load(), h.size.Load(), nil, h)
}

// markSaved records a successful write of count events at position.
func (h *Handle) markSaved(position, count uint64, dirty bool) {
	h.position.Store(position)
	h.size.Store(count)
	h.saved.Store(true)
	h.loaded.Store(true)
	h.dirty.Store(dirty)
}

// State is the persistable part of a handle.
type State struct {
	Position uint64
	Size     uint64
	Saved    bool
}

// State returns the handle's file block.
func (h *Handle) State() State {
	return State{Position: h.position.Load(), Size: h.size.Load(), Saved: h.saved.Load()}
}
