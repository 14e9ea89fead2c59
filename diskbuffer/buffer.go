package diskbuffer

import (
	"container/list"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/mdstore/internal/resource"
)

// ErrClosed is returned by ToWrite after Close.
var ErrClosed = errors.New("diskbuffer: closed")

// Config holds disk buffer limits.
type Config struct {
	// WriteBufferSize is the number of events queued handles may keep in
	// memory before old handles are written and evicted. 0 evicts every
	// released handle on the next ToWrite.
	WriteBufferSize uint64

	// FileLength is the initial end of the backing file, in records.
	// Blocks are appended from here.
	FileLength uint64
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithLogger sets the logger for the buffer.
func WithLogger(l *slog.Logger) Option {
	return func(b *Buffer) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetricsObserver sets the metrics observer for the buffer.
func WithMetricsObserver(m MetricsObserver) Option {
	return func(b *Buffer) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithResourceController charges resident event bytes against rc.
// recordSize is the size of one event in bytes.
func WithResourceController(rc *resource.Controller, recordSize int) Option {
	return func(b *Buffer) {
		b.rc = rc
		b.recordSize = int64(recordSize)
	}
}

// Stats is a point-in-time view of the buffer.
type Stats struct {
	WriteBufferSize uint64
	WriteBufferUsed uint64
	Queued          int
	FileLength      uint64
	FreeSpace       uint64
	Writes          int64
	Evictions       int64
}

type entry struct {
	s       Saveable
	size    uint64 // resident events accounted for s
	rcBytes int64  // bytes held in the resource controller
}

// Buffer is the write-behind cache manager shared by all boxes of a session.
type Buffer struct {
	mu     sync.Mutex
	cfg    Config
	lru    *list.List // front = most recently used
	elems  map[uint64]*list.Element
	queued *roaring64.Bitmap
	used   uint64
	length uint64
	free   freeSpace
	closed bool

	rc         *resource.Controller
	recordSize int64
	logger     *slog.Logger
	metrics    MetricsObserver

	writes    atomic.Int64
	evictions atomic.Int64
}

// New creates a disk buffer.
func New(cfg Config, opts ...Option) *Buffer {
	b := &Buffer{
		cfg:     cfg,
		lru:     list.New(),
		elems:   make(map[uint64]*list.Element),
		queued:  roaring64.New(),
		length:  cfg.FileLength,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: NoopMetricsObserver{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ToWrite registers that s holds data in memory that may need writing.
//
// Calling it again for a queued handle only refreshes its LRU position and
// resident size. If the resident total exceeds the write buffer size, old
// handles are written and evicted; the first write error is returned.
func (b *Buffer) ToWrite(s Saveable) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	id := s.ID()
	size := s.DataMemorySize()

	if b.queued.Contains(id) {
		el := b.elems[id]
		b.lru.MoveToFront(el)
		b.resize(el.Value.(*entry), size)
	} else {
		e := &entry{s: s}
		b.elems[id] = b.lru.PushFront(e)
		b.queued.Add(id)
		b.resize(e, size)
	}

	var err error
	if b.overBudget() {
		err = b.writeOldObjects(func() bool { return !b.overBudget() })
	}
	b.metrics.OnQueueDepth(b.lru.Len(), b.used)
	return err
}

// resize updates the accounted size of e. Must hold b.mu.
func (b *Buffer) resize(e *entry, size uint64) {
	b.used = b.used - e.size + size
	e.size = size

	want := int64(size) * b.recordSize
	if b.rc == nil || want == e.rcBytes {
		return
	}
	if want < e.rcBytes {
		b.rc.ReleaseMemory(e.rcBytes - want)
		e.rcBytes = want
		return
	}

	need := want - e.rcBytes
	if err := b.rc.AcquireMemory(need); err != nil {
		// The data is already resident; make room and retry once.
		limit := b.rc.MemoryLimit()
		if werr := b.writeOldObjects(func() bool { return b.rc.MemoryUsage()+need <= limit }); werr != nil {
			b.logger.Error("evicting for memory budget failed", "error", werr)
		}
		if !b.queued.Contains(e.s.ID()) {
			// e itself was written and evicted.
			return
		}
		if err := b.rc.AcquireMemory(need); err != nil {
			b.logger.Warn("memory budget exceeded by pinned boxes",
				"id", e.s.ID(),
				"bytes", need,
				"limit", limit,
			)
			return
		}
	}
	e.rcBytes = want
}

// overBudget reports whether resident events exceed the write buffer. Must hold b.mu.
func (b *Buffer) overBudget() bool {
	return b.used > b.cfg.WriteBufferSize
}

// writeOldObjects writes and evicts handles from the LRU end until done
// reports true. Busy handles are skipped. Must hold b.mu.
func (b *Buffer) writeOldObjects(done func() bool) error {
	var firstErr error
	for el := b.lru.Back(); el != nil && !done(); {
		prev := el.Prev()
		e := el.Value.(*entry)

		evicted, err := b.evict(e)
		if err != nil {
			b.logger.Error("write failed", "id", e.s.ID(), "events", e.size, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if evicted {
			b.remove(el)
		}
		el = prev
	}
	return firstErr
}

// evict writes e if dirty and drops its data from memory.
func (b *Buffer) evict(e *entry) (bool, error) {
	s := e.s
	s.Lock()
	defer s.Unlock()

	if s.IsBusy() {
		return false, nil
	}
	if s.IsDataChanged() {
		if err := b.write(s); err != nil {
			return false, err
		}
	}

	events := s.DataMemorySize()
	s.ClearDataFromMemory()
	b.evictions.Add(1)
	b.metrics.OnEviction(events)
	b.logger.Debug("evicted", "id", s.ID(), "events", events)
	return true, nil
}

// write saves s to a block that fits its current size. A block that did
// not change size is rewritten in place; a shrunk block releases its tail;
// a grown block moves. The old block is released only after the write
// succeeded. Caller holds s and b.mu.
func (b *Buffer) write(s Saveable) error {
	size := s.TotalDataSize()
	oldPos, oldSize := s.FilePosition(), s.FileSize()
	saved := s.WasSaved() && oldPos != Unassigned

	pos := oldPos
	if !saved || size > oldSize {
		pos = b.allocate(size)
	}

	if err := s.SaveAt(pos, size); err != nil {
		if pos != oldPos {
			b.free.free(Block{Position: pos, Size: size})
		}
		return err
	}

	if saved {
		switch {
		case pos != oldPos:
			b.free.free(Block{Position: oldPos, Size: oldSize})
		case size < oldSize:
			b.free.free(Block{Position: oldPos + size, Size: oldSize - size})
		}
	}
	b.writes.Add(1)
	return nil
}

func (b *Buffer) allocate(size uint64) uint64 {
	if size == 0 {
		return Unassigned
	}
	if pos, ok := b.free.take(size); ok {
		return pos
	}
	pos := b.length
	b.length += size
	return pos
}

// remove drops el from the queue. Must hold b.mu.
func (b *Buffer) remove(el *list.Element) {
	e := el.Value.(*entry)
	b.lru.Remove(el)
	id := e.s.ID()
	delete(b.elems, id)
	b.queued.Remove(id)
	b.used -= e.size
	if e.rcBytes > 0 {
		b.rc.ReleaseMemory(e.rcBytes)
	}
}

// ObjectDeleted unregisters s permanently and returns its file block to the
// free-space map. Safe to call for handles that were never queued and safe
// to call twice.
func (b *Buffer) ObjectDeleted(s Saveable) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if el, ok := b.elems[s.ID()]; ok {
		b.remove(el)
	}
	if s.WasSaved() {
		b.free.free(Block{Position: s.FilePosition(), Size: s.FileSize()})
	}
	b.metrics.OnQueueDepth(b.lru.Len(), b.used)
}

// Allocate reserves a block of size records outside of any handle, e.g.
// for boxes restored from a manifest that need a fresh location.
func (b *Buffer) Allocate(size uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocate(size)
}

// FreeBlock returns a block to the free-space map. It reports false if the
// range overlaps space that is already free.
func (b *Buffer) FreeBlock(position, size uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.free.free(Block{Position: position, Size: size})
}

// FreeSpaceBlocks returns a copy of the free-space map.
func (b *Buffer) FreeSpaceBlocks() []Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.free.snapshot()
}

// SetFileLength moves the end of the file, e.g. after restoring boxes.
// The length never shrinks.
func (b *Buffer) SetFileLength(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.length {
		b.length = n
	}
}

// FileLength returns the end of the file in records.
func (b *Buffer) FileLength() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// IsQueued reports whether the handle with id is in the write queue.
func (b *Buffer) IsQueued(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queued.Contains(id)
}

// Flush writes every queued, non-busy, dirty handle without evicting it.
// Busy handles are left dirty and reported in the log.
func (b *Buffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flush()
}

func (b *Buffer) flush() error {
	start := time.Now()
	var (
		errs    []error
		written int
		busy    int
	)

	for el := b.lru.Back(); el != nil; el = el.Prev() {
		s := el.Value.(*entry).s
		s.Lock()
		switch {
		case s.IsBusy():
			busy++
		case s.IsDataChanged():
			if err := b.write(s); err != nil {
				errs = append(errs, fmt.Errorf("box %d: %w", s.ID(), err))
			} else {
				written++
			}
		}
		s.Unlock()
	}

	err := errors.Join(errs...)
	if busy > 0 {
		b.logger.Warn("flush skipped busy boxes", "busy", busy)
	}
	b.logger.Debug("flushed", "written", written, "duration", time.Since(start))
	b.metrics.OnFlush(written, time.Since(start), err)
	return err
}

// Close flushes the buffer and rejects further ToWrite calls. Queued
// handles keep their data; ObjectDeleted remains valid.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	err := b.flush()
	b.closed = true
	return err
}

// Stats returns a snapshot of the buffer state.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		WriteBufferSize: b.cfg.WriteBufferSize,
		WriteBufferUsed: b.used,
		Queued:          b.lru.Len(),
		FileLength:      b.length,
		FreeSpace:       b.free.total(),
		Writes:          b.writes.Load(),
		Evictions:       b.evictions.Load(),
	}
}
