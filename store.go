package mdstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/mdstore/box"
	"github.com/hupe1980/mdstore/diskbuffer"
	"github.com/hupe1980/mdstore/event"
	"github.com/hupe1980/mdstore/fileio"
	"github.com/hupe1980/mdstore/internal/resource"
	"github.com/hupe1980/mdstore/manifest"
	"github.com/hupe1980/mdstore/table"
)

// EventFileName is the name of the backing file inside Config.Dir.
const EventFileName = "events.dat"

// Store owns a set of boxes and, when file-backed, the backing file and
// disk buffer they share.
type Store struct {
	cfg       Config
	layout    event.Layout
	sessionID string
	logger    *Logger
	metrics   MetricsCollector

	rc        *resource.Controller
	port      *fileio.FilePort
	buffer    *diskbuffer.Buffer
	bc        *box.Controller
	manifests *manifest.Store

	mu     sync.RWMutex
	boxes  []*box.Box
	byID   map[uint64]*box.Box
	closed bool
}

// Open creates a store from cfg. A file-backed store opens or creates
// EventFileName in cfg.Dir; existing boxes are brought back with Restore.
func Open(ctx context.Context, cfg Config, optFns ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout, err := cfg.layout()
	if err != nil {
		return nil, translateError(err)
	}

	o := applyOptions(cfg, optFns)
	sessionID := uuid.NewString()
	logger := o.logger.WithSession(sessionID)

	s := &Store{
		cfg:       cfg,
		layout:    layout,
		sessionID: sessionID,
		logger:    logger,
		metrics:   o.metricsCollector,
		byID:      make(map[uint64]*box.Box),
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:     cfg.MemoryLimitBytes,
			MaxBackgroundWorkers: int64(cfg.Workers),
			IOLimitBytesPerSec:   cfg.IOLimitBytesPerSec,
		}),
	}

	bcOpts := []box.Option{
		box.WithLogger(logger.Logger),
		box.WithMetricsObserver(o.metricsCollector),
	}

	if cfg.FileBacked {
		if err := o.fs.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store dir: %w", err)
		}

		port, err := fileio.Open(filepath.Join(cfg.Dir, EventFileName), layout,
			fileio.WithFileSystem(o.fs),
			fileio.WithResourceController(s.rc),
			fileio.WithContext(context.WithoutCancel(ctx)),
		)
		if err != nil {
			return nil, translateError(err)
		}

		s.port = port
		s.buffer = diskbuffer.New(diskbuffer.Config{
			WriteBufferSize: cfg.WriteBufferEvents,
			FileLength:      port.NumRecords(),
		},
			diskbuffer.WithLogger(logger.Logger),
			diskbuffer.WithMetricsObserver(o.metricsCollector),
			diskbuffer.WithResourceController(s.rc, layout.RecordSize()),
		)
		s.manifests = manifest.NewStore(o.fs, cfg.Dir)
		bcOpts = append(bcOpts, box.WithFileBacking(port, s.buffer))
	}

	bc, err := box.NewController(layout, bcOpts...)
	if err != nil {
		if s.port != nil {
			_ = s.port.Close()
		}
		return nil, translateError(err)
	}
	s.bc = bc

	logger.LogOpen(ctx, cfg.Dir, layout.String(), cfg.FileBacked)
	return s, nil
}

// SessionID returns the random id of this store session.
func (s *Store) SessionID() string { return s.sessionID }

// Layout returns the event layout.
func (s *Store) Layout() event.Layout { return s.layout }

// Controller returns the box controller shared by all boxes.
func (s *Store) Controller() *box.Controller { return s.bc }

// IsFileBacked reports whether boxes are backed by the event file.
func (s *Store) IsFileBacked() bool { return s.bc.IsFileBacked() }

// BufferStats returns the disk buffer state. It is zero for in-memory stores.
func (s *Store) BufferStats() diskbuffer.Stats {
	if s.buffer == nil {
		return diskbuffer.Stats{}
	}
	return s.buffer.Stats()
}

// NewBox creates an empty box. Boxes of a file-backed store get a handle
// and are paged through the disk buffer.
func (s *Store) NewBox(depth uint32, extents []box.Extent) (*box.Box, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	b, err := box.New(s.bc, depth, extents)
	if err != nil {
		return nil, translateError(err)
	}
	s.addLocked(b)
	return b, nil
}

func (s *Store) newBoxWithID(id uint64, depth uint32, extents []box.Extent) (*box.Box, error) {
	if _, ok := s.byID[id]; ok {
		return nil, fmt.Errorf("%w: box %d already exists", ErrInvalidArgument, id)
	}
	b, err := box.NewWithID(s.bc, id, depth, extents)
	if err != nil {
		return nil, translateError(err)
	}
	return b, nil
}

func (s *Store) addLocked(b *box.Box) {
	if s.bc.IsFileBacked() {
		b.SetFileBacked()
	}
	s.boxes = append(s.boxes, b)
	s.byID[b.ID()] = b
}

// Box returns the box with id.
func (s *Store) Box(id uint64) (*box.Box, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: box %d", ErrNotFound, id)
	}
	return b, nil
}

// Boxes returns the boxes in creation order.
func (s *Store) Boxes() []*box.Box {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.boxes)
}

// RemoveBox clears a box and forgets it. Its file block returns to the
// free-space map right away.
func (s *Store) RemoveBox(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: box %d", ErrNotFound, id)
	}
	n := b.NPoints()
	b.Clear()
	delete(s.byID, id)
	s.boxes = slices.DeleteFunc(s.boxes, func(x *box.Box) bool { return x == b })
	s.logger.WithBox(id).Debug("box removed", "events", n)
	return nil
}

// Ingest appends batches[i] to boxes[i] in parallel.
func (s *Store) Ingest(ctx context.Context, boxes []*box.Box, batches [][]event.Event) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	return translateError(box.AddEventsParallel(ctx, boxes, batches, s.rc.Workers()))
}

// Bin accumulates the events of every unmasked box whose centre lies in
// bin and returns the result.
func (s *Store) Bin(ctx context.Context, bin *box.Bin) (*box.Bin, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	res, err := box.CenterpointBinAll(ctx, s.Boxes(), bin, s.rc.Workers())
	return res, translateError(err)
}

// acquire holds a background slot for a bulk operation.
func (s *Store) acquire(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return s.rc.AcquireBackground(ctx)
}

func (s *Store) release() { s.rc.ReleaseBackground() }

// Flush writes every changed box to the backing file and syncs it. Boxes
// pinned by a reader keep their changes in memory.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if !s.bc.IsFileBacked() {
		return nil
	}
	return s.flushLocked(ctx)
}

func (s *Store) flushLocked(ctx context.Context) error {
	var errs []error
	for _, b := range s.boxes {
		if h := b.Handle(); h != nil && h.IsDataChanged() {
			if err := b.QueueForWrite(); err != nil {
				errs = append(errs, fmt.Errorf("box %d: %w", b.ID(), err))
			}
		}
	}
	if err := s.buffer.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := s.port.Sync(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	s.logger.LogFlush(ctx, len(s.boxes), err)
	return translateError(err)
}

// SaveManifest flushes the store and records every box's file block and
// cached aggregates in a new manifest.
func (s *Store) SaveManifest(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if !s.bc.IsFileBacked() {
		return ErrNotFileBacked
	}
	if err := s.flushLocked(ctx); err != nil {
		return err
	}

	m := &manifest.Manifest{
		SessionID:  s.sessionID,
		Dimensions: s.layout.NumDims(),
		EventKind:  s.layout.Kind().String(),
		FileLength: s.buffer.FileLength(),
		Boxes:      make([]manifest.BoxInfo, 0, len(s.boxes)),
	}
	for _, blk := range s.buffer.FreeSpaceBlocks() {
		m.FreeSpace = append(m.FreeSpace, manifest.BlockInfo{Position: blk.Position, Size: blk.Size})
	}
	for _, b := range s.boxes {
		m.Boxes = append(m.Boxes, boxInfo(b))
	}

	err := s.manifests.Save(m)
	s.logger.LogManifest(ctx, len(m.Boxes), err)
	return translateError(err)
}

func boxInfo(b *box.Box) manifest.BoxInfo {
	info := manifest.BoxInfo{
		ID:       b.ID(),
		Depth:    b.Depth(),
		Masked:   b.IsMasked(),
		Centroid: b.Centroid(),
		Position: diskbuffer.Unassigned,
	}
	for _, e := range b.Extents() {
		info.Extents = append(info.Extents, [2]float32{e.Min, e.Max})
	}
	if !info.Masked {
		info.Signal = b.Signal()
		info.ErrorSquared = b.ErrorSquared()
	}
	if h := b.Handle(); h != nil {
		st := h.State()
		info.Position = st.Position
		info.Size = st.Size
		info.Saved = st.Saved
	}
	return info
}

// Restore recreates the boxes recorded by the last SaveManifest. They are
// file-backed, saved and not loaded: their events are read on first use.
// The store must not have boxes yet.
func (s *Store) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.bc.IsFileBacked() {
		return ErrNotFileBacked
	}
	if len(s.boxes) > 0 {
		return fmt.Errorf("%w: store already has %d boxes", ErrInvalidArgument, len(s.boxes))
	}

	n, err := s.restoreLocked()
	if err != nil {
		s.clearLocked()
	}
	s.logger.LogRestore(ctx, n, err)
	return translateError(err)
}

func (s *Store) restoreLocked() (int, error) {
	m, err := s.manifests.Load()
	if err != nil {
		return 0, err
	}

	kind, err := event.ParseKind(m.EventKind)
	if err != nil {
		return 0, err
	}
	layout, err := event.NewLayout(m.Dimensions, kind)
	if err != nil {
		return 0, err
	}
	if layout != s.layout {
		return 0, &ErrLayoutMismatch{Expected: s.layout, Actual: layout}
	}

	for _, info := range m.Boxes {
		extents := make([]box.Extent, len(info.Extents))
		for i, e := range info.Extents {
			extents[i] = box.Extent{Min: e[0], Max: e[1]}
		}
		b, err := s.newBoxWithID(info.ID, info.Depth, extents)
		if err != nil {
			return len(s.boxes), fmt.Errorf("box %d: %w", info.ID, err)
		}

		if info.Saved {
			b.SetFileBackedAt(info.Position, info.Size, true)
		} else {
			b.SetFileBacked()
		}
		b.SetSignal(info.Signal)
		b.SetErrorSquared(info.ErrorSquared)
		if info.Masked {
			b.Mask()
		}
		if len(info.Centroid) > 0 {
			if err := b.SetCentroid(info.Centroid); err != nil {
				return len(s.boxes), fmt.Errorf("box %d: %w", info.ID, err)
			}
		}
		s.addLocked(b)
	}

	s.buffer.SetFileLength(max(m.FileLength, s.port.NumRecords()))
	for _, blk := range m.FreeSpace {
		s.buffer.FreeBlock(blk.Position, blk.Size)
	}
	return len(s.boxes), nil
}

// clearLocked forgets every box without touching the backing file.
func (s *Store) clearLocked() {
	for _, b := range s.boxes {
		b.Clear()
	}
	s.boxes = nil
	clear(s.byID)
}

// Export writes every box as a flat table to w. It returns the number of
// rows written.
func (s *Store) Export(ctx context.Context, w io.Writer, c table.Compression) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	tw, err := table.NewWriter(w, s.layout, c)
	if err != nil {
		return 0, translateError(err)
	}

	err = s.exportLocked(ctx, tw)
	if err == nil {
		err = tw.Flush()
	}
	s.logger.LogExport(ctx, tw.Boxes(), tw.Rows(), err)
	return tw.Rows(), translateError(err)
}

func (s *Store) exportLocked(ctx context.Context, tw *table.Writer) error {
	for _, b := range s.boxes {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, _, err := b.EventsData()
		if err != nil {
			return fmt.Errorf("box %d: %w", b.ID(), err)
		}

		meta := table.BoxMeta{ID: b.ID(), Depth: b.Depth(), Masked: b.IsMasked()}
		for _, e := range b.Extents() {
			meta.Extents = append(meta.Extents, [2]float32{e.Min, e.Max})
		}
		if err := tw.WriteBox(meta, data); err != nil {
			return fmt.Errorf("box %d: %w", b.ID(), err)
		}
	}
	return nil
}

// Import reads boxes written by Export into the store. Box ids are kept;
// an id that already exists is an error. It returns the number of boxes
// imported.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	tr, err := table.NewReader(r)
	if err != nil {
		return 0, translateError(err)
	}
	if tr.Layout() != s.layout {
		return 0, &ErrLayoutMismatch{Expected: s.layout, Actual: tr.Layout()}
	}

	boxes, rows, err := s.importLocked(ctx, tr)
	s.logger.LogImport(ctx, boxes, rows, err)
	return boxes, translateError(err)
}

func (s *Store) importLocked(ctx context.Context, tr *table.Reader) (int, uint64, error) {
	var (
		boxes int
		rows  uint64
		data  []float64
	)
	nColumns := s.layout.Columns()
	for {
		if err := ctx.Err(); err != nil {
			return boxes, rows, err
		}

		meta, buf, err := tr.Next(data[:0])
		if errors.Is(err, io.EOF) {
			return boxes, rows, nil
		}
		if err != nil {
			return boxes, rows, err
		}

		extents := make([]box.Extent, len(meta.Extents))
		for i, e := range meta.Extents {
			extents[i] = box.Extent{Min: e[0], Max: e[1]}
		}
		b, err := s.newBoxWithID(meta.ID, meta.Depth, extents)
		if err != nil {
			return boxes, rows, fmt.Errorf("box %d: %w", meta.ID, err)
		}
		s.addLocked(b)

		if err := b.SetEventsData(buf, nColumns); err != nil {
			return boxes, rows, err
		}
		if meta.Masked {
			b.Mask()
		}
		if err := b.QueueForWrite(); err != nil {
			return boxes, rows, fmt.Errorf("box %d: %w", meta.ID, err)
		}

		boxes++
		rows += uint64(len(buf) / nColumns)
		// SetEventsData copies the rows, so buf is reused for the next box.
		data = buf
	}
}

// Close flushes the disk buffer and closes the backing file. Boxes must
// not be used afterwards. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if !s.bc.IsFileBacked() {
		return nil
	}

	var errs []error
	for _, b := range s.boxes {
		if h := b.Handle(); h != nil && h.IsDataChanged() {
			if err := b.QueueForWrite(); err != nil {
				errs = append(errs, fmt.Errorf("box %d: %w", b.ID(), err))
			}
		}
	}
	if err := s.buffer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.port.Close(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	s.logger.LogFlush(context.Background(), len(s.boxes), err)
	return translateError(err)
}

// signalOf returns the signal of a box, treating a masked box as empty.
func signalOf(b *box.Box) float64 {
	if b.IsMasked() {
		return 0
	}
	if v := b.Signal(); !math.IsNaN(v) {
		return v
	}
	return 0
}

// TotalSignal returns the summed cached signal of all unmasked boxes.
func (s *Store) TotalSignal() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, b := range s.boxes {
		total += signalOf(b)
	}
	return total
}
