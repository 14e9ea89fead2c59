package fileio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/mdstore/event"
	"github.com/hupe1980/mdstore/internal/fs"
	"github.com/hupe1980/mdstore/internal/resource"
)

const (
	headerMagic   = "MDEV"
	headerVersion = 1
	// HeaderSize is the number of bytes preceding the first record.
	HeaderSize = 32
)

// FileOption configures a FilePort.
type FileOption func(*fileOptions)

type fileOptions struct {
	fs  fs.FileSystem
	rc  *resource.Controller
	ctx context.Context
}

// WithFileSystem sets the file system used to open the backing file.
// This is primarily used for testing and fault injection.
func WithFileSystem(fsys fs.FileSystem) FileOption {
	return func(o *fileOptions) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithResourceController rate-limits backing-file IO through rc.
func WithResourceController(rc *resource.Controller) FileOption {
	return func(o *fileOptions) {
		o.rc = rc
	}
}

// WithContext sets the context used while waiting for IO tokens.
func WithContext(ctx context.Context) FileOption {
	return func(o *fileOptions) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// FilePort is a Port backed by one positional file.
//
// Layout on disk:
//
//	[magic "MDEV"][version u16][kind u8][nd u8][record size u32][reserved ...] (32 bytes)
//	[record 0][record 1]...
type FilePort struct {
	mu         sync.RWMutex
	f          fs.File
	path       string
	layout     event.Layout
	rc         *resource.Controller
	ctx        context.Context
	numRecords uint64
	closed     bool

	bufPool sync.Pool
}

// Open opens or creates the backing file at path.
//
// A new file gets a header for layout. An existing file must have been
// written with the same layout, otherwise ErrLayoutMismatch is returned.
func Open(path string, layout event.Layout, opts ...FileOption) (*FilePort, error) {
	if layout.IsZero() {
		return nil, fmt.Errorf("fileio: %w", event.ErrInvalidDimensions)
	}

	o := fileOptions{fs: fs.Default, ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := o.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("fileio: open %s: %w", path, err)
	}

	p := &FilePort{
		f:      f,
		path:   path,
		layout: layout,
		rc:     o.rc,
		ctx:    o.ctx,
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if info.Size() == 0 {
		if err := p.writeHeader(); err != nil {
			_ = f.Close()
			return nil, err
		}
		return p, nil
	}

	if err := p.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}

	dataBytes := info.Size() - HeaderSize
	if dataBytes < 0 {
		dataBytes = 0
	}
	p.numRecords = uint64(dataBytes) / uint64(layout.RecordSize())
	return p, nil
}

func (p *FilePort) writeHeader() error {
	var h [HeaderSize]byte
	copy(h[0:4], headerMagic)
	binary.LittleEndian.PutUint16(h[4:], headerVersion)
	h[6] = byte(p.layout.Kind())
	h[7] = byte(p.layout.NumDims())
	binary.LittleEndian.PutUint32(h[8:], uint32(p.layout.RecordSize()))
	if _, err := p.f.WriteAt(h[:], 0); err != nil {
		return fmt.Errorf("fileio: write header: %w", err)
	}
	return nil
}

func (p *FilePort) readHeader() error {
	var h [HeaderSize]byte
	if _, err := p.f.ReadAt(h[:], 0); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrInvalidHeader
		}
		return fmt.Errorf("fileio: read header: %w", err)
	}
	if string(h[0:4]) != headerMagic {
		return ErrInvalidHeader
	}
	if v := binary.LittleEndian.Uint16(h[4:]); v != headerVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidHeader, v)
	}
	kind := event.Kind(h[6])
	nd := int(h[7])
	if kind != p.layout.Kind() || nd != p.layout.NumDims() {
		return fmt.Errorf("%w: file has %s/%dd, want %s", ErrLayoutMismatch, kind, nd, p.layout)
	}
	if rs := binary.LittleEndian.Uint32(h[8:]); int(rs) != p.layout.RecordSize() {
		return fmt.Errorf("%w: record size %d", ErrInvalidHeader, rs)
	}
	return nil
}

// Layout returns the event layout of the file.
func (p *FilePort) Layout() event.Layout { return p.layout }

// Path returns the path of the backing file.
func (p *FilePort) Path() string { return p.path }

// IsOpen reports whether the port accepts I/O.
func (p *FilePort) IsOpen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}

// NumRecords returns the end of the file in records.
func (p *FilePort) NumRecords() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.numRecords
}

func (p *FilePort) offset(position uint64) int64 {
	return HeaderSize + int64(position)*int64(p.layout.RecordSize())
}

func (p *FilePort) getBuf(n int) *[]byte {
	if v := p.bufPool.Get(); v != nil {
		b := v.(*[]byte)
		if cap(*b) >= n {
			*b = (*b)[:n]
			return b
		}
	}
	b := make([]byte, n)
	return &b
}

// SaveBlock writes events contiguously starting at record position.
func (p *FilePort) SaveBlock(events []event.Event, position uint64) error {
	if len(events) == 0 {
		return nil
	}

	bp := p.getBuf(0)
	buf := p.layout.AppendRecords((*bp)[:0], events)
	defer func() {
		*bp = buf[:0]
		p.bufPool.Put(bp)
	}()

	if err := p.rc.AcquireIO(p.ctx, len(buf)); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	if _, err := p.f.WriteAt(buf, p.offset(position)); err != nil {
		return fmt.Errorf("fileio: save %d events at %d: %w", len(events), position, err)
	}
	if end := position + uint64(len(events)); end > p.numRecords {
		p.numRecords = end
	}
	return nil
}

// LoadBlock reads count records starting at position.
func (p *FilePort) LoadBlock(buf []event.Event, position, count uint64) ([]event.Event, error) {
	buf = buf[:0]
	if count == 0 {
		return buf, nil
	}

	n := int(count) * p.layout.RecordSize()
	if err := p.rc.AcquireIO(p.ctx, n); err != nil {
		return buf, err
	}

	bp := p.getBuf(n)
	defer p.bufPool.Put(bp)
	raw := *bp

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return buf, ErrClosed
	}
	if position+count > p.numRecords {
		end := p.numRecords
		p.mu.RUnlock()
		return buf, fmt.Errorf("fileio: load [%d,%d) beyond end %d: %w", position, position+count, end, io.ErrUnexpectedEOF)
	}
	read, err := p.f.ReadAt(raw, p.offset(position))
	p.mu.RUnlock()

	if err != nil && !(errors.Is(err, io.EOF) && read == n) {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return buf, fmt.Errorf("fileio: load %d events at %d: %w", count, position, err)
	}

	return p.layout.DecodeRecords(raw, buf)
}

// Sync flushes written data to stable storage.
func (p *FilePort) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return syncData(p.f)
}

// Close syncs and closes the backing file. Closing twice is a no-op.
func (p *FilePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	syncErr := syncData(p.f)
	closeErr := p.f.Close()
	return errors.Join(syncErr, closeErr)
}
