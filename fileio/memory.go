package fileio

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/mdstore/event"
)

// MemoryPort is a Port that keeps the encoded records in memory.
//
// It uses the same record encoding as FilePort, so it exercises the same
// codec paths. Useful for tests and transient sessions.
type MemoryPort struct {
	mu     sync.RWMutex
	layout event.Layout
	data   []byte
	closed bool

	saves atomic.Int64
	loads atomic.Int64
}

// NewMemoryPort creates an empty in-memory port.
func NewMemoryPort(layout event.Layout) *MemoryPort {
	return &MemoryPort{layout: layout}
}

// Layout returns the event layout.
func (p *MemoryPort) Layout() event.Layout { return p.layout }

// IsOpen reports whether the port accepts I/O.
func (p *MemoryPort) IsOpen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}

// SaveBlock writes events contiguously starting at record position.
func (p *MemoryPort) SaveBlock(events []event.Event, position uint64) error {
	if len(events) == 0 {
		return nil
	}
	rs := p.layout.RecordSize()
	buf := p.layout.AppendRecords(make([]byte, 0, len(events)*rs), events)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	off := int(position) * rs
	if end := off + len(buf); end > len(p.data) {
		if end > cap(p.data) {
			grown := make([]byte, end, max(end, 2*cap(p.data)))
			copy(grown, p.data)
			p.data = grown
		}
		p.data = p.data[:end]
	}
	copy(p.data[off:], buf)
	p.saves.Add(1)
	return nil
}

// LoadBlock reads count records starting at position.
func (p *MemoryPort) LoadBlock(buf []event.Event, position, count uint64) ([]event.Event, error) {
	buf = buf[:0]
	if count == 0 {
		return buf, nil
	}
	rs := uint64(p.layout.RecordSize())

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return buf, ErrClosed
	}

	start, end := position*rs, (position+count)*rs
	if end > uint64(len(p.data)) {
		return buf, fmt.Errorf("fileio: load [%d,%d) beyond end %d: %w", position, position+count, uint64(len(p.data))/rs, io.ErrUnexpectedEOF)
	}
	p.loads.Add(1)
	return p.layout.DecodeRecords(p.data[start:end], buf)
}

// NumRecords returns the end of the store in records.
func (p *MemoryPort) NumRecords() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return uint64(len(p.data)) / uint64(p.layout.RecordSize())
}

// Saves returns the number of SaveBlock calls that wrote data.
func (p *MemoryPort) Saves() int64 { return p.saves.Load() }

// Loads returns the number of LoadBlock calls that read data.
func (p *MemoryPort) Loads() int64 { return p.loads.Load() }

// Close marks the port closed.
func (p *MemoryPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
