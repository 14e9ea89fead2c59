// Package fileio implements the File I/O Port: the two block primitives
// boxes use to move their events to and from the shared backing file.
//
// Positions and sizes are counted in records, not bytes. Each block is a
// flat run of fixed-width records (see package event); a block of N events
// written at position P occupies records [P, P+N).
//
// Two implementations are provided:
//
//   - [FilePort]: a single positional backing file with a self-describing header
//   - [MemoryPort]: an in-memory port for tests and transient sessions
package fileio

import (
	"errors"

	"github.com/hupe1980/mdstore/event"
)

var (
	// ErrClosed is returned by operations on a closed port.
	ErrClosed = errors.New("fileio: port closed")

	// ErrLayoutMismatch is returned when an existing backing file was written
	// with a different event layout.
	ErrLayoutMismatch = errors.New("fileio: event layout mismatch")

	// ErrInvalidHeader is returned when the backing file header is corrupt.
	ErrInvalidHeader = errors.New("fileio: invalid file header")
)

// Port is the File I/O Port consumed by boxes and the disk buffer.
//
// SaveBlock and LoadBlock are atomic with respect to a single region: a
// concurrent reader never observes a partially written record.
type Port interface {
	// Layout returns the event layout of the backing store.
	Layout() event.Layout

	// IsOpen reports whether the port accepts I/O.
	IsOpen() bool

	// SaveBlock writes events contiguously starting at record position.
	SaveBlock(events []event.Event, position uint64) error

	// LoadBlock reads count records starting at position. The result reuses
	// buf's capacity when large enough and has length count.
	LoadBlock(buf []event.Event, position, count uint64) ([]event.Event, error)
}
