package diskbuffer

import (
	"math"
	"sync"
	"time"
)

// Unassigned is the file position of a handle that owns no file block.
const Unassigned = uint64(math.MaxUint64)

// Saveable is the view of a box the Disk Buffer works with.
//
// The buffer holds the Locker while it inspects and evicts a handle; state
// accessors must therefore not take the same lock.
type Saveable interface {
	sync.Locker

	// ID identifies the handle within one buffer.
	ID() uint64

	IsBusy() bool
	IsDataChanged() bool
	WasSaved() bool
	IsLoaded() bool

	// FilePosition and FileSize describe the block on disk, in records.
	FilePosition() uint64
	FileSize() uint64

	// TotalDataSize is the logical number of events (memory + disk).
	TotalDataSize() uint64
	// DataMemorySize is the number of events currently in memory.
	DataMemorySize() uint64

	// SaveAt brings any disk-resident data into memory, records the new
	// block and writes the full data there. Called with the lock held.
	SaveAt(position, size uint64) error

	// ClearDataFromMemory drops the in-memory data. Called with the lock held.
	ClearDataFromMemory()
}

// MetricsObserver observes disk traffic of boxes and the buffer.
type MetricsObserver interface {
	// OnSave is called after a block write.
	OnSave(events uint64, duration time.Duration, err error)

	// OnLoad is called after a block read.
	OnLoad(events uint64, duration time.Duration, err error)

	// OnEviction is called when a handle's data is dropped from memory.
	OnEviction(events uint64)

	// OnFlush is called after Flush.
	OnFlush(objects int, duration time.Duration, err error)

	// OnQueueDepth reports the number of queued handles and their resident events.
	OnQueueDepth(depth int, memoryEvents uint64)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnSave(uint64, time.Duration, error) {}
func (NoopMetricsObserver) OnLoad(uint64, time.Duration, error) {}
func (NoopMetricsObserver) OnEviction(uint64)                   {}
func (NoopMetricsObserver) OnFlush(int, time.Duration, error)   {}
func (NoopMetricsObserver) OnQueueDepth(int, uint64)            {}
