package mdstore

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/mdstore/diskbuffer"
)

// MetricsCollector receives disk traffic of boxes and the disk buffer.
// Implement this interface to integrate with monitoring systems; the metric
// package provides a Prometheus implementation.
type MetricsCollector interface {
	// OnSave is called after a box block is written.
	OnSave(events uint64, duration time.Duration, err error)

	// OnLoad is called after a box block is read.
	OnLoad(events uint64, duration time.Duration, err error)

	// OnEviction is called when a box's events are dropped from memory.
	OnEviction(events uint64)

	// OnFlush is called after the disk buffer is flushed.
	OnFlush(objects int, duration time.Duration, err error)

	// OnQueueDepth reports the write queue length and its resident events.
	OnQueueDepth(depth int, memoryEvents uint64)
}

var (
	_ diskbuffer.MetricsObserver = MetricsCollector(nil)
	_ MetricsCollector           = (*BasicMetricsCollector)(nil)
)

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) OnSave(uint64, time.Duration, error) {}
func (NoopMetricsCollector) OnLoad(uint64, time.Duration, error) {}
func (NoopMetricsCollector) OnEviction(uint64)                   {}
func (NoopMetricsCollector) OnFlush(int, time.Duration, error)   {}
func (NoopMetricsCollector) OnQueueDepth(int, uint64)            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SaveCount       atomic.Int64
	SaveErrors      atomic.Int64
	SaveEvents      atomic.Int64
	SaveTotalNanos  atomic.Int64
	LoadCount       atomic.Int64
	LoadErrors      atomic.Int64
	LoadEvents      atomic.Int64
	LoadTotalNanos  atomic.Int64
	EvictionCount   atomic.Int64
	EvictedEvents   atomic.Int64
	FlushCount      atomic.Int64
	FlushErrors     atomic.Int64
	QueueDepth      atomic.Int64
	QueueMemoryUsed atomic.Int64
}

// OnSave implements MetricsCollector.
func (b *BasicMetricsCollector) OnSave(events uint64, duration time.Duration, err error) {
	b.SaveCount.Add(1)
	b.SaveTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SaveErrors.Add(1)
		return
	}
	b.SaveEvents.Add(int64(events))
}

// OnLoad implements MetricsCollector.
func (b *BasicMetricsCollector) OnLoad(events uint64, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
		return
	}
	b.LoadEvents.Add(int64(events))
}

// OnEviction implements MetricsCollector.
func (b *BasicMetricsCollector) OnEviction(events uint64) {
	b.EvictionCount.Add(1)
	b.EvictedEvents.Add(int64(events))
}

// OnFlush implements MetricsCollector.
func (b *BasicMetricsCollector) OnFlush(_ int, _ time.Duration, err error) {
	b.FlushCount.Add(1)
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// OnQueueDepth implements MetricsCollector.
func (b *BasicMetricsCollector) OnQueueDepth(depth int, memoryEvents uint64) {
	b.QueueDepth.Store(int64(depth))
	b.QueueMemoryUsed.Store(int64(memoryEvents))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SaveCount:       b.SaveCount.Load(),
		SaveErrors:      b.SaveErrors.Load(),
		SaveEvents:      b.SaveEvents.Load(),
		SaveAvgNanos:    avg(b.SaveTotalNanos.Load(), b.SaveCount.Load()),
		LoadCount:       b.LoadCount.Load(),
		LoadErrors:      b.LoadErrors.Load(),
		LoadEvents:      b.LoadEvents.Load(),
		LoadAvgNanos:    avg(b.LoadTotalNanos.Load(), b.LoadCount.Load()),
		EvictionCount:   b.EvictionCount.Load(),
		EvictedEvents:   b.EvictedEvents.Load(),
		FlushCount:      b.FlushCount.Load(),
		FlushErrors:     b.FlushErrors.Load(),
		QueueDepth:      b.QueueDepth.Load(),
		QueueMemoryUsed: b.QueueMemoryUsed.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SaveCount       int64
	SaveErrors      int64
	SaveEvents      int64
	SaveAvgNanos    int64
	LoadCount       int64
	LoadErrors      int64
	LoadEvents      int64
	LoadAvgNanos    int64
	EvictionCount   int64
	EvictedEvents   int64
	FlushCount      int64
	FlushErrors     int64
	QueueDepth      int64
	QueueMemoryUsed int64
}
