package box

import (
	"context"
	"fmt"
	"runtime"

	"github.com/hupe1980/mdstore/event"
	"golang.org/x/sync/errgroup"
)

func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// AddEventsParallel appends batches[i] to boxes[i] using up to workers
// goroutines, adds each batch to the box's cached aggregates and registers
// file-backed boxes with the disk buffer.
func AddEventsParallel(ctx context.Context, boxes []*Box, batches [][]event.Event, workers int) error {
	if len(boxes) != len(batches) {
		return fmt.Errorf("%w: %d boxes, %d batches", ErrInvalidArgument, len(boxes), len(batches))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(workers))

	for i, b := range boxes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.AddEventsAndCache(batches[i])
			return b.QueueForWrite()
		})
	}
	return g.Wait()
}

// CenterpointBinAll bins the events of all unmasked boxes into a copy of
// bin using up to workers goroutines. The result starts from bin's
// current signal and error.
func CenterpointBinAll(ctx context.Context, boxes []*Box, bin *Bin, workers int) (*Bin, error) {
	partial := make([]Bin, len(boxes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(workers))

	for i, b := range boxes {
		if b.IsMasked() {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			partial[i] = bin.empty()
			return b.CenterpointBin(&partial[i], nil)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := NewBin(bin.Min, bin.Max)
	out.Signal, out.ErrorSquared = bin.Signal, bin.ErrorSquared
	for i := range partial {
		out.Signal += partial[i].Signal
		out.ErrorSquared += partial[i].ErrorSquared
	}
	return out, nil
}
