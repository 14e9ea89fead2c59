package fileio

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hupe1980/mdstore/event"
	"github.com/hupe1980/mdstore/internal/fs"
	"github.com/hupe1980/mdstore/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEvents(n int, base float64) []event.Event {
	out := make([]event.Event, n)
	for i := range out {
		out[i] = event.New(base+float64(i), 1, float32(i))
	}
	return out
}

func TestFilePort_RoundTrip(t *testing.T) {
	layout := event.MustLayout(2, event.Lean)
	path := filepath.Join(t.TempDir(), "events.dat")

	p, err := Open(path, layout)
	require.NoError(t, err)
	assert.True(t, p.IsOpen())
	assert.Equal(t, path, p.Path())

	a := makeEvents(3, 10)
	b := makeEvents(2, 100)
	require.NoError(t, p.SaveBlock(a, 0))
	require.NoError(t, p.SaveBlock(b, 3))
	assert.Equal(t, uint64(5), p.NumRecords())

	got, err := p.LoadBlock(nil, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	got, err = p.LoadBlock(got, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	require.NoError(t, p.Sync())
	require.NoError(t, p.Close())
	assert.False(t, p.IsOpen())
	require.NoError(t, p.Close())

	// Reopen: records survive and the end of file is recovered.
	p2, err := Open(path, layout)
	require.NoError(t, err)
	defer p2.Close()
	assert.Equal(t, uint64(5), p2.NumRecords())

	got, err = p2.LoadBlock(nil, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestFilePort_EmptyBlockIsNoop(t *testing.T) {
	p, err := Open(filepath.Join(t.TempDir(), "events.dat"), event.MustLayout(1, event.Lean))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.SaveBlock(nil, 7))
	assert.Equal(t, uint64(0), p.NumRecords())

	got, err := p.LoadBlock(make([]event.Event, 4), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFilePort_LayoutMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.dat")
	p, err := Open(path, event.MustLayout(3, event.Full))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = Open(path, event.MustLayout(2, event.Full))
	assert.ErrorIs(t, err, ErrLayoutMismatch)

	_, err = Open(path, event.MustLayout(3, event.Lean))
	assert.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestFilePort_InvalidHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.dat")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an event file, no sir"), 0644))

	_, err := Open(path, event.MustLayout(1, event.Lean))
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestFilePort_ZeroLayout(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.dat"), event.Layout{})
	assert.ErrorIs(t, err, event.ErrInvalidDimensions)
}

func TestFilePort_LoadBeyondEnd(t *testing.T) {
	p, err := Open(filepath.Join(t.TempDir(), "events.dat"), event.MustLayout(1, event.Lean))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.SaveBlock(makeEvents(2, 0), 0))
	_, err = p.LoadBlock(nil, 1, 5)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFilePort_Closed(t *testing.T) {
	p, err := Open(filepath.Join(t.TempDir(), "events.dat"), event.MustLayout(1, event.Lean))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.SaveBlock(makeEvents(1, 0), 0), ErrClosed)
	_, err = p.LoadBlock(nil, 0, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Sync(), ErrClosed)
}

func TestFilePort_WriteFailurePropagates(t *testing.T) {
	layout := event.MustLayout(1, event.Lean)
	ffs := fs.NewFaultyFS(nil)
	// Header fits, the first block does not.
	ffs.AddRule("events.dat", fs.Fault{FailAfterBytes: HeaderSize})

	p, err := Open(filepath.Join(t.TempDir(), "events.dat"), layout, WithFileSystem(ffs))
	require.NoError(t, err)
	defer p.Close()

	err = p.SaveBlock(makeEvents(1, 0), 0)
	assert.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, uint64(0), p.NumRecords())
}

func TestFilePort_ReadFailurePropagates(t *testing.T) {
	layout := event.MustLayout(1, event.Lean)
	dir := t.TempDir()
	path := filepath.Join(dir, "events.dat")

	p, err := Open(path, layout)
	require.NoError(t, err)
	require.NoError(t, p.SaveBlock(makeEvents(3, 0), 0))
	require.NoError(t, p.Close())

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("events.dat", fs.Fault{FailAfterBytes: -1, FailOnRead: true})
	_, err = Open(path, layout, WithFileSystem(ffs))
	assert.ErrorIs(t, err, fs.ErrInjected)
}

func TestFilePort_RateLimited(t *testing.T) {
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})
	p, err := Open(filepath.Join(t.TempDir(), "events.dat"), event.MustLayout(1, event.Lean),
		WithResourceController(rc), WithContext(t.Context()))
	require.NoError(t, err)
	defer p.Close()

	in := makeEvents(100, 0)
	require.NoError(t, p.SaveBlock(in, 0))
	got, err := p.LoadBlock(nil, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestFilePort_ConcurrentRegions(t *testing.T) {
	layout := event.MustLayout(2, event.Lean)
	p, err := Open(filepath.Join(t.TempDir(), "events.dat"), layout)
	require.NoError(t, err)
	defer p.Close()

	const workers, per = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			block := makeEvents(per, float64(w*1000))
			pos := uint64(w * per)
			for i := 0; i < 10; i++ {
				assert.NoError(t, p.SaveBlock(block, pos))
				got, err := p.LoadBlock(nil, pos, per)
				if assert.NoError(t, err) {
					assert.Equal(t, block, got)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, uint64(workers*per), p.NumRecords())
}
