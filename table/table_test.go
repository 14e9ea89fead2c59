package table

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/hupe1980/mdstore/event"
	"github.com/hupe1980/mdstore/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, got)

	_, err = ParseCompression("gzip")
	assert.Error(t, err)
}

func TestCompressBlock(t *testing.T) {
	data := bytes.Repeat([]byte("event event event "), 1000)

	for _, c := range []Compression{CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			block, err := compressBlock(nil, data, c)
			require.NoError(t, err)
			assert.Less(t, len(block), len(data)/2)

			out, err := decompressBlock(nil, block[blockHeaderSize:], uint32(len(data)), true, c)
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
}

func TestCompressBlock_IncompressibleIsStoredRaw(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i * 17 % 256)
	}

	block, err := compressBlock(nil, data, CompressionLZ4)
	require.NoError(t, err)
	assert.Equal(t, len(data)+blockHeaderSize, len(block))
	assert.Equal(t, data, block[blockHeaderSize:])
}

func writeBoxes(t *testing.T, layout event.Layout, c Compression, boxes map[uint64][]event.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, layout, c)
	require.NoError(t, err)

	for id := uint64(1); id <= uint64(len(boxes)); id++ {
		data, _, _, _ := layout.ToTable(boxes[id], nil)
		meta := BoxMeta{ID: id, Depth: uint32(id), Masked: id == 2, Extents: make([][2]float32, layout.NumDims())}
		for d := range meta.Extents {
			meta.Extents[d] = [2]float32{0, 10}
		}
		require.NoError(t, w.WriteBox(meta, data))
	}
	require.NoError(t, w.Flush())
	assert.Equal(t, len(boxes), w.Boxes())
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	rng := testutil.NewRNG(9)
	layout := event.MustLayout(3, event.Full)
	boxes := map[uint64][]event.Event{
		1: rng.FullEvents(20000, []float32{0, 0, 0}, []float32{10, 10, 10}, 4), // spans several blocks
		2: nil,
		3: rng.FullEvents(7, []float32{0, 0, 0}, []float32{1, 1, 1}, 1),
	}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			stream := writeBoxes(t, layout, c, boxes)

			r, err := NewReader(bytes.NewReader(stream))
			require.NoError(t, err)
			assert.Equal(t, layout, r.Layout())
			assert.Equal(t, c, r.Compression())

			for id := uint64(1); id <= 3; id++ {
				meta, data, err := r.Next(nil)
				require.NoError(t, err)
				assert.Equal(t, id, meta.ID)
				assert.Equal(t, uint32(id), meta.Depth)
				assert.Equal(t, id == 2, meta.Masked)
				assert.Equal(t, [2]float32{0, 10}, meta.Extents[2])

				events, err := layout.FromTable(data, layout.Columns(), nil)
				require.NoError(t, err)
				if len(boxes[id]) == 0 {
					assert.Empty(t, events)
				} else {
					assert.Equal(t, boxes[id], events)
				}
			}

			_, _, err = r.Next(nil)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestReader_Truncated(t *testing.T) {
	layout := event.MustLayout(1, event.Lean)
	stream := writeBoxes(t, layout, CompressionLZ4, map[uint64][]event.Event{
		1: testutil.NewRNG(1).UniformEvents(100, []float32{0}, []float32{1}),
	})

	r, err := NewReader(bytes.NewReader(stream[:len(stream)-5]))
	require.NoError(t, err)
	_, _, err = r.Next(nil)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestNewReader_InvalidHeader(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("nope")))
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = NewReader(bytes.NewReader([]byte("MDTB\x01\x09\x00\x01")))
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = NewReader(bytes.NewReader([]byte("MDTB\x01\x00\x00\x00")))
	assert.True(t, errors.Is(err, ErrInvalidHeader))
}

func TestWriter_Validation(t *testing.T) {
	layout := event.MustLayout(2, event.Lean)
	w, err := NewWriter(io.Discard, layout, CompressionNone)
	require.NoError(t, err)

	err = w.WriteBox(BoxMeta{ID: 1, Extents: make([][2]float32, 1)}, nil)
	assert.Error(t, err)

	err = w.WriteBox(BoxMeta{ID: 1, Extents: make([][2]float32, 2)}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortTable)

	_, err = NewWriter(io.Discard, layout, Compression(7))
	assert.Error(t, err)
}
