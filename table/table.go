package table

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/mdstore/event"
)

// Stream layout:
//
//	header  "MDTB" version:u8 compression:u8 kind:u8 nd:u8
//	box*    id:u64 depth:u32 masked:u8 extents:nd*(min:f32 max:f32) rows:u64 block*
//
// A box's blocks hold rows*columns little-endian float64 values of the
// flat event table, split into blocks of at most BlockSize bytes.
const (
	magic   = "MDTB"
	version = 1

	headerSize = 8

	// BlockSize is the uncompressed size of a full block.
	BlockSize = 256 * 1024
)

var (
	// ErrInvalidHeader is returned for streams that are not tables.
	ErrInvalidHeader = errors.New("table: invalid header")

	// ErrShortTable is returned when a box's data does not form whole rows.
	ErrShortTable = errors.New("table: data does not match row count")
)

// BoxMeta is the per-box information stored ahead of its rows.
type BoxMeta struct {
	ID      uint64
	Depth   uint32
	Masked  bool
	Extents [][2]float32
}

// Writer writes a table stream.
type Writer struct {
	w      *bufio.Writer
	layout event.Layout
	comp   Compression
	raw    []byte
	block  []byte
	boxes  int
	rows   uint64
}

// NewWriter writes the stream header and returns a writer for boxes of
// layout.
func NewWriter(w io.Writer, layout event.Layout, c Compression) (*Writer, error) {
	if c > CompressionZSTD {
		return nil, fmt.Errorf("table: unknown compression %d", c)
	}
	bw := bufio.NewWriter(w)
	hdr := []byte{magic[0], magic[1], magic[2], magic[3], version, byte(c), byte(layout.Kind()), byte(layout.NumDims())}
	if _, err := bw.Write(hdr); err != nil {
		return nil, err
	}
	return &Writer{w: bw, layout: layout, comp: c}, nil
}

// WriteBox writes one box. data is a flat table with layout.Columns()
// columns, as produced by event.Layout.ToTable.
func (w *Writer) WriteBox(meta BoxMeta, data []float64) error {
	nd, cols := w.layout.NumDims(), w.layout.Columns()
	if len(meta.Extents) != nd {
		return fmt.Errorf("table: box %d has %d extents, layout has %d dimensions", meta.ID, len(meta.Extents), nd)
	}
	if len(data)%cols != 0 {
		return fmt.Errorf("%w: %d values, %d columns", ErrShortTable, len(data), cols)
	}

	hdr := make([]byte, 0, 21+8*nd)
	hdr = binary.LittleEndian.AppendUint64(hdr, meta.ID)
	hdr = binary.LittleEndian.AppendUint32(hdr, meta.Depth)
	if meta.Masked {
		hdr = append(hdr, 1)
	} else {
		hdr = append(hdr, 0)
	}
	for _, e := range meta.Extents {
		hdr = binary.LittleEndian.AppendUint32(hdr, math.Float32bits(e[0]))
		hdr = binary.LittleEndian.AppendUint32(hdr, math.Float32bits(e[1]))
	}
	rows := uint64(len(data) / cols)
	hdr = binary.LittleEndian.AppendUint64(hdr, rows)
	if _, err := w.w.Write(hdr); err != nil {
		return err
	}

	const perBlock = BlockSize / 8
	for start := 0; start < len(data); start += perBlock {
		end := min(start+perBlock, len(data))
		w.raw = w.raw[:0]
		for _, v := range data[start:end] {
			w.raw = binary.LittleEndian.AppendUint64(w.raw, math.Float64bits(v))
		}
		var err error
		w.block, err = compressBlock(w.block[:0], w.raw, w.comp)
		if err != nil {
			return err
		}
		if _, err := w.w.Write(w.block); err != nil {
			return err
		}
	}

	w.boxes++
	w.rows += rows
	return nil
}

// Boxes returns the number of boxes written.
func (w *Writer) Boxes() int { return w.boxes }

// Rows returns the number of events written.
func (w *Writer) Rows() uint64 { return w.rows }

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error { return w.w.Flush() }

// Reader reads a table stream.
type Reader struct {
	r      *bufio.Reader
	layout event.Layout
	comp   Compression
	block  []byte
	raw    []byte
}

// NewReader reads and validates the stream header.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if string(hdr[:4]) != magic || hdr[4] != version {
		return nil, ErrInvalidHeader
	}
	comp := Compression(hdr[5])
	if comp > CompressionZSTD {
		return nil, fmt.Errorf("%w: compression %d", ErrInvalidHeader, comp)
	}
	layout, err := event.NewLayout(int(hdr[7]), event.Kind(hdr[6]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	return &Reader{r: br, layout: layout, comp: comp}, nil
}

// Layout returns the event layout of the stream.
func (r *Reader) Layout() event.Layout { return r.layout }

// Compression returns the block compression of the stream.
func (r *Reader) Compression() Compression { return r.comp }

// Next reads the next box and appends its rows to dst. It returns io.EOF
// after the last box.
func (r *Reader) Next(dst []float64) (BoxMeta, []float64, error) {
	nd, cols := r.layout.NumDims(), r.layout.Columns()

	hdr := make([]byte, 21+8*nd)
	if _, err := io.ReadFull(r.r, hdr[:1]); err != nil {
		return BoxMeta{}, dst, err
	}
	if _, err := io.ReadFull(r.r, hdr[1:]); err != nil {
		return BoxMeta{}, dst, unexpected(err)
	}

	meta := BoxMeta{
		ID:      binary.LittleEndian.Uint64(hdr[0:]),
		Depth:   binary.LittleEndian.Uint32(hdr[8:]),
		Masked:  hdr[12] == 1,
		Extents: make([][2]float32, nd),
	}
	off := 13
	for d := range meta.Extents {
		meta.Extents[d][0] = math.Float32frombits(binary.LittleEndian.Uint32(hdr[off:]))
		meta.Extents[d][1] = math.Float32frombits(binary.LittleEndian.Uint32(hdr[off+4:]))
		off += 8
	}
	rows := binary.LittleEndian.Uint64(hdr[off:])

	want := rows * uint64(cols) * 8
	for got := uint64(0); got < want; {
		raw, err := r.readBlock()
		if err != nil {
			return meta, dst, err
		}
		if len(raw) == 0 || len(raw)%8 != 0 || got+uint64(len(raw)) > want {
			return meta, dst, fmt.Errorf("%w: box %d", ErrShortTable, meta.ID)
		}
		for i := 0; i < len(raw); i += 8 {
			dst = append(dst, math.Float64frombits(binary.LittleEndian.Uint64(raw[i:])))
		}
		got += uint64(len(raw))
	}
	return meta, dst, nil
}

func (r *Reader) readBlock() ([]byte, error) {
	var hdr [blockHeaderSize]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		return nil, unexpected(err)
	}
	uncompressed := binary.LittleEndian.Uint32(hdr[0:])
	compressed := binary.LittleEndian.Uint32(hdr[4:])
	if uncompressed > BlockSize || compressed > uncompressed {
		return nil, fmt.Errorf("%w: block of %d/%d bytes", errCorruptBlock, compressed, uncompressed)
	}

	n := uncompressed
	if compressed != 0 {
		n = compressed
	}
	if uint32(cap(r.block)) < n {
		r.block = make([]byte, n)
	}
	r.block = r.block[:n]
	if _, err := io.ReadFull(r.r, r.block); err != nil {
		return nil, unexpected(err)
	}

	var err error
	r.raw, err = decompressBlock(r.raw, r.block, uncompressed, compressed != 0, r.comp)
	return r.raw, err
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
