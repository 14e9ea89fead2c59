package event

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AppendRecords encodes events and appends them to dst.
func (l Layout) AppendRecords(dst []byte, events []Event) []byte {
	rs := l.RecordSize()
	off := len(dst)
	dst = grow(dst, rs*len(events))
	for i := range events {
		l.PutRecord(dst[off:off+rs], &events[i])
		off += rs
	}
	return dst
}

// PutRecord encodes e into b, which must be at least RecordSize bytes.
func (l Layout) PutRecord(b []byte, e *Event) {
	binary.LittleEndian.PutUint64(b[0:], math.Float64bits(e.Signal))
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(e.ErrorSquared))
	off := 16
	if l.kind == Full {
		binary.LittleEndian.PutUint16(b[16:], e.RunIndex)
		binary.LittleEndian.PutUint16(b[18:], e.GoniometerIndex)
		binary.LittleEndian.PutUint32(b[20:], uint32(e.DetectorID))
		off = 24
	}
	for d := 0; d < l.nd; d++ {
		binary.LittleEndian.PutUint32(b[off:], math.Float32bits(e.Center[d]))
		off += 4
	}
}

// Record decodes one event from b, which must be at least RecordSize bytes.
func (l Layout) Record(b []byte) Event {
	var e Event
	e.Signal = math.Float64frombits(binary.LittleEndian.Uint64(b[0:]))
	e.ErrorSquared = math.Float64frombits(binary.LittleEndian.Uint64(b[8:]))
	off := 16
	if l.kind == Full {
		e.RunIndex = binary.LittleEndian.Uint16(b[16:])
		e.GoniometerIndex = binary.LittleEndian.Uint16(b[18:])
		e.DetectorID = int32(binary.LittleEndian.Uint32(b[20:]))
		off = 24
	}
	for d := 0; d < l.nd; d++ {
		e.Center[d] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
		off += 4
	}
	return e
}

// DecodeRecords decodes all records in src and appends them to dst.
func (l Layout) DecodeRecords(src []byte, dst []Event) ([]Event, error) {
	rs := l.RecordSize()
	if len(src)%rs != 0 {
		return dst, fmt.Errorf("event: %d bytes is not a multiple of record size %d", len(src), rs)
	}
	n := len(src) / rs
	dst = growEvents(dst, n)
	for off := 0; off < len(src); off += rs {
		dst = append(dst, l.Record(src[off:off+rs]))
	}
	return dst, nil
}

func grow(b []byte, n int) []byte {
	if cap(b)-len(b) < n {
		nb := make([]byte, len(b), len(b)+n)
		copy(nb, b)
		b = nb
	}
	return b[:len(b)+n]
}

func growEvents(es []Event, n int) []Event {
	if cap(es)-len(es) < n {
		ne := make([]Event, len(es), len(es)+n)
		copy(ne, es)
		es = ne
	}
	return es
}
