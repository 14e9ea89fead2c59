// Package table reads and writes compressed dumps of box contents.
//
// A table stream starts with a header naming the event layout and the
// block compression, followed by one section per box: its id, depth, mask
// flag and extents, and then its events as flat table rows (see
// event.Layout.ToTable) split into LZ4, ZSTD or uncompressed blocks.
//
//	w, err := table.NewWriter(f, layout, table.CompressionZSTD)
//	...
//	err = w.WriteBox(meta, data)
//	...
//	err = w.Flush()
package table
