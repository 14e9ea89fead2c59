// Package event defines the fixed-size event record stored in boxes and its
// on-disk encodings.
//
// An [Event] carries up to [MaxDimensions] coordinates plus signal and
// squared error. Full events additionally carry provenance (run index,
// goniometer index and detector id). The number of meaningful coordinates
// is fixed per session by a [Layout], validated once at construction.
//
// # Record Encoding
//
// Records are little-endian and fixed width, so a block of N events occupies
// exactly N*RecordSize bytes:
//
//	Lean: [signal f64][errorSquared f64][center f32 * nd]
//	Full: [signal f64][errorSquared f64][run u16][goniometer u16][detector i32][center f32 * nd]
//
// # Flat Table Format
//
// [Layout.ToTable] and [Layout.FromTable] convert between events and a
// row-major []float64 table with [Layout.Columns] columns per row. The table
// is the interchange format used by box import/export.
package event
