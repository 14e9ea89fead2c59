// Package diskbuffer implements the Disk Buffer: the cache manager that
// decides which file-backed boxes stay resident in memory and when their
// data is written to the shared backing file.
//
// # Write-Behind Queue
//
// Owners register their handles with [Buffer.ToWrite] whenever their data is
// pinned or modified. The buffer keeps the handles in LRU order and tracks
// the number of events they hold in memory. When that number exceeds the
// configured write buffer size, the least recently used handles are written
// (if dirty) and dropped from memory:
//
//	┌──────── MRU ─────────────────────────── LRU ────────┐
//	│  h7 (busy)  │  h3  │  h9 (dirty)  │  h1 (busy)  │ h4 │ ──► write + clear
//	└─────────────────────────────────────────────────────┘
//
// Busy handles are never written or cleared; they stay queued until a
// later pass finds them released.
//
// # File Space
//
// The buffer owns the allocation of record ranges in the backing file. A
// handle whose size changed is relocated: its old block is returned to the
// free-space map (merged with adjacent free blocks) and a new block is taken
// best-fit from the map, or appended at the end of the file.
//
// # Thread Safety
//
// All Buffer methods are safe for concurrent use. The buffer locks a
// handle (sync.Locker) for the whole check-busy, write, clear sequence, so
// owners that pin under the same lock never observe their data cleared.
package diskbuffer
