// Package box implements the leaf box of the out-of-core event store.
//
// A Box owns a contiguous run of events for one region of n-dimensional
// space together with cached signal and error aggregates. Once file-backed,
// a Box carries a Handle that the disk buffer uses to write the events to
// the shared backing file and to drop them from memory; the Box reloads
// them transparently the next time they are requested.
//
// # Pinning
//
// Events and ConstEvents pin the box: its handle reports busy until
// ReleaseEvents is called, and the disk buffer never evicts a busy box.
//
//	events, err := b.ConstEvents()
//	if err != nil {
//		return err
//	}
//	defer b.ReleaseEvents()
//
// # Locking
//
// Mutating entry points take the box mutex; the ...Unsafe variants do not
// and are meant for single-threaded bulk ingestion. Locks are always taken
// in the order buffer, handle, box, port. Box code never calls into the
// buffer while holding its handle or box lock.
package box
