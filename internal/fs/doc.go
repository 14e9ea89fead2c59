// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with positional read/write and sync
//   - [FileSystem]: open, remove, rename, stat and mkdir
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// # Usage
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("events.dat", fs.Fault{FailAfterBytes: 1024})
//	// inject ffs into the file port under test
//
// Filesystem calls take no context.Context. Local positional reads and
// writes are not interruptible at the syscall level.
package fs
