//go:build linux

package fileio

import (
	"github.com/hupe1980/mdstore/internal/fs"
	"golang.org/x/sys/unix"
)

// syncData flushes file data without forcing a metadata update when the
// underlying descriptor is available.
func syncData(f fs.File) error {
	if fd, ok := f.(interface{ Fd() uintptr }); ok {
		return unix.Fdatasync(int(fd.Fd()))
	}
	return f.Sync()
}
