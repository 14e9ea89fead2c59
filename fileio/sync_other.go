//go:build !linux

package fileio

import "github.com/hupe1980/mdstore/internal/fs"

func syncData(f fs.File) error {
	return f.Sync()
}
