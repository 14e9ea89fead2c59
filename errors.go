package mdstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/mdstore/box"
	"github.com/hupe1980/mdstore/event"
	"github.com/hupe1980/mdstore/fileio"
	"github.com/hupe1980/mdstore/manifest"
	"github.com/hupe1980/mdstore/table"
)

var (
	// ErrInvalidArgument is returned for bad configuration and arguments.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrClosed is returned when the store is used after Close.
	ErrClosed = errors.New("store is closed")

	// ErrNotFound is returned for unknown boxes and missing manifests.
	ErrNotFound = errors.New("not found")

	// ErrNotFileBacked is returned by operations that need a backing file.
	ErrNotFileBacked = fmt.Errorf("%w: store is not file-backed", ErrInvalidArgument)
)

// ErrLayoutMismatch indicates that persisted data was written with a
// different event layout than the store's.
type ErrLayoutMismatch struct {
	Expected event.Layout
	Actual   event.Layout
	cause    error
}

func (e *ErrLayoutMismatch) Error() string {
	return fmt.Sprintf("layout mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e *ErrLayoutMismatch) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrInvalidArgument}
	}
	return []error{ErrInvalidArgument, e.cause}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrClosed) {
		return err
	}

	// Not found unification.
	if errors.Is(err, manifest.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Argument normalization.
	var dm *box.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	var cm *event.ErrColumnMismatch
	if errors.As(err, &cm) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if errors.Is(err, box.ErrInvalidArgument) ||
		errors.Is(err, event.ErrInvalidDimensions) ||
		errors.Is(err, table.ErrInvalidHeader) ||
		errors.Is(err, table.ErrShortTable) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	if errors.Is(err, fileio.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}
