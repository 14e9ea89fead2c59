package box

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a precondition of an operation is
	// violated.
	ErrInvalidArgument = errors.New("box: invalid argument")

	// ErrNoFilePort is returned by file operations without an open port.
	ErrNoFilePort = fmt.Errorf("%w: no open file port", ErrInvalidArgument)
)

// ErrDimensionMismatch is returned when a value does not have one entry per
// dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("box: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Unwrap makes dimension mismatches match ErrInvalidArgument.
func (e *ErrDimensionMismatch) Unwrap() error { return ErrInvalidArgument }
