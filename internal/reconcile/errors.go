package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for an empty environment name or
	// destination path. Nothing has been touched on disk.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned when the destination exists but is not a
	// directory. Nothing has been touched on disk.
	ErrInvalidState = errors.New("invalid state")

	// ErrIO is returned when a file cannot be read, written, copied or
	// deleted, or the source files cannot be prepared. Files written before
	// the failure stay written.
	ErrIO = errors.New("i/o error")
)

func ioError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}
