package gmap

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for out of range zoom levels and map types.
	// The map state is left untouched.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDisposed is returned by every operation on a disposed map.
	ErrDisposed = errors.New("map is disposed")
)

// DisposedError names the operation that was attempted on a disposed map.
type DisposedError struct {
	Op string
}

func (e *DisposedError) Error() string {
	return fmt.Sprintf("gmap: %s: %v", e.Op, ErrDisposed)
}

func (e *DisposedError) Unwrap() error {
	return ErrDisposed
}
