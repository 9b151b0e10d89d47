// Package api
// Author: momentics@gmail.com
//
// Opt-in conversion of error results into panics.

package api

import (
	"errors"
)

// OutOfMemoryError is the panic value Must uses for ErrNotEnoughMemory. It
// satisfies runtime.Error, so recover handlers treating runtime errors as
// fatal also catch allocation failures.
type OutOfMemoryError struct {
	Err error
}

func (e *OutOfMemoryError) Error() string { return "allio: out of memory: " + e.Err.Error() }
func (e *OutOfMemoryError) Unwrap() error { return e.Err }
func (*OutOfMemoryError) RuntimeError()   {}

// PanicError is the panic value Must uses for every other error.
type PanicError struct {
	Err error
}

func (e *PanicError) Error() string { return "allio: " + e.Err.Error() }
func (e *PanicError) Unwrap() error { return e.Err }

// Must returns v, panicking if err is non-nil.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(panicValue(err))
	}
	return v
}

// Check panics if err is non-nil, see Must.
func Check(err error) {
	if err != nil {
		panic(panicValue(err))
	}
}

func panicValue(err error) error {
	if errors.Is(err, ErrNotEnoughMemory) {
		return &OutOfMemoryError{Err: err}
	}
	return &PanicError{Err: err}
}
