// Package api
// Author: momentics <momentics@gmail.com>
//
// Error domain shared by every handle, operation and multiplexer.

package api

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is the library error domain. Values are comparable and match with
// errors.Is, including through *SystemError wrappers of equivalent platform
// codes.
type Error int

const (
	ErrInvalidArgument Error = iota + 1
	ErrNotEnoughMemory
	ErrNoBufferSpace
	ErrFilenameTooLong
	ErrAsyncOperationCancelled
	ErrAsyncOperationNotInProgress
	ErrAsyncOperationTimedOut
	ErrUnsupportedOperation
	ErrUnsupportedMultiplexerHandleRelation
	ErrUnsupportedAsynchronousOperation
	ErrTooManyConcurrentAsyncOperations
	ErrHandleIsNull
	ErrHandleIsNotNull
	ErrHandleIsNotMultiplexable
	ErrProcessArgumentsTooLong
	ErrProcessIsCurrentProcess
	ErrInvalidPath
	ErrInvalidCurrentDirectory
	ErrDirectoryStreamAtEnd
)

var errorMessages = [...]string{
	ErrInvalidArgument:                      "invalid argument",
	ErrNotEnoughMemory:                      "not enough memory",
	ErrNoBufferSpace:                        "no buffer space",
	ErrFilenameTooLong:                      "filename too long",
	ErrAsyncOperationCancelled:              "async operation cancelled",
	ErrAsyncOperationNotInProgress:          "async operation not in progress",
	ErrAsyncOperationTimedOut:               "async operation timed out",
	ErrUnsupportedOperation:                 "unsupported operation",
	ErrUnsupportedMultiplexerHandleRelation: "unsupported multiplexer handle relation",
	ErrUnsupportedAsynchronousOperation:     "unsupported asynchronous operation",
	ErrTooManyConcurrentAsyncOperations:     "too many concurrent async operations",
	ErrHandleIsNull:                         "handle is null",
	ErrHandleIsNotNull:                      "handle is not null",
	ErrHandleIsNotMultiplexable:             "handle is not multiplexable",
	ErrProcessArgumentsTooLong:              "process arguments too long",
	ErrProcessIsCurrentProcess:              "process is current process",
	ErrInvalidPath:                          "invalid path",
	ErrInvalidCurrentDirectory:              "invalid current directory",
	ErrDirectoryStreamAtEnd:                 "directory stream at end",
}

// Error implements the error interface.
func (e Error) Error() string {
	if e > 0 && int(e) < len(errorMessages) {
		return "allio: " + errorMessages[e]
	}
	return fmt.Sprintf("allio: unknown error %d", int(e))
}

// SystemError wraps a platform error code (errno, NTSTATUS or Win32 error)
// with the operation that produced it.
type SystemError struct {
	Op  string
	Err error
}

// NewSystemError returns nil for a nil err, otherwise a *SystemError.
func NewSystemError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *SystemError
	if errors.As(err, &se) {
		return err
	}
	return &SystemError{Op: op, Err: err}
}

func (e *SystemError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *SystemError) Unwrap() error { return e.Err }

// Is maps platform codes onto the library domain where the meaning is the same.
func (e *SystemError) Is(target error) bool {
	t, ok := target.(Error)
	if !ok {
		return false
	}
	var errno syscall.Errno
	if !errors.As(e.Err, &errno) {
		return false
	}
	switch t {
	case ErrNotEnoughMemory:
		return errno == syscall.ENOMEM
	case ErrNoBufferSpace:
		return errno == syscall.ENOBUFS
	case ErrFilenameTooLong:
		return errno == syscall.ENAMETOOLONG
	case ErrInvalidArgument:
		return errno == syscall.EINVAL
	case ErrAsyncOperationCancelled:
		return errno == syscall.ECANCELED
	case ErrAsyncOperationTimedOut:
		return errno == syscall.ETIMEDOUT || errno == errnoETIME
	}
	return false
}

// RebindError is returned by a failed rebind. Unbound reports that the old
// binding had already been released, leaving a valid but unbound resource.
type RebindError struct {
	Err     error
	Unbound bool
}

func (e *RebindError) Error() string {
	if e.Unbound {
		return "allio: rebind failed, handle left unbound: " + e.Err.Error()
	}
	return "allio: rebind failed: " + e.Err.Error()
}

func (e *RebindError) Unwrap() error { return e.Err }
