// File: api/operation.go
// Author: momentics <momentics@gmail.com>
//
// In-flight operation state shared by the handle layer and the multiplexers.

package api

import (
	"go.uber.org/atomic"
)

// OperationID identifies an operation kind (read, write, accept, ...).
type OperationID uint8

// OperationState is the lifecycle stage of an Operation.
type OperationState uint32

const (
	StateUnsubmitted OperationState = iota
	StateConstructed
	StateSubmitted
	StateCompleted
)

func (s OperationState) String() string {
	switch s {
	case StateUnsubmitted:
		return "unsubmitted"
	case StateConstructed:
		return "constructed"
	case StateSubmitted:
		return "submitted"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Completion is the raw, backend specific completion status handed to an
// OperationDescriptor's Notify function.
type Completion struct {
	// Result is the kernel result, e.g. an io_uring cqe.res or a byte count.
	Result int64
	// Flags carries backend specific bits, e.g. cqe.flags or poll events.
	Flags uint32
	Err   error
}

// Operation holds one in-flight asynchronous operation. It is owned by the
// initiator, and referenced, never owned, by the multiplexer while in flight.
// An Operation must not be moved or reused before it has completed.
type Operation struct {
	// Descriptor is the relation entry the operation was constructed from.
	Descriptor *OperationDescriptor
	// Native is the target native handle.
	Native NativeHandle
	// Connector is the per (multiplexer, handle) registration state.
	Connector any
	// Args points at the operation's parameter struct.
	Args any
	// Deadline bounds the operation. Zero is Never.
	Deadline Deadline
	// Tag is free for the initiator, e.g. a sequence number.
	Tag uint64
	// Notify is invoked exactly once, from the polling goroutine, after the
	// result fields are set.
	Notify func(op *Operation)

	// N is the byte count or other scalar result.
	N int
	// Value holds a structured result, e.g. an accepted handle.
	Value any
	// Err is the completion error, nil on success.
	Err error

	// Backend holds multiplexer specific bookkeeping.
	Backend any

	state     atomic.Uint32
	cancelled atomic.Bool
	finished  atomic.Bool
}

// State returns the current lifecycle stage.
func (op *Operation) State() OperationState { return OperationState(op.state.Load()) }

// Done reports whether the operation has completed.
func (op *Operation) Done() bool { return op.State() == StateCompleted }

// SetState moves the operation to s. Used by multiplexer implementations.
func (op *Operation) SetState(s OperationState) { op.state.Store(uint32(s)) }

// RequestCancel records a cancellation request, reporting false if the
// operation was already completed or already cancelled.
func (op *Operation) RequestCancel() bool {
	if op.Done() {
		return false
	}
	return op.cancelled.CAS(false, true)
}

// CancelRequested reports whether RequestCancel succeeded earlier.
func (op *Operation) CancelRequested() bool { return op.cancelled.Load() }

// Complete stores the result and invokes Notify. It reports false, without
// side effects, if the operation had already completed.
func (op *Operation) Complete(n int, value any, err error) bool {
	if !op.finished.CAS(false, true) {
		return false
	}
	op.N, op.Value, op.Err = n, value, err
	op.state.Store(uint32(StateCompleted))
	if op.Notify != nil {
		op.Notify(op)
	}
	return true
}

// Reset prepares a completed or never started operation for reuse.
func (op *Operation) Reset() {
	*op = Operation{}
}
