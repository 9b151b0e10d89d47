// File: api/multiplexer.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract contract every multiplexer backend (io_uring, epoll,
// IOCP) and decorator must satisfy, plus the handle relation types used to
// dispatch operations to them.

package api

// Multiplexer drives one kernel asynchronous I/O facility for many
// concurrently in-flight operations. Unless documented otherwise by an
// implementation, a Multiplexer is not safe for concurrent use.
type Multiplexer interface {
	// TypeID identifies the implementation. Decorators report the TypeID of
	// the multiplexer they wrap.
	TypeID() TypeID

	// FindHandleRelation returns the relation for the given handle type, or
	// ErrUnsupportedMultiplexerHandleRelation.
	FindHandleRelation(handleType TypeID) (*Relation, error)

	// Construct prepares op for desc without submitting it.
	Construct(desc *OperationDescriptor, op *Operation) error

	// Start submits a constructed op. ErrTooManyConcurrentAsyncOperations
	// reports exhausted capacity and leaves op unsubmitted.
	Start(op *Operation) error

	// ConstructAndStart is Construct followed by Start.
	ConstructAndStart(desc *OperationDescriptor, op *Operation) error

	// Cancel requests cancellation of an in-flight op. The op still
	// completes, exactly once, through its Notify callback.
	Cancel(op *Operation) error

	// Submit pushes pending operations to the kernel.
	Submit(deadline Deadline) error

	// Poll waits up to deadline for completions, notifying them. A finite,
	// non-instant deadline that elapses without completions yields
	// ErrAsyncOperationTimedOut.
	Poll(deadline Deadline) error

	// SubmitAndPoll is Submit followed by Poll.
	SubmitAndPoll(deadline Deadline) error

	// Hooks returns the strategies the multiplexer was constructed with.
	Hooks() *Hooks

	// Close releases the kernel facility.
	Close() error
}

// Connector is per (multiplexer, handle) state created at registration and
// reused by every operation on that handle.
type Connector any

// OperationDescriptor is one entry of a relation's operation array.
type OperationDescriptor struct {
	Operation OperationID

	// Synchronous marks operations the multiplexer does not route through
	// its queues; the handle runs them directly.
	Synchronous bool

	// Construct initialises backend bookkeeping for op. May be nil.
	Construct func(m Multiplexer, op *Operation) error
	// Start issues op to the kernel.
	Start func(m Multiplexer, op *Operation) error
	// Notify decodes a kernel completion for op, completing it or re-arming it.
	Notify func(m Multiplexer, op *Operation, c Completion)
	// Cancel requests cancellation of op. May be nil.
	Cancel func(m Multiplexer, op *Operation) error
}

// Relation is the resolved binding describing how one multiplexer type
// dispatches operations for one handle type. The Operations slice is never
// reordered, so indices into it stay valid for the relation's lifetime.
type Relation struct {
	MultiplexerType TypeID
	HandleType      TypeID

	Register   func(m Multiplexer, h NativeHandle) (Connector, error)
	Deregister func(m Multiplexer, h NativeHandle, c Connector) error

	Operations []OperationDescriptor
}

// Find returns the index of id in Operations.
func (r *Relation) Find(id OperationID) (int, bool) {
	if r == nil {
		return 0, false
	}
	for i := range r.Operations {
		if r.Operations[i].Operation == id {
			return i, true
		}
	}
	return 0, false
}

// RelationProvider resolves (multiplexer type, handle type) pairs.
type RelationProvider interface {
	FindMultiplexerHandleRelation(multiplexerType, handleType TypeID) (*Relation, error)
}

// HandleRegistrar is implemented by decorators, so relation callbacks
// always run against the multiplexer that created the relation.
type HandleRegistrar interface {
	RegisterHandle(rel *Relation, h NativeHandle) (Connector, error)
	DeregisterHandle(rel *Relation, h NativeHandle, c Connector) error
}

// RegisterHandle registers h with mux under rel.
func RegisterHandle(mux Multiplexer, rel *Relation, h NativeHandle) (Connector, error) {
	if r, ok := mux.(HandleRegistrar); ok {
		return r.RegisterHandle(rel, h)
	}
	if rel.Register == nil {
		return nil, nil
	}
	return rel.Register(mux, h)
}

// DeregisterHandle undoes RegisterHandle.
func DeregisterHandle(mux Multiplexer, rel *Relation, h NativeHandle, c Connector) error {
	if r, ok := mux.(HandleRegistrar); ok {
		return r.DeregisterHandle(rel, h, c)
	}
	if rel.Deregister == nil {
		return nil
	}
	return rel.Deregister(mux, h, c)
}
