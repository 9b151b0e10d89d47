//go:build windows
// +build windows

// File: multiplexer/iocp/multiplexer_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion port multiplexer: overlapped transfers are issued on Start and
// completed from Poll when their packet is dequeued.

package iocp

import (
	"syscall"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/windows"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
	"github.com/momentics/allio/internal/concurrency"
	"github.com/momentics/allio/object"
)

var errWaitTimeout = syscall.Errno(windows.WAIT_TIMEOUT)

// connector records a handle associated with the port.
type connector struct {
	handle windows.Handle
}

type result struct {
	n   int
	err error
}

// entry is the per-operation state. ov is handed to the kernel and must not
// move while the transfer is pending; entries are heap allocated and kept
// reachable through the pending map.
type entry struct {
	ov      windows.Overlapped
	op      *api.Operation
	conn    *connector
	step    api.StepDeadline
	heapIdx int
	write   bool
	pending bool
	expired bool
	queued  bool
	result  result
}

func (e *entry) Deadline() api.Deadline { return e.step.Deadline() }
func (e *entry) SetTimerIndex(i int)    { e.heapIdx = i }
func (e *entry) TimerIndex() int        { return e.heapIdx }

// Multiplexer is a completion port backed api.Multiplexer. It must be
// driven by one goroutine at a time.
type Multiplexer struct {
	port     windows.Handle
	hooks    *api.Hooks
	counters *control.Counters
	maxOps   int

	pending  map[*windows.Overlapped]*entry
	timers   concurrency.TimerHeap
	ready    []*entry
	inFlight int
	closed   bool
}

var _ api.Multiplexer = (*Multiplexer)(nil)

// New creates a completion port.
func New(opts Options) (*Multiplexer, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 1)
	if err != nil {
		return nil, api.NewSystemError("CreateIoCompletionPort", err)
	}
	m := &Multiplexer{
		port:     port,
		hooks:    opts.Hooks.WithDefaults(),
		counters: opts.Counters,
		maxOps:   opts.MaxOperations,
		pending:  make(map[*windows.Overlapped]*entry),
	}
	m.log().Info().Int("max_operations", opts.MaxOperations).Log("iocp multiplexer ready")
	return m, nil
}

// Available reports whether completion ports can be used.
func Available() bool { return true }

func (m *Multiplexer) log() *logiface.Logger[logiface.Event] { return m.hooks.Log() }

func (m *Multiplexer) TypeID() api.TypeID { return TypeID }

func (m *Multiplexer) Hooks() *api.Hooks { return m.hooks }

func (m *Multiplexer) FindHandleRelation(handleType api.TypeID) (*api.Relation, error) {
	return Relations.Find(handleType)
}

// Stats reports the operation queues.
func (m *Multiplexer) Stats() Stats {
	return Stats{
		InFlight: m.inFlight,
		Pending:  len(m.pending),
		Timers:   m.timers.Len(),
		Ready:    len(m.ready),
	}
}

// associate binds a file handle to the port. The association lasts until
// the handle is closed.
func (m *Multiplexer) associate(h api.NativeHandle) (api.Connector, error) {
	if m.closed {
		return nil, api.ErrInvalidArgument
	}
	fh := windows.Handle(h.Handle)
	if _, err := windows.CreateIoCompletionPort(fh, m.port, 0, 0); err != nil {
		return nil, api.NewSystemError("CreateIoCompletionPort", err)
	}
	m.log().Trace().Uint64("handle", uint64(h.Handle)).Log("iocp associated")
	return &connector{handle: fh}, nil
}

// dissociate cancels the transfers still pending on the handle; they
// complete as cancelled on a later Poll.
func (m *Multiplexer) dissociate(_ api.NativeHandle, conn api.Connector) error {
	c, ok := conn.(*connector)
	if !ok || c == nil {
		return nil
	}
	for _, e := range m.pending {
		if e.conn == c {
			e.op.RequestCancel()
			m.cancelIO(e)
		}
	}
	return nil
}

func (m *Multiplexer) Construct(desc *api.OperationDescriptor, op *api.Operation) error {
	if desc == nil || desc.Synchronous || desc.Start == nil {
		return api.ErrUnsupportedAsynchronousOperation
	}
	if op.State() == api.StateSubmitted {
		return api.ErrInvalidArgument
	}
	op.Descriptor = desc
	if desc.Construct != nil {
		if err := desc.Construct(m, op); err != nil {
			return err
		}
	}
	op.SetState(api.StateConstructed)
	return nil
}

func (m *Multiplexer) Start(op *api.Operation) error {
	if m.closed || op.State() != api.StateConstructed {
		return api.ErrInvalidArgument
	}
	if m.maxOps > 0 && m.inFlight >= m.maxOps {
		m.counters.OnReject()
		m.log().Debug().Int("capacity", m.maxOps).Log("iocp operation capacity exhausted")
		return api.ErrTooManyConcurrentAsyncOperations
	}
	op.SetState(api.StateSubmitted)
	m.inFlight++
	if err := op.Descriptor.Start(m, op); err != nil {
		m.inFlight--
		op.SetState(api.StateConstructed)
		return err
	}
	m.counters.OnStart()
	return nil
}

func (m *Multiplexer) ConstructAndStart(desc *api.OperationDescriptor, op *api.Operation) error {
	if err := m.Construct(desc, op); err != nil {
		return err
	}
	return m.Start(op)
}

// Cancel aborts the pending transfer. Its packet still arrives and
// completes op, with ErrAsyncOperationCancelled unless it finished first.
func (m *Multiplexer) Cancel(op *api.Operation) error {
	e, ok := op.Backend.(*entry)
	if !ok || op.State() != api.StateSubmitted {
		return api.ErrAsyncOperationNotInProgress
	}
	if !op.RequestCancel() {
		if op.Done() {
			return api.ErrAsyncOperationNotInProgress
		}
		return nil
	}
	if e.pending {
		m.cancelIO(e)
	}
	return nil
}

func (m *Multiplexer) cancelIO(e *entry) {
	err := windows.CancelIoEx(e.conn.handle, &e.ov)
	if err != nil && err != windows.ERROR_NOT_FOUND {
		m.hooks.ReportUnrecoverable(api.NewSystemError("CancelIoEx", err))
	}
}

// Submit is a no-op: transfers are issued as they start.
func (m *Multiplexer) Submit(api.Deadline) error { return nil }

// Poll delivers completed operations, waiting up to d for a packet or an
// operation deadline when none are queued. With nothing in flight and no
// bound it returns ErrAsyncOperationNotInProgress rather than block.
func (m *Multiplexer) Poll(d api.Deadline) error {
	if m.deliver() > 0 {
		return nil
	}
	step := api.NewStepDeadline(d)
	for {
		cur, err := step.Step()
		if err != nil {
			return err
		}
		if cur.IsNever() && m.inFlight == 0 {
			return api.ErrAsyncOperationNotInProgress
		}
		now := time.Now()
		timeout := uint32(windows.INFINITE)
		if wake := cur.Earliest(m.timers.Earliest(), now); !wake.IsNever() {
			timeout = uint32(wake.Milliseconds(now))
		}
		if err := m.dequeue(timeout); err != nil {
			return err
		}
		m.expire(time.Now())
		if m.deliver() > 0 || cur.IsInstant() {
			return nil
		}
	}
}

func (m *Multiplexer) SubmitAndPoll(d api.Deadline) error {
	if err := m.Submit(d); err != nil {
		return err
	}
	return m.Poll(d)
}

// Close aborts every pending transfer, waits for the aborted packets and
// closes the port.
func (m *Multiplexer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	for _, e := range m.pending {
		e.op.RequestCancel()
		m.cancelIO(e)
	}
	for len(m.pending) > 0 {
		if err := m.dequeue(windows.INFINITE); err != nil {
			m.hooks.ReportUnrecoverable(err)
			break
		}
	}
	m.deliver()
	if err := windows.CloseHandle(m.port); err != nil {
		return api.NewSystemError("CloseHandle", err)
	}
	m.log().Info().Log("iocp multiplexer closed")
	return nil
}

// issue tracks a transfer whose packet will arrive on the port.
func (m *Multiplexer) issue(e *entry) {
	e.pending = true
	m.pending[&e.ov] = e
	cur, err := e.step.Step()
	switch {
	case err != nil || cur.IsInstant():
		e.expired = true
		m.cancelIO(e)
	case !cur.IsNever():
		m.timers.Add(e)
	}
}

// dequeue waits up to timeout milliseconds for the first packet, then
// drains whatever else is queued.
func (m *Multiplexer) dequeue(timeout uint32) error {
	for {
		var (
			qty uint32
			key uintptr
			ov  *windows.Overlapped
		)
		err := windows.GetQueuedCompletionStatus(m.port, &qty, &key, &ov, timeout)
		if ov == nil {
			if err == nil || err == errWaitTimeout {
				return nil
			}
			return api.NewSystemError("GetQueuedCompletionStatus", err)
		}
		if e, ok := m.pending[ov]; ok {
			delete(m.pending, ov)
			m.arrived(e, qty, err)
		}
		timeout = 0
	}
}

func (m *Multiplexer) arrived(e *entry, qty uint32, err error) {
	e.pending = false
	m.timers.Remove(e)
	switch err {
	case nil, windows.ERROR_HANDLE_EOF:
		m.complete(e, result{n: int(qty)})
	case windows.ERROR_OPERATION_ABORTED:
		if e.expired && !e.op.CancelRequested() {
			m.complete(e, result{err: api.ErrAsyncOperationTimedOut})
		} else {
			m.complete(e, result{err: api.ErrAsyncOperationCancelled})
		}
	default:
		m.complete(e, result{err: api.NewSystemError(object.OperationName(e.op.Descriptor.Operation), err)})
	}
}

// expire aborts pending transfers whose deadline passed.
func (m *Multiplexer) expire(now time.Time) {
	for _, t := range m.timers.Expired(now) {
		e := t.(*entry)
		e.expired = true
		m.cancelIO(e)
	}
}

func (m *Multiplexer) complete(e *entry, r result) {
	e.result, e.queued = r, true
	m.ready = append(m.ready, e)
}

// deliver notifies queued operations in completion order.
func (m *Multiplexer) deliver() int {
	n := 0
	for len(m.ready) > 0 {
		batch := m.ready
		m.ready = nil
		for _, e := range batch {
			m.inFlight--
			r := e.result
			e.op.Descriptor.Notify(m, e.op, api.Completion{Result: int64(r.n), Err: r.err})
			n++
		}
	}
	return n
}

func (m *Multiplexer) finish(e *entry) {
	r := e.result
	m.counters.OnComplete(r.err)
	e.op.Complete(r.n, nil, r.err)
}
