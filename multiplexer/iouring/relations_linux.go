//go:build linux
// +build linux

// File: multiplexer/iouring/relations_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle relations: how each object type's operations map onto ring
// entries and how their completions decode.

package iouring

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/internal/platform"
	"github.com/momentics/allio/object"
	"github.com/momentics/allio/relation"
)

// Relations is the relation table of the io_uring multiplexer.
var Relations = relation.NewTable(TypeID,
	newRelation(object.File,
		synchronous(object.OpCreate),
		asynchronous(object.OpRead, startFileRead, notifyTransfer(unix.POLLIN)),
		asynchronous(object.OpWrite, startFileWrite, notifyTransfer(unix.POLLOUT)),
		asynchronous(object.OpReadAt, startReadAt, notifyTransfer(unix.POLLIN)),
		asynchronous(object.OpWriteAt, startWriteAt, notifyTransfer(unix.POLLOUT)),
	),
	newRelation(object.StreamSocket,
		synchronous(object.OpCreate),
		asynchronous(object.OpConnect, startConnect, notifyConnect),
		asynchronous(object.OpRead, startRecv, notifyTransfer(unix.POLLIN)),
		asynchronous(object.OpWrite, startSend, notifyTransfer(unix.POLLOUT)),
	),
	newRelation(object.ListenSocket,
		synchronous(object.OpCreate),
		asynchronous(object.OpAccept, startAccept, notifyAccept),
	),
	newRelation(object.Event,
		synchronous(object.OpCreate),
		synchronous(object.OpSignal),
		synchronous(object.OpReset),
		asynchronous(object.OpWait, startWaitReadable, notifyEventWait),
	),
	newRelation(object.Timer,
		synchronous(object.OpCreate),
		synchronous(object.OpSet),
		asynchronous(object.OpWait, startWaitReadable, notifyTimerWait),
	),
	newRelation(object.Process,
		synchronous(object.OpCreate),
		asynchronous(object.OpWait, startWaitReadable, notifyProcessWait),
	),
)

func newRelation(typ *object.Type, ops ...api.OperationDescriptor) *api.Relation {
	return &api.Relation{
		MultiplexerType: TypeID,
		HandleType:      typ.ID(),
		Register:        register,
		Deregister:      deregister,
		Operations:      append([]api.OperationDescriptor{synchronous(object.OpClose)}, ops...),
	}
}

func synchronous(id api.OperationID) api.OperationDescriptor {
	return api.OperationDescriptor{Operation: id, Synchronous: true}
}

func asynchronous(id api.OperationID,
	start func(api.Multiplexer, *api.Operation) error,
	notify func(api.Multiplexer, *api.Operation, api.Completion)) api.OperationDescriptor {
	return api.OperationDescriptor{Operation: id, Start: start, Notify: notify}
}

// io_uring needs no per-handle registration.
func register(api.Multiplexer, api.NativeHandle) (api.Connector, error) { return nil, nil }

func deregister(api.Multiplexer, api.NativeHandle, api.Connector) error { return nil }

func slotOf(mx api.Multiplexer, op *api.Operation) (*Multiplexer, *slot) {
	return mx.(*Multiplexer), op.Backend.(*slot)
}

func bufferAddr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func prepareRW(e *sqe, opcode uint8, fd int, b []byte, off uint64) {
	e.Opcode = opcode
	e.Fd = int32(fd)
	e.Addr = bufferAddr(b)
	e.Len = uint32(len(b))
	e.Off = off
}

// preparePoll arms a one-shot poll. poll32_events is read in host order on
// little-endian kernels, the only ones targeted.
func preparePoll(e *sqe, fd int, events uint32) {
	e.Opcode = opPollAdd
	e.Fd = int32(fd)
	e.OpFlags = events
}

func startFileRead(mx api.Multiplexer, op *api.Operation) error {
	m, s := slotOf(mx, op)
	p := op.Args.(*object.StreamParams)
	return m.push(s, func(e *sqe) { prepareRW(e, opRead, op.Native.Fd(), p.Buffer, currentPosition) })
}

func startFileWrite(mx api.Multiplexer, op *api.Operation) error {
	m, s := slotOf(mx, op)
	p := op.Args.(*object.StreamParams)
	return m.push(s, func(e *sqe) { prepareRW(e, opWrite, op.Native.Fd(), p.Buffer, currentPosition) })
}

func startReadAt(mx api.Multiplexer, op *api.Operation) error {
	m, s := slotOf(mx, op)
	p := op.Args.(*object.RandomAccessParams)
	if p.Offset < 0 {
		return api.ErrInvalidArgument
	}
	return m.push(s, func(e *sqe) { prepareRW(e, opRead, op.Native.Fd(), p.Buffer, uint64(p.Offset)) })
}

func startWriteAt(mx api.Multiplexer, op *api.Operation) error {
	m, s := slotOf(mx, op)
	p := op.Args.(*object.RandomAccessParams)
	if p.Offset < 0 {
		return api.ErrInvalidArgument
	}
	return m.push(s, func(e *sqe) { prepareRW(e, opWrite, op.Native.Fd(), p.Buffer, uint64(p.Offset)) })
}

func startRecv(mx api.Multiplexer, op *api.Operation) error {
	m, s := slotOf(mx, op)
	p := op.Args.(*object.StreamParams)
	return m.push(s, func(e *sqe) { prepareRW(e, opRecv, op.Native.Fd(), p.Buffer, 0) })
}

func startSend(mx api.Multiplexer, op *api.Operation) error {
	m, s := slotOf(mx, op)
	p := op.Args.(*object.StreamParams)
	return m.push(s, func(e *sqe) {
		prepareRW(e, opSend, op.Native.Fd(), p.Buffer, 0)
		e.OpFlags = unix.MSG_NOSIGNAL
	})
}

// acquireSockaddr attaches kernel-visible address storage to the slot.
func (m *Multiplexer) acquireSockaddr(s *slot) error {
	if s.addr != nil {
		return nil
	}
	buf, err := m.hooks.Acquire(platform.SockaddrStorageSize)
	if err != nil {
		return err
	}
	s.addr = buf
	return nil
}

func startConnect(mx api.Multiplexer, op *api.Operation) error {
	m, s := slotOf(mx, op)
	p := op.Args.(*object.ConnectParams)
	if err := m.acquireSockaddr(s); err != nil {
		return err
	}
	n, err := platform.EncodeRawSockaddr(s.addr, p.Address)
	if err != nil {
		return err
	}
	return m.push(s, func(e *sqe) {
		e.Opcode = opConnect
		e.Fd = int32(op.Native.Fd())
		e.Addr = bufferAddr(s.addr)
		e.Off = uint64(n)
	})
}

func startAccept(mx api.Multiplexer, op *api.Operation) error {
	m, s := slotOf(mx, op)
	p := op.Args.(*object.AcceptParams)
	if err := m.acquireSockaddr(s); err != nil {
		return err
	}
	s.addrLen = uint32(len(s.addr))
	return m.push(s, func(e *sqe) {
		e.Opcode = opAccept
		e.Fd = int32(op.Native.Fd())
		e.Addr = bufferAddr(s.addr)
		e.Off = uint64(uintptr(unsafe.Pointer(&s.addrLen)))
		e.OpFlags = uint32(platform.AcceptFlags(&p.Options))
	})
}

func startWaitReadable(mx api.Multiplexer, op *api.Operation) error {
	m, s := slotOf(mx, op)
	return m.push(s, func(e *sqe) { preparePoll(e, op.Native.Fd(), unix.POLLIN) })
}

// retryable results park the operation behind a readiness poll.
func retryable(res int64) bool {
	return res == -int64(unix.EAGAIN) || res == -int64(unix.EINPROGRESS) || res == -int64(unix.EALREADY)
}

func notifyTransfer(events uint32) func(api.Multiplexer, *api.Operation, api.Completion) {
	return func(mx api.Multiplexer, op *api.Operation, c api.Completion) {
		m, s := slotOf(mx, op)
		switch {
		case c.Result >= 0:
			m.finish(s, int(c.Result), nil, nil)
		case retryable(c.Result):
			m.awaitReadiness(s, events)
		default:
			m.finish(s, 0, nil, failure(op, int32(c.Result)))
		}
	}
}

func notifyConnect(mx api.Multiplexer, op *api.Operation, c api.Completion) {
	m, s := slotOf(mx, op)
	switch {
	case c.Result >= 0, c.Result == -int64(unix.EISCONN):
		m.finish(s, 0, nil, nil)
	case retryable(c.Result):
		m.awaitReadiness(s, unix.POLLOUT)
	default:
		m.finish(s, 0, nil, failure(op, int32(c.Result)))
	}
}

func notifyAccept(mx api.Multiplexer, op *api.Operation, c api.Completion) {
	m, s := slotOf(mx, op)
	switch {
	case c.Result >= 0:
		p := op.Args.(*object.AcceptParams)
		res := object.AcceptResult{
			Native:  platform.AcceptedHandle(int(c.Result), &p.Options),
			Address: platform.DecodeRawSockaddr(s.addr[:s.addrLen]),
		}
		m.finish(s, 0, res, nil)
	case retryable(c.Result):
		m.awaitReadiness(s, unix.POLLIN)
	default:
		m.finish(s, 0, nil, failure(op, int32(c.Result)))
	}
}

// rearm polls again after a wakeup that another waiter consumed.
func (m *Multiplexer) rearm(s *slot) {
	if s.op.CancelRequested() {
		m.finish(s, 0, nil, api.ErrAsyncOperationCancelled)
		return
	}
	if err := startWaitReadable(m, s.op); err != nil {
		m.finish(s, 0, nil, err)
	}
}

func notifyEventWait(mx api.Multiplexer, op *api.Operation, c api.Completion) {
	m, s := slotOf(mx, op)
	if c.Result < 0 {
		m.finish(s, 0, nil, failure(op, int32(c.Result)))
		return
	}
	ok, err := platform.EventReady(op.Native)
	switch {
	case err != nil:
		m.finish(s, 0, nil, err)
	case ok:
		m.finish(s, 0, nil, nil)
	default:
		m.rearm(s)
	}
}

func notifyTimerWait(mx api.Multiplexer, op *api.Operation, c api.Completion) {
	m, s := slotOf(mx, op)
	if c.Result < 0 {
		m.finish(s, 0, nil, failure(op, int32(c.Result)))
		return
	}
	n, err := platform.ReadTimer(op.Native)
	switch err {
	case nil:
		m.finish(s, 0, n, nil)
	case unix.EAGAIN:
		m.rearm(s)
	default:
		m.finish(s, 0, nil, api.NewSystemError("timerfd read", err))
	}
}

// notifyProcessWait completes once the pidfd polls readable; the handle
// reaps the exit status.
func notifyProcessWait(mx api.Multiplexer, op *api.Operation, c api.Completion) {
	m, s := slotOf(mx, op)
	if c.Result < 0 {
		m.finish(s, 0, nil, failure(op, int32(c.Result)))
		return
	}
	m.finish(s, 0, nil, nil)
}
