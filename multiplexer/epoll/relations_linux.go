//go:build linux
// +build linux

// File: multiplexer/epoll/relations_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle relations of the epoll multiplexer. Regular files are always
// ready, so their transfers stay synchronous.

package epoll

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/internal/platform"
	"github.com/momentics/allio/object"
	"github.com/momentics/allio/relation"
)

// Relations is the relation table of the epoll multiplexer.
var Relations = relation.NewTable(TypeID,
	newRelation(object.File,
		synchronous(object.OpCreate),
		synchronous(object.OpRead),
		synchronous(object.OpWrite),
		synchronous(object.OpReadAt),
		synchronous(object.OpWriteAt),
	),
	newRelation(object.StreamSocket,
		synchronous(object.OpCreate),
		asynchronous(object.OpConnect, true, tryConnect),
		asynchronous(object.OpRead, false, tryRead),
		asynchronous(object.OpWrite, true, trySend),
	),
	newRelation(object.ListenSocket,
		synchronous(object.OpCreate),
		asynchronous(object.OpAccept, false, tryAccept),
	),
	newRelation(object.Event,
		synchronous(object.OpCreate),
		synchronous(object.OpSignal),
		synchronous(object.OpReset),
		asynchronous(object.OpWait, false, tryEventWait),
	),
	newRelation(object.Timer,
		synchronous(object.OpCreate),
		synchronous(object.OpSet),
		asynchronous(object.OpWait, false, tryTimerWait),
	),
	newRelation(object.Process,
		synchronous(object.OpCreate),
		asynchronous(object.OpWait, false, tryProcessWait),
	),
)

func newRelation(typ *object.Type, ops ...api.OperationDescriptor) *api.Relation {
	return &api.Relation{
		MultiplexerType: TypeID,
		HandleType:      typ.ID(),
		Register: func(mx api.Multiplexer, h api.NativeHandle) (api.Connector, error) {
			return mx.(*Multiplexer).register(h)
		},
		Deregister: func(mx api.Multiplexer, h api.NativeHandle, c api.Connector) error {
			return mx.(*Multiplexer).deregister(h, c)
		},
		Operations: append([]api.OperationDescriptor{synchronous(object.OpClose)}, ops...),
	}
}

func synchronous(id api.OperationID) api.OperationDescriptor {
	return api.OperationDescriptor{Operation: id, Synchronous: true}
}

func asynchronous(id api.OperationID, write bool, try attempt) api.OperationDescriptor {
	return api.OperationDescriptor{
		Operation: id,
		Construct: func(_ api.Multiplexer, op *api.Operation) error {
			op.Backend = &entry{op: op, write: write, try: try, heapIdx: -1}
			return nil
		},
		Start:  start,
		Notify: notify,
	}
}

func start(mx api.Multiplexer, op *api.Operation) error {
	m, e := mx.(*Multiplexer), op.Backend.(*entry)
	e.conn, _ = op.Connector.(*connector)
	e.step = api.NewStepDeadline(op.Deadline)
	e.started, e.parked, e.queued = false, false, false
	e.result = result{}
	m.attempt(e)
	return nil
}

func notify(mx api.Multiplexer, op *api.Operation, _ api.Completion) {
	mx.(*Multiplexer).finish(op.Backend.(*entry))
}

// polled reports whether fd has any of events pending right now.
func polled(fd int, events int16) bool {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		n, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		return err == nil && n > 0
	}
}

func tryRead(e *entry) (result, error) {
	p := e.op.Args.(*object.StreamParams)
	n, err := unix.Read(e.op.Native.Fd(), p.Buffer)
	if err != nil {
		return result{}, err
	}
	return result{n: n}, nil
}

func trySend(e *entry) (result, error) {
	p := e.op.Args.(*object.StreamParams)
	n, err := unix.SendmsgN(e.op.Native.Fd(), p.Buffer, nil, nil, unix.MSG_NOSIGNAL)
	if err != nil {
		return result{}, err
	}
	return result{n: n}, nil
}

// tryConnect issues connect once, then waits for writability and reads the
// socket error.
func tryConnect(e *entry) (result, error) {
	fd := e.op.Native.Fd()
	if !e.started {
		e.started = true
		p := e.op.Args.(*object.ConnectParams)
		sa, err := platform.ToSockaddr(p.Address)
		if err != nil {
			return result{}, err
		}
		switch err := unix.Connect(fd, sa); err {
		case nil:
			return result{}, nil
		case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
			return result{}, unix.EAGAIN
		default:
			return result{}, err
		}
	}
	if !polled(fd, unix.POLLOUT) {
		return result{}, unix.EAGAIN
	}
	return result{}, platform.ConnectResult(e.op.Native)
}

func tryAccept(e *entry) (result, error) {
	p := e.op.Args.(*object.AcceptParams)
	nfd, sa, err := unix.Accept4(e.op.Native.Fd(), platform.AcceptFlags(&p.Options))
	if err != nil {
		return result{}, err
	}
	return result{value: object.AcceptResult{
		Native:  platform.AcceptedHandle(nfd, &p.Options),
		Address: platform.FromSockaddr(sa),
	}}, nil
}

func tryEventWait(e *entry) (result, error) {
	if !polled(e.op.Native.Fd(), unix.POLLIN) {
		return result{}, unix.EAGAIN
	}
	ok, err := platform.EventReady(e.op.Native)
	switch {
	case err != nil:
		return result{}, err
	case !ok:
		return result{}, unix.EAGAIN
	}
	return result{}, nil
}

func tryTimerWait(e *entry) (result, error) {
	n, err := platform.ReadTimer(e.op.Native)
	if err != nil {
		return result{}, err
	}
	return result{value: n}, nil
}

// tryProcessWait completes once the pidfd polls readable; the handle reaps
// the exit status.
func tryProcessWait(e *entry) (result, error) {
	if !polled(e.op.Native.Fd(), unix.POLLIN) {
		return result{}, unix.EAGAIN
	}
	return result{}, nil
}
