//go:build windows
// +build windows

// File: multiplexer/iocp/relations_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package iocp

import (
	"golang.org/x/sys/windows"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/object"
	"github.com/momentics/allio/relation"
)

// Relations is the relation table of the IOCP multiplexer. Only files are
// associated with the port; every other handle type runs synchronously.
var Relations = relation.NewTable(TypeID,
	&api.Relation{
		MultiplexerType: TypeID,
		HandleType:      object.File.ID(),
		Register: func(mx api.Multiplexer, h api.NativeHandle) (api.Connector, error) {
			return mx.(*Multiplexer).associate(h)
		},
		Deregister: func(mx api.Multiplexer, h api.NativeHandle, c api.Connector) error {
			return mx.(*Multiplexer).dissociate(h, c)
		},
		Operations: []api.OperationDescriptor{
			synchronous(object.OpClose),
			synchronous(object.OpCreate),
			synchronous(object.OpRead),
			synchronous(object.OpWrite),
			transfer(object.OpReadAt, false),
			transfer(object.OpWriteAt, true),
		},
	},
	synchronousRelation(object.StreamSocket),
	synchronousRelation(object.ListenSocket),
	synchronousRelation(object.Event),
	synchronousRelation(object.Timer),
	synchronousRelation(object.Process),
)

func synchronous(id api.OperationID) api.OperationDescriptor {
	return api.OperationDescriptor{Operation: id, Synchronous: true}
}

func synchronousRelation(typ *object.Type) *api.Relation {
	r := &api.Relation{
		MultiplexerType: TypeID,
		HandleType:      typ.ID(),
		Register:        func(api.Multiplexer, api.NativeHandle) (api.Connector, error) { return nil, nil },
		Deregister:      func(api.Multiplexer, api.NativeHandle, api.Connector) error { return nil },
	}
	for _, id := range typ.Operations() {
		r.Operations = append(r.Operations, synchronous(id))
	}
	return r
}

func transfer(id api.OperationID, write bool) api.OperationDescriptor {
	return api.OperationDescriptor{
		Operation: id,
		Construct: func(_ api.Multiplexer, op *api.Operation) error {
			op.Backend = &entry{op: op, write: write, heapIdx: -1}
			return nil
		},
		Start: startTransfer,
		Notify: func(mx api.Multiplexer, op *api.Operation, _ api.Completion) {
			mx.(*Multiplexer).finish(op.Backend.(*entry))
		},
	}
}

// startTransfer issues an overlapped ReadFile or WriteFile at the offset.
func startTransfer(mx api.Multiplexer, op *api.Operation) error {
	m, e := mx.(*Multiplexer), op.Backend.(*entry)
	p := op.Args.(*object.RandomAccessParams)
	if p.Offset < 0 {
		return api.ErrInvalidArgument
	}
	c, ok := op.Connector.(*connector)
	if !ok || c == nil {
		return api.ErrHandleIsNotMultiplexable
	}
	e.conn = c
	e.step = api.NewStepDeadline(op.Deadline)
	e.ov = windows.Overlapped{Offset: uint32(p.Offset), OffsetHigh: uint32(p.Offset >> 32)}
	e.pending, e.expired, e.queued = false, false, false
	e.result = result{}

	var err error
	if e.write {
		err = windows.WriteFile(c.handle, p.Buffer, nil, &e.ov)
	} else {
		err = windows.ReadFile(c.handle, p.Buffer, nil, &e.ov)
	}
	switch err {
	case nil, windows.ERROR_IO_PENDING:
		m.issue(e)
	case windows.ERROR_HANDLE_EOF:
		m.complete(e, result{})
	default:
		m.complete(e, result{err: api.NewSystemError(object.OperationName(op.Descriptor.Operation), err)})
	}
	return nil
}
