// File: object/object.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Object type tags and their single-inheritance chains.

package object

import (
	"github.com/momentics/allio/api"
)

// Type describes one category of resource: its identity, its base category
// and the operations it supports. Types are immutable after Define.
type Type struct {
	name string
	id   api.TypeID
	base *Type
	ops  []api.OperationID
}

// Define declares a new object type deriving from base (which may be nil).
// Its operation list is base's list followed by own; operations already
// supported by base are not repeated.
func Define(name string, base *Type, own ...api.OperationID) *Type {
	t := &Type{name: name, id: api.NewTypeID(name), base: base}
	if base != nil {
		t.ops = append(t.ops, base.ops...)
	}
	for _, op := range own {
		if !t.Supports(op) {
			t.ops = append(t.ops, op)
		}
	}
	return t
}

func (t *Type) Name() string   { return t.name }
func (t *Type) ID() api.TypeID { return t.id }
func (t *Type) Base() *Type    { return t.base }
func (t *Type) String() string { return t.name }

// NumOperations returns the length of Operations.
func (t *Type) NumOperations() int { return len(t.ops) }

// Operations returns the type's operation list, base operations first. The
// returned slice must not be modified.
func (t *Type) Operations() []api.OperationID { return t.ops }

// Index returns the logical index of op in Operations.
func (t *Type) Index(op api.OperationID) (int, bool) {
	for i, o := range t.ops {
		if o == op {
			return i, true
		}
	}
	return 0, false
}

// Supports reports whether op is in the operation list.
func (t *Type) Supports(op api.OperationID) bool {
	_, ok := t.Index(op)
	return ok
}

// Is reports whether t is other or derives from it.
func (t *Type) Is(other *Type) bool {
	for c := t; c != nil; c = c.base {
		if c == other {
			return true
		}
	}
	return false
}

// Predefined object types.
var (
	Object         = Define("object", nil, OpClose)
	PlatformObject = Define("platform_object", Object)
	FSObject       = Define("fs_object", PlatformObject)
	File           = Define("file", FSObject, OpCreate, OpRead, OpWrite, OpReadAt, OpWriteAt)
	SocketObject   = Define("socket_object", PlatformObject)
	StreamSocket   = Define("stream_socket", SocketObject, OpCreate, OpConnect, OpRead, OpWrite)
	ListenSocket   = Define("listen_socket", SocketObject, OpCreate, OpAccept)
	Event          = Define("event", PlatformObject, OpCreate, OpSignal, OpReset, OpWait)
	Timer          = Define("timer", PlatformObject, OpCreate, OpSet, OpWait)
	Process        = Define("process", PlatformObject, OpCreate, OpWait)
)

// Concrete lists every instantiable type, i.e. the types a relation table
// may carry entries for.
var Concrete = []*Type{File, StreamSocket, ListenSocket, Event, Timer, Process}
