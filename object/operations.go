// File: object/operations.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Operation tags: identity, kind, and the parameter and result types.

package object

import (
	"fmt"

	"github.com/momentics/allio/api"
)

// Operation identifiers. The numbering is part of no ABI.
const (
	OpCreate api.OperationID = iota + 1
	OpClose
	OpRead
	OpWrite
	OpReadAt
	OpWriteAt
	OpAccept
	OpConnect
	OpWait
	OpSignal
	OpReset
	OpSet
)

var operationNames = map[api.OperationID]string{
	OpCreate:  "create",
	OpClose:   "close",
	OpRead:    "read",
	OpWrite:   "write",
	OpReadAt:  "read_at",
	OpWriteAt: "write_at",
	OpAccept:  "accept",
	OpConnect: "connect",
	OpWait:    "wait",
	OpSignal:  "signal",
	OpReset:   "reset",
	OpSet:     "set",
}

// OperationName returns a diagnostic name for id.
func OperationName(id api.OperationID) string {
	if n, ok := operationNames[id]; ok {
		return n
	}
	return fmt.Sprintf("operation(%d)", uint8(id))
}

// Kind classifies an operation by its effect on the handle.
type Kind uint8

const (
	// Producer operations create or mutate handle state.
	Producer Kind = iota
	// Observer operations leave handle state untouched.
	Observer
)

func (k Kind) String() string {
	if k == Producer {
		return "producer"
	}
	return "observer"
}

// Tag is an operation descriptor: P is the parameter type (required fields
// plus embedded Options), R the result type.
type Tag[P Params, R any] struct {
	ID   api.OperationID
	Name string
	Kind Kind
}

func (t Tag[P, R]) String() string { return t.Name }

// Void is the result type of operations producing no value.
type Void struct{}

var (
	OpenFile           = Tag[*OpenFileParams, Void]{ID: OpCreate, Name: "open_file", Kind: Producer}
	CreateStreamSocket = Tag[*SocketParams, Void]{ID: OpCreate, Name: "create_stream_socket", Kind: Producer}
	Listen             = Tag[*ListenParams, Void]{ID: OpCreate, Name: "listen", Kind: Producer}
	CreateEvent        = Tag[*EventParams, Void]{ID: OpCreate, Name: "create_event", Kind: Producer}
	CreateTimer        = Tag[*TimerCreateParams, Void]{ID: OpCreate, Name: "create_timer", Kind: Producer}
	LaunchProcess      = Tag[*LaunchProcessParams, Void]{ID: OpCreate, Name: "launch_process", Kind: Producer}
	OpenProcess        = Tag[*OpenProcessParams, Void]{ID: OpCreate, Name: "open_process", Kind: Producer}

	Close   = Tag[*CloseParams, Void]{ID: OpClose, Name: "close", Kind: Producer}
	Read    = Tag[*StreamParams, int]{ID: OpRead, Name: "read", Kind: Observer}
	Write   = Tag[*StreamParams, int]{ID: OpWrite, Name: "write", Kind: Observer}
	ReadAt  = Tag[*RandomAccessParams, int]{ID: OpReadAt, Name: "read_at", Kind: Observer}
	WriteAt = Tag[*RandomAccessParams, int]{ID: OpWriteAt, Name: "write_at", Kind: Observer}
	Accept  = Tag[*AcceptParams, AcceptResult]{ID: OpAccept, Name: "accept", Kind: Producer}
	Connect = Tag[*ConnectParams, Void]{ID: OpConnect, Name: "connect", Kind: Producer}

	WaitEvent   = Tag[*WaitParams, Void]{ID: OpWait, Name: "wait_event", Kind: Observer}
	WaitTimer   = Tag[*WaitParams, uint64]{ID: OpWait, Name: "wait_timer", Kind: Observer}
	WaitProcess = Tag[*WaitParams, ProcessExit]{ID: OpWait, Name: "wait_process", Kind: Observer}

	Signal   = Tag[*SignalParams, Void]{ID: OpSignal, Name: "signal", Kind: Producer}
	Reset    = Tag[*SignalParams, Void]{ID: OpReset, Name: "reset", Kind: Producer}
	SetTimer = Tag[*TimerSetParams, Void]{ID: OpSet, Name: "set_timer", Kind: Producer}
)
