// File: fake/perform.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"github.com/momentics/allio/api"
	"github.com/momentics/allio/internal/platform"
	"github.com/momentics/allio/object"
)

// Simulate completes every operation successfully without touching the
// kernel: transfers move the whole buffer, timer waits report one
// expiration and process waits report exit code 0.
func Simulate(op *api.Operation) Result {
	switch p := op.Args.(type) {
	case *object.StreamParams:
		return Result{N: len(p.Buffer)}
	case *object.RandomAccessParams:
		return Result{N: len(p.Buffer)}
	case *object.AcceptParams:
		return Result{Value: object.AcceptResult{}}
	}
	switch TypeOf(op) {
	case object.Timer:
		return Result{Value: uint64(1)}
	case object.Process:
		return Result{Value: object.ProcessExit{}}
	}
	return Result{}
}

// Passthrough performs the operation with blocking system calls, so tests
// can check real effects under deterministic ordering. Process waits do not
// reap; the handle layer does.
func Passthrough(op *api.Operation) Result {
	d := op.Deadline
	switch p := op.Args.(type) {
	case *object.StreamParams:
		var (
			n   int
			err error
		)
		if op.Descriptor.Operation == object.OpRead {
			n, err = platform.Read(op.Native, p.Buffer, d)
		} else {
			n, err = platform.Write(op.Native, p.Buffer, d)
		}
		return Result{N: n, Err: err}
	case *object.RandomAccessParams:
		var (
			n   int
			err error
		)
		if op.Descriptor.Operation == object.OpReadAt {
			n, err = platform.ReadAt(op.Native, p.Buffer, p.Offset)
		} else {
			n, err = platform.WriteAt(op.Native, p.Buffer, p.Offset)
		}
		return Result{N: n, Err: err}
	case *object.ConnectParams:
		return Result{Err: platform.Connect(op.Native, p.Address, d)}
	case *object.AcceptParams:
		res, err := platform.Accept(op.Native, &p.Options, d)
		return Result{Value: res, Err: err}
	}
	switch TypeOf(op) {
	case object.Event:
		return Result{Err: platform.WaitEvent(op.Native, d)}
	case object.Timer:
		n, err := platform.WaitTimer(op.Native, d)
		return Result{Value: n, Err: err}
	case object.Process:
		return Result{Err: platform.AwaitProcess(op.Native, d)}
	}
	return Result{Err: api.ErrUnsupportedOperation}
}
