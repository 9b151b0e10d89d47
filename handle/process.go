// File: handle/process.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import (
	"github.com/momentics/allio/api"
	"github.com/momentics/allio/internal/platform"
	"github.com/momentics/allio/object"
)

// Process refers to a launched or opened process. Closing it does not
// terminate the process.
type Process struct {
	Handle[ProcessKind]
	pid int
}

// Pid returns the process id, 0 when null.
func (p *Process) Pid() int { return p.pid }

// Launch starts path with args. args[0] is the program name; when args is
// empty, path is used.
func (p *Process) Launch(path string, args []string, opts ...object.Option) error {
	params := &object.LaunchProcessParams{Path: path, Args: args, Options: object.NewOptions(opts...)}
	var pid int
	err := create(&p.Handle, params, func(lp *object.LaunchProcessParams) (api.NativeHandle, error) {
		n, id, err := platform.LaunchProcess(lp)
		pid = id
		return n, err
	})
	if err == nil {
		p.pid = pid
	}
	return err
}

// Open refers to the existing process pid.
func (p *Process) Open(pid int, opts ...object.Option) error {
	params := &object.OpenProcessParams{Pid: pid, Options: object.NewOptions(opts...)}
	err := create(&p.Handle, params, platform.OpenProcess)
	if err == nil {
		p.pid = pid
	}
	return err
}

func (p *Process) Close() error {
	p.pid = 0
	return p.Handle.Close()
}

func (p *Process) Release() api.NativeHandle {
	p.pid = 0
	return p.Handle.Release()
}

func (p *Process) Destroy() {
	p.pid = 0
	p.Handle.Destroy()
}

// exit reaps the process once a multiplexer reported it exited, unless the
// multiplexer already supplied the status.
func (p *Process) exit() func(*api.Operation) (object.ProcessExit, error) {
	native, pid := p.native, p.pid
	return func(op *api.Operation) (object.ProcessExit, error) {
		if st, ok := op.Value.(object.ProcessExit); ok {
			return st, nil
		}
		return platform.ReapProcess(native, pid)
	}
}

func (p *Process) waitDirect(wp *object.WaitParams) (object.ProcessExit, error) {
	return platform.WaitProcess(p.native, p.pid, wp.Deadline)
}

// Wait blocks until the process exits.
func (p *Process) Wait(opts ...object.Option) (object.ProcessExit, error) {
	wp := &object.WaitParams{Options: object.NewOptions(opts...)}
	return run(&p.Handle, object.WaitProcess, wp, p.waitDirect, p.exit())
}

func (p *Process) WaitAsync(opts ...object.Option) (*Pending[object.ProcessExit], error) {
	wp := &object.WaitParams{Options: object.NewOptions(opts...)}
	return start(&p.Handle, object.WaitProcess, wp, p.waitDirect, p.exit())
}
