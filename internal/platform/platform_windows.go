//go:build windows
// +build windows

// File: internal/platform/platform_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows shims: overlapped files, kernel events and processes. Sockets and
// timers are not provided on Windows.

package platform

import (
	"net/netip"
	"os"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/object"
)

func handleOf(h api.NativeHandle) windows.Handle { return windows.Handle(h.Handle) }

func securityAttributes(o *object.Options) *windows.SecurityAttributes {
	if !o.Inheritable {
		return nil
	}
	sa := &windows.SecurityAttributes{InheritHandle: 1}
	sa.Length = uint32(unsafe.Sizeof(*sa))
	return sa
}

// PollFlags is always zero on Windows; waits go through the port.
func PollFlags(api.NativeHandle) uintptr { return 0 }

// OpenFile opens a file for overlapped I/O.
func OpenFile(p *object.OpenFileParams) (api.NativeHandle, error) {
	if p.Path == "" {
		return api.NativeHandle{}, api.ErrInvalidPath
	}
	name, err := windows.UTF16PtrFromString(p.Path)
	if err != nil {
		return api.NativeHandle{}, api.ErrInvalidPath
	}
	var access uint32
	switch p.Access {
	case object.ReadOnly:
		access = windows.GENERIC_READ
	case object.WriteOnly:
		access = windows.GENERIC_WRITE
	case object.ReadWrite:
		access = windows.GENERIC_READ | windows.GENERIC_WRITE
	default:
		return api.NativeHandle{}, api.ErrInvalidArgument
	}
	var disposition uint32
	switch p.Disposition {
	case object.OpenExisting:
		disposition = windows.OPEN_EXISTING
	case object.CreateNew:
		disposition = windows.CREATE_NEW
	case object.OpenOrCreate:
		disposition = windows.OPEN_ALWAYS
	case object.TruncateExisting:
		disposition = windows.TRUNCATE_EXISTING
	case object.CreateOrTruncate:
		disposition = windows.CREATE_ALWAYS
	default:
		return api.NativeHandle{}, api.ErrInvalidArgument
	}
	h, err := windows.CreateFile(name, access,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		securityAttributes(&p.Options), disposition,
		windows.FILE_ATTRIBUTE_NORMAL|windows.FILE_FLAG_OVERLAPPED, 0)
	if err != nil {
		return api.NativeHandle{}, api.NewSystemError("CreateFile", err)
	}
	return api.NativeHandle{Handle: uintptr(h), Flags: nativeFlags(&p.Options, 0)}, nil
}

func Close(h api.NativeHandle) error {
	if h.IsNull() {
		return api.ErrHandleIsNull
	}
	if err := windows.CloseHandle(handleOf(h)); err != nil {
		return api.NewSystemError("CloseHandle", err)
	}
	return nil
}

// Overlapped files have no current position.
func Read(api.NativeHandle, []byte, api.Deadline) (int, error) {
	return 0, api.ErrUnsupportedOperation
}

func Write(api.NativeHandle, []byte, api.Deadline) (int, error) {
	return 0, api.ErrUnsupportedOperation
}

// overlappedIO runs one positional transfer to completion. The event's low
// bit keeps the completion off any port the file is associated with.
func overlappedIO(h api.NativeHandle, off int64, op string,
	start func(windows.Handle, *uint32, *windows.Overlapped) error) (int, error) {
	ev, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return 0, api.NewSystemError("CreateEvent", err)
	}
	defer windows.CloseHandle(ev)
	ov := windows.Overlapped{
		Offset:     uint32(off),
		OffsetHigh: uint32(off >> 32),
		HEvent:     ev | 1,
	}
	var done uint32
	err = start(handleOf(h), &done, &ov)
	if err == windows.ERROR_IO_PENDING {
		err = windows.GetOverlappedResult(handleOf(h), &ov, &done, true)
	}
	switch err {
	case nil:
		return int(done), nil
	case windows.ERROR_HANDLE_EOF:
		return 0, nil
	}
	return 0, api.NewSystemError(op, err)
}

func ReadAt(h api.NativeHandle, b []byte, off int64) (int, error) {
	return overlappedIO(h, off, "ReadFile", func(fh windows.Handle, done *uint32, ov *windows.Overlapped) error {
		return windows.ReadFile(fh, b, done, ov)
	})
}

func WriteAt(h api.NativeHandle, b []byte, off int64) (int, error) {
	return overlappedIO(h, off, "WriteFile", func(fh windows.Handle, done *uint32, ov *windows.Overlapped) error {
		return windows.WriteFile(fh, b, done, ov)
	})
}

func Socket(object.AddressFamily, *object.Options) (api.NativeHandle, error) {
	return api.NativeHandle{}, api.ErrUnsupportedOperation
}

func Connect(api.NativeHandle, netip.AddrPort, api.Deadline) error {
	return api.ErrUnsupportedOperation
}

func Listen(*object.ListenParams) (api.NativeHandle, error) {
	return api.NativeHandle{}, api.ErrUnsupportedOperation
}

func Accept(api.NativeHandle, *object.Options, api.Deadline) (object.AcceptResult, error) {
	return object.AcceptResult{}, api.ErrUnsupportedOperation
}

func LocalAddress(api.NativeHandle) (netip.AddrPort, error) {
	return netip.AddrPort{}, api.ErrUnsupportedOperation
}

func CreateEvent(p *object.EventParams) (api.NativeHandle, error) {
	var manual, initial uint32 = 1, 0
	if p.AutoReset {
		manual = 0
	}
	if p.Signaled {
		initial = 1
	}
	ev, err := windows.CreateEvent(securityAttributes(&p.Options), manual, initial, nil)
	if err != nil {
		return api.NativeHandle{}, api.NewSystemError("CreateEvent", err)
	}
	var extra api.Flags
	if p.AutoReset {
		extra = api.FlagAutoReset
	}
	return api.NativeHandle{Handle: uintptr(ev), Flags: nativeFlags(&p.Options, extra)}, nil
}

func SignalEvent(h api.NativeHandle) error {
	if err := windows.SetEvent(handleOf(h)); err != nil {
		return api.NewSystemError("SetEvent", err)
	}
	return nil
}

func ResetEvent(h api.NativeHandle) error {
	if err := windows.ResetEvent(handleOf(h)); err != nil {
		return api.NewSystemError("ResetEvent", err)
	}
	return nil
}

// WaitObject waits up to d for a waitable handle.
func WaitObject(h api.NativeHandle, d api.Deadline) error {
	ms := uint32(windows.INFINITE)
	if !d.IsNever() {
		ms = uint32(d.Milliseconds(time.Now()))
	}
	r, err := windows.WaitForSingleObject(handleOf(h), ms)
	switch {
	case err != nil:
		return api.NewSystemError("WaitForSingleObject", err)
	case r == uint32(windows.WAIT_TIMEOUT):
		return api.ErrAsyncOperationTimedOut
	}
	return nil
}

func WaitEvent(h api.NativeHandle, d api.Deadline) error { return WaitObject(h, d) }

func CreateTimer(*object.TimerCreateParams) (api.NativeHandle, error) {
	return api.NativeHandle{}, api.ErrUnsupportedOperation
}

func SetTimer(api.NativeHandle, time.Duration, time.Duration) error {
	return api.ErrUnsupportedOperation
}

func WaitTimer(api.NativeHandle, api.Deadline) (uint64, error) {
	return 0, api.ErrUnsupportedOperation
}

// LaunchProcess starts a child process, returning its process handle.
func LaunchProcess(p *object.LaunchProcessParams) (api.NativeHandle, int, error) {
	if err := validateLaunch(p); err != nil {
		return api.NativeHandle{}, 0, err
	}
	env := p.Environment
	if env == nil {
		env = os.Environ()
	}
	argv := p.Args
	if len(argv) == 0 {
		argv = []string{p.Path}
	}
	attr := &syscall.ProcAttr{
		Dir:   p.WorkingDirectory,
		Env:   env,
		Files: []uintptr{uintptr(syscall.Stdin), uintptr(syscall.Stdout), uintptr(syscall.Stderr)},
	}
	pid, ph, err := syscall.StartProcess(p.Path, argv, attr)
	if err != nil {
		return api.NativeHandle{}, 0, api.NewSystemError("CreateProcess", err)
	}
	return api.NativeHandle{Handle: ph, Flags: nativeFlags(&p.Options, 0)}, pid, nil
}

func OpenProcess(p *object.OpenProcessParams) (api.NativeHandle, error) {
	if err := validateOpenProcess(p); err != nil {
		return api.NativeHandle{}, err
	}
	ph, err := windows.OpenProcess(windows.SYNCHRONIZE|windows.PROCESS_QUERY_LIMITED_INFORMATION,
		p.Inheritable, uint32(p.Pid))
	if err != nil {
		return api.NativeHandle{}, api.NewSystemError("OpenProcess", err)
	}
	return api.NativeHandle{Handle: uintptr(ph), Flags: nativeFlags(&p.Options, 0)}, nil
}

func AwaitProcess(h api.NativeHandle, d api.Deadline) error { return WaitObject(h, d) }

func WaitProcess(h api.NativeHandle, pid int, d api.Deadline) (object.ProcessExit, error) {
	if err := WaitObject(h, d); err != nil {
		return object.ProcessExit{}, err
	}
	return ReapProcess(h, pid)
}

// ReapProcess reads the exit code of a signaled process handle.
func ReapProcess(h api.NativeHandle, _ int) (object.ProcessExit, error) {
	var code uint32
	if err := windows.GetExitCodeProcess(handleOf(h), &code); err != nil {
		return object.ProcessExit{}, api.NewSystemError("GetExitCodeProcess", err)
	}
	return object.ProcessExit{Code: int(code)}, nil
}
