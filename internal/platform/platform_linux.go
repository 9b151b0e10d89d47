//go:build linux
// +build linux

// File: internal/platform/platform_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux shims: files, nonblocking stream sockets, eventfd events, timerfd
// timers and pidfd processes.

package platform

import (
	"encoding/binary"
	"net/netip"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/object"
)

// PollIn and PollOut are the Information bits of an opaque handle.
const (
	PollIn  = unix.POLLIN
	PollOut = unix.POLLOUT
)

func cloexec(o *object.Options) int {
	if o.Inheritable {
		return 0
	}
	return unix.O_CLOEXEC
}

// PollFlags returns the poll events an opaque handle advertises.
func PollFlags(h api.NativeHandle) uintptr {
	if h.Flags&api.FlagPollable == 0 {
		return 0
	}
	return uintptr(PollIn | PollOut)
}

// OpenFile opens or creates a regular file.
func OpenFile(p *object.OpenFileParams) (api.NativeHandle, error) {
	if p.Path == "" || strings.IndexByte(p.Path, 0) >= 0 {
		return api.NativeHandle{}, api.ErrInvalidPath
	}
	mode := cloexec(&p.Options)
	switch p.Access {
	case object.ReadOnly:
		mode |= unix.O_RDONLY
	case object.WriteOnly:
		mode |= unix.O_WRONLY
	case object.ReadWrite:
		mode |= unix.O_RDWR
	default:
		return api.NativeHandle{}, api.ErrInvalidArgument
	}
	switch p.Disposition {
	case object.OpenExisting:
	case object.CreateNew:
		mode |= unix.O_CREAT | unix.O_EXCL
	case object.OpenOrCreate:
		mode |= unix.O_CREAT
	case object.TruncateExisting:
		mode |= unix.O_TRUNC
	case object.CreateOrTruncate:
		mode |= unix.O_CREAT | unix.O_TRUNC
	default:
		return api.NativeHandle{}, api.ErrInvalidArgument
	}
	var fd int
	err := ignoringEINTR(func() (err error) {
		fd, err = unix.Open(p.Path, mode, 0o644)
		return err
	})
	if err != nil {
		return api.NativeHandle{}, api.NewSystemError("open", err)
	}
	return api.NativeHandle{Handle: uintptr(fd), Flags: nativeFlags(&p.Options, 0)}, nil
}

// Close releases any native handle. EINTR is not retried: on Linux the
// descriptor is gone either way.
func Close(h api.NativeHandle) error {
	if h.IsNull() {
		return api.ErrHandleIsNull
	}
	if err := unix.Close(h.Fd()); err != nil && err != unix.EINTR {
		return api.NewSystemError("close", err)
	}
	return nil
}

// Read reads at the current position. Nonblocking descriptors wait for
// readiness up to d.
func Read(h api.NativeHandle, b []byte, d api.Deadline) (int, error) {
	var n int
	err := retryReady(h, unix.POLLIN, d, func() (err error) {
		n, err = unix.Read(h.Fd(), b)
		return err
	})
	if err != nil {
		return 0, wrap("read", err)
	}
	return n, nil
}

// Write writes at the current position. Nonblocking descriptors wait for
// readiness up to d.
func Write(h api.NativeHandle, b []byte, d api.Deadline) (int, error) {
	var n int
	err := retryReady(h, unix.POLLOUT, d, func() (err error) {
		n, err = unix.Write(h.Fd(), b)
		return err
	})
	if err != nil {
		return 0, wrap("write", err)
	}
	return n, nil
}

func ReadAt(h api.NativeHandle, b []byte, off int64) (int, error) {
	var n int
	err := ignoringEINTR(func() (err error) {
		n, err = unix.Pread(h.Fd(), b, off)
		return err
	})
	if err != nil {
		return 0, api.NewSystemError("pread", err)
	}
	return n, nil
}

func WriteAt(h api.NativeHandle, b []byte, off int64) (int, error) {
	var n int
	err := ignoringEINTR(func() (err error) {
		n, err = unix.Pwrite(h.Fd(), b, off)
		return err
	})
	if err != nil {
		return 0, api.NewSystemError("pwrite", err)
	}
	return n, nil
}

func socketDomain(f object.AddressFamily) int {
	if f == object.IPv6 {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// Socket creates a nonblocking stream socket.
func Socket(family object.AddressFamily, o *object.Options) (api.NativeHandle, error) {
	typ := unix.SOCK_STREAM | unix.SOCK_NONBLOCK
	if !o.Inheritable {
		typ |= unix.SOCK_CLOEXEC
	}
	fd, err := unix.Socket(socketDomain(family), typ, 0)
	if err != nil {
		return api.NativeHandle{}, api.NewSystemError("socket", err)
	}
	return api.NativeHandle{
		Handle: uintptr(fd),
		Flags:  nativeFlags(o, api.FlagNonBlocking|api.FlagPollable),
	}, nil
}

// Connect connects a stream socket, waiting up to d for the handshake.
func Connect(h api.NativeHandle, addr netip.AddrPort, d api.Deadline) error {
	sa, err := ToSockaddr(addr)
	if err != nil {
		return err
	}
	err = unix.Connect(h.Fd(), sa)
	switch err {
	case nil:
		return nil
	case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
	default:
		return api.NewSystemError("connect", err)
	}
	if err := waitFd(h.Fd(), unix.POLLOUT, api.NewStepDeadline(d)); err != nil {
		return err
	}
	return ConnectResult(h)
}

// ConnectResult fetches the outcome of an asynchronous connect.
func ConnectResult(h api.NativeHandle) error {
	v, err := unix.GetsockoptInt(h.Fd(), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return api.NewSystemError("getsockopt", err)
	}
	if v != 0 {
		return api.NewSystemError("connect", syscall.Errno(v))
	}
	return nil
}

// Listen creates a nonblocking socket listening on p.Address.
func Listen(p *object.ListenParams) (api.NativeHandle, error) {
	h, err := Socket(object.FamilyOf(p.Address), &p.Options)
	if err != nil {
		return h, err
	}
	fail := func(op string, err error) (api.NativeHandle, error) {
		_ = unix.Close(h.Fd())
		return api.NativeHandle{}, api.NewSystemError(op, err)
	}
	if err := unix.SetsockoptInt(h.Fd(), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	sa, err := ToSockaddr(p.Address)
	if err != nil {
		_ = unix.Close(h.Fd())
		return api.NativeHandle{}, err
	}
	if err := unix.Bind(h.Fd(), sa); err != nil {
		return fail("bind", err)
	}
	backlog := p.Backlog
	if backlog <= 0 {
		backlog = object.DefaultBacklog
	}
	if err := unix.Listen(h.Fd(), backlog); err != nil {
		return fail("listen", err)
	}
	return h, nil
}

// AcceptFlags returns the accept4 flags for a new connection.
func AcceptFlags(o *object.Options) int {
	flags := unix.SOCK_NONBLOCK
	if !o.Inheritable {
		flags |= unix.SOCK_CLOEXEC
	}
	return flags
}

// AcceptedHandle builds the native handle of an accepted connection.
func AcceptedHandle(fd int, o *object.Options) api.NativeHandle {
	return api.NativeHandle{
		Handle: uintptr(fd),
		Flags:  nativeFlags(o, api.FlagNonBlocking|api.FlagPollable),
	}
}

// Accept waits up to d for a connection.
func Accept(h api.NativeHandle, o *object.Options, d api.Deadline) (object.AcceptResult, error) {
	var (
		nfd int
		sa  unix.Sockaddr
	)
	err := retryReady(h, unix.POLLIN, d, func() (err error) {
		nfd, sa, err = unix.Accept4(h.Fd(), AcceptFlags(o))
		return err
	})
	if err != nil {
		return object.AcceptResult{}, wrap("accept", err)
	}
	return object.AcceptResult{Native: AcceptedHandle(nfd, o), Address: FromSockaddr(sa)}, nil
}

// LocalAddress returns the address a socket is bound to.
func LocalAddress(h api.NativeHandle) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(h.Fd())
	if err != nil {
		return netip.AddrPort{}, api.NewSystemError("getsockname", err)
	}
	return FromSockaddr(sa), nil
}

// CreateEvent creates an eventfd. The counter is the signal state.
func CreateEvent(p *object.EventParams) (api.NativeHandle, error) {
	var initial uint
	if p.Signaled {
		initial = 1
	}
	flags := unix.EFD_NONBLOCK
	if !p.Inheritable {
		flags |= unix.EFD_CLOEXEC
	}
	fd, err := unix.Eventfd(initial, flags)
	if err != nil {
		return api.NativeHandle{}, api.NewSystemError("eventfd", err)
	}
	extra := api.FlagNonBlocking | api.FlagPollable
	if p.AutoReset {
		extra |= api.FlagAutoReset
	}
	return api.NativeHandle{Handle: uintptr(fd), Flags: nativeFlags(&p.Options, extra)}, nil
}

func SignalEvent(h api.NativeHandle) error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	err := ignoringEINTR(func() error {
		_, err := unix.Write(h.Fd(), one[:])
		return err
	})
	if err != nil && err != unix.EAGAIN {
		return api.NewSystemError("eventfd write", err)
	}
	return nil
}

// ResetEvent drains the counter.
func ResetEvent(h api.NativeHandle) error {
	if err := ConsumeEvent(h); err != nil && err != unix.EAGAIN {
		return api.NewSystemError("eventfd read", err)
	}
	return nil
}

// ConsumeEvent reads the counter once; unix.EAGAIN means it was zero.
func ConsumeEvent(h api.NativeHandle) error {
	var buf [8]byte
	return ignoringEINTR(func() error {
		_, err := unix.Read(h.Fd(), buf[:])
		return err
	})
}

// EventReady completes a wait once the descriptor polled readable: an
// auto-reset event is consumed, reporting false if another waiter won.
func EventReady(h api.NativeHandle) (bool, error) {
	if h.Flags&api.FlagAutoReset == 0 {
		return true, nil
	}
	switch err := ConsumeEvent(h); err {
	case nil:
		return true, nil
	case unix.EAGAIN:
		return false, nil
	default:
		return false, api.NewSystemError("eventfd read", err)
	}
}

// WaitEvent blocks up to d for the event to become signaled.
func WaitEvent(h api.NativeHandle, d api.Deadline) error {
	step := api.NewStepDeadline(d)
	for {
		if err := waitFd(h.Fd(), unix.POLLIN, step); err != nil {
			return err
		}
		ok, err := EventReady(h)
		if err != nil || ok {
			return err
		}
	}
}

func CreateTimer(p *object.TimerCreateParams) (api.NativeHandle, error) {
	flags := unix.TFD_NONBLOCK
	if !p.Inheritable {
		flags |= unix.TFD_CLOEXEC
	}
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, flags)
	if err != nil {
		return api.NativeHandle{}, api.NewSystemError("timerfd_create", err)
	}
	return api.NativeHandle{
		Handle: uintptr(fd),
		Flags:  nativeFlags(&p.Options, api.FlagNonBlocking|api.FlagPollable),
	}, nil
}

// SetTimer arms the timer; a zero initial disarms it.
func SetTimer(h api.NativeHandle, initial, interval time.Duration) error {
	if initial < 0 || interval < 0 {
		return api.ErrInvalidArgument
	}
	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(int64(interval)),
		Value:    unix.NsecToTimespec(int64(initial)),
	}
	if err := unix.TimerfdSettime(h.Fd(), 0, &spec, nil); err != nil {
		return api.NewSystemError("timerfd_settime", err)
	}
	return nil
}

// ReadTimer returns the expirations since the last read; unix.EAGAIN means
// none.
func ReadTimer(h api.NativeHandle) (uint64, error) {
	var buf [8]byte
	err := ignoringEINTR(func() error {
		_, err := unix.Read(h.Fd(), buf[:])
		return err
	})
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

// WaitTimer blocks up to d for at least one expiration.
func WaitTimer(h api.NativeHandle, d api.Deadline) (uint64, error) {
	step := api.NewStepDeadline(d)
	for {
		if err := waitFd(h.Fd(), unix.POLLIN, step); err != nil {
			return 0, err
		}
		n, err := ReadTimer(h)
		switch err {
		case nil:
			return n, nil
		case unix.EAGAIN:
		default:
			return 0, api.NewSystemError("timerfd read", err)
		}
	}
}

// LaunchProcess starts a child process, returning its pidfd and pid.
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
	pidfd := -1
	attr := &syscall.ProcAttr{
		Dir:   p.WorkingDirectory,
		Env:   env,
		Files: []uintptr{0, 1, 2},
		Sys:   &syscall.SysProcAttr{PidFD: &pidfd},
	}
	pid, _, err := syscall.StartProcess(p.Path, argv, attr)
	if err != nil {
		if err == syscall.E2BIG {
			return api.NativeHandle{}, 0, api.ErrProcessArgumentsTooLong
		}
		return api.NativeHandle{}, 0, api.NewSystemError("fork/exec", err)
	}
	if pidfd < 0 {
		// Kernels without CLONE_PIDFD.
		if pidfd, err = unix.PidfdOpen(pid, 0); err != nil {
			return api.NativeHandle{}, 0, api.NewSystemError("pidfd_open", err)
		}
	}
	return api.NativeHandle{
		Handle: uintptr(pidfd),
		Flags:  nativeFlags(&p.Options, api.FlagPollable),
	}, pid, nil
}

// OpenProcess opens a pidfd for an existing process.
func OpenProcess(p *object.OpenProcessParams) (api.NativeHandle, error) {
	if err := validateOpenProcess(p); err != nil {
		return api.NativeHandle{}, err
	}
	fd, err := unix.PidfdOpen(p.Pid, 0)
	if err != nil {
		return api.NativeHandle{}, api.NewSystemError("pidfd_open", err)
	}
	return api.NativeHandle{Handle: uintptr(fd), Flags: nativeFlags(&p.Options, api.FlagPollable)}, nil
}

// ReapProcess collects the exit status of a process whose pidfd polled
// readable. Processes that are not children report code -1.
func ReapProcess(_ api.NativeHandle, pid int) (object.ProcessExit, error) {
	var ws unix.WaitStatus
	err := ignoringEINTR(func() error {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		return err
	})
	switch {
	case err == unix.ECHILD:
		return object.ProcessExit{Code: -1}, nil
	case err != nil:
		return object.ProcessExit{}, api.NewSystemError("wait4", err)
	case ws.Signaled():
		return object.ProcessExit{Code: 128 + int(ws.Signal())}, nil
	}
	return object.ProcessExit{Code: ws.ExitStatus()}, nil
}

// AwaitProcess blocks up to d for the process to exit without reaping it.
func AwaitProcess(h api.NativeHandle, d api.Deadline) error {
	return waitFd(h.Fd(), unix.POLLIN, api.NewStepDeadline(d))
}

// WaitProcess blocks up to d for the process to exit.
func WaitProcess(h api.NativeHandle, pid int, d api.Deadline) (object.ProcessExit, error) {
	if err := AwaitProcess(h, d); err != nil {
		return object.ProcessExit{}, err
	}
	return ReapProcess(h, pid)
}

// WaitReadable blocks up to d for h to poll readable.
func WaitReadable(h api.NativeHandle, d api.Deadline) error {
	return waitFd(h.Fd(), unix.POLLIN, api.NewStepDeadline(d))
}

func waitFd(fd int, events int16, step api.StepDeadline) error {
	for {
		cur, err := step.Step()
		if err != nil {
			return err
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, err := unix.Poll(fds, cur.Milliseconds(time.Now()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return api.NewSystemError("poll", err)
		}
		if n == 0 {
			return api.ErrAsyncOperationTimedOut
		}
		return nil
	}
}

// retryReady runs f, waiting for readiness whenever a nonblocking
// descriptor reports EAGAIN.
func retryReady(h api.NativeHandle, events int16, d api.Deadline, f func() error) error {
	step := api.NewStepDeadline(d)
	for {
		err := f()
		switch err {
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if err := waitFd(h.Fd(), events, step); err != nil {
				return err
			}
			continue
		}
		return err
	}
}

func ignoringEINTR(f func() error) error {
	for {
		if err := f(); err != unix.EINTR {
			return err
		}
	}
}

// wrap wraps errno values and passes already wrapped errors through.
func wrap(op string, err error) error {
	if errno, ok := err.(syscall.Errno); ok {
		return api.NewSystemError(op, errno)
	}
	return err
}
