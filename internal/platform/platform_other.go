//go:build !linux && !windows
// +build !linux,!windows

// File: internal/platform/platform_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

import (
	"net/netip"
	"time"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/object"
)

func PollFlags(api.NativeHandle) uintptr { return 0 }

func OpenFile(*object.OpenFileParams) (api.NativeHandle, error) {
	return api.NativeHandle{}, api.ErrUnsupportedOperation
}

func Close(h api.NativeHandle) error {
	if h.IsNull() {
		return api.ErrHandleIsNull
	}
	return api.ErrUnsupportedOperation
}

func Read(api.NativeHandle, []byte, api.Deadline) (int, error) {
	return 0, api.ErrUnsupportedOperation
}

func Write(api.NativeHandle, []byte, api.Deadline) (int, error) {
	return 0, api.ErrUnsupportedOperation
}

func ReadAt(api.NativeHandle, []byte, int64) (int, error) { return 0, api.ErrUnsupportedOperation }

func WriteAt(api.NativeHandle, []byte, int64) (int, error) { return 0, api.ErrUnsupportedOperation }

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

func CreateEvent(*object.EventParams) (api.NativeHandle, error) {
	return api.NativeHandle{}, api.ErrUnsupportedOperation
}

func SignalEvent(api.NativeHandle) error { return api.ErrUnsupportedOperation }

func ResetEvent(api.NativeHandle) error { return api.ErrUnsupportedOperation }

func WaitEvent(api.NativeHandle, api.Deadline) error { return api.ErrUnsupportedOperation }

func CreateTimer(*object.TimerCreateParams) (api.NativeHandle, error) {
	return api.NativeHandle{}, api.ErrUnsupportedOperation
}

func SetTimer(api.NativeHandle, time.Duration, time.Duration) error {
	return api.ErrUnsupportedOperation
}

func WaitTimer(api.NativeHandle, api.Deadline) (uint64, error) {
	return 0, api.ErrUnsupportedOperation
}

func LaunchProcess(p *object.LaunchProcessParams) (api.NativeHandle, int, error) {
	if err := validateLaunch(p); err != nil {
		return api.NativeHandle{}, 0, err
	}
	return api.NativeHandle{}, 0, api.ErrUnsupportedOperation
}

func OpenProcess(p *object.OpenProcessParams) (api.NativeHandle, error) {
	if err := validateOpenProcess(p); err != nil {
		return api.NativeHandle{}, err
	}
	return api.NativeHandle{}, api.ErrUnsupportedOperation
}

func AwaitProcess(api.NativeHandle, api.Deadline) error { return api.ErrUnsupportedOperation }

func WaitProcess(api.NativeHandle, int, api.Deadline) (object.ProcessExit, error) {
	return object.ProcessExit{}, api.ErrUnsupportedOperation
}

func ReapProcess(api.NativeHandle, int) (object.ProcessExit, error) {
	return object.ProcessExit{}, api.ErrUnsupportedOperation
}
