// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared identity and native handle declarations.

package api

import (
	"fmt"
	"sync"
)

// TypeID identifies a multiplexer implementation or a handle type. IDs are
// allocated once per process, at package initialisation of the declaring
// package, and are stable for the lifetime of the process.
type TypeID uint32

// NoType is the zero TypeID, never returned by NewTypeID.
const NoType TypeID = 0

var typeNames struct {
	sync.RWMutex
	names []string
}

// NewTypeID allocates a TypeID with a diagnostic name.
func NewTypeID(name string) TypeID {
	typeNames.Lock()
	defer typeNames.Unlock()
	if typeNames.names == nil {
		typeNames.names = []string{""}
	}
	typeNames.names = append(typeNames.names, name)
	return TypeID(len(typeNames.names) - 1)
}

func (id TypeID) String() string {
	typeNames.RLock()
	defer typeNames.RUnlock()
	if int(id) > 0 && int(id) < len(typeNames.names) {
		return typeNames.names[id]
	}
	return fmt.Sprintf("type(%d)", uint32(id))
}

// Flags describe the state of a native handle.
type Flags uint32

const (
	// FlagNotNull is set while a native resource is bound.
	FlagNotNull Flags = 1 << iota
	// FlagInheritable marks resources inherited by child processes.
	FlagInheritable
	// FlagNonBlocking marks descriptors opened in non-blocking mode.
	FlagNonBlocking
	// FlagPollable marks descriptors usable with readiness polling.
	FlagPollable
	// FlagAutoReset marks events that reset when a waiter is released.
	FlagAutoReset
)

// NativeHandle is the platform resource identifier plus its state flags.
type NativeHandle struct {
	Handle uintptr
	Flags  Flags
}

// IsNull reports whether no resource is bound.
func (h NativeHandle) IsNull() bool { return h.Flags&FlagNotNull == 0 }

// Fd returns the handle as a POSIX descriptor.
func (h NativeHandle) Fd() int { return int(h.Handle) }

// OpaqueHandle is the stable two-field ABI used to expose a pollable native
// handle across a library boundary. On POSIX Information holds poll flags;
// on Windows it is unused.
type OpaqueHandle struct {
	Handle      uintptr
	Information uintptr
}
