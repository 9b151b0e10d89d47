// File: multiplexer/iocp/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package iocp implements a completion based multiplexer on a Windows I/O
// completion port. Positional file transfers are overlapped; every other
// operation runs synchronously.

package iocp

import (
	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
)

// TypeID identifies the IOCP multiplexer.
var TypeID = api.NewTypeID("iocp_multiplexer")

// Options configure New.
type Options struct {
	// MaxOperations caps concurrently in-flight operations. Zero is
	// unlimited.
	MaxOperations int
	Hooks         *api.Hooks
	Counters      *control.Counters
}

// Stats is a point-in-time view of the multiplexer.
type Stats struct {
	InFlight int `json:"in_flight"`
	Pending  int `json:"pending"`
	Timers   int `json:"timers"`
	Ready    int `json:"ready"`
}
