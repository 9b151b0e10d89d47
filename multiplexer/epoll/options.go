// File: multiplexer/epoll/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package epoll implements a readiness based multiplexer on Linux epoll:
// operations try their nonblocking system call and park on EAGAIN until
// the descriptor polls ready.

package epoll

import (
	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
)

// TypeID identifies the epoll multiplexer.
var TypeID = api.NewTypeID("epoll_multiplexer")

// DefaultMaxEvents is the epoll_wait batch size used when none is given.
const DefaultMaxEvents = 128

// Options configure New.
type Options struct {
	// MaxOperations caps concurrently in-flight operations. Zero is
	// unlimited.
	MaxOperations int
	// MaxEvents is the epoll_wait batch size.
	MaxEvents int
	Hooks     *api.Hooks
	Counters  *control.Counters
}

// Stats is a point-in-time view of the multiplexer.
type Stats struct {
	Registered int `json:"registered"`
	InFlight   int `json:"in_flight"`
	Parked     int `json:"parked"`
	Timers     int `json:"timers"`
	Ready      int `json:"ready"`
}
