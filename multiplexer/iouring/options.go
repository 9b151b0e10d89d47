// File: multiplexer/iouring/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package iouring

import (
	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
)

// TypeID identifies the io_uring multiplexer.
var TypeID = api.NewTypeID("io_uring_multiplexer")

// DefaultEntries is the submission queue size used when none is given.
const DefaultEntries = 256

// Options configure New.
type Options struct {
	// Entries is the requested submission queue size; the kernel rounds it
	// up to a power of two.
	Entries uint32
	// MaxOperations caps concurrently in-flight operations. Zero means the
	// submission queue size.
	MaxOperations int
	// EnableConcurrentSubmission guards the submission side so several
	// goroutines may start and cancel operations at once.
	EnableConcurrentSubmission bool
	// EnableConcurrentCompletion guards the completion side so several
	// goroutines may poll at once.
	EnableConcurrentCompletion bool
	// Hooks supplies allocation, logging and unrecoverable error handling.
	Hooks *api.Hooks
	// Counters, if set, receives lifecycle counts.
	Counters *control.Counters
}

// Stats is a point-in-time view of the multiplexer, exported as a debug
// probe.
type Stats struct {
	SubmissionEntries uint32 `json:"sq_entries"`
	CompletionEntries uint32 `json:"cq_entries"`
	Capacity          int    `json:"capacity"`
	InFlight          int    `json:"in_flight"`
	PendingSubmit     uint32 `json:"pending_submit"`
	ExtArg            bool   `json:"ext_arg"`
}
