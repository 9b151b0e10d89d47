// File: api/sync.go
// Author: momentics <momentics@gmail.com>
//
// Assertion-based guard for resources used sequentially from several
// goroutines but never concurrently.

package api

import (
	"fmt"

	"go.uber.org/atomic"
)

// ExternallySynchronized asserts that a resource is never used by two
// goroutines at the same time. It does not block: overlapping Acquire calls
// panic. The zero value is ready for use.
type ExternallySynchronized struct {
	owner atomic.Uint64
	next  atomic.Uint64
}

// Acquire marks the resource as in use and returns the matching release
// function.
func (x *ExternallySynchronized) Acquire() (release func()) {
	token := x.next.Add(1)
	if !x.owner.CAS(0, token) {
		panic(fmt.Sprintf("allio: concurrent use of externally synchronized resource (owner %d, caller %d)", x.owner.Load(), token))
	}
	return func() {
		if !x.owner.CAS(token, 0) {
			panic("allio: externally synchronized resource released by non-owner")
		}
	}
}

// InUse reports whether the resource is currently acquired.
func (x *ExternallySynchronized) InUse() bool { return x.owner.Load() != 0 }
