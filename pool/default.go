// File: pool/default.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

var (
	defaultOnce sync.Once
	defaultPool *Allocator
)

// Default returns a process-wide allocator with the default classes, so
// every multiplexer of a process shares one set of slabs.
func Default() *Allocator {
	defaultOnce.Do(func() {
		defaultPool = New(Config{})
	})
	return defaultPool
}
