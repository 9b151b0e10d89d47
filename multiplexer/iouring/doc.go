// File: multiplexer/iouring/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package iouring implements the reference multiplexer on Linux io_uring.
//
// The rings are set up and mapped directly with io_uring_setup(2) and
// driven with io_uring_enter(2); no helper library is involved. Every
// in-flight operation occupies one slot of a fixed table sized by
// Options.MaxOperations, and a start with no free slot reports
// api.ErrTooManyConcurrentAsyncOperations.
//
// Deadlines are attached as linked timeouts. Cancellation submits an
// async-cancel entry; the cancelled operation still completes through its
// notify path. Creation, close, signal, reset and timer arming are marked
// synchronous and never reach the ring.
//
// On other platforms New reports api.ErrUnsupportedOperation.
package iouring
