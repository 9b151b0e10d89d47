//go:build linux
// +build linux

// File: multiplexer/iouring/ring_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ring setup, mapping, submission queue entry allocation and
// io_uring_enter. Callers provide locking.

package iouring

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

type ring struct {
	fd       int
	features uint32

	sqMem, cqMem, sqesMem []byte

	sqHead    *uint32
	sqTail    *uint32
	sqMask    uint32
	sqEntries uint32
	sqArray   []uint32
	sqes      []sqe

	cqHead    *uint32
	cqTail    *uint32
	cqMask    uint32
	cqEntries uint32
	cqes      []cqe

	// tail is the local submission tail, published on flush.
	tail uint32
}

func alignUp(v, alignment uint32) uint32 {
	return (v + alignment - 1) &^ (alignment - 1)
}

func newRing(entries uint32) (*ring, error) {
	var p params
	p.Flags = setupClamp
	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(entries), uintptr(unsafe.Pointer(&p)), 0)
	if errno != 0 {
		return nil, errno
	}
	r := &ring{fd: int(fd), features: p.Features}
	if err := r.mapRings(&p); err != nil {
		r.close()
		return nil, err
	}
	return r, nil
}

func (r *ring) mapRings(p *params) error {
	pageSize := uint32(unix.Getpagesize())
	sqSize := alignUp(p.SQOff.Array+p.SQEntries*4, pageSize)
	cqSize := alignUp(p.CQOff.CQEs+p.CQEntries*cqeSize, pageSize)
	sqesSize := alignUp(p.SQEntries*sqeSize, pageSize)

	var err error
	const prot, flags = unix.PROT_READ | unix.PROT_WRITE, unix.MAP_SHARED | unix.MAP_POPULATE
	if r.sqMem, err = unix.Mmap(r.fd, offSQRing, int(sqSize), prot, flags); err != nil {
		return err
	}
	if r.cqMem, err = unix.Mmap(r.fd, offCQRing, int(cqSize), prot, flags); err != nil {
		return err
	}
	if r.sqesMem, err = unix.Mmap(r.fd, offSQEs, int(sqesSize), prot, flags); err != nil {
		return err
	}

	sq := unsafe.Pointer(&r.sqMem[0])
	r.sqHead = (*uint32)(unsafe.Add(sq, p.SQOff.Head))
	r.sqTail = (*uint32)(unsafe.Add(sq, p.SQOff.Tail))
	r.sqMask = *(*uint32)(unsafe.Add(sq, p.SQOff.RingMask))
	r.sqEntries = *(*uint32)(unsafe.Add(sq, p.SQOff.RingEntries))
	r.sqArray = unsafe.Slice((*uint32)(unsafe.Add(sq, p.SQOff.Array)), p.SQEntries)
	r.sqes = unsafe.Slice((*sqe)(unsafe.Pointer(&r.sqesMem[0])), p.SQEntries)
	r.tail = atomic.LoadUint32(r.sqTail)

	cq := unsafe.Pointer(&r.cqMem[0])
	r.cqHead = (*uint32)(unsafe.Add(cq, p.CQOff.Head))
	r.cqTail = (*uint32)(unsafe.Add(cq, p.CQOff.Tail))
	r.cqMask = *(*uint32)(unsafe.Add(cq, p.CQOff.RingMask))
	r.cqEntries = *(*uint32)(unsafe.Add(cq, p.CQOff.RingEntries))
	r.cqes = unsafe.Slice((*cqe)(unsafe.Add(cq, p.CQOff.CQEs)), p.CQEntries)
	return nil
}

// space returns the number of free submission entries.
func (r *ring) space() uint32 {
	return r.sqEntries - (r.tail - atomic.LoadUint32(r.sqHead))
}

// next returns a zeroed entry at the local tail. The caller checked space.
func (r *ring) next() *sqe {
	idx := r.tail & r.sqMask
	e := &r.sqes[idx]
	*e = sqe{}
	r.sqArray[idx] = idx
	r.tail++
	return e
}

// flush publishes locally prepared entries to the kernel.
func (r *ring) flush() {
	atomic.StoreUint32(r.sqTail, r.tail)
}

// unsubmitted returns the entries published but not yet consumed.
func (r *ring) unsubmitted() uint32 {
	return atomic.LoadUint32(r.sqTail) - atomic.LoadUint32(r.sqHead)
}

// enter wraps io_uring_enter, retrying on EINTR only when nothing was
// submitted.
func (r *ring) enter(toSubmit, minComplete uint32, flags uintptr, arg unsafe.Pointer, argSize uintptr) (uint32, error) {
	for {
		n, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd),
			uintptr(toSubmit), uintptr(minComplete), flags, uintptr(arg), argSize)
		if errno == unix.EINTR && toSubmit == 0 {
			continue
		}
		if errno != 0 {
			return 0, errno
		}
		return uint32(n), nil
	}
}

// reap copies up to len(out) completions and releases their ring entries.
func (r *ring) reap(out []cqe) int {
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)
	n := 0
	for head != tail && n < len(out) {
		out[n] = r.cqes[head&r.cqMask]
		head++
		n++
	}
	if n > 0 {
		atomic.StoreUint32(r.cqHead, head)
	}
	return n
}

// ready reports whether completions are waiting.
func (r *ring) ready() bool {
	return atomic.LoadUint32(r.cqHead) != atomic.LoadUint32(r.cqTail)
}

func (r *ring) close() error {
	var first error
	for _, m := range [][]byte{r.sqesMem, r.cqMem, r.sqMem} {
		if m != nil {
			if err := unix.Munmap(m); err != nil && first == nil {
				first = err
			}
		}
	}
	r.sqesMem, r.cqMem, r.sqMem = nil, nil, nil
	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil && first == nil {
			first = err
		}
		r.fd = -1
	}
	return first
}
