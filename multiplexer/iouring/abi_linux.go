//go:build linux
// +build linux

// File: multiplexer/iouring/abi_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Kernel ABI of io_uring: opcodes, flags and the shared structures.

package iouring

import (
	"fmt"
	"unsafe"
)

const (
	opNop           = 0
	opPollAdd       = 6
	opTimeout       = 11
	opAccept        = 13
	opAsyncCancel   = 14
	opLinkTimeout   = 15
	opConnect       = 16
	opRead          = 22
	opWrite         = 23
	opSend          = 26
	opRecv          = 27
	setupClamp      = 1 << 4
	enterGetEvents  = 1 << 0
	enterExtArg     = 1 << 3
	sqeIOLink       = 1 << 2
	featExtArg      = 1 << 8
	offSQRing       = 0
	offCQRing       = 0x8000000
	offSQEs         = 0x10000000
	sqeSize         = 64
	cqeSize         = 16
	paramsSize      = 120
	currentPosition = ^uint64(0)
)

type sqRingOffsets struct {
	Head        uint32
	Tail        uint32
	RingMask    uint32
	RingEntries uint32
	Flags       uint32
	Dropped     uint32
	Array       uint32
	Resv1       uint32
	UserAddr    uint64
}

type cqRingOffsets struct {
	Head        uint32
	Tail        uint32
	RingMask    uint32
	RingEntries uint32
	Overflow    uint32
	CQEs        uint32
	Flags       uint32
	Resv1       uint32
	UserAddr    uint64
}

type params struct {
	SQEntries    uint32
	CQEntries    uint32
	Flags        uint32
	SQThreadCPU  uint32
	SQThreadIdle uint32
	Features     uint32
	WQFd         uint32
	Resv         [3]uint32
	SQOff        sqRingOffsets
	CQOff        cqRingOffsets
}

// sqe is struct io_uring_sqe. Off doubles as addr2; OpFlags holds the
// per-opcode flags union (poll32_events, accept_flags, timeout_flags...).
type sqe struct {
	Opcode      uint8
	Flags       uint8
	IOPrio      uint16
	Fd          int32
	Off         uint64
	Addr        uint64
	Len         uint32
	OpFlags     uint32
	UserData    uint64
	BufIndex    uint16
	Personality uint16
	SpliceFdIn  int32
	Addr3       uint64
	_           uint64
}

type cqe struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

// kernelTimespec is struct __kernel_timespec.
type kernelTimespec struct {
	Sec  int64
	Nsec int64
}

// getEventsArg is struct io_uring_getevents_arg.
type getEventsArg struct {
	Sigmask   uint64
	SigmaskSz uint32
	Pad       uint32
	Ts        uint64
}

func init() {
	if sz := unsafe.Sizeof(sqe{}); sz != sqeSize {
		panic(fmt.Sprintf("iouring: sqe size %d, want %d", sz, sqeSize))
	}
	if sz := unsafe.Sizeof(cqe{}); sz != cqeSize {
		panic(fmt.Sprintf("iouring: cqe size %d, want %d", sz, cqeSize))
	}
	if sz := unsafe.Sizeof(params{}); sz != paramsSize {
		panic(fmt.Sprintf("iouring: params size %d, want %d", sz, paramsSize))
	}
}
