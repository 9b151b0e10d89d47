//go:build linux
// +build linux

// File: multiplexer/iouring/multiplexer_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multiplexer driving one io_uring instance: operation slots, linked
// timeouts, cancellation and completion dispatch.

package iouring

import (
	"sync"
	"syscall"
	"unsafe"

	"github.com/joeycumines/logiface"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
	"github.com/momentics/allio/object"
)

// user_data layout: kind in the high word, slot index + 1 in the low word.
const (
	kindOp uint64 = iota
	kindTimeout
	kindCancel
	kindPollTimeout
)

func userData(kind uint64, index uint32) uint64 { return kind<<32 | uint64(index+1) }

type locker interface {
	Lock()
	Unlock()
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// slot is the per-operation storage the kernel may reference while the
// operation is in flight. Slots live in a fixed slice and never move.
type slot struct {
	index   uint32
	op      *api.Operation
	step    api.StepDeadline
	ts      kernelTimespec
	addr    []byte
	addrLen uint32
	// polling is set while a readiness poll stands in for the operation.
	polling bool
}

// Multiplexer is an io_uring backed api.Multiplexer. Without the
// concurrency options it must be driven by one goroutine at a time.
type Multiplexer struct {
	ring     *ring
	hooks    *api.Hooks
	counters *control.Counters
	extArg   bool

	sqMu   locker
	cqMu   locker
	slotMu locker

	slots    []slot
	free     []uint32
	inFlight int

	// Wait arguments; guarded by cqMu.
	pollTs  kernelTimespec
	waitTs  kernelTimespec
	waitArg getEventsArg

	closed atomic.Bool
}

var _ api.Multiplexer = (*Multiplexer)(nil)

// New sets up an io_uring instance.
func New(opts Options) (*Multiplexer, error) {
	if opts.Entries == 0 {
		opts.Entries = DefaultEntries
	}
	r, err := newRing(opts.Entries)
	if err != nil {
		return nil, api.NewSystemError("io_uring_setup", err)
	}
	capacity := opts.MaxOperations
	if capacity <= 0 {
		capacity = int(r.sqEntries)
	}
	m := &Multiplexer{
		ring:     r,
		hooks:    opts.Hooks.WithDefaults(),
		counters: opts.Counters,
		extArg:   r.features&featExtArg != 0,
		sqMu:     nopLocker{},
		cqMu:     nopLocker{},
		slotMu:   nopLocker{},
		slots:    make([]slot, capacity),
		free:     make([]uint32, 0, capacity),
	}
	if opts.EnableConcurrentSubmission {
		m.sqMu = new(sync.Mutex)
	}
	if opts.EnableConcurrentCompletion {
		m.cqMu = new(sync.Mutex)
	}
	if opts.EnableConcurrentSubmission || opts.EnableConcurrentCompletion {
		m.slotMu = new(sync.Mutex)
	}
	for i := capacity - 1; i >= 0; i-- {
		m.slots[i].index = uint32(i)
		m.free = append(m.free, uint32(i))
	}
	m.log().Info().
		Uint64("sq_entries", uint64(r.sqEntries)).
		Uint64("cq_entries", uint64(r.cqEntries)).
		Int("capacity", capacity).
		Bool("ext_arg", m.extArg).
		Log("io_uring multiplexer ready")
	return m, nil
}

// Available reports whether the running kernel permits io_uring.
func Available() bool {
	r, err := newRing(4)
	if err != nil {
		return false
	}
	_ = r.close()
	return true
}

func (m *Multiplexer) log() *logiface.Logger[logiface.Event] { return m.hooks.Log() }

func (m *Multiplexer) TypeID() api.TypeID { return TypeID }

func (m *Multiplexer) Hooks() *api.Hooks { return m.hooks }

func (m *Multiplexer) FindHandleRelation(handleType api.TypeID) (*api.Relation, error) {
	return Relations.Find(handleType)
}

// Stats returns a snapshot for debug probes.
func (m *Multiplexer) Stats() Stats {
	m.slotMu.Lock()
	inFlight := m.inFlight
	m.slotMu.Unlock()
	return Stats{
		SubmissionEntries: m.ring.sqEntries,
		CompletionEntries: m.ring.cqEntries,
		Capacity:          len(m.slots),
		InFlight:          inFlight,
		PendingSubmit:     m.ring.unsubmitted(),
		ExtArg:            m.extArg,
	}
}

func (m *Multiplexer) Construct(desc *api.OperationDescriptor, op *api.Operation) error {
	if desc == nil || desc.Synchronous || desc.Start == nil {
		return api.ErrUnsupportedAsynchronousOperation
	}
	if st := op.State(); st == api.StateSubmitted {
		return api.ErrInvalidArgument
	}
	op.Descriptor = desc
	if desc.Construct != nil {
		if err := desc.Construct(m, op); err != nil {
			return err
		}
	}
	op.SetState(api.StateConstructed)
	return nil
}

func (m *Multiplexer) Start(op *api.Operation) error {
	if m.closed.Load() {
		return api.ErrInvalidArgument
	}
	if op.State() != api.StateConstructed {
		return api.ErrInvalidArgument
	}
	s := m.acquire(op)
	if s == nil {
		m.counters.OnReject()
		m.log().Debug().
			Int("capacity", len(m.slots)).
			Log("io_uring operation slots exhausted")
		return api.ErrTooManyConcurrentAsyncOperations
	}
	op.SetState(api.StateSubmitted)
	if err := op.Descriptor.Start(m, op); err != nil {
		m.release(s)
		op.SetState(api.StateConstructed)
		return err
	}
	m.counters.OnStart()
	return nil
}

func (m *Multiplexer) ConstructAndStart(desc *api.OperationDescriptor, op *api.Operation) error {
	if err := m.Construct(desc, op); err != nil {
		return err
	}
	return m.Start(op)
}

// Cancel submits an async cancel for op. The op still completes through
// its notify path, with ErrAsyncOperationCancelled unless it finished first.
func (m *Multiplexer) Cancel(op *api.Operation) error {
	s, ok := op.Backend.(*slot)
	if !ok || op.State() != api.StateSubmitted {
		return api.ErrAsyncOperationNotInProgress
	}
	if !op.RequestCancel() {
		if op.Done() {
			return api.ErrAsyncOperationNotInProgress
		}
		return nil
	}
	if desc := op.Descriptor; desc != nil && desc.Cancel != nil {
		return desc.Cancel(m, op)
	}
	return m.cancelSlot(s)
}

func (m *Multiplexer) cancelSlot(s *slot) error {
	m.sqMu.Lock()
	defer m.sqMu.Unlock()
	if err := m.reserveLocked(1); err != nil {
		return err
	}
	e := m.ring.next()
	e.Opcode = opAsyncCancel
	e.Fd = -1
	e.Addr = userData(kindOp, s.index)
	e.UserData = userData(kindCancel, s.index)
	m.ring.flush()
	m.log().Debug().Int("slot", int(s.index)).Log("io_uring cancel requested")
	return nil
}

// Submit hands published entries to the kernel without waiting.
func (m *Multiplexer) Submit(api.Deadline) error {
	m.sqMu.Lock()
	defer m.sqMu.Unlock()
	return m.submitLocked()
}

func (m *Multiplexer) submitLocked() error {
	for n := m.ring.unsubmitted(); n > 0; n = m.ring.unsubmitted() {
		if _, err := m.ring.enter(n, 0, 0, nil, 0); err != nil {
			if err == unix.EINTR {
				continue
			}
			return api.NewSystemError("io_uring_enter", err)
		}
	}
	return nil
}

// Poll reaps completions, waiting up to d when none are ready. With
// nothing in flight and no bound it returns ErrAsyncOperationNotInProgress.
func (m *Multiplexer) Poll(d api.Deadline) error {
	m.cqMu.Lock()
	defer m.cqMu.Unlock()
	if m.dispatch() > 0 {
		return nil
	}
	if d.IsInstant() {
		// A non-waiting enter runs deferred completion work.
		m.sqMu.Lock()
		toSubmit := m.ring.unsubmitted()
		m.sqMu.Unlock()
		if _, err := m.ring.enter(toSubmit, 0, enterGetEvents, nil, 0); m.waitError(err) != nil {
			return m.waitError(err)
		}
		m.dispatch()
		return nil
	}
	step := api.NewStepDeadline(d)
	for {
		cur, err := step.Step()
		if err != nil {
			return err
		}
		if cur.IsNever() && m.Stats().InFlight == 0 {
			return api.ErrAsyncOperationNotInProgress
		}
		if err := m.wait(cur); err != nil {
			if m.dispatch() > 0 {
				return nil
			}
			return err
		}
		if m.dispatch() > 0 {
			return nil
		}
	}
}

func (m *Multiplexer) SubmitAndPoll(d api.Deadline) error {
	if err := m.Submit(d); err != nil {
		return err
	}
	return m.Poll(d)
}

// wait blocks in io_uring_enter for one completion or until cur elapses.
func (m *Multiplexer) wait(cur api.Deadline) error {
	m.sqMu.Lock()
	toSubmit := m.ring.unsubmitted()
	m.sqMu.Unlock()
	flags := uintptr(enterGetEvents)
	if !cur.IsNever() {
		left := cur.Duration()
		if m.extArg {
			m.waitTs = kernelTimespec{Sec: int64(left / 1e9), Nsec: int64(left % 1e9)}
			m.waitArg = getEventsArg{Ts: uint64(uintptr(unsafe.Pointer(&m.waitTs)))}
			_, err := m.ring.enter(toSubmit, 1, flags|enterExtArg,
				unsafe.Pointer(&m.waitArg), unsafe.Sizeof(m.waitArg))
			return m.waitError(err)
		}
		if err := m.armPollTimeout(left.Nanoseconds()); err != nil {
			return err
		}
		toSubmit++
	}
	_, err := m.ring.enter(toSubmit, 1, flags, nil, 0)
	return m.waitError(err)
}

func (m *Multiplexer) waitError(err error) error {
	switch err {
	case nil:
		return nil
	case unix.ETIME:
		return api.ErrAsyncOperationTimedOut
	case unix.EINTR, unix.EAGAIN, unix.EBUSY:
		return nil
	}
	return api.NewSystemError("io_uring_enter", err)
}

// armPollTimeout queues a standalone timeout entry, the pre-5.11 way to
// bound a wait.
func (m *Multiplexer) armPollTimeout(ns int64) error {
	m.sqMu.Lock()
	defer m.sqMu.Unlock()
	if err := m.reserveLocked(1); err != nil {
		return err
	}
	m.pollTs = kernelTimespec{Sec: ns / 1e9, Nsec: ns % 1e9}
	e := m.ring.next()
	e.Opcode = opTimeout
	e.Fd = -1
	e.Addr = uint64(uintptr(unsafe.Pointer(&m.pollTs)))
	e.Len = 1
	e.Off = 1
	e.UserData = userData(kindPollTimeout, 0)
	m.ring.flush()
	return nil
}

// dispatch drains the completion queue and returns the number of
// operations completed.
func (m *Multiplexer) dispatch() int {
	var (
		batch [64]cqe
		done  int
	)
	for {
		n := m.ring.reap(batch[:])
		for i := 0; i < n; i++ {
			c := batch[i]
			if c.UserData>>32 != kindOp {
				if c.UserData>>32 == kindPollTimeout {
					continue
				}
				m.log().Trace().
					Uint64("user_data", c.UserData).
					Int64("res", int64(c.Res)).
					Log("io_uring auxiliary completion")
				continue
			}
			idx := uint32(c.UserData) - 1
			if int(idx) >= len(m.slots) {
				continue
			}
			if m.deliver(&m.slots[idx], c) {
				done++
			}
		}
		if n < len(batch) {
			return done
		}
	}
}

// deliver routes one completion to its slot, reporting whether the
// operation completed.
func (m *Multiplexer) deliver(s *slot, c cqe) bool {
	op := s.op
	if op == nil {
		return false
	}
	if s.polling {
		s.polling = false
		if c.Res >= 0 {
			if op.CancelRequested() {
				m.finish(s, 0, nil, api.ErrAsyncOperationCancelled)
				return true
			}
			if err := op.Descriptor.Start(m, op); err != nil {
				m.finish(s, 0, nil, err)
				return true
			}
			return false
		}
	}
	op.Descriptor.Notify(m, op, api.Completion{Result: int64(c.Res), Flags: c.Flags})
	return op.Done()
}

func (m *Multiplexer) acquire(op *api.Operation) *slot {
	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	if len(m.free) == 0 {
		return nil
	}
	idx := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]
	m.inFlight++
	s := &m.slots[idx]
	s.op = op
	s.step = api.NewStepDeadline(op.Deadline)
	op.Backend = s
	return s
}

func (m *Multiplexer) release(s *slot) {
	if s.addr != nil {
		m.hooks.Release(s.addr)
	}
	if s.op != nil {
		s.op.Backend = nil
	}
	idx := s.index
	*s = slot{index: idx}
	m.slotMu.Lock()
	m.free = append(m.free, idx)
	m.inFlight--
	m.slotMu.Unlock()
}

// finish frees the slot, then completes the operation.
func (m *Multiplexer) finish(s *slot, n int, value any, err error) {
	op := s.op
	m.release(s)
	m.counters.OnComplete(err)
	op.Complete(n, value, err)
}

// reserveLocked makes room for n entries, flushing to the kernel if needed.
func (m *Multiplexer) reserveLocked(n uint32) error {
	if m.ring.space() >= n {
		return nil
	}
	if err := m.submitLocked(); err != nil {
		return err
	}
	if m.ring.space() < n {
		return api.ErrTooManyConcurrentAsyncOperations
	}
	return nil
}

// push prepares the slot's entry with fill, linking a timeout when the
// operation carries a deadline.
func (m *Multiplexer) push(s *slot, fill func(e *sqe)) error {
	timed := !s.op.Deadline.IsNever()
	need := uint32(1)
	if timed {
		need = 2
		step, _ := s.step.Step()
		left := step.Duration()
		s.ts = kernelTimespec{Sec: int64(left / 1e9), Nsec: int64(left % 1e9)}
	}
	m.sqMu.Lock()
	defer m.sqMu.Unlock()
	if err := m.reserveLocked(need); err != nil {
		return err
	}
	e := m.ring.next()
	fill(e)
	e.UserData = userData(kindOp, s.index)
	if timed {
		e.Flags |= sqeIOLink
		t := m.ring.next()
		t.Opcode = opLinkTimeout
		t.Fd = -1
		t.Addr = uint64(uintptr(unsafe.Pointer(&s.ts)))
		t.Len = 1
		t.UserData = userData(kindTimeout, s.index)
	}
	m.ring.flush()
	return nil
}

// awaitReadiness parks the operation behind a poll; on readiness it is
// started again.
func (m *Multiplexer) awaitReadiness(s *slot, events uint32) {
	if s.op.CancelRequested() {
		m.finish(s, 0, nil, api.ErrAsyncOperationCancelled)
		return
	}
	s.polling = true
	if err := m.push(s, func(e *sqe) { preparePoll(e, s.op.Native.Fd(), events) }); err != nil {
		s.polling = false
		m.finish(s, 0, nil, err)
	}
}

// failure maps a negative completion result to an error.
func failure(op *api.Operation, res int32) error {
	errno := syscall.Errno(-res)
	switch errno {
	case unix.ECANCELED, unix.EINTR:
		if op.CancelRequested() {
			return api.ErrAsyncOperationCancelled
		}
		return api.ErrAsyncOperationTimedOut
	case unix.ETIME:
		return api.ErrAsyncOperationTimedOut
	}
	return api.NewSystemError(object.OperationName(op.Descriptor.Operation), errno)
}

// Close completes every in-flight operation as cancelled and tears the
// ring down.
func (m *Multiplexer) Close() error {
	if !m.closed.CAS(false, true) {
		return nil
	}
	m.cqMu.Lock()
	defer m.cqMu.Unlock()
	for i := range m.slots {
		if s := &m.slots[i]; s.op != nil {
			m.finish(s, 0, nil, api.ErrAsyncOperationCancelled)
		}
	}
	if err := m.ring.close(); err != nil {
		return api.NewSystemError("io_uring close", err)
	}
	m.log().Info().Log("io_uring multiplexer closed")
	return nil
}
