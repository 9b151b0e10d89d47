//go:build linux
// +build linux

// File: multiplexer/epoll/multiplexer_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness multiplexer: every pollable handle is registered edge
// triggered once; operations park on their handle until it polls ready.

package epoll

import (
	"syscall"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
	"github.com/momentics/allio/internal/concurrency"
	"github.com/momentics/allio/object"
)

const registerEvents = unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET

// connector is the registration of one descriptor.
type connector struct {
	fd      int
	readers []*entry
	writers []*entry
}

type result struct {
	n     int
	value any
	err   error
}

// attempt performs one nonblocking try. unix.EAGAIN parks the entry.
type attempt func(e *entry) (result, error)

// entry is the epoll bookkeeping of one operation.
type entry struct {
	op      *api.Operation
	conn    *connector
	step    api.StepDeadline
	heapIdx int
	write   bool
	try     attempt
	started bool
	parked  bool
	queued  bool
	result  result
}

func (e *entry) Deadline() api.Deadline { return e.step.Deadline() }
func (e *entry) SetTimerIndex(i int)    { e.heapIdx = i }
func (e *entry) TimerIndex() int        { return e.heapIdx }

// Multiplexer is an epoll backed api.Multiplexer. It must be driven by one
// goroutine at a time; wrap it in the synchronized decorator otherwise.
type Multiplexer struct {
	epfd     int
	hooks    *api.Hooks
	counters *control.Counters
	maxOps   int

	events   []unix.EpollEvent
	conns    map[int32]*connector
	timers   concurrency.TimerHeap
	ready    *concurrency.CompletionRing[*entry]
	inFlight int
	closed   bool
}

var _ api.Multiplexer = (*Multiplexer)(nil)

// New creates an epoll instance.
func New(opts Options) (*Multiplexer, error) {
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = DefaultMaxEvents
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.NewSystemError("epoll_create1", err)
	}
	m := &Multiplexer{
		epfd:     epfd,
		hooks:    opts.Hooks.WithDefaults(),
		counters: opts.Counters,
		maxOps:   opts.MaxOperations,
		events:   make([]unix.EpollEvent, opts.MaxEvents),
		conns:    make(map[int32]*connector),
		ready:    concurrency.NewCompletionRing[*entry](opts.MaxEvents),
	}
	m.log().Info().
		Int("max_events", opts.MaxEvents).
		Int("max_operations", opts.MaxOperations).
		Log("epoll multiplexer ready")
	return m, nil
}

// Available reports whether epoll can be used.
func Available() bool { return true }

func (m *Multiplexer) log() *logiface.Logger[logiface.Event] { return m.hooks.Log() }

func (m *Multiplexer) TypeID() api.TypeID { return TypeID }

func (m *Multiplexer) Hooks() *api.Hooks { return m.hooks }

func (m *Multiplexer) FindHandleRelation(handleType api.TypeID) (*api.Relation, error) {
	return Relations.Find(handleType)
}

// Stats reports registrations and operation queues.
func (m *Multiplexer) Stats() Stats {
	parked := 0
	for _, c := range m.conns {
		parked += len(c.readers) + len(c.writers)
	}
	return Stats{
		Registered: len(m.conns),
		InFlight:   m.inFlight,
		Parked:     parked,
		Timers:     m.timers.Len(),
		Ready:      m.ready.Len(),
	}
}

// register adds a pollable descriptor to the interest set.
func (m *Multiplexer) register(h api.NativeHandle) (api.Connector, error) {
	if h.Flags&api.FlagPollable == 0 {
		return nil, nil
	}
	if m.closed {
		return nil, api.ErrInvalidArgument
	}
	c := &connector{fd: h.Fd()}
	ev := unix.EpollEvent{Events: registerEvents, Fd: int32(c.fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, c.fd, &ev); err != nil {
		return nil, api.NewSystemError("epoll_ctl add", err)
	}
	m.conns[int32(c.fd)] = c
	m.log().Trace().Int("fd", c.fd).Log("epoll registered")
	return c, nil
}

// deregister removes the descriptor; operations parked on it complete as
// cancelled.
func (m *Multiplexer) deregister(_ api.NativeHandle, conn api.Connector) error {
	c, ok := conn.(*connector)
	if !ok || c == nil {
		return nil
	}
	m.abandon(c, api.ErrAsyncOperationCancelled)
	delete(m.conns, int32(c.fd))
	if m.closed {
		return nil
	}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, c.fd, nil); err != nil && err != unix.ENOENT {
		return api.NewSystemError("epoll_ctl del", err)
	}
	m.log().Trace().Int("fd", c.fd).Log("epoll deregistered")
	return nil
}

func (m *Multiplexer) Construct(desc *api.OperationDescriptor, op *api.Operation) error {
	if desc == nil || desc.Synchronous || desc.Start == nil {
		return api.ErrUnsupportedAsynchronousOperation
	}
	if op.State() == api.StateSubmitted {
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
	if m.closed || op.State() != api.StateConstructed {
		return api.ErrInvalidArgument
	}
	if m.maxOps > 0 && m.inFlight >= m.maxOps {
		m.counters.OnReject()
		m.log().Debug().Int("capacity", m.maxOps).Log("epoll operation capacity exhausted")
		return api.ErrTooManyConcurrentAsyncOperations
	}
	op.SetState(api.StateSubmitted)
	m.inFlight++
	m.counters.OnStart()
	if err := op.Descriptor.Start(m, op); err != nil {
		m.inFlight--
		op.SetState(api.StateConstructed)
		return err
	}
	return nil
}

func (m *Multiplexer) ConstructAndStart(desc *api.OperationDescriptor, op *api.Operation) error {
	if err := m.Construct(desc, op); err != nil {
		return err
	}
	return m.Start(op)
}

// Cancel unparks op; it completes as cancelled on the next Poll. An op
// whose result is already queued keeps it.
func (m *Multiplexer) Cancel(op *api.Operation) error {
	e, ok := op.Backend.(*entry)
	if !ok || op.State() != api.StateSubmitted {
		return api.ErrAsyncOperationNotInProgress
	}
	if !op.RequestCancel() {
		if op.Done() {
			return api.ErrAsyncOperationNotInProgress
		}
		return nil
	}
	if e.queued {
		return nil
	}
	m.unpark(e)
	m.complete(e, result{err: api.ErrAsyncOperationCancelled})
	return nil
}

// Submit is a no-op: operations are attempted as they start.
func (m *Multiplexer) Submit(api.Deadline) error { return nil }

// Poll delivers completed operations, waiting up to d for readiness or an
// operation deadline when none are queued. With nothing in flight and no
// bound it returns ErrAsyncOperationNotInProgress rather than block.
func (m *Multiplexer) Poll(d api.Deadline) error {
	if m.deliver() > 0 {
		return nil
	}
	step := api.NewStepDeadline(d)
	for {
		cur, err := step.Step()
		if err != nil {
			return err
		}
		if cur.IsNever() && m.inFlight == 0 {
			return api.ErrAsyncOperationNotInProgress
		}
		now := time.Now()
		wake := cur.Earliest(m.timers.Earliest(), now)
		n, err := unix.EpollWait(m.epfd, m.events, wake.Milliseconds(now))
		if err != nil && err != unix.EINTR {
			return api.NewSystemError("epoll_wait", err)
		}
		for i := 0; i < n; i++ {
			m.dispatch(m.events[i])
		}
		m.expire(time.Now())
		if m.deliver() > 0 || cur.IsInstant() {
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

// Close completes every in-flight operation as cancelled and closes the
// epoll instance.
func (m *Multiplexer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	for _, c := range m.conns {
		m.abandon(c, api.ErrAsyncOperationCancelled)
	}
	m.deliver()
	if err := unix.Close(m.epfd); err != nil {
		return api.NewSystemError("epoll close", err)
	}
	m.log().Info().Log("epoll multiplexer closed")
	return nil
}

// dispatch retries the operations parked on a ready descriptor.
func (m *Multiplexer) dispatch(ev unix.EpollEvent) {
	c := m.conns[ev.Fd]
	if c == nil {
		return
	}
	if ev.Events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		m.retry(&c.readers)
	}
	if ev.Events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		m.retry(&c.writers)
	}
}

func (m *Multiplexer) retry(list *[]*entry) {
	parked := *list
	*list = nil
	for _, e := range parked {
		e.parked = false
		m.attempt(e)
	}
}

// expire times out parked operations whose deadline passed.
func (m *Multiplexer) expire(now time.Time) {
	for _, t := range m.timers.Expired(now) {
		e := t.(*entry)
		m.unpark(e)
		m.complete(e, result{err: api.ErrAsyncOperationTimedOut})
	}
}

// attempt tries e once, parking it on EAGAIN.
func (m *Multiplexer) attempt(e *entry) {
	if e.op.CancelRequested() {
		m.complete(e, result{err: api.ErrAsyncOperationCancelled})
		return
	}
	for {
		r, err := e.try(e)
		switch err {
		case nil:
			m.complete(e, r)
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			m.park(e)
		default:
			m.complete(e, result{err: failure(e.op, err)})
		}
		return
	}
}

func (m *Multiplexer) park(e *entry) {
	cur, err := e.step.Step()
	if err != nil || cur.IsInstant() {
		m.complete(e, result{err: api.ErrAsyncOperationTimedOut})
		return
	}
	if e.conn == nil {
		m.complete(e, result{err: api.ErrHandleIsNotMultiplexable})
		return
	}
	if e.write {
		e.conn.writers = append(e.conn.writers, e)
	} else {
		e.conn.readers = append(e.conn.readers, e)
	}
	e.parked = true
	if !cur.IsNever() {
		m.timers.Add(e)
	}
}

func (m *Multiplexer) unpark(e *entry) {
	m.timers.Remove(e)
	if !e.parked || e.conn == nil {
		return
	}
	e.parked = false
	list := &e.conn.readers
	if e.write {
		list = &e.conn.writers
	}
	for i, x := range *list {
		if x == e {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

// abandon completes every operation parked on c with err.
func (m *Multiplexer) abandon(c *connector, err error) {
	parked := append(c.readers, c.writers...)
	c.readers, c.writers = nil, nil
	for _, e := range parked {
		e.parked = false
		m.complete(e, result{err: err})
	}
}

// complete queues the result; deliver notifies it.
func (m *Multiplexer) complete(e *entry, r result) {
	m.timers.Remove(e)
	e.result, e.queued = r, true
	m.ready.Push(e)
}

// deliver notifies queued operations in completion order.
func (m *Multiplexer) deliver() int {
	n := 0
	for {
		e, ok := m.ready.Pop()
		if !ok {
			return n
		}
		m.inFlight--
		r := e.result
		e.op.Descriptor.Notify(m, e.op, api.Completion{Result: int64(r.n), Err: r.err})
		n++
	}
}

func (m *Multiplexer) finish(e *entry) {
	r := e.result
	m.counters.OnComplete(r.err)
	e.op.Complete(r.n, r.value, r.err)
}

// failure wraps a raw errno with the operation name.
func failure(op *api.Operation, err error) error {
	if errno, ok := err.(syscall.Errno); ok {
		return api.NewSystemError(object.OperationName(op.Descriptor.Operation), errno)
	}
	return err
}
