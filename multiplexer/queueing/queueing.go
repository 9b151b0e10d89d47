// File: multiplexer/queueing/queueing.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package queueing decorates a multiplexer with an unbounded FIFO of
// operations deferred while the inner multiplexer is at capacity.

package queueing

import (
	"errors"

	"github.com/eapache/queue"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
)

// Multiplexer never reports api.ErrTooManyConcurrentAsyncOperations: starts
// that do not fit are queued and resubmitted, in order, after each poll.
// It is not safe for concurrent use.
type Multiplexer struct {
	inner    api.Multiplexer
	counters *control.Counters

	fifo      *queue.Queue
	queued    map[*api.Operation]struct{}
	cancelled []*api.Operation
}

var (
	_ api.Multiplexer     = (*Multiplexer)(nil)
	_ api.HandleRegistrar = (*Multiplexer)(nil)
)

// New wraps inner. counters may be nil.
func New(inner api.Multiplexer, counters *control.Counters) *Multiplexer {
	return &Multiplexer{
		inner:    inner,
		counters: counters,
		fifo:     queue.New(),
		queued:   make(map[*api.Operation]struct{}),
	}
}

// Inner returns the decorated multiplexer.
func (m *Multiplexer) Inner() api.Multiplexer { return m.inner }

// Queued returns the number of deferred operations.
func (m *Multiplexer) Queued() int { return len(m.queued) }

func (m *Multiplexer) TypeID() api.TypeID { return m.inner.TypeID() }

func (m *Multiplexer) Hooks() *api.Hooks { return m.inner.Hooks() }

func (m *Multiplexer) FindHandleRelation(handleType api.TypeID) (*api.Relation, error) {
	return m.inner.FindHandleRelation(handleType)
}

func (m *Multiplexer) RegisterHandle(rel *api.Relation, h api.NativeHandle) (api.Connector, error) {
	return api.RegisterHandle(m.inner, rel, h)
}

// DeregisterHandle cancels the operations still queued for h; they are
// delivered on the next poll.
func (m *Multiplexer) DeregisterHandle(rel *api.Relation, h api.NativeHandle, c api.Connector) error {
	for op := range m.queued {
		if op.Native == h && op.RequestCancel() {
			m.cancelled = append(m.cancelled, op)
		}
	}
	return api.DeregisterHandle(m.inner, rel, h, c)
}

func (m *Multiplexer) Construct(desc *api.OperationDescriptor, op *api.Operation) error {
	return m.inner.Construct(desc, op)
}

// Start forwards op, or queues it behind earlier deferred operations.
func (m *Multiplexer) Start(op *api.Operation) error {
	if m.fifo.Length() == 0 {
		err := m.inner.Start(op)
		if !errors.Is(err, api.ErrTooManyConcurrentAsyncOperations) {
			return err
		}
	}
	m.fifo.Add(op)
	m.queued[op] = struct{}{}
	m.counters.OnQueue()
	m.inner.Hooks().Log().Debug().
		Int("queued", len(m.queued)).
		Log("operation deferred")
	return nil
}

func (m *Multiplexer) ConstructAndStart(desc *api.OperationDescriptor, op *api.Operation) error {
	if err := m.Construct(desc, op); err != nil {
		return err
	}
	return m.Start(op)
}

// Cancel of a queued operation completes it as cancelled on the next poll
// without it ever reaching the inner multiplexer.
func (m *Multiplexer) Cancel(op *api.Operation) error {
	if _, ok := m.queued[op]; !ok {
		return m.inner.Cancel(op)
	}
	if !op.RequestCancel() {
		return nil
	}
	m.cancelled = append(m.cancelled, op)
	return nil
}

func (m *Multiplexer) Submit(d api.Deadline) error {
	m.resubmit()
	return m.inner.Submit(d)
}

// Poll delivers cancelled queued operations, polls the inner multiplexer
// and refills it from the queue.
func (m *Multiplexer) Poll(d api.Deadline) error {
	delivered := m.deliverCancelled()
	m.resubmit()
	if delivered > 0 {
		d = api.Instant()
	}
	err := m.inner.Poll(d)
	m.resubmit()
	if delivered > 0 && errors.Is(err, api.ErrAsyncOperationTimedOut) {
		return nil
	}
	return err
}

func (m *Multiplexer) SubmitAndPoll(d api.Deadline) error {
	if err := m.Submit(d); err != nil {
		return err
	}
	return m.Poll(d)
}

// Close cancels every queued operation, then closes the inner multiplexer.
func (m *Multiplexer) Close() error {
	m.deliverCancelled()
	for m.fifo.Length() > 0 {
		op := m.fifo.Remove().(*api.Operation)
		if _, ok := m.queued[op]; ok {
			delete(m.queued, op)
			op.Complete(0, nil, api.ErrAsyncOperationCancelled)
		}
	}
	return m.inner.Close()
}

// resubmit starts queued operations in order until the inner multiplexer is
// full again.
func (m *Multiplexer) resubmit() {
	for m.fifo.Length() > 0 {
		op := m.fifo.Peek().(*api.Operation)
		if _, ok := m.queued[op]; !ok || op.CancelRequested() {
			// Delivered already, or left to deliverCancelled.
			m.fifo.Remove()
			continue
		}
		err := m.inner.Start(op)
		if errors.Is(err, api.ErrTooManyConcurrentAsyncOperations) {
			return
		}
		m.fifo.Remove()
		delete(m.queued, op)
		if err != nil {
			op.Complete(0, nil, err)
		}
	}
}

func (m *Multiplexer) deliverCancelled() int {
	n := len(m.cancelled)
	for _, op := range m.cancelled {
		delete(m.queued, op)
		op.Complete(0, nil, api.ErrAsyncOperationCancelled)
	}
	m.cancelled = m.cancelled[:0]
	return n
}
