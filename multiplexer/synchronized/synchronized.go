// File: multiplexer/synchronized/synchronized.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package synchronized makes any multiplexer safe for concurrent use by
// serialising every entry point behind one mutex.

package synchronized

import (
	"sync"

	"github.com/momentics/allio/api"
)

type notification struct {
	op *api.Operation
	fn func(*api.Operation)
}

// Multiplexer wraps an inner multiplexer with a mutex. Completion
// callbacks run after the mutex is released, so they may start new
// operations on the same multiplexer.
type Multiplexer struct {
	mu       sync.Mutex
	inner    api.Multiplexer
	deferred []notification
}

var (
	_ api.Multiplexer     = (*Multiplexer)(nil)
	_ api.HandleRegistrar = (*Multiplexer)(nil)
)

func New(inner api.Multiplexer) *Multiplexer {
	return &Multiplexer{inner: inner}
}

// Inner returns the decorated multiplexer.
func (m *Multiplexer) Inner() api.Multiplexer { return m.inner }

func (m *Multiplexer) lock() { m.mu.Lock() }

// unlock releases the mutex and runs the callbacks collected meanwhile.
func (m *Multiplexer) unlock() {
	batch := m.deferred
	m.deferred = nil
	m.mu.Unlock()
	for _, n := range batch {
		n.fn(n.op)
	}
}

// capture routes op's notification through the deferred list.
func (m *Multiplexer) capture(op *api.Operation) {
	fn := op.Notify
	if fn == nil {
		return
	}
	op.Notify = func(op *api.Operation) {
		m.deferred = append(m.deferred, notification{op: op, fn: fn})
	}
}

func (m *Multiplexer) TypeID() api.TypeID { return m.inner.TypeID() }

func (m *Multiplexer) Hooks() *api.Hooks { return m.inner.Hooks() }

func (m *Multiplexer) FindHandleRelation(handleType api.TypeID) (*api.Relation, error) {
	m.lock()
	defer m.unlock()
	return m.inner.FindHandleRelation(handleType)
}

func (m *Multiplexer) RegisterHandle(rel *api.Relation, h api.NativeHandle) (api.Connector, error) {
	m.lock()
	defer m.unlock()
	return api.RegisterHandle(m.inner, rel, h)
}

func (m *Multiplexer) DeregisterHandle(rel *api.Relation, h api.NativeHandle, c api.Connector) error {
	m.lock()
	defer m.unlock()
	return api.DeregisterHandle(m.inner, rel, h, c)
}

func (m *Multiplexer) Construct(desc *api.OperationDescriptor, op *api.Operation) error {
	m.lock()
	defer m.unlock()
	if err := m.inner.Construct(desc, op); err != nil {
		return err
	}
	m.capture(op)
	return nil
}

func (m *Multiplexer) Start(op *api.Operation) error {
	m.lock()
	defer m.unlock()
	return m.inner.Start(op)
}

func (m *Multiplexer) ConstructAndStart(desc *api.OperationDescriptor, op *api.Operation) error {
	m.lock()
	defer m.unlock()
	if err := m.inner.Construct(desc, op); err != nil {
		return err
	}
	m.capture(op)
	return m.inner.Start(op)
}

func (m *Multiplexer) Cancel(op *api.Operation) error {
	m.lock()
	defer m.unlock()
	return m.inner.Cancel(op)
}

func (m *Multiplexer) Submit(d api.Deadline) error {
	m.lock()
	defer m.unlock()
	return m.inner.Submit(d)
}

// Poll holds the mutex while waiting; other goroutines block until it
// returns.
func (m *Multiplexer) Poll(d api.Deadline) error {
	m.lock()
	defer m.unlock()
	return m.inner.Poll(d)
}

func (m *Multiplexer) SubmitAndPoll(d api.Deadline) error {
	m.lock()
	defer m.unlock()
	return m.inner.SubmitAndPoll(d)
}

func (m *Multiplexer) Close() error {
	m.lock()
	defer m.unlock()
	return m.inner.Close()
}
