// File: fake/multiplexer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package fake provides an in-memory multiplexer with deterministic
// completion order, for tests of the handle layer and the decorators.

package fake

import (
	"time"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
	"github.com/momentics/allio/internal/concurrency"
	"github.com/momentics/allio/object"
	"github.com/momentics/allio/relation"
)

// TypeID identifies the in-memory multiplexer.
var TypeID = api.NewTypeID("fake_multiplexer")

// Result is the outcome Perform decides for one operation.
type Result struct {
	N     int
	Value any
	Err   error
}

// Perform decides the result of an operation when Poll completes it.
type Perform func(op *api.Operation) Result

// Options configure New.
type Options struct {
	// Capacity caps in-flight operations. Zero is unlimited.
	Capacity int
	// Perform decides results. Nil is Simulate.
	Perform Perform
	// Manual leaves operations in flight until Complete is called for them.
	Manual bool
	// Omit removes operations from every relation, to exercise the
	// synchronous fallback of the handle layer.
	Omit []api.OperationID

	Hooks    *api.Hooks
	Counters *control.Counters
}

type state struct {
	typ    *object.Type
	step   api.StepDeadline
	result Result
	queued bool
}

// Multiplexer is a deterministic api.Multiplexer: operations complete in
// the order they became ready, and only from Poll. It must be driven by one
// goroutine at a time.
type Multiplexer struct {
	opts      Options
	hooks     *api.Hooks
	relations *relation.Table

	inFlight []*api.Operation
	started  []*api.Operation
	ready    *concurrency.CompletionRing[*api.Operation]
	closed   bool
}

var _ api.Multiplexer = (*Multiplexer)(nil)

// New builds an in-memory multiplexer.
func New(opts Options) *Multiplexer {
	if opts.Perform == nil {
		opts.Perform = Simulate
	}
	size := 16
	if opts.Capacity > 0 {
		size = opts.Capacity
	}
	m := &Multiplexer{
		opts:  opts,
		hooks: opts.Hooks.WithDefaults(),
		ready: concurrency.NewCompletionRing[*api.Operation](size),
	}
	m.relations = newRelations(opts.Omit)
	return m
}

// TypeOf returns the object type of the handle op was started on.
func TypeOf(op *api.Operation) *object.Type {
	if st, ok := op.Backend.(*state); ok {
		return st.typ
	}
	return nil
}

func (m *Multiplexer) TypeID() api.TypeID { return TypeID }

func (m *Multiplexer) Hooks() *api.Hooks { return m.hooks }

func (m *Multiplexer) FindHandleRelation(handleType api.TypeID) (*api.Relation, error) {
	return m.relations.Find(handleType)
}

// Relations exposes the relation table, for composite providers.
func (m *Multiplexer) Relations() *relation.Table { return m.relations }

// Started returns every operation started so far, in start order.
func (m *Multiplexer) Started() []*api.Operation { return m.started }

// InFlight returns the number of started, undelivered operations.
func (m *Multiplexer) InFlight() int { return len(m.inFlight) }

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
	if m.opts.Capacity > 0 && len(m.inFlight) >= m.opts.Capacity {
		m.opts.Counters.OnReject()
		return api.ErrTooManyConcurrentAsyncOperations
	}
	if err := op.Descriptor.Start(m, op); err != nil {
		return err
	}
	op.SetState(api.StateSubmitted)
	m.inFlight = append(m.inFlight, op)
	m.started = append(m.started, op)
	m.opts.Counters.OnStart()
	return nil
}

func (m *Multiplexer) ConstructAndStart(desc *api.OperationDescriptor, op *api.Operation) error {
	if err := m.Construct(desc, op); err != nil {
		return err
	}
	return m.Start(op)
}

// Cancel makes op complete with ErrAsyncOperationCancelled on the next
// Poll, unless a result was already queued for it.
func (m *Multiplexer) Cancel(op *api.Operation) error {
	st, ok := op.Backend.(*state)
	if !ok || op.State() != api.StateSubmitted {
		return api.ErrAsyncOperationNotInProgress
	}
	if !op.RequestCancel() {
		if op.Done() {
			return api.ErrAsyncOperationNotInProgress
		}
		return nil
	}
	if !st.queued {
		m.enqueue(op, Result{Err: api.ErrAsyncOperationCancelled})
	}
	return nil
}

// Complete queues a result for an in-flight op; Poll delivers it.
func (m *Multiplexer) Complete(op *api.Operation, r Result) error {
	st, ok := op.Backend.(*state)
	if !ok || op.State() != api.StateSubmitted || st.queued {
		return api.ErrAsyncOperationNotInProgress
	}
	m.enqueue(op, r)
	return nil
}

func (m *Multiplexer) Submit(api.Deadline) error { return nil }

// Poll delivers ready completions. When none are ready it sleeps until d or
// the earliest operation deadline; with neither, nothing could ever
// complete and ErrAsyncOperationNotInProgress is returned instead of
// blocking forever.
func (m *Multiplexer) Poll(d api.Deadline) error {
	m.prepare()
	if m.drain() > 0 || d.IsInstant() {
		return nil
	}
	now := time.Now()
	wake := d.Absolute(now)
	for _, op := range m.inFlight {
		wake = wake.Earliest(op.Backend.(*state).step.Deadline(), now)
	}
	if wake.IsNever() {
		return api.ErrAsyncOperationNotInProgress
	}
	if left, _ := wake.Remaining(now); left > 0 {
		time.Sleep(left)
	}
	m.prepare()
	if m.drain() > 0 {
		return nil
	}
	return api.ErrAsyncOperationTimedOut
}

func (m *Multiplexer) SubmitAndPoll(d api.Deadline) error {
	if err := m.Submit(d); err != nil {
		return err
	}
	return m.Poll(d)
}

// Close completes every in-flight operation as cancelled.
func (m *Multiplexer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	for _, op := range m.inFlight {
		if !op.Backend.(*state).queued {
			m.enqueue(op, Result{Err: api.ErrAsyncOperationCancelled})
		}
	}
	m.drain()
	return nil
}

// prepare performs automatic operations and expires elapsed deadlines.
func (m *Multiplexer) prepare() {
	for _, op := range m.inFlight {
		st := op.Backend.(*state)
		if st.queued {
			continue
		}
		if _, err := st.step.Step(); err != nil {
			m.enqueue(op, Result{Err: api.ErrAsyncOperationTimedOut})
			continue
		}
		if !m.opts.Manual {
			m.enqueue(op, m.opts.Perform(op))
		}
	}
}

func (m *Multiplexer) enqueue(op *api.Operation, r Result) {
	st := op.Backend.(*state)
	st.result, st.queued = r, true
	m.ready.Push(op)
}

// drain notifies queued operations in FIFO order.
func (m *Multiplexer) drain() int {
	n := 0
	for {
		op, ok := m.ready.Pop()
		if !ok {
			return n
		}
		for i, x := range m.inFlight {
			if x == op {
				m.inFlight = append(m.inFlight[:i], m.inFlight[i+1:]...)
				break
			}
		}
		r := op.Backend.(*state).result
		op.Descriptor.Notify(m, op, api.Completion{Result: int64(r.N), Err: r.Err})
		n++
	}
}

func (m *Multiplexer) finish(op *api.Operation) {
	r := op.Backend.(*state).result
	m.opts.Counters.OnComplete(r.Err)
	op.Complete(r.N, r.Value, r.Err)
}
