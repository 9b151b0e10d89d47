// File: handle/pending.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import (
	"errors"
	"sync"

	"github.com/momentics/allio/api"
)

// ErrPending is returned by Pending.Result before the operation completed.
var ErrPending = errors.New("allio: operation still pending")

// Pending is an asynchronous operation started through a handle. It
// completes on the goroutine that polls its multiplexer.
type Pending[R any] struct {
	op     api.Operation
	mux    api.Multiplexer
	result func(*api.Operation) (R, error)
	done   chan struct{}

	mu         sync.Mutex
	completed  bool
	value      R
	err        error
	onComplete func(R, error)
}

func newPending[R any](mux api.Multiplexer, result func(*api.Operation) (R, error)) *Pending[R] {
	p := &Pending[R]{mux: mux, result: result, done: make(chan struct{})}
	p.op.Notify = p.notify
	return p
}

// Operation exposes the in-flight operation, e.g. for tagging.
func (p *Pending[R]) Operation() *api.Operation { return &p.op }

// Done is closed when the operation completes.
func (p *Pending[R]) Done() <-chan struct{} { return p.done }

// Ready reports whether the operation completed.
func (p *Pending[R]) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

// Result returns the outcome, or ErrPending before completion.
func (p *Pending[R]) Result() (R, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.completed {
		var zero R
		return zero, ErrPending
	}
	return p.value, p.err
}

// OnComplete registers fn to run on completion, or runs it now if the
// operation already completed. Only the last registration is kept.
func (p *Pending[R]) OnComplete(fn func(R, error)) {
	p.mu.Lock()
	if !p.completed {
		p.onComplete = fn
		p.mu.Unlock()
		return
	}
	v, err := p.value, p.err
	p.mu.Unlock()
	fn(v, err)
}

// Cancel requests cancellation. The operation still completes exactly
// once; only its result tells whether the cancel won.
func (p *Pending[R]) Cancel() error {
	if p.Ready() || p.mux == nil {
		return api.ErrAsyncOperationNotInProgress
	}
	return p.mux.Cancel(&p.op)
}

// Wait drives the multiplexer until the operation completes or d elapses.
// Timing out leaves the operation in flight.
func (p *Pending[R]) Wait(d api.Deadline) (R, error) {
	var zero R
	step := api.NewStepDeadline(d)
	for {
		if p.op.Done() {
			// Another goroutine's poll may still be delivering the result.
			<-p.done
			return p.Result()
		}
		cur, err := step.Step()
		if err != nil {
			return zero, err
		}
		if err := p.mux.SubmitAndPoll(cur); err != nil && !p.op.Done() {
			if !errors.Is(err, api.ErrAsyncOperationTimedOut) {
				return zero, err
			}
		}
		if cur.IsInstant() && !p.op.Done() {
			return zero, api.ErrAsyncOperationTimedOut
		}
	}
}

func (p *Pending[R]) notify(op *api.Operation) {
	var v R
	err := op.Err
	if err == nil {
		v, err = p.result(op)
	}
	p.resolve(v, err)
}

func (p *Pending[R]) resolve(v R, err error) {
	p.mu.Lock()
	p.value, p.err, p.completed = v, err, true
	fn := p.onComplete
	p.onComplete = nil
	p.mu.Unlock()
	close(p.done)
	if fn != nil {
		fn(v, err)
	}
}

// completedPending returns a Pending already resolved with v and err.
func completedPending[R any](v R, err error) *Pending[R] {
	p := &Pending[R]{done: make(chan struct{})}
	p.op.SetState(api.StateCompleted)
	p.resolve(v, err)
	return p
}
