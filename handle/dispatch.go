// File: handle/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Routing of one operation: direct system call when unbound or when the
// relation keeps the operation synchronous, multiplexer otherwise.

package handle

import (
	"errors"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/object"
)

// run performs tag on h and blocks until it completes. Operations the
// bound relation does not route asynchronously fall back to direct.
func run[K Kind, P object.Params, R any](h *Handle[K], tag object.Tag[P, R], p P,
	direct func(P) (R, error), result func(*api.Operation) (R, error)) (R, error) {
	var zero R
	if h.native.IsNull() {
		return zero, api.ErrHandleIsNull
	}
	desc := h.descriptor(tag.ID)
	if desc == nil || desc.Synchronous {
		return direct(p)
	}
	pd, err := launch(h, desc, p, result)
	if errors.Is(err, api.ErrUnsupportedAsynchronousOperation) {
		return direct(p)
	}
	if err != nil {
		return zero, err
	}
	v, err := pd.Wait(api.Never())
	if err != nil && !pd.op.Done() {
		return settle(h, pd, err)
	}
	return v, err
}

// settle cancels an operation whose polling failed and keeps polling until
// it completes, so its buffers are no longer in use when run returns. A
// completion that beat the cancel is returned; otherwise pollErr is.
func settle[K Kind, R any](h *Handle[K], pd *Pending[R], pollErr error) (R, error) {
	var zero R
	if err := pd.Cancel(); err != nil && !errors.Is(err, api.ErrAsyncOperationNotInProgress) {
		h.hooks().ReportUnrecoverable(err)
		return zero, pollErr
	}
	for !pd.op.Done() {
		err := h.mux.SubmitAndPoll(api.Never())
		if err != nil && !pd.op.Done() && !errors.Is(err, api.ErrAsyncOperationTimedOut) {
			h.hooks().ReportUnrecoverable(err)
			return zero, pollErr
		}
	}
	if v, err := pd.Wait(api.Instant()); err == nil {
		return v, nil
	}
	return zero, pollErr
}

// start begins tag on h and returns without waiting. Synchronous relation
// entries run inline and yield an already completed Pending.
func start[K Kind, P object.Params, R any](h *Handle[K], tag object.Tag[P, R], p P,
	direct func(P) (R, error), result func(*api.Operation) (R, error)) (*Pending[R], error) {
	if h.native.IsNull() {
		return nil, api.ErrHandleIsNull
	}
	if h.mux == nil {
		return nil, api.ErrHandleIsNotMultiplexable
	}
	desc := h.descriptor(tag.ID)
	if desc == nil {
		return nil, api.ErrUnsupportedAsynchronousOperation
	}
	if desc.Synchronous {
		v, err := direct(p)
		return completedPending(v, err), nil
	}
	return launch(h, desc, p, result)
}

func launch[K Kind, P object.Params, R any](h *Handle[K], desc *api.OperationDescriptor, p P,
	result func(*api.Operation) (R, error)) (*Pending[R], error) {
	pd := newPending(h.mux, result)
	op := &pd.op
	op.Native = h.native
	op.Connector = h.connector
	op.Args = p
	op.Deadline = p.Optional().Deadline
	if err := h.mux.ConstructAndStart(desc, op); err != nil {
		return nil, err
	}
	return pd, nil
}

func transferred(op *api.Operation) (int, error) { return op.N, nil }

func void(*api.Operation) (object.Void, error) { return object.Void{}, nil }

// voidOf adapts a direct call without result.
func voidOf[P any](f func(P) error) func(P) (object.Void, error) {
	return func(p P) (object.Void, error) { return object.Void{}, f(p) }
}
