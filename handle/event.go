// File: handle/event.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import (
	"time"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/internal/platform"
	"github.com/momentics/allio/object"
)

// Event is a kernel event object. Auto-reset events release one waiter per
// signal; manual-reset events stay signaled until Reset.
type Event struct {
	Handle[EventKind]
}

// Create makes a new event.
func (e *Event) Create(autoReset, signaled bool, opts ...object.Option) error {
	p := &object.EventParams{AutoReset: autoReset, Signaled: signaled, Options: object.NewOptions(opts...)}
	return create(&e.Handle, p, platform.CreateEvent)
}

func (e *Event) Signal(opts ...object.Option) error {
	p := &object.SignalParams{Options: object.NewOptions(opts...)}
	_, err := run(&e.Handle, object.Signal, p, voidOf(func(*object.SignalParams) error {
		return platform.SignalEvent(e.native)
	}), void)
	return err
}

func (e *Event) Reset(opts ...object.Option) error {
	p := &object.SignalParams{Options: object.NewOptions(opts...)}
	_, err := run(&e.Handle, object.Reset, p, voidOf(func(*object.SignalParams) error {
		return platform.ResetEvent(e.native)
	}), void)
	return err
}

func (e *Event) waitDirect(p *object.WaitParams) error {
	return platform.WaitEvent(e.native, p.Deadline)
}

// Wait blocks until the event is signaled.
func (e *Event) Wait(opts ...object.Option) error {
	p := &object.WaitParams{Options: object.NewOptions(opts...)}
	_, err := run(&e.Handle, object.WaitEvent, p, voidOf(e.waitDirect), void)
	return err
}

func (e *Event) WaitAsync(opts ...object.Option) (*Pending[object.Void], error) {
	p := &object.WaitParams{Options: object.NewOptions(opts...)}
	return start(&e.Handle, object.WaitEvent, p, voidOf(e.waitDirect), void)
}

// Timer is a kernel timer counting expirations.
type Timer struct {
	Handle[TimerKind]
}

// Create makes a disarmed timer.
func (t *Timer) Create(opts ...object.Option) error {
	p := &object.TimerCreateParams{Options: object.NewOptions(opts...)}
	return create(&t.Handle, p, platform.CreateTimer)
}

// Set arms the timer to fire after initial and then every interval. A zero
// interval fires once; a zero initial disarms.
func (t *Timer) Set(initial, interval time.Duration, opts ...object.Option) error {
	p := &object.TimerSetParams{Initial: initial, Interval: interval, Options: object.NewOptions(opts...)}
	_, err := run(&t.Handle, object.SetTimer, p, voidOf(func(p *object.TimerSetParams) error {
		return platform.SetTimer(t.native, p.Initial, p.Interval)
	}), void)
	return err
}

func (t *Timer) waitDirect(p *object.WaitParams) (uint64, error) {
	return platform.WaitTimer(t.native, p.Deadline)
}

func expirations(op *api.Operation) (uint64, error) {
	n, _ := op.Value.(uint64)
	return n, nil
}

// Wait blocks until the timer fires, returning the expirations since the
// last wait.
func (t *Timer) Wait(opts ...object.Option) (uint64, error) {
	p := &object.WaitParams{Options: object.NewOptions(opts...)}
	return run(&t.Handle, object.WaitTimer, p, t.waitDirect, expirations)
}

func (t *Timer) WaitAsync(opts ...object.Option) (*Pending[uint64], error) {
	p := &object.WaitParams{Options: object.NewOptions(opts...)}
	return start(&t.Handle, object.WaitTimer, p, t.waitDirect, expirations)
}
