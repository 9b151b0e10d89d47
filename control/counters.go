// control/counters.go
// Author: momentics <momentics@gmail.com>
//
// Operation counters shared by multiplexers and decorators. All methods
// accept a nil receiver.

package control

import (
	"errors"

	"go.uber.org/atomic"

	"github.com/momentics/allio/api"
)

// Counters tracks the operation lifecycle of one multiplexer stack.
type Counters struct {
	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	timedOut  atomic.Int64
	queued    atomic.Int64
	rejected  atomic.Int64
	inFlight  atomic.Int64
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	TimedOut  int64 `json:"timed_out"`
	Queued    int64 `json:"queued"`
	Rejected  int64 `json:"rejected"`
	InFlight  int64 `json:"in_flight"`
}

// OnStart records an operation handed to the kernel.
func (c *Counters) OnStart() {
	if c == nil {
		return
	}
	c.started.Inc()
	c.inFlight.Inc()
}

// OnComplete records a delivered completion and classifies err.
func (c *Counters) OnComplete(err error) {
	if c == nil {
		return
	}
	c.inFlight.Dec()
	switch {
	case err == nil:
		c.completed.Inc()
	case errors.Is(err, api.ErrAsyncOperationCancelled):
		c.cancelled.Inc()
	case errors.Is(err, api.ErrAsyncOperationTimedOut):
		c.timedOut.Inc()
	default:
		c.failed.Inc()
	}
}

// OnQueue records an operation deferred for lack of capacity.
func (c *Counters) OnQueue() {
	if c != nil {
		c.queued.Inc()
	}
}

// OnReject records a start refused for lack of capacity.
func (c *Counters) OnReject() {
	if c != nil {
		c.rejected.Inc()
	}
}

// Snapshot copies the counters.
func (c *Counters) Snapshot() CounterSnapshot {
	if c == nil {
		return CounterSnapshot{}
	}
	return CounterSnapshot{
		Started:   c.started.Load(),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Cancelled: c.cancelled.Load(),
		TimedOut:  c.timedOut.Load(),
		Queued:    c.queued.Load(),
		Rejected:  c.rejected.Load(),
		InFlight:  c.inFlight.Load(),
	}
}

// Publish writes the snapshot into mr under prefix.
func (c *Counters) Publish(mr *MetricsRegistry, prefix string) {
	s := c.Snapshot()
	mr.Publish(map[string]any{
		prefix + ".started":   s.Started,
		prefix + ".completed": s.Completed,
		prefix + ".failed":    s.Failed,
		prefix + ".cancelled": s.Cancelled,
		prefix + ".timed_out": s.TimedOut,
		prefix + ".queued":    s.Queued,
		prefix + ".rejected":  s.Rejected,
		prefix + ".in_flight": s.InFlight,
	})
}
