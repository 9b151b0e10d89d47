// File: facade/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"context"
	"errors"
	"time"

	"github.com/momentics/allio/api"
)

// Loop drives the multiplexer of an Allio from one goroutine, so handles
// used from other goroutines complete without polling themselves. It
// needs a synchronized stack.
type Loop struct {
	a        *Allio
	interval time.Duration
	polls    int64
}

// Loop returns a polling loop over the stack.
func (a *Allio) Loop() *Loop {
	interval := a.config.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	return &Loop{a: a, interval: interval}
}

// Polls returns the number of polls run so far; only meaningful once Run
// returned.
func (l *Loop) Polls() int64 { return l.polls }

// Run polls until ctx is done or polling fails. Each poll waits at most
// the configured interval; idle and timed out polls are not errors.
func (l *Loop) Run(ctx context.Context) error {
	if !l.a.config.Synchronized {
		return errors.New("facade: loop requires a synchronized multiplexer")
	}
	mux := l.a.Multiplexer()
	log := l.a.log()
	log.Debug().Int64("interval_ms", l.interval.Milliseconds()).Log("allio loop started")
	for {
		if err := ctx.Err(); err != nil {
			log.Debug().Int64("polls", l.polls).Log("allio loop stopped")
			return nil
		}
		err := mux.SubmitAndPoll(api.After(l.interval))
		l.polls++
		switch {
		case err == nil,
			errors.Is(err, api.ErrAsyncOperationTimedOut):
		case errors.Is(err, api.ErrAsyncOperationNotInProgress):
			// Nothing in flight; back off for one interval.
			select {
			case <-ctx.Done():
			case <-time.After(l.interval):
			}
		default:
			log.Err().Err(err).Log("allio loop poll failed")
			return err
		}
		if l.a.config.EnableMetrics && l.polls%64 == 0 {
			l.a.counters.Publish(l.a.metrics, "allio.operations")
		}
	}
}
