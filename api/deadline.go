// File: api/deadline.go
// Author: momentics <momentics@gmail.com>
//
// Deadline is a tagged 64-bit time bound used by operations and polls.

package api

import (
	"fmt"
	"math"
	"time"
)

// Deadline encodes never, instant, a relative duration or an absolute point
// in time in one 64-bit value. The top two bits hold the kind, the remaining
// bits hold nanoseconds. The zero value is Never.
type Deadline uint64

const (
	deadlineNever    = 0
	deadlineRelative = 1
	deadlineAbsolute = 2

	deadlineTagShift = 62
	deadlineValue    = 1<<deadlineTagShift - 1
)

// epoch anchors absolute deadlines to the monotonic clock.
var epoch = time.Now()

// Never returns a deadline that never elapses.
func Never() Deadline { return 0 }

// Instant returns a zero-length deadline, i.e. a non-blocking check.
func Instant() Deadline { return deadlineRelative << deadlineTagShift }

// After returns a relative deadline. Non-positive durations are Instant.
func After(d time.Duration) Deadline {
	if d <= 0 {
		return Instant()
	}
	if uint64(d) > deadlineValue {
		return Never()
	}
	return deadlineRelative<<deadlineTagShift | Deadline(d)
}

// At returns an absolute deadline. Points before process start clamp to it,
// and elapse immediately.
func At(t time.Time) Deadline {
	ns := t.Sub(epoch)
	if ns < 0 {
		ns = 0
	}
	if uint64(ns) > deadlineValue {
		return Never()
	}
	return deadlineAbsolute<<deadlineTagShift | Deadline(ns)
}

func (d Deadline) kind() uint64  { return uint64(d) >> deadlineTagShift }
func (d Deadline) value() uint64 { return uint64(d) & deadlineValue }

func (d Deadline) IsNever() bool    { return d.kind() == deadlineNever }
func (d Deadline) IsRelative() bool { return d.kind() == deadlineRelative }
func (d Deadline) IsAbsolute() bool { return d.kind() == deadlineAbsolute }
func (d Deadline) IsInstant() bool  { return d.IsRelative() && d.value() == 0 }

// Duration returns the relative duration, or zero for other kinds.
func (d Deadline) Duration() time.Duration {
	if !d.IsRelative() {
		return 0
	}
	return time.Duration(d.value())
}

// Time returns the absolute point, or the zero time for other kinds.
func (d Deadline) Time() time.Time {
	if !d.IsAbsolute() {
		return time.Time{}
	}
	return epoch.Add(time.Duration(d.value()))
}

// Absolute converts a relative deadline into an absolute one anchored at now.
// Never, Instant and absolute deadlines are returned unchanged.
func (d Deadline) Absolute(now time.Time) Deadline {
	if !d.IsRelative() || d.IsInstant() {
		return d
	}
	return At(now.Add(d.Duration()))
}

// Remaining reports the time left at now. ok is false for Never.
func (d Deadline) Remaining(now time.Time) (left time.Duration, ok bool) {
	switch d.kind() {
	case deadlineRelative:
		return d.Duration(), true
	case deadlineAbsolute:
		left = d.Time().Sub(now)
		if left < 0 {
			left = 0
		}
		return left, true
	}
	return 0, false
}

// Milliseconds returns an epoll/poll style timeout: -1 for Never, otherwise
// the remaining time rounded up to whole milliseconds.
func (d Deadline) Milliseconds(now time.Time) int {
	left, ok := d.Remaining(now)
	if !ok {
		return -1
	}
	ms := (left + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

// Earliest returns whichever of d and other elapses first at now.
func (d Deadline) Earliest(other Deadline, now time.Time) Deadline {
	if d.IsNever() {
		return other
	}
	if other.IsNever() {
		return d
	}
	a, _ := d.Remaining(now)
	b, _ := other.Remaining(now)
	if b < a {
		return other
	}
	return d
}

func (d Deadline) String() string {
	switch {
	case d.IsNever():
		return "never"
	case d.IsInstant():
		return "instant"
	case d.IsRelative():
		return "after " + d.Duration().String()
	}
	return fmt.Sprintf("at %s", d.Time().Format(time.RFC3339Nano))
}

// StepDeadline turns a possibly relative deadline into a sequence of relative
// steps, for kernel interfaces that only take relative timeouts and may be
// re-armed several times over one logical operation.
type StepDeadline struct {
	d Deadline
}

// NewStepDeadline anchors d at the current time.
func NewStepDeadline(d Deadline) StepDeadline {
	return StepDeadline{d: d.Absolute(time.Now())}
}

// Deadline returns the anchored (never, instant or absolute) deadline.
func (s StepDeadline) Deadline() Deadline { return s.d }

// Step returns the relative time left. Never and Instant are returned as-is.
// An elapsed absolute deadline yields ErrAsyncOperationTimedOut.
func (s StepDeadline) Step() (Deadline, error) {
	if !s.d.IsAbsolute() {
		return s.d, nil
	}
	left, _ := s.d.Remaining(time.Now())
	if left <= 0 {
		return Instant(), ErrAsyncOperationTimedOut
	}
	return After(left), nil
}
