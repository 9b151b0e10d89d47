package concurrency_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/internal/concurrency"
)

type timer struct {
	d   api.Deadline
	idx int
}

func newTimer(at time.Time) *timer { return &timer{d: api.At(at), idx: -1} }

func (t *timer) Deadline() api.Deadline { return t.d }
func (t *timer) SetTimerIndex(i int)    { t.idx = i }
func (t *timer) TimerIndex() int        { return t.idx }

func TestTimerHeapOrdersByDeadline(t *testing.T) {
	now := time.Now()
	var h concurrency.TimerHeap
	assert.True(t, h.Earliest().IsNever())

	late, early, mid := newTimer(now.Add(3*time.Second)), newTimer(now.Add(time.Second)), newTimer(now.Add(2*time.Second))
	h.Add(late)
	h.Add(early)
	h.Add(mid)
	h.Add(mid)
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, early.d, h.Earliest())

	due := h.Expired(now.Add(2 * time.Second))
	assert.Equal(t, []concurrency.Timed{early, mid}, due)
	assert.Equal(t, -1, early.idx)
	assert.Equal(t, 1, h.Len())
}

func TestTimerHeapRemove(t *testing.T) {
	now := time.Now()
	var h concurrency.TimerHeap
	a, b := newTimer(now.Add(time.Second)), newTimer(now.Add(2*time.Second))
	h.Add(a)
	h.Add(b)
	h.Remove(a)
	h.Remove(a)
	assert.Equal(t, -1, a.idx)
	assert.Equal(t, b.d, h.Earliest())
	assert.Empty(t, h.Expired(now))
}
