// File: internal/concurrency/timers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"container/heap"
	"time"

	"github.com/momentics/allio/api"
)

// Timed is an element of a TimerHeap. TimerIndex is -1 while it is not in
// a heap.
type Timed interface {
	Deadline() api.Deadline
	SetTimerIndex(i int)
	TimerIndex() int
}

// TimerHeap orders operations by absolute deadline. Relative deadlines
// must be anchored with api.Deadline.Absolute before insertion.
type TimerHeap struct {
	items timedItems
}

type timedItems []Timed

func (h timedItems) Len() int { return len(h) }

func (h timedItems) Less(i, j int) bool {
	return h[i].Deadline().Time().Before(h[j].Deadline().Time())
}

func (h timedItems) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].SetTimerIndex(i)
	h[j].SetTimerIndex(j)
}

func (h *timedItems) Push(x any) {
	t := x.(Timed)
	t.SetTimerIndex(len(*h))
	*h = append(*h, t)
}

func (h *timedItems) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	t.SetTimerIndex(-1)
	return t
}

// Len returns the number of armed timers.
func (h *TimerHeap) Len() int { return len(h.items) }

// Add arms t. Already armed elements are left in place.
func (h *TimerHeap) Add(t Timed) {
	if t.TimerIndex() < 0 {
		heap.Push(&h.items, t)
	}
}

// Remove disarms t if armed.
func (h *TimerHeap) Remove(t Timed) {
	if i := t.TimerIndex(); i >= 0 && i < len(h.items) && h.items[i] == t {
		heap.Remove(&h.items, i)
	}
}

// Earliest returns the first deadline, Never when empty.
func (h *TimerHeap) Earliest() api.Deadline {
	if len(h.items) == 0 {
		return api.Never()
	}
	return h.items[0].Deadline()
}

// Expired disarms and returns every element due at now, earliest first.
func (h *TimerHeap) Expired(now time.Time) []Timed {
	var out []Timed
	for len(h.items) > 0 && !h.items[0].Deadline().Time().After(now) {
		out = append(out, heap.Pop(&h.items).(Timed))
	}
	return out
}
