// File: internal/concurrency/ring.go
// Package concurrency implements the completion ring and the deadline heap
// shared by the multiplexers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CompletionRing holds operations whose results are known but not yet
// delivered. One goroutine pushes and pops; Len may be read from any
// goroutine so debug probes can sample it.

package concurrency

import "go.uber.org/atomic"

// CompletionRing is a growable power-of-two FIFO.
type CompletionRing[T any] struct {
	data []T
	mask uint64
	head atomic.Uint64
	_    [64]byte
	tail atomic.Uint64
	_    [64]byte
}

// NewCompletionRing allocates a ring holding at least hint items before it
// first grows.
func NewCompletionRing[T any](hint int) *CompletionRing[T] {
	size := RoundUp(hint)
	return &CompletionRing[T]{data: make([]T, size), mask: size - 1}
}

// RoundUp returns the smallest power of two not below n, and 1 for n <= 1.
func RoundUp(n int) uint64 {
	size := uint64(1)
	for size < uint64(n) {
		size <<= 1
	}
	return size
}

// Push appends item, doubling the ring when full.
func (r *CompletionRing[T]) Push(item T) {
	head, tail := r.head.Load(), r.tail.Load()
	if tail-head == uint64(len(r.data)) {
		r.grow(head, tail)
		head, tail = 0, tail-head
	}
	r.data[tail&r.mask] = item
	r.tail.Store(tail + 1)
}

// grow copies the live window to the front of a ring twice the size.
func (r *CompletionRing[T]) grow(head, tail uint64) {
	next := make([]T, len(r.data)*2)
	for i := uint64(0); head+i < tail; i++ {
		next[i] = r.data[(head+i)&r.mask]
	}
	r.data, r.mask = next, uint64(len(next)-1)
	r.head.Store(0)
	r.tail.Store(tail - head)
}

// Pop removes the oldest item; ok is false when the ring is empty.
func (r *CompletionRing[T]) Pop() (item T, ok bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return item, false
	}
	var zero T
	item = r.data[head&r.mask]
	r.data[head&r.mask] = zero
	r.head.Store(head + 1)
	return item, true
}

// Remove drops every queued item matching pred, keeping the others in order,
// and returns how many were dropped.
func (r *CompletionRing[T]) Remove(pred func(T) bool) int {
	n := r.Len()
	dropped := 0
	for i := 0; i < n; i++ {
		item, _ := r.Pop()
		if pred(item) {
			dropped++
			continue
		}
		r.Push(item)
	}
	return dropped
}

// Len returns the number of queued items.
func (r *CompletionRing[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the current capacity.
func (r *CompletionRing[T]) Cap() int { return len(r.data) }
