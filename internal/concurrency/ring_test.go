package concurrency_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/internal/concurrency"
)

func drain[T any](r *concurrency.CompletionRing[T]) []T {
	var got []T
	for {
		v, ok := r.Pop()
		if !ok {
			return got
		}
		got = append(got, v)
	}
}

func TestCompletionRingFIFO(t *testing.T) {
	r := concurrency.NewCompletionRing[int](4)
	for i := 1; i <= 4; i++ {
		r.Push(i)
	}
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, 4, r.Cap())

	v, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	r.Push(5)
	assert.Equal(t, []int{2, 3, 4, 5}, drain(r))
	assert.Zero(t, r.Len())
}

func TestCompletionRingGrowsWrapped(t *testing.T) {
	r := concurrency.NewCompletionRing[string](2)
	r.Push("a")
	r.Push("b")
	_, _ = r.Pop()
	r.Push("c")
	r.Push("d")
	assert.Equal(t, 4, r.Cap())
	r.Push("e")
	assert.Equal(t, []string{"b", "c", "d", "e"}, drain(r))
}

func TestCompletionRingRemove(t *testing.T) {
	r := concurrency.NewCompletionRing[int](0)
	for i := 0; i < 6; i++ {
		r.Push(i)
	}
	assert.Equal(t, 3, r.Remove(func(v int) bool { return v%2 == 1 }))
	assert.Equal(t, []int{0, 2, 4}, drain(r))
}

func TestRoundUp(t *testing.T) {
	assert.Equal(t, uint64(1), concurrency.RoundUp(0))
	assert.Equal(t, uint64(8), concurrency.RoundUp(5))
	assert.Equal(t, uint64(16), concurrency.RoundUp(16))
}
