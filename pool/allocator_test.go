package pool_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/pool"
)

func TestAcquireIsExactAndZeroed(t *testing.T) {
	a := pool.New(pool.Config{})
	buf, err := a.Acquire(100)
	require.NoError(t, err)
	assert.Len(t, buf, 100)
	assert.Equal(t, 128, cap(buf))
	for i := range buf {
		buf[i] = 0xff
	}
	a.Release(buf)

	again, err := a.Acquire(90)
	require.NoError(t, err)
	assert.Len(t, again, 90)
	assert.Equal(t, make([]byte, 90), again)

	st := a.Stats()
	var class pool.ClassStats
	for _, c := range st.Classes {
		if c.Size == 128 {
			class = c
		}
	}
	assert.Equal(t, int64(1), class.Allocated)
	assert.Equal(t, int64(1), class.Reused)
}

func TestClassBounds(t *testing.T) {
	a := pool.New(pool.Config{MinClass: 100, MaxClass: 1000, SlabDepth: 1})
	st := a.Stats()
	require.Len(t, st.Classes, 4)
	assert.Equal(t, 128, st.Classes[0].Size)
	assert.Equal(t, 1024, st.Classes[3].Size)

	small, err := a.Acquire(1)
	require.NoError(t, err)
	assert.Equal(t, 128, cap(small))

	big, err := a.Acquire(4096)
	require.NoError(t, err)
	assert.Len(t, big, 4096)
	assert.Equal(t, int64(1), a.Stats().Oversized)

	_, err = a.Acquire(-1)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestSlabDepthBoundsRetention(t *testing.T) {
	a := pool.New(pool.Config{SlabDepth: 1})
	x, _ := a.Acquire(64)
	y, _ := a.Acquire(64)
	a.Release(x)
	a.Release(y)
	a.Release(make([]byte, 10, 48))
	c := a.Stats().Classes[0]
	assert.Equal(t, 1, c.Free)
	assert.Equal(t, int64(1), c.Dropped)
}

func TestConcurrentUse(t *testing.T) {
	a := pool.Default()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				buf, err := a.Acquire(i%300 + 1)
				if err != nil || len(buf) != i%300+1 {
					t.Error("bad buffer")
					return
				}
				a.Release(buf)
			}
		}()
	}
	wg.Wait()
}

func TestHooksUseAllocator(t *testing.T) {
	a := pool.New(pool.Config{})
	hooks := (&api.Hooks{Allocator: a}).WithDefaults()
	buf, err := hooks.Acquire(28)
	require.NoError(t, err)
	assert.Len(t, buf, 28)
	hooks.Release(buf)
	assert.Equal(t, 1, a.Stats().Classes[0].Free)
}
