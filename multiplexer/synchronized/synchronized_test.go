package synchronized_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/fake"
	"github.com/momentics/allio/handle"
	"github.com/momentics/allio/multiplexer/queueing"
	"github.com/momentics/allio/multiplexer/synchronized"
)

func TestConcurrentStartsAndPolls(t *testing.T) {
	m := synchronized.New(queueing.New(fake.New(fake.Options{Capacity: 4}), nil))
	const workers, each = 8, 25

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var f handle.File
			if err := f.SetMultiplexer(m, nil); err != nil {
				errs <- err
				return
			}
			if err := f.Adopt(api.NativeHandle{Handle: 9, Flags: api.FlagNotNull}); err != nil {
				errs <- err
				return
			}
			defer f.Release()
			for i := 0; i < each; i++ {
				n, err := f.WriteAt(make([]byte, i+1), int64(i))
				if err != nil {
					errs <- err
					return
				}
				if n != i+1 {
					errs <- assert.AnError
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestCallbacksMayReenter(t *testing.T) {
	m := synchronized.New(fake.New(fake.Options{}))
	var f handle.File
	require.NoError(t, f.SetMultiplexer(m, nil))
	require.NoError(t, f.Adopt(api.NativeHandle{Handle: 9, Flags: api.FlagNotNull}))
	defer f.Release()

	first, err := f.ReadAtAsync(make([]byte, 2), 0)
	require.NoError(t, err)
	var second *handle.Pending[int]
	first.OnComplete(func(int, error) {
		second, err = f.ReadAtAsync(make([]byte, 3), 0)
	})
	_, err1 := first.Wait(api.Never())
	require.NoError(t, err1)
	require.NoError(t, err)
	require.NotNil(t, second)
	n, err := second.Wait(api.Never())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestReportsInnerType(t *testing.T) {
	inner := fake.New(fake.Options{})
	m := synchronized.New(inner)
	assert.Equal(t, fake.TypeID, m.TypeID())
	assert.Same(t, inner, m.Inner())
}

func TestRegistrationReachesInnermost(t *testing.T) {
	inner := fake.New(fake.Options{})
	m := synchronized.New(queueing.New(inner, nil))
	var seen api.Multiplexer
	rel := &api.Relation{
		Register: func(mx api.Multiplexer, _ api.NativeHandle) (api.Connector, error) {
			seen = mx
			return "conn", nil
		},
		Deregister: func(mx api.Multiplexer, _ api.NativeHandle, c api.Connector) error {
			assert.Same(t, inner, mx)
			assert.Equal(t, "conn", c)
			return nil
		},
	}
	n := api.NativeHandle{Handle: 3, Flags: api.FlagNotNull}
	c, err := api.RegisterHandle(m, rel, n)
	require.NoError(t, err)
	assert.Equal(t, "conn", c)
	assert.Same(t, inner, seen)
	require.NoError(t, api.DeregisterHandle(m, rel, n, c))
}
