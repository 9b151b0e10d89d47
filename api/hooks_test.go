package api_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/api"
)

type shortAllocator struct{ released int }

func (a *shortAllocator) Acquire(size int) ([]byte, error) { return make([]byte, size/2), nil }
func (a *shortAllocator) Release([]byte)                   { a.released++ }

func TestHooksDefaults(t *testing.T) {
	var nilHooks *api.Hooks
	assert.Same(t, api.DefaultHooks(), nilHooks.WithDefaults())
	assert.Nil(t, nilHooks.Log())

	h := (&api.Hooks{}).WithDefaults()
	require.NotNil(t, h.Allocator)
	require.NotNil(t, h.Unrecoverable)
	assert.Same(t, api.DefaultHooks().Logger, h.Logger)

	buf, err := h.Acquire(16)
	require.NoError(t, err)
	assert.Len(t, buf, 16)
	h.Release(buf)
	h.Release(nil)
}

func TestHooksRejectShortAllocations(t *testing.T) {
	a := &shortAllocator{}
	h := (&api.Hooks{Allocator: a}).WithDefaults()
	_, err := h.Acquire(8)
	assert.ErrorIs(t, err, api.ErrNotEnoughMemory)
	assert.Equal(t, 1, a.released)
}

func TestHooksUnrecoverable(t *testing.T) {
	var got []error
	h := (&api.Hooks{Unrecoverable: api.UnrecoverableErrorFunc(func(err error) { got = append(got, err) })}).WithDefaults()
	h.ReportUnrecoverable(nil)
	h.ReportUnrecoverable(errors.New("close failed"))
	require.Len(t, got, 1)
	assert.EqualError(t, got[0], "close failed")
}

func TestOperationCompletesOnce(t *testing.T) {
	calls := 0
	op := &api.Operation{Notify: func(*api.Operation) { calls++ }}
	assert.Equal(t, api.StateUnsubmitted, op.State())
	assert.True(t, op.RequestCancel())
	assert.False(t, op.RequestCancel())
	assert.True(t, op.CancelRequested())

	assert.True(t, op.Complete(4, "v", nil))
	assert.False(t, op.Complete(0, nil, api.ErrAsyncOperationCancelled))
	assert.True(t, op.Done())
	assert.Equal(t, 4, op.N)
	assert.Equal(t, "v", op.Value)
	assert.NoError(t, op.Err)
	assert.Equal(t, 1, calls)
	assert.False(t, op.RequestCancel())

	op.Reset()
	assert.Equal(t, api.StateUnsubmitted, op.State())
	assert.False(t, op.CancelRequested())
}

func TestRegisterHandleWithoutCallbacks(t *testing.T) {
	c, err := api.RegisterHandle(nil, &api.Relation{}, api.NativeHandle{})
	assert.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, api.DeregisterHandle(nil, &api.Relation{}, api.NativeHandle{}, nil))
}
