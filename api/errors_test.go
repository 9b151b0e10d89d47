package api_test

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/api"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "allio: handle is null", api.ErrHandleIsNull.Error())
	assert.Equal(t, "allio: unknown error 999", api.Error(999).Error())
}

func TestSystemErrorMapping(t *testing.T) {
	assert.Nil(t, api.NewSystemError("read", nil))

	err := api.NewSystemError("read", syscall.ENOMEM)
	assert.ErrorIs(t, err, api.ErrNotEnoughMemory)
	assert.ErrorIs(t, err, syscall.ENOMEM)
	assert.NotErrorIs(t, err, api.ErrNoBufferSpace)
	assert.Equal(t, "read: "+syscall.ENOMEM.Error(), err.Error())

	assert.ErrorIs(t, api.NewSystemError("poll", syscall.ETIMEDOUT), api.ErrAsyncOperationTimedOut)
	assert.ErrorIs(t, api.NewSystemError("cancel", syscall.ECANCELED), api.ErrAsyncOperationCancelled)

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Same(t, wrapped, api.NewSystemError("other", wrapped))

	var se *api.SystemError
	require.True(t, errors.As(wrapped, &se))
	assert.Equal(t, "read", se.Op)
}

func TestRebindError(t *testing.T) {
	err := &api.RebindError{Err: api.ErrHandleIsNotMultiplexable, Unbound: true}
	assert.ErrorIs(t, err, api.ErrHandleIsNotMultiplexable)
	assert.Contains(t, err.Error(), "left unbound")
}

func TestMust(t *testing.T) {
	assert.Equal(t, 3, api.Must(3, nil))
	assert.NotPanics(t, func() { api.Check(nil) })

	defer func() {
		r := recover()
		var pe *api.PanicError
		require.ErrorAs(t, r.(error), &pe)
		assert.ErrorIs(t, pe, api.ErrHandleIsNull)
	}()
	api.Check(api.ErrHandleIsNull)
}

func TestMustOutOfMemory(t *testing.T) {
	defer func() {
		r := recover()
		oom, ok := r.(*api.OutOfMemoryError)
		require.True(t, ok)
		assert.ErrorIs(t, oom, api.ErrNotEnoughMemory)
	}()
	api.Must([]byte(nil), api.NewSystemError("mmap", syscall.ENOMEM))
}

func TestExternallySynchronized(t *testing.T) {
	var x api.ExternallySynchronized
	release := x.Acquire()
	assert.True(t, x.InUse())
	assert.Panics(t, func() { x.Acquire() })
	release()
	assert.False(t, x.InUse())
	assert.Panics(t, release)
	x.Acquire()()
}
