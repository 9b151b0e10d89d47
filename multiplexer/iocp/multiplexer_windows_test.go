//go:build windows
// +build windows

package iocp_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
	"github.com/momentics/allio/handle"
	"github.com/momentics/allio/multiplexer/iocp"
	"github.com/momentics/allio/object"
)

func newMux(t *testing.T) (*iocp.Multiplexer, *control.Counters) {
	t.Helper()
	counters := new(control.Counters)
	m, err := iocp.New(iocp.Options{Counters: counters})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, m.Close()) })
	return m, counters
}

func TestOverlappedFileRoundTrip(t *testing.T) {
	m, counters := newMux(t)
	var f handle.File
	require.NoError(t, f.SetMultiplexer(m, nil))
	require.NoError(t, f.Open(filepath.Join(t.TempDir(), "data"), object.ReadWrite, object.CreateOrTruncate))
	defer f.Destroy()

	n, err := f.WriteAt([]byte("allio"), 3)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	read, err := f.ReadAtAsync(make([]byte, 8), 3)
	require.NoError(t, err)
	n, err = read.Wait(api.After(5 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.ReadAt(make([]byte, 4), 100)
	require.NoError(t, err)
	assert.Zero(t, n)

	snap := counters.Snapshot()
	assert.Equal(t, int64(3), snap.Started)
	assert.Equal(t, int64(3), snap.Completed)
	assert.Zero(t, m.Stats().InFlight)
}

func TestEventsStaySynchronous(t *testing.T) {
	m, counters := newMux(t)
	var ev handle.Event
	require.NoError(t, ev.SetMultiplexer(m, nil))
	require.NoError(t, ev.Create(false, true))
	defer ev.Destroy()
	require.NoError(t, ev.Wait(object.WithTimeout(time.Second)))
	assert.Zero(t, counters.Snapshot().Started)
}

func TestPollWithoutOperations(t *testing.T) {
	m, _ := newMux(t)
	assert.NoError(t, m.Poll(api.Instant()))
	assert.ErrorIs(t, m.Poll(api.Never()), api.ErrAsyncOperationNotInProgress)
	assert.ErrorIs(t, m.Poll(api.After(10*time.Millisecond)), api.ErrAsyncOperationTimedOut)
}
