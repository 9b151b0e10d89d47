//go:build linux
// +build linux

package iouring_test

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
	"github.com/momentics/allio/handle"
	"github.com/momentics/allio/multiplexer/iouring"
	"github.com/momentics/allio/multiplexer/queueing"
	"github.com/momentics/allio/object"
)

func newMux(t *testing.T, opts iouring.Options) *iouring.Multiplexer {
	t.Helper()
	if !iouring.Available() {
		t.Skip("io_uring is not permitted by this kernel")
	}
	m, err := iouring.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, m.Close()) })
	return m
}

func TestFileRoundTrip(t *testing.T) {
	counters := new(control.Counters)
	m := newMux(t, iouring.Options{Entries: 8, Counters: counters})
	var f handle.File
	require.NoError(t, f.SetMultiplexer(m, nil))
	require.NoError(t, f.Open(filepath.Join(t.TempDir(), "data"), object.ReadWrite, object.CreateOrTruncate))
	defer f.Destroy()

	w, err := f.WriteAtAsync([]byte("io_uring"), 4)
	require.NoError(t, err)
	n, err := w.Wait(api.After(5 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	buf := make([]byte, 16)
	n, err = f.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "io_uring", string(buf[:n]))

	snap := counters.Snapshot()
	assert.Equal(t, int64(2), snap.Started)
	assert.Equal(t, int64(2), snap.Completed)
	assert.Zero(t, m.Stats().InFlight)
}

func TestCapacity(t *testing.T) {
	m := newMux(t, iouring.Options{Entries: 4, MaxOperations: 1})
	var ev handle.Event
	require.NoError(t, ev.SetMultiplexer(m, nil))
	require.NoError(t, ev.Create(false, false))
	defer ev.Destroy()

	first, err := ev.WaitAsync()
	require.NoError(t, err)
	_, err = ev.WaitAsync()
	assert.ErrorIs(t, err, api.ErrTooManyConcurrentAsyncOperations)
	assert.Equal(t, 1, m.Stats().Capacity)

	require.NoError(t, ev.Signal())
	_, err = first.Wait(api.After(5 * time.Second))
	require.NoError(t, err)
}

func TestCancelPendingWait(t *testing.T) {
	counters := new(control.Counters)
	m := newMux(t, iouring.Options{Counters: counters})
	var ev handle.Event
	require.NoError(t, ev.SetMultiplexer(m, nil))
	require.NoError(t, ev.Create(false, false))
	defer ev.Destroy()

	wait, err := ev.WaitAsync()
	require.NoError(t, err)
	require.NoError(t, wait.Cancel())
	_, err = wait.Wait(api.After(5 * time.Second))
	assert.ErrorIs(t, err, api.ErrAsyncOperationCancelled)
	assert.Equal(t, int64(1), counters.Snapshot().Cancelled)
}

func TestSocketRoundTrip(t *testing.T) {
	m := newMux(t, iouring.Options{})
	var (
		l              handle.ListenSocket
		client, server handle.StreamSocket
	)
	for _, b := range []interface {
		SetMultiplexer(api.Multiplexer, api.RelationProvider) error
	}{&l, &client, &server} {
		require.NoError(t, b.SetMultiplexer(m, nil))
	}
	require.NoError(t, l.Listen(netip.MustParseAddrPort("127.0.0.1:0")))
	defer l.Destroy()
	addr, err := l.LocalAddress()
	require.NoError(t, err)

	require.NoError(t, client.Create(object.IPv4))
	defer client.Destroy()
	connect, err := client.ConnectAsync(addr)
	require.NoError(t, err)
	_, err = l.Accept(&server, object.WithTimeout(5*time.Second))
	require.NoError(t, err)
	defer server.Destroy()
	_, err = connect.Wait(api.After(5 * time.Second))
	require.NoError(t, err)

	n, err := client.Write([]byte("ping"), object.WithTimeout(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	buf := make([]byte, 8)
	n, err = server.Read(buf, object.WithTimeout(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestPollWithoutOperations(t *testing.T) {
	m := newMux(t, iouring.Options{})
	assert.NoError(t, m.Poll(api.Instant()))
	assert.ErrorIs(t, m.Poll(api.Never()), api.ErrAsyncOperationNotInProgress)
	assert.ErrorIs(t, m.Poll(api.After(10*time.Millisecond)), api.ErrAsyncOperationTimedOut)
}

// stacks yields the bare multiplexer and the same multiplexer behind the
// queueing decorator.
func stacks(opts iouring.Options) map[string]func(t *testing.T) (api.Multiplexer, *iouring.Multiplexer) {
	return map[string]func(t *testing.T) (api.Multiplexer, *iouring.Multiplexer){
		"bare": func(t *testing.T) (api.Multiplexer, *iouring.Multiplexer) {
			m := newMux(t, opts)
			return m, m
		},
		"queueing": func(t *testing.T) (api.Multiplexer, *iouring.Multiplexer) {
			m := newMux(t, opts)
			return queueing.New(m, nil), m
		},
	}
}

func TestReopenRoundTrip(t *testing.T) {
	for name, build := range stacks(iouring.Options{Entries: 8}) {
		t.Run(name, func(t *testing.T) {
			mux, _ := build(t)
			path := filepath.Join(t.TempDir(), "allio")
			var f handle.File
			require.NoError(t, f.SetMultiplexer(mux, nil))

			require.NoError(t, f.Open(path, object.WriteOnly, object.CreateOrTruncate))
			n, err := f.WriteAt([]byte("allio"), 0)
			require.NoError(t, err)
			assert.Equal(t, 5, n)
			require.NoError(t, f.Close())
			assert.True(t, f.IsNull())

			require.NoError(t, f.Open(path, object.ReadOnly, object.OpenExisting))
			defer f.Destroy()
			buf := make([]byte, 5)
			n, err = f.ReadAt(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, 5, n)
			assert.Equal(t, "allio", string(buf))
		})
	}
}

func openFilled(t *testing.T, mux api.Multiplexer, f *handle.File, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), content)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, f.SetMultiplexer(mux, nil))
	require.NoError(t, f.Open(path, object.ReadOnly, object.OpenExisting))
	t.Cleanup(f.Destroy)
}

func TestCapacityOneAcrossHandles(t *testing.T) {
	opts := iouring.Options{Entries: 4, MaxOperations: 1}
	for name, build := range stacks(opts) {
		t.Run(name, func(t *testing.T) {
			mux, m := build(t)
			var a, b handle.File
			openFilled(t, mux, &a, "first")
			openFilled(t, mux, &b, "other")

			first, err := a.ReadAtAsync(make([]byte, 5), 0)
			require.NoError(t, err)
			second, err := b.ReadAtAsync(make([]byte, 5), 0)
			if name == "bare" {
				assert.ErrorIs(t, err, api.ErrTooManyConcurrentAsyncOperations)
				n, err := first.Wait(api.After(5 * time.Second))
				require.NoError(t, err)
				assert.Equal(t, 5, n)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, mux.(*queueing.Multiplexer).Queued())
			assert.Equal(t, 1, m.Stats().InFlight)

			for _, pd := range []*handle.Pending[int]{first, second} {
				n, err := pd.Wait(api.After(5 * time.Second))
				require.NoError(t, err)
				assert.Equal(t, 5, n)
			}
			assert.Zero(t, m.Stats().InFlight)
		})
	}
}
