package handle_test

import (
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
	"github.com/momentics/allio/fake"
	"github.com/momentics/allio/handle"
	"github.com/momentics/allio/object"
	"github.com/momentics/allio/relation"
)

// stub is a native handle the in-memory multiplexer never touches.
var stub = api.NativeHandle{Handle: 42, Flags: api.FlagNotNull}

func needFiles(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" && runtime.GOOS != "windows" {
		t.Skip("files are not provided on " + runtime.GOOS)
	}
}

func openTemp(t *testing.T, f *handle.File) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roundtrip")
	require.NoError(t, f.Open(path, object.ReadWrite, object.CreateOrTruncate))
	t.Cleanup(func() {
		if !f.IsNull() {
			assert.NoError(t, f.Close())
		}
	})
}

func TestNullHandleInvariants(t *testing.T) {
	var f handle.File
	assert.True(t, f.IsNull())
	assert.Nil(t, f.Relation())
	assert.Nil(t, f.Multiplexer())
	assert.Equal(t, object.File, f.Type())

	_, err := f.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, api.ErrHandleIsNull)
	_, err = f.WriteAsync([]byte("x"))
	assert.ErrorIs(t, err, api.ErrHandleIsNull)
	assert.ErrorIs(t, f.Close(), api.ErrHandleIsNull)

	var e handle.Event
	assert.ErrorIs(t, e.Signal(), api.ErrHandleIsNull)
}

func TestUnbindIsIdempotent(t *testing.T) {
	var f handle.File
	require.NoError(t, f.SetMultiplexer(nil, nil))
	require.NoError(t, f.SetMultiplexer(nil, nil))
	assert.Nil(t, f.Relation())

	mux := fake.New(fake.Options{})
	require.NoError(t, f.SetMultiplexer(mux, nil))
	assert.NotNil(t, f.Relation())
	require.NoError(t, f.SetMultiplexer(mux, nil))

	require.NoError(t, f.SetMultiplexer(nil, nil))
	require.NoError(t, f.SetMultiplexer(nil, nil))
	assert.Nil(t, f.Relation())
	assert.Nil(t, f.Multiplexer())
}

func TestBindWithoutRelationFails(t *testing.T) {
	var f handle.File
	err := f.SetMultiplexer(fake.New(fake.Options{}), relation.Null{})
	assert.ErrorIs(t, err, api.ErrUnsupportedMultiplexerHandleRelation)
	assert.Nil(t, f.Relation())
}

func TestCreateOnOpenHandleFails(t *testing.T) {
	var f handle.File
	require.NoError(t, f.Adopt(stub))
	defer f.Release()
	assert.ErrorIs(t, f.Adopt(stub), api.ErrHandleIsNotNull)
	assert.ErrorIs(t, f.Open("whatever", object.ReadOnly, object.OpenExisting), api.ErrHandleIsNotNull)
}

func TestAsyncRequiresMultiplexer(t *testing.T) {
	var f handle.File
	require.NoError(t, f.Adopt(stub))
	defer f.Release()
	_, err := f.ReadAtAsync(make([]byte, 4), 0)
	assert.ErrorIs(t, err, api.ErrHandleIsNotMultiplexable)
}

func TestFileRoundTripUnbound(t *testing.T) {
	needFiles(t)
	var f handle.File
	openTemp(t, &f)

	n, err := f.WriteAt([]byte("allio"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "allio", string(buf))
}

func TestFileRoundTripThroughMultiplexer(t *testing.T) {
	needFiles(t)
	mux := fake.New(fake.Options{Perform: fake.Passthrough})
	var f handle.File
	require.NoError(t, f.SetMultiplexer(mux, nil))
	openTemp(t, &f)

	n, err := f.WriteAt([]byte("allio"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "allio", string(buf))
	assert.Len(t, mux.Started(), 2)
}

func TestUnsupportedOperationFallsBackToDirect(t *testing.T) {
	needFiles(t)
	mux := fake.New(fake.Options{Omit: []api.OperationID{object.OpReadAt, object.OpWriteAt}})
	var f handle.File
	require.NoError(t, f.SetMultiplexer(mux, nil))
	openTemp(t, &f)

	_, err := f.WriteAt([]byte("allio"), 0)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "allio", string(buf))
	assert.Empty(t, mux.Started())

	_, err = f.ReadAtAsync(buf, 0)
	assert.ErrorIs(t, err, api.ErrUnsupportedAsynchronousOperation)
}

func TestCapacityExhaustion(t *testing.T) {
	mux := fake.New(fake.Options{Capacity: 1})
	var f handle.File
	require.NoError(t, f.SetMultiplexer(mux, nil))
	require.NoError(t, f.Adopt(stub))
	defer f.Release()

	first, err := f.ReadAtAsync(make([]byte, 3), 0)
	require.NoError(t, err)
	_, err = f.ReadAtAsync(make([]byte, 3), 0)
	assert.ErrorIs(t, err, api.ErrTooManyConcurrentAsyncOperations)

	n, err := first.Wait(api.Never())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	second, err := f.ReadAtAsync(make([]byte, 2), 0)
	require.NoError(t, err)
	n, err = second.Wait(api.Never())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCancelCompletesExactlyOnce(t *testing.T) {
	mux := fake.New(fake.Options{Manual: true})
	var f handle.File
	require.NoError(t, f.SetMultiplexer(mux, nil))
	require.NoError(t, f.Adopt(stub))
	defer f.Release()

	pd, err := f.ReadAtAsync(make([]byte, 8), 0)
	require.NoError(t, err)
	calls := 0
	pd.OnComplete(func(_ int, err error) {
		calls++
		assert.ErrorIs(t, err, api.ErrAsyncOperationCancelled)
	})
	require.NoError(t, pd.Cancel())
	require.NoError(t, pd.Cancel())

	_, err = pd.Wait(api.Never())
	assert.ErrorIs(t, err, api.ErrAsyncOperationCancelled)
	require.NoError(t, mux.Poll(api.Instant()))
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, pd.Cancel(), api.ErrAsyncOperationNotInProgress)
}

func TestCompletionBeatsCancel(t *testing.T) {
	mux := fake.New(fake.Options{Manual: true})
	var f handle.File
	require.NoError(t, f.SetMultiplexer(mux, nil))
	require.NoError(t, f.Adopt(stub))
	defer f.Release()

	pd, err := f.ReadAtAsync(make([]byte, 8), 0)
	require.NoError(t, err)
	require.NoError(t, mux.Complete(pd.Operation(), fake.Result{N: 8}))
	require.NoError(t, pd.Cancel())

	n, err := pd.Wait(api.Never())
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestDeadlineSemantics(t *testing.T) {
	mux := fake.New(fake.Options{Manual: true})
	var f handle.File
	require.NoError(t, f.SetMultiplexer(mux, nil))
	require.NoError(t, f.Adopt(stub))
	defer f.Release()

	pd, err := f.ReadAtAsync(make([]byte, 1), 0)
	require.NoError(t, err)

	began := time.Now()
	_, err = pd.Wait(api.Instant())
	assert.ErrorIs(t, err, api.ErrAsyncOperationTimedOut)
	assert.Less(t, time.Since(began), 50*time.Millisecond)

	_, err = pd.Wait(api.After(20 * time.Millisecond))
	assert.ErrorIs(t, err, api.ErrAsyncOperationTimedOut)
	assert.GreaterOrEqual(t, time.Since(began), 20*time.Millisecond)
	assert.False(t, pd.Ready())

	require.NoError(t, pd.Cancel())
	_, err = pd.Wait(api.Never())
	assert.ErrorIs(t, err, api.ErrAsyncOperationCancelled)
}

func TestOperationDeadlineTimesOut(t *testing.T) {
	mux := fake.New(fake.Options{Manual: true})
	var f handle.File
	require.NoError(t, f.SetMultiplexer(mux, nil))
	require.NoError(t, f.Adopt(stub))
	defer f.Release()

	_, err := f.ReadAt(make([]byte, 1), 0, object.WithTimeout(10*time.Millisecond))
	assert.ErrorIs(t, err, api.ErrAsyncOperationTimedOut)
	assert.Zero(t, mux.InFlight())
}

func TestBlockingCallSettlesAfterPollFailure(t *testing.T) {
	counters := new(control.Counters)
	mux := fake.New(fake.Options{Manual: true, Counters: counters})
	var f handle.File
	require.NoError(t, f.SetMultiplexer(mux, nil))
	require.NoError(t, f.Adopt(stub))
	defer f.Release()

	// Nothing will ever complete the read, so polling fails.
	_, err := f.ReadAt(make([]byte, 4), 0)
	assert.ErrorIs(t, err, api.ErrAsyncOperationNotInProgress)
	assert.Zero(t, mux.InFlight())

	snap := counters.Snapshot()
	assert.Equal(t, int64(1), snap.Started)
	assert.Equal(t, int64(1), snap.Cancelled)
	assert.Zero(t, snap.InFlight)
	require.NoError(t, mux.Poll(api.Instant()))
	assert.Equal(t, int64(1), counters.Snapshot().Cancelled)
}

func TestPendingResultBeforeCompletion(t *testing.T) {
	mux := fake.New(fake.Options{Manual: true})
	var f handle.File
	require.NoError(t, f.SetMultiplexer(mux, nil))
	require.NoError(t, f.Adopt(stub))
	defer f.Release()

	pd, err := f.ReadAtAsync(make([]byte, 1), 0)
	require.NoError(t, err)
	_, err = pd.Result()
	assert.ErrorIs(t, err, handle.ErrPending)
	select {
	case <-pd.Done():
		t.Fatal("done before completion")
	default:
	}
	require.NoError(t, mux.Complete(pd.Operation(), fake.Result{N: 1}))
	require.NoError(t, mux.Poll(api.Instant()))
	<-pd.Done()
	n, err := pd.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func failingRelation(mux api.TypeID) api.RelationProvider {
	return relation.NewTable(mux, &api.Relation{
		MultiplexerType: mux,
		HandleType:      object.File.ID(),
		Register: func(api.Multiplexer, api.NativeHandle) (api.Connector, error) {
			return nil, errors.New("register refused")
		},
	})
}

func TestRebindFailureLeavesHandleUnbound(t *testing.T) {
	first := fake.New(fake.Options{})
	second := fake.New(fake.Options{})
	var f handle.File
	require.NoError(t, f.SetMultiplexer(first, nil))
	require.NoError(t, f.Adopt(stub))
	defer f.Release()

	err := f.SetMultiplexer(second, failingRelation(fake.TypeID))
	var rebind *api.RebindError
	require.ErrorAs(t, err, &rebind)
	assert.True(t, rebind.Unbound)
	assert.Nil(t, f.Multiplexer())
	assert.Nil(t, f.Relation())
	assert.False(t, f.IsNull())
}

func TestBindFailureWhenUnboundIsPlain(t *testing.T) {
	var f handle.File
	require.NoError(t, f.Adopt(stub))
	defer f.Release()
	err := f.SetMultiplexer(fake.New(fake.Options{}), failingRelation(fake.TypeID))
	require.Error(t, err)
	var rebind *api.RebindError
	assert.False(t, errors.As(err, &rebind))
}

func TestAsyncOnNullHandleFails(t *testing.T) {
	mux := fake.New(fake.Options{})
	var tm handle.Timer
	require.NoError(t, tm.SetMultiplexer(mux, nil))
	pd, err := tm.WaitAsync()
	assert.ErrorIs(t, err, api.ErrHandleIsNull)
	assert.Nil(t, pd)
}

func TestEventSignalRunsInlineWaitIsQueued(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("eventfd is linux only")
	}
	mux := fake.New(fake.Options{Perform: fake.Passthrough})
	var e handle.Event
	require.NoError(t, e.SetMultiplexer(mux, nil))
	require.NoError(t, e.Create(false, false))
	defer e.Destroy()

	require.NoError(t, e.Signal())
	assert.Empty(t, mux.Started())

	pd, err := e.WaitAsync(object.WithTimeout(time.Second))
	require.NoError(t, err)
	_, err = pd.Wait(api.Never())
	require.NoError(t, err)
	assert.Len(t, mux.Started(), 1)

	// Manual reset: still signaled.
	require.NoError(t, e.Wait(object.WithTimeout(time.Second)))
	require.NoError(t, e.Reset())
}

func TestTimerWaitThroughSimulation(t *testing.T) {
	mux := fake.New(fake.Options{})
	var tm handle.Timer
	require.NoError(t, tm.SetMultiplexer(mux, nil))
	require.NoError(t, tm.Adopt(stub))
	defer tm.Release()
	n, err := tm.Wait()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestOpaqueCarriesNativeHandle(t *testing.T) {
	var f handle.File
	require.NoError(t, f.Adopt(stub))
	defer f.Release()
	assert.Equal(t, uintptr(42), f.Opaque().Handle)
}

func TestReleaseTransfersOwnership(t *testing.T) {
	var a, b handle.File
	require.NoError(t, a.Adopt(stub))
	n := a.Release()
	assert.True(t, a.IsNull())
	require.NoError(t, b.Adopt(n))
	assert.Equal(t, stub, b.Release())
}

func TestProcessExitCodeUnbound(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process handles use pidfd")
	}
	var p handle.Process
	require.NoError(t, p.Launch("/bin/sh", []string{"sh", "-c", "exit 3"}))
	defer p.Destroy()
	assert.NotZero(t, p.Pid())

	st, err := p.Wait(object.WithTimeout(10 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3, st.Code)
}
