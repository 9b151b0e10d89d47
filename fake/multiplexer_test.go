package fake_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
	"github.com/momentics/allio/fake"
	"github.com/momentics/allio/object"
)

func readAt(t *testing.T, m *fake.Multiplexer, tag uint64, done *[]uint64) *api.Operation {
	t.Helper()
	rel, err := m.FindHandleRelation(object.File.ID())
	require.NoError(t, err)
	i, ok := rel.Find(object.OpReadAt)
	require.True(t, ok)
	op := &api.Operation{
		Native: api.NativeHandle{Handle: 1, Flags: api.FlagNotNull},
		Args:   &object.RandomAccessParams{Buffer: make([]byte, 4)},
		Tag:    tag,
		Notify: func(op *api.Operation) { *done = append(*done, op.Tag) },
	}
	require.NoError(t, m.Construct(&rel.Operations[i], op))
	return op
}

func TestCompletionsFollowReadyOrder(t *testing.T) {
	m := fake.New(fake.Options{Manual: true})
	var done []uint64
	a := readAt(t, m, 1, &done)
	b := readAt(t, m, 2, &done)
	c := readAt(t, m, 3, &done)
	for _, op := range []*api.Operation{a, b, c} {
		require.NoError(t, m.Start(op))
	}
	require.NoError(t, m.Complete(c, fake.Result{N: 4}))
	require.NoError(t, m.Complete(a, fake.Result{N: 4}))
	require.NoError(t, m.Poll(api.Instant()))
	assert.Equal(t, []uint64{3, 1}, done)
	assert.Equal(t, 1, m.InFlight())
	assert.ErrorIs(t, m.Complete(a, fake.Result{}), api.ErrAsyncOperationNotInProgress)

	require.NoError(t, m.Close())
	assert.Equal(t, []uint64{3, 1, 2}, done)
	assert.ErrorIs(t, b.Err, api.ErrAsyncOperationCancelled)
}

func TestAutomaticModeCompletesInStartOrder(t *testing.T) {
	counters := &control.Counters{}
	m := fake.New(fake.Options{Counters: counters})
	var done []uint64
	for tag := uint64(1); tag <= 20; tag++ {
		require.NoError(t, m.Start(readAt(t, m, tag, &done)))
	}
	require.NoError(t, m.Poll(api.Never()))
	require.Len(t, done, 20)
	for i, tag := range done {
		assert.Equal(t, uint64(i+1), tag)
	}
	s := counters.Snapshot()
	assert.Equal(t, int64(20), s.Started)
	assert.Equal(t, int64(20), s.Completed)
	assert.Zero(t, s.InFlight)
}

func TestCapacityRejects(t *testing.T) {
	counters := &control.Counters{}
	m := fake.New(fake.Options{Capacity: 1, Counters: counters})
	var done []uint64
	require.NoError(t, m.Start(readAt(t, m, 1, &done)))
	second := readAt(t, m, 2, &done)
	assert.ErrorIs(t, m.Start(second), api.ErrTooManyConcurrentAsyncOperations)
	assert.Equal(t, api.StateConstructed, second.State())
	assert.Equal(t, int64(1), counters.Snapshot().Rejected)
}

func TestPollWithoutWork(t *testing.T) {
	m := fake.New(fake.Options{Manual: true})
	assert.NoError(t, m.Poll(api.Instant()))
	assert.ErrorIs(t, m.Poll(api.Never()), api.ErrAsyncOperationNotInProgress)

	began := time.Now()
	assert.ErrorIs(t, m.Poll(api.After(15*time.Millisecond)), api.ErrAsyncOperationTimedOut)
	assert.GreaterOrEqual(t, time.Since(began), 15*time.Millisecond)
}

func TestCancelDeliveredOnNextPoll(t *testing.T) {
	m := fake.New(fake.Options{Manual: true})
	var done []uint64
	op := readAt(t, m, 7, &done)
	assert.ErrorIs(t, m.Cancel(op), api.ErrAsyncOperationNotInProgress)
	require.NoError(t, m.Start(op))
	require.NoError(t, m.Cancel(op))
	assert.Empty(t, done)
	require.NoError(t, m.Poll(api.Instant()))
	assert.Equal(t, []uint64{7}, done)
	assert.ErrorIs(t, op.Err, api.ErrAsyncOperationCancelled)
	assert.ErrorIs(t, m.Cancel(op), api.ErrAsyncOperationNotInProgress)
}

func TestSynchronousEntriesAreNotConstructed(t *testing.T) {
	m := fake.New(fake.Options{})
	rel, err := m.FindHandleRelation(object.Event.ID())
	require.NoError(t, err)
	i, ok := rel.Find(object.OpSignal)
	require.True(t, ok)
	assert.True(t, rel.Operations[i].Synchronous)
	assert.ErrorIs(t, m.Construct(&rel.Operations[i], &api.Operation{}), api.ErrUnsupportedAsynchronousOperation)
}

func TestOmitRemovesOperations(t *testing.T) {
	m := fake.New(fake.Options{Omit: []api.OperationID{object.OpAccept}})
	rel, err := m.FindHandleRelation(object.ListenSocket.ID())
	require.NoError(t, err)
	_, ok := rel.Find(object.OpAccept)
	assert.False(t, ok)
	_, ok = rel.Find(object.OpClose)
	assert.True(t, ok)
}
