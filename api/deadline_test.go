package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/api"
)

func TestDeadlineKinds(t *testing.T) {
	var zero api.Deadline
	assert.True(t, zero.IsNever())
	assert.True(t, api.Never().IsNever())
	assert.True(t, api.Instant().IsInstant())
	assert.True(t, api.After(0).IsInstant())
	assert.True(t, api.After(-time.Second).IsInstant())

	d := api.After(3 * time.Second)
	assert.True(t, d.IsRelative())
	assert.Equal(t, 3*time.Second, d.Duration())
	assert.Equal(t, "after 3s", d.String())

	at := time.Now().Add(time.Minute)
	a := api.At(at)
	assert.True(t, a.IsAbsolute())
	assert.WithinDuration(t, at, a.Time(), time.Microsecond)
}

func TestDeadlineRemaining(t *testing.T) {
	now := time.Now()
	_, ok := api.Never().Remaining(now)
	assert.False(t, ok)
	assert.Equal(t, -1, api.Never().Milliseconds(now))
	assert.Equal(t, 0, api.Instant().Milliseconds(now))
	assert.Equal(t, 2, api.After(1500*time.Microsecond).Milliseconds(now))

	past := api.At(now.Add(-time.Second))
	left, ok := past.Remaining(now)
	assert.True(t, ok)
	assert.Zero(t, left)
}

func TestDeadlineAbsoluteAndEarliest(t *testing.T) {
	now := time.Now()
	abs := api.After(time.Second).Absolute(now)
	require.True(t, abs.IsAbsolute())
	left, _ := abs.Remaining(now)
	assert.InDelta(t, float64(time.Second), float64(left), float64(time.Microsecond))

	assert.Equal(t, api.Instant(), api.Instant().Absolute(now))
	assert.Equal(t, api.Never(), api.Never().Absolute(now))

	short := api.After(time.Millisecond)
	long := api.At(now.Add(time.Hour))
	assert.Equal(t, short, short.Earliest(long, now))
	assert.Equal(t, short, long.Earliest(short, now))
	assert.Equal(t, long, api.Never().Earliest(long, now))
	assert.Equal(t, long, long.Earliest(api.Never(), now))
}

func TestStepDeadline(t *testing.T) {
	s := api.NewStepDeadline(api.Never())
	d, err := s.Step()
	require.NoError(t, err)
	assert.True(t, d.IsNever())

	s = api.NewStepDeadline(api.After(time.Hour))
	assert.True(t, s.Deadline().IsAbsolute())
	d, err = s.Step()
	require.NoError(t, err)
	assert.True(t, d.IsRelative())
	assert.LessOrEqual(t, d.Duration(), time.Hour)

	s = api.NewStepDeadline(api.After(time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	d, err = s.Step()
	assert.ErrorIs(t, err, api.ErrAsyncOperationTimedOut)
	assert.True(t, d.IsInstant())
}
