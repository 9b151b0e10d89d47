package control_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
)

func TestCountersClassifyCompletions(t *testing.T) {
	c := new(control.Counters)
	for i := 0; i < 4; i++ {
		c.OnStart()
	}
	c.OnComplete(nil)
	c.OnComplete(api.ErrAsyncOperationCancelled)
	c.OnComplete(fmt.Errorf("wrapped: %w", api.ErrAsyncOperationTimedOut))
	c.OnQueue()
	c.OnReject()

	s := c.Snapshot()
	assert.Equal(t, control.CounterSnapshot{
		Started:   4,
		Completed: 1,
		Cancelled: 1,
		TimedOut:  1,
		Queued:    1,
		Rejected:  1,
		InFlight:  1,
	}, s)

	c.OnComplete(api.ErrHandleIsNull)
	assert.Equal(t, int64(1), c.Snapshot().Failed)
	assert.Zero(t, c.Snapshot().InFlight)
}

func TestNilCounters(t *testing.T) {
	var c *control.Counters
	assert.NotPanics(t, func() {
		c.OnStart()
		c.OnComplete(nil)
		c.OnQueue()
		c.OnReject()
	})
	assert.Zero(t, c.Snapshot())
}

func TestPublish(t *testing.T) {
	c := new(control.Counters)
	c.OnStart()
	mr := control.NewMetricsRegistry()
	c.Publish(mr, "ops")
	snap := mr.GetSnapshot()
	assert.Equal(t, int64(1), snap["ops.started"])
	assert.Equal(t, int64(1), snap["ops.in_flight"])
	assert.Len(t, snap, 8)
}

func TestConfigStore(t *testing.T) {
	cs := control.NewConfigStore()
	cs.SetConfig(map[string]any{"backend": "epoll", "entries": 8})
	cs.SetConfig(map[string]any{"entries": 16})

	snap := cs.GetSnapshot()
	assert.Equal(t, map[string]any{"backend": "epoll", "entries": 16}, snap)
	snap["backend"] = "mutated"
	assert.Equal(t, "epoll", cs.GetSnapshot()["backend"])
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	n := 0
	remove := dp.RegisterProbe("calls", func() any { n++; return n })
	control.RegisterPlatformProbes(dp)

	state := dp.DumpState()
	assert.Equal(t, 1, state["calls"])
	assert.Contains(t, state, "platform.cpus")

	remove()
	assert.NotContains(t, dp.DumpState(), "calls")
}

func TestRemoveKeepsReplacement(t *testing.T) {
	dp := control.NewDebugProbes()
	stale := dp.RegisterProbe("p", func() any { return "old" })
	dp.RegisterProbe("p", func() any { return "new" })
	stale()
	assert.Equal(t, map[string]any{"p": "new"}, dp.DumpState())
}

func TestDumpAllowsRegistration(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("outer", func() any {
		dp.RegisterProbe("inner", func() any { return 2 })
		return 1
	})
	assert.Equal(t, 1, dp.DumpState()["outer"])
	assert.Equal(t, 2, dp.DumpState()["inner"])
}
