package object_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/object"
)

func TestTypeChainComposesOperations(t *testing.T) {
	assert.Equal(t, []api.OperationID{object.OpClose}, object.Object.Operations())
	assert.Equal(t, object.Object.Operations(), object.FSObject.Operations())

	ops := object.File.Operations()
	require.Len(t, ops, 6)
	assert.Equal(t, object.OpClose, ops[0], "base operations come first")

	i, ok := object.File.Index(object.OpReadAt)
	require.True(t, ok)
	assert.Equal(t, object.OpReadAt, ops[i])

	assert.False(t, object.File.Supports(object.OpAccept))
	assert.True(t, object.ListenSocket.Supports(object.OpAccept))
	assert.True(t, object.StreamSocket.Supports(object.OpClose))
}

func TestTypeIs(t *testing.T) {
	assert.True(t, object.File.Is(object.FSObject))
	assert.True(t, object.File.Is(object.PlatformObject))
	assert.True(t, object.File.Is(object.Object))
	assert.False(t, object.File.Is(object.SocketObject))
	assert.True(t, object.StreamSocket.Is(object.SocketObject))
	assert.False(t, object.Object.Is(object.File))
}

func TestTypeIDsAreDistinct(t *testing.T) {
	seen := map[api.TypeID]string{}
	for _, typ := range object.Concrete {
		require.NotEqual(t, api.NoType, typ.ID())
		_, dup := seen[typ.ID()]
		require.False(t, dup, typ.Name())
		seen[typ.ID()] = typ.Name()
		assert.Equal(t, typ.Name(), typ.ID().String())
	}
}

func TestDefineSkipsInheritedOperations(t *testing.T) {
	derived := object.Define("derived_file", object.File, object.OpClose, object.OpWait)
	assert.Equal(t, object.File.NumOperations()+1, derived.NumOperations())
	assert.Same(t, object.File, derived.Base())
}

func TestOptionsDefaults(t *testing.T) {
	o := object.NewOptions()
	assert.True(t, o.Deadline.IsNever())
	assert.False(t, o.Inheritable)
	assert.Equal(t, object.DefaultBacklog, o.Backlog)

	o = object.NewOptions(
		object.WithTimeout(time.Second),
		object.Inheritable(),
		object.WithBacklog(4),
		nil,
	)
	assert.True(t, o.Deadline.IsRelative())
	assert.Equal(t, time.Second, o.Deadline.Duration())
	assert.True(t, o.Inheritable)
	assert.Equal(t, 4, o.Backlog)
}

func TestParamsExposeOptions(t *testing.T) {
	p := &object.RandomAccessParams{Buffer: []byte("allio"), Options: object.NewOptions(object.WithDeadline(api.Instant()))}
	var params object.Params = p
	assert.True(t, params.Optional().Deadline.IsInstant())
}

func TestLaunchArgumentsSize(t *testing.T) {
	p := &object.LaunchProcessParams{Path: "/bin/true", Args: []string{"true", "-x"}}
	p.Environment = []string{"A=1"}
	assert.Equal(t, 5+3+4, p.ArgumentsSize())
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, object.IPv4, object.FamilyOf(netip.MustParseAddrPort("127.0.0.1:80")))
	assert.Equal(t, object.IPv6, object.FamilyOf(netip.MustParseAddrPort("[::1]:80")))
}

func TestOperationNames(t *testing.T) {
	assert.Equal(t, "read_at", object.OperationName(object.OpReadAt))
	assert.Equal(t, "operation(200)", object.OperationName(200))
	assert.Equal(t, object.Observer, object.ReadAt.Kind)
	assert.Equal(t, object.Producer, object.Close.Kind)
	assert.Equal(t, "close", object.Close.String())
}
