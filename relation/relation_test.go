package relation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/object"
	"github.com/momentics/allio/relation"
)

var (
	muxA = api.NewTypeID("relation_test_a")
	muxB = api.NewTypeID("relation_test_b")
)

func fileRelation(mux api.TypeID, ops ...api.OperationID) *api.Relation {
	r := &api.Relation{MultiplexerType: mux, HandleType: object.File.ID()}
	for _, op := range ops {
		r.Operations = append(r.Operations, api.OperationDescriptor{Operation: op, Synchronous: true})
	}
	return r
}

func TestTableFind(t *testing.T) {
	file := fileRelation(muxA, object.OpClose)
	tbl := relation.NewTable(muxA, nil, file)
	assert.Equal(t, muxA, tbl.MultiplexerType())
	assert.Len(t, tbl.Entries(), 2)

	r, err := tbl.Find(object.File.ID())
	require.NoError(t, err)
	assert.Same(t, file, r)

	_, err = tbl.Find(object.Event.ID())
	assert.ErrorIs(t, err, api.ErrUnsupportedMultiplexerHandleRelation)

	_, err = tbl.FindMultiplexerHandleRelation(muxB, object.File.ID())
	assert.ErrorIs(t, err, api.ErrUnsupportedMultiplexerHandleRelation)

	var nilTable *relation.Table
	_, err = nilTable.FindMultiplexerHandleRelation(muxA, object.File.ID())
	assert.ErrorIs(t, err, api.ErrUnsupportedMultiplexerHandleRelation)
}

func TestCompositeFirstMatchWins(t *testing.T) {
	first := fileRelation(muxA, object.OpClose)
	second := fileRelation(muxA, object.OpClose, object.OpRead)
	other := fileRelation(muxB)
	c := relation.Composite{
		nil,
		relation.Null{},
		relation.NewTable(muxB, other),
		relation.NewTable(muxA, first),
		relation.NewTable(muxA, second),
	}
	r, err := c.FindMultiplexerHandleRelation(muxA, object.File.ID())
	require.NoError(t, err)
	assert.Same(t, first, r)

	r, err = c.FindMultiplexerHandleRelation(muxB, object.File.ID())
	require.NoError(t, err)
	assert.Same(t, other, r)

	_, err = c.FindMultiplexerHandleRelation(muxA, object.Timer.ID())
	assert.ErrorIs(t, err, api.ErrUnsupportedMultiplexerHandleRelation)
}

func TestOperationTable(t *testing.T) {
	r := fileRelation(muxA, object.OpWriteAt, object.OpClose)
	tbl := relation.NewOperationTable(object.File, r)
	assert.Len(t, tbl, object.File.NumOperations())

	d := tbl.Descriptor(object.File, r, object.OpClose)
	require.NotNil(t, d)
	assert.Equal(t, object.OpClose, d.Operation)
	d = tbl.Descriptor(object.File, r, object.OpWriteAt)
	require.NotNil(t, d)
	assert.Equal(t, object.OpWriteAt, d.Operation)

	assert.Nil(t, tbl.Descriptor(object.File, r, object.OpRead))
	assert.Nil(t, tbl.Descriptor(object.File, r, object.OpAccept))
	assert.Nil(t, tbl.Descriptor(object.File, nil, object.OpClose))

	_, ok := tbl.Lookup(-1)
	assert.False(t, ok)

	empty := relation.NewOperationTable(object.File, nil)
	for i := range empty {
		_, ok := empty.Lookup(i)
		assert.False(t, ok)
	}
}
