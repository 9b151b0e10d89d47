// File: fake/relations.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"github.com/momentics/allio/api"
	"github.com/momentics/allio/object"
	"github.com/momentics/allio/relation"
)

// synchronousOps never reach the in-memory queues.
var synchronousOps = map[api.OperationID]bool{
	object.OpCreate: true,
	object.OpClose:  true,
	object.OpSignal: true,
	object.OpReset:  true,
	object.OpSet:    true,
}

func newRelations(omit []api.OperationID) *relation.Table {
	skip := make(map[api.OperationID]bool, len(omit))
	for _, id := range omit {
		skip[id] = true
	}
	rels := make([]*api.Relation, 0, len(object.Concrete))
	for _, typ := range object.Concrete {
		rels = append(rels, newRelation(typ, skip))
	}
	return relation.NewTable(TypeID, rels...)
}

func newRelation(typ *object.Type, skip map[api.OperationID]bool) *api.Relation {
	r := &api.Relation{
		MultiplexerType: TypeID,
		HandleType:      typ.ID(),
		Register:        func(api.Multiplexer, api.NativeHandle) (api.Connector, error) { return nil, nil },
		Deregister:      func(api.Multiplexer, api.NativeHandle, api.Connector) error { return nil },
	}
	for _, id := range typ.Operations() {
		if skip[id] {
			continue
		}
		if synchronousOps[id] {
			r.Operations = append(r.Operations, api.OperationDescriptor{Operation: id, Synchronous: true})
			continue
		}
		r.Operations = append(r.Operations, api.OperationDescriptor{
			Operation: id,
			Construct: constructFor(typ),
			Start:     start,
			Notify:    notify,
		})
	}
	return r
}

func constructFor(typ *object.Type) func(api.Multiplexer, *api.Operation) error {
	return func(_ api.Multiplexer, op *api.Operation) error {
		op.Backend = &state{typ: typ}
		return nil
	}
}

func start(_ api.Multiplexer, op *api.Operation) error {
	st := op.Backend.(*state)
	st.step = api.NewStepDeadline(op.Deadline)
	st.queued = false
	return nil
}

func notify(mx api.Multiplexer, op *api.Operation, _ api.Completion) {
	mx.(*Multiplexer).finish(op)
}
