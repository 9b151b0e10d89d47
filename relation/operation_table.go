// File: relation/operation_table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package relation

import (
	"github.com/momentics/allio/api"
	"github.com/momentics/allio/object"
)

// NoOperation marks a logical operation the relation does not support.
const NoOperation = -1

// OperationTable maps a handle type's logical operation index (position in
// object.Type.Operations) to an index into a relation's Operations. It is
// resolved once per bind and cached on the handle.
type OperationTable []int16

// NewOperationTable resolves every operation of typ against r. A nil r
// yields a table of NoOperation entries.
func NewOperationTable(typ *object.Type, r *api.Relation) OperationTable {
	ops := typ.Operations()
	t := make(OperationTable, len(ops))
	for i, op := range ops {
		t[i] = NoOperation
		if j, ok := r.Find(op); ok {
			t[i] = int16(j)
		}
	}
	return t
}

// Lookup returns the relation index for logical index i.
func (t OperationTable) Lookup(i int) (int, bool) {
	if i < 0 || i >= len(t) || t[i] == NoOperation {
		return 0, false
	}
	return int(t[i]), true
}

// Descriptor returns r's descriptor for op of typ, or nil when unsupported.
func (t OperationTable) Descriptor(typ *object.Type, r *api.Relation, op api.OperationID) *api.OperationDescriptor {
	if r == nil {
		return nil
	}
	i, ok := typ.Index(op)
	if !ok {
		return nil
	}
	j, ok := t.Lookup(i)
	if !ok || j >= len(r.Operations) {
		return nil
	}
	return &r.Operations[j]
}
