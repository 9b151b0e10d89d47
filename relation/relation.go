// File: relation/relation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package relation resolves (multiplexer type, handle type) pairs to the
// relation describing how the multiplexer dispatches the handle's operations.
package relation

import (
	"github.com/momentics/allio/api"
)

// Null never resolves a relation. It stands in for builds without any
// multiplexer integration.
type Null struct{}

func (Null) FindMultiplexerHandleRelation(_, _ api.TypeID) (*api.Relation, error) {
	return nil, api.ErrUnsupportedMultiplexerHandleRelation
}

// Entry is one row of a Table.
type Entry struct {
	HandleType api.TypeID
	Relation   *api.Relation
}

// Table is a linear table of relations for a single multiplexer type. The
// table is small (one row per concrete handle type) and consulted once per
// bind, so a scan beats a map.
type Table struct {
	multiplexer api.TypeID
	entries     []Entry
}

// NewTable builds a table for multiplexer from relations. Rows keep the
// given order; a nil relation is kept as a placeholder that never matches.
func NewTable(multiplexer api.TypeID, relations ...*api.Relation) *Table {
	t := &Table{multiplexer: multiplexer, entries: make([]Entry, 0, len(relations))}
	for _, r := range relations {
		e := Entry{Relation: r}
		if r != nil {
			e.HandleType = r.HandleType
		}
		t.entries = append(t.entries, e)
	}
	return t
}

// MultiplexerType returns the multiplexer type the table serves.
func (t *Table) MultiplexerType() api.TypeID { return t.multiplexer }

// Entries returns the rows; the slice must not be modified.
func (t *Table) Entries() []Entry { return t.entries }

// Find returns the first relation for handleType.
func (t *Table) Find(handleType api.TypeID) (*api.Relation, error) {
	if t == nil {
		return nil, api.ErrUnsupportedMultiplexerHandleRelation
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.HandleType == handleType && e.Relation != nil {
			return e.Relation, nil
		}
	}
	return nil, api.ErrUnsupportedMultiplexerHandleRelation
}

func (t *Table) FindMultiplexerHandleRelation(multiplexerType, handleType api.TypeID) (*api.Relation, error) {
	if t == nil || multiplexerType != t.multiplexer {
		return nil, api.ErrUnsupportedMultiplexerHandleRelation
	}
	return t.Find(handleType)
}

// Composite chains providers; the first to resolve wins.
type Composite []api.RelationProvider

func (c Composite) FindMultiplexerHandleRelation(multiplexerType, handleType api.TypeID) (*api.Relation, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if r, err := p.FindMultiplexerHandleRelation(multiplexerType, handleType); err == nil && r != nil {
			return r, nil
		}
	}
	return nil, api.ErrUnsupportedMultiplexerHandleRelation
}
