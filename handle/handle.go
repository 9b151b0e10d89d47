// File: handle/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package handle owns native resources and routes their operations either
// to a bound multiplexer or to direct system calls.
//
// A zero handle is null and unbound. Handles are move-only: transfer
// ownership with Release and Adopt, never by copying a used value.

package handle

import (
	"github.com/momentics/allio/api"
	"github.com/momentics/allio/internal/platform"
	"github.com/momentics/allio/object"
	"github.com/momentics/allio/relation"
)

// Kind fixes the object type of a handle at compile time.
type Kind interface {
	Type() *object.Type
}

type (
	FileKind         struct{}
	StreamSocketKind struct{}
	ListenSocketKind struct{}
	EventKind        struct{}
	TimerKind        struct{}
	ProcessKind      struct{}
)

func (FileKind) Type() *object.Type         { return object.File }
func (StreamSocketKind) Type() *object.Type { return object.StreamSocket }
func (ListenSocketKind) Type() *object.Type { return object.ListenSocket }
func (EventKind) Type() *object.Type        { return object.Event }
func (TimerKind) Type() *object.Type        { return object.Timer }
func (ProcessKind) Type() *object.Type      { return object.Process }

// noCopy trips go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle is the state shared by every concrete handle type. A handle is
// not safe for concurrent use.
type Handle[K Kind] struct {
	_ noCopy

	native    api.NativeHandle
	mux       api.Multiplexer
	provider  api.RelationProvider
	relation  *api.Relation
	connector api.Connector
	table     relation.OperationTable
}

// Type returns the handle's object type.
func (h *Handle[K]) Type() *object.Type {
	var k K
	return k.Type()
}

// Native returns the owned native handle, null when none is owned.
func (h *Handle[K]) Native() api.NativeHandle { return h.native }

// IsNull reports whether the handle owns no resource.
func (h *Handle[K]) IsNull() bool { return h.native.IsNull() }

// Multiplexer returns the bound multiplexer, nil when unbound.
func (h *Handle[K]) Multiplexer() api.Multiplexer { return h.mux }

// Relation returns the cached relation, nil exactly when unbound.
func (h *Handle[K]) Relation() *api.Relation { return h.relation }

// Opaque exposes the native handle through the stable two-field ABI.
func (h *Handle[K]) Opaque() api.OpaqueHandle {
	return api.OpaqueHandle{Handle: h.native.Handle, Information: platform.PollFlags(h.native)}
}

func (h *Handle[K]) hooks() *api.Hooks {
	if h.mux != nil {
		return h.mux.Hooks()
	}
	return api.DefaultHooks()
}

// SetMultiplexer binds the handle to mux, resolving the relation through
// provider, or through mux itself when provider is nil. A nil mux unbinds.
// Binding to the current multiplexer and relation is a no-op.
//
// If the handle was bound and registering with mux fails, the old binding
// is already gone: the handle is left unbound, still owning its resource,
// and the error is a *api.RebindError with Unbound set.
func (h *Handle[K]) SetMultiplexer(mux api.Multiplexer, provider api.RelationProvider) error {
	if mux == nil {
		if h.mux != nil {
			h.deregister()
			h.unbind()
		}
		return nil
	}
	rel, err := resolve(mux, provider, h.Type())
	if err != nil {
		return err
	}
	if mux == h.mux && rel == h.relation {
		h.provider = provider
		return nil
	}
	wasBound := h.mux != nil
	h.deregister()
	h.unbind()
	if !h.native.IsNull() {
		c, err := register(rel, mux, h.native)
		if err != nil {
			if wasBound {
				return &api.RebindError{Err: err, Unbound: true}
			}
			return err
		}
		h.connector = c
	}
	h.mux, h.provider, h.relation = mux, provider, rel
	h.table = relation.NewOperationTable(h.Type(), rel)
	return nil
}

func resolve(mux api.Multiplexer, provider api.RelationProvider, typ *object.Type) (*api.Relation, error) {
	var (
		rel *api.Relation
		err error
	)
	if provider != nil {
		rel, err = provider.FindMultiplexerHandleRelation(mux.TypeID(), typ.ID())
	} else {
		rel, err = mux.FindHandleRelation(typ.ID())
	}
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, api.ErrUnsupportedMultiplexerHandleRelation
	}
	return rel, nil
}

func register(rel *api.Relation, mux api.Multiplexer, n api.NativeHandle) (api.Connector, error) {
	return api.RegisterHandle(mux, rel, n)
}

// deregister drops the registration of an owned resource. Failures cannot
// be reported to the caller and go to the unrecoverable error hook.
func (h *Handle[K]) deregister() {
	if h.mux == nil || h.native.IsNull() {
		return
	}
	if err := api.DeregisterHandle(h.mux, h.relation, h.native, h.connector); err != nil {
		h.hooks().ReportUnrecoverable(err)
	}
	h.connector = nil
}

func (h *Handle[K]) unbind() {
	h.mux, h.provider, h.relation, h.connector, h.table = nil, nil, nil, nil, nil
}

// Adopt takes ownership of n, registering it with the bound multiplexer.
// On failure the caller keeps ownership of n.
func (h *Handle[K]) Adopt(n api.NativeHandle) error {
	if !h.native.IsNull() {
		return api.ErrHandleIsNotNull
	}
	if n.IsNull() {
		return nil
	}
	if h.mux != nil {
		c, err := register(h.relation, h.mux, n)
		if err != nil {
			return err
		}
		h.connector = c
	}
	h.native = n
	return nil
}

// Release gives up ownership of the native handle, deregistering it. The
// handle stays bound and becomes null.
func (h *Handle[K]) Release() api.NativeHandle {
	h.deregister()
	n := h.native
	h.native = api.NativeHandle{}
	return n
}

// Close deregisters and closes the resource. The handle is null afterwards
// even when closing fails; it stays bound.
func (h *Handle[K]) Close() error {
	if h.native.IsNull() {
		return api.ErrHandleIsNull
	}
	n := h.Release()
	return platform.Close(n)
}

// Destroy closes any owned resource and unbinds. Close failures go to the
// unrecoverable error hook.
func (h *Handle[K]) Destroy() {
	hooks := h.hooks()
	if !h.native.IsNull() {
		if err := h.Close(); err != nil {
			hooks.ReportUnrecoverable(err)
		}
	}
	h.unbind()
}

// descriptor returns the relation entry for op, nil when the handle is
// unbound or the relation lacks op.
func (h *Handle[K]) descriptor(op api.OperationID) *api.OperationDescriptor {
	if h.mux == nil {
		return nil
	}
	return h.table.Descriptor(h.Type(), h.relation, op)
}

// create runs a producer that yields a new resource and adopts it. If the
// new resource cannot be registered it is closed again.
func create[K Kind, P object.Params](h *Handle[K], p P, open func(P) (api.NativeHandle, error)) error {
	if !h.native.IsNull() {
		return api.ErrHandleIsNotNull
	}
	n, err := open(p)
	if err != nil {
		return err
	}
	if err := h.Adopt(n); err != nil {
		if cerr := platform.Close(n); cerr != nil {
			h.hooks().ReportUnrecoverable(cerr)
		}
		return err
	}
	return nil
}
