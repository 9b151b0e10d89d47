// File: handle/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import (
	"net/netip"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/internal/platform"
	"github.com/momentics/allio/object"
)

// StreamSocket is a connected or connecting TCP socket.
type StreamSocket struct {
	Handle[StreamSocketKind]
}

// Create opens an unconnected socket of family.
func (s *StreamSocket) Create(family object.AddressFamily, opts ...object.Option) error {
	p := &object.SocketParams{Family: family, Options: object.NewOptions(opts...)}
	return create(&s.Handle, p, func(p *object.SocketParams) (api.NativeHandle, error) {
		return platform.Socket(p.Family, &p.Options)
	})
}

func (s *StreamSocket) connectParams(addr netip.AddrPort, opts []object.Option) *object.ConnectParams {
	return &object.ConnectParams{Address: addr, Options: object.NewOptions(opts...)}
}

func (s *StreamSocket) connectDirect(p *object.ConnectParams) error {
	return platform.Connect(s.native, p.Address, p.Deadline)
}

// Connect connects to addr.
func (s *StreamSocket) Connect(addr netip.AddrPort, opts ...object.Option) error {
	_, err := run(&s.Handle, object.Connect, s.connectParams(addr, opts), voidOf(s.connectDirect), void)
	return err
}

func (s *StreamSocket) ConnectAsync(addr netip.AddrPort, opts ...object.Option) (*Pending[object.Void], error) {
	return start(&s.Handle, object.Connect, s.connectParams(addr, opts), voidOf(s.connectDirect), void)
}

func (s *StreamSocket) stream(b []byte, opts []object.Option) *object.StreamParams {
	return &object.StreamParams{Buffer: b, Options: object.NewOptions(opts...)}
}

func (s *StreamSocket) readDirect(p *object.StreamParams) (int, error) {
	return platform.Read(s.native, p.Buffer, p.Deadline)
}

func (s *StreamSocket) writeDirect(p *object.StreamParams) (int, error) {
	return platform.Write(s.native, p.Buffer, p.Deadline)
}

// Read receives into b. Zero bytes with a nil error means the peer closed.
func (s *StreamSocket) Read(b []byte, opts ...object.Option) (int, error) {
	return run(&s.Handle, object.Read, s.stream(b, opts), s.readDirect, transferred)
}

func (s *StreamSocket) ReadAsync(b []byte, opts ...object.Option) (*Pending[int], error) {
	return start(&s.Handle, object.Read, s.stream(b, opts), s.readDirect, transferred)
}

// Write sends from b, possibly partially.
func (s *StreamSocket) Write(b []byte, opts ...object.Option) (int, error) {
	return run(&s.Handle, object.Write, s.stream(b, opts), s.writeDirect, transferred)
}

func (s *StreamSocket) WriteAsync(b []byte, opts ...object.Option) (*Pending[int], error) {
	return start(&s.Handle, object.Write, s.stream(b, opts), s.writeDirect, transferred)
}

// LocalAddress returns the bound local address.
func (s *StreamSocket) LocalAddress() (netip.AddrPort, error) {
	if s.native.IsNull() {
		return netip.AddrPort{}, api.ErrHandleIsNull
	}
	return platform.LocalAddress(s.native)
}

// ListenSocket accepts TCP connections.
type ListenSocket struct {
	Handle[ListenSocketKind]
}

// Listen binds to addr and starts listening.
func (l *ListenSocket) Listen(addr netip.AddrPort, opts ...object.Option) error {
	p := &object.ListenParams{Address: addr, Options: object.NewOptions(opts...)}
	return create(&l.Handle, p, platform.Listen)
}

// LocalAddress returns the listening address, useful after binding port 0.
func (l *ListenSocket) LocalAddress() (netip.AddrPort, error) {
	if l.native.IsNull() {
		return netip.AddrPort{}, api.ErrHandleIsNull
	}
	return platform.LocalAddress(l.native)
}

func (l *ListenSocket) acceptDirect(p *object.AcceptParams) (object.AcceptResult, error) {
	return platform.Accept(l.native, &p.Options, p.Deadline)
}

func accepted(op *api.Operation) (object.AcceptResult, error) {
	res, _ := op.Value.(object.AcceptResult)
	return res, nil
}

// AcceptAsync starts accepting one connection. The result carries a raw
// native handle the caller must adopt or close.
func (l *ListenSocket) AcceptAsync(opts ...object.Option) (*Pending[object.AcceptResult], error) {
	p := &object.AcceptParams{Options: object.NewOptions(opts...)}
	return start(&l.Handle, object.Accept, p, l.acceptDirect, accepted)
}

// Accept accepts one connection into conn, which must be null. conn is
// bound to the listener's multiplexer unless it is already bound. If conn
// cannot take the connection, the connection is closed.
func (l *ListenSocket) Accept(conn *StreamSocket, opts ...object.Option) (netip.AddrPort, error) {
	if !conn.IsNull() {
		return netip.AddrPort{}, api.ErrHandleIsNotNull
	}
	p := &object.AcceptParams{Options: object.NewOptions(opts...)}
	res, err := run(&l.Handle, object.Accept, p, l.acceptDirect, accepted)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if err := l.attach(conn, res.Native); err != nil {
		if cerr := platform.Close(res.Native); cerr != nil {
			l.hooks().ReportUnrecoverable(cerr)
		}
		return netip.AddrPort{}, err
	}
	return res.Address, nil
}

func (l *ListenSocket) attach(conn *StreamSocket, n api.NativeHandle) error {
	if conn.Multiplexer() == nil && l.mux != nil {
		if err := conn.SetMultiplexer(l.mux, l.provider); err != nil {
			return err
		}
	}
	return conn.Adopt(n)
}
