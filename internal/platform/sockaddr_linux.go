//go:build linux
// +build linux

// File: internal/platform/sockaddr_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

import (
	"encoding/binary"
	"net/netip"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/allio/api"
)

// SockaddrStorageSize is the size of a buffer able to hold any socket
// address handed to or filled in by the kernel.
const SockaddrStorageSize = unix.SizeofSockaddrAny

// ToSockaddr converts addr for the unix socket calls.
func ToSockaddr(addr netip.AddrPort) (unix.Sockaddr, error) {
	ip := addr.Addr()
	switch {
	case !ip.IsValid():
		return nil, api.ErrInvalidArgument
	case ip.Is4():
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}, nil
	}
	sa := &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
	return sa, nil
}

// FromSockaddr converts a kernel reported address; unknown families yield
// the zero AddrPort.
func FromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port))
	}
	return netip.AddrPort{}
}

// EncodeRawSockaddr writes addr in kernel layout into buf, returning the
// length to pass along with it. buf must hold SockaddrStorageSize bytes.
func EncodeRawSockaddr(buf []byte, addr netip.AddrPort) (int, error) {
	if len(buf) < SockaddrStorageSize {
		return 0, api.ErrNoBufferSpace
	}
	clear(buf)
	ip := addr.Addr()
	switch {
	case !ip.IsValid():
		return 0, api.ErrInvalidArgument
	case ip.Is4():
		raw := (*unix.RawSockaddrInet4)(unsafe.Pointer(&buf[0]))
		raw.Family = unix.AF_INET
		putPort(&raw.Port, addr.Port())
		raw.Addr = ip.As4()
		return unix.SizeofSockaddrInet4, nil
	}
	raw := (*unix.RawSockaddrInet6)(unsafe.Pointer(&buf[0]))
	raw.Family = unix.AF_INET6
	putPort(&raw.Port, addr.Port())
	raw.Addr = ip.As16()
	return unix.SizeofSockaddrInet6, nil
}

// DecodeRawSockaddr reads a kernel layout address from buf.
func DecodeRawSockaddr(buf []byte) netip.AddrPort {
	if len(buf) < unix.SizeofSockaddrInet4 {
		return netip.AddrPort{}
	}
	switch family := *(*uint16)(unsafe.Pointer(&buf[0])); family {
	case unix.AF_INET:
		raw := (*unix.RawSockaddrInet4)(unsafe.Pointer(&buf[0]))
		return netip.AddrPortFrom(netip.AddrFrom4(raw.Addr), getPort(&raw.Port))
	case unix.AF_INET6:
		if len(buf) < unix.SizeofSockaddrInet6 {
			return netip.AddrPort{}
		}
		raw := (*unix.RawSockaddrInet6)(unsafe.Pointer(&buf[0]))
		return netip.AddrPortFrom(netip.AddrFrom16(raw.Addr), getPort(&raw.Port))
	}
	return netip.AddrPort{}
}

// Ports are stored in network byte order.
func putPort(p *uint16, port uint16) {
	binary.BigEndian.PutUint16((*[2]byte)(unsafe.Pointer(p))[:], port)
}

func getPort(p *uint16) uint16 {
	return binary.BigEndian.Uint16((*[2]byte)(unsafe.Pointer(p))[:])
}
