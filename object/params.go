// File: object/params.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Required and optional parameters, and result types.

package object

import (
	"net/netip"
	"time"

	"github.com/momentics/allio/api"
)

// DefaultBacklog is the listen backlog used when none is given.
const DefaultBacklog = 128

// MaxProcessArguments bounds the combined size of a launched process's
// arguments and environment, including terminators.
const MaxProcessArguments = 128 * 1024

// Options holds the optional, named parameters shared by all operations.
// Each operation reads only the fields that apply to it.
type Options struct {
	// Deadline bounds the operation. The zero value is api.Never().
	Deadline api.Deadline
	// Inheritable makes created resources inheritable by child processes.
	Inheritable bool
	// Backlog is the listen queue length.
	Backlog int
	// Environment replaces the environment of a launched process.
	Environment []string
	// WorkingDirectory sets the working directory of a launched process.
	WorkingDirectory string
}

// Optional returns the options; promoted to every parameter struct.
func (o *Options) Optional() *Options { return o }

// Params is satisfied by every parameter struct.
type Params interface {
	Optional() *Options
}

// Option sets one optional parameter.
type Option func(o *Options)

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{Backlog: DefaultBacklog}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithDeadline bounds an operation by d.
func WithDeadline(d api.Deadline) Option {
	return func(o *Options) { o.Deadline = d }
}

// WithTimeout bounds an operation by a relative timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Deadline = api.After(d) }
}

// Inheritable makes created resources inheritable.
func Inheritable() Option {
	return func(o *Options) { o.Inheritable = true }
}

// WithBacklog sets the listen backlog.
func WithBacklog(n int) Option {
	return func(o *Options) { o.Backlog = n }
}

// WithEnvironment sets the environment of a launched process.
func WithEnvironment(env []string) Option {
	return func(o *Options) { o.Environment = env }
}

// WithWorkingDirectory sets the working directory of a launched process.
func WithWorkingDirectory(dir string) Option {
	return func(o *Options) { o.WorkingDirectory = dir }
}

// AccessMode selects read and/or write access to a file.
type AccessMode uint8

const (
	ReadOnly AccessMode = iota
	WriteOnly
	ReadWrite
)

// Disposition selects what happens when a file does or does not exist.
type Disposition uint8

const (
	// OpenExisting fails if the file does not exist.
	OpenExisting Disposition = iota
	// CreateNew fails if the file exists.
	CreateNew
	// OpenOrCreate creates the file if missing.
	OpenOrCreate
	// TruncateExisting truncates an existing file and fails if missing.
	TruncateExisting
	// CreateOrTruncate creates the file, or truncates it if it exists.
	CreateOrTruncate
)

type OpenFileParams struct {
	Path        string
	Access      AccessMode
	Disposition Disposition
	Options
}

type CloseParams struct {
	Options
}

// StreamParams carry the buffer of a read or write at the current position.
type StreamParams struct {
	Buffer []byte
	Options
}

// RandomAccessParams carry the buffer and offset of a positional transfer.
type RandomAccessParams struct {
	Buffer []byte
	Offset int64
	Options
}

// AddressFamily selects the socket address family.
type AddressFamily uint8

const (
	IPv4 AddressFamily = iota
	IPv6
)

// FamilyOf returns the family matching addr.
func FamilyOf(addr netip.AddrPort) AddressFamily {
	if addr.Addr().Is4() || addr.Addr().Is4In6() {
		return IPv4
	}
	return IPv6
}

type SocketParams struct {
	Family AddressFamily
	Options
}

type ListenParams struct {
	Address netip.AddrPort
	Options
}

type ConnectParams struct {
	Address netip.AddrPort
	Options
}

type AcceptParams struct {
	Options
}

// AcceptResult is the accepted connection and its peer address.
type AcceptResult struct {
	Native  api.NativeHandle
	Address netip.AddrPort
}

type EventParams struct {
	// AutoReset events reset when a waiter is released.
	AutoReset bool
	// Signaled creates the event in the signaled state.
	Signaled bool
	Options
}

type WaitParams struct {
	Options
}

type SignalParams struct {
	Options
}

type TimerCreateParams struct {
	Options
}

// TimerSetParams arm a timer. A zero Initial disarms it.
type TimerSetParams struct {
	Initial  time.Duration
	Interval time.Duration
	Options
}

type LaunchProcessParams struct {
	Path string
	Args []string
	Options
}

// ArgumentsSize returns the bytes Args and Environment occupy once
// terminated.
func (p *LaunchProcessParams) ArgumentsSize() int {
	n := 0
	for _, a := range p.Args {
		n += len(a) + 1
	}
	for _, e := range p.Environment {
		n += len(e) + 1
	}
	return n
}

type OpenProcessParams struct {
	Pid int
	Options
}

// ProcessExit is the result of waiting on a process.
type ProcessExit struct {
	Code int
}
