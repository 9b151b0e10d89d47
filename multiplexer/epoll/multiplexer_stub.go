//go:build !linux
// +build !linux

// File: multiplexer/epoll/multiplexer_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package epoll

import (
	"github.com/momentics/allio/api"
	"github.com/momentics/allio/relation"
)

// Relations is empty where epoll does not exist.
var Relations = relation.NewTable(TypeID)

// Multiplexer is never constructed on this platform.
type Multiplexer struct {
	api.Multiplexer
}

// New reports api.ErrUnsupportedOperation.
func New(Options) (*Multiplexer, error) {
	return nil, api.ErrUnsupportedOperation
}

// Available is always false.
func Available() bool { return false }

// Stats is always zero.
func (*Multiplexer) Stats() Stats { return Stats{} }
