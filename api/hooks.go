// File: api/hooks.go
// Author: momentics <momentics@gmail.com>
//
// Customisation points injected at multiplexer construction: memory
// allocation, unrecoverable error reporting and structured logging.

package api

import (
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Allocator provides memory for internal dynamic allocations, such as socket
// address storage handed to the kernel.
type Allocator interface {
	// Acquire returns a zeroed buffer of exactly size bytes, or
	// ErrNotEnoughMemory.
	Acquire(size int) ([]byte, error)
	// Release returns a buffer obtained from Acquire.
	Release(buf []byte)
}

// UnrecoverableErrorHandler receives errors raised where no caller can be
// told, e.g. a close failing during unconditional teardown. Implementations
// must not panic.
type UnrecoverableErrorHandler interface {
	HandleUnrecoverableError(err error)
}

// UnrecoverableErrorFunc adapts a function to UnrecoverableErrorHandler.
type UnrecoverableErrorFunc func(err error)

func (f UnrecoverableErrorFunc) HandleUnrecoverableError(err error) { f(err) }

// Hooks bundles the strategies used by a multiplexer and the handles bound
// to it. Nil fields fall back to the process defaults.
type Hooks struct {
	Allocator     Allocator
	Unrecoverable UnrecoverableErrorHandler
	Logger        *logiface.Logger[logiface.Event]
}

type heapAllocator struct{}

func (heapAllocator) Acquire(size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrInvalidArgument
	}
	return make([]byte, size), nil
}

func (heapAllocator) Release([]byte) {}

var defaultHooks struct {
	once  sync.Once
	hooks *Hooks
}

// DefaultHooks returns the process defaults: heap allocation, and
// unrecoverable errors logged at critical level to stderr, then ignored.
func DefaultHooks() *Hooks {
	defaultHooks.once.Do(func() {
		logger := stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
			stumpy.L.WithLevel(logiface.LevelWarning),
		).Logger()
		defaultHooks.hooks = &Hooks{
			Allocator: heapAllocator{},
			Logger:    logger,
		}
		defaultHooks.hooks.Unrecoverable = logUnrecoverable{logger: logger}
	})
	return defaultHooks.hooks
}

type logUnrecoverable struct {
	logger *logiface.Logger[logiface.Event]
}

func (x logUnrecoverable) HandleUnrecoverableError(err error) {
	x.logger.Crit().Err(err).Log(`unrecoverable error`)
}

// WithDefaults returns a copy of h with nil fields filled from DefaultHooks.
// A nil h yields DefaultHooks.
func (h *Hooks) WithDefaults() *Hooks {
	d := DefaultHooks()
	if h == nil {
		return d
	}
	out := *h
	if out.Allocator == nil {
		out.Allocator = d.Allocator
	}
	if out.Logger == nil {
		out.Logger = d.Logger
	}
	if out.Unrecoverable == nil {
		out.Unrecoverable = logUnrecoverable{logger: out.Logger}
	}
	return &out
}

// Acquire allocates through the configured allocator.
func (h *Hooks) Acquire(size int) ([]byte, error) {
	if h == nil || h.Allocator == nil {
		return DefaultHooks().Allocator.Acquire(size)
	}
	buf, err := h.Allocator.Acquire(size)
	if err == nil && len(buf) < size {
		h.Allocator.Release(buf)
		return nil, ErrNotEnoughMemory
	}
	return buf, err
}

// Release returns buf to the configured allocator.
func (h *Hooks) Release(buf []byte) {
	if buf == nil {
		return
	}
	if h == nil || h.Allocator == nil {
		DefaultHooks().Allocator.Release(buf)
		return
	}
	h.Allocator.Release(buf)
}

// ReportUnrecoverable forwards err to the configured handler.
func (h *Hooks) ReportUnrecoverable(err error) {
	if err == nil {
		return
	}
	if h == nil || h.Unrecoverable == nil {
		DefaultHooks().Unrecoverable.HandleUnrecoverableError(err)
		return
	}
	h.Unrecoverable.HandleUnrecoverableError(err)
}

// Log returns the configured logger, which may be nil (logiface loggers are
// nil safe).
func (h *Hooks) Log() *logiface.Logger[logiface.Event] {
	if h == nil {
		return nil
	}
	return h.Logger
}
