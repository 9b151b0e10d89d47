// File: facade/allio.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Composition root: builds the backend multiplexer for the platform, stacks
// the decorators on it, and wires allocation, logging, counters and debug
// probes into one value handles bind to.

package facade

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"github.com/momentics/allio/api"
	"github.com/momentics/allio/control"
	"github.com/momentics/allio/fake"
	"github.com/momentics/allio/multiplexer/epoll"
	"github.com/momentics/allio/multiplexer/iocp"
	"github.com/momentics/allio/multiplexer/iouring"
	"github.com/momentics/allio/multiplexer/queueing"
	"github.com/momentics/allio/multiplexer/synchronized"
	"github.com/momentics/allio/pool"
	"github.com/momentics/allio/relation"
)

// Binder is implemented by every handle.
type Binder interface {
	SetMultiplexer(mux api.Multiplexer, provider api.RelationProvider) error
}

// Allio aggregates one multiplexer stack and its supporting services.
type Allio struct {
	config    *Config
	hooks     *api.Hooks
	allocator *pool.Allocator
	counters  *control.Counters
	metrics   *control.MetricsRegistry
	probes    *control.DebugProbes
	store     *control.ConfigStore
	unprobe   []func()

	backend   api.Multiplexer
	queue     *queueing.Multiplexer
	mux       api.Multiplexer
	relations relation.Composite

	closeOnce sync.Once
	closeErr  error
}

// New builds the stack described by cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Allio, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	level, ok := parseLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("facade: unknown log level %q", cfg.LogLevel)
	}
	a := &Allio{
		config: cfg,
		allocator: pool.New(pool.Config{
			MinClass:  cfg.PoolMinClass,
			MaxClass:  cfg.PoolMaxClass,
			SlabDepth: cfg.PoolSlabDepth,
		}),
		counters: new(control.Counters),
		metrics:  control.NewMetricsRegistry(),
		probes:   control.NewDebugProbes(),
		store:    control.NewConfigStore(),
	}
	a.hooks = (&api.Hooks{
		Allocator: a.allocator,
		Logger: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
			stumpy.L.WithLevel(level),
		).Logger(),
	}).WithDefaults()

	backend, err := a.newBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	a.backend = backend
	a.mux = backend
	if cfg.Queueing {
		a.queue = queueing.New(a.mux, a.counters)
		a.mux = a.queue
	}
	if cfg.Synchronized {
		a.mux = synchronized.New(a.mux)
	}
	a.relations = relation.Composite{iouring.Relations, epoll.Relations, iocp.Relations}
	if f, ok := backend.(*fake.Multiplexer); ok {
		a.relations = append(relation.Composite{f.Relations()}, a.relations...)
	}

	a.store.SetConfig(map[string]any{
		"backend":        a.BackendName(),
		"max_operations": cfg.MaxOperations,
		"queueing":       cfg.Queueing,
		"synchronized":   cfg.Synchronized,
		"log_level":      cfg.LogLevel,
		"poll_interval":  cfg.PollInterval.String(),
	})
	if cfg.EnableDebug {
		a.registerProbes()
	}
	a.log().Info().
		Str("backend", a.BackendName()).
		Bool("queueing", cfg.Queueing).
		Bool("synchronized", cfg.Synchronized).
		Log("allio ready")
	return a, nil
}

func (a *Allio) newBackend(b Backend) (api.Multiplexer, error) {
	cfg := a.config
	switch b {
	case BackendAuto:
		switch {
		case runtime.GOOS == "windows":
			return a.newBackend(BackendIOCP)
		case iouring.Available():
			m, err := a.newBackend(BackendIOURing)
			if err == nil {
				return m, nil
			}
			a.log().Warning().Err(err).Log("io_uring unavailable, falling back to epoll")
			return a.newBackend(BackendEpoll)
		case epoll.Available():
			return a.newBackend(BackendEpoll)
		}
		return nil, fmt.Errorf("facade: no multiplexer for %s: %w", runtime.GOOS, api.ErrUnsupportedOperation)
	case BackendIOURing:
		return newOrErr(iouring.New(iouring.Options{
			Entries:       cfg.Entries,
			MaxOperations: cfg.MaxOperations,
			Hooks:         a.hooks,
			Counters:      a.counters,
		}))
	case BackendEpoll:
		return newOrErr(epoll.New(epoll.Options{
			MaxOperations: cfg.MaxOperations,
			MaxEvents:     cfg.MaxEvents,
			Hooks:         a.hooks,
			Counters:      a.counters,
		}))
	case BackendIOCP:
		return newOrErr(iocp.New(iocp.Options{
			MaxOperations: cfg.MaxOperations,
			Hooks:         a.hooks,
			Counters:      a.counters,
		}))
	case BackendFake:
		return fake.New(fake.Options{
			Capacity: cfg.MaxOperations,
			Perform:  fake.Passthrough,
			Hooks:    a.hooks,
			Counters: a.counters,
		}), nil
	}
	return nil, fmt.Errorf("facade: unknown backend %q", b)
}

// newOrErr drops the typed nil a failed constructor returns, so it never
// hides inside a non-nil interface.
func newOrErr[M api.Multiplexer](m M, err error) (api.Multiplexer, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (a *Allio) log() *logiface.Logger[logiface.Event] { return a.hooks.Log() }

// registerProbes adds the stack probes; Close removes those that read the
// multiplexers.
func (a *Allio) registerProbes() {
	control.RegisterPlatformProbes(a.probes)
	a.probes.RegisterProbe("allio.backend", func() any { return a.BackendName() })
	a.probes.RegisterProbe("allio.counters", func() any { return a.counters.Snapshot() })
	a.probes.RegisterProbe("allio.pool", func() any { return a.allocator.Stats() })
	a.unprobe = append(a.unprobe, a.probes.RegisterProbe("allio.multiplexer", a.backendStats))
	if a.queue != nil {
		a.unprobe = append(a.unprobe, a.probes.RegisterProbe("allio.queued", func() any { return a.queue.Queued() }))
	}
}

// backendStats snapshots the backend; it is not synchronized with polling.
func (a *Allio) backendStats() any {
	switch m := a.backend.(type) {
	case *iouring.Multiplexer:
		return m.Stats()
	case *epoll.Multiplexer:
		return m.Stats()
	case *iocp.Multiplexer:
		return m.Stats()
	case *fake.Multiplexer:
		return map[string]int{"in_flight": m.InFlight()}
	}
	return nil
}

// Config returns the configuration the stack was built from.
func (a *Allio) Config() *Config { return a.config }

// Multiplexer returns the outermost multiplexer.
func (a *Allio) Multiplexer() api.Multiplexer { return a.mux }

// Backend returns the innermost, undecorated multiplexer.
func (a *Allio) Backend() api.Multiplexer { return a.backend }

// BackendName returns the registered name of the backend type.
func (a *Allio) BackendName() string { return a.backend.TypeID().String() }

// Relations returns the provider handles resolve relations through.
func (a *Allio) Relations() api.RelationProvider { return a.relations }

// Hooks returns the hooks every layer was built with.
func (a *Allio) Hooks() *api.Hooks { return a.hooks }

// Allocator returns the kernel scratch buffer allocator.
func (a *Allio) Allocator() *pool.Allocator { return a.allocator }

// Counters returns the operation counters.
func (a *Allio) Counters() *control.Counters { return a.counters }

// Control returns the effective configuration store.
func (a *Allio) Control() *control.ConfigStore { return a.store }

// Probes returns the debug probes; empty unless EnableDebug.
func (a *Allio) Probes() *control.DebugProbes { return a.probes }

// Bind binds h to the multiplexer stack.
func (a *Allio) Bind(h Binder) error {
	return h.SetMultiplexer(a.mux, a.relations)
}

// Metrics publishes the counters and returns the registry snapshot. It is
// empty unless EnableMetrics.
func (a *Allio) Metrics() map[string]any {
	if a.config.EnableMetrics {
		a.counters.Publish(a.metrics, "allio.operations")
	}
	return a.metrics.GetSnapshot()
}

// Close closes the stack. In-flight operations complete as cancelled.
func (a *Allio) Close() error {
	a.closeOnce.Do(func() {
		for _, remove := range a.unprobe {
			remove()
		}
		err := a.mux.Close()
		if errors.Is(err, api.ErrAsyncOperationNotInProgress) {
			err = nil
		}
		a.closeErr = err
		a.log().Info().Log("allio closed")
	})
	return a.closeErr
}
