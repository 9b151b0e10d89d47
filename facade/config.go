// File: facade/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Immutable per-run configuration of the composition root, with
// environment overrides.

package facade

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
)

// Backend names a multiplexer implementation.
type Backend string

const (
	// BackendAuto picks io_uring when the kernel permits it, then epoll, or
	// IOCP on Windows.
	BackendAuto    Backend = "auto"
	BackendIOURing Backend = "io_uring"
	BackendEpoll   Backend = "epoll"
	BackendIOCP    Backend = "iocp"
	// BackendFake is the in-memory multiplexer, for tests.
	BackendFake Backend = "fake"
)

// Config holds parameters fixed for the lifetime of an Allio.
type Config struct {
	Backend Backend
	// Entries is the io_uring submission queue size.
	Entries uint32
	// MaxOperations caps in-flight operations of the backend. Zero keeps
	// the backend default.
	MaxOperations int
	// MaxEvents is the epoll_wait batch size.
	MaxEvents int
	// Queueing defers starts refused for capacity instead of failing them.
	Queueing bool
	// Synchronized makes the multiplexer safe for concurrent use.
	Synchronized bool
	// Pool size classes of the kernel scratch buffer allocator.
	PoolMinClass  int
	PoolMaxClass  int
	PoolSlabDepth int
	// LogLevel is a logiface level keyword, e.g. "info" or "debug".
	LogLevel      string
	EnableMetrics bool
	EnableDebug   bool
	// PollInterval bounds each poll of Loop.Run, so cancellation of its
	// context is noticed.
	PollInterval time.Duration
}

// DefaultConfig returns the defaults: automatic backend selection behind
// the queueing and synchronization decorators.
func DefaultConfig() *Config {
	return &Config{
		Backend:       BackendAuto,
		Entries:       256,
		MaxOperations: 0,
		MaxEvents:     128,
		Queueing:      true,
		Synchronized:  true,
		PoolMinClass:  64,
		PoolMaxClass:  64 << 10,
		PoolSlabDepth: 256,
		LogLevel:      "warning",
		EnableMetrics: true,
		EnableDebug:   true,
		PollInterval:  50 * time.Millisecond,
	}
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ALLIO_"

// ConfigFromEnv returns a copy of base with ALLIO_* overrides applied. A
// nil base starts from DefaultConfig.
func ConfigFromEnv(base *Config) (*Config, error) {
	return configFrom(base, os.LookupEnv)
}

func configFrom(base *Config, lookup func(string) (string, bool)) (*Config, error) {
	if base == nil {
		base = DefaultConfig()
	}
	cfg := *base
	var errs []string
	get := func(name string, set func(string) error) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		if err := set(strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
		}
	}
	get("BACKEND", func(v string) error {
		b := Backend(strings.ToLower(v))
		switch b {
		case BackendAuto, BackendIOURing, BackendEpoll, BackendIOCP, BackendFake:
			cfg.Backend = b
			return nil
		}
		return fmt.Errorf("unknown backend %q", v)
	})
	get("ENTRIES", func(v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		cfg.Entries = uint32(n)
		return err
	})
	get("MAX_OPERATIONS", intVar(&cfg.MaxOperations))
	get("MAX_EVENTS", intVar(&cfg.MaxEvents))
	get("QUEUEING", boolVar(&cfg.Queueing))
	get("SYNCHRONIZED", boolVar(&cfg.Synchronized))
	get("POOL_MIN_CLASS", intVar(&cfg.PoolMinClass))
	get("POOL_MAX_CLASS", intVar(&cfg.PoolMaxClass))
	get("POOL_SLAB_DEPTH", intVar(&cfg.PoolSlabDepth))
	get("LOG_LEVEL", func(v string) error {
		if _, ok := parseLevel(v); !ok {
			return fmt.Errorf("unknown log level %q", v)
		}
		cfg.LogLevel = v
		return nil
	})
	get("METRICS", boolVar(&cfg.EnableMetrics))
	get("DEBUG", boolVar(&cfg.EnableDebug))
	get("POLL_INTERVAL", func(v string) error {
		d, err := time.ParseDuration(v)
		if err == nil && d <= 0 {
			err = fmt.Errorf("must be positive")
		}
		cfg.PollInterval = d
		return err
	})
	if len(errs) > 0 {
		return nil, fmt.Errorf("facade: invalid environment: %s", strings.Join(errs, "; "))
	}
	return &cfg, nil
}

func intVar(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			*p = n
		}
		return err
	}
}

func boolVar(p *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err == nil {
			*p = b
		}
		return err
	}
}

// parseLevel maps a logiface level keyword to its level.
func parseLevel(s string) (logiface.Level, bool) {
	s = strings.ToLower(s)
	switch s {
	case "error":
		return logiface.LevelError, true
	case "critical":
		return logiface.LevelCritical, true
	case "warn":
		return logiface.LevelWarning, true
	}
	for l := logiface.LevelDisabled; l <= logiface.LevelTrace; l++ {
		if l.String() == s {
			return l, true
		}
	}
	return 0, false
}
