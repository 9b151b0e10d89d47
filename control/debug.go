// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Named debug probes for multiplexer and platform introspection.

package control

import "sync"

type probe struct{ fn func() any }

// DebugProbes holds registered probe functions. Probes run without the
// registry lock held, so a probe may register or remove others.
type DebugProbes struct {
	mu     sync.Mutex
	probes map[string]*probe
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{probes: make(map[string]*probe)}
}

// RegisterProbe inserts or replaces a named probe and returns the function
// that removes it. Removing a probe that was since replaced is a no-op.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) (remove func()) {
	p := &probe{fn: fn}
	dp.mu.Lock()
	dp.probes[name] = p
	dp.mu.Unlock()
	return func() {
		dp.mu.Lock()
		defer dp.mu.Unlock()
		if dp.probes[name] == p {
			delete(dp.probes, name)
		}
	}
}

// DumpState returns the output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.Lock()
	probes := make(map[string]*probe, len(dp.probes))
	for k, p := range dp.probes {
		probes[k] = p
	}
	dp.mu.Unlock()
	out := make(map[string]any, len(probes))
	for k, p := range probes {
		out[k] = p.fn()
	}
	return out
}
