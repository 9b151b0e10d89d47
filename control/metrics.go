// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Metrics registry receiving published counter snapshots.

package control

import (
	"maps"
	"sync"
)

// MetricsRegistry holds the latest published values. A Publish is never
// observed half applied by GetSnapshot.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{metrics: make(map[string]any)}
}

// Publish merges values.
func (mr *MetricsRegistry) Publish(values map[string]any) {
	mr.mu.Lock()
	maps.Copy(mr.metrics, values)
	mr.mu.Unlock()
}

// GetSnapshot returns a copy of the current metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return maps.Clone(mr.metrics)
}
