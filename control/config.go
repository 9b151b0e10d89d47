// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Effective settings of a running stack, reported to operators.

package control

import (
	"maps"
	"sync"
)

// ConfigStore records the settings a stack was built with. Values are
// merged, never removed.
type ConfigStore struct {
	mu     sync.RWMutex
	config map[string]any
}

// NewConfigStore initializes an empty store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{config: make(map[string]any)}
}

// GetSnapshot returns a copy of all values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return maps.Clone(cs.config)
}

// SetConfig merges values into the store.
func (cs *ConfigStore) SetConfig(values map[string]any) {
	cs.mu.Lock()
	maps.Copy(cs.config, values)
	cs.mu.Unlock()
}
