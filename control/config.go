// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe typed configuration store with atomic snapshots and reload listeners.

package control

import (
	"sync"
)

// ConfigStore holds one configuration value of type T.
type ConfigStore[T any] struct {
	mu        sync.RWMutex
	value     T
	version   uint64
	listeners []func(T)
}

// NewConfigStore initializes a store with initial.
func NewConfigStore[T any](initial T) *ConfigStore[T] {
	return &ConfigStore[T]{value: initial}
}

// Load returns the current value.
func (cs *ConfigStore[T]) Load() T {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.value
}

// Version counts successful Store calls.
func (cs *ConfigStore[T]) Version() uint64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.version
}

// Store replaces the value and notifies listeners synchronously, outside the lock.
func (cs *ConfigStore[T]) Store(v T) {
	cs.mu.Lock()
	cs.value = v
	cs.version++
	listeners := append([]func(T){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn(v)
	}
}

// OnReload registers a listener called after each Store.
func (cs *ConfigStore[T]) OnReload(fn func(T)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
