// Package api
// Author: momentics
//
// Live debug and metrics contracts for the reactor and its collaborators.

package api

// Debug exposes runtime introspection.
type Debug interface {
	// DumpState emits a snapshot of probe values for diagnostics.
	DumpState() map[string]any

	// RegisterProbe dynamically registers a named probe.
	RegisterProbe(name string, fn func() any)
}

// Metrics is the counter sink used by the listener registry and server loop.
type Metrics interface {
	Add(key string, delta int64) int64
	Set(key string, value any)
}
