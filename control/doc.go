// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, configuration control, hot-reload and debug introspection
// for the proxy front end.
//
// Provides concurrent-safe primitives including:
//   - Typed config snapshots with reload listeners
//   - File watching for configuration hot-reload
//   - Counters for accept, dispatch and session lifecycle
//   - Debug probes, including process-level probes
//
// The reactor goroutine writes; admin and signal goroutines read.
package control
