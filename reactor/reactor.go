// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral event reactor interface.

package reactor

import "github.com/momentics/hioload-proxy/api"

// EventReactor is the readiness multiplexer owned by the server loop.
// Implementations are not safe for concurrent Register/Wait; Wake on a
// Waker is the only cross-goroutine entry point.
type EventReactor = api.Reactor

// DefaultEventsCapacity bounds the number of events returned per Wait.
const DefaultEventsCapacity = 1024

// NewEvents allocates an event buffer for Wait.
func NewEvents(capacity int) []api.Event {
	if capacity <= 0 {
		capacity = DefaultEventsCapacity
	}
	return make([]api.Event, capacity)
}
