// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for the event-driven IO reactor
// that multiplexes listener and session sockets (epoll, stub).

package api

// Event encapsulates the result of an OS-level readiness notification.
type Event struct {
	Token     Token     // token the source was registered under
	Readiness Readiness // what became ready
}

// Reactor defines the common interface for a readiness multiplexer.
type Reactor interface {
	// Register associates a socket with the reactor under token.
	Register(fd int, token Token, interest Interest) error

	// Deregister removes a socket from the interest set.
	Deregister(fd int) error

	// Wait blocks up to timeoutMs (negative blocks indefinitely) and fills events.
	Wait(events []Event, timeoutMs int) (int, error)

	// Close releases the poller backend.
	Close() error
}
