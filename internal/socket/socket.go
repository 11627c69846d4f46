// Package socket
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw socket configuration for the proxy front end: bind-and-configure for
// listening endpoints and single-shot non-blocking accept.

package socket

import (
	"fmt"
	"net/netip"
)

// DefaultBacklog is the listen(2) backlog used when none is configured.
const DefaultBacklog = 1024

// Stage names the step of Listen that failed.
type Stage string

const (
	StageCreate      Stage = "create socket"
	StageReuseAddr   Stage = "set reuse address"
	StageBind        Stage = "bind"
	StageNonBlocking Stage = "set nonblocking"
	StageListen      Stage = "listen"
)

// BindError reports a failure of the bind-and-configure primitive.
type BindError struct {
	Stage Stage
	Addr  netip.AddrPort
	Err   error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("could not %s on %s: %v", e.Stage, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Conn is one accepted, non-blocking connection.
type Conn struct {
	Fd         int
	RemoteAddr netip.AddrPort
}
