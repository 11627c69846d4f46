// File: internal/listener/listener.go
// Package listener
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listener is one configured network endpoint of the proxy front end.
// It is created inert and activated exactly once against the reactor.

package listener

import (
	"fmt"
	"net/netip"

	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/internal/socket"
)

// Listener owns at most one OS listening socket.
type Listener struct {
	token api.Token
	addr  netip.AddrPort
	fd    int
	local netip.AddrPort
}

func newListener(token api.Token, addr netip.AddrPort) *Listener {
	return &Listener{token: token, addr: addr, fd: -1}
}

// Token returns the listener's reactor token.
func (l *Listener) Token() api.Token { return l.token }

// Addr returns the configured bind address.
func (l *Listener) Addr() netip.AddrPort { return l.addr }

// Active reports whether the socket is bound and registered.
func (l *Listener) Active() bool { return l.fd >= 0 }

// LocalAddr returns the bound address, which differs from Addr for port 0.
func (l *Listener) LocalAddr() netip.AddrPort { return l.local }

// activate binds the socket and registers it for read interest.
func (l *Listener) activate(r api.Reactor, backlog int) error {
	fd, err := socket.Listen(l.addr, backlog)
	if err != nil {
		return err
	}
	local, err := socket.LocalAddr(fd)
	if err != nil {
		_ = socket.Close(fd)
		return err
	}
	if err := r.Register(fd, l.token, api.Readable); err != nil {
		_ = socket.Close(fd)
		return fmt.Errorf("could not register listener socket: %w", err)
	}
	l.fd = fd
	l.local = local
	return nil
}

// deactivate deregisters and closes the socket.
func (l *Listener) deactivate(r api.Reactor) error {
	if l.fd < 0 {
		return nil
	}
	derr := r.Deregister(l.fd)
	cerr := socket.Close(l.fd)
	l.fd = -1
	if derr != nil {
		return derr
	}
	return cerr
}
