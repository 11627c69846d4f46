//go:build !linux

// File: internal/socket/socket_other.go
// Author: momentics <momentics@gmail.com>
//
// Stubs for platforms without the raw socket primitive.

package socket

import (
	"net/netip"

	"github.com/momentics/hioload-proxy/api"
)

func Listen(addr netip.AddrPort, backlog int) (int, error) {
	return -1, &BindError{Stage: StageCreate, Addr: addr, Err: api.ErrNotSupported}
}

func Accept(lfd int) (Conn, error) { return Conn{Fd: -1}, api.ErrNotSupported }

func SetNoDelay(fd int) error { return api.ErrNotSupported }

func LocalAddr(fd int) (netip.AddrPort, error) { return netip.AddrPort{}, api.ErrNotSupported }

func Close(fd int) error { return nil }
