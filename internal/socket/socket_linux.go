//go:build linux

// File: internal/socket/socket_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux implementation over golang.org/x/sys/unix.

package socket

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/momentics/hioload-proxy/api"
	"golang.org/x/sys/unix"
)

// Listen returns a bound, listening, non-blocking, address-reusable socket.
func Listen(addr netip.AddrPort, backlog int) (int, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	sa, domain, err := sockaddr(addr)
	if err != nil {
		return -1, &BindError{Stage: StageCreate, Addr: addr, Err: err}
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, &BindError{Stage: StageCreate, Addr: addr, Err: err}
	}
	fail := func(stage Stage, err error) (int, error) {
		_ = unix.Close(fd)
		return -1, &BindError{Stage: stage, Addr: addr, Err: err}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail(StageReuseAddr, err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail(StageBind, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail(StageNonBlocking, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail(StageListen, err)
	}
	return fd, nil
}

// Accept performs one non-blocking accept on the listening socket lfd.
// An empty backlog yields api.ErrWouldBlock.
func Accept(lfd int) (Conn, error) {
	for attempt := 0; ; attempt++ {
		nfd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == nil {
			return Conn{Fd: nfd, RemoteAddr: addrPort(sa)}, nil
		}
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return Conn{Fd: -1}, api.ErrWouldBlock
		}
		// EINTR and ECONNABORTED get a single retry
		if attempt == 0 && (errors.Is(err, unix.EINTR) || errors.Is(err, unix.ECONNABORTED)) {
			continue
		}
		return Conn{Fd: -1}, fmt.Errorf("accept4: %w", err)
	}
}

// SetNoDelay enables TCP_NODELAY.
func SetNoDelay(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("set TCP_NODELAY: %w", err)
	}
	return nil
}

// LocalAddr returns the address the socket is bound to.
func LocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("getsockname: %w", err)
	}
	return addrPort(sa), nil
}

// Close closes a socket descriptor.
func Close(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

func sockaddr(addr netip.AddrPort) (unix.Sockaddr, int, error) {
	ip := addr.Addr()
	switch {
	case !ip.IsValid():
		return nil, 0, fmt.Errorf("invalid address %q", addr)
	case ip.Is4() || ip.Is4In6():
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.Unmap().As4()}, unix.AF_INET, nil
	default:
		return &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}, unix.AF_INET6, nil
	}
}

func addrPort(sa unix.Sockaddr) netip.AddrPort {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port))
	default:
		return netip.AddrPort{}
	}
}
