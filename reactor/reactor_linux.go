//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation and factory.

package reactor

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/momentics/hioload-proxy/api"
	"golang.org/x/sys/unix"
)

// linuxReactor is an edge-triggered epoll reactor. The token is stored in the
// 64-bit epoll data word, which x/sys/unix splits into Fd and Pad.
type linuxReactor struct {
	epfd int
	raw  []unix.EpollEvent
}

// NewReactor constructs a new platform-specific EventReactor for Linux.
func NewReactor() (EventReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &linuxReactor{epfd: epfd}, nil
}

// Register adds fd to the interest set under token.
func (r *linuxReactor) Register(fd int, token api.Token, interest api.Interest) error {
	event := &unix.EpollEvent{Events: epollEvents(interest)}
	*(*uint64)(unsafe.Pointer(&event.Fd)) = uint64(token)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, event); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Deregister removes fd from the interest set.
func (r *linuxReactor) Deregister(fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Wait waits for epoll events and fills them into events.
// timeoutMs < 0 means block infinitely.
func (r *linuxReactor) Wait(events []api.Event, timeoutMs int) (int, error) {
	if len(events) == 0 {
		return 0, errors.New("reactor: empty event buffer")
	}
	if cap(r.raw) < len(events) {
		r.raw = make([]unix.EpollEvent, len(events))
	}
	raw := r.raw[:len(events)]
	if timeoutMs < 0 {
		timeoutMs = -1
	}

	n, err := unix.EpollWait(r.epfd, raw, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil // interrupted by signal, normal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		events[i] = api.Event{
			Token:     api.Token(*(*uint64)(unsafe.Pointer(&raw[i].Fd))),
			Readiness: readiness(raw[i].Events),
		}
	}
	return n, nil
}

// Close closes the epoll instance.
func (r *linuxReactor) Close() error {
	return unix.Close(r.epfd)
}

func epollEvents(interest api.Interest) uint32 {
	ev := uint32(unix.EPOLLET)
	if interest&api.Readable != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&api.Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func readiness(ev uint32) api.Readiness {
	var r api.Readiness
	if ev&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		r |= api.ReadinessRead
	}
	if ev&unix.EPOLLOUT != 0 {
		r |= api.ReadinessWrite
	}
	if ev&unix.EPOLLERR != 0 {
		r |= api.ReadinessError
	}
	if ev&unix.EPOLLHUP != 0 {
		r |= api.ReadinessHangup
	}
	if ev&unix.EPOLLRDHUP != 0 {
		r |= api.ReadinessReadClosed
	}
	return r
}
