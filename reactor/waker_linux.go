//go:build linux

// File: reactor/waker_linux.go
// Author: momentics <momentics@gmail.com>
//
// eventfd waker used to interrupt a blocked Wait.

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/momentics/hioload-proxy/api"
	"golang.org/x/sys/unix"
)

// Waker interrupts a blocked Wait from another goroutine through an eventfd
// registered under its own token.
type Waker struct {
	fd    int
	token api.Token
}

// NewWaker creates an eventfd and registers it with r for read interest.
func NewWaker(r EventReactor, token api.Token) (*Waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	if err := r.Register(fd, token, api.Readable); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &Waker{fd: fd, token: token}, nil
}

// Token returns the token the waker's events carry.
func (w *Waker) Token() api.Token { return w.token }

// Wake makes the reactor's current or next Wait return.
func (w *Waker) Wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(w.fd, buf[:])
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("waker write: %w", err)
	}
	return nil
}

// Reset drains the eventfd counter.
func (w *Waker) Reset() {
	var buf [8]byte
	_, _ = unix.Read(w.fd, buf[:])
}

// Close releases the eventfd. The reactor drops it from the interest set on close.
func (w *Waker) Close() error {
	return unix.Close(w.fd)
}
