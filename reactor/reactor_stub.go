//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"fmt"

	"github.com/momentics/hioload-proxy/api"
)

// NewReactor returns an error for unsupported platforms.
func NewReactor() (EventReactor, error) {
	return nil, fmt.Errorf("reactor: %w", api.ErrNotSupported)
}

// NewWaker returns an error for unsupported platforms.
func NewWaker(r EventReactor, token api.Token) (*Waker, error) {
	return nil, fmt.Errorf("waker: %w", api.ErrNotSupported)
}

// Waker is unavailable on this platform.
type Waker struct{}

func (w *Waker) Token() api.Token { return api.InvalidToken }
func (w *Waker) Wake() error      { return api.ErrNotSupported }
func (w *Waker) Reset()           {}
func (w *Waker) Close() error     { return nil }
