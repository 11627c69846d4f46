// File: internal/token/allocator.go
// Package token
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Monotonic token allocator shared by listeners, sessions and wakers.

package token

import (
	"math"

	"github.com/momentics/hioload-proxy/api"
)

// Allocator hands out process-unique, strictly increasing tokens.
// Tokens are never reclaimed. Not safe for concurrent use; it is owned
// by the reactor goroutine.
type Allocator struct {
	next uint64
	last uint64
}

// NewAllocator returns an allocator whose first token is 1.
func NewAllocator() *Allocator {
	return &Allocator{last: math.MaxUint64}
}

// newAllocatorAt is used by tests to exercise the exhaustion path.
func newAllocatorAt(start, last uint64) *Allocator {
	return &Allocator{next: start, last: last}
}

// Next returns a fresh token, or ErrTokensExhausted once the space is used up.
func (a *Allocator) Next() (api.Token, error) {
	if a.next >= a.last {
		return api.InvalidToken, api.ErrTokensExhausted
	}
	a.next++
	return api.Token(a.next), nil
}

// Allocated reports how many tokens were handed out.
func (a *Allocator) Allocated() uint64 {
	return a.next
}
