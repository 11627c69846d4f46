// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Token-keyed Manager for listening and data sessions.

package session

import (
	"slices"

	"github.com/momentics/hioload-proxy/api"
)

// Manager owns every live session handle.
type Manager struct {
	sessions map[api.Token]Session
	counts   map[Kind]int
}

// NewManager constructs an empty manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[api.Token]Session),
		counts:   make(map[Kind]int),
	}
}

// Insert stores s under token, overwriting any previous entry.
// It reports whether an entry was replaced.
func (m *Manager) Insert(token api.Token, s Session) (replaced bool) {
	prev, replaced := m.sessions[token]
	if replaced {
		m.counts[prev.Kind()]--
	}
	m.sessions[token] = s
	m.counts[s.Kind()]++
	return replaced
}

// Contains reports whether token is known.
func (m *Manager) Contains(token api.Token) bool {
	_, ok := m.sessions[token]
	return ok
}

// Get fetches a session if present.
func (m *Manager) Get(token api.Token) (Session, bool) {
	s, ok := m.sessions[token]
	return s, ok
}

// Remove deletes and returns the session for token.
func (m *Manager) Remove(token api.Token) (Session, bool) {
	s, ok := m.sessions[token]
	if ok {
		delete(m.sessions, token)
		m.counts[s.Kind()]--
	}
	return s, ok
}

// Len returns the number of live sessions of every kind.
func (m *Manager) Len() int {
	return len(m.sessions)
}

// Count returns the number of live sessions of kind k.
func (m *Manager) Count(k Kind) int {
	return m.counts[k]
}

// Tokens returns all keys in ascending order.
func (m *Manager) Tokens() []api.Token {
	out := make([]api.Token, 0, len(m.sessions))
	for t := range m.sessions {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Range applies fn to all sessions in token order until fn returns false.
// fn must not mutate the manager.
func (m *Manager) Range(fn func(Session) bool) {
	for _, t := range m.Tokens() {
		if !fn(m.sessions[t]) {
			return
		}
	}
}
