// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session variants and their configured timeouts.

package session

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/momentics/hioload-proxy/api"
)

// Kind tags a session variant.
type Kind int

const (
	KindListen Kind = iota
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindListen:
		return "listen"
	case KindHTTP:
		return "http"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Session is a reactor-schedulable handle. Only this package can add variants.
type Session interface {
	Token() api.Token
	Kind() Kind
	sealed()
}

// DefaultTimeout is applied to every timeout that is not configured.
const DefaultTimeout = 10 * time.Second

// Timeouts are stored per session; enforcement is left to a future timer wheel.
type Timeouts struct {
	Backend  time.Duration `yaml:"backend"`
	Connect  time.Duration `yaml:"connect"`
	Frontend time.Duration `yaml:"frontend"`
	Request  time.Duration `yaml:"request"`
}

// DefaultTimeouts returns DefaultTimeout for all four values.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Backend:  DefaultTimeout,
		Connect:  DefaultTimeout,
		Frontend: DefaultTimeout,
		Request:  DefaultTimeout,
	}
}

// WithDefaults fills zero or negative values with DefaultTimeout.
func (t Timeouts) WithDefaults() Timeouts {
	fill := func(d *time.Duration) {
		if *d <= 0 {
			*d = DefaultTimeout
		}
	}
	fill(&t.Backend)
	fill(&t.Connect)
	fill(&t.Frontend)
	fill(&t.Request)
	return t
}

// ListenSession marks the token of an activated listener.
type ListenSession struct {
	token api.Token
	Addr  netip.AddrPort
}

// NewListenSession creates the session entry for an activated listener.
func NewListenSession(token api.Token, addr netip.AddrPort) *ListenSession {
	return &ListenSession{token: token, Addr: addr}
}

func (s *ListenSession) Token() api.Token { return s.token }
func (s *ListenSession) Kind() Kind       { return KindListen }
func (*ListenSession) sealed()            {}

// HTTPSession is one accepted, registered frontend connection.
type HTTPSession struct {
	ID          string
	token       api.Token
	ListenToken api.Token
	Fd          int
	RemoteAddr  netip.AddrPort
	CreatedAt   time.Time
	Timeouts    Timeouts
}

// NewHTTPSession builds a session for an accepted connection.
func NewHTTPSession(token, listenToken api.Token, fd int, remote netip.AddrPort, timeouts Timeouts) *HTTPSession {
	return &HTTPSession{
		ID:          uuid.NewString(),
		token:       token,
		ListenToken: listenToken,
		Fd:          fd,
		RemoteAddr:  remote,
		CreatedAt:   time.Now(),
		Timeouts:    timeouts,
	}
}

// Token returns the frontend token.
func (s *HTTPSession) Token() api.Token { return s.token }
func (s *HTTPSession) Kind() Kind       { return KindHTTP }
func (*HTTPSession) sealed()            {}
