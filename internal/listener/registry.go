// File: internal/listener/registry.go
// Package listener
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registry owns all listeners, activates them against the reactor, accepts
// ready connections and promotes them into registered sessions.
// It runs on the reactor goroutine and performs no locking.

package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"time"

	"github.com/jpillora/backoff"
	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/control"
	"github.com/momentics/hioload-proxy/internal/session"
	"github.com/momentics/hioload-proxy/internal/socket"
	"github.com/momentics/hioload-proxy/internal/token"
)

// ActivationRetry bounds the retries of a failed bind.
type ActivationRetry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Min         time.Duration `yaml:"min"`
	Max         time.Duration `yaml:"max"`
}

// DefaultActivationRetry returns three attempts between 50ms and 1s.
func DefaultActivationRetry() ActivationRetry {
	return ActivationRetry{MaxAttempts: 3, Min: 50 * time.Millisecond, Max: time.Second}
}

// Option customizes a Registry.
type Option func(*Registry)

// WithBacklog overrides the listen backlog.
func WithBacklog(n int) Option {
	return func(r *Registry) { r.backlog = n }
}

// WithMaxSessions caps live data sessions; zero means unlimited.
func WithMaxSessions(n int) Option {
	return func(r *Registry) { r.maxSessions = n }
}

// WithActivationRetry sets the bind retry policy.
func WithActivationRetry(p ActivationRetry) Option {
	return func(r *Registry) { r.retry = p }
}

// WithTimeouts sets the live source of session timeouts.
func WithTimeouts(cs *control.ConfigStore[session.Timeouts]) Option {
	return func(r *Registry) { r.timeouts = cs }
}

// WithMetrics sets the counter sink.
func WithMetrics(m api.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// Registry is the listener registry of the proxy front end.
type Registry struct {
	listeners map[api.Token]*Listener
	reactor   api.Reactor
	tokens    *token.Allocator
	sessions  *session.Manager

	backlog     int
	maxSessions int
	retry       ActivationRetry
	timeouts    *control.ConfigStore[session.Timeouts]
	metrics     api.Metrics
	log         *slog.Logger
}

// NewRegistry builds a registry sharing the reactor, allocator and session manager.
func NewRegistry(r api.Reactor, tokens *token.Allocator, sessions *session.Manager, opts ...Option) *Registry {
	reg := &Registry{
		listeners: make(map[api.Token]*Listener),
		reactor:   r,
		tokens:    tokens,
		sessions:  sessions,
		backlog:   socket.DefaultBacklog,
		retry:     DefaultActivationRetry(),
	}
	for _, o := range opts {
		o(reg)
	}
	if reg.timeouts == nil {
		reg.timeouts = control.NewConfigStore(session.DefaultTimeouts())
	}
	if reg.metrics == nil {
		reg.metrics = control.NewMetricsRegistry()
	}
	if reg.log == nil {
		reg.log = slog.Default()
	}
	return reg
}

// AddListener registers an inert listener for addr under token.
// A token that is already present is rejected and the existing entry kept.
func (r *Registry) AddListener(tok api.Token, addr netip.AddrPort) error {
	if existing, ok := r.listeners[tok]; ok {
		return api.NewError(api.ErrCodeListenerExists,
			fmt.Sprintf("listener %s already registered for %s", tok, existing.addr)).
			WithContext("token", uint64(tok))
	}
	r.listeners[tok] = newListener(tok, addr)
	return nil
}

// ActivateListener binds and registers the listener configured for addr.
// Bind failures are retried with backoff; a missing listener never binds.
func (r *Registry) ActivateListener(ctx context.Context, addr netip.AddrPort) (api.Token, error) {
	l := r.findByAddr(addr)
	if l == nil {
		return api.InvalidToken, api.NewError(api.ErrCodeNoListenerFound,
			fmt.Sprintf("found no listener with address %s", addr))
	}
	if l.Active() {
		return api.InvalidToken, activationError(addr, api.ErrListenerActive)
	}

	b := &backoff.Backoff{Min: r.retry.Min, Max: r.retry.Max, Factor: 2}
	for attempt := 1; ; attempt++ {
		err := l.activate(r.reactor, r.backlog)
		if err == nil {
			break
		}
		if attempt >= r.retry.MaxAttempts || !retryable(err) {
			return api.InvalidToken, activationError(addr, err)
		}
		d := b.Duration()
		r.metrics.Add(control.MetricActivationRetries, 1)
		r.log.Warn("listener activation failed, retrying",
			"addr", addr.String(), "attempt", attempt, "delay", d, "error", err)
		select {
		case <-ctx.Done():
			return api.InvalidToken, activationError(addr, ctx.Err())
		case <-time.After(d):
		}
	}

	r.metrics.Add(control.MetricListenersActive, 1)
	r.log.Info("listener active", "token", uint64(l.token), "addr", l.local.String())
	return l.token, nil
}

// Accept performs one non-blocking accept on the listener for listenToken.
// An empty backlog yields api.ErrWouldBlock; everything else is an IO error.
func (r *Registry) Accept(listenToken api.Token) (socket.Conn, error) {
	l, ok := r.listeners[listenToken]
	if !ok || !l.Active() {
		return socket.Conn{Fd: -1}, api.NewError(api.ErrCodeIO, "listener not found or not active").
			WithContext("token", uint64(listenToken))
	}
	conn, err := socket.Accept(l.fd)
	if err != nil {
		if errors.Is(err, api.ErrWouldBlock) {
			return conn, err
		}
		return conn, api.Wrap(api.ErrCodeIO, "accept failed", err)
	}
	return conn, nil
}

// CreateSession promotes an accepted connection into a registered session and
// returns its token. On failure the connection is closed and no session is left
// behind; a token allocated before the failure is not reused.
func (r *Registry) CreateSession(conn socket.Conn, listenToken api.Token) (api.Token, error) {
	tok, err := r.createSession(conn, listenToken)
	if err != nil {
		_ = socket.Close(conn.Fd)
		r.metrics.Add(control.MetricSessionsFailed, 1)
		return api.InvalidToken, err
	}
	r.metrics.Add(control.MetricSessionsCreated, 1)
	return tok, nil
}

func (r *Registry) createSession(conn socket.Conn, listenToken api.Token) (api.Token, error) {
	if _, ok := r.listeners[listenToken]; !ok {
		return api.InvalidToken, api.NewError(api.ErrCodeIO, "listener not found").
			WithContext("token", uint64(listenToken))
	}
	if r.maxSessions > 0 && r.sessions.Count(session.KindHTTP) >= r.maxSessions {
		return api.InvalidToken, api.NewError(api.ErrCodeTooManySessions,
			fmt.Sprintf("session limit %d reached", r.maxSessions))
	}
	if err := socket.SetNoDelay(conn.Fd); err != nil {
		return api.InvalidToken, api.Wrap(api.ErrCodeIO, "could not configure connection", err)
	}
	tok, err := r.tokens.Next()
	if err != nil {
		return api.InvalidToken, err
	}
	if err := r.reactor.Register(conn.Fd, tok, api.Readable|api.Writable); err != nil {
		return api.InvalidToken, api.Wrap(api.ErrCodeRegister, "could not register connection", err).
			WithContext("token", uint64(tok))
	}
	s := session.NewHTTPSession(tok, listenToken, conn.Fd, conn.RemoteAddr, r.timeouts.Load())
	r.sessions.Insert(tok, s)
	r.log.Debug("session created",
		"token", uint64(tok), "listener", uint64(listenToken), "fd", conn.Fd,
		"remote", conn.RemoteAddr.String(), "id", s.ID)
	return tok, nil
}

// CloseSession removes a data session, deregisters and closes its socket.
func (r *Registry) CloseSession(tok api.Token) error {
	s, ok := r.sessions.Get(tok)
	if !ok {
		return api.NewError(api.ErrCodeIO, "session not found").WithContext("token", uint64(tok))
	}
	hs, ok := s.(*session.HTTPSession)
	if !ok {
		return api.NewError(api.ErrCodeIO, fmt.Sprintf("session %s is a %s session", tok, s.Kind()))
	}
	r.sessions.Remove(tok)
	derr := r.reactor.Deregister(hs.Fd)
	cerr := socket.Close(hs.Fd)
	r.metrics.Add(control.MetricSessionsClosed, 1)
	r.log.Debug("session closed", "token", uint64(tok), "id", hs.ID)
	return errors.Join(derr, cerr)
}

// Listener returns the listener registered under tok.
func (r *Registry) Listener(tok api.Token) (*Listener, bool) {
	l, ok := r.listeners[tok]
	return l, ok
}

// Listeners returns all listeners in token order.
func (r *Registry) Listeners() []*Listener {
	out := make([]*Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b *Listener) int {
		switch {
		case a.token < b.token:
			return -1
		case a.token > b.token:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	return len(r.listeners)
}

// Close deactivates every listener. Entries stay registered but inert.
func (r *Registry) Close() error {
	var errs []error
	for _, l := range r.Listeners() {
		if !l.Active() {
			continue
		}
		if err := l.deactivate(r.reactor); err != nil {
			errs = append(errs, fmt.Errorf("listener %s: %w", l.addr, err))
		}
		r.metrics.Add(control.MetricListenersActive, -1)
	}
	return errors.Join(errs...)
}

// findByAddr returns the lowest-token listener configured for addr.
func (r *Registry) findByAddr(addr netip.AddrPort) *Listener {
	for _, l := range r.Listeners() {
		if l.addr == addr {
			return l
		}
	}
	return nil
}

func activationError(addr netip.AddrPort, cause error) error {
	return api.Wrap(api.ErrCodeListenerActivation,
		fmt.Sprintf("could not activate listener with address %s", addr), cause)
}

// retryable reports bind and listen failures, which may clear up on their own.
func retryable(err error) bool {
	var be *socket.BindError
	if !errors.As(err, &be) {
		return false
	}
	return be.Stage == socket.StageBind || be.Stage == socket.StageListen
}
