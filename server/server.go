// File: server/server.go
// Package server implements the single-threaded reactor loop of the proxy
// front end: block on the poller, dispatch readiness, drain the pending-accept
// queue into sessions, repeat.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"github.com/momentics/hioload-proxy/affinity"
	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/control"
	"github.com/momentics/hioload-proxy/internal/listener"
	"github.com/momentics/hioload-proxy/internal/session"
	"github.com/momentics/hioload-proxy/internal/token"
	"github.com/momentics/hioload-proxy/reactor"
)

// Server owns the reactor and every piece of state it drives. All methods
// except Shutdown, ReloadTimeouts and Status must be called from one goroutine.
type Server struct {
	cfg *Config
	log *slog.Logger

	reactor  reactor.EventReactor
	waker    *reactor.Waker
	tokens   *token.Allocator
	sessions *session.Manager
	registry *listener.Registry
	pending  *pendingQueue
	events   []api.Event

	starved []api.Token // listeners whose drain stopped at the pending bound
	retries map[api.Token]*acceptRetry
	closing []api.Token // data sessions to tear down after dispatch

	metrics  *control.MetricsRegistry
	probes   *control.DebugProbes
	timeouts *control.ConfigStore[session.Timeouts]

	status    atomic.Int32
	stopping  atomic.Bool
	closeOnce sync.Once
}

// New creates the reactor, adds and activates every configured listener and
// returns an Idle server. Any failure is fatal and releases what was built.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	s := &Server{cfg: &c}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = control.NewMetricsRegistry()
	}
	addrs, err := s.cfg.ListenAddrs()
	if err != nil {
		return nil, err
	}

	r, err := reactor.NewReactor()
	if err != nil {
		return nil, fmt.Errorf("could not create event loop: %w", err)
	}
	s.reactor = r
	s.tokens = token.NewAllocator()
	s.sessions = session.NewManager()
	s.pending = newPendingQueue()
	s.retries = make(map[api.Token]*acceptRetry)
	s.events = reactor.NewEvents(s.cfg.EventsCapacity)
	s.timeouts = control.NewConfigStore(s.cfg.Timeouts.WithDefaults())
	s.timeouts.OnReload(func(t session.Timeouts) {
		s.log.Info("session timeouts reloaded",
			"backend", t.Backend, "connect", t.Connect, "frontend", t.Frontend, "request", t.Request)
	})
	s.registry = listener.NewRegistry(r, s.tokens, s.sessions,
		listener.WithBacklog(s.cfg.Backlog),
		listener.WithMaxSessions(s.cfg.MaxSessions),
		listener.WithActivationRetry(s.cfg.ActivationRetry),
		listener.WithTimeouts(s.timeouts),
		listener.WithMetrics(s.metrics),
		listener.WithLogger(s.log),
	)

	for _, addr := range addrs {
		if err := s.addListener(ctx, addr); err != nil {
			s.Close()
			return nil, err
		}
	}

	wakeTok, err := s.tokens.Next()
	if err != nil {
		s.Close()
		return nil, err
	}
	if s.waker, err = reactor.NewWaker(r, wakeTok); err != nil {
		s.Close()
		return nil, fmt.Errorf("could not create waker: %w", err)
	}

	s.registerProbes()
	s.status.Store(int32(Idle))
	return s, nil
}

// addListener allocates a token, adds and activates the listener, and only then
// records its ListenSession.
func (s *Server) addListener(ctx context.Context, addr netip.AddrPort) error {
	tok, err := s.tokens.Next()
	if err != nil {
		return err
	}
	if err := s.registry.AddListener(tok, addr); err != nil {
		return err
	}
	if _, err := s.registry.ActivateListener(ctx, addr); err != nil {
		return err
	}
	l, _ := s.registry.Listener(tok)
	s.sessions.Insert(tok, session.NewListenSession(tok, l.LocalAddr()))
	return nil
}

func (s *Server) registerProbes() {
	s.probes = control.NewDebugProbes()
	control.RegisterPlatformProbes(s.probes)
	s.probes.RegisterProbe("sessions.live", func() any { return s.sessions.Count(session.KindHTTP) })
	s.probes.RegisterProbe("listeners.live", func() any { return s.sessions.Count(session.KindListen) })
	s.probes.RegisterProbe("accept.pending", func() any { return s.pending.Len() })
	s.probes.RegisterProbe("accept.retrying", func() any { return len(s.retries) })
	s.probes.RegisterProbe("tokens.allocated", func() any { return s.tokens.Allocated() })
}

// Run loops Tick until Shutdown is called or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Shutdown() })
	defer stop()

	if s.cfg.CPU >= 0 {
		restore, err := affinity.PinReactorThread(s.cfg.CPU)
		if err != nil {
			s.log.Warn("could not pin reactor thread", "cpu", s.cfg.CPU, "error", err)
		} else {
			defer restore()
		}
	}

	s.status.Store(int32(Running))
	defer s.status.Store(int32(Stopped))
	s.log.Info("reactor running", "listeners", s.registry.Len())

	timeout := s.cfg.pollTimeoutMs()
	for !s.stopping.Load() {
		if err := s.Tick(timeout); err != nil {
			return err
		}
	}
	s.log.Info("reactor stopped")
	return nil
}

// Tick runs one wait, dispatch and drain cycle. The pending-accept queue is
// empty when Tick starts and when it returns.
func (s *Server) Tick(timeoutMs int) error {
	if len(s.starved) > 0 {
		timeoutMs = 0
	} else {
		timeoutMs = s.retryTimeout(timeoutMs, time.Now())
	}
	n, err := s.reactor.Wait(s.events, timeoutMs)
	if err != nil {
		return fmt.Errorf("reactor wait: %w", err)
	}

	starved := s.starved
	s.starved = nil
	for _, tok := range starved {
		s.drainAccept(tok)
	}
	s.retryDue(time.Now())
	for i := 0; i < n; i++ {
		s.dispatch(s.events[i])
	}

	s.drainPending()
	s.closeSessions()
	return nil
}

func (s *Server) dispatch(ev api.Event) {
	if s.waker != nil && ev.Token == s.waker.Token() {
		s.waker.Reset()
		return
	}
	sess, ok := s.sessions.Get(ev.Token)
	if !ok {
		s.metrics.Add(control.MetricEventsOrphaned, 1)
		s.log.Debug("event for unknown token", "token", uint64(ev.Token), "readiness", ev.Readiness.String())
		return
	}
	switch sess := sess.(type) {
	case *session.ListenSession:
		if ev.Readiness.IsReadable() {
			s.drainAccept(sess.Token())
		}
	case *session.HTTPSession:
		if ev.Readiness.IsClosed() {
			s.closing = append(s.closing, sess.Token())
		}
	default:
		s.log.Error("unhandled session variant", "token", uint64(ev.Token), "kind", sess.Kind().String())
	}
}

// drainAccept accepts until the listener reports WouldBlock, an error occurs
// or the pending queue is full. Every error ends the drain.
func (s *Server) drainAccept(listenToken api.Token) {
	for {
		if limit := s.cfg.MaxPendingAccepts; limit > 0 && s.pending.Len() >= limit {
			s.metrics.Add(control.MetricAcceptCapacityReached, 1)
			s.log.Warn("pending accept queue full, deferring listener",
				"token", uint64(listenToken), "error", api.ErrBufferCapacityReached)
			s.markStarved(listenToken)
			return
		}
		conn, err := s.registry.Accept(listenToken)
		switch {
		case err == nil:
			s.metrics.Add(control.MetricAcceptTotal, 1)
			s.pending.Push(pendingAccept{conn: conn, listenToken: listenToken})
			delete(s.retries, listenToken)
		case errors.Is(err, api.ErrWouldBlock):
			delete(s.retries, listenToken)
			return
		default:
			s.metrics.Add(control.MetricAcceptErrors, 1)
			d := s.scheduleRetry(listenToken, time.Now())
			s.log.Error("accept failed, listener re-drained later",
				"token", uint64(listenToken), "delay", d, "error", err)
			return
		}
	}
}

// acceptRetry tracks a listener whose last accept failed. The edge that
// reported its backlog is spent, so it is drained again once at is reached.
type acceptRetry struct {
	b  backoff.Backoff
	at time.Time
}

const (
	acceptRetryMin = 10 * time.Millisecond
	acceptRetryMax = time.Second
)

func (s *Server) scheduleRetry(tok api.Token, now time.Time) time.Duration {
	r, ok := s.retries[tok]
	if !ok {
		r = &acceptRetry{b: backoff.Backoff{Min: acceptRetryMin, Max: acceptRetryMax, Factor: 2}}
		s.retries[tok] = r
	}
	d := r.b.Duration()
	r.at = now.Add(d)
	return d
}

// retryTimeout shortens the wait so the earliest scheduled re-drain is not missed.
func (s *Server) retryTimeout(timeoutMs int, now time.Time) int {
	for _, r := range s.retries {
		ms := int((r.at.Sub(now) + time.Millisecond - 1) / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		if timeoutMs < 0 || ms < timeoutMs {
			timeoutMs = ms
		}
	}
	return timeoutMs
}

func (s *Server) retryDue(now time.Time) {
	var due []api.Token
	for tok, r := range s.retries {
		if !now.Before(r.at) {
			due = append(due, tok)
		}
	}
	for _, tok := range due {
		s.drainAccept(tok)
	}
}

func (s *Server) markStarved(tok api.Token) {
	for _, t := range s.starved {
		if t == tok {
			return
		}
	}
	s.starved = append(s.starved, tok)
}

// drainPending promotes queued connections in arrival order.
func (s *Server) drainPending() {
	for s.pending.Len() > 0 {
		p := s.pending.Pop()
		if _, err := s.registry.CreateSession(p.conn, p.listenToken); err != nil {
			s.log.Warn("could not create session",
				"listener", uint64(p.listenToken), "remote", p.conn.RemoteAddr.String(), "error", err)
		}
	}
}

func (s *Server) closeSessions() {
	for _, tok := range s.closing {
		if !s.sessions.Contains(tok) {
			continue
		}
		if err := s.registry.CloseSession(tok); err != nil {
			s.log.Warn("could not close session", "token", uint64(tok), "error", err)
		}
	}
	s.closing = s.closing[:0]
}

// Shutdown makes Run return after the current tick. Safe from any goroutine.
func (s *Server) Shutdown() error {
	if s.stopping.Swap(true) {
		return nil
	}
	if s.waker == nil {
		return nil
	}
	return s.waker.Wake()
}

// Close releases sessions, listeners, the waker and the reactor. Call it after
// Run has returned.
func (s *Server) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.sessions != nil {
			s.sessions.Range(func(sess session.Session) bool {
				if sess.Kind() == session.KindHTTP {
					s.closing = append(s.closing, sess.Token())
				}
				return true
			})
			s.closeSessions()
		}
		if s.registry != nil {
			errs = append(errs, s.registry.Close())
		}
		if s.waker != nil {
			errs = append(errs, s.waker.Close())
		}
		if s.reactor != nil {
			errs = append(errs, s.reactor.Close())
		}
		s.status.Store(int32(Stopped))
	})
	return errors.Join(errs...)
}

// ReloadTimeouts replaces the timeouts given to sessions created from now on.
func (s *Server) ReloadTimeouts(t session.Timeouts) {
	s.timeouts.Store(t.WithDefaults())
}

// Status reports the lifecycle state.
func (s *Server) Status() Status {
	return Status(s.status.Load())
}

// Sessions exposes the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Registry exposes the listener registry.
func (s *Server) Registry() *listener.Registry {
	return s.registry
}

// PendingAccepts returns the current length of the pending-accept queue.
func (s *Server) PendingAccepts() int {
	return s.pending.Len()
}

// ListenAddrs returns the bound address of every active listener.
func (s *Server) ListenAddrs() []netip.AddrPort {
	var out []netip.AddrPort
	for _, l := range s.registry.Listeners() {
		if l.Active() {
			out = append(out, l.LocalAddr())
		}
	}
	return out
}

// Metrics exposes runtime counters.
func (s *Server) Metrics() *control.MetricsRegistry {
	return s.metrics
}

// Debug exposes debug probes. DumpState must run on the reactor goroutine.
func (s *Server) Debug() api.Debug {
	return s.probes
}
