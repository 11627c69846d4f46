//go:build linux

package listener

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/control"
	"github.com/momentics/hioload-proxy/internal/session"
	"github.com/momentics/hioload-proxy/internal/socket"
	"github.com/momentics/hioload-proxy/internal/token"
	"github.com/momentics/hioload-proxy/reactor"
	"golang.org/x/sys/unix"
)

var loopback = netip.MustParseAddrPort("127.0.0.1:0")

// fakeReactor records registrations and can be told to fail them.
type fakeReactor struct {
	registered   map[int]api.Token
	failRegister bool
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{registered: make(map[int]api.Token)}
}

func (f *fakeReactor) Register(fd int, tok api.Token, _ api.Interest) error {
	if f.failRegister {
		return unix.ENOMEM
	}
	f.registered[fd] = tok
	return nil
}

func (f *fakeReactor) Deregister(fd int) error {
	delete(f.registered, fd)
	return nil
}

func (f *fakeReactor) Wait([]api.Event, int) (int, error) { return 0, nil }
func (f *fakeReactor) Close() error                       { return nil }

type fixture struct {
	reg      *Registry
	tokens   *token.Allocator
	sessions *session.Manager
	metrics  *control.MetricsRegistry
}

func newFixture(t *testing.T, r api.Reactor, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		tokens:   token.NewAllocator(),
		sessions: session.NewManager(),
		metrics:  control.NewMetricsRegistry(),
	}
	opts = append([]Option{WithMetrics(f.metrics)}, opts...)
	f.reg = NewRegistry(r, f.tokens, f.sessions, opts...)
	t.Cleanup(func() { f.reg.Close() })
	return f
}

// activate adds and activates one loopback listener, returning its token and bound address.
func (f *fixture) activate(t *testing.T) (api.Token, netip.AddrPort) {
	t.Helper()
	tok, _ := f.tokens.Next()
	if err := f.reg.AddListener(tok, loopback); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	got, err := f.reg.ActivateListener(context.Background(), loopback)
	if err != nil {
		t.Fatalf("ActivateListener: %v", err)
	}
	if got != tok {
		t.Fatalf("ActivateListener returned %v, want %v", got, tok)
	}
	l, _ := f.reg.Listener(tok)
	return tok, l.LocalAddr()
}

func dial(t *testing.T, addr netip.AddrPort) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAddListener_RejectsDuplicateToken(t *testing.T) {
	f := newFixture(t, newFakeReactor())
	a := netip.MustParseAddrPort("127.0.0.1:8080")
	b := netip.MustParseAddrPort("127.0.0.1:8081")
	if err := f.reg.AddListener(1, a); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	err := f.reg.AddListener(1, b)
	if !errors.Is(err, api.ErrListenerExists) {
		t.Fatalf("expected ErrListenerExists, got %v", err)
	}
	l, _ := f.reg.Listener(1)
	if l.Addr() != a {
		t.Errorf("existing listener replaced: addr %s", l.Addr())
	}
}

func TestActivateListener_NotFound(t *testing.T) {
	fr := newFakeReactor()
	f := newFixture(t, fr)
	configured := netip.MustParseAddrPort("127.0.0.1:0")
	if err := f.reg.AddListener(1, configured); err != nil {
		t.Fatal(err)
	}

	_, err := f.reg.ActivateListener(context.Background(), netip.MustParseAddrPort("127.0.0.1:9"))
	if !errors.Is(err, api.ErrNoListenerFound) {
		t.Fatalf("expected ErrNoListenerFound, got %v", err)
	}
	if api.CodeOf(err) != api.ErrCodeNoListenerFound {
		t.Errorf("CodeOf = %v", api.CodeOf(err))
	}
	if f.reg.Len() != 1 {
		t.Errorf("registry size changed to %d", f.reg.Len())
	}
	if l, _ := f.reg.Listener(1); l.Active() {
		t.Error("unrelated listener was activated")
	}
	if len(fr.registered) != 0 {
		t.Error("reactor registration attempted")
	}
}

func TestActivateListener_Success(t *testing.T) {
	r, err := reactor.NewReactor()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	f := newFixture(t, r)
	tok, addr := f.activate(t)

	l, ok := f.reg.Listener(tok)
	if !ok || !l.Active() {
		t.Fatal("listener not active")
	}
	if addr.Port() == 0 {
		t.Error("bound port not resolved")
	}
	if f.metrics.Counter(control.MetricListenersActive) != 1 {
		t.Error("listeners.active not incremented")
	}

	dial(t, addr)
	events := reactor.NewEvents(4)
	n, err := r.Wait(events, 1000)
	if err != nil || n != 1 || events[0].Token != tok {
		t.Fatalf("Wait = %d, %v, token %v", n, err, events[0].Token)
	}
}

func TestActivateListener_SecondCallFails(t *testing.T) {
	f := newFixture(t, newFakeReactor())
	f.activate(t)
	_, err := f.reg.ActivateListener(context.Background(), loopback)
	if !errors.Is(err, api.ErrListenerActivation) {
		t.Fatalf("expected ErrListenerActivation, got %v", err)
	}
	if !errors.Is(err, api.ErrListenerActive) {
		t.Errorf("expected ErrListenerActive cause, got %v", err)
	}
}

func TestActivateListener_RetriesThenFails(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	addr := netip.MustParseAddrPort(busy.Addr().String())

	f := newFixture(t, newFakeReactor(), WithActivationRetry(ActivationRetry{
		MaxAttempts: 3, Min: time.Millisecond, Max: 2 * time.Millisecond,
	}))
	if err := f.reg.AddListener(1, addr); err != nil {
		t.Fatal(err)
	}
	_, err = f.reg.ActivateListener(context.Background(), addr)
	if !errors.Is(err, api.ErrListenerActivation) {
		t.Fatalf("expected ErrListenerActivation, got %v", err)
	}
	if !errors.Is(err, unix.EADDRINUSE) {
		t.Errorf("expected EADDRINUSE cause, got %v", err)
	}
	if got := f.metrics.Counter(control.MetricActivationRetries); got != 2 {
		t.Errorf("retries = %d, want 2", got)
	}
	if l, _ := f.reg.Listener(1); l.Active() {
		t.Error("listener marked active after failure")
	}
}

func TestActivateListener_RegisterFailureNotRetried(t *testing.T) {
	fr := newFakeReactor()
	fr.failRegister = true
	f := newFixture(t, fr)
	if err := f.reg.AddListener(1, loopback); err != nil {
		t.Fatal(err)
	}
	_, err := f.reg.ActivateListener(context.Background(), loopback)
	if !errors.Is(err, api.ErrListenerActivation) || !errors.Is(err, unix.ENOMEM) {
		t.Fatalf("unexpected error %v", err)
	}
	if f.metrics.Counter(control.MetricActivationRetries) != 0 {
		t.Error("registration failure was retried")
	}
}

func TestAccept_DrainTerminates(t *testing.T) {
	f := newFixture(t, newFakeReactor())
	tok, addr := f.activate(t)

	const k = 4
	for i := 0; i < k; i++ {
		dial(t, addr)
	}
	var conns []socket.Conn
	var last error
	for {
		c, err := f.reg.Accept(tok)
		if err != nil {
			last = err
			break
		}
		conns = append(conns, c)
	}
	defer func() {
		for _, c := range conns {
			socket.Close(c.Fd)
		}
	}()
	if len(conns) != k {
		t.Fatalf("drained %d connections, want %d", len(conns), k)
	}
	if !errors.Is(last, api.ErrWouldBlock) {
		t.Fatalf("drain ended with %v, want ErrWouldBlock", last)
	}
}

func TestAccept_UnknownListener(t *testing.T) {
	f := newFixture(t, newFakeReactor())
	if err := f.reg.AddListener(3, loopback); err != nil {
		t.Fatal(err)
	}
	for _, tok := range []api.Token{3, 99} {
		_, err := f.reg.Accept(tok)
		if !errors.Is(err, api.ErrIO) {
			t.Errorf("Accept(%v): expected ErrIO, got %v", tok, err)
		}
	}
}

func acceptOne(t *testing.T, f *fixture, tok api.Token, addr netip.AddrPort) socket.Conn {
	t.Helper()
	dial(t, addr)
	c, err := f.reg.Accept(tok)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return c
}

func TestCreateSession_Success(t *testing.T) {
	fr := newFakeReactor()
	timeouts := control.NewConfigStore(session.DefaultTimeouts())
	f := newFixture(t, fr, WithTimeouts(timeouts))
	ltok, addr := f.activate(t)
	conn := acceptOne(t, f, ltok, addr)

	before := f.sessions.Len()
	next := api.Token(f.tokens.Allocated() + 1)
	if f.sessions.Contains(next) {
		t.Fatal("new token present before CreateSession")
	}
	tok, err := f.reg.CreateSession(conn, ltok)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if tok != next {
		t.Errorf("session token %v, want %v", tok, next)
	}
	if f.sessions.Len() != before+1 || !f.sessions.Contains(tok) {
		t.Fatal("session not inserted exactly once")
	}
	if fr.registered[conn.Fd] != tok {
		t.Error("connection not registered under the session token")
	}
	s, _ := f.sessions.Get(tok)
	hs := s.(*session.HTTPSession)
	if hs.ListenToken != ltok || hs.Timeouts != session.DefaultTimeouts() {
		t.Errorf("unexpected session %+v", hs)
	}
	nodelay, err := unix.GetsockoptInt(conn.Fd, unix.IPPROTO_TCP, unix.TCP_NODELAY)
	if err != nil || nodelay == 0 {
		t.Errorf("TCP_NODELAY not set: %d, %v", nodelay, err)
	}

	// reloaded timeouts apply to the next session only
	timeouts.Store(session.Timeouts{Request: time.Second}.WithDefaults())
	tok2, err := f.reg.CreateSession(acceptOne(t, f, ltok, addr), ltok)
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := f.sessions.Get(tok2)
	if s2.(*session.HTTPSession).Timeouts.Request != time.Second {
		t.Error("reloaded timeouts not applied")
	}
	if hs.Timeouts.Request != session.DefaultTimeout {
		t.Error("existing session timeouts changed")
	}

	if err := f.reg.CloseSession(tok); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if f.sessions.Contains(tok) {
		t.Error("session still present after CloseSession")
	}
	if _, ok := fr.registered[conn.Fd]; ok {
		t.Error("closed session still registered")
	}
	if err := f.reg.CloseSession(ltok); err == nil {
		t.Error("CloseSession accepted a listener token")
	}
}

func TestCreateSession_RegisterFailure(t *testing.T) {
	fr := newFakeReactor()
	f := newFixture(t, fr)
	ltok, addr := f.activate(t)
	conn := acceptOne(t, f, ltok, addr)

	fr.failRegister = true
	allocated := f.tokens.Allocated()
	_, err := f.reg.CreateSession(conn, ltok)
	if !errors.Is(err, api.ErrRegister) {
		t.Fatalf("expected ErrRegister, got %v", err)
	}
	if f.tokens.Allocated() != allocated+1 {
		t.Error("token not consumed by the failed attempt")
	}
	if f.sessions.Count(session.KindHTTP) != 0 {
		t.Error("half-registered session left behind")
	}
	if f.metrics.Counter(control.MetricSessionsFailed) != 1 {
		t.Error("sessions.failed not counted")
	}
	if _, err := unix.FcntlInt(uintptr(conn.Fd), unix.F_GETFD, 0); !errors.Is(err, unix.EBADF) {
		t.Error("connection fd left open")
	}
}

func TestCreateSession_UnknownListener(t *testing.T) {
	f := newFixture(t, newFakeReactor())
	ltok, addr := f.activate(t)
	conn := acceptOne(t, f, ltok, addr)
	allocated := f.tokens.Allocated()

	_, err := f.reg.CreateSession(conn, 999)
	if !errors.Is(err, api.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if f.tokens.Allocated() != allocated {
		t.Error("token allocated for an unknown listener")
	}
}

func TestCreateSession_MaxSessions(t *testing.T) {
	f := newFixture(t, newFakeReactor(), WithMaxSessions(1))
	ltok, addr := f.activate(t)
	if _, err := f.reg.CreateSession(acceptOne(t, f, ltok, addr), ltok); err != nil {
		t.Fatal(err)
	}
	_, err := f.reg.CreateSession(acceptOne(t, f, ltok, addr), ltok)
	if !errors.Is(err, api.ErrTooManySessions) {
		t.Fatalf("expected ErrTooManySessions, got %v", err)
	}
	if f.sessions.Count(session.KindHTTP) != 1 {
		t.Errorf("HTTP sessions = %d, want 1", f.sessions.Count(session.KindHTTP))
	}
}
