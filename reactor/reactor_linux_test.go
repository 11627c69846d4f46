//go:build linux

package reactor

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/internal/socket"
	"golang.org/x/sys/unix"
)

func newTestReactor(t *testing.T) EventReactor {
	t.Helper()
	r, err := NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestReactor_ListenerReadiness(t *testing.T) {
	r := newTestReactor(t)
	fd, err := socket.Listen(netip.MustParseAddrPort("127.0.0.1:0"), 16)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer socket.Close(fd)
	addr, _ := socket.LocalAddr(fd)

	const tok = api.Token(42)
	if err := r.Register(fd, tok, api.Readable); err != nil {
		t.Fatalf("Register: %v", err)
	}
	events := NewEvents(8)

	n, err := r.Wait(events, 0)
	if err != nil || n != 0 {
		t.Fatalf("idle Wait = %d, %v; want 0 events", n, err)
	}

	c, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	n, err = r.Wait(events, 1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d events, want 1", n)
	}
	if events[0].Token != tok {
		t.Errorf("token = %v, want %v", events[0].Token, tok)
	}
	if !events[0].Readiness.IsReadable() {
		t.Errorf("readiness = %v, want readable", events[0].Readiness)
	}

	if err := r.Deregister(fd); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if err := r.Register(fd, tok, api.Readable); err != nil {
		t.Fatalf("re-Register after Deregister: %v", err)
	}
}

func TestReactor_DuplicateRegisterFails(t *testing.T) {
	r := newTestReactor(t)
	fd, err := socket.Listen(netip.MustParseAddrPort("127.0.0.1:0"), 16)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer socket.Close(fd)
	if err := r.Register(fd, 1, api.Readable); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(fd, 2, api.Readable); err == nil {
		t.Fatal("second Register of the same fd succeeded")
	}
}

func TestWaker_InterruptsWait(t *testing.T) {
	r := newTestReactor(t)
	w, err := NewWaker(r, 7)
	if err != nil {
		t.Fatalf("NewWaker: %v", err)
	}
	defer w.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = w.Wake()
	}()

	events := NewEvents(4)
	done := make(chan int, 1)
	go func() {
		n, _ := r.Wait(events, -1)
		done <- n
	}()
	select {
	case n := <-done:
		if n != 1 || events[0].Token != w.Token() {
			t.Fatalf("Wait returned %d events, first token %v", n, events[0].Token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wake did not interrupt Wait")
	}
	w.Reset()
}

func TestReadinessMapping(t *testing.T) {
	cases := []struct {
		interest api.Interest
		readable bool
		writable bool
	}{
		{api.Readable, true, false},
		{api.Writable, false, true},
		{api.Readable | api.Writable, true, true},
	}
	for _, c := range cases {
		ev := epollEvents(c.interest)
		got := readiness(ev)
		if got.IsReadable() != c.readable || got.IsWritable() != c.writable {
			t.Errorf("interest %v -> %v", c.interest, got)
		}
	}
}

func TestReadinessMapping_HalfCloseIsNotClosed(t *testing.T) {
	half := readiness(unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP)
	if half.IsClosed() {
		t.Errorf("half-close %v reported as closed", half)
	}
	if !half.IsReadClosed() || !half.IsReadable() {
		t.Errorf("half-close %v lost read state", half)
	}
	for _, ev := range []uint32{unix.EPOLLHUP, unix.EPOLLERR, unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLHUP} {
		if !readiness(ev).IsClosed() {
			t.Errorf("events %#x not reported as closed", ev)
		}
	}
}
