package token

import (
	"errors"
	"testing"

	"github.com/momentics/hioload-proxy/api"
)

func TestAllocator_StrictlyIncreasing(t *testing.T) {
	a := NewAllocator()
	seen := make(map[api.Token]struct{})
	var prev api.Token
	for i := 0; i < 10000; i++ {
		tok, err := a.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if tok == api.InvalidToken {
			t.Fatal("allocator returned the invalid token")
		}
		if tok <= prev {
			t.Fatalf("token %d not greater than %d", tok, prev)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %d", tok)
		}
		seen[tok] = struct{}{}
		prev = tok
	}
	if a.Allocated() != 10000 {
		t.Errorf("Allocated = %d, want 10000", a.Allocated())
	}
}

func TestAllocator_FailsClosed(t *testing.T) {
	a := newAllocatorAt(5, 7)
	for _, want := range []api.Token{6, 7} {
		got, err := a.Next()
		if err != nil || got != want {
			t.Fatalf("Next = %d, %v; want %d", got, err, want)
		}
	}
	for i := 0; i < 3; i++ {
		tok, err := a.Next()
		if !errors.Is(err, api.ErrTokensExhausted) {
			t.Fatalf("expected ErrTokensExhausted, got %v", err)
		}
		if tok != api.InvalidToken {
			t.Fatalf("exhausted allocator returned %d", tok)
		}
	}
}
