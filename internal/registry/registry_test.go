package registry

import (
	"testing"

	"github.com/tbs1996/pairwave/internal/score"
	"github.com/tbs1996/pairwave/internal/user"
)

func TestConnectAndTake(t *testing.T) {
	r := New()
	a := user.New("a", score.Score{})
	b := user.New("b", score.Score{})

	evicted := r.Connect(a, b)
	if len(evicted) != 0 {
		t.Fatalf("expected no evictions on fresh connect, got %d", len(evicted))
	}
	if !r.Contains("a") || !r.Contains("b") {
		t.Fatal("expected both ids registered")
	}

	this, peer, ok := r.Take("a")
	if !ok {
		t.Fatal("expected Take to succeed")
	}
	if this != a || peer != b {
		t.Error("expected Take(a) to return (a, b)")
	}
	if r.Contains("a") || r.Contains("b") {
		t.Error("expected both ids removed after Take")
	}
}

func TestTake_Missing(t *testing.T) {
	r := New()
	if _, _, ok := r.Take("nope"); ok {
		t.Fatal("expected Take to report not-found")
	}
}

func TestConnect_EvictsExistingPair(t *testing.T) {
	r := New()
	a := user.New("a", score.Score{})
	b := user.New("b", score.Score{})
	c := user.New("c", score.Score{})

	r.Connect(a, b)

	evicted := r.Connect(a, c)
	if len(evicted) != 1 {
		t.Fatalf("expected exactly one eviction, got %d", len(evicted))
	}
	if evicted[0].Left != a && evicted[0].Right != a {
		t.Error("expected evicted pair to involve a")
	}
	if !r.Contains("a") || !r.Contains("c") {
		t.Fatal("expected new pair (a,c) registered")
	}
	if r.Contains("b") {
		t.Error("expected b to be freed by the eviction")
	}
}
