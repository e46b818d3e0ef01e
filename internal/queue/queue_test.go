package queue

import (
	"testing"

	"github.com/tbs1996/pairwave/internal/score"
	"github.com/tbs1996/pairwave/internal/user"
)

func mk(id string, s score.Score) *user.User {
	return user.New(id, s)
}

func TestPopPair_FewerThanTwo(t *testing.T) {
	q := New()
	if _, _, ok := q.PopPair(); ok {
		t.Fatal("expected no pair from empty queue")
	}
	q.Enqueue(mk("a", score.Score{}))
	if _, _, ok := q.PopPair(); ok {
		t.Fatal("expected no pair from single-entry queue")
	}
}

func TestPopPair_NearestNeighbor(t *testing.T) {
	q := New()
	a := mk("a", score.Score{O: 0, C: 0, E: 0, A: 0, N: 0})
	b := mk("b", score.Score{O: 90, C: 90, E: 90, A: 90, N: 90})
	c := mk("c", score.Score{O: 10, C: 10, E: 10, A: 10, N: 10})
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	left, right, ok := q.PopPair()
	if !ok {
		t.Fatal("expected a pair")
	}
	if left.ID != "a" {
		t.Errorf("expected left to be the longest waiter 'a', got %q", left.ID)
	}
	if right.ID != "c" {
		t.Errorf("expected right to be nearest neighbor 'c', got %q", right.ID)
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 remaining waiter, got %d", q.Len())
	}
}

func TestEnqueue_DuplicateIDEvictsOld(t *testing.T) {
	q := New()
	first := mk("a", score.Score{})
	q.Enqueue(first)

	second := mk("a", score.Score{O: 1})
	q.Enqueue(second)

	if !first.Closed() {
		t.Error("expected original entry to be closed on duplicate admission")
	}
	if q.Len() != 1 {
		t.Fatalf("expected exactly one entry for duplicate id, got %d", q.Len())
	}
	got, ok := q.Take("a")
	if !ok {
		t.Fatal("expected to find id a")
	}
	if got != second {
		t.Error("expected the newer entry to occupy the slot")
	}
}

func TestTake_Missing(t *testing.T) {
	q := New()
	if _, ok := q.Take("nope"); ok {
		t.Fatal("expected Take to report not-found for missing id")
	}
}

func TestPopPair_SkipsClosedEntries(t *testing.T) {
	q := New()
	a := mk("a", score.Score{})
	b := mk("b", score.Score{O: 5})
	c := mk("c", score.Score{O: 50})
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)
	a.Close()

	left, right, ok := q.PopPair()
	if !ok {
		t.Fatal("expected a pair after discarding the closed head")
	}
	if left.ID != "b" || right.ID != "c" {
		t.Errorf("expected (b,c), got (%s,%s)", left.ID, right.ID)
	}
}
