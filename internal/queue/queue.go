// Package queue implements the waiting queue: the ordered set of users
// available for pairing. Ordering is FIFO by arrival; pair selection is
// FIFO for the left side and nearest-neighbor for the right, which bounds
// any single user's wait while still pairing by similarity.
package queue

import (
	"github.com/tbs1996/pairwave/internal/user"
)

// Queue is the FIFO-by-arrival waiting list. It is not safe for concurrent
// use by multiple goroutines — it is owned exclusively by the state
// coordinator (internal/coordinator).
type Queue struct {
	users []*user.User
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Len reports the number of users currently waiting.
func (q *Queue) Len() int {
	return len(q.users)
}

// Enqueue admits u to the back of the queue. If a user with the same id is
// already present, it is evicted first (its endpoint closed); eviction is
// synchronous, since only the owning coordinator goroutine ever mutates the
// queue, so the new entry is admitted immediately after.
func (q *Queue) Enqueue(u *user.User) {
	if existing := q.takeIndex(u.ID); existing >= 0 {
		evicted := q.users[existing]
		q.users = append(q.users[:existing], q.users[existing+1:]...)
		evicted.Close()
	}
	q.users = append(q.users, u)
}

// Contains reports whether id is currently waiting, without removing it.
func (q *Queue) Contains(id string) bool {
	return q.takeIndex(id) >= 0
}

// Take removes and returns the user with the given id, if present.
func (q *Queue) Take(id string) (*user.User, bool) {
	idx := q.takeIndex(id)
	if idx < 0 {
		return nil, false
	}
	u := q.users[idx]
	q.users = append(q.users[:idx], q.users[idx+1:]...)
	return u, true
}

func (q *Queue) takeIndex(id string) int {
	for i, u := range q.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

// PopPair removes and returns the longest-waiting user together with the
// live waiter whose score is closest to it by Euclidean distance. It returns
// ok == false if fewer than two live users remain. Closed entries are
// discarded as a side effect.
func (q *Queue) PopPair() (left, right *user.User, ok bool) {
	live := q.users[:0:0]
	for _, u := range q.users {
		if !u.Closed() {
			live = append(live, u)
		}
	}
	q.users = live

	if len(q.users) < 2 {
		return nil, nil, false
	}

	left = q.users[0]
	q.users = q.users[1:]

	rightIdx := 0
	closest := left.Score.Distance(q.users[0].Score)
	for i := 1; i < len(q.users); i++ {
		d := left.Score.Distance(q.users[i].Score)
		if d < closest {
			closest = d
			rightIdx = i
		}
	}

	right = q.users[rightIdx]
	q.users = append(q.users[:rightIdx], q.users[rightIdx+1:]...)

	return left, right, true
}
