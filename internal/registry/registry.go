// Package registry implements the connection registry: the map from user id
// to active pair session. Its defining invariant — the number of id entries
// is always exactly twice the number of pair entries — is checked after
// every mutation.
package registry

import (
	"log"

	"github.com/tbs1996/pairwave/internal/relay"
	"github.com/tbs1996/pairwave/internal/user"
)

type pairKey string

func keyFor(a, b string) pairKey {
	if a < b {
		return pairKey(a + "\x00" + b)
	}
	return pairKey(b + "\x00" + a)
}

type entry struct {
	left, right *user.User
	handle      *relay.Handle
}

// Registry is owned exclusively by the state coordinator; like Queue, it is
// not safe for concurrent use by multiple goroutines.
type Registry struct {
	byUser map[string]pairKey
	pairs  map[pairKey]*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byUser: make(map[string]pairKey),
		pairs:  make(map[pairKey]*entry),
	}
}

// Connect installs left and right as a pair. Any existing pair for either id
// is reclaimed first (its relay stopped and both its occupants evicted). The
// eviction results are returned so the caller (coordinator) can route the
// freed users (e.g. into the idle set).
func (r *Registry) Connect(left, right *user.User) []relay.Result {
	var evicted []relay.Result
	if res, ok := r.takeResult(left.ID); ok {
		evicted = append(evicted, res)
	}
	if res, ok := r.takeResult(right.ID); ok {
		evicted = append(evicted, res)
	}

	key := keyFor(left.ID, right.ID)
	h := relay.Start(left, right)
	r.pairs[key] = &entry{left: left, right: right, handle: h}
	r.byUser[left.ID] = key
	r.byUser[right.ID] = key

	r.checkInvariant()
	return evicted
}

// Take reclaims the pair containing id, stopping its relay on id's behalf
// and waiting for teardown to finish. It returns the user matching id and
// its former peer, or ok == false if id is not currently paired.
func (r *Registry) Take(id string) (this, peer *user.User, ok bool) {
	res, found := r.takeResult(id)
	if !found {
		return nil, nil, false
	}
	if res.Left.ID == id {
		return res.Left, res.Right, true
	}
	return res.Right, res.Left, true
}

func (r *Registry) takeResult(id string) (relay.Result, bool) {
	key, ok := r.byUser[id]
	if !ok {
		return relay.Result{}, false
	}
	e := r.pairs[key]
	e.handle.Stop(id)
	res := <-e.handle.Done()

	delete(r.byUser, e.left.ID)
	delete(r.byUser, e.right.ID)
	delete(r.pairs, key)

	r.checkInvariant()
	return res, true
}

// Contains reports whether id is currently part of an active pair.
func (r *Registry) Contains(id string) bool {
	_, ok := r.byUser[id]
	return ok
}

// checkInvariant verifies that every pair has exactly two id entries
// pointing back at it. A violation is logged as a hard error; the registry's
// contents are left as they are.
func (r *Registry) checkInvariant() {
	if len(r.byUser) != len(r.pairs)*2 {
		log.Printf("registry: invariant violated: %d user entries for %d pairs", len(r.byUser), len(r.pairs))
	}
	for key, e := range r.pairs {
		if r.byUser[e.left.ID] != key || r.byUser[e.right.ID] != key {
			log.Printf("registry: invariant violated: pair %s/%s not referenced by both its ids", e.left.ID, e.right.ID)
		}
	}
}
