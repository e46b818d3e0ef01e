// Package user defines the in-process representation of a connected user: an
// id, a personality score, and a bounded outbound mailbox. A *User is meant
// to be moved between containers (waiting queue, idle set, pair relay), never
// shared by multiple owners at once — see the endpoint and coordinator
// packages for the discipline that keeps that true.
package user

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tbs1996/pairwave/internal/score"
)

// MailboxSize is the capacity of a User's outbound channel.
const MailboxSize = 32

// User is one connected client: identity, personality score, and the
// channel its owning endpoint writer drains to push frames to the socket.
type User struct {
	ID          string
	Score       score.Score
	ConnectedAt time.Time

	outbox    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
	peer      atomic.Pointer[User]
}

// New creates a User with a fresh bounded outbound mailbox.
func New(id string, s score.Score) *User {
	return &User{
		ID:          id,
		Score:       s,
		ConnectedAt: time.Now(),
		outbox:      make(chan []byte, MailboxSize),
		closeCh:     make(chan struct{}),
	}
}

// Send enqueues a frame for delivery to this user's socket. It never blocks:
// if the mailbox is full the send fails and the caller should treat this as a
// fatal error for the endpoint.
func (u *User) Send(frame []byte) error {
	if u.Closed() {
		return fmt.Errorf("user: %s is closed", u.ID)
	}
	select {
	case u.outbox <- frame:
		return nil
	case <-u.closeCh:
		return fmt.Errorf("user: %s is closed", u.ID)
	default:
		return fmt.Errorf("user: %s mailbox full", u.ID)
	}
}

// Outbox returns the channel the endpoint writer goroutine drains.
func (u *User) Outbox() <-chan []byte {
	return u.outbox
}

// Close signals this user's endpoint to tear down. It is safe to call more
// than once.
func (u *User) Close() {
	u.closeOnce.Do(func() { close(u.closeCh) })
}

// Done returns a channel that is closed once Close has been called.
func (u *User) Done() <-chan struct{} {
	return u.closeCh
}

// Closed reports whether Close has been called.
func (u *User) Closed() bool {
	select {
	case <-u.closeCh:
		return true
	default:
		return false
	}
}

// SetPeer installs p as this user's active chat partner. While a peer is
// installed, inbound User(text) frames read by this user's endpoint are
// forwarded directly to the peer's mailbox — see the endpoint package.
func (u *User) SetPeer(p *User) {
	u.peer.Store(p)
}

// ClearPeer removes the active chat partner, e.g. when a pair session ends.
func (u *User) ClearPeer() {
	u.peer.Store(nil)
}

// Peer returns the currently installed chat partner, or nil if this user is
// not part of an active pair.
func (u *User) Peer() *User {
	return u.peer.Load()
}
