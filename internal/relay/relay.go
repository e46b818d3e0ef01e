// Package relay implements the pair relay: the task that owns two connected
// users for the lifetime of a chat session. Message forwarding itself
// happens directly in each endpoint's reader goroutine (via user.User.Peer)
// rather than through a dedicated forwarding loop — the relay's job is the
// session's setup and teardown bookkeeping: the initial Info/PeerScores
// handshake, detecting either side's departure, and delivering
// ConnectionClosed to whichever side remains.
package relay

import (
	"log"
	"sync"

	"github.com/tbs1996/pairwave/internal/protocol"
	"github.com/tbs1996/pairwave/internal/score"
	"github.com/tbs1996/pairwave/internal/user"
)

// Result is delivered on a Handle's Done channel once a session ends. Both
// users are returned to the caller (the connection registry), which owns
// routing them afterward.
type Result struct {
	Left, Right *user.User
}

// Handle controls one running pair session.
type Handle struct {
	left, right *user.User

	mu        sync.Mutex
	stopped   bool
	initiator string
	stopCh    chan struct{}

	done chan Result
}

// Start installs left and right as each other's peer, sends the initial
// Info + PeerScores handshake to both, and returns a Handle that the
// connection registry uses to later reclaim the pair.
func Start(left, right *user.User) *Handle {
	left.SetPeer(right)
	right.SetPeer(left)

	greet(left, right.Score)
	greet(right, left.Score)

	h := &Handle{
		left:   left,
		right:  right,
		stopCh: make(chan struct{}),
		done:   make(chan Result, 1),
	}

	go h.run()

	return h
}

// greet sends the two-message session-start handshake: an Info notice
// followed by the peer's Score. A send failure is fatal for the endpoint:
// closing it here ends the session, and the run loop notifies the other
// side.
func greet(u *user.User, peerScore score.Score) {
	info, err := protocol.Info("connected to peer!")
	if err != nil {
		log.Printf("relay: encoding Info: %v", err)
		return
	}
	if err := u.Send(info); err != nil {
		log.Printf("relay: sending Info to %s: %v", u.ID, err)
		u.Close()
		return
	}

	scores, err := protocol.PeerScores(peerScore)
	if err != nil {
		log.Printf("relay: encoding PeerScores: %v", err)
		return
	}
	if err := u.Send(scores); err != nil {
		log.Printf("relay: sending PeerScores to %s: %v", u.ID, err)
		u.Close()
	}
}

func (h *Handle) run() {
	var initiator string

	select {
	case <-h.stopCh:
		h.mu.Lock()
		initiator = h.initiator
		h.mu.Unlock()
	case <-h.left.Done():
		initiator = h.left.ID
	case <-h.right.Done():
		initiator = h.right.ID
	}

	h.left.ClearPeer()
	h.right.ClearPeer()

	h.notifyOther(initiator)

	h.done <- Result{Left: h.left, Right: h.right}
}

// notifyOther sends ConnectionClosed to whichever side did not initiate the
// end of the session, provided that side's socket is still live.
func (h *Handle) notifyOther(initiatorID string) {
	var target *user.User
	switch initiatorID {
	case h.left.ID:
		target = h.right
	case h.right.ID:
		target = h.left
	default:
		return
	}

	if target.Closed() {
		return
	}

	msg, err := protocol.ConnectionClosed()
	if err != nil {
		log.Printf("relay: encoding ConnectionClosed: %v", err)
		return
	}
	if err := target.Send(msg); err != nil {
		// The survivor's mailbox is full or closed; its endpoint is no
		// longer deliverable, so close it rather than leave it idling
		// without the teardown notice.
		log.Printf("relay: notifying %s of peer departure: %v", target.ID, err)
		target.Close()
	}
}

// Stop ends the session on behalf of initiatorID (the user whose departure
// or state change caused the registry to reclaim this pair). It is safe to
// call more than once; only the first call has effect.
func (h *Handle) Stop(initiatorID string) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.initiator = initiatorID
	h.mu.Unlock()
	close(h.stopCh)
}

// Done returns the channel on which the session's Result is delivered once
// the relay has finished tearing down.
func (h *Handle) Done() <-chan Result {
	return h.done
}
