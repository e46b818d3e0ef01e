// Package endpoint implements the user endpoint: the per-connection reader
// and writer goroutines that translate WebSocket frames into coordinator
// events and drain a user's outbound mailbox back onto the socket. Liveness
// is a single deadline — any inbound frame, including Ping, refreshes the
// read timeout; there is no separate active-pinger task.
package endpoint

import (
	"errors"
	"io"
	"log"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/tbs1996/pairwave/internal/metrics"
	"github.com/tbs1996/pairwave/internal/protocol"
	"github.com/tbs1996/pairwave/internal/score"
	"github.com/tbs1996/pairwave/internal/user"
)

// Coordinator is the subset of *coordinator.Coordinator an endpoint needs.
type Coordinator interface {
	Enqueue(u *user.User)
	RequestStateChange(id string, target protocol.UserStatus)
	Remove(id string)
	GetStatus(id string) protocol.UserStatus
}

// Config tunes per-connection behavior.
type Config struct {
	ReadTimeout  time.Duration // T_idle; default 120s
	MaxFrameSize int64         // reject larger inbound frames; 0 disables the check
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:  120 * time.Second,
		MaxFrameSize: 4096,
	}
}

// Serve owns conn for the lifetime of one user session: it enqueues a new
// User with the coordinator, starts a writer goroutine draining the user's
// outbound mailbox onto the socket, and runs the reader loop on the calling
// goroutine until the connection closes, a frame fails to decode, or the
// read-timeout fires. Serve blocks until the connection is fully torn down.
func Serve(conn net.Conn, id string, sc score.Score, coord Coordinator, cfg Config) {
	u := user.New(id, sc)
	coord.Enqueue(u)
	metrics.ConnectionsTotal.Inc()
	defer metrics.ConnectionsTotal.Dec()

	writerDone := make(chan struct{})
	go runWriter(conn, u, writerDone)

	runReader(conn, u, coord, cfg)

	// Reader exit means this session is over whether or not the coordinator
	// has processed the Remove yet; self-closing here wakes the writer, which
	// drains the mailbox and closes the socket.
	u.Close()
	<-writerDone
}

// runWriter drains u's outbound mailbox onto conn until u is closed or a
// write fails. It owns conn exclusively for writes, so no write mutex is
// needed. On a close
// signal it drains whatever is still queued, sends a Close frame, and closes
// the socket — closing it is also what unblocks a reader parked in
// NextReader, keeping eviction (e.g. on duplicate-id arrival) bounded by the
// drain deadline instead of the full read timeout.
func runWriter(conn net.Conn, u *user.User, done chan struct{}) {
	defer close(done)
	for {
		select {
		case frame := <-u.Outbox():
			if err := wsutil.WriteServerMessage(conn, ws.OpText, frame); err != nil {
				log.Printf("endpoint: write failed for %s: %v", u.ID, err)
				u.Close()
				_ = conn.Close()
				return
			}
		case <-u.Done():
			drainAndClose(conn, u)
			return
		}
	}
}

// drainAndClose flushes any frames still queued in u's mailbox, sends a
// WebSocket Close, and closes the socket. Writes are bounded by a short
// deadline so a dead peer cannot stall the close path.
func drainAndClose(conn net.Conn, u *user.User) {
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	for {
		select {
		case frame := <-u.Outbox():
			if err := wsutil.WriteServerMessage(conn, ws.OpText, frame); err != nil {
				_ = conn.Close()
				return
			}
		default:
			_ = ws.WriteFrame(conn, ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
			_ = conn.Close()
			return
		}
	}
}

// runReader reads and dispatches inbound frames until the connection
// errors, a frame fails to decode, the user is otherwise closed, or
// cfg.ReadTimeout elapses without any inbound frame.
func runReader(conn net.Conn, u *user.User, coord Coordinator, cfg Config) {
	defer coord.Remove(u.ID)

	for {
		if u.Closed() {
			return
		}

		if cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		}

		header, reader, err := wsutil.NextReader(conn, ws.StateServerSide)
		if err != nil {
			return
		}

		if header.OpCode.IsControl() {
			if header.OpCode == ws.OpClose {
				return
			}
			// Any control frame proves liveness even though it carries no
			// application payload; the deadline reset happens on the next
			// loop iteration.
			continue
		}

		if cfg.MaxFrameSize > 0 && header.Length > cfg.MaxFrameSize {
			_, _ = io.Copy(io.Discard, reader)
			continue
		}

		data := make([]byte, header.Length)
		if header.Length > 0 {
			if _, err := io.ReadFull(reader, data); err != nil {
				return
			}
		}

		msg, err := protocol.ParseClientMessage(data)
		if errors.Is(err, protocol.ErrUnexpectedTag) {
			// The envelope decoded fine, it just named a tag the client has
			// no business sending. Logged and dropped; the connection
			// continues.
			log.Printf("endpoint: protocol error from %s: %v", u.ID, err)
			continue
		}
		if err != nil {
			// Anything else is a malformed frame: exit the reader loop so
			// the deferred Remove tears the endpoint down.
			log.Printf("endpoint: malformed frame from %s: %v", u.ID, err)
			return
		}

		if !dispatch(u, coord, msg) {
			return
		}
	}
}

// dispatch handles one decoded inbound message. It returns false if the
// endpoint should stop reading.
func dispatch(u *user.User, coord Coordinator, msg protocol.ClientMessage) bool {
	switch msg.Tag {
	case protocol.TagPing:
		pong, err := protocol.Ping()
		if err != nil {
			return true
		}
		if err := u.Send(pong); err != nil {
			// A full or closed mailbox is fatal for this endpoint: stop
			// reading so the deferred Remove tears it down.
			log.Printf("endpoint: send to %s: %v", u.ID, err)
			return false
		}
	case protocol.TagGetStatus:
		s := coord.GetStatus(u.ID)
		frame, err := protocol.Status(s)
		if err != nil {
			return true
		}
		if err := u.Send(frame); err != nil {
			log.Printf("endpoint: send to %s: %v", u.ID, err)
			return false
		}
	case protocol.TagStateChange:
		coord.RequestStateChange(u.ID, msg.Request.Status)
	case protocol.TagUser:
		peer := u.Peer()
		if peer == nil {
			break
		}
		frame, err := protocol.User(msg.Text)
		if err != nil {
			return true
		}
		if err := peer.Send(frame); err != nil {
			// A forward failure terminates the session: removing the peer
			// reclaims the pair, and the relay notifies this side with
			// ConnectionClosed.
			log.Printf("endpoint: forwarding to peer %s: %v", peer.ID, err)
			metrics.MessagesRelayedTotal.WithLabelValues("dropped").Inc()
			coord.Remove(peer.ID)
		} else {
			metrics.MessagesRelayedTotal.WithLabelValues("relayed").Inc()
		}
	default:
		log.Printf("endpoint: unexpected tag %q from %s", msg.Tag, u.ID)
	}
	return true
}
