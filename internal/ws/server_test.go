package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/tbs1996/pairwave/internal/coordinator"
	"github.com/tbs1996/pairwave/internal/matchmaker"
	"github.com/tbs1996/pairwave/internal/protocol"
)

// smokeClient is a minimal raw WebSocket client: dial with gobwas/ws, read
// frames in a background goroutine into a channel, write frames with
// wsutil directly.
type smokeClient struct {
	conn   io.ReadWriteCloser
	frames chan map[string]json.RawMessage
}

func dialSmoke(t *testing.T, httpURL, path string) *smokeClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + path
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	c := &smokeClient{conn: conn, frames: make(chan map[string]json.RawMessage, 16)}
	go c.readLoop()
	return c
}

func (c *smokeClient) readLoop() {
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			close(c.frames)
			return
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			continue
		}
		c.frames <- obj
	}
}

func (c *smokeClient) send(t *testing.T, tag string, payload interface{}) {
	t.Helper()
	data, err := protocol.Encode(tag, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", tag, err)
	}
	if err := wsutil.WriteClientMessage(c.conn, ws.OpText, data); err != nil {
		t.Fatalf("write %s: %v", tag, err)
	}
}

func (c *smokeClient) expect(t *testing.T, tag string, within time.Duration) json.RawMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case obj, ok := <-c.frames:
			if !ok {
				t.Fatalf("connection closed waiting for %s", tag)
			}
			if raw, found := obj[tag]; found {
				return raw
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", tag)
		}
	}
}

func (c *smokeClient) close() { _ = c.conn.Close() }

func newTestServer(t *testing.T, pairInterval time.Duration) (*httptest.Server, context.CancelFunc) {
	t.Helper()
	coord := coordinator.New()
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	go matchmaker.Loop(ctx, coord, pairInterval)

	cfg := DefaultConfig()
	cfg.Endpoint.ReadTimeout = 500 * time.Millisecond
	srv := New(cfg, coord, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, cancel
}

// TestPairing_HandshakeDelivered: two equal-score users are paired within
// one matchmaker tick and both receive the Info + PeerScores handshake.
func TestPairing_HandshakeDelivered(t *testing.T) {
	ts, cancel := newTestServer(t, 20*time.Millisecond)
	defer cancel()

	a := dialSmoke(t, ts.URL, "/pair/50,50,50,50,50/A")
	defer a.close()
	b := dialSmoke(t, ts.URL, "/pair/50,50,50,50,50/B")
	defer b.close()

	a.expect(t, protocol.TagInfo, time.Second)
	a.expect(t, protocol.TagPeerScores, time.Second)
	b.expect(t, protocol.TagInfo, time.Second)
	b.expect(t, protocol.TagPeerScores, time.Second)

	assertStatus(t, ts.URL, "A", protocol.StatusConnected)
	assertStatus(t, ts.URL, "B", protocol.StatusConnected)
}

// TestChatRelay_DeliveredToPeerOnly: a chat message sent by one paired user
// is delivered to its peer and not echoed to the sender.
func TestChatRelay_DeliveredToPeerOnly(t *testing.T) {
	ts, cancel := newTestServer(t, 20*time.Millisecond)
	defer cancel()

	a := dialSmoke(t, ts.URL, "/pair/50,50,50,50,50/A")
	defer a.close()
	b := dialSmoke(t, ts.URL, "/pair/50,50,50,50,50/B")
	defer b.close()
	a.expect(t, protocol.TagPeerScores, time.Second)
	b.expect(t, protocol.TagPeerScores, time.Second)

	a.send(t, protocol.TagUser, "hello")
	raw := b.expect(t, protocol.TagUser, time.Second)
	var text string
	if err := json.Unmarshal(raw, &text); err != nil || text != "hello" {
		t.Fatalf("expected %q, got %q (err=%v)", "hello", text, err)
	}

	select {
	case obj := <-a.frames:
		if _, ok := obj[protocol.TagUser]; ok {
			t.Fatalf("sender should not receive its own chat message")
		}
	case <-time.After(150 * time.Millisecond):
	}
}

// TestPeerDeparture_SurvivorRequeues: when a peer disconnects the survivor
// goes Idle (not Disconnected) and can re-queue itself.
func TestPeerDeparture_SurvivorRequeues(t *testing.T) {
	ts, cancel := newTestServer(t, 20*time.Millisecond)
	defer cancel()

	a := dialSmoke(t, ts.URL, "/pair/50,50,50,50,50/A")
	defer a.close()
	b := dialSmoke(t, ts.URL, "/pair/50,50,50,50,50/B")
	a.expect(t, protocol.TagPeerScores, time.Second)
	b.expect(t, protocol.TagPeerScores, time.Second)

	b.close()
	a.expect(t, protocol.TagConnectionClosed, time.Second)
	assertStatusEventually(t, ts.URL, "A", protocol.StatusIdle, time.Second)

	a.send(t, protocol.TagStateChange, protocol.StatusWaiting)
	assertStatusEventually(t, ts.URL, "A", protocol.StatusWaiting, time.Second)
}

func assertStatus(t *testing.T, baseURL, id string, want protocol.UserStatus) {
	t.Helper()
	got := fetchStatus(t, baseURL, id)
	if got != want {
		t.Fatalf("status(%s) = %v, want %v", id, got, want)
	}
}

func assertStatusEventually(t *testing.T, baseURL, id string, want protocol.UserStatus, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if fetchStatus(t, baseURL, id) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status(%s) never became %v", id, want)
}

func fetchStatus(t *testing.T, baseURL, id string) protocol.UserStatus {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("%s/status/%s", baseURL, id))
	if err != nil {
		t.Fatalf("GET /status/%s: %v", id, err)
	}
	defer resp.Body.Close()
	var s protocol.UserStatus
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return s
}
