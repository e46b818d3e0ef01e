package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/tbs1996/pairwave/internal/score"
)

func TestParseClientMessage_User(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"User":"hello there"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Tag != TagUser {
		t.Fatalf("expected tag %q, got %q", TagUser, msg.Tag)
	}
	if msg.Text != "hello there" {
		t.Errorf("expected text %q, got %q", "hello there", msg.Text)
	}
}

func TestParseClientMessage_StateChange(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"StateChange":"Waiting"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Request.Status != StatusWaiting {
		t.Errorf("expected status %q, got %q", StatusWaiting, msg.Request.Status)
	}
}

func TestParseClientMessage_StateChange_InvalidTarget(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"StateChange":"Connected"}`)); err == nil {
		t.Fatal("expected error requesting Connected state")
	}
}

func TestParseClientMessage_GetStatus(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"GetStatus":null}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Tag != TagGetStatus {
		t.Errorf("expected tag %q, got %q", TagGetStatus, msg.Tag)
	}
}

func TestParseClientMessage_Ping(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"Ping":null}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Tag != TagPing {
		t.Errorf("expected tag %q, got %q", TagPing, msg.Tag)
	}
}

func TestParseClientMessage_ServerOnlyTagRejected(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"PeerScores":{"o":1,"c":1,"e":1,"a":1,"n":1}}`))
	if err == nil {
		t.Fatal("expected error for server-only tag sent by client")
	}
	if !errors.Is(err, ErrUnexpectedTag) {
		t.Errorf("expected ErrUnexpectedTag, got %v", err)
	}
}

// TestParseClientMessage_MultiKeyObjectRejected covers a malformed-frame
// case: it must NOT be ErrUnexpectedTag, since the endpoint reader uses
// that distinction to decide whether to keep the connection open.
func TestParseClientMessage_MultiKeyObjectRejected(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"User":"a","Ping":null}`))
	if err == nil {
		t.Fatal("expected error for multi-key envelope")
	}
	if errors.Is(err, ErrUnexpectedTag) {
		t.Error("multi-key envelope is a malformed frame, not ErrUnexpectedTag")
	}
}

func TestParseClientMessage_NotAnObject(t *testing.T) {
	_, err := ParseClientMessage([]byte(`"User"`))
	if err == nil {
		t.Fatal("expected error for non-object frame")
	}
	if errors.Is(err, ErrUnexpectedTag) {
		t.Error("non-object frame is a malformed frame, not ErrUnexpectedTag")
	}
}

func TestEncode_User(t *testing.T) {
	data, err := User("hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(obj) != 1 {
		t.Fatalf("expected single-key object, got %d keys", len(obj))
	}
	if obj[TagUser] != "hi" {
		t.Errorf("expected %q payload %q, got %v", TagUser, "hi", obj[TagUser])
	}
}

func TestEncode_ConnectionClosed(t *testing.T) {
	data, err := ConnectionClosed()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"ConnectionClosed":null}` {
		t.Errorf("unexpected encoding: %s", data)
	}
}

func TestEncode_PeerScores_RoundTrip(t *testing.T) {
	s := score.Score{O: 1, C: 2, E: 3, A: 4, N: 5}
	data, err := PeerScores(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var obj map[string]score.Score
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	got, ok := obj[TagPeerScores]
	if !ok {
		t.Fatalf("missing %q key", TagPeerScores)
	}
	if got != s {
		t.Errorf("expected %+v, got %+v", s, got)
	}
}

func TestEncode_Status(t *testing.T) {
	data, err := Status(StatusConnected)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"Status":"Connected"}` {
		t.Errorf("unexpected encoding: %s", data)
	}
}
