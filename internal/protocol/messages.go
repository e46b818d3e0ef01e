// Package protocol defines the WebSocket wire format shared by the user
// endpoint and the pair relay. Messages are serialized as externally tagged
// JSON: a single-key object whose key names the variant and whose value is
// that variant's payload (or null for payload-less variants), e.g.
// {"User":"hello"} or {"ConnectionClosed":null}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tbs1996/pairwave/internal/score"
)

// ErrUnexpectedTag is returned by ParseClientMessage when the frame is a
// well-formed single-key envelope but the key names a tag the client is
// never expected to send (a server-only tag, or one unrecognized entirely).
// This is a protocol error, not a transport error: the caller should log
// and drop the frame but keep the connection open. It is
// distinct from every other error ParseClientMessage returns, all of which
// indicate a malformed frame and should cause the connection to close.
var ErrUnexpectedTag = errors.New("protocol: unexpected tag")

// Tag names. The tag is the sole key of the wire-format JSON object.
const (
	TagStatus           = "Status"
	TagStateChange      = "StateChange"
	TagUser             = "User"
	TagInfo             = "Info"
	TagPeerScores       = "PeerScores"
	TagConnectionClosed = "ConnectionClosed"
	TagGetStatus        = "GetStatus"
	TagPing             = "Ping"
	TagPong             = "Pong"
)

// UserStatus mirrors the coordinator's view of a user's place in the system.
type UserStatus string

const (
	StatusDisconnected UserStatus = "Disconnected"
	StatusWaiting      UserStatus = "Waiting"
	StatusIdle         UserStatus = "Idle"
	StatusConnected    UserStatus = "Connected"
)

// StateChange is the payload of a client-originated StateChange request. Only
// Waiting and Idle are valid requested states; a client cannot ask to become
// Connected or Disconnected directly.
type StateChange struct {
	Status UserStatus
}

// ClientMessage is the result of parsing one inbound frame: a tag and its
// decoded payload. Text and Request are populated only for the tags that
// carry them (User, StateChange respectively).
type ClientMessage struct {
	Tag     string
	Text    string
	Request StateChange
}

// ParseClientMessage decodes one externally tagged wire frame sent by a
// client. It returns ErrUnexpectedTag if the frame is a well-formed
// single-key envelope naming an unrecognized or server-only tag, and a plain
// error for every other decode failure (not a JSON object, not exactly one
// key, or a payload that fails to decode for its tag); callers must treat
// the two differently.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return ClientMessage{}, fmt.Errorf("protocol: frame is not a JSON object: %w", err)
	}
	if len(obj) != 1 {
		return ClientMessage{}, fmt.Errorf("protocol: expected exactly one tag, got %d", len(obj))
	}

	var tag string
	var raw json.RawMessage
	for k, v := range obj {
		tag = k
		raw = v
	}

	msg := ClientMessage{Tag: tag}

	switch tag {
	case TagUser:
		if err := json.Unmarshal(raw, &msg.Text); err != nil {
			return ClientMessage{}, fmt.Errorf("protocol: decoding %q payload: %w", tag, err)
		}
	case TagStateChange:
		var s UserStatus
		if err := json.Unmarshal(raw, &s); err != nil {
			return ClientMessage{}, fmt.Errorf("protocol: decoding %q payload: %w", tag, err)
		}
		if s != StatusWaiting && s != StatusIdle {
			return ClientMessage{}, fmt.Errorf("protocol: invalid requested state %q", s)
		}
		msg.Request = StateChange{Status: s}
	case TagGetStatus, TagPing:
		// no payload
	default:
		return ClientMessage{}, fmt.Errorf("%w: %q", ErrUnexpectedTag, tag)
	}

	return msg, nil
}

// Encode marshals a tag and its payload into the externally tagged wire
// format. Pass nil for payload-less variants.
func Encode(tag string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload == nil {
		raw = json.RawMessage("null")
	} else {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshaling %q payload: %w", tag, err)
		}
		raw = b
	}

	out, err := json.Marshal(map[string]json.RawMessage{tag: raw})
	if err != nil {
		return nil, fmt.Errorf("protocol: marshaling %q envelope: %w", tag, err)
	}
	return out, nil
}

// Status builds a Status server message.
func Status(s UserStatus) ([]byte, error) { return Encode(TagStatus, s) }

// User builds a User (chat text) message, sent in either direction.
func User(text string) ([]byte, error) { return Encode(TagUser, text) }

// Info builds a server-originated informational notice.
func Info(text string) ([]byte, error) { return Encode(TagInfo, text) }

// PeerScores builds the peer-score disclosure sent to both endpoints when a
// pair is formed.
func PeerScores(s score.Score) ([]byte, error) { return Encode(TagPeerScores, s) }

// ConnectionClosed builds the payload-less notice sent when a peer departs.
func ConnectionClosed() ([]byte, error) { return Encode(TagConnectionClosed, nil) }

// Ping builds a payload-less Ping frame.
func Ping() ([]byte, error) { return Encode(TagPing, nil) }

// Pong builds a payload-less Pong frame.
func Pong() ([]byte, error) { return Encode(TagPong, nil) }
