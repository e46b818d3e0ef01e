// Package presence mirrors user status transitions into Redis so that an
// HTTP handler on any instance behind a load balancer can answer a
// /status/<id> query even for a user whose connection lives on a different
// process. Pairing authority stays in the local state coordinator, not
// Redis; the mirror holds only the one field needed to answer status
// queries.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbs1996/pairwave/internal/protocol"
)

// KeyPrefix namespaces presence keys in the shared Redis keyspace.
const KeyPrefix = "presence:"

// TTL bounds how long a mirrored status survives without a fresh write, so a
// crashed instance's users don't appear falsely Connected/Waiting forever.
const TTL = 5 * time.Minute

// Mirror is a Redis-backed presence mirror.
type Mirror struct {
	client *redis.Client
}

// New connects to Redis at addr and verifies the connection with a ping.
func New(addr string) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	return &Mirror{client: client}, nil
}

// Set writes id's status to Redis, bounded by a short timeout. It still
// performs a real round trip, so it blocks its caller for the duration of
// that round trip (or the timeout) — presence is best-effort and must never
// stall a state transition, so the coordinator calls this from its own
// goroutine rather than inline (see coordinator.Coordinator.mirror). Write
// failures are silently dropped rather than returned, since there is no
// caller in a position to retry them.
func (m *Mirror) Set(id string, status protocol.UserStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = m.client.Set(ctx, KeyPrefix+id, string(status), TTL).Err()
}

// Get looks up id's mirrored status. It returns StatusDisconnected (with no
// error) if the key is absent or expired.
func (m *Mirror) Get(ctx context.Context, id string) (protocol.UserStatus, error) {
	val, err := m.client.Get(ctx, KeyPrefix+id).Result()
	if err == redis.Nil {
		return protocol.StatusDisconnected, nil
	}
	if err != nil {
		return "", fmt.Errorf("presence: get %s: %w", id, err)
	}
	return protocol.UserStatus(val), nil
}

// Close releases the underlying Redis client.
func (m *Mirror) Close() error {
	return m.client.Close()
}
