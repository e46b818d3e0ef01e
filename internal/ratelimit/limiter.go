// Package ratelimit throttles new WebSocket connection attempts per remote
// IP using the INCR + EXPIRE fixed-window algorithm against Redis. The
// initial /pair/<score>/<id> handshake is the only client-originated action
// outside of an established pairing, so the key prefix and window live on
// the Limiter itself; only the per-minute count is configurable, since that
// is the one knob operators actually tune (see
// internal/config.Config.ConnectRateLimit).
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces connect-attempt counters in the shared Redis keyspace.
const keyPrefix = "rl:conn:"

// window is the fixed window size for connection attempts; it starts at the
// first attempt counted in it.
const window = 1 * time.Minute

// Limiter enforces a cap on WebSocket connection attempts per remote IP,
// over a fixed one-minute window, backed by Redis.
type Limiter struct {
	client *redis.Client
	limit  int
}

// NewLimiter creates a Limiter backed by the given Redis client, allowing up
// to limit connection attempts per remote IP per minute.
func NewLimiter(client *redis.Client, limit int) *Limiter {
	return &Limiter{client: client, limit: limit}
}

// Allow checks whether remoteIP is within the connect-rate limit. It
// increments the counter in Redis and sets the expiry on first access.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does
// not block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, remoteIP string) (bool, error) {
	key := keyPrefix + remoteIP

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// The key exists but has no TTL — it will persist. Best effort: try
			// to delete it so it doesn't block remoteIP forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	if int(count) > l.limit {
		return false, nil
	}

	return true, nil
}

// Remaining returns the number of connection attempts remoteIP has left in
// the current window. Returns the full limit if the key does not exist yet.
// On Redis errors it returns the full limit (fail open).
func (l *Limiter) Remaining(ctx context.Context, remoteIP string) (int, error) {
	key := keyPrefix + remoteIP

	count, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return l.limit, nil
	}
	if err != nil {
		log.Printf("[ratelimit] redis GET error key=%s: %v (failing open)", key, err)
		return l.limit, err
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
