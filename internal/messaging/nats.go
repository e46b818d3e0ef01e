// Package messaging provides an optional NATS publisher for pairing
// lifecycle events (connect, pair, disconnect), consumed by external
// analytics/audit tooling. Lifecycle events never flow back into the
// server, so there are no Subscribe helpers.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectLifecycle is the subject pairing lifecycle events are published to.
const SubjectLifecycle = "pairing.lifecycle"

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "pairwave",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Publisher wraps a NATS connection and publishes pairing lifecycle events.
// It satisfies coordinator.Notifier.
type Publisher struct {
	conn *nats.Conn
}

// Connect dials NATS with the given config. The caller should treat a
// connection failure as non-fatal and run without a Publisher — lifecycle
// events are an optional side channel, never load-bearing.
func Connect(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())
	return &Publisher{conn: nc}, nil
}

type lifecycleEvent struct {
	Event  string `json:"event"`
	A      string `json:"a"`
	B      string `json:"b,omitempty"`
	PairID string `json:"pair_id,omitempty"`
	At     int64  `json:"at"`
}

func (p *Publisher) publish(ev lifecycleEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[nats] marshal lifecycle event: %v", err)
		return
	}
	if err := p.conn.Publish(SubjectLifecycle, data); err != nil {
		log.Printf("[nats] publish lifecycle event: %v", err)
	}
}

// UserConnected publishes a user_connected lifecycle event.
func (p *Publisher) UserConnected(id string) {
	p.publish(lifecycleEvent{Event: "user_connected", A: id, At: time.Now().Unix()})
}

// UserPaired publishes a user_paired lifecycle event carrying pairID so
// consumers can correlate both sides of one session.
func (p *Publisher) UserPaired(pairID, leftID, rightID string) {
	p.publish(lifecycleEvent{Event: "user_paired", A: leftID, B: rightID, PairID: pairID, At: time.Now().Unix()})
}

// UserDisconnected publishes a user_disconnected lifecycle event.
func (p *Publisher) UserDisconnected(id string) {
	p.publish(lifecycleEvent{Event: "user_disconnected", A: id, At: time.Now().Unix()})
}

// Close drains and closes the underlying NATS connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
	log.Printf("[nats] client closed")
}
