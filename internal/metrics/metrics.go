// Package metrics provides Prometheus instrumentation for the pairing
// service. It exposes gauges for connection and queue/pair counts, counters
// for message throughput and invariant violations, and a histogram for
// pairing latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairwave_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// WaitingQueueSize tracks the current number of users in the waiting queue.
	WaitingQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairwave_waiting_queue_size",
		Help: "Current number of users in the waiting queue",
	})

	// ActivePairs tracks the current number of connected pairs.
	ActivePairs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairwave_active_pairs",
		Help: "Current number of connected pairs",
	})

	// MessagesRelayedTotal counts chat messages forwarded between paired
	// users, labeled by outcome: "relayed" or "dropped" (peer mailbox full
	// or closed).
	MessagesRelayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairwave_messages_relayed_total",
		Help: "Total number of chat messages relayed between paired users",
	}, []string{"direction"})

	// PairLatencySeconds records the time from a user's connection to its
	// pairing. It is measured from the connect timestamp, so for a user who
	// re-queues after an earlier session it also covers that session.
	PairLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pairwave_pair_latency_seconds",
		Help:    "Time from connection to pairing, in seconds",
		Buckets: []float64{.1, .5, 1, 2, 5, 10, 15, 20, 30, 60},
	})

	// InvariantViolationsTotal counts detected violations of the
	// one-id-in-one-container invariant, which should never fire under the
	// single-owner coordinator design.
	InvariantViolationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairwave_invariant_violations_total",
		Help: "Count of detected state container invariant violations",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		WaitingQueueSize,
		ActivePairs,
		MessagesRelayedTotal,
		PairLatencySeconds,
		InvariantViolationsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
