// Package ws is the HTTP front door of the pairing service: it upgrades the
// WebSocket pairing handshake at /pair/<score>/<id>, answers out-of-band
// status queries at /status/<id>, and exposes health and Prometheus metrics
// endpoints. Each upgraded connection is handed to a reader/writer
// goroutine pair in internal/endpoint.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"

	"github.com/tbs1996/pairwave/internal/endpoint"
	"github.com/tbs1996/pairwave/internal/metrics"
	"github.com/tbs1996/pairwave/internal/protocol"
	"github.com/tbs1996/pairwave/internal/ratelimit"
	"github.com/tbs1996/pairwave/internal/score"
)

// Coordinator is the subset of *coordinator.Coordinator the HTTP layer
// needs: endpoint admission plus a synchronous status query.
type Coordinator interface {
	endpoint.Coordinator
}

// PresenceReader answers a status query for an id this process does not
// itself hold a connection for — see internal/presence.
type PresenceReader interface {
	Get(ctx context.Context, id string) (protocol.UserStatus, error)
}

// Config tunes the HTTP server and is distinct from endpoint.Config, which
// tunes per-connection behavior.
type Config struct {
	ListenAddr     string
	MaxConnections int           // hard cap on concurrent pairing connections
	ShutdownDrain  time.Duration // how long Shutdown waits for in-flight connections to close on their own
	Endpoint       endpoint.Config
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":3000",
		MaxConnections: 100000,
		ShutdownDrain:  30 * time.Second,
		Endpoint:       endpoint.DefaultConfig(),
	}
}

// Server is the WebSocket pairing endpoint and HTTP status endpoint.
type Server struct {
	cfg      Config
	coord    Coordinator
	presence PresenceReader
	limiter  *ratelimit.Limiter

	httpServer  *http.Server
	startedAt   time.Time
	activeConns atomic.Int64
	draining    atomic.Bool
}

// New builds a Server. presence and limiter may be nil, in which case status
// queries never fall back to Redis and connect attempts are never rate
// limited.
func New(cfg Config, coord Coordinator, presence PresenceReader, limiter *ratelimit.Limiter) *Server {
	return &Server{cfg: cfg, coord: coord, presence: presence, limiter: limiter, startedAt: time.Now()}
}

// Handler builds the HTTP mux: the pairing upgrade, status query, health
// check, and Prometheus scrape endpoints. Exposed separately from Start so
// tests can drive it with httptest.Server without binding a real port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/pair/", s.withCORS(s.handlePair))
	mux.HandleFunc("/status/", s.withCORS(s.handleStatus))
	mux.HandleFunc("/health", s.withCORS(s.handleHealth))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start builds the HTTP mux and blocks serving it until Shutdown stops the
// listener. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
	}

	log.Printf("ws: server listening on %s (max_conns=%d)", s.cfg.ListenAddr, s.cfg.MaxConnections)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// withCORS wraps h so every response carries an any-origin, any-method,
// any-header CORS policy and answers preflight requests directly.
func (s *Server) withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h(w, r)
	}
}

// handlePair upgrades /pair/<score>/<id> to a WebSocket connection and hands
// it off to a new per-connection endpoint goroutine. The calling goroutine
// returns as soon as the upgrade and admission checks finish; it never blocks
// on the session itself.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	scoreStr, id, ok := splitTwo(strings.TrimPrefix(r.URL.Path, "/pair/"))
	if !ok || id == "" {
		http.Error(w, "expected /pair/<score>/<id>", http.StatusBadRequest)
		return
	}

	sc, err := score.Parse(scoreStr)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid score: %v", err), http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		allowed, _ := s.limiter.Allow(ctx, remoteIP(r))
		cancel()
		if !allowed {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
	}

	if int(s.activeConns.Load()) >= s.cfg.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed for id=%s: %v", id, err)
		return
	}

	s.activeConns.Add(1)
	log.Printf("ws: upgraded connection id=%s remote=%s (active=%d)", id, remoteIP(r), s.activeConns.Load())

	go func() {
		defer s.activeConns.Add(-1)
		endpoint.Serve(conn, id, sc, s.coord, s.cfg.Endpoint)
	}()
}

// handleStatus answers /status/<id> by querying the local coordinator. If
// the coordinator reports Disconnected and a presence mirror is attached, it
// falls back to the mirror — this is what lets a load balancer route a
// /status query to any instance even though pairing authority stays
// process-local.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/status/")
	if id == "" {
		http.Error(w, "expected /status/<id>", http.StatusBadRequest)
		return
	}

	status := s.coord.GetStatus(id)
	if status == protocol.StatusDisconnected && s.presence != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if mirrored, err := s.presence.Get(ctx, id); err == nil {
			status = mirrored
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// handleHealth reports liveness and basic load for external health checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Status        string `json:"status"`
		UptimeSeconds int64  `json:"uptime_seconds"`
		ActiveConns   int64  `json:"active_connections"`
	}{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ActiveConns:   s.activeConns.Load(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Shutdown stops accepting new connections and waits up to
// cfg.ShutdownDrain for in-flight endpoint goroutines to finish on their own
// (a departing endpoint's peer is notified by the pair relay, not by the
// server), logging progress once per second. The HTTP layer holds no
// per-connection handles to force-close — once a socket is upgraded, its
// lifetime is owned entirely by internal/endpoint and internal/coordinator.
func (s *Server) Shutdown() error {
	log.Println("ws: initiating graceful shutdown...")
	s.draining.Store(true)

	httpCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(httpCtx); err != nil {
			log.Printf("ws: http shutdown error: %v", err)
		}
	}

	deadline := time.After(s.cfg.ShutdownDrain)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		remaining := s.activeConns.Load()
		if remaining == 0 {
			log.Println("ws: all connections drained")
			return nil
		}
		select {
		case <-deadline:
			log.Printf("ws: drain timeout, %d connections still active", remaining)
			return nil
		case <-ticker.C:
			log.Printf("ws: draining... %d connections remaining", remaining)
		}
	}
}

// splitTwo splits "a/b" into ("a", "b"). It reports ok == false unless there
// is exactly one separating slash, so an id containing a stray slash is
// rejected rather than silently truncated.
func splitTwo(path string) (first, rest string, ok bool) {
	i := strings.IndexByte(path, '/')
	if i < 0 {
		return "", "", false
	}
	if strings.IndexByte(path[i+1:], '/') >= 0 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}

// remoteIP extracts the caller's address for rate limiting, preferring a
// proxy-set X-Forwarded-For header (first hop) over r.RemoteAddr.
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}
