package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbs1996/pairwave/internal/config"
	"github.com/tbs1996/pairwave/internal/coordinator"
	"github.com/tbs1996/pairwave/internal/matchmaker"
	"github.com/tbs1996/pairwave/internal/messaging"
	"github.com/tbs1996/pairwave/internal/presence"
	"github.com/tbs1996/pairwave/internal/ratelimit"
	"github.com/tbs1996/pairwave/internal/ws"
)

func main() {
	cfg := config.Load()

	log.Printf("pairwave starting")
	log.Printf("  listen_addr:          %s", cfg.ListenAddr)
	log.Printf("  pair_interval_millis: %d", cfg.PairIntervalMillis)
	log.Printf("  timeout_secs:         %d", cfg.TimeoutSecs)
	log.Printf("  connect_rate_limit:   %d/min", cfg.ConnectRateLimit)

	var coordOpts []coordinator.Option

	// --- Redis: presence mirror + connect rate limiting (both optional) ---
	var limiter *ratelimit.Limiter
	var mirror *presence.Mirror
	if cfg.RedisAddr != "" {
		var err error
		mirror, err = presence.New(cfg.RedisAddr)
		if err != nil {
			log.Printf("presence: disabled, redis connect failed: %v", err)
			mirror = nil
		} else {
			coordOpts = append(coordOpts, coordinator.WithPresence(mirror))
			log.Printf("presence: mirroring status to redis at %s", cfg.RedisAddr)
		}

		if cfg.ConnectRateLimit <= 0 {
			log.Printf("ratelimit: disabled, connect-rate-limit <= 0")
		} else {
			rateClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = rateClient.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				log.Printf("ratelimit: disabled, redis connect failed: %v", err)
			} else {
				limiter = ratelimit.NewLimiter(rateClient, cfg.ConnectRateLimit)
				log.Printf("ratelimit: enforcing %d connects/min per remote IP", cfg.ConnectRateLimit)
			}
		}
	} else {
		log.Printf("presence/ratelimit: disabled, no redis-addr configured")
	}

	// --- NATS: optional lifecycle event bus, never load-bearing ---
	var publisher *messaging.Publisher
	if cfg.NATSURL != "" {
		natsCfg := messaging.DefaultConfig()
		natsCfg.URL = cfg.NATSURL
		p, err := messaging.Connect(natsCfg)
		if err != nil {
			log.Printf("messaging: disabled, nats connect failed: %v", err)
		} else {
			publisher = p
			coordOpts = append(coordOpts, coordinator.WithNotifier(publisher))
		}
	}

	coord := coordinator.New(coordOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)
	go matchmaker.Loop(ctx, coord, cfg.PairInterval())

	serverCfg := ws.DefaultConfig()
	serverCfg.ListenAddr = cfg.ListenAddr
	serverCfg.Endpoint.ReadTimeout = cfg.ReadTimeout()

	var presenceReader ws.PresenceReader
	if mirror != nil {
		presenceReader = mirror
	}
	server := ws.New(serverCfg, coord, presenceReader, limiter)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		cancel()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if mirror != nil {
			_ = mirror.Close()
		}
		if publisher != nil {
			publisher.Close()
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
