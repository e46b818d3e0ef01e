// Package config loads pairing service settings once at startup from
// command-line flags (via pflag), with environment-variable fallback: flags
// parse first, then any set environment variable overrides the flag value.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// Config holds every setting, loaded once and constant thereafter.
type Config struct {
	ListenAddr         string
	PairIntervalMillis int
	TimeoutSecs        int
	ConnectRateLimit   int
	RedisAddr          string
	NATSURL            string
}

// PairInterval returns PairIntervalMillis as a time.Duration.
func (c Config) PairInterval() time.Duration {
	return time.Duration(c.PairIntervalMillis) * time.Millisecond
}

// ReadTimeout returns TimeoutSecs as a time.Duration.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Load parses command-line flags and applies environment-variable overrides.
func Load() Config {
	cfg := Config{
		ListenAddr:         ":3000",
		PairIntervalMillis: 1000,
		TimeoutSecs:        120,
		ConnectRateLimit:   5,
	}

	pflag.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "address to listen on, e.g. :3000")
	pflag.IntVar(&cfg.PairIntervalMillis, "pair-interval-millis", cfg.PairIntervalMillis, "matchmaker loop period in milliseconds")
	pflag.IntVar(&cfg.TimeoutSecs, "timeout-secs", cfg.TimeoutSecs, "per-endpoint read timeout in seconds")
	pflag.IntVar(&cfg.ConnectRateLimit, "connect-rate-limit", cfg.ConnectRateLimit, "connections allowed per minute per remote IP")
	pflag.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "optional presence mirror / rate limit Redis address")
	pflag.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "optional lifecycle event bus NATS URL")
	pflag.Parse()

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PAIR_INTERVAL_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PairIntervalMillis = n
		}
	}
	if v := os.Getenv("TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TimeoutSecs = n
		}
	}
	if v := os.Getenv("CONNECT_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ConnectRateLimit = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}

	return cfg
}
