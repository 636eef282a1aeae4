package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	transport "github.com/layer-3/esrlink/transport/http"
)

// Environment overrides
const (
	EnvRedisURL = "REDIS_URL"
	EnvAddr     = "LINKRELAY_ADDR"
)

type config struct {
	Addr        string
	LogFormat   string
	LogLevel    string
	RedisURL    string
	EventPrefix string
	Relay       transport.RelayConfig
}

func defaultConfig() config {
	return config{
		Addr:        ":9000",
		LogFormat:   "console",
		LogLevel:    "info",
		EventPrefix: "linkrelay.",
		Relay:       transport.DefaultRelayConfig(),
	}
}

type fileConfig struct {
	Addr        string `toml:"addr"`
	LogFormat   string `toml:"log_format"`
	LogLevel    string `toml:"log_level"`
	RedisURL    string `toml:"redis_url"`
	EventPrefix string `toml:"event_prefix"`
	MaxWait     string `toml:"max_wait"`
	PollWait    string `toml:"poll_wait"`
	TTL         string `toml:"ttl"`
	MaxPayload  int64  `toml:"max_payload"`
	QueueSize   int    `toml:"queue_size"`
}

// loadConfig reads path over the defaults, an empty path keeps the defaults
func loadConfig(path string, getenv func(string) string) (config, error) {
	cfg := defaultConfig()

	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return config{}, fmt.Errorf("load relay config: %w", err)
		}

		if meta.IsDefined("addr") {
			cfg.Addr = strings.TrimSpace(raw.Addr)
		}
		if meta.IsDefined("log_format") {
			cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
		}
		if meta.IsDefined("log_level") {
			cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
		}
		if meta.IsDefined("redis_url") {
			cfg.RedisURL = strings.TrimSpace(raw.RedisURL)
		}
		if meta.IsDefined("event_prefix") {
			cfg.EventPrefix = raw.EventPrefix
		}

		durations := []struct {
			key string
			raw string
			dst *time.Duration
		}{
			{"max_wait", raw.MaxWait, &cfg.Relay.MaxWait},
			{"poll_wait", raw.PollWait, &cfg.Relay.PollWait},
			{"ttl", raw.TTL, &cfg.Relay.TTL},
		}
		for _, d := range durations {
			if !meta.IsDefined(d.key) {
				continue
			}
			parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
			if err != nil {
				return config{}, fmt.Errorf("parse %s: %w", d.key, err)
			}
			if parsed <= 0 {
				return config{}, fmt.Errorf("parse %s: must be positive", d.key)
			}
			*d.dst = parsed
		}

		if meta.IsDefined("max_payload") {
			cfg.Relay.MaxPayload = raw.MaxPayload
		}
		if meta.IsDefined("queue_size") {
			cfg.Relay.QueueSize = raw.QueueSize
		}
	}

	if v := strings.TrimSpace(getenv(EnvRedisURL)); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(getenv(EnvAddr)); v != "" {
		cfg.Addr = v
	}

	if cfg.Addr == "" {
		return config{}, fmt.Errorf("relay addr is empty")
	}
	return cfg, nil
}
