package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/vicictl/internal/listener"
	"github.com/danmuck/vicictl/internal/protocol/session"
)

type fileConfig struct {
	Socket             string   `toml:"socket"`
	ConnectTimeout     string   `toml:"connect_timeout"`
	ReadTimeout        string   `toml:"read_timeout"`
	WriteTimeout       string   `toml:"write_timeout"`
	MaxConnectAttempts int      `toml:"max_connect_attempts"`
	BackoffInitial     string   `toml:"backoff_initial"`
	BackoffMultiplier  float64  `toml:"backoff_multiplier"`
	BackoffMax         string   `toml:"backoff_max"`
	BackoffJitter      bool     `toml:"backoff_jitter"`
	ListenEvents       []string `toml:"listen_events"`
	PollInterval       string   `toml:"poll_interval"`
	MetricsAddr        string   `toml:"metrics_addr"`
}

// cliConfig is everything a vicictl subcommand needs after the config
// file and flags are merged.
type cliConfig struct {
	Session      session.Config
	ListenEvents []string
	PollInterval time.Duration
	MetricsAddr  string
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		Session:      session.DefaultConfig(),
		ListenEvents: []string{},
		PollInterval: listener.DefaultPollInterval,
	}
}

func loadConfig(path string) (cliConfig, error) {
	cfg := defaultCLIConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load vicictl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cliConfig{}, fmt.Errorf("load vicictl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("socket") {
		cfg.Session.Endpoint = strings.TrimSpace(raw.Socket)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"backoff_initial", raw.BackoffInitial, &cfg.Session.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Session.Backoff.MaxDelay},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return cliConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("max_connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("backoff_multiplier") {
		cfg.Session.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.Session.Backoff.Jitter = raw.BackoffJitter
	}
	if meta.IsDefined("listen_events") {
		cfg.ListenEvents = normalizeEvents(raw.ListenEvents)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if err := cfg.Session.ValidateClientTransport(); err != nil {
		return cliConfig{}, fmt.Errorf("load vicictl config: %w", err)
	}
	return cfg, nil
}

func normalizeEvents(in []string) []string {
	out := make([]string, 0, len(in))
	for _, event := range in {
		v := strings.TrimSpace(event)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
