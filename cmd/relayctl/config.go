package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

type relayConfig struct {
	ID                string
	Listen            string
	Peers             map[string]string
	FloodListen       string
	FloodBroadcast    string
	Slots             int
	FragmentSize      int
	FloodFragmentSize int
	Timeout           time.Duration
	SweepInterval     time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	DedupEntries      int
	StatusAddr        string
	CORSOrigins       []string
}

func defaultRelayConfig() relayConfig {
	return relayConfig{
		Listen:            ":7401",
		FloodListen:       ":7402",
		FloodBroadcast:    "255.255.255.255:7402",
		Slots:             4,
		FragmentSize:      234,
		FloodFragmentSize: 180,
		Timeout:           10 * time.Second,
		SweepInterval:     time.Second,
		MaxRetries:        3,
		RetryDelay:        50 * time.Millisecond,
		DedupEntries:      64,
	}
}

type relayFileConfig struct {
	ID                string            `toml:"id"`
	Listen            string            `toml:"listen"`
	Peers             map[string]string `toml:"peers"`
	FloodListen       string            `toml:"flood_listen"`
	FloodBroadcast    string            `toml:"flood_broadcast"`
	Slots             int               `toml:"slots"`
	FragmentSize      int               `toml:"fragment_size"`
	FloodFragmentSize int               `toml:"flood_fragment_size"`
	Timeout           string            `toml:"timeout"`
	SweepInterval     string            `toml:"sweep_interval"`
	MaxRetries        int               `toml:"max_retries"`
	RetryDelay        string            `toml:"retry_delay"`
	DedupEntries      int               `toml:"dedup_entries"`
	StatusAddr        string            `toml:"status_addr"`
	CORSOrigins       []string          `toml:"cors_origins"`
}

func loadRelayConfig(path string) (relayConfig, error) {
	cfg := defaultRelayConfig()

	var raw relayFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return relayConfig{}, fmt.Errorf("load relay config: %w", err)
	}

	if meta.IsDefined("id") {
		cfg.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("peers") {
		cfg.Peers = raw.Peers
	}
	if meta.IsDefined("flood_listen") {
		cfg.FloodListen = strings.TrimSpace(raw.FloodListen)
	}
	if meta.IsDefined("flood_broadcast") {
		cfg.FloodBroadcast = strings.TrimSpace(raw.FloodBroadcast)
	}
	if meta.IsDefined("slots") {
		cfg.Slots = raw.Slots
	}
	if meta.IsDefined("fragment_size") {
		cfg.FragmentSize = raw.FragmentSize
	}
	if meta.IsDefined("flood_fragment_size") {
		cfg.FloodFragmentSize = raw.FloodFragmentSize
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return relayConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("sweep_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SweepInterval))
		if err != nil {
			return relayConfig{}, fmt.Errorf("parse sweep_interval: %w", err)
		}
		cfg.SweepInterval = d
	}
	if meta.IsDefined("max_retries") {
		cfg.MaxRetries = raw.MaxRetries
	}
	if meta.IsDefined("retry_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RetryDelay))
		if err != nil {
			return relayConfig{}, fmt.Errorf("parse retry_delay: %w", err)
		}
		cfg.RetryDelay = d
	}
	if meta.IsDefined("dedup_entries") {
		cfg.DedupEntries = raw.DedupEntries
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}

	if cfg.ID == "" {
		// Identities ride in a 9-char wire field; keep generated ids short.
		cfg.ID = "rly-" + uuid.NewString()[:5]
	}
	return cfg, nil
}
