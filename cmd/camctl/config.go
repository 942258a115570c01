package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

type cameraConfig struct {
	ID             string
	Peer           string
	Listen         string
	Peers          map[string]string
	ImagePath      string
	SyntheticBytes int
	FragmentSize   int
	MaxRetries     int
	RetryDelay     time.Duration
	ConfirmTimeout time.Duration
	Interval       time.Duration
	StatusAddr     string
}

func defaultCameraConfig() cameraConfig {
	return cameraConfig{
		Listen:         ":7401",
		SyntheticBytes: 24 * 1024,
		FragmentSize:   234,
		MaxRetries:     3,
		RetryDelay:     50 * time.Millisecond,
		ConfirmTimeout: 500 * time.Millisecond,
	}
}

type cameraFileConfig struct {
	ID             string            `toml:"id"`
	Peer           string            `toml:"peer"`
	Listen         string            `toml:"listen"`
	Peers          map[string]string `toml:"peers"`
	ImagePath      string            `toml:"image_path"`
	SyntheticBytes int               `toml:"synthetic_bytes"`
	FragmentSize   int               `toml:"fragment_size"`
	MaxRetries     int               `toml:"max_retries"`
	RetryDelay     string            `toml:"retry_delay"`
	ConfirmTimeout string            `toml:"confirm_timeout"`
	Interval       string            `toml:"interval"`
	StatusAddr     string            `toml:"status_addr"`
}

func loadCameraConfig(path string) (cameraConfig, error) {
	cfg := defaultCameraConfig()

	var raw cameraFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cameraConfig{}, fmt.Errorf("load camera config: %w", err)
	}

	if meta.IsDefined("id") {
		cfg.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("peer") {
		cfg.Peer = strings.TrimSpace(raw.Peer)
	}
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("peers") {
		cfg.Peers = raw.Peers
	}
	if meta.IsDefined("image_path") {
		cfg.ImagePath = strings.TrimSpace(raw.ImagePath)
	}
	if meta.IsDefined("synthetic_bytes") {
		cfg.SyntheticBytes = raw.SyntheticBytes
	}
	if meta.IsDefined("fragment_size") {
		cfg.FragmentSize = raw.FragmentSize
	}
	if meta.IsDefined("max_retries") {
		cfg.MaxRetries = raw.MaxRetries
	}
	if meta.IsDefined("retry_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RetryDelay))
		if err != nil {
			return cameraConfig{}, fmt.Errorf("parse retry_delay: %w", err)
		}
		cfg.RetryDelay = d
	}
	if meta.IsDefined("confirm_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConfirmTimeout))
		if err != nil {
			return cameraConfig{}, fmt.Errorf("parse confirm_timeout: %w", err)
		}
		cfg.ConfirmTimeout = d
	}
	if meta.IsDefined("interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Interval))
		if err != nil {
			return cameraConfig{}, fmt.Errorf("parse interval: %w", err)
		}
		cfg.Interval = d
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}

	if cfg.ID == "" {
		// Identities ride in a 9-char wire field; keep generated ids short.
		cfg.ID = "cam-" + uuid.NewString()[:5]
	}
	if cfg.Peer == "" {
		return cameraConfig{}, fmt.Errorf("camera config: peer identity required")
	}
	if _, ok := cfg.Peers[cfg.Peer]; !ok {
		return cameraConfig{}, fmt.Errorf("camera config: peer %q missing from peers table", cfg.Peer)
	}
	return cfg, nil
}
