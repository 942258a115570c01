package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

type sinkConfig struct {
	ID             string
	FloodListen    string
	FloodBroadcast string
	Slots          int
	Timeout        time.Duration
	SweepInterval  time.Duration
	HexWidth       int
	Output         string
	StatusAddr     string
	CORSOrigins    []string
}

func defaultSinkConfig() sinkConfig {
	return sinkConfig{
		FloodListen:    ":7402",
		FloodBroadcast: "255.255.255.255:7402",
		Slots:          4,
		Timeout:        10 * time.Second,
		SweepInterval:  time.Second,
		HexWidth:       64,
		Output:         "-",
	}
}

type sinkFileConfig struct {
	ID             string   `toml:"id"`
	FloodListen    string   `toml:"flood_listen"`
	FloodBroadcast string   `toml:"flood_broadcast"`
	Slots          int      `toml:"slots"`
	Timeout        string   `toml:"timeout"`
	SweepInterval  string   `toml:"sweep_interval"`
	HexWidth       int      `toml:"hex_width"`
	Output         string   `toml:"output"`
	StatusAddr     string   `toml:"status_addr"`
	CORSOrigins    []string `toml:"cors_origins"`
}

func loadSinkConfig(path string) (sinkConfig, error) {
	cfg := defaultSinkConfig()

	var raw sinkFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return sinkConfig{}, fmt.Errorf("load sink config: %w", err)
	}

	if meta.IsDefined("id") {
		cfg.ID = strings.TrimSpace(raw.ID)
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
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return sinkConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("sweep_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SweepInterval))
		if err != nil {
			return sinkConfig{}, fmt.Errorf("parse sweep_interval: %w", err)
		}
		cfg.SweepInterval = d
	}
	if meta.IsDefined("hex_width") {
		cfg.HexWidth = raw.HexWidth
	}
	if meta.IsDefined("output") {
		cfg.Output = strings.TrimSpace(raw.Output)
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}

	if cfg.ID == "" {
		// Identities ride in a 9-char wire field; keep generated ids short.
		cfg.ID = "sink-" + uuid.NewString()[:4]
	}
	return cfg, nil
}
