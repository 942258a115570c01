package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/camrelay/internal/observability"
	"github.com/danmuck/camrelay/internal/protocol/control"
	"github.com/danmuck/camrelay/internal/sink"
	"github.com/danmuck/camrelay/internal/status"
	"github.com/danmuck/camrelay/internal/transfer"
	"github.com/danmuck/camrelay/internal/transport/udp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sinkctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "sinkctl.toml", "path to config file")
	flag.Parse()

	logger := observability.InitLogger("sinkctl")
	cfg, err := loadSinkConfig(*configPath)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if cfg.Output != "" && cfg.Output != "-" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		out = f
	}

	reasm := transfer.NewReassembler(transfer.ReassemblerConfig{
		Node:    cfg.ID,
		Slots:   cfg.Slots,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})

	flood, err := udp.NewFlood(udp.FloodConfig{
		Listen:    cfg.FloodListen,
		Broadcast: cfg.FloodBroadcast,
		Logger:    logger,
	}, func(text string) {
		m, err := control.Decode(text)
		if err != nil {
			return
		}
		reasm.OnMessage(m)
	})
	if err != nil {
		return err
	}
	defer flood.Close()

	exporter := sink.NewExporter(out, sink.ExporterConfig{
		Node:     cfg.ID,
		HexWidth: cfg.HexWidth,
		Logger:   logger,
	})

	if cfg.StatusAddr != "" {
		srv := status.NewServer(cfg.ID, "sink", reasm, cfg.CORSOrigins, logger)
		go func() {
			if err := srv.Run(cfg.StatusAddr); err != nil {
				logger.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("flood", cfg.FloodListen).Str("output", cfg.Output).Msg("sink up")

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sink shutting down")
			return nil
		case c := <-reasm.Completed():
			if err := exporter.Export(c); err != nil {
				logger.Warn().Err(err).Str("source", c.Source).Msg("export failed")
			}
		case <-ticker.C:
			reasm.Sweep()
		}
	}
}
