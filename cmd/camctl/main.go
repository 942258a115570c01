package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/camrelay/internal/capture"
	"github.com/danmuck/camrelay/internal/observability"
	"github.com/danmuck/camrelay/internal/status"
	"github.com/danmuck/camrelay/internal/transfer"
	"github.com/danmuck/camrelay/internal/transport/udp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "camctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "camctl.toml", "path to config file")
	flag.Parse()

	logger := observability.InitLogger("camctl")
	cfg, err := loadCameraConfig(*configPath)
	if err != nil {
		return err
	}

	tr, err := udp.NewAddressed(udp.AddressedConfig{
		Identity: cfg.ID,
		Listen:   cfg.Listen,
		Peers:    cfg.Peers,
		Logger:   logger,
	}, nil)
	if err != nil {
		return err
	}
	defer tr.Close()

	sender, err := transfer.NewSender(transfer.SenderConfig{
		Identity:       cfg.ID,
		FragmentSize:   cfg.FragmentSize,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Logger:         logger,
	}, tr)
	if err != nil {
		return err
	}

	var source capture.Source
	if cfg.ImagePath != "" {
		source = capture.FileSource{Path: cfg.ImagePath}
	} else {
		source = capture.SyntheticSource{Body: cfg.SyntheticBytes, Seed: time.Now().UnixNano()}
	}

	if cfg.StatusAddr != "" {
		srv := status.NewServer(cfg.ID, "camera", nil, nil, logger)
		go func() {
			if err := srv.Run(cfg.StatusAddr); err != nil {
				logger.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		data, err := source.Capture()
		if err != nil {
			return err
		}
		rep := sender.SendPayload(cfg.Peer, data)
		logger.Info().
			Str("peer", cfg.Peer).
			Int("bytes", len(data)).
			Int("attempted", rep.Attempted).
			Int("confirmed", rep.Confirmed).
			Int("failed", rep.Failed).
			Msg("payload sent")

		if cfg.Interval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Interval):
		}
	}
}
