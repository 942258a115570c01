package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/camrelay/internal/observability"
	"github.com/danmuck/camrelay/internal/protocol/fragment"
	"github.com/danmuck/camrelay/internal/relay"
	"github.com/danmuck/camrelay/internal/status"
	"github.com/danmuck/camrelay/internal/transfer"
	"github.com/danmuck/camrelay/internal/transport/udp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relayctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "relayctl.toml", "path to config file")
	flag.Parse()

	logger := observability.InitLogger("relayctl")
	cfg, err := loadRelayConfig(*configPath)
	if err != nil {
		return err
	}

	reasm := transfer.NewReassembler(transfer.ReassemblerConfig{
		Node:         cfg.ID,
		Slots:        cfg.Slots,
		FragmentSize: cfg.FragmentSize,
		Timeout:      cfg.Timeout,
		Logger:       logger,
	})

	// Upstream: addressed link in. The receive callback only decodes
	// and buffers; everything else happens in the loop below.
	upstream, err := udp.NewAddressed(udp.AddressedConfig{
		Identity: cfg.ID,
		Listen:   cfg.Listen,
		Peers:    cfg.Peers,
		Logger:   logger,
	}, func(sender string, payload []byte) {
		d, err := fragment.Decode(payload)
		if err != nil {
			return
		}
		reasm.OnFragment(d.Sender, int(d.Index), int(d.Total), int(d.Length), d.Payload)
	})
	if err != nil {
		return err
	}
	defer upstream.Close()

	// Downstream: flood link out.
	downstream, err := udp.NewFlood(udp.FloodConfig{
		Listen:    cfg.FloodListen,
		Broadcast: cfg.FloodBroadcast,
		Logger:    logger,
	}, nil)
	if err != nil {
		return err
	}
	defer downstream.Close()

	bcast, err := transfer.NewBroadcaster(transfer.BroadcasterConfig{
		Identity:     cfg.ID,
		FragmentSize: cfg.FloodFragmentSize,
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		Logger:       logger,
	}, downstream)
	if err != nil {
		return err
	}

	fwd, err := relay.New(relay.Config{
		Identity:     cfg.ID,
		DedupEntries: cfg.DedupEntries,
		Logger:       logger,
	}, bcast)
	if err != nil {
		return err
	}

	if cfg.StatusAddr != "" {
		srv := status.NewServer(cfg.ID, "relay", reasm, cfg.CORSOrigins, logger)
		go func() {
			if err := srv.Run(cfg.StatusAddr); err != nil {
				logger.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("listen", cfg.Listen).Str("flood", cfg.FloodBroadcast).Msg("relay up")

	// Cooperative main loop: forwarding and timeout sweeps happen
	// here, never inside a receive callback.
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay shutting down")
			return nil
		case c := <-reasm.Completed():
			fwd.Forward(c)
		case <-ticker.C:
			reasm.Sweep()
		}
	}
}
