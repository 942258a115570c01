// Package relay bridges completed addressed-link flows onto the flood
// transport.
package relay

import (
	"errors"
	"fmt"
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/danmuck/camrelay/internal/transfer"
)

var ErrNoBroadcaster = errors.New("relay: broadcaster required")

// Config tunes one forwarder.
type Config struct {
	// Identity is the relay's own identity; forwarded flows go out
	// under it, with the original source carried as metadata.
	Identity string
	// DedupEntries bounds the recently-forwarded cache. Flood and mesh
	// links redeliver, and a relay must not re-forward a payload it
	// just finished with.
	DedupEntries int
	Logger       zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.DedupEntries <= 0 {
		c.DedupEntries = 64
	}
	return c
}

// Forwarder re-fragments completed upstream flows for the downstream
// flood transport. Forwarding is best effort: a partially forwarded
// payload is reported, never silently dropped, and never blocks the
// pipeline.
type Forwarder struct {
	cfg   Config
	bcast *transfer.Broadcaster
	seen  *lru.Cache[string, struct{}]
}

func New(cfg Config, bcast *transfer.Broadcaster) (*Forwarder, error) {
	cfg = cfg.withDefaults()
	if bcast == nil {
		return nil, ErrNoBroadcaster
	}
	seen, err := lru.New[string, struct{}](cfg.DedupEntries)
	if err != nil {
		return nil, fmt.Errorf("relay: dedup cache: %w", err)
	}
	return &Forwarder{cfg: cfg, bcast: bcast, seen: seen}, nil
}

// Forward re-encodes one completed flow downstream. The returned report
// counts control messages; duplicate flows return a zero report.
func (f *Forwarder) Forward(c transfer.Completed) transfer.Report {
	key := dedupKey(c)
	if _, dup := f.seen.Get(key); dup {
		f.cfg.Logger.Debug().Str("source", c.Source).Msg("duplicate flow, not re-forwarded")
		return transfer.Report{}
	}
	f.seen.Add(key, struct{}{})

	rep := f.bcast.SendPayload(c.Source, c.Data)
	event := f.cfg.Logger.Info()
	if rep.Failed > 0 {
		event = f.cfg.Logger.Warn()
	}
	event.
		Str("source", c.Source).
		Int("bytes", len(c.Data)).
		Int("attempted", rep.Attempted).
		Int("confirmed", rep.Confirmed).
		Int("failed", rep.Failed).
		Msg("flow forwarded")
	return rep
}

// dedupKey folds source identity and payload content into one cache
// key, so a retransmitted upstream flow maps to the same entry.
func dedupKey(c transfer.Completed) string {
	h := fnv.New64a()
	h.Write([]byte(c.Source))
	h.Write(c.Data)
	return fmt.Sprintf("%s/%d/%x", c.Source, len(c.Data), h.Sum64())
}
