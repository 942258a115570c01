package transfer

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/danmuck/camrelay/internal/observability"
	"github.com/danmuck/camrelay/internal/protocol/control"
	"github.com/danmuck/camrelay/internal/protocol/fragment"
	"github.com/danmuck/camrelay/internal/transport"
)

// DefaultFloodFragmentSize keeps one hex-encoded chunk plus its JSON
// wrapping inside a conservative flood text message budget.
const DefaultFloodFragmentSize = 180

// BroadcasterConfig tunes the flood-link fragmenter.
type BroadcasterConfig struct {
	// Identity is this node. When it forwards a payload that
	// originated elsewhere, the original source rides in every control
	// message and Identity goes in forwarder_id.
	Identity string
	// FragmentSize is bytes of payload per Data message, before hex
	// encoding. It is declared in Begin and used per-flow by receivers.
	FragmentSize int
	// MaxRetries bounds retries of the local send call itself; flood
	// links never confirm delivery.
	MaxRetries int
	RetryDelay time.Duration

	Clock  clock.Clock
	Logger zerolog.Logger
}

func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		FragmentSize: DefaultFloodFragmentSize,
		MaxRetries:   3,
		RetryDelay:   50 * time.Millisecond,
	}
}

func (c BroadcasterConfig) withDefaults() BroadcasterConfig {
	def := DefaultBroadcasterConfig()
	if c.FragmentSize == 0 {
		c.FragmentSize = def.FragmentSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Broadcaster re-encodes a payload as the Begin/Data/End control
// sequence on a flood transport. Best effort: a message that exhausts
// retries is reported failed and the sequence continues.
type Broadcaster struct {
	cfg BroadcasterConfig
	clk clock.Clock
	tr  transport.Flood
}

func NewBroadcaster(cfg BroadcasterConfig, tr transport.Flood) (*Broadcaster, error) {
	cfg = cfg.withDefaults()
	if cfg.Identity == "" || len(cfg.Identity) > fragment.MaxIdentityChars {
		return nil, ErrBadIdentity
	}
	if cfg.FragmentSize <= 0 {
		return nil, ErrBadFragmentSize
	}
	return &Broadcaster{cfg: cfg, clk: cfg.Clock, tr: tr}, nil
}

// SendPayload broadcasts payload attributed to source. Data messages go
// out in index order; receivers still tolerate reordering and loss.
func (b *Broadcaster) SendPayload(source string, payload []byte) Report {
	forwarder := ""
	if source != b.cfg.Identity {
		forwarder = b.cfg.Identity
	}

	chunks := fragment.Split(payload, b.cfg.FragmentSize)
	total := len(chunks)

	var rep Report
	b.emit(&rep, control.Begin{
		SourceID:      source,
		ForwarderID:   forwarder,
		Size:          len(payload),
		FragmentCount: total,
		FragmentSize:  b.cfg.FragmentSize,
	})
	for i, chunk := range chunks {
		b.emit(&rep, control.Data{
			SourceID:    source,
			ForwarderID: forwarder,
			Index:       i,
			TotalCount:  total,
			Chunk:       chunk,
		})
	}
	b.emit(&rep, control.End{
		SourceID:    source,
		ForwarderID: forwarder,
		TotalCount:  total,
	})
	return rep
}

// emit encodes and broadcasts one control message with bounded retry
// of local send failures.
func (b *Broadcaster) emit(rep *Report, m control.Message) {
	rep.Attempted++

	text, err := control.Encode(m)
	if err != nil {
		b.cfg.Logger.Error().Err(err).Str("kind", m.MessageKind()).Msg("encode control message")
		rep.Failed++
		return
	}

	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			observability.RecordFragmentRetry(b.cfg.Identity, "flood")
			b.clk.Sleep(b.cfg.RetryDelay)
		}
		if err := b.tr.Send(text); err != nil {
			continue
		}
		observability.RecordFragmentSent(b.cfg.Identity, "flood")
		rep.Confirmed++
		return
	}

	observability.RecordFragmentFailed(b.cfg.Identity, "flood")
	b.cfg.Logger.Warn().Str("kind", m.MessageKind()).Str("source", m.Source()).Msg("control message failed after retries")
	rep.Failed++
}
