package transfer

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/danmuck/camrelay/internal/observability"
	"github.com/danmuck/camrelay/internal/protocol/fragment"
	"github.com/danmuck/camrelay/internal/transport"
)

var (
	ErrBadIdentity     = errors.New("transfer: identity empty or too long")
	ErrBadFragmentSize = errors.New("transfer: fragment size out of range")
)

// Report counts the units of work in one SendPayload call. A unit that
// exhausted retries is Failed; sending always continues past it so one
// flaky packet cannot wedge the sender.
type Report struct {
	Attempted int
	Confirmed int
	Failed    int
}

// SenderConfig tunes the addressed-link fragmenter.
type SenderConfig struct {
	// Identity is stamped into every fragment header.
	Identity string
	// FragmentSize is the payload carried per fragment, at most
	// fragment.MaxPayload.
	FragmentSize int
	// MaxRetries is per fragment, after the first attempt.
	MaxRetries int
	// RetryDelay separates attempts.
	RetryDelay time.Duration
	// ConfirmTimeout bounds the wait for the asynchronous delivery
	// outcome of one send.
	ConfirmTimeout time.Duration

	Clock  clock.Clock
	Logger zerolog.Logger
}

func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		FragmentSize:   fragment.MaxPayload,
		MaxRetries:     3,
		RetryDelay:     50 * time.Millisecond,
		ConfirmTimeout: 500 * time.Millisecond,
	}
}

func (c SenderConfig) withDefaults() SenderConfig {
	def := DefaultSenderConfig()
	if c.FragmentSize == 0 {
		c.FragmentSize = def.FragmentSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.ConfirmTimeout == 0 {
		c.ConfirmTimeout = def.ConfirmTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Sender fragments payloads onto an addressed transport, waiting on the
// per-send delivery outcome and retrying failures a bounded number of
// times.
type Sender struct {
	cfg SenderConfig
	clk clock.Clock
	tr  transport.Addressed
}

func NewSender(cfg SenderConfig, tr transport.Addressed) (*Sender, error) {
	cfg = cfg.withDefaults()
	if cfg.Identity == "" || len(cfg.Identity) > fragment.MaxIdentityChars {
		return nil, ErrBadIdentity
	}
	if cfg.FragmentSize <= 0 || cfg.FragmentSize > fragment.MaxPayload {
		return nil, ErrBadFragmentSize
	}
	return &Sender{cfg: cfg, clk: cfg.Clock, tr: tr}, nil
}

// SendPayload fragments payload and sends every fragment to dest. It
// never fails as a whole; the report says how much got through.
func (s *Sender) SendPayload(dest string, payload []byte) Report {
	chunks := fragment.Split(payload, s.cfg.FragmentSize)
	total := len(chunks)

	var rep Report
	for i, chunk := range chunks {
		rep.Attempted++
		d := fragment.Datagram{
			Sender:  s.cfg.Identity,
			Index:   uint16(i),
			Total:   uint16(total),
			Payload: chunk,
		}
		wire, err := fragment.Encode(d)
		if err != nil {
			// Cannot happen with a validated config; count it as failed
			// rather than aborting the payload.
			s.cfg.Logger.Error().Err(err).Int("index", i).Msg("encode fragment")
			rep.Failed++
			continue
		}
		if s.sendConfirmed(dest, wire) {
			rep.Confirmed++
		} else {
			observability.RecordFragmentFailed(s.cfg.Identity, "addressed")
			s.cfg.Logger.Warn().Int("index", i).Int("total", total).Msg("fragment failed after retries")
			rep.Failed++
		}
	}
	return rep
}

// sendConfirmed drives one fragment through send, confirmation wait,
// and bounded retry.
func (s *Sender) sendConfirmed(dest string, wire []byte) bool {
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			observability.RecordFragmentRetry(s.cfg.Identity, "addressed")
			s.clk.Sleep(s.cfg.RetryDelay)
		}
		s.drainStale()
		if err := s.tr.Send(dest, wire); err != nil {
			continue
		}
		observability.RecordFragmentSent(s.cfg.Identity, "addressed")
		if s.awaitConfirm() {
			return true
		}
	}
	return false
}

// drainStale discards confirmations left over from a timed-out wait so
// they cannot be credited to the next send.
func (s *Sender) drainStale() {
	for {
		select {
		case <-s.tr.Completions():
		default:
			return
		}
	}
}

func (s *Sender) awaitConfirm() bool {
	timer := s.clk.Timer(s.cfg.ConfirmTimeout)
	defer timer.Stop()
	select {
	case outcome := <-s.tr.Completions():
		return outcome == transport.OutcomeDelivered
	case <-timer.C:
		return false
	}
}
