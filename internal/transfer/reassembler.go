package transfer

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/danmuck/camrelay/internal/observability"
	"github.com/danmuck/camrelay/internal/protocol/control"
	"github.com/danmuck/camrelay/internal/protocol/fragment"
)

// Discard and drop reasons for metrics and logs.
const (
	ReasonTimeout    = "timeout"
	ReasonIncomplete = "incomplete"
	ReasonAllocation = "allocation"
	ReasonBacklog    = "backlog"

	dropInvalidIndex   = "invalid_index"
	dropDuplicate      = "duplicate"
	dropNoSlot         = "no_slot"
	dropNoFlow         = "no_flow"
	dropSourceMismatch = "source_mismatch"
	dropTotalMismatch  = "total_mismatch"
	dropLengthMismatch = "length_mismatch"
)

// ReassemblerConfig sizes one reassembler.
type ReassemblerConfig struct {
	// Node is this node's identity, used for metric labels.
	Node string
	// Slots is the number of concurrent in-progress flows.
	Slots int
	// FragmentSize applies to addressed-link fragments, where no Begin
	// message declares a per-flow size. Both ends of an addressed link
	// share this value.
	FragmentSize int
	// MaxFlowBytes bounds a single flow's buffer. A flow that would
	// exceed it is rejected as an allocation failure, never retried.
	MaxFlowBytes int
	// Timeout evicts a receiving flow with no activity; enforced by
	// Sweep, not by fragment arrival.
	Timeout time.Duration

	Clock  clock.Clock
	Logger zerolog.Logger
}

func DefaultReassemblerConfig() ReassemblerConfig {
	return ReassemblerConfig{
		Slots:        4,
		FragmentSize: fragment.MaxPayload,
		MaxFlowBytes: 1 << 20,
		Timeout:      10 * time.Second,
	}
}

func (c ReassemblerConfig) withDefaults() ReassemblerConfig {
	def := DefaultReassemblerConfig()
	if c.Slots <= 0 {
		c.Slots = def.Slots
	}
	if c.FragmentSize <= 0 {
		c.FragmentSize = def.FragmentSize
	}
	if c.MaxFlowBytes <= 0 {
		c.MaxFlowBytes = def.MaxFlowBytes
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Reassembler rebuilds payloads from fragments across a fixed pool of
// flow slots. OnFragment and OnMessage are safe to call from a
// transport receive callback: the critical section is a slot lookup
// plus one copy, with no sends, no blocking, and no formatted logging.
type Reassembler struct {
	cfg ReassemblerConfig
	clk clock.Clock

	mu    sync.Mutex
	slots []*flow

	completed chan Completed
}

func NewReassembler(cfg ReassemblerConfig) *Reassembler {
	cfg = cfg.withDefaults()
	r := &Reassembler{
		cfg:       cfg,
		clk:       cfg.Clock,
		slots:     make([]*flow, cfg.Slots),
		completed: make(chan Completed, cfg.Slots*2),
	}
	return r
}

// Completed yields reassembled payloads. The consumer owns each buffer.
func (r *Reassembler) Completed() <-chan Completed {
	return r.completed
}

// OnFragment ingests one addressed-link fragment.
func (r *Reassembler) OnFragment(source string, index, total, declared int, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingest(source, source, "", index, total, declared, r.cfg.FragmentSize, payload)
}

// OnMessage ingests one decoded flood control message. Flood flows are
// keyed by the forwarding identity when present, otherwise by the
// source; a message whose source does not match the flow tracked for
// that identity is dropped.
func (r *Reassembler) OnMessage(m control.Message) {
	identity := m.Forwarder()
	if identity == "" {
		identity = m.Source()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch v := m.(type) {
	case control.Begin:
		r.beginFlood(identity, v)
	case control.Data:
		f := r.lookup(identity)
		if f == nil {
			observability.RecordFragmentDropped(r.cfg.Node, dropNoFlow)
			return
		}
		if f.source != v.SourceID {
			observability.RecordFragmentDropped(r.cfg.Node, dropSourceMismatch)
			return
		}
		r.ingest(identity, v.SourceID, v.ForwarderID, v.Index, v.TotalCount, len(v.Chunk), f.fragSize, v.Chunk)
	case control.End:
		f := r.lookup(identity)
		if f == nil {
			return
		}
		if f.source != v.SourceID {
			observability.RecordFragmentDropped(r.cfg.Node, dropSourceMismatch)
			return
		}
		f.lastActivity = r.clk.Now()
		// End closes the flow now: audit instead of waiting for the sweep.
		if f.firstMissing() >= 0 || f.lastLen < 0 {
			r.discard(f, ReasonIncomplete)
			return
		}
		r.finalize(f)
	}
}

// beginFlood claims a slot using the per-flow fragment size declared in
// Begin. A repeated Begin for an in-progress flow restarts it.
func (r *Reassembler) beginFlood(identity string, m control.Begin) {
	if f := r.lookup(identity); f != nil {
		r.discard(f, ReasonIncomplete)
	}
	r.claim(identity, m.SourceID, m.ForwarderID, m.FragmentCount, m.FragmentSize)
}

// ingest places one fragment. Caller holds the lock.
func (r *Reassembler) ingest(identity, source, forwarder string, index, total, declared, fragSize int, payload []byte) {
	if total <= 0 || index < 0 || index >= total {
		observability.RecordFragmentDropped(r.cfg.Node, dropInvalidIndex)
		return
	}
	if declared != len(payload) || declared > fragSize {
		observability.RecordFragmentDropped(r.cfg.Node, dropLengthMismatch)
		return
	}

	f := r.lookup(identity)
	if f == nil {
		f = r.claim(identity, source, forwarder, total, fragSize)
		if f == nil {
			return
		}
	}

	f.lastActivity = r.clk.Now()

	if f.total != total {
		observability.RecordFragmentDropped(r.cfg.Node, dropTotalMismatch)
		return
	}
	// Non-final fragments must carry exactly the flow fragment size.
	if index != total-1 && declared != f.fragSize {
		observability.RecordFragmentDropped(r.cfg.Node, dropLengthMismatch)
		return
	}

	if !f.markPresent(index) {
		observability.RecordFragmentDropped(r.cfg.Node, dropDuplicate)
		return
	}

	copy(f.buf[index*f.fragSize:], payload)
	if index == total-1 {
		f.lastLen = declared
	}
	f.received++

	if f.received == f.total {
		if missing := f.firstMissing(); missing >= 0 {
			r.discard(f, ReasonIncomplete)
			return
		}
		r.finalize(f)
	}
}

// lookup returns the receiving flow for identity, if any. Caller holds
// the lock.
func (r *Reassembler) lookup(identity string) *flow {
	for _, f := range r.slots {
		if f != nil && f.state == StateReceiving && f.identity == identity {
			return f
		}
	}
	return nil
}

// claim allocates a slot for a new identity. When every slot holds a
// different in-progress identity the fragment is rejected, never
// queued: backpressure by policy. Caller holds the lock.
func (r *Reassembler) claim(identity, source, forwarder string, total, fragSize int) *flow {
	if total*fragSize > r.cfg.MaxFlowBytes {
		observability.RecordFlowDiscarded(r.cfg.Node, ReasonAllocation)
		return nil
	}
	for i, f := range r.slots {
		if f == nil || f.state != StateReceiving {
			nf := newFlow(identity, source, forwarder, total, fragSize, r.clk.Now())
			r.slots[i] = nf
			return nf
		}
	}
	observability.RecordFragmentDropped(r.cfg.Node, dropNoSlot)
	return nil
}

// finalize runs after the completeness audit passed. Exact size is
// known only now, from the final fragment's declared length. Caller
// holds the lock.
func (r *Reassembler) finalize(f *flow) {
	size := (f.total-1)*f.fragSize + f.lastLen
	f.state = StateComplete
	out := Completed{Source: f.source, Forwarder: f.forwarder, Data: f.buf[:size]}

	select {
	case r.completed <- out:
		observability.RecordFlowCompleted(r.cfg.Node)
		f.release()
	default:
		// Consumer has fallen behind the slot pool. Dropping here keeps
		// the callback non-blocking.
		r.discard(f, ReasonBacklog)
	}
}

// discard frees a flow. Caller holds the lock.
func (r *Reassembler) discard(f *flow, reason string) {
	observability.RecordFlowDiscarded(r.cfg.Node, reason)
	f.state = StateDiscarded
	f.release()
}

// Sweep evicts receiving flows whose last activity is older than the
// configured timeout. It runs from the node's main loop, never from the
// receive path, and returns the evicted identities.
func (r *Reassembler) Sweep() []string {
	now := r.clk.Now()

	r.mu.Lock()
	var evicted []string
	for _, f := range r.slots {
		if f == nil || f.state != StateReceiving {
			continue
		}
		if now.Sub(f.lastActivity) > r.cfg.Timeout {
			evicted = append(evicted, f.identity)
			r.discard(f, ReasonTimeout)
		}
	}
	r.mu.Unlock()

	for _, id := range evicted {
		r.cfg.Logger.Warn().Str("flow", id).Msg("flow timed out, discarded incomplete")
	}
	return evicted
}

// Snapshot reports the slot table for the status server.
func (r *Reassembler) Snapshot() []SlotStatus {
	now := r.clk.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SlotStatus, len(r.slots))
	for i, f := range r.slots {
		out[i] = SlotStatus{Slot: i, State: StateEmpty.String()}
		if f == nil || f.state == StateEmpty {
			continue
		}
		out[i] = SlotStatus{
			Slot:      i,
			State:     f.state.String(),
			Source:    f.source,
			Forwarder: f.forwarder,
			Received:  f.received,
			Total:     f.total,
			AgeMS:     now.Sub(f.lastActivity).Milliseconds(),
		}
	}
	return out
}
