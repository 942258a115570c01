// Package mem provides in-process loopback transports for tests.
package mem

import (
	"errors"
	"sync"

	"github.com/danmuck/camrelay/internal/transport"
)

var (
	ErrNoPeer       = errors.New("mem: no peer attached")
	ErrSendRejected = errors.New("mem: send rejected")
)

// AddressedEnd is one end of an in-process addressed link. Delivery is
// synchronous; confirmations are queued on a buffered channel the way
// a radio driver would raise its send-complete callback.
type AddressedEnd struct {
	mu          sync.Mutex
	peer        *AddressedEnd
	identity    string
	recv        transport.ReceiveFunc
	completions chan transport.Outcome

	failNext int // report OutcomeFailed, do not deliver
	loseNext int // report OutcomeDelivered, do not deliver
}

// NewAddressedPair links two addressed ends together.
func NewAddressedPair(aID, bID string) (*AddressedEnd, *AddressedEnd) {
	a := &AddressedEnd{identity: aID, completions: make(chan transport.Outcome, 64)}
	b := &AddressedEnd{identity: bID, completions: make(chan transport.Outcome, 64)}
	a.peer = b
	b.peer = a
	return a, b
}

// OnReceive installs the inbound handler for this end.
func (e *AddressedEnd) OnReceive(fn transport.ReceiveFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recv = fn
}

// FailNext makes the next n sends report OutcomeFailed without delivering.
func (e *AddressedEnd) FailNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = n
}

// LoseNext makes the next n sends report OutcomeDelivered while
// silently dropping the datagram, simulating a lying link layer.
func (e *AddressedEnd) LoseNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loseNext = n
}

func (e *AddressedEnd) Send(dest string, payload []byte) error {
	e.mu.Lock()
	peer := e.peer
	if peer == nil {
		e.mu.Unlock()
		return ErrNoPeer
	}
	if e.failNext > 0 {
		e.failNext--
		e.mu.Unlock()
		e.completions <- transport.OutcomeFailed
		return nil
	}
	deliver := true
	if e.loseNext > 0 {
		e.loseNext--
		deliver = false
	}
	e.mu.Unlock()

	if deliver {
		peer.deliver(e.identity, payload)
	}
	e.completions <- transport.OutcomeDelivered
	return nil
}

func (e *AddressedEnd) deliver(sender string, payload []byte) {
	e.mu.Lock()
	recv := e.recv
	e.mu.Unlock()
	if recv == nil {
		return
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	recv(sender, cp)
}

func (e *AddressedEnd) Completions() <-chan transport.Outcome {
	return e.completions
}

func (e *AddressedEnd) Close() error { return nil }

// FloodBus fans every sent text out to all other joined ends.
type FloodBus struct {
	mu   sync.Mutex
	ends []*FloodEnd
}

func NewFloodBus() *FloodBus {
	return &FloodBus{}
}

// Join attaches a new end to the bus.
func (b *FloodBus) Join() *FloodEnd {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := &FloodEnd{bus: b}
	b.ends = append(b.ends, e)
	return e
}

// FloodEnd is one participant on an in-process flood bus.
type FloodEnd struct {
	mu       sync.Mutex
	bus      *FloodBus
	recv     transport.TextReceiveFunc
	dropNext int
	failNext int
}

func (e *FloodEnd) OnReceive(fn transport.TextReceiveFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recv = fn
}

// DropNext makes the next n sends vanish without a local error,
// simulating flood loss.
func (e *FloodEnd) DropNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropNext = n
}

// FailNext makes the next n sends return a local error, the flood
// equivalent of the driver rejecting the send call itself.
func (e *FloodEnd) FailNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = n
}

func (e *FloodEnd) Send(text string) error {
	e.mu.Lock()
	if e.failNext > 0 {
		e.failNext--
		e.mu.Unlock()
		return ErrSendRejected
	}
	if e.dropNext > 0 {
		e.dropNext--
		e.mu.Unlock()
		return nil
	}
	bus := e.bus
	e.mu.Unlock()

	bus.mu.Lock()
	ends := make([]*FloodEnd, len(bus.ends))
	copy(ends, bus.ends)
	bus.mu.Unlock()

	for _, other := range ends {
		if other == e {
			continue
		}
		other.mu.Lock()
		recv := other.recv
		other.mu.Unlock()
		if recv != nil {
			recv(text)
		}
	}
	return nil
}

func (e *FloodEnd) Close() error { return nil }
