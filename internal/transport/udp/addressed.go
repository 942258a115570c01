// Package udp implements the transport adapter contracts over UDP
// sockets. This is driver glue: the protocol core only sees the
// contracts in internal/transport.
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/danmuck/camrelay/internal/transport"
	"github.com/rs/zerolog"
)

const maxDatagram = 64 * 1024

var ErrUnknownPeer = errors.New("udp: unknown peer identity")

// AddressedConfig wires one addressed UDP endpoint.
type AddressedConfig struct {
	// Identity is this node's short identity.
	Identity string
	// Listen is the local UDP listen address, e.g. ":7401".
	Listen string
	// Peers maps peer identity to UDP host:port.
	Peers map[string]string
	Logger zerolog.Logger
}

// Addressed sends unicast datagrams to known peers. UDP has no
// link-layer acknowledgement, so a successful socket write stands in
// for the delivery confirmation the radio driver would raise.
type Addressed struct {
	cfg  AddressedConfig
	conn *net.UDPConn

	mu     sync.Mutex
	peers  map[string]*net.UDPAddr
	byAddr map[string]string

	completions chan transport.Outcome
	done        chan struct{}
	closeOnce   sync.Once
}

// NewAddressed opens the socket and starts the read loop. recv may be
// nil for send-only nodes.
func NewAddressed(cfg AddressedConfig, recv transport.ReceiveFunc) (*Addressed, error) {
	laddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve listen %q: %w", cfg.Listen, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("udp: listen %q: %w", cfg.Listen, err)
	}

	a := &Addressed{
		cfg:         cfg,
		conn:        conn,
		peers:       make(map[string]*net.UDPAddr, len(cfg.Peers)),
		byAddr:      make(map[string]string, len(cfg.Peers)),
		completions: make(chan transport.Outcome, 64),
		done:        make(chan struct{}),
	}
	for id, hostport := range cfg.Peers {
		addr, err := net.ResolveUDPAddr("udp", hostport)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("udp: resolve peer %s=%q: %w", id, hostport, err)
		}
		a.peers[id] = addr
		a.byAddr[addr.String()] = id
	}

	go a.readLoop(recv)
	return a, nil
}

// Send writes one datagram to the named peer. The outcome of the write
// is reported asynchronously on Completions.
func (a *Addressed) Send(dest string, payload []byte) error {
	a.mu.Lock()
	addr, ok := a.peers[dest]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPeer, dest)
	}

	_, err := a.conn.WriteToUDP(payload, addr)
	outcome := transport.OutcomeDelivered
	if err != nil {
		outcome = transport.OutcomeFailed
	}
	select {
	case a.completions <- outcome:
	default:
		a.cfg.Logger.Warn().Str("dest", dest).Msg("completion queue full, dropping outcome")
	}
	return nil
}

func (a *Addressed) Completions() <-chan transport.Outcome {
	return a.completions
}

func (a *Addressed) readLoop(recv transport.ReceiveFunc) {
	buf := make([]byte, maxDatagram)
	for {
		n, raddr, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-a.done:
				return
			default:
			}
			a.cfg.Logger.Warn().Err(err).Msg("udp read")
			continue
		}
		if recv == nil {
			continue
		}
		sender := raddr.String()
		a.mu.Lock()
		if id, ok := a.byAddr[sender]; ok {
			sender = id
		}
		a.mu.Unlock()
		payload := make([]byte, n)
		copy(payload, buf[:n])
		recv(sender, payload)
	}
}

func (a *Addressed) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		err = a.conn.Close()
	})
	return err
}
