package udp

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/danmuck/camrelay/internal/transport"
)

// FloodConfig wires one broadcast UDP endpoint.
type FloodConfig struct {
	// Listen is the local address for inbound broadcasts, e.g. ":7402".
	Listen string
	// Broadcast is the destination for outbound text, e.g.
	// "255.255.255.255:7402" or a subnet broadcast address.
	Broadcast string
	Logger    zerolog.Logger
}

// Flood broadcasts whole text messages with no addressing and no
// delivery confirmation. A node hears its own broadcasts on some
// networks; receivers filter by the identity inside the message.
type Flood struct {
	cfg   FloodConfig
	conn  *net.UDPConn
	baddr *net.UDPAddr

	done      chan struct{}
	closeOnce sync.Once
}

// NewFlood opens the socket and starts the read loop. recv may be nil
// for send-only nodes.
func NewFlood(cfg FloodConfig, recv transport.TextReceiveFunc) (*Flood, error) {
	laddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve listen %q: %w", cfg.Listen, err)
	}
	baddr, err := net.ResolveUDPAddr("udp", cfg.Broadcast)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve broadcast %q: %w", cfg.Broadcast, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("udp: listen %q: %w", cfg.Listen, err)
	}

	f := &Flood{cfg: cfg, conn: conn, baddr: baddr, done: make(chan struct{})}
	go f.readLoop(recv)
	return f, nil
}

// Send broadcasts one text message. The error reflects the local send
// call only; there is no delivery confirmation on a flood link.
func (f *Flood) Send(text string) error {
	if _, err := f.conn.WriteToUDP([]byte(text), f.baddr); err != nil {
		return fmt.Errorf("udp: broadcast: %w", err)
	}
	return nil
}

func (f *Flood) readLoop(recv transport.TextReceiveFunc) {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			f.cfg.Logger.Warn().Err(err).Msg("udp read")
			continue
		}
		if recv == nil {
			continue
		}
		recv(string(buf[:n]))
	}
}

func (f *Flood) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		err = f.conn.Close()
	})
	return err
}
