// Package transport owns the link adapter contracts.
//
// Ownership boundary:
// - addressed (unicast, confirmed) adapter contract
// - flood (broadcast text, unconfirmed) adapter contract
// - send outcome reporting
package transport

// Outcome is the asynchronous result of one addressed send.
type Outcome uint8

const (
	OutcomeDelivered Outcome = iota
	OutcomeFailed
)

func (o Outcome) String() string {
	if o == OutcomeDelivered {
		return "delivered"
	}
	return "failed"
}

// ReceiveFunc is invoked for every inbound addressed datagram. The
// payload slice is owned by the callee. Implementations must keep the
// body to O(1) copies and bookkeeping: no sends, no retries, no
// formatted logging.
type ReceiveFunc func(sender string, payload []byte)

// TextReceiveFunc is invoked for every inbound flood text message
// under the same constraints as ReceiveFunc.
type TextReceiveFunc func(text string)

// Addressed is a point-to-point link with per-send confirmation. Send
// returns immediately with a local accept/reject; the link-layer
// outcome arrives later on Completions, one per accepted send, in send
// order.
type Addressed interface {
	Send(dest string, payload []byte) error
	Completions() <-chan Outcome
	Close() error
}

// Flood is a broadcast link carrying whole text messages. There is no
// addressing and no delivery confirmation; receivers filter by the
// identity embedded in the message.
type Flood interface {
	Send(text string) error
	Close() error
}
