package fragment

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// IdentityLen is the fixed on-wire width of the sender identity.
	// Identities themselves are at most MaxIdentityChars; the rest is
	// zero padding.
	IdentityLen      = 10
	MaxIdentityChars = 9

	// HeaderLen is identity + index + total + declared length.
	HeaderLen = IdentityLen + 6

	// MaxDatagram matches the addressed transport's datagram cap.
	MaxDatagram = 250
	MaxPayload  = MaxDatagram - HeaderLen
)

var (
	ErrShortDatagram   = errors.New("fragment: short datagram")
	ErrPayloadTooLarge = errors.New("fragment: payload too large")
	ErrIdentityTooLong = errors.New("fragment: identity too long")
	ErrLengthMismatch  = errors.New("fragment: declared length mismatch")
	ErrZeroTotal       = errors.New("fragment: zero total count")
)

// Datagram is one fragment of a payload on the addressed transport.
type Datagram struct {
	Sender  string
	Index   uint16
	Total   uint16
	Length  uint16
	Payload []byte
}

// Encode serializes d into a wire datagram. Length is taken from the
// payload itself.
func Encode(d Datagram) ([]byte, error) {
	if len(d.Sender) > MaxIdentityChars {
		return nil, ErrIdentityTooLong
	}
	if len(d.Payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	if d.Total == 0 {
		return nil, ErrZeroTotal
	}

	buf := make([]byte, HeaderLen+len(d.Payload))
	copy(buf[0:IdentityLen], d.Sender)
	binary.BigEndian.PutUint16(buf[IdentityLen:IdentityLen+2], d.Index)
	binary.BigEndian.PutUint16(buf[IdentityLen+2:IdentityLen+4], d.Total)
	binary.BigEndian.PutUint16(buf[IdentityLen+4:HeaderLen], uint16(len(d.Payload)))
	copy(buf[HeaderLen:], d.Payload)
	return buf, nil
}

// Decode parses a wire datagram. The payload slice is copied so the
// caller may reuse b.
func Decode(b []byte) (Datagram, error) {
	if len(b) < HeaderLen {
		return Datagram{}, ErrShortDatagram
	}

	d := Datagram{
		Sender: string(bytes.TrimRight(b[0:IdentityLen], "\x00")),
		Index:  binary.BigEndian.Uint16(b[IdentityLen : IdentityLen+2]),
		Total:  binary.BigEndian.Uint16(b[IdentityLen+2 : IdentityLen+4]),
		Length: binary.BigEndian.Uint16(b[IdentityLen+4 : HeaderLen]),
	}
	if d.Total == 0 {
		return Datagram{}, ErrZeroTotal
	}
	if int(d.Length) != len(b)-HeaderLen {
		return Datagram{}, fmt.Errorf("%w: declared=%d present=%d", ErrLengthMismatch, d.Length, len(b)-HeaderLen)
	}

	d.Payload = make([]byte, d.Length)
	copy(d.Payload, b[HeaderLen:])
	return d, nil
}

// Split cuts payload into ceil(len/size) slices of at most size bytes.
// A zero-length payload still yields one empty fragment so the flow
// exists on the wire.
func Split(payload []byte, size int) [][]byte {
	if size <= 0 {
		return nil
	}
	if len(payload) == 0 {
		return [][]byte{{}}
	}
	count := (len(payload) + size - 1) / size
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * size
		end := start + size
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, payload[start:end])
	}
	return out
}
