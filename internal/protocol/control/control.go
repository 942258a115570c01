// Package control owns the flood-transport control message contract.
//
// Ownership boundary:
// - Begin/Data/End message shapes
// - text wire encoding and one-shot boundary decoding
// - required-field validation
package control

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Message kinds on the wire.
const (
	KindBegin = "image_start"
	KindData  = "image_chunk"
	KindEnd   = "image_end"
)

var ErrUnknownKind = errors.New("control: unknown message kind")

// ValidationError reports a missing or malformed required field.
type ValidationError struct {
	Kind   string
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("control: kind=%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("control: kind=%s field=%s: %s", e.Kind, e.Field, e.Reason)
}

// Message is one decoded control message: Begin, Data, or End.
type Message interface {
	MessageKind() string
	Source() string
	Forwarder() string
}

// Begin announces a new flow on the flood transport. FragmentSize is
// per-flow; receivers must use it for every offset computation rather
// than a shared constant.
type Begin struct {
	Type          string `json:"type"`
	SourceID      string `json:"source_id"`
	ForwarderID   string `json:"forwarder_id,omitempty"`
	Size          int    `json:"size"`
	FragmentCount int    `json:"fragment_count"`
	FragmentSize  int    `json:"fragment_size"`
}

func (m Begin) MessageKind() string { return KindBegin }
func (m Begin) Source() string      { return m.SourceID }
func (m Begin) Forwarder() string   { return m.ForwarderID }

// Data carries one hex-encoded chunk. Chunk holds the decoded bytes
// after Decode; it is never re-encoded internally.
type Data struct {
	Type        string `json:"type"`
	SourceID    string `json:"source_id"`
	ForwarderID string `json:"forwarder_id,omitempty"`
	Index       int    `json:"index"`
	TotalCount  int    `json:"total_count"`
	Payload     string `json:"payload"`

	Chunk []byte `json:"-"`
}

func (m Data) MessageKind() string { return KindData }
func (m Data) Source() string      { return m.SourceID }
func (m Data) Forwarder() string   { return m.ForwarderID }

// End closes a flow.
type End struct {
	Type        string `json:"type"`
	SourceID    string `json:"source_id"`
	ForwarderID string `json:"forwarder_id,omitempty"`
	TotalCount  int    `json:"total_count"`
}

func (m End) MessageKind() string { return KindEnd }
func (m End) Source() string      { return m.SourceID }
func (m End) Forwarder() string   { return m.ForwarderID }

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one flood text message into its tagged form. Data
// payload hex is decoded here, once, at the boundary.
func Decode(text string) (Message, error) {
	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("control: decode envelope: %w", err)
	}

	switch env.Type {
	case KindBegin:
		var m Begin
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return nil, fmt.Errorf("control: decode begin: %w", err)
		}
		if err := validateBegin(m); err != nil {
			return nil, err
		}
		return m, nil
	case KindData:
		var m Data
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return nil, fmt.Errorf("control: decode data: %w", err)
		}
		if err := validateData(m); err != nil {
			return nil, err
		}
		chunk, err := hex.DecodeString(m.Payload)
		if err != nil {
			return nil, ValidationError{Kind: KindData, Field: "payload", Reason: "invalid hex"}
		}
		m.Chunk = chunk
		return m, nil
	case KindEnd:
		var m End
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return nil, fmt.Errorf("control: decode end: %w", err)
		}
		if err := validateEnd(m); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
}

// Encode serializes a control message to its text wire form. Data
// chunks are hex-encoded here.
func Encode(m Message) (string, error) {
	switch v := m.(type) {
	case Begin:
		v.Type = KindBegin
		if err := validateBegin(v); err != nil {
			return "", err
		}
		return marshal(v)
	case Data:
		v.Type = KindData
		v.Payload = hex.EncodeToString(v.Chunk)
		if err := validateData(v); err != nil {
			return "", err
		}
		return marshal(v)
	case End:
		v.Type = KindEnd
		if err := validateEnd(v); err != nil {
			return "", err
		}
		return marshal(v)
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownKind, m)
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("control: marshal: %w", err)
	}
	return string(b), nil
}

func validateBegin(m Begin) error {
	if m.SourceID == "" {
		return ValidationError{Kind: KindBegin, Field: "source_id", Reason: "missing required field"}
	}
	if m.Size < 0 {
		return ValidationError{Kind: KindBegin, Field: "size", Reason: "negative size"}
	}
	if m.FragmentCount <= 0 {
		return ValidationError{Kind: KindBegin, Field: "fragment_count", Reason: "must be positive"}
	}
	if m.FragmentSize <= 0 {
		return ValidationError{Kind: KindBegin, Field: "fragment_size", Reason: "must be positive"}
	}
	return nil
}

func validateData(m Data) error {
	if m.SourceID == "" {
		return ValidationError{Kind: KindData, Field: "source_id", Reason: "missing required field"}
	}
	if m.TotalCount <= 0 {
		return ValidationError{Kind: KindData, Field: "total_count", Reason: "must be positive"}
	}
	if m.Index < 0 || m.Index >= m.TotalCount {
		return ValidationError{Kind: KindData, Field: "index", Reason: "out of range"}
	}
	return nil
}

func validateEnd(m End) error {
	if m.SourceID == "" {
		return ValidationError{Kind: KindEnd, Field: "source_id", Reason: "missing required field"}
	}
	if m.TotalCount <= 0 {
		return ValidationError{Kind: KindEnd, Field: "total_count", Reason: "must be positive"}
	}
	return nil
}
