package control

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeBeginRoundTrip(t *testing.T) {
	text, err := Encode(Begin{SourceID: "cam-1", ForwarderID: "relay-1", Size: 24567, FragmentCount: 103, FragmentSize: 240})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Decode(text)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, ok := msg.(Begin)
	if !ok {
		t.Fatalf("expected Begin, got %T", msg)
	}
	if b.SourceID != "cam-1" || b.ForwarderID != "relay-1" || b.Size != 24567 || b.FragmentCount != 103 || b.FragmentSize != 240 {
		t.Fatalf("begin mismatch: %+v", b)
	}
}

func TestDataChunkHexRoundTrip(t *testing.T) {
	chunk := []byte{0x00, 0xFF, 0xD8, 0x10}
	text, err := Encode(Data{SourceID: "cam-1", Index: 2, TotalCount: 5, Chunk: chunk})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Decode(text)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	d, ok := msg.(Data)
	if !ok {
		t.Fatalf("expected Data, got %T", msg)
	}
	if !bytes.Equal(d.Chunk, chunk) {
		t.Fatalf("chunk mismatch: %x", d.Chunk)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode(`{"type":"image_ack","source_id":"cam-1"}`)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeRejectsMissingSource(t *testing.T) {
	_, err := Decode(`{"type":"image_end","total_count":3}`)
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "source_id" {
		t.Fatalf("expected source_id validation error, got %v", err)
	}
}

func TestDecodeRejectsBadHex(t *testing.T) {
	_, err := Decode(`{"type":"image_chunk","source_id":"cam-1","index":0,"total_count":1,"payload":"zz"}`)
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "payload" {
		t.Fatalf("expected payload validation error, got %v", err)
	}
}

func TestDecodeRejectsIndexOutOfRange(t *testing.T) {
	_, err := Decode(`{"type":"image_chunk","source_id":"cam-1","index":5,"total_count":5,"payload":"00"}`)
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "index" {
		t.Fatalf("expected index validation error, got %v", err)
	}
}
