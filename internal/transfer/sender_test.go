package transfer

import (
	"bytes"
	"testing"
	"time"

	"github.com/danmuck/camrelay/internal/protocol/control"
	"github.com/danmuck/camrelay/internal/protocol/fragment"
	"github.com/danmuck/camrelay/internal/transport/mem"
)

func fastSenderConfig(id string, fragSize int) SenderConfig {
	return SenderConfig{
		Identity:       id,
		FragmentSize:   fragSize,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
		ConfirmTimeout: 50 * time.Millisecond,
	}
}

func TestSenderDeliversAllFragments(t *testing.T) {
	camEnd, relayEnd := mem.NewAddressedPair("cam-1", "relay-1")
	r, _ := testReassembler(t, 32)
	relayEnd.OnReceive(func(sender string, payload []byte) {
		d, err := fragment.Decode(payload)
		if err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		r.OnFragment(d.Sender, int(d.Index), int(d.Total), int(d.Length), d.Payload)
	})

	s, err := NewSender(fastSenderConfig("cam-1", 32), camEnd)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	payload := patternPayload(200)
	rep := s.SendPayload("relay-1", payload)
	if rep.Attempted != 7 || rep.Confirmed != 7 || rep.Failed != 0 {
		t.Fatalf("report: %+v", rep)
	}
	expectCompleted(t, r, "cam-1", payload)
}

func TestSenderRetriesFailedSend(t *testing.T) {
	camEnd, relayEnd := mem.NewAddressedPair("cam-1", "relay-1")
	var got [][]byte
	relayEnd.OnReceive(func(sender string, payload []byte) {
		got = append(got, payload)
	})

	s, err := NewSender(fastSenderConfig("cam-1", 32), camEnd)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	camEnd.FailNext(1)
	rep := s.SendPayload("relay-1", patternPayload(10))
	if rep.Attempted != 1 || rep.Confirmed != 1 || rep.Failed != 0 {
		t.Fatalf("report: %+v", rep)
	}
	if len(got) != 1 {
		t.Fatalf("delivered datagrams: got %d, want 1", len(got))
	}
}

func TestSenderContinuesPastExhaustedFragment(t *testing.T) {
	camEnd, relayEnd := mem.NewAddressedPair("cam-1", "relay-1")
	var got []fragment.Datagram
	relayEnd.OnReceive(func(sender string, payload []byte) {
		d, err := fragment.Decode(payload)
		if err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		got = append(got, d)
	})

	s, err := NewSender(fastSenderConfig("cam-1", 32), camEnd)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	// First fragment burns the initial attempt plus both retries; the
	// rest of the payload still goes out.
	camEnd.FailNext(3)
	rep := s.SendPayload("relay-1", patternPayload(96))
	if rep.Attempted != 3 || rep.Confirmed != 2 || rep.Failed != 1 {
		t.Fatalf("report: %+v", rep)
	}
	if len(got) != 2 {
		t.Fatalf("delivered datagrams: got %d, want 2", len(got))
	}
	for _, d := range got {
		if d.Index == 0 {
			t.Fatalf("failed fragment was delivered")
		}
	}
}

func TestSenderRejectsBadConfig(t *testing.T) {
	camEnd, _ := mem.NewAddressedPair("a", "b")
	if _, err := NewSender(SenderConfig{Identity: "0123456789"}, camEnd); err == nil {
		t.Fatalf("expected identity error")
	}
	if _, err := NewSender(SenderConfig{Identity: "cam-1", FragmentSize: fragment.MaxPayload + 1}, camEnd); err == nil {
		t.Fatalf("expected fragment size error")
	}
}

func TestBroadcasterEmitsBeginDataEnd(t *testing.T) {
	bus := mem.NewFloodBus()
	sender := bus.Join()
	receiver := bus.Join()

	var msgs []control.Message
	receiver.OnReceive(func(text string) {
		m, err := control.Decode(text)
		if err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		msgs = append(msgs, m)
	})

	b, err := NewBroadcaster(BroadcasterConfig{
		Identity:     "relay-1",
		FragmentSize: 64,
		MaxRetries:   2,
		RetryDelay:   time.Millisecond,
	}, sender)
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}

	payload := patternPayload(200)
	rep := b.SendPayload("cam-1", payload)
	// 4 chunks + Begin + End.
	if rep.Attempted != 6 || rep.Confirmed != 6 || rep.Failed != 0 {
		t.Fatalf("report: %+v", rep)
	}

	begin, ok := msgs[0].(control.Begin)
	if !ok {
		t.Fatalf("first message: got %T, want Begin", msgs[0])
	}
	if begin.SourceID != "cam-1" || begin.ForwarderID != "relay-1" {
		t.Fatalf("begin attribution: %+v", begin)
	}
	if begin.Size != 200 || begin.FragmentCount != 4 || begin.FragmentSize != 64 {
		t.Fatalf("begin geometry: %+v", begin)
	}
	if _, ok := msgs[len(msgs)-1].(control.End); !ok {
		t.Fatalf("last message: got %T, want End", msgs[len(msgs)-1])
	}

	var rebuilt [][]byte
	for _, m := range msgs[1 : len(msgs)-1] {
		d, ok := m.(control.Data)
		if !ok {
			t.Fatalf("middle message: got %T, want Data", m)
		}
		rebuilt = append(rebuilt, d.Chunk)
	}
	if !bytes.Equal(bytes.Join(rebuilt, nil), payload) {
		t.Fatalf("chunks do not rebuild payload")
	}
}

func TestBroadcasterOwnPayloadHasNoForwarder(t *testing.T) {
	bus := mem.NewFloodBus()
	sender := bus.Join()
	receiver := bus.Join()

	var first control.Message
	receiver.OnReceive(func(text string) {
		if first != nil {
			return
		}
		m, err := control.Decode(text)
		if err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		first = m
	})

	b, err := NewBroadcaster(BroadcasterConfig{Identity: "cam-1", FragmentSize: 64, RetryDelay: time.Millisecond}, sender)
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	b.SendPayload("cam-1", patternPayload(10))

	if first == nil || first.Forwarder() != "" {
		t.Fatalf("own payload should carry no forwarder: %+v", first)
	}
}

func TestBroadcasterCountsExhaustedMessage(t *testing.T) {
	bus := mem.NewFloodBus()
	sender := bus.Join()
	bus.Join()

	b, err := NewBroadcaster(BroadcasterConfig{
		Identity:     "relay-1",
		FragmentSize: 64,
		MaxRetries:   2,
		RetryDelay:   time.Millisecond,
	}, sender)
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}

	// Begin exhausts its attempts; the rest of the sequence continues.
	sender.FailNext(3)
	rep := b.SendPayload("cam-1", patternPayload(100))
	if rep.Attempted != 4 || rep.Confirmed != 3 || rep.Failed != 1 {
		t.Fatalf("report: %+v", rep)
	}
}
