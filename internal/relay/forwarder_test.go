package relay

import (
	"bytes"
	"testing"
	"time"

	"github.com/danmuck/camrelay/internal/protocol/control"
	"github.com/danmuck/camrelay/internal/transfer"
	"github.com/danmuck/camrelay/internal/transport/mem"
)

func testForwarder(t *testing.T) (*Forwarder, *mem.FloodEnd, *mem.FloodEnd) {
	t.Helper()
	bus := mem.NewFloodBus()
	sendEnd := bus.Join()
	recvEnd := bus.Join()

	bcast, err := transfer.NewBroadcaster(transfer.BroadcasterConfig{
		Identity:     "relay-1",
		FragmentSize: 64,
		MaxRetries:   1,
		RetryDelay:   time.Millisecond,
	}, sendEnd)
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	fwd, err := New(Config{Identity: "relay-1", DedupEntries: 8}, bcast)
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	return fwd, sendEnd, recvEnd
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestForwardCarriesOriginalSource(t *testing.T) {
	fwd, _, recvEnd := testForwarder(t)

	var msgs []control.Message
	recvEnd.OnReceive(func(text string) {
		m, err := control.Decode(text)
		if err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		msgs = append(msgs, m)
	})

	data := payload(200)
	rep := fwd.Forward(transfer.Completed{Source: "cam-1", Data: data})
	if rep.Failed != 0 || rep.Attempted == 0 {
		t.Fatalf("report: %+v", rep)
	}
	if len(msgs) == 0 {
		t.Fatalf("nothing forwarded")
	}
	for _, m := range msgs {
		if m.Source() != "cam-1" {
			t.Fatalf("forwarded message lost source attribution: %+v", m)
		}
		if m.Forwarder() != "relay-1" {
			t.Fatalf("forwarded message missing relay identity: %+v", m)
		}
	}
}

func TestForwardedFlowReassemblesAtSink(t *testing.T) {
	fwd, _, recvEnd := testForwarder(t)

	sink := transfer.NewReassembler(transfer.ReassemblerConfig{Node: "sink", Slots: 2})
	recvEnd.OnReceive(func(text string) {
		m, err := control.Decode(text)
		if err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		sink.OnMessage(m)
	})

	data := payload(500)
	fwd.Forward(transfer.Completed{Source: "cam-1", Data: data})

	select {
	case c := <-sink.Completed():
		if c.Source != "cam-1" || c.Forwarder != "relay-1" {
			t.Fatalf("sink attribution: source=%q forwarder=%q", c.Source, c.Forwarder)
		}
		if !bytes.Equal(c.Data, data) {
			t.Fatalf("sink payload mismatch")
		}
	default:
		t.Fatalf("sink flow did not complete")
	}
}

func TestForwardDeduplicatesRepeatedFlow(t *testing.T) {
	fwd, _, recvEnd := testForwarder(t)

	var count int
	recvEnd.OnReceive(func(string) { count++ })

	c := transfer.Completed{Source: "cam-1", Data: payload(100)}
	first := fwd.Forward(c)
	second := fwd.Forward(transfer.Completed{Source: "cam-1", Data: payload(100)})

	if first.Attempted == 0 {
		t.Fatalf("first forward did nothing")
	}
	if second.Attempted != 0 {
		t.Fatalf("duplicate flow was re-forwarded: %+v", second)
	}
	if count != first.Attempted {
		t.Fatalf("messages on bus: got %d, want %d", count, first.Attempted)
	}
}

func TestForwardContinuesPastFailedMessage(t *testing.T) {
	fwd, sendEnd, recvEnd := testForwarder(t)

	var count int
	recvEnd.OnReceive(func(string) { count++ })

	// Begin exhausts both attempts; Data and End still go out.
	sendEnd.FailNext(2)
	rep := fwd.Forward(transfer.Completed{Source: "cam-1", Data: payload(100)})
	if rep.Failed != 1 {
		t.Fatalf("report: %+v", rep)
	}
	if count != rep.Confirmed {
		t.Fatalf("messages on bus: got %d, want %d", count, rep.Confirmed)
	}
}
