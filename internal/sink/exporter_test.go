package sink

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/danmuck/camrelay/internal/transfer"
)

func jpegPayload(body int) []byte {
	data := make([]byte, 0, body+4)
	data = append(data, 0xFF, 0xD8)
	for i := 0; i < body; i++ {
		data = append(data, byte(i))
	}
	return append(data, 0xFF, 0xD9)
}

func export(t *testing.T, c transfer.Completed) (string, error) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Unix(1_700_000_000, 0))
	var buf bytes.Buffer
	e := NewExporter(&buf, ExporterConfig{Node: "sink", HexWidth: 32, Clock: mock})
	err := e.Export(c)
	return buf.String(), err
}

func TestExportFraming(t *testing.T) {
	data := jpegPayload(100)
	out, err := export(t, transfer.Completed{Source: "cam-1", Forwarder: "relay-1", Data: data})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[0] != "===IMAGE_START===" {
		t.Fatalf("start marker: %q", lines[0])
	}
	if lines[len(lines)-1] != "===IMAGE_END===" {
		t.Fatalf("end marker: %q", lines[len(lines)-1])
	}
	if !strings.Contains(out, "CAMERA: cam-1") {
		t.Fatalf("missing camera metadata:\n%s", out)
	}
	if !strings.Contains(out, "RELAY: relay-1") {
		t.Fatalf("missing relay metadata:\n%s", out)
	}
	if !strings.Contains(out, "SIZE: 104") {
		t.Fatalf("missing size metadata:\n%s", out)
	}
	if !strings.Contains(out, "TIMESTAMP: 1700000000") {
		t.Fatalf("missing timestamp metadata:\n%s", out)
	}

	// Hex body between ===DATA=== and the end marker must decode back
	// to the payload.
	dataAt := strings.Index(out, "===DATA===\n")
	if dataAt < 0 {
		t.Fatalf("missing data marker:\n%s", out)
	}
	body := out[dataAt+len("===DATA===\n") : strings.Index(out, "===IMAGE_END===")]
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		if len(line) > 32 {
			t.Fatalf("hex line over width: %d chars", len(line))
		}
	}
	decoded, err := hex.DecodeString(strings.ReplaceAll(body, "\n", ""))
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("body does not decode to payload")
	}
}

func TestExportOmitsRelayWhenDirect(t *testing.T) {
	out, err := export(t, transfer.Completed{Source: "cam-1", Data: jpegPayload(10)})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if strings.Contains(out, "RELAY:") {
		t.Fatalf("unexpected relay metadata:\n%s", out)
	}
}

func TestExportRejectsMissingMagic(t *testing.T) {
	cases := map[string][]byte{
		"empty":        {},
		"short":        {0xFF, 0xD8},
		"bad_leading":  append([]byte{0x00, 0x00}, jpegPayload(4)[2:]...),
		"bad_trailing": append(jpegPayload(4)[:6], 0x00, 0x00),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := export(t, transfer.Completed{Source: "cam-1", Data: data})
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
			if out != "" {
				t.Fatalf("rejected payload still produced output:\n%s", out)
			}
		})
	}
}
