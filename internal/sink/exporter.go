// Package sink validates completed payloads and emits them through the
// line-oriented export interface consumed downstream.
package sink

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danmuck/camrelay/internal/observability"
	"github.com/danmuck/camrelay/internal/transfer"
)

// Markers and metadata keys of the export framing. The downstream
// serial consumer keys on these exact strings.
const (
	markerStart = "===IMAGE_START==="
	markerData  = "===DATA==="
	markerEnd   = "===IMAGE_END==="

	keyCamera    = "CAMERA"
	keyRelay     = "RELAY"
	keySize      = "SIZE"
	keyTimestamp = "TIMESTAMP"
	keyExport    = "EXPORT"
)

// JPEG SOI and EOI markers; every payload must be framed by them.
var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

var ErrMalformedPayload = errors.New("sink: payload missing jpeg framing")

// ExporterConfig tunes one exporter.
type ExporterConfig struct {
	// Node labels metrics.
	Node string
	// HexWidth is hex characters per data line.
	HexWidth int

	Clock  clock.Clock
	Logger zerolog.Logger
}

func (c ExporterConfig) withDefaults() ExporterConfig {
	if c.HexWidth <= 0 {
		c.HexWidth = 64
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Exporter writes completed payloads to a line-oriented writer. It
// takes ownership of each Completed buffer.
type Exporter struct {
	cfg ExporterConfig
	w   io.Writer
}

func NewExporter(w io.Writer, cfg ExporterConfig) *Exporter {
	return &Exporter{cfg: cfg.withDefaults(), w: w}
}

// Export validates framing and emits one export record. A framing
// mismatch is a validation error, never a crash; the buffer is dropped
// either way.
func (e *Exporter) Export(c transfer.Completed) error {
	if err := validateFraming(c.Data); err != nil {
		observability.RecordExport(e.cfg.Node, "rejected")
		e.cfg.Logger.Warn().Err(err).Str("source", c.Source).Int("bytes", len(c.Data)).Msg("export rejected")
		return err
	}

	bw := bufio.NewWriter(e.w)
	fmt.Fprintln(bw, markerStart)
	fmt.Fprintf(bw, "%s: %s\n", keyCamera, c.Source)
	if c.Forwarder != "" {
		fmt.Fprintf(bw, "%s: %s\n", keyRelay, c.Forwarder)
	}
	fmt.Fprintf(bw, "%s: %d\n", keySize, len(c.Data))
	fmt.Fprintf(bw, "%s: %d\n", keyTimestamp, e.cfg.Clock.Now().Unix())
	fmt.Fprintf(bw, "%s: %s\n", keyExport, uuid.NewString())
	fmt.Fprintln(bw, markerData)

	encoded := hex.EncodeToString(c.Data)
	for start := 0; start < len(encoded); start += e.cfg.HexWidth {
		end := start + e.cfg.HexWidth
		if end > len(encoded) {
			end = len(encoded)
		}
		fmt.Fprintln(bw, encoded[start:end])
	}

	fmt.Fprintln(bw, markerEnd)
	if err := bw.Flush(); err != nil {
		observability.RecordExport(e.cfg.Node, "write_error")
		return fmt.Errorf("sink: write export: %w", err)
	}

	observability.RecordExport(e.cfg.Node, "ok")
	e.cfg.Logger.Info().Str("source", c.Source).Str("relay", c.Forwarder).Int("bytes", len(c.Data)).Msg("payload exported")
	return nil
}

func validateFraming(data []byte) error {
	if len(data) < len(jpegSOI)+len(jpegEOI) {
		return fmt.Errorf("%w: %d bytes", ErrMalformedPayload, len(data))
	}
	if data[0] != jpegSOI[0] || data[1] != jpegSOI[1] {
		return fmt.Errorf("%w: bad leading magic %02x%02x", ErrMalformedPayload, data[0], data[1])
	}
	if data[len(data)-2] != jpegEOI[0] || data[len(data)-1] != jpegEOI[1] {
		return fmt.Errorf("%w: bad trailing magic %02x%02x", ErrMalformedPayload, data[len(data)-2], data[len(data)-1])
	}
	return nil
}
