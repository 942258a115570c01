// Package capture is the seam to the external image producer. Camera
// hardware is out of scope; these sources produce the opaque byte
// buffer the pipeline moves.
package capture

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
)

var ErrEmptyCapture = errors.New("capture: empty image")

// Source produces one opaque image buffer per capture.
type Source interface {
	Capture() ([]byte, error)
}

// FileSource reads a pre-captured image from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Capture() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("capture: read %q: %w", s.Path, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyCapture
	}
	return data, nil
}

// SyntheticSource generates a deterministic JPEG-framed buffer for
// demos and tests: SOI marker, Body pseudo-random bytes, EOI marker.
type SyntheticSource struct {
	Body int
	Seed int64
}

func (s SyntheticSource) Capture() ([]byte, error) {
	if s.Body < 0 {
		return nil, ErrEmptyCapture
	}
	rng := rand.New(rand.NewSource(s.Seed))
	data := make([]byte, 0, s.Body+4)
	data = append(data, 0xFF, 0xD8)
	body := make([]byte, s.Body)
	rng.Read(body)
	data = append(data, body...)
	return append(data, 0xFF, 0xD9), nil
}
