package capture

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSyntheticSourceIsFramedAndDeterministic(t *testing.T) {
	a, err := SyntheticSource{Body: 100, Seed: 7}.Capture()
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if len(a) != 104 {
		t.Fatalf("length: got %d, want 104", len(a))
	}
	if a[0] != 0xFF || a[1] != 0xD8 || a[len(a)-2] != 0xFF || a[len(a)-1] != 0xD9 {
		t.Fatalf("missing jpeg markers")
	}

	b, err := SyntheticSource{Body: 100, Seed: 7}.Capture()
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("same seed produced different images")
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.jpg")
	want := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := FileSource{Path: path}.Capture()
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("bytes mismatch")
	}
}

func TestFileSourceEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.jpg")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := (FileSource{Path: path}).Capture(); !errors.Is(err, ErrEmptyCapture) {
		t.Fatalf("expected ErrEmptyCapture, got %v", err)
	}
}
