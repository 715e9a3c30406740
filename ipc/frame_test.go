package ipc

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	payload := []byte("hello ipc frame")
	if err := writeFrame(&buf, payload); err != nil {
		t.Fatal(err)
	}

	got, err := readFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := readFrame(buf); err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}
