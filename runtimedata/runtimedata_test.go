package runtimedata

import (
	"errors"
	"testing"

	pkgerrors "github.com/matbeedotcom/remotemedia-sdk-sub006/pkg/errors"
)

func TestNewAudioRejectsZeroChannels(t *testing.T) {
	t.Parallel()

	_, err := NewAudio([]float32{0, 1}, 16000, 0, AudioFormatF32)
	if err == nil {
		t.Fatal("expected error for zero channels")
	}
	if !errors.Is(err, pkgerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNewVideoRejectsLengthMismatch(t *testing.T) {
	t.Parallel()

	_, err := NewVideo(make([]byte, 10), 4, 4, PixelFormatRGB24, 0)
	if err == nil {
		t.Fatal("expected error for mismatched pixel length")
	}
	var ce *pkgerrors.ContextualError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ContextualError, got %T", err)
	}
	if ce.Details["expected"] != 4*4*3 {
		t.Fatalf("expected details to carry expected length, got %v", ce.Details)
	}
}

func TestNewTensorRejectsByteLengthMismatch(t *testing.T) {
	t.Parallel()

	_, err := NewTensor(make([]byte, 10), []int{2, 3}, DTypeF32)
	if err == nil {
		t.Fatal("expected error: 2*3*4=24 != 10")
	}
}

func TestNewTensorAccepts(t *testing.T) {
	t.Parallel()

	d, err := NewTensor(make([]byte, 24), []int{2, 3}, DTypeF32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ItemCount() != 6 {
		t.Fatalf("expected 6 elements, got %d", d.ItemCount())
	}
}

func TestNewTextRejectsInvalidUTF8(t *testing.T) {
	t.Parallel()

	_, err := NewText(string([]byte{0xff, 0xfe, 0xfd}), "")
	if err == nil {
		t.Fatal("expected error for invalid utf-8")
	}
	var ce *pkgerrors.ContextualError
	if errors.As(err, &ce) {
		if ce.Details["byte_offset"] != 0 {
			t.Fatalf("expected byte_offset 0, got %v", ce.Details["byte_offset"])
		}
	}
}

func TestAudioChannelsMustBePositive(t *testing.T) {
	t.Parallel()

	if _, err := NewAudio([]float32{1}, 16000, 1, AudioFormatF32); err != nil {
		t.Fatalf("unexpected error for valid audio: %v", err)
	}
}

func TestCloneSharesBytesButNotHeaders(t *testing.T) {
	t.Parallel()

	original, err := NewAudio([]float32{1, 2, 3}, 16000, 1, AudioFormatF32)
	if err != nil {
		t.Fatal(err)
	}
	clone := original.Clone()
	clone.Audio.SampleRate = 8000

	if original.Audio.SampleRate != 16000 {
		t.Fatal("mutating clone's header mutated original")
	}
}

func TestWireRoundTripAudio(t *testing.T) {
	t.Parallel()

	data, err := NewAudio([]float32{0.1, -0.2, 0.3, 0.4}, 16000, 1, AudioFormatF32)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := EncodeWire("sess-1", 12345, data)
	if err != nil {
		t.Fatal(err)
	}

	sessionID, ts, decoded, err := DecodeWire(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if sessionID != "sess-1" || ts != 12345 {
		t.Fatalf("envelope mismatch: session=%q ts=%d", sessionID, ts)
	}
	if decoded.Audio.SampleRate != 16000 || decoded.Audio.Channels != 1 {
		t.Fatalf("audio header mismatch: %+v", decoded.Audio)
	}
	if len(decoded.Audio.Samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(decoded.Audio.Samples))
	}
	for i, s := range decoded.Audio.Samples {
		if s != data.Audio.Samples[i] {
			t.Fatalf("sample %d mismatch: got %v want %v", i, s, data.Audio.Samples[i])
		}
	}
}

func TestWireRoundTripText(t *testing.T) {
	t.Parallel()

	data, err := NewText("hello world", "en")
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := EncodeWire("s", 0, data)
	if err != nil {
		t.Fatal(err)
	}
	_, _, decoded, err := DecodeWire(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Text != "hello world" {
		t.Fatalf("expected round-tripped text, got %q", decoded.Text)
	}
}

func TestWireRoundTripEmpty(t *testing.T) {
	t.Parallel()

	encoded, err := EncodeWire("s", 0, Empty())
	if err != nil {
		t.Fatal(err)
	}
	_, _, decoded, err := DecodeWire(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Type != DataTypeEmpty {
		t.Fatalf("expected empty, got %v", decoded.Type)
	}
}

func TestWireRoundTripTensor(t *testing.T) {
	t.Parallel()

	bytes := make([]byte, 24)
	for i := range bytes {
		bytes[i] = byte(i)
	}
	data, err := NewTensor(bytes, []int{2, 3}, DTypeF32)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := EncodeWire("sess-1", 999, data)
	if err != nil {
		t.Fatal(err)
	}

	_, _, decoded, err := DecodeWire(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Tensor.DType != DTypeF32 {
		t.Fatalf("dtype mismatch: got %v want %v", decoded.Tensor.DType, DTypeF32)
	}
	if len(decoded.Tensor.Shape) != 2 || decoded.Tensor.Shape[0] != 2 || decoded.Tensor.Shape[1] != 3 {
		t.Fatalf("shape mismatch: got %v want [2 3]", decoded.Tensor.Shape)
	}
	if !bytesEqual(decoded.Tensor.Bytes, bytes) {
		t.Fatalf("tensor bytes mismatch: got %v want %v", decoded.Tensor.Bytes, bytes)
	}
}

func TestWireRoundTripTensorZeroDims(t *testing.T) {
	t.Parallel()

	data, err := NewTensor([]byte{7}, []int{}, DTypeU8)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := EncodeWire("s", 0, data)
	if err != nil {
		t.Fatal(err)
	}
	_, _, decoded, err := DecodeWire(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded.Tensor.Shape) != 0 {
		t.Fatalf("expected empty shape, got %v", decoded.Tensor.Shape)
	}
	if !bytesEqual(decoded.Tensor.Bytes, []byte{7}) {
		t.Fatalf("tensor bytes mismatch: got %v", decoded.Tensor.Bytes)
	}
}

func TestWireRoundTripVideo(t *testing.T) {
	t.Parallel()

	pixels := make([]byte, 4*4*3)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	data, err := NewVideo(pixels, 4, 4, PixelFormatRGB24, 0)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := EncodeWire("s", 42, data)
	if err != nil {
		t.Fatal(err)
	}
	_, _, decoded, err := DecodeWire(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Video.Width != 4 || decoded.Video.Height != 4 || decoded.Video.Format != PixelFormatRGB24 {
		t.Fatalf("video header mismatch: %+v", decoded.Video)
	}
	if !bytesEqual(decoded.Video.Pixels, pixels) {
		t.Fatalf("video pixel mismatch: got %v want %v", decoded.Video.Pixels, pixels)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDecodeWireRejectsTruncatedBuffer(t *testing.T) {
	t.Parallel()

	if _, _, _, err := DecodeWire([]byte{1, 0}); err == nil {
		t.Fatal("expected error on truncated buffer")
	}
}

func TestDataPacketPortTagging(t *testing.T) {
	t.Parallel()

	p := DataPacket{SessionID: "s1"}
	tagged := p.WithPort("audio_in")
	if tagged.Port() != "audio_in" {
		t.Fatalf("expected port audio_in, got %q", tagged.Port())
	}
	if p.Port() != "" {
		t.Fatal("original packet must not be mutated")
	}
}
