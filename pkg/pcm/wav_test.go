package pcm

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWavBufferHeader(t *testing.T) {
	samples := make([]byte, FrameBytes*2)
	wav := WavBuffer(samples, SampleRate)

	if len(wav) != 44+len(samples) {
		t.Fatalf("expected 44-byte header plus payload, got %d bytes", len(wav))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(samples)) {
		t.Errorf("chunk size = %d, want %d", got, 36+len(samples))
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != SampleRate {
		t.Errorf("sample rate = %d, want %d", got, SampleRate)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want mono", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(samples)) {
		t.Errorf("data size = %d, want %d", got, len(samples))
	}
	if !bytes.Equal(wav[44:], samples) {
		t.Fatal("payload diverges from input samples")
	}
}
