// Package pcm defines the audio frame type shared by the VAD, pipeline and
// STT facade, plus WAV container helpers for host interop and debug dumps.
package pcm

import "fmt"

// FrameBytes is the size in bytes of one 10ms frame of 16-bit signed
// little-endian PCM mono audio at 16000 Hz (320 == 16000 * 0.010 * 2).
const FrameBytes = 320

// SampleRate is the fixed sample rate the VAD and STT facade operate on.
const SampleRate = 16000

// FrameDurationMS is the duration in milliseconds of a single frame.
const FrameDurationMS = 10

// Frame is an immutable 10ms chunk of 16-bit PCM mono audio.
type Frame struct {
	data []byte
}

// NewFrame wraps exactly FrameBytes of PCM data as a Frame. It copies the
// input so callers may reuse their buffer.
func NewFrame(data []byte) (Frame, error) {
	if len(data) != FrameBytes {
		return Frame{}, fmt.Errorf("pcm: frame must be %d bytes, got %d", FrameBytes, len(data))
	}
	cp := make([]byte, FrameBytes)
	copy(cp, data)
	return Frame{data: cp}, nil
}

// Bytes returns the frame's raw PCM payload. Callers must not mutate it.
func (f Frame) Bytes() []byte {
	return f.data
}

// SplitIntoFrames partitions a byte buffer into complete FrameBytes-sized
// frames. Any trailing remainder shorter than a full frame is discarded.
func SplitIntoFrames(buf []byte) []Frame {
	n := len(buf) / FrameBytes
	frames := make([]Frame, 0, n)
	for i := 0; i < n; i++ {
		start := i * FrameBytes
		data := make([]byte, FrameBytes)
		copy(data, buf[start:start+FrameBytes])
		frames = append(frames, Frame{data: data})
	}
	return frames
}

// DurationMS returns the playback duration, in milliseconds, of a PCM buffer
// of the given byte length at the fixed frame rate.
func DurationMS(byteLen int) int64 {
	return int64(byteLen/FrameBytes) * FrameDurationMS
}
