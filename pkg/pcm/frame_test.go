package pcm

import "testing"

func TestSplitIntoFramesExactMultiple(t *testing.T) {
	buf := make([]byte, FrameBytes*3)
	for i := range buf {
		buf[i] = byte(i)
	}

	frames := SplitIntoFrames(buf)
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if len(f.Bytes()) != FrameBytes {
			t.Errorf("frame %d: expected %d bytes, got %d", i, FrameBytes, len(f.Bytes()))
		}
	}

	concat := append(append([]byte{}, frames[0].Bytes()...), frames[1].Bytes()...)
	concat = append(concat, frames[2].Bytes()...)
	for i, b := range concat {
		if buf[i] != b {
			t.Fatalf("concatenation diverges from input at byte %d", i)
		}
	}
}

func TestSplitIntoFramesDiscardsRemainder(t *testing.T) {
	buf := make([]byte, FrameBytes*2+100)
	frames := SplitIntoFrames(buf)
	if len(frames) != 2 {
		t.Fatalf("expected 2 complete frames, got %d", len(frames))
	}
}

func TestSplitIntoFramesEmpty(t *testing.T) {
	if frames := SplitIntoFrames(nil); len(frames) != 0 {
		t.Fatalf("expected 0 frames for nil input, got %d", len(frames))
	}
}

func TestNewFrameRejectsWrongLength(t *testing.T) {
	if _, err := NewFrame(make([]byte, FrameBytes-1)); err == nil {
		t.Fatal("expected an error for a short buffer")
	}
}

func TestDurationMS(t *testing.T) {
	cases := []struct {
		bytes int
		want  int64
	}{
		{0, 0},
		{FrameBytes, 10},
		{FrameBytes * 30, 300},
		{FrameBytes*30 + 50*FrameBytes, 800},
	}
	for _, c := range cases {
		if got := DurationMS(c.bytes); got != c.want {
			t.Errorf("DurationMS(%d) = %d, want %d", c.bytes, got, c.want)
		}
	}
}
