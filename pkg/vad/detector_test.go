package vad

import (
	"testing"

	"github.com/team-hashing/whispersidecar/pkg/pcm"
)

// fixedClassifier reports a fixed speech/non-speech verdict for every frame.
type fixedClassifier struct {
	speech bool
	err    error
}

func (c *fixedClassifier) IsSpeech(pcm.Frame) (bool, error) { return c.speech, c.err }

// scriptedClassifier replays a fixed sequence of verdicts, then repeats the
// last one once exhausted.
type scriptedClassifier struct {
	verdicts []bool
	i        int
}

func (c *scriptedClassifier) IsSpeech(pcm.Frame) (bool, error) {
	if c.i >= len(c.verdicts) {
		return c.verdicts[len(c.verdicts)-1], nil
	}
	v := c.verdicts[c.i]
	c.i++
	return v, nil
}

func frameN(b byte) pcm.Frame {
	data := make([]byte, pcm.FrameBytes)
	for i := range data {
		data[i] = b
	}
	f, _ := pcm.NewFrame(data)
	return f
}

func feedFrames(t *testing.T, d *Detector, n int, speech bool) (lastEvent *Event) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev, err := d.Process(frameN(byte(i)))
		if err != nil {
			t.Fatalf("Process returned error: %v", err)
		}
		if ev != nil {
			lastEvent = ev
		}
	}
	return lastEvent
}

func TestSplitIntoFramesDiscardsTrailingRemainder(t *testing.T) {
	frames := SplitIntoFrames(make([]byte, pcm.FrameBytes*3+10))
	if len(frames) != 3 {
		t.Fatalf("expected 3 complete frames, got %d", len(frames))
	}
}

func Test29SpeechFramesNoOnset(t *testing.T) {
	d := NewDetectorWithClassifier(&fixedClassifier{speech: true})
	if ev := feedFrames(t, d, 29, true); ev != nil {
		t.Fatalf("expected no event at 29 consecutive speech frames, got %v", ev.Type)
	}
	if d.InSpeech() {
		t.Fatal("expected in_speech=false at 29 frames")
	}
}

func Test30SpeechFramesTriggersOnset(t *testing.T) {
	d := NewDetectorWithClassifier(&fixedClassifier{speech: true})
	var last *Event
	for i := 0; i < 30; i++ {
		ev, err := d.Process(frameN(byte(i)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if i < 29 && ev != nil {
			t.Fatalf("unexpected event on frame %d: %v", i, ev.Type)
		}
		if i == 29 {
			last = ev
		}
	}
	if last == nil || last.Type != SpeechStart {
		t.Fatalf("expected speech_start on the 30th frame, got %v", last)
	}
	if !d.InSpeech() {
		t.Fatal("expected in_speech=true after onset")
	}
}

func Test49SilenceFramesAfterOnsetNoOffset(t *testing.T) {
	d := NewDetectorWithClassifier(&fixedClassifier{speech: true})
	feedFrames(t, d, 30, true)

	d.classifier = &fixedClassifier{speech: false}
	if ev := feedFrames(t, d, 49, false); ev != nil {
		t.Fatalf("expected no event at 49 silence frames, got %v", ev.Type)
	}
	if !d.InSpeech() {
		t.Fatal("expected in_speech=true to persist through 49 silence frames")
	}
}

func Test50SilenceFramesTriggersOffset(t *testing.T) {
	d := NewDetectorWithClassifier(&fixedClassifier{speech: true})
	feedFrames(t, d, 30, true)

	d.classifier = &fixedClassifier{speech: false}
	var last *Event
	for i := 0; i < 50; i++ {
		ev, err := d.Process(frameN(byte(i)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if i == 49 {
			last = ev
		}
	}
	if last == nil || last.Type != SpeechEnd {
		t.Fatalf("expected speech_end on the 50th silence frame, got %v", last)
	}
	if d.InSpeech() {
		t.Fatal("expected in_speech=false after offset")
	}

	// duration_ms must equal 10 * total frame count from onset to offset
	// inclusive of the silence tail: 30 onset + 50 silence = 80 frames = 800ms.
	if last.Segment.DurationMS != 800 {
		t.Fatalf("expected segment duration 800ms, got %d", last.Segment.DurationMS)
	}
}

func TestNonSpeechDuringOnsetResetsRunButNotPreRoll(t *testing.T) {
	d := NewDetectorWithClassifier(&scriptedClassifier{})
	c := d.classifier.(*scriptedClassifier)

	// 20 speech frames, 1 silence frame (resets speech_run), then 30 speech
	// frames should be required again from scratch.
	c.verdicts = append(c.verdicts, repeat(true, 20)...)
	c.verdicts = append(c.verdicts, false)
	c.verdicts = append(c.verdicts, repeat(true, 29)...)

	ev := feedFrames(t, d, len(c.verdicts), true)
	if ev != nil {
		t.Fatalf("expected no speech_start yet (speech_run reset by the silence frame), got %v", ev.Type)
	}
	if d.speechRun != 29 {
		t.Fatalf("expected speech_run=29 after the reset sequence, got %d", d.speechRun)
	}

	// pre-roll keeps sliding during onset confirmation even across the
	// silence frame; it should hold the most recent 30 frames, not drain.
	snap := d.preRollSnapshot()
	if len(snap) != preRollCapacity {
		t.Fatalf("expected pre-roll to stay full at capacity %d, got %d", preRollCapacity, len(snap))
	}
}

func TestSpeechFrameDuringOffsetDoesNotTruncateSegment(t *testing.T) {
	d := NewDetectorWithClassifier(&scriptedClassifier{})
	c := d.classifier.(*scriptedClassifier)
	c.verdicts = repeat(true, 30)
	feedFrames(t, d, 30, true)

	// 30 silence frames, then one speech frame (resets silence_run), then 50
	// more silence frames to trigger offset.
	c.verdicts = append(repeat(false, 30), true)
	c.verdicts = append(c.verdicts, repeat(false, 50)...)
	c.i = 0

	var last *Event
	total := len(c.verdicts)
	for i := 0; i < total; i++ {
		ev, err := d.Process(frameN(byte(i)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev != nil {
			last = ev
		}
	}
	if last == nil || last.Type != SpeechEnd {
		t.Fatalf("expected an eventual speech_end, got %v", last)
	}
	// segment includes every frame from onset through emission, including
	// the silence tail and the interrupting speech frame: 30 + 30 + 1 + 50.
	wantFrames := 30 + 30 + 1 + 50
	if got := len(last.Segment.Audio) / pcm.FrameBytes; got != wantFrames {
		t.Fatalf("expected segment to retain %d frames, got %d", wantFrames, got)
	}
}

func TestClassifierErrorTreatedAsNonSpeech(t *testing.T) {
	d := NewDetectorWithClassifier(&fixedClassifier{speech: true, err: errBoom})
	ev, err := d.Process(frameN(0))
	if err != nil {
		t.Fatalf("Process should not propagate classifier errors: %v", err)
	}
	if ev != nil {
		t.Fatalf("a single frame treated as non-speech should not emit an event, got %v", ev.Type)
	}
	if d.speechRun != 0 {
		t.Fatalf("expected speech_run=0 after an errored (non-speech) frame, got %d", d.speechRun)
	}
}

func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "classifier boom" }
