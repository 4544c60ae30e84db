// Package vad implements the stateful voice-activity detector: per-frame
// speech classification with onset/offset boundary events and a pre-roll
// prefix, as a small owned-state struct driven one frame at a time.
package vad

import (
	"time"

	"github.com/team-hashing/whispersidecar/pkg/pcm"
)

const (
	preRollCapacity = 30 // 300ms of pre-roll history
	onsetFrames     = 30 // 300ms of continuous speech confirms onset
	offsetFrames    = 50 // 500ms of continuous silence confirms offset
)

// EventType discriminates the two boundary events the detector can emit.
type EventType string

const (
	SpeechStart EventType = "speech_start"
	SpeechEnd   EventType = "speech_end"
)

// Segment is the accumulated audio for one utterance, bounded by a
// speech_start and speech_end event.
type Segment struct {
	Audio      []byte
	DurationMS int64
}

// Event is the boundary notification returned by Process. Exactly one of
// PreRoll (on SpeechStart) or Segment (on SpeechEnd) is populated.
type Event struct {
	Type        EventType
	TimestampMS int64
	PreRoll     []byte
	Segment     Segment
}

// nowMS is replaced in tests to make onset/offset timing deterministic.
var nowMS = func() int64 { return time.Now().UnixMilli() }

// Detector is the owned, per-stream VAD state machine. It is not safe for
// concurrent use from more than one goroutine.
type Detector struct {
	classifier FrameClassifier

	ring     [][]byte // ring buffer of the last preRollCapacity frames
	ringPos  int
	ringFull bool

	inSpeech   bool
	speechRun  int
	silenceRun int
	segment    []byte
}

// NewDetector builds a Detector classifying frames at the fixed level-2
// aggressiveness.
func NewDetector() *Detector {
	return NewDetectorWithClassifier(NewEnergyClassifier(AggressivenessDefault))
}

// NewDetectorWithClassifier allows substituting the frame classifier (used
// by tests to drive deterministic speech/silence sequences).
func NewDetectorWithClassifier(c FrameClassifier) *Detector {
	return &Detector{
		classifier: c,
		ring:       make([][]byte, preRollCapacity),
	}
}

// SplitIntoFrames partitions a byte buffer into frames; see pcm.SplitIntoFrames.
func SplitIntoFrames(buf []byte) []pcm.Frame {
	return pcm.SplitIntoFrames(buf)
}

// InSpeech reports whether the detector currently believes speech is
// ongoing: a speech_start has been emitted with no speech_end after it.
func (d *Detector) InSpeech() bool {
	return d.inSpeech
}

// HasBufferedSpeech reports whether speech is ongoing or onset-confirmation
// frames have started accumulating before speech_start is emitted. The
// pipeline consults this alongside InSpeech before emitting no_speech, to
// avoid a false negative mid-confirmation.
func (d *Detector) HasBufferedSpeech() bool {
	return d.inSpeech || d.speechRun > 0
}

// CurrentSegmentSnapshot returns a copy of the segment buffer accumulated
// so far in the current utterance (including pre-roll and the triggering
// frame). It returns nil when not in_speech. Used by the audio pipeline to
// request partial transcriptions on the entire segment so far.
func (d *Detector) CurrentSegmentSnapshot() []byte {
	if !d.inSpeech {
		return nil
	}
	out := make([]byte, len(d.segment))
	copy(out, d.segment)
	return out
}

// pushPreRoll appends a frame to the sliding pre-roll ring buffer.
func (d *Detector) pushPreRoll(frame []byte) {
	d.ring[d.ringPos] = frame
	d.ringPos = (d.ringPos + 1) % preRollCapacity
	if d.ringPos == 0 {
		d.ringFull = true
	}
}

// preRollSnapshot returns the buffered pre-roll frames in chronological
// order (oldest first).
func (d *Detector) preRollSnapshot() [][]byte {
	if !d.ringFull {
		out := make([][]byte, d.ringPos)
		copy(out, d.ring[:d.ringPos])
		return out
	}
	out := make([][]byte, preRollCapacity)
	copy(out, d.ring[d.ringPos:])
	copy(out[preRollCapacity-d.ringPos:], d.ring[:d.ringPos])
	return out
}

// Process classifies one frame and returns a boundary event if onset or
// offset was just confirmed.
func (d *Detector) Process(frame pcm.Frame) (*Event, error) {
	isSpeech, err := d.classifier.IsSpeech(frame)
	if err != nil {
		isSpeech = false
	}

	raw := frame.Bytes()

	if !d.inSpeech {
		if isSpeech {
			d.speechRun++
		} else {
			d.speechRun = 0
		}

		if d.speechRun >= onsetFrames {
			// Pre-roll is the 30 frames strictly preceding this triggering
			// frame — read the snapshot before pushing the current frame in.
			preRoll := flatten(d.preRollSnapshot())
			d.inSpeech = true
			d.silenceRun = 0

			// Seed the segment buffer with the pre-roll plus the triggering
			// frame.
			d.segment = append(append([]byte{}, preRoll...), raw...)
			d.pushPreRoll(raw)

			return &Event{
				Type:        SpeechStart,
				TimestampMS: nowMS(),
				PreRoll:     preRoll,
			}, nil
		}

		// Pre-roll is a sliding window: every non-speech frame during onset
		// confirmation still slides in, it never drains.
		d.pushPreRoll(raw)
		return nil, nil
	}

	// in_speech: every frame (speech or silence) is appended to the segment.
	d.segment = append(d.segment, raw...)

	if isSpeech {
		d.silenceRun = 0
		return nil, nil
	}

	d.silenceRun++
	if d.silenceRun >= offsetFrames {
		segment := Segment{
			Audio:      d.segment,
			DurationMS: pcm.DurationMS(len(d.segment)),
		}
		d.inSpeech = false
		d.silenceRun = 0
		d.speechRun = 0
		d.segment = nil
		d.ringFull = false
		d.ringPos = 0

		return &Event{
			Type:        SpeechEnd,
			TimestampMS: nowMS(),
			Segment:     segment,
		}, nil
	}

	return nil, nil
}

func flatten(chunks [][]byte) []byte {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
