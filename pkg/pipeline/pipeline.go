// Package pipeline bridges VAD boundary events to STT calls, schedules
// mid-utterance partial transcriptions on a frame-count basis, and records
// latency metrics. A single owned-state struct is driven frame-by-frame,
// with no cooperative sleeping anywhere in the loop.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/team-hashing/whispersidecar/pkg/pcm"
	"github.com/team-hashing/whispersidecar/pkg/sttengine"
	"github.com/team-hashing/whispersidecar/pkg/vad"
)

const (
	firstPartialFrames      = 10  // 100ms
	subsequentPartialFrames = 100 // 1000ms
)

// EventType discriminates the events On Frame can return.
type EventType string

const (
	EventSpeechStart EventType = "speech_start"
	EventPartial     EventType = "partial_text"
	EventFinal       EventType = "final_text"
	EventError       EventType = "error"
)

// LatencyMetrics carries the timings every transcription event reports.
type LatencyMetrics struct {
	WhisperProcessingMS int64
	EndToEndLatencyMS   int64
	IsFirstPartial      bool
}

// Event is a single pipeline output. Exactly one of the typed payload
// fields is populated, matching the Type.
type Event struct {
	Type          EventType
	TimestampMS   int64 // populated for EventSpeechStart
	Transcription sttengine.Transcription
	Latency       LatencyMetrics
	Message       string // populated for EventError
}

// nowMS is replaced in tests for deterministic latency assertions.
var nowMS = func() int64 { return time.Now().UnixMilli() }

// Pipeline owns the VAD detector and STT facade for a single stream. It is
// not safe for concurrent use; its buffers belong to a single task.
type Pipeline struct {
	vad *vad.Detector
	stt *sttengine.Facade

	framesSincePartial int
	firstPartialSent   bool
	vadSpeechStartMS   int64
	vadSpeechEndMS     int64
	lastPartialAtMS    int64
}

// New builds a Pipeline around the given detector and STT facade.
func New(detector *vad.Detector, stt *sttengine.Facade) *Pipeline {
	return &Pipeline{vad: detector, stt: stt}
}

// InSpeech reports the underlying VAD's speech state.
func (p *Pipeline) InSpeech() bool {
	return p.vad.InSpeech()
}

// HasBufferedSpeech reports whether the VAD has buffered speech (including
// mid-onset-confirmation) that hasn't produced a boundary event yet.
func (p *Pipeline) HasBufferedSpeech() bool {
	return p.vad.HasBufferedSpeech()
}

// OnFrame processes one frame through the VAD and, depending on the
// resulting boundary event and frame-count thresholds, returns at most one
// pipeline event. STT failures are caught and surfaced as an error event;
// they never alter VAD state.
func (p *Pipeline) OnFrame(ctx context.Context, frame pcm.Frame) (*Event, error) {
	event, err := p.vad.Process(frame)
	if err != nil {
		return &Event{Type: EventError, Message: fmt.Sprintf("vad error: %v", err)}, nil
	}

	if event == nil {
		if p.vad.InSpeech() {
			return p.maybePartial(ctx)
		}
		return nil, nil
	}

	switch event.Type {
	case vad.SpeechStart:
		p.framesSincePartial = 0
		p.firstPartialSent = false
		p.vadSpeechStartMS = event.TimestampMS
		p.lastPartialAtMS = event.TimestampMS
		return &Event{Type: EventSpeechStart, TimestampMS: event.TimestampMS}, nil

	case vad.SpeechEnd:
		p.vadSpeechEndMS = event.TimestampMS
		return p.runFinal(ctx, event.Segment.Audio)
	}

	return nil, nil
}

// maybePartial increments the frame counter and, if a threshold is reached,
// requests a partial transcription of the segment buffer so far.
func (p *Pipeline) maybePartial(ctx context.Context) (*Event, error) {
	p.framesSincePartial++

	threshold := subsequentPartialFrames
	if !p.firstPartialSent {
		threshold = firstPartialFrames
	}

	if p.framesSincePartial < threshold {
		return nil, nil
	}

	segment := p.vad.CurrentSegmentSnapshot()
	p.framesSincePartial = 0

	deliveryTS := nowMS()
	result, err := p.stt.Transcribe(ctx, segment)
	if err != nil {
		return &Event{Type: EventError, Message: fmt.Sprintf("transcription failed: %v", err)}, nil
	}
	result.IsFinal = false

	isFirst := !p.firstPartialSent
	var latencyBase int64
	if isFirst {
		latencyBase = p.vadSpeechStartMS
	} else {
		latencyBase = p.lastPartialAtMS
	}

	p.firstPartialSent = true
	p.lastPartialAtMS = deliveryTS

	return &Event{
		Type:          EventPartial,
		Transcription: result,
		Latency: LatencyMetrics{
			WhisperProcessingMS: result.ProcessingTimeMS,
			EndToEndLatencyMS:   deliveryTS - latencyBase,
			IsFirstPartial:      isFirst,
		},
	}, nil
}

// runFinal requests the final transcription on the full segment and resets
// all partial-scheduling state.
func (p *Pipeline) runFinal(ctx context.Context, segment []byte) (*Event, error) {
	p.framesSincePartial = 0
	p.firstPartialSent = false

	deliveryTS := nowMS()
	result, err := p.stt.Transcribe(ctx, segment)
	if err != nil {
		return &Event{Type: EventError, Message: fmt.Sprintf("transcription failed: %v", err)}, nil
	}
	result.IsFinal = true

	return &Event{
		Type:          EventFinal,
		Transcription: result,
		Latency: LatencyMetrics{
			WhisperProcessingMS: result.ProcessingTimeMS,
			EndToEndLatencyMS:   deliveryTS - p.vadSpeechEndMS,
		},
	}, nil
}
