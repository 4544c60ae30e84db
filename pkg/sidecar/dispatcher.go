// Package sidecar composes the transport, audio pipeline, STT engine and
// resource monitor behind a message dispatcher: routing inbound requests,
// translating component errors into wire error codes, and emitting outbound
// events.
package sidecar

import (
	"context"
	"errors"
	"fmt"

	"github.com/team-hashing/whispersidecar/pkg/ipc"
	"github.com/team-hashing/whispersidecar/pkg/pcm"
	"github.com/team-hashing/whispersidecar/pkg/pipeline"
	"github.com/team-hashing/whispersidecar/pkg/sttengine"
)

// Writer is the narrow outbound contract the dispatcher depends on,
// satisfied by *ipc.Channel.
type Writer interface {
	Write(msg interface{}) error
}

// upgrader is the narrow contract the dispatcher needs from the resource
// monitor to service approve_upgrade requests.
type upgrader interface {
	ApproveUpgrade(ctx context.Context, target sttengine.ModelSize, load func(context.Context, sttengine.ModelSize) (sttengine.ModelSize, error)) (sttengine.ModelSize, bool, error)
}

// Dispatcher routes inbound IPC messages to C2-C5 and writes the resulting
// responses/events/errors back out over the channel.
type Dispatcher struct {
	ch       Writer
	pipeline *pipeline.Pipeline
	stt      *sttengine.Facade
	mon      upgrader
	logger   Logger

	shuttingDown bool
}

// NewDispatcher wires the dispatcher's collaborators.
func NewDispatcher(ch Writer, p *pipeline.Pipeline, stt *sttengine.Facade, mon upgrader, logger Logger) *Dispatcher {
	if logger == nil {
		logger = NoOpLogger{}
	}
	return &Dispatcher{ch: ch, pipeline: p, stt: stt, mon: mon, logger: logger}
}

// ShuttingDown reports whether a shutdown message has been received; the
// inbound loop checks this after each dispatched message to decide whether
// to keep reading.
func (d *Dispatcher) ShuttingDown() bool {
	return d.shuttingDown
}

// ReportProtocolError surfaces a framing-level failure (oversize message,
// malformed JSON) that occurred before a request id could be parsed.
func (d *Dispatcher) ReportProtocolError(code ErrorCode, err error) {
	d.writeError("", code, err.Error(), true)
}

// Dispatch handles one already-parsed inbound message.
func (d *Dispatcher) Dispatch(ctx context.Context, in *ipc.Inbound) {
	switch in.Type {
	case "request":
		d.dispatchRequest(ctx, in)
	case "ping":
		if err := d.ch.Write(ipc.NewPong(in.ID)); err != nil {
			d.logger.Error("ipc: failed to write pong", "error", err)
		}
	case "shutdown":
		d.shuttingDown = true
	default:
		d.writeError(in.ID, CodeUnknownType, fmt.Sprintf("%v: %q", ErrUnknownType, in.Type), true)
	}
}

func (d *Dispatcher) dispatchRequest(ctx context.Context, in *ipc.Inbound) {
	switch in.Method {
	case "process_audio":
		d.handleProcessAudio(ctx, in)
	case "process_audio_stream":
		d.handleProcessAudioStream(ctx, in)
	case "approve_upgrade":
		d.handleApproveUpgrade(ctx, in)
	case "stop_processing":
		d.handleStopProcessing(in)
	default:
		d.writeError(in.ID, CodeUnknownMethod, fmt.Sprintf("%v: %q", ErrUnknownMethod, in.Method), true)
	}
}

// handleProcessAudio runs a direct, non-streaming transcription on the
// whole buffer and replies with a single response.
func (d *Dispatcher) handleProcessAudio(ctx context.Context, in *ipc.Inbound) {
	params, ok := d.parseAudioParams(in)
	if !ok {
		return
	}

	result, err := d.stt.Transcribe(ctx, params.AudioData)
	if err != nil {
		d.writeComponentError(in.ID, err)
		return
	}
	result.IsFinal = true

	if err := d.ch.Write(ipc.NewResponse(in.ID, result)); err != nil {
		d.logger.Error("ipc: failed to write response", "error", err)
	}
}

// handleProcessAudioStream feeds the buffer frame-by-frame through the
// pipeline, emitting events as they occur. A stream request never produces
// a response: the terminating message is always an event (a
// final_text/speech_end pair, or a standalone no_speech).
func (d *Dispatcher) handleProcessAudioStream(ctx context.Context, in *ipc.Inbound) {
	params, ok := d.parseAudioParams(in)
	if !ok {
		return
	}

	frames := pcm.SplitIntoFrames(params.AudioData)

	emittedAny := false
	for _, frame := range frames {
		event, err := d.pipeline.OnFrame(ctx, frame)
		if err != nil {
			d.writeComponentError(in.ID, err)
			return
		}
		if event == nil {
			continue
		}
		emittedAny = true
		if event.Type == pipeline.EventError {
			// A mid-stream STT failure terminates the stream for this
			// request; the pipeline itself stays usable for the next one.
			d.writeError(in.ID, CodeAudioPipelineError, event.Message, true)
			return
		}
		d.emitPipelineEvent(in.ID, event)
	}

	if !emittedAny && !d.pipeline.InSpeech() && !d.pipeline.HasBufferedSpeech() {
		if err := d.ch.Write(ipc.NewEvent("no_speech", map[string]interface{}{
			"requestId": in.ID,
		})); err != nil {
			d.logger.Error("ipc: failed to write no_speech event", "error", err)
		}
	}
}

func (d *Dispatcher) emitPipelineEvent(requestID string, event *pipeline.Event) {
	var eventType string
	var data interface{}

	switch event.Type {
	case pipeline.EventSpeechStart:
		eventType = "speech_start"
		data = map[string]interface{}{"requestId": requestID, "timestampMs": event.TimestampMS}
	case pipeline.EventPartial:
		eventType = "partial_text"
		data = map[string]interface{}{
			"requestId":     requestID,
			"transcription": event.Transcription,
			"latency":       event.Latency,
		}
	case pipeline.EventFinal:
		eventType = "final_text"
		data = map[string]interface{}{
			"requestId":     requestID,
			"transcription": event.Transcription,
			"latency":       event.Latency,
		}
	default:
		return
	}

	if err := d.ch.Write(ipc.NewEvent(eventType, data)); err != nil {
		d.logger.Error("ipc: failed to write event", "error", err)
	}

	// final_text is always immediately followed by speech_end for the
	// utterance it closes.
	if event.Type == pipeline.EventFinal {
		if err := d.ch.Write(ipc.NewEvent("speech_end", map[string]interface{}{"requestId": requestID})); err != nil {
			d.logger.Error("ipc: failed to write speech_end event", "error", err)
		}
	}
}

func (d *Dispatcher) handleApproveUpgrade(ctx context.Context, in *ipc.Inbound) {
	var params ipc.ApproveUpgradeParams
	if err := unmarshalParams(in.Params, &params); err != nil || params.TargetModel == "" {
		d.writeError(in.ID, CodeMissingParameter, fmt.Sprintf("%v: target_model", ErrMissingParameter), true)
		return
	}

	target := sttengine.ModelSize(params.TargetModel)
	if !sttengine.Valid(target) {
		d.writeError(in.ID, CodeMissingParameter, fmt.Sprintf("unknown model size %q", params.TargetModel), true)
		return
	}

	old := d.stt.CurrentModel()
	actual, fallback, err := d.mon.ApproveUpgrade(ctx, target, d.stt.LoadModel)
	if err != nil {
		d.writeComponentError(in.ID, err)
		return
	}

	// Events first: everything produced while handling a request precedes
	// its response on the wire.
	if actual != old {
		d.writeEventOrLog("model_change", map[string]interface{}{"old_model": old, "new_model": actual})
	}
	if fallback {
		d.writeEventOrLog("upgrade_fallback", map[string]interface{}{"new_model": actual, "requested_model": target})
	} else {
		d.writeEventOrLog("upgrade_success", map[string]interface{}{"new_model": actual})
	}

	result := map[string]interface{}{
		"success":           !fallback,
		"new_model":         actual,
		"requested_model":   target,
		"fallback_occurred": fallback,
	}
	if err := d.ch.Write(ipc.NewResponse(in.ID, result)); err != nil {
		d.logger.Error("ipc: failed to write response", "error", err)
	}
}

func (d *Dispatcher) handleStopProcessing(in *ipc.Inbound) {
	if err := d.ch.Write(ipc.NewResponse(in.ID, map[string]string{"status": "acknowledged"})); err != nil {
		d.logger.Error("ipc: failed to write response", "error", err)
	}
}

func (d *Dispatcher) parseAudioParams(in *ipc.Inbound) (ipc.ProcessAudioParams, bool) {
	var params ipc.ProcessAudioParams
	if err := unmarshalParams(in.Params, &params); err != nil {
		d.writeError(in.ID, CodeMissingParameter, fmt.Sprintf("%v: audio_data", ErrMissingParameter), true)
		return params, false
	}
	return params, true
}

// writeComponentError translates a component package's categorical error
// into its wire code and recoverability.
func (d *Dispatcher) writeComponentError(id string, err error) {
	switch {
	case errors.Is(err, sttengine.ErrInvalidAudio):
		d.writeError(id, CodeInvalidAudio, err.Error(), true)
	case errors.Is(err, sttengine.ErrModelNotFound):
		d.writeError(id, CodeModelNotFound, err.Error(), false)
	case errors.Is(err, sttengine.ErrModelLoadFailed):
		d.writeError(id, CodeModelLoadError, err.Error(), false)
	default:
		d.writeError(id, CodeInternalError, err.Error(), false)
	}
}

func (d *Dispatcher) writeError(id string, code ErrorCode, message string, recoverable bool) {
	if err := d.ch.Write(ipc.NewError(id, string(code), message, recoverable)); err != nil {
		d.logger.Error("ipc: failed to write error", "error", err)
	}
}

func (d *Dispatcher) writeEventOrLog(eventType string, data interface{}) {
	if err := d.ch.Write(ipc.NewEvent(eventType, data)); err != nil {
		d.logger.Error("ipc: failed to write event", "eventType", eventType, "error", err)
	}
}
