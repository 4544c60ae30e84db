package sttengine

import (
	"context"
	"fmt"
	"os"
)

// StubBackend is a placeholder Backend used for default process wiring and
// tests. It stands in for the third-party Whisper-family inference library,
// so it never decodes real audio: every transcription is an empty transcript
// with zero confidence (the Facade fills in the model size). A production deployment replaces this with
// a CGo or HTTP binding to the actual inference engine.
type StubBackend struct{}

// NewStubBackend returns a Backend that "loads" by checking the source is
// reachable (local directory exists, or any remote id is accepted) without
// doing real inference work.
func NewStubBackend() *StubBackend { return &StubBackend{} }

func (b *StubBackend) Load(ctx context.Context, source ModelSource, offline bool) (LoadedModel, error) {
	if source.Kind == SourceLocal {
		if info, err := os.Stat(source.Path); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("sttengine: model path %q not found", source.Path)
		}
	}
	if offline && source.Kind == SourceRemote {
		return nil, fmt.Errorf("sttengine: remote source %q not permitted in offline mode", source.RemoteID)
	}
	return &stubModel{source: source}, nil
}

type stubModel struct {
	source ModelSource
}

func (m *stubModel) Transcribe(ctx context.Context, samples []float32, opts TranscribeOptions) (Transcription, error) {
	return Transcription{
		Text:       "",
		IsFinal:    true,
		Confidence: 0,
		Language:   opts.Language,
	}, nil
}

func (m *stubModel) Close() error { return nil }
