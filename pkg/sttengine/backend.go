package sttengine

import "context"

// Language is an IETF-ish language tag.
type Language string

// Transcription is the value object a transcription call produces.
type Transcription struct {
	Text             string
	IsFinal          bool
	Confidence       float64
	Language         Language
	ProcessingTimeMS int64
	ModelSize        ModelSize
}

// TranscribeOptions carries the fixed parameters used on every backend
// invocation.
type TranscribeOptions struct {
	Language  Language
	BeamSize  int
	VADFilter bool
}

// LoadedModel is a single constructed backend model instance — the
// "transcribe" half of the inference-library contract.
type LoadedModel interface {
	Transcribe(ctx context.Context, samples []float32, opts TranscribeOptions) (Transcription, error)
	// Close releases any resources held by the model. It is called only
	// after a replacement model has been constructed successfully.
	Close() error
}

// Backend is the "load_model" half of the third-party Whisper-family
// library contract. A real deployment binds this to a CGo/CTranslate2
// wrapper; the sidecar core only depends on this interface.
type Backend interface {
	// Load constructs a model instance from a resolved ModelSource. offline
	// disables any implicit network fallback inside the backend call for a
	// SourceRemote source (which Discover never returns in offline mode).
	Load(ctx context.Context, source ModelSource, offline bool) (LoadedModel, error)
}
