package sttengine

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// switchableBackend loads successfully unless told to fail, and records the
// sources it was asked to construct from.
type switchableBackend struct {
	failRemote bool
	failAll    bool
	sources    []ModelSource
}

func (b *switchableBackend) Load(ctx context.Context, source ModelSource, offline bool) (LoadedModel, error) {
	b.sources = append(b.sources, source)
	if b.failAll || (b.failRemote && source.Kind == SourceRemote) {
		return nil, errors.New("backend construction failed")
	}
	return &echoModel{}, nil
}

type echoModel struct{}

func (m *echoModel) Transcribe(ctx context.Context, samples []float32, opts TranscribeOptions) (Transcription, error) {
	return Transcription{Text: "ok", Confidence: 0.9, Language: opts.Language}, nil
}

func (m *echoModel) Close() error { return nil }

func TestLoadModelRollbackKeepsOldModelUsable(t *testing.T) {
	backend := &switchableBackend{}
	f := NewFacade(backend, DiscoveryConfig{RemoteOrg: "Systran"}, nil)

	if _, err := f.LoadModel(context.Background(), ModelBase); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	backend.failAll = true
	_, err := f.LoadModel(context.Background(), ModelSmall)
	if !errors.Is(err, ErrModelLoadFailed) {
		t.Fatalf("expected ErrModelLoadFailed, got %v", err)
	}

	if f.CurrentModel() != ModelBase {
		t.Fatalf("current model must be unchanged after a failed load, got %s", f.CurrentModel())
	}
	if _, err := f.Transcribe(context.Background(), make([]byte, 640)); err != nil {
		t.Fatalf("the previous model must remain usable after rollback: %v", err)
	}
}

func TestLoadModelOnlineFailureRetriesBundled(t *testing.T) {
	installDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(installDir, "base"), 0o755); err != nil {
		t.Fatal(err)
	}

	backend := &switchableBackend{failRemote: true}
	cfg := DiscoveryConfig{
		HomeDir:     t.TempDir(),
		RemoteOrg:   "Systran",
		InstallDirs: []string{installDir},
	}
	f := NewFacade(backend, cfg, nil)

	actual, err := f.LoadModel(context.Background(), ModelSmall)
	if err != nil {
		t.Fatalf("expected the bundled fallback to succeed, got %v", err)
	}
	if actual != ModelBase {
		t.Fatalf("expected the fallback to report base, got %s", actual)
	}
	if f.CurrentModel() != ModelBase {
		t.Fatalf("current model should be the actual loaded size, got %s", f.CurrentModel())
	}
	if got := f.ModelPath(); got != filepath.Join(installDir, "base") {
		t.Fatalf("ModelPath should point at the bundled directory, got %q", got)
	}
}

func TestTranscribeEmptyInputShortCircuits(t *testing.T) {
	f := NewFacade(&switchableBackend{}, DiscoveryConfig{RemoteOrg: "Systran"}, nil)
	if _, err := f.Transcribe(context.Background(), nil); !errors.Is(err, ErrInvalidAudio) {
		t.Fatalf("expected ErrInvalidAudio for an empty buffer, got %v", err)
	}
}

func TestTranscribeWithoutLoadedModel(t *testing.T) {
	f := NewFacade(&switchableBackend{}, DiscoveryConfig{RemoteOrg: "Systran"}, nil)
	if _, err := f.Transcribe(context.Background(), make([]byte, 320)); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound before any load, got %v", err)
	}
}

func TestPCMToFloat32Normalization(t *testing.T) {
	// -32768 and +32767 as little-endian int16.
	pcm := []byte{0x00, 0x80, 0xFF, 0x7F}
	samples := pcmToFloat32(pcm)
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0] != -1.0 {
		t.Errorf("expected -32768 to map to -1.0, got %v", samples[0])
	}
	if samples[1] <= 0.999 || samples[1] >= 1.0 {
		t.Errorf("expected +32767 to map just below 1.0, got %v", samples[1])
	}
}

func TestConfidenceFromLogProb(t *testing.T) {
	if got := ConfidenceFromLogProb(0); got != 1 {
		t.Errorf("exp(0) should clamp-pass as 1, got %v", got)
	}
	want := math.Exp(-0.5)
	if got := ConfidenceFromLogProb(-0.5); math.Abs(got-want) > 1e-9 {
		t.Errorf("ConfidenceFromLogProb(-0.5) = %v, want %v", got, want)
	}
	if got := ConfidenceFromLogProb(2); got != 1 {
		t.Errorf("a positive log-prob must clamp to 1, got %v", got)
	}
	if got := ConfidenceFromLogProb(math.NaN()); got != 0 {
		t.Errorf("NaN must clamp to 0, got %v", got)
	}
}
