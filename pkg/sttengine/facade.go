package sttengine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Facade owns the single loaded model slot and performs discovery, atomic
// load/rollback, dynamic switching, and transcription: a small struct
// holding interfaces plus a mutex, exposed through narrow methods.
type Facade struct {
	backend Backend
	cfg     DiscoveryConfig
	logger  Logger
	remote  *RemoteResolver

	mu        sync.Mutex // serializes LoadModel; at most one load at a time
	model     LoadedModel
	modelSize ModelSize
	modelPath ModelSource
}

// WithRemoteResolver attaches a best-effort reachability check for online
// discovery; remote may be nil to disable the check (the default), in which
// case a SourceRemote is always handed straight to the backend.
func (f *Facade) WithRemoteResolver(remote *RemoteResolver) *Facade {
	f.remote = remote
	return f
}

// NewFacade builds a Facade around the given backend and discovery
// configuration. logger may be nil, in which case logging is discarded.
func NewFacade(backend Backend, cfg DiscoveryConfig, logger Logger) *Facade {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Facade{backend: backend, cfg: cfg, logger: logger}
}

// CurrentModel returns the size of the currently loaded model ("" if none
// has loaded yet).
func (f *Facade) CurrentModel() ModelSize {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modelSize
}

// ModelPath returns a printable identifier for the loaded model's source —
// a local directory, or the remote id the backend resolved. Empty when no
// model has loaded yet.
func (f *Facade) ModelPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.model == nil {
		return ""
	}
	if f.modelPath.Kind == SourceRemote {
		return f.modelPath.RemoteID
	}
	return f.modelPath.Path
}

// LoadModel swaps the loaded model atomically. The (model, size, path)
// snapshot is taken before any mutation; discovery resolves a source for
// target (the offline bundled-base fallback lives inside Discover); if the
// backend can't construct from an online remote source, a bundled install
// directory is retried the same way the offline path would. On any error the
// snapshot is restored and the old model remains usable; only on success is
// the old model instance released.
func (f *Facade) LoadModel(ctx context.Context, target ModelSize) (ModelSize, error) {
	if !Valid(target) {
		return "", fmt.Errorf("sttengine: unknown model size %q", target)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prevModel, prevSize, prevPath := f.model, f.modelSize, f.modelPath

	source, actual, err := Discover(f.cfg, target, f.logger)
	if err != nil {
		return "", err
	}

	unreachable := false
	if source.Kind == SourceRemote && !f.cfg.Offline && f.remote != nil && !f.remote.Reachable(ctx, source.RemoteID) {
		f.logger.Warn("remote model unreachable, preferring bundled fallback", "remoteID", source.RemoteID)
		unreachable = true
		err = fmt.Errorf("sttengine: remote model %q unreachable", source.RemoteID)
	}

	var newModel LoadedModel
	if err == nil {
		newModel, err = f.backend.Load(ctx, source, f.cfg.Offline)
	}
	if err != nil && source.Kind == SourceRemote && !f.cfg.Offline && len(f.cfg.InstallDirs) > 0 {
		// Online construction failed (e.g. network unavailable) — retry
		// against a bundled install directory, same as the offline path.
		if dir, ok := findBundled(f.cfg.InstallDirs, target); ok {
			source = ModelSource{Kind: SourceLocal, Path: dir}
			actual = target
			newModel, err = f.backend.Load(ctx, source, f.cfg.Offline)
		} else if dir, ok := findBundled(f.cfg.InstallDirs, ModelBase); ok {
			source = ModelSource{Kind: SourceLocal, Path: dir}
			actual = ModelBase
			newModel, err = f.backend.Load(ctx, source, f.cfg.Offline)
		}
	}
	if err != nil && unreachable && source.Kind == SourceRemote {
		// The reachability check is advisory: with no bundled directory to
		// fall back on, the remote source still goes to the backend.
		newModel, err = f.backend.Load(ctx, source, f.cfg.Offline)
	}

	if err != nil {
		// Restore the snapshot so the old model stays usable.
		f.model, f.modelSize, f.modelPath = prevModel, prevSize, prevPath
		return "", fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
	}

	// Only after successful load is the previous model instance released.
	if prevModel != nil {
		if cerr := prevModel.Close(); cerr != nil {
			f.logger.Warn("failed to close previous model", "error", cerr)
		}
	}

	f.model = newModel
	f.modelSize = actual
	f.modelPath = source

	return actual, nil
}

// Transcribe converts PCM bytes to normalized float32 samples and invokes
// the currently loaded model with its fixed decoding parameters. Empty
// input short-circuits to ErrInvalidAudio.
func (f *Facade) Transcribe(ctx context.Context, audioPCM []byte) (Transcription, error) {
	if len(audioPCM) == 0 {
		return Transcription{}, fmt.Errorf("%w: empty buffer", ErrInvalidAudio)
	}

	f.mu.Lock()
	model := f.model
	modelSize := f.modelSize
	f.mu.Unlock()

	if model == nil {
		return Transcription{}, fmt.Errorf("%w: no model loaded", ErrModelNotFound)
	}

	samples := pcmToFloat32(audioPCM)

	start := time.Now()
	result, err := model.Transcribe(ctx, samples, TranscribeOptions{
		Language:  "ja",
		BeamSize:  5,
		VADFilter: false,
	})
	if err != nil {
		return Transcription{}, err
	}

	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	result.ModelSize = modelSize
	result.Confidence = clamp01(result.Confidence)

	return result, nil
}

func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		sample := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = float32(sample) / 32768.0
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ConfidenceFromLogProb computes exp(mean(avg_logprob)) clamped to [0,1],
// for backends that surface a mean log-probability instead of a direct
// confidence score. Backend implementations may call this helper from their
// Transcribe method.
func ConfidenceFromLogProb(meanAvgLogProb float64) float64 {
	return clamp01(math.Exp(meanAvgLogProb))
}
