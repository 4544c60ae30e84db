package vad

import (
	"testing"

	"github.com/team-hashing/whispersidecar/pkg/pcm"
)

func silentFrame() pcm.Frame {
	f, _ := pcm.NewFrame(make([]byte, pcm.FrameBytes))
	return f
}

func loudFrame() pcm.Frame {
	data := make([]byte, pcm.FrameBytes)
	for i := 0; i+1 < len(data); i += 2 {
		data[i] = 0xFF
		data[i+1] = 0x7F // near full-scale positive sample
	}
	f, _ := pcm.NewFrame(data)
	return f
}

func TestEnergyClassifierSilenceIsNotSpeech(t *testing.T) {
	c := NewEnergyClassifier(AggressivenessDefault)
	speech, err := c.IsSpeech(silentFrame())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if speech {
		t.Fatal("a zeroed frame should never classify as speech")
	}
}

func TestEnergyClassifierLoudFrameIsSpeech(t *testing.T) {
	c := NewEnergyClassifier(AggressivenessDefault)
	speech, err := c.IsSpeech(loudFrame())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !speech {
		t.Fatal("a near full-scale frame should classify as speech")
	}
}

func TestNewEnergyClassifierClampsLevel(t *testing.T) {
	low := NewEnergyClassifier(Aggressiveness(-5))
	if low.threshold != thresholds[AggressivenessQuality] {
		t.Errorf("expected out-of-range low level to clamp to Quality threshold")
	}
	high := NewEnergyClassifier(Aggressiveness(99))
	if high.threshold != thresholds[AggressivenessVeryAggr] {
		t.Errorf("expected out-of-range high level to clamp to VeryAggr threshold")
	}
}

func TestHigherAggressivenessRequiresMoreEnergy(t *testing.T) {
	if thresholds[AggressivenessVeryAggr] <= thresholds[AggressivenessQuality] {
		t.Fatal("VeryAggr should require strictly more energy than Quality")
	}
}
