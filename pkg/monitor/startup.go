package monitor

import "github.com/team-hashing/whispersidecar/pkg/sttengine"

// SystemProfile is the one-shot startup resource snapshot driving the
// initial model selection.
type SystemProfile struct {
	GPUPresent bool
	RAMGB      float64
	VRAMGB     float64
}

// SelectStartupModel maps a SystemProfile to the model size chosen at
// startup. The result also becomes initial_model, the upgrade ceiling for
// the process lifetime.
func SelectStartupModel(p SystemProfile) sttengine.ModelSize {
	switch {
	case p.GPUPresent && p.RAMGB >= 8 && p.VRAMGB >= 10:
		return sttengine.ModelLargeV3
	case p.GPUPresent && p.RAMGB >= 4 && p.VRAMGB >= 5:
		return sttengine.ModelMedium
	case !p.GPUPresent && p.RAMGB >= 4:
		return sttengine.ModelSmall
	case !p.GPUPresent && p.RAMGB >= 2:
		return sttengine.ModelBase
	default:
		return sttengine.ModelTiny
	}
}
