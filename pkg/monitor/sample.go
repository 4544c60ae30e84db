// Package monitor watches the sidecar's own resource footprint: periodic
// CPU/RSS sampling, a hierarchical state machine, debounced downgrades, and
// hysteresis-based upgrade proposals.
package monitor

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Sample is one CPU/RSS reading, plus the system's available memory, which
// the recovery gate compares against.
type Sample struct {
	CPUPercent  float64
	RSSGB       float64
	AvailableGB float64
	TimestampMS int64
}

// Sampler reads the sidecar process's own resource footprint. The monitor
// deliberately tracks its own RSS, never system-wide used memory.
type Sampler interface {
	Sample() (Sample, error)
}

// ProcessSampler samples the current process via gopsutil.
type ProcessSampler struct {
	proc *process.Process
}

// NewProcessSampler builds a sampler bound to the running process.
func NewProcessSampler() (*ProcessSampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &ProcessSampler{proc: p}, nil
}

// Sample reads the process's CPU percentage since the last call
// (non-blocking, mirroring psutil's cpu_percent(interval=None)), its current
// RSS in GB, and the system's available memory.
func (s *ProcessSampler) Sample() (Sample, error) {
	cpuPct, err := s.proc.Percent(0)
	if err != nil {
		return Sample{}, err
	}
	memInfo, err := s.proc.MemoryInfo()
	if err != nil {
		return Sample{}, err
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Sample{}, err
	}
	const gb = 1024 * 1024 * 1024
	return Sample{
		CPUPercent:  cpuPct,
		RSSGB:       float64(memInfo.RSS) / gb,
		AvailableGB: float64(vm.Available) / gb,
		TimestampMS: time.Now().UnixMilli(),
	}, nil
}
