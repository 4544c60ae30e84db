package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/team-hashing/whispersidecar/pkg/sidecar"
	"github.com/team-hashing/whispersidecar/pkg/sttengine"
)

// State is the monitor's lifecycle state.
type State string

const (
	StateMonitoring State = "monitoring"
	StateDegraded   State = "degraded"
	StateRecovering State = "recovering"
)

const (
	memoryCriticalGB    = 2.0
	memoryHighGB        = 1.5
	cpuSustainedPct     = 85.0
	cpuSustainedMS      = 60_000
	debounceMS          = 60_000
	recoveryCPUPct      = 50.0
	recoveryAvailableGB = 2.0
	recoverySampleGoal  = 10
	sampleHistoryCap    = 2
)

// Snapshot is a read-only copy of the monitor's internal state, exposed for
// host-side debugging and tests without putting new surface on the wire
// protocol.
type Snapshot struct {
	State               State
	CurrentModel        sttengine.ModelSize
	InitialModel        sttengine.ModelSize
	LastDowngradeAtMS   int64
	RecoverySampleCount int
	CPUHighStartMS      int64
	LowResourceStartMS  int64
}

// Callbacks are the monitor's three collaborator hooks. OnDowngrade
// must load the new model via the STT facade before returning; the monitor
// only mutates current_model after it returns the actual loaded size.
type Callbacks struct {
	OnDowngrade       func(ctx context.Context, old, proposed sttengine.ModelSize) (sttengine.ModelSize, error)
	OnUpgradeProposal func(current, proposed sttengine.ModelSize)
	OnPauseRecording  func()
}

// Monitor is the owned resource-monitor state machine.
type Monitor struct {
	mu sync.Mutex

	sampler  Sampler
	logger   sidecar.Logger
	interval time.Duration
	cb       Callbacks

	state               State
	currentModel        sttengine.ModelSize
	initialModel        sttengine.ModelSize
	lastDowngradeAtMS   int64
	recoverySampleCount int
	cpuHighStartMS      int64
	lowResourceStartMS  int64
	history             []Sample

	nowMS func() int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Monitor with the given initial model (already selected by
// SelectStartupModel) and tick interval (default 30s if interval<=0).
func New(sampler Sampler, logger sidecar.Logger, initialModel sttengine.ModelSize, interval time.Duration, cb Callbacks) *Monitor {
	if logger == nil {
		logger = sidecar.NoOpLogger{}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		sampler:      sampler,
		logger:       logger,
		interval:     interval,
		cb:           cb,
		state:        StateMonitoring,
		currentModel: initialModel,
		initialModel: initialModel,
		nowMS:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Snapshot returns a copy of the monitor's current fields.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:               m.state,
		CurrentModel:        m.currentModel,
		InitialModel:        m.initialModel,
		LastDowngradeAtMS:   m.lastDowngradeAtMS,
		RecoverySampleCount: m.recoverySampleCount,
		CPUHighStartMS:      m.cpuHighStartMS,
		LowResourceStartMS:  m.lowResourceStartMS,
	}
}

// Run starts the monitor loop: sleep for interval, run one tick, repeat,
// cancellable via Stop. Run blocks until Stop is called or ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.mu.Lock()
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.mu.Unlock()

	defer close(doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Stop signals the monitor loop to exit and waits up to 2s for it to do so.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)

	if doneCh == nil {
		return
	}
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
	}
}

// Tick runs one monitor cycle: sample, fire the upgrade proposal if the
// previous tick reached recovering, evaluate downgrade triggers (first match
// wins), then degraded-state recovery bookkeeping, then the recording_paused
// check. It is exported so tests can drive ticks directly
// without waiting on a real ticker.
func (m *Monitor) Tick(ctx context.Context) {
	sample, err := m.sampler.Sample()
	if err != nil {
		m.logger.Warn("resource sample failed", "error", err)
		return
	}

	m.mu.Lock()
	m.pushHistory(sample)

	// A proposal queued by reaching the recovery threshold on the previous
	// tick fires now, at the start of this tick.
	if m.state == StateRecovering {
		m.fireUpgradeProposal()
	}

	downgraded := m.evaluateDowngrade(ctx, sample)

	if !downgraded && m.state == StateDegraded {
		m.evaluateRecovery(sample)
	}

	m.evaluatePauseRecording(sample)
	m.mu.Unlock()
}

func (m *Monitor) pushHistory(s Sample) {
	m.history = append(m.history, s)
	if len(m.history) > sampleHistoryCap {
		m.history = m.history[len(m.history)-sampleHistoryCap:]
	}
}

// evaluateDowngrade runs the three downgrade triggers in priority order,
// first match wins. It returns true if a downgrade was actually performed.
// Must be called with m.mu held; it releases and re-acquires the lock
// around the (potentially slow) OnDowngrade callback.
func (m *Monitor) evaluateDowngrade(ctx context.Context, sample Sample) bool {
	now := m.nowMS()

	// 1. Memory critical: immediate downgrade to base, unless already at
	// base or tiny.
	if sample.RSSGB >= memoryCriticalGB {
		if !sttengine.IsFloor(m.currentModel) {
			return m.performDowngrade(ctx, sttengine.ModelBase, now)
		}
		return false
	}

	// 2. Memory high: one-step downgrade, skipped at base/tiny.
	if sample.RSSGB >= memoryHighGB {
		if sttengine.IsFloor(m.currentModel) {
			return false
		}
		next, ok := sttengine.Next(m.currentModel)
		if !ok {
			return false
		}
		return m.performDowngrade(ctx, next, now)
	}

	// 3. CPU sustained: one-step downgrade, subject to debounce.
	if sample.CPUPercent >= cpuSustainedPct {
		if m.cpuHighStartMS == 0 {
			m.cpuHighStartMS = now
			return false
		}
		if now-m.cpuHighStartMS < cpuSustainedMS {
			return false
		}
		// Sustained long enough — check debounce before acting. On
		// suppression the CPU timer is NOT reset, so the condition stays
		// armed for the next tick.
		if now-m.lastDowngradeAtMS < debounceMS {
			return false
		}
		if sttengine.IsFloor(m.currentModel) {
			return false
		}
		next, ok := sttengine.Next(m.currentModel)
		if !ok {
			return false
		}
		return m.performDowngrade(ctx, next, now)
	}

	m.cpuHighStartMS = 0
	return false
}

// performDowngrade invokes OnDowngrade, updates state on success, and
// leaves current_model untouched on failure. Must be called with m.mu held.
func (m *Monitor) performDowngrade(ctx context.Context, proposed sttengine.ModelSize, now int64) bool {
	old := m.currentModel
	cb := m.cb.OnDowngrade

	m.mu.Unlock()
	var actual sttengine.ModelSize
	var err error
	if cb != nil {
		actual, err = cb(ctx, old, proposed)
	}
	m.mu.Lock()

	if cb == nil || err != nil {
		if err != nil {
			m.logger.Warn("downgrade callback failed", "from", old, "to", proposed, "error", err)
		}
		return false
	}

	m.currentModel = actual
	m.lastDowngradeAtMS = now
	m.recoverySampleCount = 0
	m.state = StateDegraded
	return true
}

// evaluateRecovery updates the degraded-state recovery counter and promotes
// the monitor to recovering once it reaches the goal. Must be called with
// m.mu held.
func (m *Monitor) evaluateRecovery(sample Sample) {
	lowResource := sample.CPUPercent < recoveryCPUPct && sample.AvailableGB >= recoveryAvailableGB
	if lowResource {
		if m.recoverySampleCount == 0 {
			m.lowResourceStartMS = m.nowMS()
		}
		m.recoverySampleCount++
		if m.recoverySampleCount >= recoverySampleGoal {
			m.state = StateRecovering
		}
	} else {
		m.recoverySampleCount = 0
		m.lowResourceStartMS = 0
	}
}

// fireUpgradeProposal emits the upgrade_proposal callback (without
// performing the upgrade) and returns the monitor to monitoring. Must be
// called with m.mu held.
func (m *Monitor) fireUpgradeProposal() {
	proposed, ok := sttengine.Prev(m.currentModel, m.initialModel)
	if ok && m.cb.OnUpgradeProposal != nil {
		m.cb.OnUpgradeProposal(m.currentModel, proposed)
	}
	m.state = StateMonitoring
	m.recoverySampleCount = 0
}

// evaluatePauseRecording emits on_pause_recording once per qualifying tick
// when the model has bottomed out at tiny and resources are still
// insufficient. Must be called with m.mu held.
func (m *Monitor) evaluatePauseRecording(sample Sample) {
	if m.currentModel != sttengine.ModelTiny {
		return
	}
	if sample.RSSGB >= memoryCriticalGB || sample.CPUPercent >= cpuSustainedPct {
		if m.cb.OnPauseRecording != nil {
			m.cb.OnPauseRecording()
		}
	}
}

// ApproveUpgrade performs a user-approved upgrade to target via the STT
// facade (routed by the dispatcher's approve_upgrade handler), updates
// current_model to the actual loaded size, and reports whether a bundled
// fallback occurred. Targets above initial_model are refused; current_model
// never exceeds the startup ceiling.
func (m *Monitor) ApproveUpgrade(ctx context.Context, target sttengine.ModelSize, load func(context.Context, sttengine.ModelSize) (sttengine.ModelSize, error)) (actual sttengine.ModelSize, fallbackOccurred bool, err error) {
	m.mu.Lock()
	ceiling := m.initialModel
	m.mu.Unlock()
	if !sttengine.LessOrEqual(target, ceiling) {
		return "", false, fmt.Errorf("requested model %s exceeds the startup ceiling %s", target, ceiling)
	}

	actual, err = load(ctx, target)
	if err != nil {
		return "", false, err
	}

	m.mu.Lock()
	m.currentModel = actual
	m.mu.Unlock()

	return actual, actual != target, nil
}
