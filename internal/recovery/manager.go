package recovery

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

const eps = 1e-9

// Forever is returned by EstimatedRecoveryTime when no configured mechanism
// can ever clear the conflict.
const Forever = time.Duration(math.MaxInt64)

// #region manager
// Manager turns repair attempts and elapsed time into recovery progress.
type Manager struct {
	config Config
	now    func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager with the given tuning.
func NewManager(config Config, opts ...Option) *Manager {
	m := &Manager{config: config, now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Config returns the active tuning.
func (m *Manager) Config() Config {
	return m.config
}

// #endregion manager

// #region active
// CanRecover reports whether approach can make progress on s at all.
func (m *Manager) CanRecover(s mood.EmotionalState, approach Approach) bool {
	return s.ConflictState.Active() && m.config.ApproachRates[approach] > 0
}

// RecoveryRate is the approach multiplier discounted for the harder kinds.
func (m *Manager) RecoveryRate(approach Approach, kind mood.ConflictState) float64 {
	rate := m.config.ApproachRates[approach]
	if d, ok := m.config.KindDiscounts[kind]; ok {
		rate *= d
	}
	return rate
}

// Apply records one repair attempt. Progress grows by
// BaseIncrement × approach rate × intensity, capped at 1. Crossing the kind's
// threshold steps the conflict down once. s is never modified.
func (m *Manager) Apply(s mood.EmotionalState, approach Approach, intensity float64) (mood.EmotionalState, Result) {
	kind := s.ConflictState
	if !kind.Active() {
		return s, Result{ConflictState: mood.ConflictNone, Progress: s.RecoveryProgress(), Reason: "no active conflict"}
	}
	if !m.CanRecover(s, approach) {
		return s, Result{ConflictState: kind, Progress: s.RecoveryProgress(),
			Reason: fmt.Sprintf("%s approach cannot repair %s", approach, kind)}
	}

	added := m.config.BaseIncrement * m.config.ApproachRates[approach] * clampIntensity(intensity)
	progress := math.Min(1, s.RecoveryProgress()+added)
	return m.settle(s, progress, added, fmt.Sprintf("%s approach", approach), m.now())
}

func clampIntensity(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// settle stores progress and steps the conflict down when the threshold is
// met. A step to none keeps the final progress; a step to another active
// kind starts that episode from zero.
func (m *Manager) settle(s mood.EmotionalState, progress, added float64, cause string, now time.Time) (mood.EmotionalState, Result) {
	kind := s.ConflictState
	threshold := m.config.Thresholds[kind]
	if progress < threshold-eps {
		out := s.WithMetadata(mood.KeyRecoveryProgress, progress, now)
		return out, Result{
			ConflictState: kind,
			ProgressAdded: added,
			Progress:      progress,
			Reason:        fmt.Sprintf("%s: progress %.2f of %.2f", cause, progress, threshold),
		}
	}

	target := nextStep[kind]
	out := s.WithConflict(target, fmt.Sprintf("cooled down from %s", kind), now)
	stored := progress
	if target.Active() {
		stored = 0
		out = out.WithMetadata(mood.KeyLastDecayCheck, nil, now)
	}
	out = out.WithMetadata(mood.KeyRecoveryProgress, stored, now)
	return out, Result{
		Recovered:     true,
		ConflictState: target,
		ProgressAdded: added,
		Progress:      stored,
		Reason:        fmt.Sprintf("%s: progress %.2f reached %.2f, %s -> %s", cause, progress, threshold, kind, target),
	}
}

// #endregion active

// #region decay
// ApplyDecay adds time-based progress. Nothing accrues until Cooldown after
// the conflict started; after that each call credits DecayPerDay for the days
// since the later of the last check and the end of the cooldown. Every call
// on an active conflict records last_decay_check. A zero at means now.
func (m *Manager) ApplyDecay(s mood.EmotionalState, at time.Time) (mood.EmotionalState, Result) {
	if at.IsZero() {
		at = m.now()
	}
	kind := s.ConflictState
	if !kind.Active() {
		return s, Result{ConflictState: mood.ConflictNone, Progress: s.RecoveryProgress(), Reason: "no active conflict"}
	}

	started := at
	if s.ConflictStartedAt != nil {
		started = *s.ConflictStartedAt
	}
	cooldownEnd := started.Add(m.config.Cooldown)
	stamp := at.UTC().Format(time.RFC3339Nano)

	if at.Before(cooldownEnd) {
		out := s.WithMetadata(mood.KeyLastDecayCheck, stamp, at)
		return out, Result{
			ConflictState: kind,
			Progress:      s.RecoveryProgress(),
			Reason:        fmt.Sprintf("decay cooldown: %s remaining", cooldownEnd.Sub(at).Round(time.Minute)),
		}
	}

	from := cooldownEnd
	if last, ok := s.Metadata.Time(mood.KeyLastDecayCheck); ok && last.After(from) {
		from = last
	}
	days := math.Max(0, at.Sub(from).Hours()/24)
	added := m.config.DecayPerDay[kind] * days
	progress := math.Min(1, s.RecoveryProgress()+added)

	out, res := m.settle(s, progress, added, fmt.Sprintf("decay over %.2f days", days), at)
	out = out.WithMetadata(mood.KeyLastDecayCheck, stamp, at)
	return out, res
}

// #endregion decay

// #region estimate
// EstimatedRecoveryTime projects how long until s reaches none using the
// given approach for every remaining step. Active approaches count
// interactions at the discounted RecoveryRate spaced InteractionInterval
// apart; an approach with no effect falls back to passive decay.
func (m *Manager) EstimatedRecoveryTime(s mood.EmotionalState, approach Approach) time.Duration {
	kind := s.ConflictState
	progress := s.RecoveryProgress()
	first := true
	var total time.Duration

	for kind.Active() {
		remaining := math.Max(0, m.config.Thresholds[kind]-progress)

		if rate := m.RecoveryRate(approach, kind); rate > 0 {
			per := m.config.BaseIncrement * rate
			steps := math.Max(1, math.Ceil(remaining/per-eps))
			total += time.Duration(steps) * m.config.InteractionInterval
		} else {
			decay := m.config.DecayPerDay[kind]
			if decay <= 0 {
				return Forever
			}
			wait := m.config.Cooldown
			if first && s.ConflictStartedAt != nil {
				wait = max(0, s.ConflictStartedAt.Add(m.config.Cooldown).Sub(m.now()))
			}
			total += wait + days(remaining/decay)
		}

		kind = nextStep[kind]
		progress = 0
		first = false
	}
	return total
}

func days(d float64) time.Duration {
	return time.Duration(d * 24 * float64(time.Hour))
}

// #endregion estimate
