package recovery

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newManager() *Manager {
	return NewManager(DefaultConfig(), WithClock(func() time.Time { return now }))
}

func conflicted(t *testing.T, kind mood.ConflictState, started time.Time, progress float64) mood.EmotionalState {
	t.Helper()
	s := mood.NewNeutral("u1", started).WithConflict(kind, "test", started)
	if progress > 0 {
		s = s.WithMetadata(mood.KeyRecoveryProgress, progress, started)
	}
	require.NoError(t, s.Validate())
	return s
}

// #region active
func TestApplyColdApologyResolves(t *testing.T) {
	s := conflicted(t, mood.ConflictCold, now.Add(-time.Hour), 0.35)

	out, res := newManager().Apply(s, ApproachApologetic, 1.0)
	assert.True(t, res.Recovered)
	assert.Equal(t, mood.ConflictNone, res.ConflictState)
	assert.InDelta(t, 0.4, res.ProgressAdded, 1e-9)
	// 0.35 + 0.2 × 2.0 × 1.0
	assert.InDelta(t, 0.75, res.Progress, 1e-9)
	assert.InDelta(t, 0.75, out.RecoveryProgress(), 1e-9, "final progress retained on none")
	assert.Equal(t, mood.ConflictNone, out.ConflictState)
	assert.Nil(t, out.ConflictStartedAt)
	assert.Empty(t, out.ConflictTrigger)
	assert.Equal(t, mood.ConflictCold, s.ConflictState, "input untouched")
}

func TestApplyExplosiveStepsToCold(t *testing.T) {
	s := conflicted(t, mood.ConflictExplosive, now.Add(-time.Hour), 0)

	out, res := newManager().Apply(s, ApproachApologetic, 1.0)
	assert.True(t, res.Recovered)
	assert.Equal(t, mood.ConflictCold, out.ConflictState)
	assert.Zero(t, out.RecoveryProgress(), "progress restarts for the new episode")
	require.NotNil(t, out.ConflictStartedAt)
	assert.Equal(t, now, *out.ConflictStartedAt)
	assert.Equal(t, "cooled down from explosive", out.ConflictTrigger)
}

func TestApplyBelowThreshold(t *testing.T) {
	s := conflicted(t, mood.ConflictVulnerable, now.Add(-time.Hour), 0)

	out, res := newManager().Apply(s, ApproachValidating, 1.0)
	assert.False(t, res.Recovered)
	assert.Equal(t, mood.ConflictVulnerable, out.ConflictState)
	assert.InDelta(t, 0.3, out.RecoveryProgress(), 1e-9)
	assert.Contains(t, res.Reason, "validating")
}

func TestApplyNeutralAccumulates(t *testing.T) {
	m := newManager()
	s := conflicted(t, mood.ConflictPassiveAggressive, now.Add(-time.Hour), 0)

	var res Result
	for i := 0; i < 3; i++ {
		s, res = m.Apply(s, ApproachNeutral, 1.0)
	}
	assert.True(t, res.Recovered, "three neutral nudges reach 0.3")
	assert.Equal(t, mood.ConflictNone, s.ConflictState)
}

func TestApplyIntensityIsClamped(t *testing.T) {
	m := newManager()
	s := conflicted(t, mood.ConflictVulnerable, now.Add(-time.Hour), 0)

	hi, _ := m.Apply(s, ApproachNeutral, 5)
	one, _ := m.Apply(s, ApproachNeutral, 1)
	assert.Equal(t, one.RecoveryProgress(), hi.RecoveryProgress())

	neg, res := m.Apply(s, ApproachNeutral, -2)
	assert.Zero(t, neg.RecoveryProgress())
	assert.Zero(t, res.ProgressAdded)
}

func TestApplyDismissiveIsNoOp(t *testing.T) {
	m := newManager()
	s := conflicted(t, mood.ConflictCold, now.Add(-time.Hour), 0.2)

	assert.False(t, m.CanRecover(s, ApproachDismissive))
	out, res := m.Apply(s, ApproachDismissive, 1.0)
	assert.False(t, res.Recovered)
	assert.Equal(t, s, out)
	assert.InDelta(t, 0.2, res.Progress, 1e-9)
}

func TestApplyWithoutConflict(t *testing.T) {
	m := newManager()
	s := mood.NewNeutral("u1", now)
	assert.False(t, m.CanRecover(s, ApproachApologetic))

	out, res := m.Apply(s, ApproachApologetic, 1)
	assert.Equal(t, s, out)
	assert.Equal(t, "no active conflict", res.Reason)
}

func TestApplyProgressIsMonotone(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := newManager()
	kinds := []mood.ConflictState{mood.ConflictPassiveAggressive, mood.ConflictCold, mood.ConflictVulnerable, mood.ConflictExplosive}
	active := Approaches[:len(Approaches)-1]

	for i := 0; i < 200; i++ {
		kind := kinds[rng.Intn(len(kinds))]
		approach := active[rng.Intn(len(active))]
		s := conflicted(t, kind, now.Add(-time.Hour), 0)

		for j := 0; j < 10 && s.ConflictState == kind; j++ {
			before := s.RecoveryProgress()
			next, _ := m.Apply(s, approach, rng.Float64())
			if next.ConflictState == kind {
				assert.GreaterOrEqual(t, next.RecoveryProgress(), before)
				assert.LessOrEqual(t, next.RecoveryProgress(), 1.0)
			}
			s = next
		}
	}
}

func TestRecoveryRate(t *testing.T) {
	m := newManager()
	assert.InDelta(t, 1.0, m.RecoveryRate(ApproachApologetic, mood.ConflictExplosive), 1e-9)
	assert.InDelta(t, 1.05, m.RecoveryRate(ApproachValidating, mood.ConflictCold), 1e-9)
	assert.InDelta(t, 0.5, m.RecoveryRate(ApproachNeutral, mood.ConflictVulnerable), 1e-9)
	assert.Zero(t, m.RecoveryRate(ApproachDismissive, mood.ConflictPassiveAggressive))
	assert.Zero(t, m.RecoveryRate("shrug", mood.ConflictCold))
}

func TestParseApproach(t *testing.T) {
	a, err := ParseApproach("  Apologetic")
	require.NoError(t, err)
	assert.Equal(t, ApproachApologetic, a)

	_, err = ParseApproach("sulky")
	assert.ErrorIs(t, err, ErrUnknownApproach)
}

// #endregion active

// #region decay
func TestApplyDecayDuringCooldown(t *testing.T) {
	s := conflicted(t, mood.ConflictCold, now.Add(-12*time.Hour), 0.1)

	out, res := newManager().ApplyDecay(s, time.Time{})
	assert.False(t, res.Recovered)
	assert.Contains(t, res.Reason, "cooldown")
	assert.InDelta(t, 0.1, out.RecoveryProgress(), 1e-9)

	last, ok := out.Metadata.Time(mood.KeyLastDecayCheck)
	require.True(t, ok)
	assert.Equal(t, now, last)
}

func TestApplyDecayAccruesFromCooldownEnd(t *testing.T) {
	m := newManager()
	s := conflicted(t, mood.ConflictCold, now.Add(-72*time.Hour), 0)

	// two days past the cooldown at 0.15/day
	out, res := m.ApplyDecay(s, now)
	assert.False(t, res.Recovered)
	assert.InDelta(t, 0.3, out.RecoveryProgress(), 1e-9)
	assert.InDelta(t, 0.3, res.ProgressAdded, 1e-9)

	// one more day from the last check crosses 0.4
	out, res = m.ApplyDecay(out, now.Add(24*time.Hour))
	assert.True(t, res.Recovered)
	assert.Equal(t, mood.ConflictNone, out.ConflictState)
	assert.InDelta(t, 0.45, out.RecoveryProgress(), 1e-9)
}

func TestApplyDecayLastCheckInsideCooldownIsIgnored(t *testing.T) {
	m := newManager()
	started := now.Add(-48 * time.Hour)
	s := conflicted(t, mood.ConflictVulnerable, started, 0)

	s, _ = m.ApplyDecay(s, started.Add(time.Hour))
	out, _ := m.ApplyDecay(s, now)
	assert.InDelta(t, 0.2, out.RecoveryProgress(), 1e-9, "one day past the cooldown end")
}

func TestApplyDecayExplosiveIsSlow(t *testing.T) {
	m := newManager()
	s := conflicted(t, mood.ConflictExplosive, now.Add(-5*24*time.Hour), 0)
	out, res := m.ApplyDecay(s, now)
	assert.False(t, res.Recovered)
	assert.InDelta(t, 0.2, out.RecoveryProgress(), 1e-9)

	s = conflicted(t, mood.ConflictExplosive, now.Add(-8*24*time.Hour), 0)
	out, res = m.ApplyDecay(s, now)
	assert.True(t, res.Recovered)
	assert.Equal(t, mood.ConflictCold, out.ConflictState)
	assert.Zero(t, out.RecoveryProgress())
}

func TestApplyDecayWithoutConflict(t *testing.T) {
	s := mood.NewNeutral("u1", now)
	out, res := newManager().ApplyDecay(s, now)
	assert.Equal(t, s, out)
	assert.Equal(t, "no active conflict", res.Reason)
}

// #endregion decay

// #region estimate
func TestEstimatedRecoveryTime(t *testing.T) {
	m := newManager()
	hour := DefaultConfig().InteractionInterval

	assert.Zero(t, m.EstimatedRecoveryTime(mood.NewNeutral("u1", now), ApproachApologetic))

	// cold: rate 2.0 × 0.7, 0.28 per interaction, 0.4 needed
	cold := conflicted(t, mood.ConflictCold, now, 0)
	assert.Equal(t, 2*hour, m.EstimatedRecoveryTime(cold, ApproachApologetic))

	// explosive: 0.2 per interaction, 0.3 needed, then the cold step again
	explosive := conflicted(t, mood.ConflictExplosive, now, 0)
	assert.Equal(t, 4*hour, m.EstimatedRecoveryTime(explosive, ApproachApologetic))

	almost := conflicted(t, mood.ConflictCold, now, 0.39)
	assert.Equal(t, hour, m.EstimatedRecoveryTime(almost, ApproachApologetic))
}

func TestEstimatedRecoveryTimeDismissiveUsesDecay(t *testing.T) {
	m := newManager()
	cold := conflicted(t, mood.ConflictCold, now, 0)
	// full cooldown + 0.4 / 0.15 days
	want := 24*time.Hour + time.Duration(0.4/0.15*24*float64(time.Hour))
	assert.InDelta(t, float64(want), float64(m.EstimatedRecoveryTime(cold, ApproachDismissive)), float64(time.Second))

	cfg := DefaultConfig()
	cfg.DecayPerDay = map[mood.ConflictState]float64{}
	stuck := NewManager(cfg, WithClock(func() time.Time { return now }))
	assert.Equal(t, Forever, stuck.EstimatedRecoveryTime(cold, ApproachDismissive))
}

// #endregion estimate
