package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danielpatrickdp/moodengine/internal/compute"
	"github.com/danielpatrickdp/moodengine/internal/logging"
	"github.com/danielpatrickdp/moodengine/internal/mood"
	"github.com/danielpatrickdp/moodengine/internal/recovery"
	"github.com/danielpatrickdp/moodengine/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Tuesday afternoon: arousal +0.05, no weekday offset.
var t0 = time.Date(2026, 10, 13, 14, 0, 0, 0, time.UTC)

func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *state.MemoryStore) {
	t.Helper()
	clock := func() time.Time { return t0 }
	st := state.NewMemoryStore(state.WithClock(clock))
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(st, DefaultConfig(), opts...), st
}

func seed(t *testing.T, st state.Store, userID string, kind mood.ConflictState, dims mood.Dimensions, startedAgo time.Duration) mood.EmotionalState {
	t.Helper()
	s := mood.EmotionalState{UserID: userID, Dimensions: dims, ConflictState: kind}
	if kind.Active() {
		started := t0.Add(-startedAgo)
		s.ConflictStartedAt = &started
	}
	s, err := mood.New(s, t0.Add(-startedAgo))
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), s))
	return s
}

func dims(arousal, valence, dominance, intimacy float64) mood.Dimensions {
	return mood.Dimensions{Arousal: arousal, Valence: valence, Dominance: dominance, Intimacy: intimacy}
}

func TestProcessTurnFirstTurnCreatesNeutralState(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	out, err := p.ProcessTurn(ctx, TurnInput{UserID: "u1"})
	require.NoError(t, err)

	assert.Nil(t, out.Previous)
	assert.Equal(t, mood.ConflictNone, out.State.ConflictState)
	assert.InDelta(t, 0.55, out.State.Arousal, 1e-9)
	assert.InDelta(t, 0.5, out.State.Valence, 1e-9)
	assert.Equal(t, "afternoon", out.Breakdown.TimeOfDay)
	assert.Empty(t, out.Events)
	assert.False(t, out.Changed())

	got, err := st.GetCurrent(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	if diff := cmp.Diff(out.State, *got); diff != "" {
		t.Errorf("stored state mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessTurnEscalatesToCold(t *testing.T) {
	p, _ := newTestPipeline(t)

	out, err := p.ProcessTurn(context.Background(), TurnInput{
		UserID: "u1",
		Tones:  []compute.Tone{compute.ToneCold, compute.ToneDismissive},
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.25, out.State.Valence, 1e-9)
	assert.True(t, out.Escalation.Should)
	assert.Equal(t, mood.ConflictCold, out.Escalation.Target)
	assert.Equal(t, mood.ConflictCold, out.State.ConflictState)
	assert.Equal(t, out.Escalation.Reason, out.State.ConflictTrigger)
	require.NotNil(t, out.State.ConflictStartedAt)
	assert.Equal(t, t0, *out.State.ConflictStartedAt)

	require.Len(t, out.Events, 1)
	assert.Equal(t, logging.EventEscalation, out.Events[0].Kind)
	assert.Equal(t, mood.ConflictNone, out.Events[0].From)
	assert.Equal(t, mood.ConflictCold, out.Events[0].To)
	assert.True(t, out.Changed())
}

func TestProcessTurnColdToExplosive(t *testing.T) {
	p, st := newTestPipeline(t)
	seed(t, st, "u1", mood.ConflictCold, dims(0.9, 0.2, 0.5, 0.5), time.Hour)

	out, err := p.ProcessTurn(context.Background(), TurnInput{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, mood.ConflictExplosive, out.State.ConflictState)
	assert.Equal(t, t0, *out.State.ConflictStartedAt, "episode clock restarts on a new kind")
	assert.Equal(t, 0.0, out.State.RecoveryProgress())
}

func TestProcessTurnNoneNeverJumpsToExplosive(t *testing.T) {
	p, st := newTestPipeline(t)
	seed(t, st, "u1", mood.ConflictNone, dims(0.9, 0.2, 0.5, 0.5), time.Hour)

	out, err := p.ProcessTurn(context.Background(), TurnInput{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, mood.ConflictCold, out.State.ConflictState)

	out, err = p.ProcessTurn(context.Background(), TurnInput{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, mood.ConflictExplosive, out.State.ConflictState)
}

func TestProcessTurnDeEscalatesOnPositiveInteraction(t *testing.T) {
	p, st := newTestPipeline(t)
	seed(t, st, "u1", mood.ConflictCold, dims(0.5, 0.45, 0.5, 0.5), time.Hour)

	out, err := p.ProcessTurn(context.Background(), TurnInput{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, mood.ConflictCold, out.State.ConflictState, "no positive interaction")
	assert.False(t, out.DeEscalation.Should)

	out, err = p.ProcessTurn(context.Background(), TurnInput{UserID: "u1", Positive: true})
	require.NoError(t, err)
	assert.True(t, out.DeEscalation.Should)
	assert.Equal(t, mood.ConflictNone, out.State.ConflictState)
	assert.Nil(t, out.State.ConflictStartedAt)
	assert.Empty(t, out.State.ConflictTrigger)
	require.Len(t, out.Events, 1)
	assert.Equal(t, logging.EventDeEscalation, out.Events[0].Kind)
}

func TestProcessTurnIgnoredMessages(t *testing.T) {
	p, _ := newTestPipeline(t)
	two := 2

	out, err := p.ProcessTurn(context.Background(), TurnInput{UserID: "u1", IgnoredMessages: &two})
	require.NoError(t, err)
	assert.Equal(t, 2, out.State.IgnoredMessageCount)
	assert.Equal(t, mood.ConflictPassiveAggressive, out.State.ConflictState)
}

func TestProcessTurnRecoveryAttempt(t *testing.T) {
	p, st := newTestPipeline(t)
	seed(t, st, "u1", mood.ConflictCold, dims(0.5, 0.2, 0.5, 0.5), time.Hour)

	out, err := p.ProcessTurn(context.Background(), TurnInput{
		UserID:   "u1",
		Approach: recovery.ApproachNeutral,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Recovery)
	assert.False(t, out.Recovery.Recovered)
	assert.InDelta(t, 0.1, out.State.RecoveryProgress(), 1e-9)
	assert.Equal(t, mood.ConflictCold, out.State.ConflictState)

	full := 1.0
	out, err = p.ProcessTurn(context.Background(), TurnInput{
		UserID:    "u1",
		Approach:  recovery.ApproachApologetic,
		Intensity: &full,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Recovery)
	assert.True(t, out.Recovery.Recovered)
	assert.Equal(t, mood.ConflictNone, out.State.ConflictState)
	require.Len(t, out.Events, 1)
	assert.Equal(t, logging.EventRecovery, out.Events[0].Kind)
}

func TestProcessTurnApproachIntensity(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()
	calm := dims(0.5, 0.45, 0.5, 0.5)

	// no intensity given: a full-strength apology clears cold in one turn.
	seed(t, st, "full", mood.ConflictCold, calm, time.Hour)
	out, err := p.ProcessTurn(ctx, TurnInput{UserID: "full", Approach: recovery.ApproachApologetic})
	require.NoError(t, err)
	require.NotNil(t, out.Recovery)
	assert.InDelta(t, 0.4, out.Recovery.ProgressAdded, 1e-9)
	assert.True(t, out.Recovery.Recovered)
	assert.Equal(t, mood.ConflictNone, out.State.ConflictState)

	half := 0.5
	seed(t, st, "half", mood.ConflictCold, calm, time.Hour)
	out, err = p.ProcessTurn(ctx, TurnInput{UserID: "half", Approach: recovery.ApproachApologetic, Intensity: &half})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, out.State.RecoveryProgress(), 1e-9)
	assert.Equal(t, mood.ConflictCold, out.State.ConflictState)

	zero := 0.0
	seed(t, st, "zero", mood.ConflictCold, calm, time.Hour)
	out, err = p.ProcessTurn(ctx, TurnInput{UserID: "zero", Approach: recovery.ApproachApologetic, Intensity: &zero})
	require.NoError(t, err)
	assert.Zero(t, out.State.RecoveryProgress())
}

func TestProcessTurnBackdatedTransition(t *testing.T) {
	p, st := newTestPipeline(t)
	seed(t, st, "u1", mood.ConflictNone, dims(0.5, 0.1, 0.5, 0.5), 72*time.Hour)

	// Monday afternoon, a day before the pipeline clock.
	ts := t0.Add(-24 * time.Hour)
	out, err := p.ProcessTurn(context.Background(), TurnInput{UserID: "u1", Timestamp: ts})
	require.NoError(t, err)
	assert.Equal(t, mood.ConflictCold, out.State.ConflictState)
	require.NotNil(t, out.State.ConflictStartedAt)
	assert.Equal(t, ts, *out.State.ConflictStartedAt)
	require.Len(t, out.Events, 1)
	assert.Equal(t, ts, out.Events[0].CreatedAt)
}

func TestProcessTurnDecayInsideTurn(t *testing.T) {
	p, st := newTestPipeline(t)
	// cold for 5 days with valence above the cold threshold: 4 days of
	// decay at 0.15/day clears it.
	seed(t, st, "u1", mood.ConflictCold, dims(0.5, 0.35, 0.5, 0.5), 5*24*time.Hour)

	out, err := p.ProcessTurn(context.Background(), TurnInput{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, out.Decay.Recovered)
	assert.Equal(t, mood.ConflictNone, out.State.ConflictState)
	require.Len(t, out.Events, 1)
	assert.Equal(t, logging.EventDecay, out.Events[0].Kind)
}

func TestProcessTurnErrorsDoNotSave(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.ProcessTurn(ctx, TurnInput{UserID: "u1", Chapter: "three"})
	assert.ErrorIs(t, err, mood.ErrNotNumeric)

	neg := -1
	_, err = p.ProcessTurn(ctx, TurnInput{UserID: "u1", IgnoredMessages: &neg})
	assert.ErrorIs(t, err, mood.ErrNegativeCount)

	_, err = p.ProcessTurn(ctx, TurnInput{})
	assert.Error(t, err)

	got, err := st.GetCurrent(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProcessTurnSerializesPerUser(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.ProcessTurn(ctx, TurnInput{UserID: "u1", Tones: []compute.Tone{compute.ToneSupportive}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	hist, err := st.History(ctx, "u1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, hist, 20)

	cur, err := st.GetCurrent(ctx, "u1")
	require.NoError(t, err)
	for _, h := range hist {
		assert.Equal(t, cur.StateID, h.StateID, "every turn updates the same state")
	}
	// each turn adds +0.1 valence on top of the last; capped at 1.
	assert.InDelta(t, 1.0, cur.Valence, 1e-9)
}

func TestProcessTurnJournalAndLogs(t *testing.T) {
	clock := func() time.Time { return t0 }
	st, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "mood.db"), state.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	j, err := logging.NewJournal(st.DB())
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	p := New(st, DefaultConfig(), WithClock(clock), WithJournal(j), WithLogger(zap.New(core)))

	_, err = p.ProcessTurn(context.Background(), TurnInput{
		UserID: "u1",
		Tones:  []compute.Tone{compute.ToneCold, compute.ToneDismissive},
	})
	require.NoError(t, err)

	events, err := j.Recent(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, logging.EventEscalation, events[0].Kind)
	assert.Equal(t, mood.ConflictCold, events[0].To)

	changed := logs.FilterMessage("conflict changed").All()
	require.Len(t, changed, 1)
	assert.Equal(t, "cold", changed[0].ContextMap()["to"])
}

func TestDecaySweep(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()
	calm := dims(0.5, 0.35, 0.5, 0.5)

	seed(t, st, "cold-3d", mood.ConflictCold, calm, 72*time.Hour)
	seed(t, st, "explosive-2d", mood.ConflictExplosive, calm, 48*time.Hour)
	seed(t, st, "cold-5d", mood.ConflictCold, calm, 120*time.Hour)
	seed(t, st, "fresh", mood.ConflictVulnerable, calm, time.Hour)
	seed(t, st, "calm", mood.ConflictNone, calm, time.Hour)

	out, err := p.DecaySweep(ctx, nil)
	require.NoError(t, err)
	require.Len(t, out, 4, "only users in conflict are swept")

	byUser := map[string]DecayOutcome{}
	for _, o := range out {
		byUser[o.UserID] = o
	}

	assert.InDelta(t, 0.3, byUser["cold-3d"].Result.Progress, 1e-9)
	assert.True(t, byUser["cold-3d"].Saved)
	assert.Equal(t, mood.ConflictCold, byUser["cold-3d"].To)

	assert.InDelta(t, 0.05, byUser["explosive-2d"].Result.Progress, 1e-9)

	assert.True(t, byUser["cold-5d"].Result.Recovered)
	assert.Equal(t, mood.ConflictNone, byUser["cold-5d"].To)

	assert.False(t, byUser["fresh"].Saved, "cooldown credits nothing")

	cur, err := st.GetCurrent(ctx, "cold-3d")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, cur.RecoveryProgress(), 1e-9)

	fresh, err := st.History(ctx, "fresh", 0, 0)
	require.NoError(t, err)
	assert.Len(t, fresh, 1, "unchanged states are not re-saved")
}

func TestDecaySweepExplicitUsers(t *testing.T) {
	p, st := newTestPipeline(t)
	seed(t, st, "u1", mood.ConflictCold, dims(0.5, 0.35, 0.5, 0.5), 72*time.Hour)

	out, err := p.DecaySweep(context.Background(), []string{"u1", "ghost"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "u1", out[0].UserID)
	assert.True(t, out[0].Saved)
	assert.Equal(t, "ghost", out[1].UserID)
	assert.False(t, out[1].Saved)
}

func TestDecaySweepManyUsers(t *testing.T) {
	clock := func() time.Time { return t0 }
	st := state.NewMemoryStore(state.WithClock(clock))
	cfg := DefaultConfig()
	cfg.DecayWorkers = 3
	p := New(st, cfg, WithClock(clock))

	var ids []string
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("user-%02d", i)
		ids = append(ids, id)
		seed(t, st, id, mood.ConflictPassiveAggressive, dims(0.5, 0.5, 0.5, 0.5), 48*time.Hour)
	}

	out, err := p.DecaySweep(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, out, 50)
	for i, o := range out {
		assert.Equal(t, ids[i], o.UserID)
		assert.InDelta(t, 0.25, o.Result.Progress, 1e-9)
	}
}

func TestDecaySweepCancelled(t *testing.T) {
	p, st := newTestPipeline(t)
	seed(t, st, "u1", mood.ConflictCold, dims(0.5, 0.35, 0.5, 0.5), 72*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.DecaySweep(ctx, []string{"u1"})
	assert.ErrorIs(t, err, context.Canceled)
}
