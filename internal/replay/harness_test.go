package replay

import (
	"context"
	"testing"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/logging"
	"github.com/danielpatrickdp/moodengine/internal/mood"
	"github.com/danielpatrickdp/moodengine/internal/pipeline"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // Monday morning

// helper: fixture with no start state and n empty turns one minute apart.
func emptyFixture(n int) *Fixture {
	f := &Fixture{UserID: "u1"}
	for i := 0; i < n; i++ {
		f.Turns = append(f.Turns, FixtureTurn{
			TurnID:    string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return f
}

// 1. No start state: the first turn creates a neutral state from the clock.
func TestReplay_CreatesState(t *testing.T) {
	f := emptyFixture(2)
	results, err := Replay(context.Background(), f, pipeline.DefaultConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	r := results[0]
	if r.From != mood.ConflictNone || r.To != mood.ConflictNone || r.Action != "steady" {
		t.Errorf("unexpected first result: %+v", r)
	}
	if !r.State.CreatedAt.Equal(base) {
		t.Errorf("expected created_at %v, got %v", base, r.State.CreatedAt)
	}
	if results[1].State.StateID != r.State.StateID {
		t.Error("expected the same state across turns")
	}
}

// 2. Ignored messages escalate to passive-aggressive and answered messages calm it.
func TestReplay_PassiveAggressiveRoundTrip(t *testing.T) {
	f := emptyFixture(2)
	three, zero := 3, 0
	f.Turns[0].IgnoredMessages = &three
	f.Turns[1].IgnoredMessages = &zero
	f.Turns[1].Positive = true

	results, err := Replay(context.Background(), f, pipeline.DefaultConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if results[0].To != mood.ConflictPassiveAggressive || results[0].Action != "escalation" {
		t.Errorf("turn a: expected escalation to passive_aggressive, got %s/%s", results[0].Action, results[0].To)
	}
	if results[1].To != mood.ConflictNone || results[1].Action != "de_escalation" {
		t.Errorf("turn b: expected de_escalation to none, got %s/%s", results[1].Action, results[1].To)
	}
}

// 3. Anxious attachment lowers the explosive arousal threshold.
func TestReplay_AnxiousAttachment(t *testing.T) {
	f := emptyFixture(1)
	f.Attachment = "anxious"
	f.StartState = &FixtureStartState{
		Arousal: 0.72, Valence: 0.2, Dominance: 0.5, Intimacy: 0.5,
		ConflictState: "cold", CreatedAt: base.Add(-time.Hour),
	}
	results, err := Replay(context.Background(), f, pipeline.DefaultConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if results[0].To != mood.ConflictExplosive {
		t.Errorf("expected explosive for anxious style, got %s", results[0].To)
	}

	f.Attachment = "secure"
	results, err = Replay(context.Background(), f, pipeline.DefaultConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if results[0].To != mood.ConflictCold {
		t.Errorf("expected cold for secure style, got %s", results[0].To)
	}
}

// 4. Replay errors surface with the turn id and keep earlier results.
func TestReplay_TurnError(t *testing.T) {
	f := emptyFixture(2)
	f.Turns[1].Chapter = "seven"
	results, err := Replay(context.Background(), f, pipeline.DefaultConfig())
	if err == nil {
		t.Fatal("expected error for non-numeric chapter")
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result before the failure, got %d", len(results))
	}
}

// 5. Check reports only the turns that differ.
func TestCheck_Mismatches(t *testing.T) {
	f := &Fixture{Expected: []FixtureExpected{
		{TurnID: "a", ConflictState: "cold"},
		{TurnID: "b", ConflictState: "none"},
		{TurnID: "c", ConflictState: "none"},
	}}
	results := []Result{
		{TurnID: "a", To: mood.ConflictCold},
		{TurnID: "b", To: mood.ConflictVulnerable, Reason: "intimacy dropped"},
	}
	got := Check(f, results)
	if len(got) != 2 {
		t.Fatalf("expected 2 mismatches, got %d: %v", len(got), got)
	}
	if got[0].TurnID != "b" || got[0].Got != mood.ConflictVulnerable {
		t.Errorf("unexpected mismatch: %s", got[0])
	}
	if got[1].TurnID != "c" || got[1].Reason != "turn not replayed" {
		t.Errorf("unexpected mismatch: %s", got[1])
	}
}

// 6. Summarize counts every event, even two in one turn.
func TestSummarize_CountsEvents(t *testing.T) {
	results := []Result{
		{Events: []logging.Event{{Kind: logging.EventEscalation}, {Kind: logging.EventRecovery}}},
		{},
		{Events: []logging.Event{{Kind: logging.EventDecay}}, State: mood.EmotionalState{UserID: "last"}},
	}
	s := Summarize(results)
	if s.TotalTurns != 3 || s.Escalations != 1 || s.Recoveries != 1 || s.Decays != 1 || s.Steady != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.FinalState.UserID != "last" {
		t.Errorf("expected final state from the last result, got %q", s.FinalState.UserID)
	}
}

// 7. Empty input.
func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalTurns != 0 || s.Steady != 0 {
		t.Errorf("unexpected summary: %+v", s)
	}
}
