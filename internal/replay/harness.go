package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/conflict"
	"github.com/danielpatrickdp/moodengine/internal/logging"
	"github.com/danielpatrickdp/moodengine/internal/mood"
	"github.com/danielpatrickdp/moodengine/internal/pipeline"
	"github.com/danielpatrickdp/moodengine/internal/state"
)

// #region types
// Result captures the outcome of one fixture turn.
type Result struct {
	TurnID    string
	Timestamp time.Time
	From      mood.ConflictState
	To        mood.ConflictState
	Action    string // last event kind, or "steady"
	Reason    string
	Progress  float64
	Events    []logging.Event
	State     mood.EmotionalState
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalTurns    int
	Escalations   int
	DeEscalations int
	Recoveries    int
	Decays        int
	Steady        int
	FinalState    mood.EmotionalState
}

// Mismatch is one turn whose conflict kind differs from the fixture's expectation.
type Mismatch struct {
	TurnID string
	Want   mood.ConflictState
	Got    mood.ConflictState
	Reason string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: want %s, got %s (%s)", m.TurnID, m.Want, m.Got, m.Reason)
}

// #endregion types

// #region clock
// fixtureClock is moved to each turn's timestamp before the turn runs.
type fixtureClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixtureClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixtureClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC()
	c.mu.Unlock()
}

// #endregion clock

// #region replay
// Replay runs every fixture turn through a fresh pipeline backed by an
// in-memory store. The pipeline clock follows the turn timestamps, so
// timeouts and decay behave as they would have at those times.
func Replay(ctx context.Context, f *Fixture, cfg pipeline.Config, opts ...pipeline.Option) ([]Result, error) {
	clock := &fixtureClock{}
	if len(f.Turns) > 0 {
		clock.Set(f.Turns[0].Timestamp)
	}
	store := state.NewMemoryStore(state.WithClock(clock.Now))
	p := pipeline.New(store, cfg, append(opts, pipeline.WithClock(clock.Now))...)

	if f.StartState != nil {
		start := *f.StartState
		if start.CreatedAt.IsZero() {
			start.CreatedAt = clock.Now()
		}
		s, err := start.ToState(f.UserID)
		if err != nil {
			return nil, fmt.Errorf("start state: %w", err)
		}
		if err := store.Save(ctx, s); err != nil {
			return nil, fmt.Errorf("start state: %w", err)
		}
	}

	style, err := conflict.ParseAttachmentStyle(f.Attachment)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(f.Turns))
	for i := range f.Turns {
		turn := &f.Turns[i]
		clock.Set(turn.Timestamp)

		from := mood.ConflictNone
		if cur, err := store.GetCurrent(ctx, f.UserID); err != nil {
			return results, err
		} else if cur != nil {
			from = cur.ConflictState
		}

		r := Result{TurnID: turn.TurnID, Timestamp: turn.Timestamp, From: from, Action: "steady"}
		if turn.DecayOnly {
			outs, err := p.DecaySweep(ctx, []string{f.UserID})
			if err != nil {
				return results, fmt.Errorf("turn %s: %w", turn.TurnID, err)
			}
			o := outs[0]
			r.Reason = o.Result.Reason
			if o.Result.Recovered {
				r.Events = []logging.Event{{
					UserID: f.UserID, Kind: logging.EventDecay,
					From: o.From, To: o.To, Progress: o.Result.Progress,
					Reason: o.Result.Reason, CreatedAt: turn.Timestamp,
				}}
			}
			cur, err := store.GetCurrent(ctx, f.UserID)
			if err != nil {
				return results, err
			}
			if cur != nil {
				r.State = *cur
			}
		} else {
			in, err := turn.ToTurnInput(f.UserID, style)
			if err != nil {
				return results, fmt.Errorf("turn %s: %w", turn.TurnID, err)
			}
			out, err := p.ProcessTurn(ctx, in)
			if err != nil {
				return results, fmt.Errorf("turn %s: %w", turn.TurnID, err)
			}
			r.State = out.State
			r.Events = out.Events
			r.Reason = out.Escalation.Reason
			if !out.Escalation.Should && out.DeEscalation.Reason != "" {
				r.Reason = out.DeEscalation.Reason
			}
		}

		r.To = r.State.ConflictState
		if !r.To.Valid() {
			r.To = mood.ConflictNone
		}
		r.Progress = r.State.RecoveryProgress()
		if n := len(r.Events); n > 0 {
			last := r.Events[n-1]
			r.Action = string(last.Kind)
			r.Reason = last.Reason
		}
		results = append(results, r)
	}
	return results, nil
}

// Check compares results against the fixture's expected conflict kinds.
func Check(f *Fixture, results []Result) []Mismatch {
	byTurn := make(map[string]Result, len(results))
	for _, r := range results {
		byTurn[r.TurnID] = r
	}
	var out []Mismatch
	for _, e := range f.Expected {
		want, _ := mood.ParseConflictState(e.ConflictState)
		r, ok := byTurn[e.TurnID]
		if !ok {
			out = append(out, Mismatch{TurnID: e.TurnID, Want: want, Reason: "turn not replayed"})
			continue
		}
		if r.To != want {
			out = append(out, Mismatch{TurnID: e.TurnID, Want: want, Got: r.To, Reason: r.Reason})
		}
	}
	return out
}

// Summarize computes aggregate stats from replay results. Every event
// counts, so one turn may add to more than one total.
func Summarize(results []Result) Summary {
	s := Summary{TotalTurns: len(results)}
	for _, r := range results {
		if len(r.Events) == 0 {
			s.Steady++
		}
		for _, e := range r.Events {
			switch e.Kind {
			case logging.EventEscalation:
				s.Escalations++
			case logging.EventDeEscalation:
				s.DeEscalations++
			case logging.EventRecovery:
				s.Recoveries++
			case logging.EventDecay:
				s.Decays++
			}
		}
	}
	if n := len(results); n > 0 {
		s.FinalState = results[n-1].State
	}
	return s
}

// #endregion replay
