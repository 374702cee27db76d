package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/compute"
	"github.com/danielpatrickdp/moodengine/internal/conflict"
	"github.com/danielpatrickdp/moodengine/internal/mood"
	"github.com/danielpatrickdp/moodengine/internal/pipeline"
	"github.com/danielpatrickdp/moodengine/internal/recovery"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string             `json:"description"`
	UserID      string             `json:"user_id"`
	Attachment  string             `json:"attachment_style,omitempty"`
	StartState  *FixtureStartState `json:"start_state,omitempty"`
	Turns       []FixtureTurn      `json:"turns"`
	Expected    []FixtureExpected  `json:"expected"`
}

// FixtureStartState is the JSON-serializable initial state.
type FixtureStartState struct {
	Arousal             float64    `json:"arousal"`
	Valence             float64    `json:"valence"`
	Dominance           float64    `json:"dominance"`
	Intimacy            float64    `json:"intimacy"`
	ConflictState       string     `json:"conflict_state"`
	ConflictStartedAt   *time.Time `json:"conflict_started_at,omitempty"`
	ConflictTrigger     string     `json:"conflict_trigger,omitempty"`
	IgnoredMessageCount int        `json:"ignored_message_count"`
	RecoveryProgress    float64    `json:"recovery_progress,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// FixtureTurn is one timed step. A decay_only turn runs a decay sweep for
// the fixture user instead of a conversation turn.
type FixtureTurn struct {
	TurnID            string              `json:"turn_id"`
	Timestamp         time.Time           `json:"timestamp"`
	DecayOnly         bool                `json:"decay_only,omitempty"`
	LifeEvents        []compute.LifeEvent `json:"life_events,omitempty"`
	Tones             []string            `json:"tones,omitempty"`
	Chapter           any                 `json:"chapter,omitempty"`
	RelationshipScore any                 `json:"relationship_score,omitempty"`
	IgnoredMessages   *int                `json:"ignored_messages,omitempty"`
	Positive          bool                `json:"positive,omitempty"`
	Approach          string              `json:"approach,omitempty"`
	Intensity         *float64            `json:"intensity,omitempty"` // absent means 1
}

// FixtureExpected captures the expected conflict kind after a turn.
type FixtureExpected struct {
	TurnID        string `json:"turn_id"`
	ConflictState string `json:"conflict_state"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads, parses and validates a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks that the fixture can be replayed: a user, timestamped
// turns in order, and known names for every enum.
func (f *Fixture) Validate() error {
	var errs []error
	if f.UserID == "" {
		errs = append(errs, errors.New("user_id is required"))
	}
	if _, err := conflict.ParseAttachmentStyle(f.Attachment); err != nil {
		errs = append(errs, err)
	}
	if f.StartState != nil {
		if _, err := mood.ParseConflictState(f.StartState.ConflictState); err != nil {
			errs = append(errs, fmt.Errorf("start_state: %w", err))
		}
	}
	var last time.Time
	ids := map[string]bool{}
	for i, t := range f.Turns {
		if t.TurnID == "" {
			errs = append(errs, fmt.Errorf("turn %d: turn_id is required", i))
		}
		ids[t.TurnID] = true
		if t.Timestamp.IsZero() {
			errs = append(errs, fmt.Errorf("turn %s: timestamp is required", t.TurnID))
		} else if t.Timestamp.Before(last) {
			errs = append(errs, fmt.Errorf("turn %s: timestamp goes backwards", t.TurnID))
		} else {
			last = t.Timestamp
		}
		if t.Approach != "" {
			if _, err := recovery.ParseApproach(t.Approach); err != nil {
				errs = append(errs, fmt.Errorf("turn %s: %w", t.TurnID, err))
			}
		}
		if _, err := compute.ParseTones(t.Tones); err != nil {
			errs = append(errs, fmt.Errorf("turn %s: %w", t.TurnID, err))
		}
	}
	for _, e := range f.Expected {
		if !ids[e.TurnID] {
			errs = append(errs, fmt.Errorf("expected: unknown turn %q", e.TurnID))
		}
		if _, err := mood.ParseConflictState(e.ConflictState); err != nil {
			errs = append(errs, fmt.Errorf("expected %s: %w", e.TurnID, err))
		}
	}
	return errors.Join(errs...)
}

// ToState converts the start state to a validated EmotionalState for userID.
func (s *FixtureStartState) ToState(userID string) (mood.EmotionalState, error) {
	kind, err := mood.ParseConflictState(s.ConflictState)
	if err != nil {
		return mood.EmotionalState{}, err
	}
	st := mood.EmotionalState{
		UserID: userID,
		Dimensions: mood.Dimensions{
			Arousal:   s.Arousal,
			Valence:   s.Valence,
			Dominance: s.Dominance,
			Intimacy:  s.Intimacy,
		},
		ConflictState:       kind,
		ConflictStartedAt:   s.ConflictStartedAt,
		ConflictTrigger:     s.ConflictTrigger,
		IgnoredMessageCount: s.IgnoredMessageCount,
	}
	if s.RecoveryProgress > 0 {
		st.Metadata = mood.Metadata{mood.KeyRecoveryProgress: s.RecoveryProgress}
	}
	return mood.New(st, s.CreatedAt)
}

// ToTurnInput converts a FixtureTurn to a pipeline turn for userID.
func (ft *FixtureTurn) ToTurnInput(userID string, style conflict.AttachmentStyle) (pipeline.TurnInput, error) {
	in := pipeline.TurnInput{
		UserID:            userID,
		Timestamp:         ft.Timestamp,
		LifeEvents:        ft.LifeEvents,
		Chapter:           ft.Chapter,
		RelationshipScore: ft.RelationshipScore,
		IgnoredMessages:   ft.IgnoredMessages,
		Attachment:        style,
		Positive:          ft.Positive,
		Intensity:         ft.Intensity,
	}
	var err error
	if in.Tones, err = compute.ParseTones(ft.Tones); err != nil {
		return pipeline.TurnInput{}, err
	}
	if ft.Approach != "" {
		a, err := recovery.ParseApproach(ft.Approach)
		if err != nil {
			return pipeline.TurnInput{}, err
		}
		in.Approach = a
	}
	return in, nil
}

// #endregion fixture-loader
