package mood

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// #region constructors
// New validates s and fills the bookkeeping fields a caller may leave empty:
// StateID, CreatedAt, LastUpdated, and the conflict coupling fields.
// Out-of-range dimensions and negative counts are rejected, never clamped.
func New(s EmotionalState, now time.Time) (EmotionalState, error) {
	if s.ConflictState == "" {
		s.ConflictState = ConflictNone
	}
	if s.StateID == "" {
		s.StateID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.LastUpdated.IsZero() {
		s.LastUpdated = now
	}
	if s.ConflictState.Active() {
		if s.ConflictStartedAt == nil {
			t := now
			s.ConflictStartedAt = &t
		}
		if s.ConflictTrigger == "" {
			s.ConflictTrigger = defaultTrigger(s.ConflictState)
		}
	} else {
		s.ConflictStartedAt = nil
		s.ConflictTrigger = ""
	}
	s.Metadata = s.Metadata.Clone()
	if err := s.Validate(); err != nil {
		return EmotionalState{}, err
	}
	return s, nil
}

// NewNeutral returns the default state created once per user:
// 0.5 on every dimension and no conflict.
func NewNeutral(userID string, now time.Time) EmotionalState {
	return EmotionalState{
		StateID:       uuid.New().String(),
		UserID:        userID,
		Dimensions:    NeutralDimensions(),
		ConflictState: ConflictNone,
		LastUpdated:   now,
		CreatedAt:     now,
	}
}

// #endregion constructors

// #region validate
// Validate checks every invariant of an EmotionalState.
func (s EmotionalState) Validate() error {
	if err := s.Dimensions.Validate(); err != nil {
		return err
	}
	if s.IgnoredMessageCount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeCount, s.IgnoredMessageCount)
	}
	if !s.ConflictState.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidConflictState, s.ConflictState)
	}
	active := s.ConflictState.Active()
	if active != (s.ConflictStartedAt != nil) || active != (s.ConflictTrigger != "") {
		return fmt.Errorf("%w: state=%s started_at_set=%v trigger_set=%v",
			ErrConflictCouplingBroken, s.ConflictState, s.ConflictStartedAt != nil, s.ConflictTrigger != "")
	}
	return nil
}

// Validate fails if any dimension is outside [0,1] or not a number.
func (d Dimensions) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"arousal", d.Arousal},
		{"valence", d.Valence},
		{"dominance", d.Dominance},
		{"intimacy", d.Intimacy},
	} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return fmt.Errorf("%w: %s=%v", ErrOutOfRange, f.name, f.v)
		}
	}
	return nil
}

// #endregion validate

// #region arithmetic
// Apply adds delta and clamps each dimension back into [0,1].
func (d Dimensions) Apply(delta Delta) Dimensions {
	return Dimensions{
		Arousal:   Clamp01(d.Arousal + delta.Arousal),
		Valence:   Clamp01(d.Valence + delta.Valence),
		Dominance: Clamp01(d.Dominance + delta.Dominance),
		Intimacy:  Clamp01(d.Intimacy + delta.Intimacy),
	}
}

// Clamp returns d with every dimension forced into [0,1].
func (d Dimensions) Clamp() Dimensions {
	return d.Apply(Delta{})
}

// Add sums two deltas without clamping.
func (d Delta) Add(o Delta) Delta {
	return Delta{
		Arousal:   d.Arousal + o.Arousal,
		Valence:   d.Valence + o.Valence,
		Dominance: d.Dominance + o.Dominance,
		Intimacy:  d.Intimacy + o.Intimacy,
	}
}

// Limit clamps every component into [-limit, +limit].
func (d Delta) Limit(limit float64) Delta {
	return Delta{
		Arousal:   clampAbs(d.Arousal, limit),
		Valence:   clampAbs(d.Valence, limit),
		Dominance: clampAbs(d.Dominance, limit),
		Intimacy:  clampAbs(d.Intimacy, limit),
	}
}

// IsZero reports whether no component moves.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Clamp01 forces v into [0,1]; NaN becomes the neutral value.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return Neutral
	}
	return math.Max(0, math.Min(1, v))
}

func clampAbs(v, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-limit, math.Min(limit, v))
}

// #endregion arithmetic

// #region functional-updates
// WithDimensions returns a copy carrying d (clamped) and a fresh LastUpdated.
func (s EmotionalState) WithDimensions(d Dimensions, now time.Time) EmotionalState {
	out := s.copy(now)
	out.Dimensions = d.Clamp()
	return out
}

// WithConflict returns a copy in conflict kind c. Moving to none clears the
// start time and trigger; moving to a different active kind restarts the
// episode clock; staying in the same kind keeps the original start time.
// An empty trigger for an active kind is replaced by a generic description.
func (s EmotionalState) WithConflict(c ConflictState, trigger string, now time.Time) EmotionalState {
	out := s.copy(now)
	if !c.Active() {
		out.ConflictState = ConflictNone
		out.ConflictStartedAt = nil
		out.ConflictTrigger = ""
		return out
	}
	if c != s.ConflictState || s.ConflictStartedAt == nil {
		t := now
		out.ConflictStartedAt = &t
	}
	out.ConflictState = c
	if trigger == "" {
		trigger = s.ConflictTrigger
		if c != s.ConflictState || trigger == "" {
			trigger = defaultTrigger(c)
		}
	}
	out.ConflictTrigger = trigger
	return out
}

// WithIgnoredMessageCount returns a copy with n ignored messages.
func (s EmotionalState) WithIgnoredMessageCount(n int, now time.Time) (EmotionalState, error) {
	if n < 0 {
		return EmotionalState{}, fmt.Errorf("%w: %d", ErrNegativeCount, n)
	}
	out := s.copy(now)
	out.IgnoredMessageCount = n
	return out, nil
}

// WithMetadata returns a copy with key set to value. A nil value deletes the key.
func (s EmotionalState) WithMetadata(key string, value any, now time.Time) EmotionalState {
	out := s.copy(now)
	if out.Metadata == nil {
		out.Metadata = Metadata{}
	}
	if value == nil {
		delete(out.Metadata, key)
		return out
	}
	out.Metadata[key] = value
	return out
}

// RecoveryProgress returns the stored recovery progress, 0 when absent.
func (s EmotionalState) RecoveryProgress() float64 {
	v, _ := s.Metadata.Float(KeyRecoveryProgress)
	return v
}

// ConflictAge is how long the current episode has lasted; zero without a conflict.
func (s EmotionalState) ConflictAge(now time.Time) time.Duration {
	if s.ConflictStartedAt == nil {
		return 0
	}
	return now.Sub(*s.ConflictStartedAt)
}

// Clone returns a deep copy that shares no map or pointer with s.
func (s EmotionalState) Clone() EmotionalState {
	return s.copy(s.LastUpdated)
}

func (s EmotionalState) copy(now time.Time) EmotionalState {
	out := s
	out.Metadata = s.Metadata.Clone()
	if s.ConflictStartedAt != nil {
		t := *s.ConflictStartedAt
		out.ConflictStartedAt = &t
	}
	out.LastUpdated = now
	return out
}

func defaultTrigger(c ConflictState) string {
	return "transition to " + string(c)
}

// #endregion functional-updates
