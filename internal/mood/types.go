package mood

import (
	"errors"
	"fmt"
	"time"
)

// #region errors
var (
	ErrOutOfRange             = errors.New("dimension out of range [0,1]")
	ErrNegativeCount          = errors.New("ignored message count is negative")
	ErrInvalidConflictState   = errors.New("invalid conflict state")
	ErrNotNumeric             = errors.New("value is not numeric")
	ErrConflictCouplingBroken = errors.New("conflict fields out of sync")
)

// #endregion errors

// #region conflict-state
// ConflictState classifies the adversarial mode the character is in.
type ConflictState string

const (
	ConflictNone              ConflictState = "none"
	ConflictPassiveAggressive ConflictState = "passive_aggressive"
	ConflictCold              ConflictState = "cold"
	ConflictVulnerable        ConflictState = "vulnerable"
	ConflictExplosive         ConflictState = "explosive"
)

// SeverityOrder lists conflict kinds from least to most severe.
// VULNERABLE ranks above COLD.
var SeverityOrder = []ConflictState{
	ConflictNone,
	ConflictPassiveAggressive,
	ConflictCold,
	ConflictVulnerable,
	ConflictExplosive,
}

// Severity returns the index of c in SeverityOrder, or -1 for unknown values.
func (c ConflictState) Severity() int {
	for i, k := range SeverityOrder {
		if k == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c is one of the five known kinds.
func (c ConflictState) Valid() bool {
	return c.Severity() >= 0
}

// Active reports whether c is a conflict episode (anything but none).
func (c ConflictState) Active() bool {
	return c != ConflictNone && c != ""
}

func (c ConflictState) String() string {
	return string(c)
}

// ParseConflictState maps a stored or user-supplied name to a ConflictState.
// The empty string parses as none.
func ParseConflictState(s string) (ConflictState, error) {
	if s == "" {
		return ConflictNone, nil
	}
	c := ConflictState(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidConflictState, s)
	}
	return c, nil
}

// #endregion conflict-state

// #region dimensions
// Dimensions is the 4D affect vector. Every field lives in [0,1].
type Dimensions struct {
	Arousal   float64 `json:"arousal"`
	Valence   float64 `json:"valence"`
	Dominance float64 `json:"dominance"`
	Intimacy  float64 `json:"intimacy"`
}

// Neutral is the resting point of every dimension.
const Neutral = 0.5

// NeutralDimensions returns 0.5 on all axes.
func NeutralDimensions() Dimensions {
	return Dimensions{Arousal: Neutral, Valence: Neutral, Dominance: Neutral, Intimacy: Neutral}
}

// Delta is a signed per-dimension change.
type Delta struct {
	Arousal   float64 `json:"arousal"`
	Valence   float64 `json:"valence"`
	Dominance float64 `json:"dominance"`
	Intimacy  float64 `json:"intimacy"`
}

// #endregion dimensions

// #region emotional-state
// EmotionalState is the character's instantaneous affect for one user.
// It is a value type: helpers return modified copies and never mutate the receiver.
type EmotionalState struct {
	StateID string `json:"state_id"`
	UserID  string `json:"user_id"`

	Dimensions

	ConflictState       ConflictState `json:"conflict_state"`
	ConflictStartedAt   *time.Time    `json:"conflict_started_at,omitempty"`
	ConflictTrigger     string        `json:"conflict_trigger,omitempty"`
	IgnoredMessageCount int           `json:"ignored_message_count"`

	LastUpdated time.Time `json:"last_updated"`
	CreatedAt   time.Time `json:"created_at"`

	Metadata Metadata `json:"metadata,omitempty"`
}

// #endregion emotional-state

// #region metadata
// Metadata keys written by the recovery manager.
const (
	KeyRecoveryProgress = "recovery_progress"
	KeyLastDecayCheck   = "last_decay_check"
)

// Metadata is the open key/value bag attached to a state.
type Metadata map[string]any

// Clone returns a shallow copy; nil stays nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Float reads a numeric value. Values decoded from JSON or protobuf arrive as
// float64 but ints and numeric strings are accepted too.
func (m Metadata) Float(key string) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	f, err := ToFloat64(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Time reads a timestamp stored as RFC3339Nano text or time.Time.
func (m Metadata) Time(key string) (time.Time, bool) {
	switch v := m[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// #endregion metadata
