package compute

import (
	"time"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// #region tone
// Tone is a pre-classified conversation tone supplied by the caller.
type Tone string

const (
	ToneSupportive Tone = "supportive"
	ToneDismissive Tone = "dismissive"
	ToneRomantic   Tone = "romantic"
	ToneCold       Tone = "cold"
	TonePlayful    Tone = "playful"
	ToneAnxious    Tone = "anxious"
	ToneApologetic Tone = "apologetic"
	ToneNeutral    Tone = "neutral"
)

// #endregion tone

// #region life-event
// LifeEvent is one impact produced by the life simulation: four signed deltas.
type LifeEvent struct {
	Name   string     `json:"name,omitempty"`
	Impact mood.Delta `json:"impact"`
}

// #endregion life-event

// #region input
// Input carries everything one computation cycle may use. Nil or empty
// optional fields contribute no delta. Chapter and RelationshipScore accept
// any numeric-like value and are normalized before use.
type Input struct {
	UserID            string
	Current           *mood.EmotionalState
	Timestamp         time.Time
	LifeEvents        []LifeEvent
	Tones             []Tone
	Chapter           any
	RelationshipScore any
}

// #endregion input

// #region config
// Config holds the clamping limits for each delta source.
type Config struct {
	MaxEventDelta           float64 // per-dimension cap on the summed life-event delta (default 0.3)
	MaxToneDelta            float64 // per-dimension cap on the summed tone delta (default 0.4)
	RelationshipValenceGain float64 // valence per unit of (score - 0.5) (default 0.2)
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxEventDelta:           0.3,
		MaxToneDelta:            0.4,
		RelationshipValenceGain: 0.2,
	}
}

// #endregion config

// #region result
// Breakdown records the deltas actually applied in each step.
type Breakdown struct {
	Base         mood.Dimensions
	TimeOfDay    string
	DayType      string
	Events       mood.Delta
	Tones        mood.Delta
	Relationship mood.Delta
	Chapter      int
	Score        float64
}

// Result bundles the new state with the breakdown that produced it.
type Result struct {
	State     mood.EmotionalState
	Breakdown Breakdown
}

// #endregion result
