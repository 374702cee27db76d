package recovery

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// ErrUnknownApproach is returned by ParseApproach.
var ErrUnknownApproach = errors.New("unknown recovery approach")

// #region approach
// Approach is how the user behaved in a repair attempt.
type Approach string

const (
	ApproachApologetic Approach = "apologetic"
	ApproachValidating Approach = "validating"
	ApproachNeutral    Approach = "neutral"
	ApproachDefensive  Approach = "defensive"
	ApproachDismissive Approach = "dismissive"
)

// Approaches lists every approach, most to least effective.
var Approaches = []Approach{ApproachApologetic, ApproachValidating, ApproachNeutral, ApproachDefensive, ApproachDismissive}

// ParseApproach accepts any casing and surrounding whitespace.
func ParseApproach(s string) (Approach, error) {
	a := Approach(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Approaches {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownApproach, s)
}

// #endregion approach

// #region config
// Config holds the recovery rates, thresholds and timings.
type Config struct {
	BaseIncrement       float64                        // progress per interaction before rates (0.2)
	ApproachRates       map[Approach]float64           // multiplier per approach
	Thresholds          map[mood.ConflictState]float64 // progress needed to step down
	KindDiscounts       map[mood.ConflictState]float64 // RecoveryRate multiplier; absent means 1
	DecayPerDay         map[mood.ConflictState]float64 // passive progress per day after the cooldown
	Cooldown            time.Duration                  // no decay before conflict start + Cooldown
	InteractionInterval time.Duration                  // assumed gap between interactions for estimates
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		BaseIncrement: 0.2,
		ApproachRates: map[Approach]float64{
			ApproachApologetic: 2.0,
			ApproachValidating: 1.5,
			ApproachNeutral:    0.5,
			ApproachDefensive:  0.1,
			ApproachDismissive: 0.0,
		},
		Thresholds: map[mood.ConflictState]float64{
			mood.ConflictExplosive:         0.3,
			mood.ConflictCold:              0.4,
			mood.ConflictVulnerable:        0.5,
			mood.ConflictPassiveAggressive: 0.3,
		},
		KindDiscounts: map[mood.ConflictState]float64{
			mood.ConflictExplosive: 0.5,
			mood.ConflictCold:      0.7,
		},
		DecayPerDay: map[mood.ConflictState]float64{
			mood.ConflictExplosive:         0.05,
			mood.ConflictCold:              0.15,
			mood.ConflictVulnerable:        0.2,
			mood.ConflictPassiveAggressive: 0.25,
		},
		Cooldown:            24 * time.Hour,
		InteractionInterval: time.Hour,
	}
}

// #endregion config

// #region result
// Result describes one recovery attempt. It is informational only.
type Result struct {
	Recovered     bool               `json:"recovered"`
	ConflictState mood.ConflictState `json:"conflict_state"`
	ProgressAdded float64            `json:"progress_added"`
	Progress      float64            `json:"progress"`
	Reason        string             `json:"reason"`
}

// #endregion result

// nextStep is the one-step de-escalation used by both recovery paths.
var nextStep = map[mood.ConflictState]mood.ConflictState{
	mood.ConflictExplosive:         mood.ConflictCold,
	mood.ConflictCold:              mood.ConflictNone,
	mood.ConflictVulnerable:        mood.ConflictNone,
	mood.ConflictPassiveAggressive: mood.ConflictNone,
}
