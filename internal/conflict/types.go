package conflict

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// #region errors
// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid conflict transition")

// ErrUnknownAttachment is returned by ParseAttachmentStyle.
var ErrUnknownAttachment = errors.New("unknown attachment style")

// TransitionError reports an attempt to move along an edge the graph does not have.
type TransitionError struct {
	From mood.ConflictState
	To   mood.ConflictState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid conflict transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// #endregion errors

// #region attachment-style
// AttachmentStyle is the user-profile trait that shifts the explosive threshold.
type AttachmentStyle string

const (
	AttachmentNone         AttachmentStyle = ""
	AttachmentAnxious      AttachmentStyle = "anxious"
	AttachmentAvoidant     AttachmentStyle = "avoidant"
	AttachmentSecure       AttachmentStyle = "secure"
	AttachmentDisorganized AttachmentStyle = "disorganized"
)

// ParseAttachmentStyle accepts any casing; blank means no known style.
func ParseAttachmentStyle(s string) (AttachmentStyle, error) {
	a := AttachmentStyle(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case AttachmentNone, AttachmentAnxious, AttachmentAvoidant, AttachmentSecure, AttachmentDisorganized:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAttachment, s)
}

// #endregion attachment-style

// #region config
// Config holds every detection and de-escalation threshold.
type Config struct {
	IgnoredMessageThreshold    int           // passive-aggressive when ignored >= this (default 2)
	ColdValence                float64       // cold when valence < this (default 0.3)
	VulnerableIntimacyDrop     float64       // vulnerable when intimacy fell by >= this (default 0.2)
	ExplosiveArousal           float64       // explosive when arousal >= this + modifier (default 0.8)
	ExplosiveValence           float64       // ...and valence < this (default 0.3)
	AnxiousModifier            float64       // added to ExplosiveArousal for anxious attachment (default -0.1)
	ExplosiveTimeout           time.Duration // forced explosive -> cold after this (default 6h)
	DeEscalationValence        float64       // valence needed to leave explosive/cold (default 0.4)
	VulnerableRecoveryIntimacy float64       // intimacy needed to leave vulnerable (default 0.5)
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		IgnoredMessageThreshold:    2,
		ColdValence:                0.3,
		VulnerableIntimacyDrop:     0.2,
		ExplosiveArousal:           0.8,
		ExplosiveValence:           0.3,
		AnxiousModifier:            -0.1,
		ExplosiveTimeout:           6 * time.Hour,
		DeEscalationValence:        0.4,
		VulnerableRecoveryIntimacy: 0.5,
	}
}

// #endregion config

// #region decision
// Decision is the outcome of an escalation or de-escalation check.
type Decision struct {
	Should bool
	Target mood.ConflictState
	Reason string
}

// #endregion decision
