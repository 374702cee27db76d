package conflict

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// Tolerance for threshold comparisons on computed differences.
const eps = 1e-9

func atLeast(v, threshold float64) bool { return v >= threshold-eps }
func below(v, threshold float64) bool   { return v < threshold-eps }

// #region detector
// Detector classifies states into conflict kinds and validates transitions
// along the fixed graph. It holds no mutable state.
type Detector struct {
	config Config
	now    func() time.Time
}

// Option customizes a Detector.
type Option func(*Detector)

// WithClock injects the time source used by the explosive timeout and by
// ApplyTransition timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(config Config, opts ...Option) *Detector {
	d := &Detector{config: config, now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Config returns the active thresholds.
func (d *Detector) Config() Config {
	return d.config
}

// #endregion detector

// #region detect
type finding struct {
	kind   mood.ConflictState
	reason string
}

// findings evaluates every threshold rule independently, most severe first.
func (d *Detector) findings(s mood.EmotionalState, prev *mood.EmotionalState, style AttachmentStyle) []finding {
	var out []finding

	threshold := d.config.ExplosiveArousal
	if style == AttachmentAnxious {
		threshold += d.config.AnxiousModifier
	}
	if atLeast(s.Arousal, threshold) && below(s.Valence, d.config.ExplosiveValence) {
		out = append(out, finding{mood.ConflictExplosive,
			fmt.Sprintf("arousal %.2f >= %.2f with valence %.2f < %.2f", s.Arousal, threshold, s.Valence, d.config.ExplosiveValence)})
	}

	if prev != nil {
		drop := prev.Intimacy - s.Intimacy
		if atLeast(drop, d.config.VulnerableIntimacyDrop) {
			out = append(out, finding{mood.ConflictVulnerable,
				fmt.Sprintf("intimacy dropped %.2f (%.2f -> %.2f)", drop, prev.Intimacy, s.Intimacy)})
		}
	}

	if below(s.Valence, d.config.ColdValence) {
		out = append(out, finding{mood.ConflictCold,
			fmt.Sprintf("valence %.2f < %.2f", s.Valence, d.config.ColdValence)})
	}

	if s.IgnoredMessageCount >= d.config.IgnoredMessageThreshold {
		out = append(out, finding{mood.ConflictPassiveAggressive,
			fmt.Sprintf("%d ignored messages", s.IgnoredMessageCount)})
	}
	return out
}

// detect returns the most severe admissible finding. Explosive is only
// admissible when the graph allows entering it from the current kind.
func (d *Detector) detect(s mood.EmotionalState, prev *mood.EmotionalState, style AttachmentStyle) finding {
	for _, f := range d.findings(s, prev, style) {
		if f.kind == mood.ConflictExplosive && !CanTransition(s.ConflictState, mood.ConflictExplosive) {
			continue
		}
		return f
	}
	return finding{mood.ConflictNone, "no conflict thresholds met"}
}

// Detect classifies s. prev enables vulnerable detection; style shifts the
// explosive arousal threshold. A state in none is never classified explosive.
func (d *Detector) Detect(s mood.EmotionalState, prev *mood.EmotionalState, style AttachmentStyle) mood.ConflictState {
	return d.detect(s, prev, style).kind
}

// CanTransition reports whether from -> to is a legal single step.
func (d *Detector) CanTransition(from, to mood.ConflictState) bool {
	return CanTransition(from, to)
}

// #endregion detect

// #region apply-transition
// ApplyTransition moves s to target. Unreachable targets fail with a
// *TransitionError and s is not modified. A real change of kind drops any
// recovery bookkeeping from the previous episode.
func (d *Detector) ApplyTransition(s mood.EmotionalState, target mood.ConflictState, trigger string) (mood.EmotionalState, error) {
	return d.ApplyTransitionAt(s, target, trigger, d.now())
}

// ApplyTransitionAt is ApplyTransition stamped with at instead of the
// detector clock.
func (d *Detector) ApplyTransitionAt(s mood.EmotionalState, target mood.ConflictState, trigger string, at time.Time) (mood.EmotionalState, error) {
	if !target.Valid() {
		return mood.EmotionalState{}, fmt.Errorf("apply transition: %w: %q", mood.ErrInvalidConflictState, target)
	}
	if target == s.ConflictState {
		return s, nil
	}
	if !CanTransition(s.ConflictState, target) {
		return mood.EmotionalState{}, &TransitionError{From: s.ConflictState, To: target}
	}
	out := s.WithConflict(target, trigger, at)
	out = out.WithMetadata(mood.KeyRecoveryProgress, nil, at)
	out = out.WithMetadata(mood.KeyLastDecayCheck, nil, at)
	return out, nil
}

// #endregion apply-transition

// #region escalation
// CheckEscalation runs detection and proposes a move. When the detected kind
// is not directly reachable it proposes the nearest legal intermediate step
// instead, so a detection never silently fails.
func (d *Detector) CheckEscalation(s mood.EmotionalState, prev *mood.EmotionalState, style AttachmentStyle) Decision {
	f := d.detect(s, prev, style)
	cur := s.ConflictState
	if f.kind == cur {
		return Decision{Reason: fmt.Sprintf("remains %s: %s", cur, f.reason)}
	}
	if CanTransition(cur, f.kind) {
		return Decision{Should: true, Target: f.kind, Reason: f.reason}
	}
	step := intermediateStep(cur, f.kind)
	if step == "" {
		return Decision{Reason: fmt.Sprintf("no path %s -> %s", cur, f.kind)}
	}
	return Decision{
		Should: true,
		Target: step,
		Reason: fmt.Sprintf("%s; %s -> %s not allowed, stepping to %s", f.reason, cur, f.kind, step),
	}
}

// CheckDeEscalation decides whether s may calm down one step. Explosive
// states time out to cold after ExplosiveTimeout regardless of interaction.
func (d *Detector) CheckDeEscalation(s mood.EmotionalState, positiveInteraction bool) Decision {
	cfg := d.config
	switch s.ConflictState {
	case mood.ConflictExplosive:
		if age := s.ConflictAge(d.now()); s.ConflictStartedAt != nil && age >= cfg.ExplosiveTimeout {
			return Decision{Should: true, Target: mood.ConflictCold,
				Reason: fmt.Sprintf("explosive timeout: %s elapsed (limit %s)", age.Round(time.Minute), cfg.ExplosiveTimeout)}
		}
		if atLeast(s.Valence, cfg.DeEscalationValence) {
			return Decision{Should: true, Target: mood.ConflictCold,
				Reason: fmt.Sprintf("valence recovered to %.2f", s.Valence)}
		}
		if positiveInteraction {
			return Decision{Should: true, Target: mood.ConflictCold, Reason: "positive interaction calmed the outburst"}
		}
		return Decision{Reason: "explosive: waiting for valence or a positive interaction"}

	case mood.ConflictCold:
		if atLeast(s.Valence, cfg.DeEscalationValence) && positiveInteraction {
			return Decision{Should: true, Target: mood.ConflictNone,
				Reason: fmt.Sprintf("valence %.2f with positive interaction", s.Valence)}
		}
		return Decision{Reason: "cold: needs valence >= threshold and a positive interaction"}

	case mood.ConflictVulnerable:
		if atLeast(s.Intimacy, cfg.VulnerableRecoveryIntimacy) && positiveInteraction {
			return Decision{Should: true, Target: mood.ConflictNone,
				Reason: fmt.Sprintf("intimacy %.2f restored with positive interaction", s.Intimacy)}
		}
		return Decision{Reason: "vulnerable: needs intimacy >= threshold and a positive interaction"}

	case mood.ConflictPassiveAggressive:
		if s.IgnoredMessageCount == 0 && positiveInteraction {
			return Decision{Should: true, Target: mood.ConflictNone, Reason: "messages answered with positive interaction"}
		}
		return Decision{Reason: "passive-aggressive: needs zero ignored messages and a positive interaction"}
	}
	return Decision{Reason: "no active conflict"}
}

// #endregion escalation
