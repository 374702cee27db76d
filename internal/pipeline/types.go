package pipeline

import (
	"time"

	"github.com/danielpatrickdp/moodengine/internal/compute"
	"github.com/danielpatrickdp/moodengine/internal/conflict"
	"github.com/danielpatrickdp/moodengine/internal/logging"
	"github.com/danielpatrickdp/moodengine/internal/mood"
	"github.com/danielpatrickdp/moodengine/internal/recovery"
)

// #region config
// Config bundles the component configs and the sweep parallelism.
type Config struct {
	Compute      compute.Config
	Conflict     conflict.Config
	Recovery     recovery.Config
	DecayWorkers int
}

// DefaultConfig returns the production defaults of every component.
func DefaultConfig() Config {
	return Config{
		Compute:      compute.DefaultConfig(),
		Conflict:     conflict.DefaultConfig(),
		Recovery:     recovery.DefaultConfig(),
		DecayWorkers: 8,
	}
}

// #endregion config

// #region turn
// TurnInput is one conversation turn as seen by the engine. Tones and
// attachment style are pre-classified by the caller.
type TurnInput struct {
	UserID            string
	Timestamp         time.Time // zero means the pipeline clock
	LifeEvents        []compute.LifeEvent
	Tones             []compute.Tone
	Chapter           any
	RelationshipScore any
	IgnoredMessages   *int // replaces the stored count when set
	Attachment        conflict.AttachmentStyle
	Positive          bool              // the turn counts as a positive interaction
	Approach          recovery.Approach // empty means no repair attempt
	Intensity         *float64          // nil means full intensity
}

// intensity resolves the repair intensity, defaulting to 1.
func (in TurnInput) intensity() float64 {
	if in.Intensity == nil {
		return 1
	}
	return *in.Intensity
}

// Outcome reports everything one turn decided.
type Outcome struct {
	State        mood.EmotionalState
	Previous     *mood.EmotionalState
	Breakdown    compute.Breakdown
	Escalation   conflict.Decision
	DeEscalation conflict.Decision
	Recovery     *recovery.Result
	Decay        recovery.Result
	Events       []logging.Event
}

// Changed reports whether the turn moved the conflict kind.
func (o Outcome) Changed() bool {
	from := mood.ConflictNone
	if o.Previous != nil {
		from = o.Previous.ConflictState
	}
	return from != o.State.ConflictState
}

// DecayOutcome is one user's result from a decay sweep.
type DecayOutcome struct {
	UserID string             `json:"user_id"`
	From   mood.ConflictState `json:"from"`
	To     mood.ConflictState `json:"to"`
	Result recovery.Result    `json:"result"`
	Saved  bool               `json:"saved"`
}

// #endregion turn
