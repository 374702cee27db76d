package compute

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// #region computer
// Computer folds temporal, event, tone and relationship inputs into a new
// EmotionalState. It holds no mutable state and is safe for concurrent use.
type Computer struct {
	config Config
	now    func() time.Time
}

// Option customizes a Computer.
type Option func(*Computer)

// WithClock replaces time.Now for inputs without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Computer) { c.now = now }
}

// NewComputer creates a computer with the given limits.
func NewComputer(config Config, opts ...Option) *Computer {
	c := &Computer{config: config, now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(c)
	}
	return c
}

// #endregion computer

// #region compute
// Compute produces the next state. Conflict fields, identity and metadata are
// carried over from in.Current unchanged; this function never decides
// conflict transitions. The only errors come from non-numeric chapter or
// relationship score values.
func (c *Computer) Compute(in Input) (Result, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}

	var bd Breakdown

	// 1. Base: temporal offsets on neutral, or the current dimensions as-is.
	var dims mood.Dimensions
	if in.Current != nil {
		dims = in.Current.Dimensions
	} else {
		tod, todDelta := timeOfDayOffset(ts)
		day, dayDelta := dayOffset(ts)
		bd.TimeOfDay, bd.DayType = tod, day
		dims = mood.NeutralDimensions().Apply(todDelta).Apply(dayDelta)
	}
	bd.Base = dims

	// 2. Life events: the sum is capped, not each event.
	var events mood.Delta
	for _, ev := range in.LifeEvents {
		events = events.Add(ev.Impact)
	}
	bd.Events = events.Limit(c.config.MaxEventDelta)
	dims = dims.Apply(bd.Events)

	// 3. Conversation tones.
	var tones mood.Delta
	for _, t := range in.Tones {
		tones = tones.Add(toneDeltas[t])
	}
	bd.Tones = tones.Limit(c.config.MaxToneDelta)
	dims = dims.Apply(bd.Tones)

	// 4. Relationship modifier.
	rel, chapter, score, err := c.relationshipDelta(in.Chapter, in.RelationshipScore)
	if err != nil {
		return Result{}, err
	}
	bd.Relationship, bd.Chapter, bd.Score = rel, chapter, score
	dims = dims.Apply(rel)

	var next mood.EmotionalState
	if in.Current != nil {
		next = in.Current.WithDimensions(dims, ts)
		if in.UserID != "" {
			next.UserID = in.UserID
		}
	} else {
		next = mood.NewNeutral(in.UserID, ts).WithDimensions(dims, ts)
	}

	return Result{State: next, Breakdown: bd}, nil
}

// relationshipDelta normalizes chapter and score at the boundary. A nil
// chapter contributes nothing; a nil score counts as neutral 0.5.
func (c *Computer) relationshipDelta(chapterIn, scoreIn any) (mood.Delta, int, float64, error) {
	var d mood.Delta
	chapter := 0
	if chapterIn != nil {
		ch, err := mood.ToChapter(chapterIn)
		if err != nil {
			return mood.Delta{}, 0, 0, err
		}
		chapter = ch
		d = d.Add(chapterDeltas[ch])
	}

	score := mood.Neutral
	if scoreIn != nil {
		s, err := mood.ToUnit(scoreIn)
		if err != nil {
			return mood.Delta{}, 0, 0, fmt.Errorf("relationship score: %w", err)
		}
		score = s
	}
	d.Valence += (score - mood.Neutral) * c.config.RelationshipValenceGain
	return d, chapter, score, nil
}

// #endregion compute
