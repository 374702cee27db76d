package compute

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

type timeBucket struct {
	name     string
	from, to int // inclusive hours
	arousal  float64
	valence  float64
}

var timeOfDay = []timeBucket{
	{"late_night", 0, 4, -0.15, -0.10},
	{"early_morning", 5, 7, -0.05, 0},
	{"morning", 8, 11, 0.15, 0.05},
	{"afternoon", 12, 16, 0.05, 0},
	{"evening", 17, 20, -0.05, 0.05},
	{"night", 21, 23, -0.10, 0},
}

// timeOfDayOffset returns the bucket name and its (arousal, valence) offset.
func timeOfDayOffset(ts time.Time) (string, mood.Delta) {
	h := ts.Hour()
	for _, b := range timeOfDay {
		if h >= b.from && h <= b.to {
			return b.name, mood.Delta{Arousal: b.arousal, Valence: b.valence}
		}
	}
	return "", mood.Delta{}
}

// dayOffset returns weekday/friday/weekend and its (valence, dominance, arousal) offset.
func dayOffset(ts time.Time) (string, mood.Delta) {
	switch ts.Weekday() {
	case time.Friday:
		return "friday", mood.Delta{Valence: 0.10, Arousal: 0.05}
	case time.Saturday, time.Sunday:
		return "weekend", mood.Delta{Valence: 0.05, Dominance: -0.05, Arousal: -0.05}
	default:
		return "weekday", mood.Delta{}
	}
}

var toneDeltas = map[Tone]mood.Delta{
	ToneSupportive: {Arousal: 0, Valence: 0.10, Dominance: 0, Intimacy: 0.10},
	ToneDismissive: {Arousal: 0.05, Valence: -0.15, Dominance: 0.05, Intimacy: -0.10},
	ToneRomantic:   {Arousal: 0.10, Valence: 0.10, Dominance: -0.05, Intimacy: 0.15},
	ToneCold:       {Arousal: -0.05, Valence: -0.10, Dominance: 0.05, Intimacy: -0.15},
	TonePlayful:    {Arousal: 0.10, Valence: 0.10, Dominance: 0, Intimacy: 0.05},
	ToneAnxious:    {Arousal: 0.15, Valence: -0.05, Dominance: -0.10, Intimacy: 0},
	ToneApologetic: {Arousal: -0.05, Valence: 0.05, Dominance: -0.05, Intimacy: 0.05},
	ToneNeutral:    {},
}

// chapter -> (intimacy, dominance)
var chapterDeltas = map[int]mood.Delta{
	1: {Intimacy: -0.10, Dominance: 0.10},
	2: {Intimacy: -0.05, Dominance: 0.05},
	3: {},
	4: {Intimacy: 0.05, Dominance: -0.05},
	5: {Intimacy: 0.10, Dominance: -0.10},
}

// ToneDelta exposes the fixed per-tone delta; unknown tones map to zero.
func ToneDelta(t Tone) mood.Delta {
	return toneDeltas[t]
}

// ParseTone accepts tone names in any case.
func ParseTone(s string) (Tone, bool) {
	t := Tone(strings.ToLower(strings.TrimSpace(s)))
	_, ok := toneDeltas[t]
	return t, ok
}

// ErrUnknownTone is returned by ParseTones.
var ErrUnknownTone = errors.New("unknown tone")

// ParseTones normalizes caller-supplied tone names, failing on the first
// one that is not a known tone.
func ParseTones(names []string) ([]Tone, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]Tone, 0, len(names))
	for _, n := range names {
		t, ok := ParseTone(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTone, n)
		}
		out = append(out, t)
	}
	return out, nil
}
