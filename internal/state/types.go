package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// ErrNotFound is returned when a user or state id has no stored record.
var ErrNotFound = errors.New("state not found")

// #region store-interface
// Store persists the current state per user plus an append-only snapshot
// journal. It makes no decisions; Update is a read-modify-write with no
// lock around it, so concurrent writers for one user resolve last-write-wins.
type Store interface {
	// GetCurrent returns nil, nil when the user has no state yet.
	GetCurrent(ctx context.Context, userID string) (*mood.EmotionalState, error)
	// Save replaces the user's current state and appends a snapshot.
	Save(ctx context.Context, s mood.EmotionalState) error
	// Update applies p to the current state, keeping its identity.
	Update(ctx context.Context, userID string, p Patch) (mood.EmotionalState, error)
	// History returns snapshots newest first. days <= 0 and limit <= 0 are unbounded.
	History(ctx context.Context, userID string, days, limit int) ([]mood.EmotionalState, error)
	// ConflictHistory returns snapshots in an active conflict, newest first.
	ConflictHistory(ctx context.Context, userID string, days int) ([]mood.EmotionalState, error)
	Delete(ctx context.Context, stateID string) error
	// DeleteUser removes everything stored for the user and reports how many records went.
	DeleteUser(ctx context.Context, userID string) (int, error)
	// ConflictUsers lists users whose current state is in an active conflict, sorted.
	ConflictUsers(ctx context.Context) ([]string, error)
	Close() error
}

// #endregion store-interface

// #region options
type options struct {
	now        func() time.Time
	keyPrefix  string
	historyCap int64
}

func defaultOptions() options {
	return options{
		now:        func() time.Time { return time.Now().UTC() },
		keyPrefix:  "mood",
		historyCap: 1000,
	}
}

// Option customizes a store.
type Option func(*options)

// WithClock sets the time source for Update timestamps and history windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithKeyPrefix namespaces Redis keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.keyPrefix = prefix }
}

// WithHistoryCap bounds the Redis snapshot list per user.
func WithHistoryCap(n int64) Option {
	return func(o *options) { o.historyCap = n }
}

// #endregion options

// #region patch
// Patch is a partial update. Nil fields are left untouched. Metadata entries
// are merged; a nil value deletes the key.
type Patch struct {
	Arousal             *float64
	Valence             *float64
	Dominance           *float64
	Intimacy            *float64
	ConflictState       *mood.ConflictState
	ConflictTrigger     *string
	IgnoredMessageCount *int
	Metadata            mood.Metadata
}

// Apply returns s with the patch applied at now. Values are validated, not
// clamped. Conflict changes keep the kind, start time and trigger coupled.
func (p Patch) Apply(s mood.EmotionalState, now time.Time) (mood.EmotionalState, error) {
	d := s.Dimensions
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{p.Arousal, &d.Arousal},
		{p.Valence, &d.Valence},
		{p.Dominance, &d.Dominance},
		{p.Intimacy, &d.Intimacy},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	if err := d.Validate(); err != nil {
		return mood.EmotionalState{}, fmt.Errorf("patch: %w", err)
	}
	out := s.WithDimensions(d, now)

	if p.ConflictState != nil {
		if !p.ConflictState.Valid() {
			return mood.EmotionalState{}, fmt.Errorf("patch: %w: %q", mood.ErrInvalidConflictState, *p.ConflictState)
		}
		trigger := ""
		if p.ConflictTrigger != nil {
			trigger = *p.ConflictTrigger
		}
		out = out.WithConflict(*p.ConflictState, trigger, now)
	} else if p.ConflictTrigger != nil {
		if !out.ConflictState.Active() {
			return mood.EmotionalState{}, fmt.Errorf("patch: %w: trigger without an active conflict", mood.ErrConflictCouplingBroken)
		}
		out = out.WithConflict(out.ConflictState, *p.ConflictTrigger, now)
	}

	if p.IgnoredMessageCount != nil {
		var err error
		if out, err = out.WithIgnoredMessageCount(*p.IgnoredMessageCount, now); err != nil {
			return mood.EmotionalState{}, fmt.Errorf("patch: %w", err)
		}
	}
	for k, v := range p.Metadata {
		out = out.WithMetadata(k, v, now)
	}
	if err := out.Validate(); err != nil {
		return mood.EmotionalState{}, fmt.Errorf("patch: %w", err)
	}
	return out, nil
}

// #endregion patch

// #region helpers
// cutoff returns the oldest LastUpdated a history query with days accepts.
func cutoff(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

// filterHistory applies the window and limit to newest-first snapshots.
func filterHistory(snaps []mood.EmotionalState, since time.Time, limit int, conflictOnly bool) []mood.EmotionalState {
	var out []mood.EmotionalState
	for _, s := range snaps {
		if s.LastUpdated.Before(since) {
			continue
		}
		if conflictOnly && !s.ConflictState.Active() {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// #endregion helpers
