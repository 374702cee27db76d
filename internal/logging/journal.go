package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// #region schema
const journalSchema = `
CREATE TABLE IF NOT EXISTS mood_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL,
	state_id    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	from_state  TEXT,
	to_state    TEXT,
	progress    REAL,
	reason      TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mood_events_user ON mood_events (user_id, created_at);
`
// #endregion schema

// #region event
// EventKind names what happened to a state.
type EventKind string

const (
	EventEscalation   EventKind = "escalation"
	EventDeEscalation EventKind = "de_escalation"
	EventRecovery     EventKind = "recovery"
	EventDecay        EventKind = "decay"
)

// Event is a single row in the mood_events table. Events are an audit trail;
// nothing reads them back into decisions.
type Event struct {
	ID        int64
	UserID    string
	StateID   string
	Kind      EventKind
	From      mood.ConflictState
	To        mood.ConflictState
	Progress  float64
	Reason    string
	CreatedAt time.Time
}
// #endregion event

// #region journal
// Journal appends events to SQLite.
type Journal struct {
	db *sql.DB
}

// NewJournal creates the mood_events table on db if needed.
func NewJournal(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(journalSchema); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record writes one event. A zero CreatedAt is filled with the current time.
func (j *Journal) Record(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO mood_events (user_id, state_id, kind, from_state, to_state, progress, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID,
		e.StateID,
		string(e.Kind),
		nullIfEmpty(string(e.From)),
		nullIfEmpty(string(e.To)),
		e.Progress,
		nullIfEmpty(e.Reason),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Recent returns the user's latest events, newest first. A limit <= 0
// returns every event.
func (j *Journal) Recent(ctx context.Context, userID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, user_id, state_id, kind, from_state, to_state, progress, reason, created_at
		 FROM mood_events WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var kind, created string
		var from, to, reason sql.NullString
		var progress sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.UserID, &e.StateID, &kind, &from, &to, &progress, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Kind = EventKind(kind)
		e.From = mood.ConflictState(from.String)
		e.To = mood.ConflictState(to.String)
		e.Progress = progress.Float64
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion journal

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
