package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/mood"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS emotional_states (
	user_id               TEXT PRIMARY KEY,
	state_id              TEXT NOT NULL,
	arousal               REAL NOT NULL CHECK (arousal BETWEEN 0 AND 1),
	valence               REAL NOT NULL CHECK (valence BETWEEN 0 AND 1),
	dominance             REAL NOT NULL CHECK (dominance BETWEEN 0 AND 1),
	intimacy              REAL NOT NULL CHECK (intimacy BETWEEN 0 AND 1),
	conflict_state        TEXT NOT NULL DEFAULT 'none',
	conflict_started_at   TEXT,
	conflict_trigger      TEXT,
	ignored_message_count INTEGER NOT NULL DEFAULT 0 CHECK (ignored_message_count >= 0),
	metadata_json         TEXT,
	last_updated          TEXT NOT NULL,
	created_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS emotional_state_history (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	state_id              TEXT NOT NULL,
	user_id               TEXT NOT NULL,
	arousal               REAL NOT NULL,
	valence               REAL NOT NULL,
	dominance             REAL NOT NULL,
	intimacy              REAL NOT NULL,
	conflict_state        TEXT NOT NULL,
	conflict_started_at   TEXT,
	conflict_trigger      TEXT,
	ignored_message_count INTEGER NOT NULL,
	metadata_json         TEXT,
	last_updated          TEXT NOT NULL,
	created_at            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_states_state ON emotional_states (state_id);
CREATE INDEX IF NOT EXISTS idx_history_user_time ON emotional_state_history (user_id, last_updated);
CREATE INDEX IF NOT EXISTS idx_history_state ON emotional_state_history (state_id);
`

const stateColumns = `state_id, user_id, arousal, valence, dominance, intimacy, conflict_state,
	conflict_started_at, conflict_trigger, ignored_message_count, metadata_json, last_updated, created_at`

// timeLayout is fixed width so stored text sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region store-struct
// SQLiteStore keeps the current row per user and a snapshot history in SQLite.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

var _ Store = (*SQLiteStore)(nil)

// #endregion store-struct

// #region constructor
// NewSQLiteStore opens a SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db, opts: o}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. the event journal).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region get-current
// GetCurrent reads the user's current state.
func (s *SQLiteStore) GetCurrent(ctx context.Context, userID string) (*mood.EmotionalState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM emotional_states WHERE user_id = ?`, userID)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current %s: %w", userID, err)
	}
	return &st, nil
}

// #endregion get-current

// #region save
// Save upserts the current row and appends a snapshot in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, st mood.EmotionalState) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	args, err := stateArgs(st)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO emotional_states (`+stateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			state_id = excluded.state_id,
			arousal = excluded.arousal,
			valence = excluded.valence,
			dominance = excluded.dominance,
			intimacy = excluded.intimacy,
			conflict_state = excluded.conflict_state,
			conflict_started_at = excluded.conflict_started_at,
			conflict_trigger = excluded.conflict_trigger,
			ignored_message_count = excluded.ignored_message_count,
			metadata_json = excluded.metadata_json,
			last_updated = excluded.last_updated,
			created_at = excluded.created_at`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("upsert current: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO emotional_state_history (`+stateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// #endregion save

// #region update
// Update patches the current state and saves it under the same identity.
func (s *SQLiteStore) Update(ctx context.Context, userID string, p Patch) (mood.EmotionalState, error) {
	return update(ctx, s, userID, p, s.opts.now())
}

// update is the shared read-modify-write used by every Store.
func update(ctx context.Context, st Store, userID string, p Patch, now time.Time) (mood.EmotionalState, error) {
	cur, err := st.GetCurrent(ctx, userID)
	if err != nil {
		return mood.EmotionalState{}, err
	}
	if cur == nil {
		return mood.EmotionalState{}, fmt.Errorf("update %s: %w", userID, ErrNotFound)
	}
	next, err := p.Apply(*cur, now)
	if err != nil {
		return mood.EmotionalState{}, err
	}
	if err := st.Save(ctx, next); err != nil {
		return mood.EmotionalState{}, err
	}
	return next, nil
}

// #endregion update

// #region history
// History returns snapshots newest first.
func (s *SQLiteStore) History(ctx context.Context, userID string, days, limit int) ([]mood.EmotionalState, error) {
	return s.history(ctx, userID, days, limit, false)
}

// ConflictHistory returns snapshots taken during an active conflict.
func (s *SQLiteStore) ConflictHistory(ctx context.Context, userID string, days int) ([]mood.EmotionalState, error) {
	return s.history(ctx, userID, days, 0, true)
}

func (s *SQLiteStore) history(ctx context.Context, userID string, days, limit int, conflictOnly bool) ([]mood.EmotionalState, error) {
	q := `SELECT ` + stateColumns + ` FROM emotional_state_history WHERE user_id = ?`
	args := []any{userID}
	if since := cutoff(s.opts.now(), days); !since.IsZero() {
		q += ` AND last_updated >= ?`
		args = append(args, formatTime(since))
	}
	if conflictOnly {
		q += ` AND conflict_state != 'none'`
	}
	q += ` ORDER BY last_updated DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", userID, err)
	}
	defer rows.Close()

	var out []mood.EmotionalState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// #endregion history

// #region delete
// Delete removes the current row with stateID and every snapshot carrying it.
func (s *SQLiteStore) Delete(ctx context.Context, stateID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := tx.ExecContext(ctx, `DELETE FROM emotional_states WHERE state_id = ?`, stateID)
	if err != nil {
		return fmt.Errorf("delete current: %w", err)
	}
	hist, err := tx.ExecContext(ctx, `DELETE FROM emotional_state_history WHERE state_id = ?`, stateID)
	if err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	n1, _ := cur.RowsAffected()
	n2, _ := hist.RowsAffected()
	if n1+n2 == 0 {
		return fmt.Errorf("delete %s: %w", stateID, ErrNotFound)
	}
	return tx.Commit()
}

// DeleteUser removes the user's current row and history.
func (s *SQLiteStore) DeleteUser(ctx context.Context, userID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := tx.ExecContext(ctx, `DELETE FROM emotional_states WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete current: %w", err)
	}
	hist, err := tx.ExecContext(ctx, `DELETE FROM emotional_state_history WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	n1, _ := cur.RowsAffected()
	n2, _ := hist.RowsAffected()
	return int(n1 + n2), nil
}

// ConflictUsers lists users currently in an active conflict.
func (s *SQLiteStore) ConflictUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM emotional_states WHERE conflict_state != 'none' ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("conflict users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// #endregion delete

// #region row-encoding
type scanner interface {
	Scan(dest ...any) error
}

func scanState(r scanner) (mood.EmotionalState, error) {
	var st mood.EmotionalState
	var conflict string
	var startedAt, trigger, metaJSON sql.NullString
	var lastUpdated, createdAt string

	err := r.Scan(&st.StateID, &st.UserID, &st.Arousal, &st.Valence, &st.Dominance, &st.Intimacy,
		&conflict, &startedAt, &trigger, &st.IgnoredMessageCount, &metaJSON, &lastUpdated, &createdAt)
	if err != nil {
		return mood.EmotionalState{}, err
	}

	if st.ConflictState, err = mood.ParseConflictState(conflict); err != nil {
		return mood.EmotionalState{}, err
	}
	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, startedAt.String)
		if err != nil {
			return mood.EmotionalState{}, fmt.Errorf("conflict_started_at: %w", err)
		}
		st.ConflictStartedAt = &t
	}
	if trigger.Valid {
		st.ConflictTrigger = trigger.String
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &st.Metadata); err != nil {
			return mood.EmotionalState{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if st.LastUpdated, err = time.Parse(time.RFC3339Nano, lastUpdated); err != nil {
		return mood.EmotionalState{}, fmt.Errorf("last_updated: %w", err)
	}
	if st.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return mood.EmotionalState{}, fmt.Errorf("created_at: %w", err)
	}
	return st, nil
}

func stateArgs(st mood.EmotionalState) ([]any, error) {
	var startedAt any
	if st.ConflictStartedAt != nil {
		startedAt = formatTime(*st.ConflictStartedAt)
	}
	var metaJSON any
	if len(st.Metadata) > 0 {
		b, err := json.Marshal(st.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = string(b)
	}
	return []any{
		st.StateID, st.UserID, st.Arousal, st.Valence, st.Dominance, st.Intimacy,
		string(st.ConflictState), startedAt, nullIfEmpty(st.ConflictTrigger), st.IgnoredMessageCount,
		metaJSON, formatTime(st.LastUpdated), formatTime(st.CreatedAt),
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion row-encoding
