package logging

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// #region helpers
func setupJournal(t *testing.T) (*Journal, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	j, err := NewJournal(db)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	return j, db
}

// #endregion helpers

// #region record-tests
func TestRecord_Success(t *testing.T) {
	j, db := setupJournal(t)

	e := Event{
		UserID:    "u1",
		StateID:   "s1",
		Kind:      EventEscalation,
		From:      mood.ConflictNone,
		To:        mood.ConflictCold,
		Reason:    "valence 0.20 < 0.30",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := j.Record(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM mood_events").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var kind, to string
	db.QueryRow("SELECT kind, to_state FROM mood_events").Scan(&kind, &to)
	if kind != "escalation" {
		t.Errorf("expected kind 'escalation', got %q", kind)
	}
	if to != "cold" {
		t.Errorf("expected to_state 'cold', got %q", to)
	}
}

func TestRecord_ZeroCreatedAt(t *testing.T) {
	j, db := setupJournal(t)

	before := time.Now().UTC().Add(-time.Second)
	if err := j.Record(context.Background(), Event{UserID: "u1", StateID: "s1", Kind: EventDecay}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM mood_events").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestRecord_EmptyOptionalFields(t *testing.T) {
	j, db := setupJournal(t)

	if err := j.Record(context.Background(), Event{UserID: "u1", StateID: "s1", Kind: EventRecovery}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var from, to, reason sql.NullString
	db.QueryRow("SELECT from_state, to_state, reason FROM mood_events").Scan(&from, &to, &reason)
	if from.Valid || to.Valid || reason.Valid {
		t.Errorf("expected NULL optional fields, got from=%v to=%v reason=%v", from, to, reason)
	}
}

func TestRecord_ClosedDB(t *testing.T) {
	j, db := setupJournal(t)
	db.Close()

	if err := j.Record(context.Background(), Event{UserID: "u1", StateID: "s1", Kind: EventDecay}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

func TestNewJournal_Idempotent(t *testing.T) {
	_, db := setupJournal(t)
	if _, err := NewJournal(db); err != nil {
		t.Fatalf("second migration: %v", err)
	}
}

// #endregion record-tests

// #region recent-tests
func TestRecent_NewestFirst(t *testing.T) {
	j, _ := setupJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, kind := range []EventKind{EventEscalation, EventRecovery, EventDeEscalation} {
		err := j.Record(ctx, Event{
			UserID: "u1", StateID: "s1", Kind: kind, Progress: float64(i) / 10,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if err := j.Record(ctx, Event{UserID: "u2", StateID: "s2", Kind: EventDecay}); err != nil {
		t.Fatalf("record other user: %v", err)
	}

	events, err := j.Recent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != EventDeEscalation || events[1].Kind != EventRecovery {
		t.Errorf("unexpected order: %s, %s", events[0].Kind, events[1].Kind)
	}
	if events[1].Progress != 0.1 {
		t.Errorf("expected progress 0.1, got %f", events[1].Progress)
	}
	if !events[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("unexpected created_at %v", events[0].CreatedAt)
	}
}

func TestRecent_NonPositiveLimitReturnsAll(t *testing.T) {
	j, _ := setupJournal(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := j.Record(ctx, Event{UserID: "u1", StateID: "s1", Kind: EventEscalation}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	for _, limit := range []int{0, -5} {
		events, err := j.Recent(ctx, "u1", limit)
		if err != nil {
			t.Fatalf("Recent(%d): %v", limit, err)
		}
		if len(events) != 3 {
			t.Errorf("limit %d: expected 3 events, got %d", limit, len(events))
		}
	}
}

// #endregion recent-tests
