package observability

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInit_CreatesTable(t *testing.T) {
	db := setupObsDB(t)
	var count int
	db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='business_event_logs'").Scan(&count)
	if count != 1 {
		t.Fatal("table business_event_logs not found")
	}
}

func TestEventLogger_LogEvent(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db, "sentinelle")

	el.LogEvent(context.Background(), BusinessEvent{
		EventType:  "alert_fired",
		EntityType: "alert",
		EntityID:   "alr_1",
		Action:     "fire",
		Details:    `{"rule_id":"rule_1"}`,
		Success:    true,
	})
	el.LogEvent(context.Background(), BusinessEvent{
		EventType: "rebuild_completed",
		Action:    "rebuild",
		Success:   false,
	})

	var count int
	db.QueryRow("SELECT COUNT(*) FROM business_event_logs").Scan(&count)
	if count != 2 {
		t.Fatalf("event count: got %d", count)
	}

	var service, entityID string
	var success bool
	err := db.QueryRow(`SELECT service_name, entity_id, success FROM business_event_logs
		WHERE event_type = 'alert_fired'`).Scan(&service, &entityID, &success)
	if err != nil {
		t.Fatal(err)
	}
	if service != "sentinelle" {
		t.Fatalf("service_name: got %q", service)
	}
	if entityID != "alr_1" {
		t.Fatalf("entity_id: got %q", entityID)
	}
	if !success {
		t.Fatal("expected success=1")
	}
}

func TestEventLogger_CustomIDGenerator(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db, "sentinelle", WithEventIDGenerator(func() string { return "fixed-id" }))

	el.LogEvent(context.Background(), BusinessEvent{EventType: "x", Action: "y", Success: true})

	var id string
	db.QueryRow("SELECT event_id FROM business_event_logs").Scan(&id)
	if id != "fixed-id" {
		t.Fatalf("event_id: got %q", id)
	}
}

func TestCleanup_DeletesOldEvents(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db, "sentinelle")
	ctx := context.Background()

	el.LogEvent(ctx, BusinessEvent{EventType: "recent", Action: "x", Success: true})

	// Backdate one row past the retention window.
	if _, err := db.Exec(`INSERT INTO business_event_logs
		(event_id, event_type, service_name, action, success, created_at)
		VALUES ('obs_old', 'stale', 'sentinelle', 'x', 1, 0)`); err != nil {
		t.Fatal(err)
	}

	if err := Cleanup(ctx, db, 30); err != nil {
		t.Fatal(err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM business_event_logs").Scan(&count)
	if count != 1 {
		t.Fatalf("expected 1 surviving event, got %d", count)
	}
	var typ string
	db.QueryRow("SELECT event_type FROM business_event_logs").Scan(&typ)
	if typ != "recent" {
		t.Fatalf("wrong survivor: %q", typ)
	}
}

func TestCleanup_ZeroDaysIsNoop(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db, "sentinelle")
	ctx := context.Background()

	el.LogEvent(ctx, BusinessEvent{EventType: "x", Action: "y", Success: true})

	if err := Cleanup(ctx, db, 0); err != nil {
		t.Fatal(err)
	}
	var count int
	db.QueryRow("SELECT COUNT(*) FROM business_event_logs").Scan(&count)
	if count != 1 {
		t.Fatalf("expected no deletion, got %d rows", count)
	}
}
