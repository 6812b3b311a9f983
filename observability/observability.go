// Package observability records sentinelle's domain-level audit trail in
// SQLite: one row per business event (alert fired, escalation dispatched,
// rebuild completed), plus retention cleanup.
//
// Writes are best-effort: a failing observability store logs via slog and
// never blocks or fails the calling operation.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/sentinelle/idgen"
)

// Schema contains the DDL for the observability tables.
const Schema = `
CREATE TABLE IF NOT EXISTS business_event_logs (
    event_id     TEXT PRIMARY KEY,
    event_type   TEXT NOT NULL,
    service_name TEXT NOT NULL,
    entity_type  TEXT,
    entity_id    TEXT,
    action       TEXT NOT NULL,
    details      TEXT,
    success      INTEGER NOT NULL DEFAULT 1,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_business_events_type_time
    ON business_event_logs(event_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_business_events_entity
    ON business_event_logs(entity_type, entity_id);
`

// Init applies the observability schema.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// BusinessEvent represents a domain-level event to record.
type BusinessEvent struct {
	EventType  string
	EntityType string
	EntityID   string
	Action     string
	Details    string // optional JSON
	Success    bool
}

// EventLogger writes business events and manages retention cleanup.
type EventLogger struct {
	db      *sql.DB
	service string
	newID   idgen.Generator
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger backed by the given database.
func NewEventLogger(db *sql.DB, service string, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:      db,
		service: service,
		newID:   idgen.Prefixed("obs_", idgen.Default),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogEvent records a business event. Errors are logged via slog but do not
// propagate.
func (l *EventLogger) LogEvent(ctx context.Context, event BusinessEvent) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_event_logs (
			event_id, event_type, service_name, entity_type, entity_id,
			action, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		l.newID(), event.EventType, l.service, event.EntityType, event.EntityID,
		event.Action, event.Details, event.Success, time.Now().Unix())
	if err != nil {
		slog.Error("observability event log failed", "error", err, "event_type", event.EventType)
	}
}

// Cleanup deletes business events older than the given number of days.
// Zero or negative days means no cleanup.
func Cleanup(ctx context.Context, db *sql.DB, days int) error {
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().Unix() - int64(days)*86400
	if _, err := db.ExecContext(ctx,
		`DELETE FROM business_event_logs WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("observability cleanup: %w", err)
	}
	return nil
}
