// CLAUDE:SUMMARY Event upsert-by-cluster-key, merge updates, evidence links, novelty updates.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const eventColumns = `id, title, summary, start_ts, end_ts, event_type, confidence,
	severity, novelty_score, volume_score, sentiment_score, cluster_key, created_at, updated_at`

// InsertEvent creates a new event. The cluster key must be unique; the caller
// is expected to have checked GetEventByClusterKey first.
func (s *Store) InsertEvent(ctx context.Context, e *Event) error {
	now := time.Now().UnixMilli()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if e.EventType == "" {
		e.EventType = "news"
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Title, e.Summary, e.StartTs, e.EndTs, e.EventType, e.Confidence,
		e.Severity, e.NoveltyScore, e.VolumeScore, e.SentimentScore, e.ClusterKey,
		e.CreatedAt, e.UpdatedAt,
	)
	return err
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row.Scan)
}

// GetEventByClusterKey retrieves the event for a cluster key, or nil.
func (s *Store) GetEventByClusterKey(ctx context.Context, key string) (*Event, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE cluster_key = ?`, key)
	return scanEvent(row.Scan)
}

// MergeEvent applies a cluster merge: span extension, volume increment and
// the sentiment running update. The caller computes the new values.
func (s *Store) MergeEvent(ctx context.Context, e *Event) error {
	e.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE events SET start_ts=?, end_ts=?, volume_score=?, sentiment_score=?, updated_at=?
		WHERE id=?`,
		e.StartTs, e.EndTs, e.VolumeScore, e.SentimentScore, e.UpdatedAt, e.ID,
	)
	return err
}

// UpdateNovelty sets the novelty score of an event.
func (s *Store) UpdateNovelty(ctx context.Context, eventID string, score float64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE events SET novelty_score=?, updated_at=? WHERE id=?`,
		score, time.Now().UnixMilli(), eventID)
	return err
}

// InsertEvidence links a document to an event. Idempotent: re-linking the
// same pair is a no-op.
func (s *Store) InsertEvidence(ctx context.Context, ev *Evidence) error {
	if ev.Weight == 0 {
		ev.Weight = 1
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_evidence (event_id, document_id, weight, snippet)
		VALUES (?,?,?,?)`,
		ev.EventID, ev.DocumentID, ev.Weight, ev.Snippet,
	)
	return err
}

// HasEvidence reports whether a document is already linked to an event.
func (s *Store) HasEvidence(ctx context.Context, eventID, documentID string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM event_evidence WHERE event_id = ? AND document_id = ?`,
		eventID, documentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CountEvidence returns the number of evidence links for an event.
func (s *Store) CountEvidence(ctx context.Context, eventID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_evidence WHERE event_id = ?`, eventID).Scan(&n)
	return n, err
}

// RecentEvents returns the most recent events whose end_ts is at or after
// fromTs, newest first, capped at limit.
func (s *Store) RecentEvents(ctx context.Context, fromTs int64, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE end_ts >= ?
		ORDER BY end_ts DESC LIMIT ?`, fromTs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// AllEvents returns every event, newest first. Used by the search indexer,
// which always reindexes all events.
func (s *Store) AllEvents(ctx context.Context) ([]*Event, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY end_ts DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(scan func(...any) error) (*Event, error) {
	var e Event
	err := scan(
		&e.ID, &e.Title, &e.Summary, &e.StartTs, &e.EndTs, &e.EventType, &e.Confidence,
		&e.Severity, &e.NoveltyScore, &e.VolumeScore, &e.SentimentScore, &e.ClusterKey,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}
