// CLAUDE:SUMMARY Document ingest (insert-if-absent) and window queries for the clusterer.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// InsertDocument stores a document. Documents are immutable: re-inserting an
// existing ID is a no-op, so ingest retries are safe.
func (s *Store) InsertDocument(ctx context.Context, d *Document) error {
	if d.CreatedAt == 0 {
		d.CreatedAt = time.Now().UnixMilli()
	}
	entities, err := json.Marshal(d.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO documents
		(id, title, body, url, source, published_at, entities_json, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.Title, d.Body, d.URL, d.Source, d.PublishedAt, string(entities), d.CreatedAt,
	)
	return err
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, title, body, url, source, published_at, entities_json, created_at
		FROM documents WHERE id = ?`, id)
	return scanDocument(row.Scan)
}

// DocumentsSince returns documents published at or after the given timestamp,
// most recent first.
func (s *Store) DocumentsSince(ctx context.Context, fromTs int64) ([]*Document, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, title, body, url, source, published_at, entities_json, created_at
		FROM documents WHERE published_at >= ? ORDER BY published_at DESC`, fromTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// EvidenceDocuments returns the documents linked to an event as evidence.
func (s *Store) EvidenceDocuments(ctx context.Context, eventID string) ([]*Document, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT d.id, d.title, d.body, d.url, d.source, d.published_at, d.entities_json, d.created_at
		FROM event_evidence ev
		JOIN documents d ON d.id = ev.document_id
		WHERE ev.event_id = ?`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func scanDocument(scan func(...any) error) (*Document, error) {
	var d Document
	var entitiesJSON string
	err := scan(&d.ID, &d.Title, &d.Body, &d.URL, &d.Source, &d.PublishedAt, &entitiesJSON, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if err := json.Unmarshal([]byte(entitiesJSON), &d.Entities); err != nil {
		// Malformed entity payloads degrade to "no entities", not a failure.
		d.Entities = nil
	}
	return &d, nil
}
