// CLAUDE:SUMMARY FTS5 queries over the rebuildable search_index table.
package store

import (
	"context"
	"fmt"
)

// ClearSearchIndex drops every row from the search index. The indexer calls
// this at the start of a rebuild.
func (s *Store) ClearSearchIndex(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM search_index`)
	return err
}

// IndexEntry inserts one row into the search index.
func (s *Store) IndexEntry(ctx context.Context, docType, docID, title, body string, ts int64) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO search_index (title, body, doc_type, doc_id, ts) VALUES (?,?,?,?,?)`,
		title, body, docType, docID, ts)
	return err
}

// Search runs a ranked FTS5 query over the index.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]*SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT doc_type, doc_id, title, snippet(search_index, 1, '[', ']', '…', 12), ts, rank
		FROM search_index
		WHERE search_index MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var hits []*SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.DocType, &h.DocID, &h.Title, &h.Snippet, &h.Ts, &h.Rank); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, &h)
	}
	return hits, rows.Err()
}
