package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertWatchlist inserts a new watchlist.
func (s *Store) InsertWatchlist(ctx context.Context, w *Watchlist) error {
	now := time.Now().UnixMilli()
	if w.CreatedAt == 0 {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO watchlists (id, name, description, created_at, updated_at)
		VALUES (?,?,?,?,?)`,
		w.ID, w.Name, w.Description, w.CreatedAt, w.UpdatedAt)
	return err
}

// GetWatchlist retrieves a watchlist by ID.
func (s *Store) GetWatchlist(ctx context.Context, id string) (*Watchlist, error) {
	var w Watchlist
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM watchlists WHERE id = ?`,
		id).Scan(&w.ID, &w.Name, &w.Description, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan watchlist: %w", err)
	}
	return &w, nil
}

// ListWatchlists returns all watchlists.
func (s *Store) ListWatchlists(ctx context.Context) ([]*Watchlist, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at
		FROM watchlists ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []*Watchlist
	for rows.Next() {
		var w Watchlist
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		lists = append(lists, &w)
	}
	return lists, rows.Err()
}

// DeleteWatchlist removes a watchlist (cascades to its items).
func (s *Store) DeleteWatchlist(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM watchlists WHERE id = ?`, id)
	return err
}

// InsertWatchlistItem adds an item to a watchlist.
func (s *Store) InsertWatchlistItem(ctx context.Context, it *WatchlistItem) error {
	if it.CreatedAt == 0 {
		it.CreatedAt = time.Now().UnixMilli()
	}
	if it.ItemType == "" {
		it.ItemType = "entity"
	}
	if it.Weight == 0 {
		it.Weight = 1
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO watchlist_items (id, watchlist_id, item_type, value, weight, enabled, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		it.ID, it.WatchlistID, it.ItemType, it.Value, it.Weight, boolInt(it.Enabled), it.CreatedAt)
	return err
}

// ListWatchlistItems returns a watchlist's items, optionally only enabled ones.
func (s *Store) ListWatchlistItems(ctx context.Context, watchlistID string, enabledOnly bool) ([]*WatchlistItem, error) {
	query := `SELECT id, watchlist_id, item_type, value, weight, enabled, created_at
		FROM watchlist_items WHERE watchlist_id = ?`
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.DB.QueryContext(ctx, query, watchlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*WatchlistItem
	for rows.Next() {
		var it WatchlistItem
		var enabled int
		if err := rows.Scan(&it.ID, &it.WatchlistID, &it.ItemType, &it.Value,
			&it.Weight, &enabled, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.Enabled = enabled != 0
		items = append(items, &it)
	}
	return items, rows.Err()
}

// DeleteWatchlistItem removes one item.
func (s *Store) DeleteWatchlistItem(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM watchlist_items WHERE id = ?`, id)
	return err
}
