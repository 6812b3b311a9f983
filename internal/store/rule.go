// CLAUDE:SUMMARY CRUD for alert_rules — insert, list enabled, enable/disable, schedule lookup.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const ruleColumns = `id, name, enabled, watchlist_id, rule_json, schedule, escalation_json, created_at, updated_at`

// InsertRule inserts a new alert rule.
func (s *Store) InsertRule(ctx context.Context, r *AlertRule) error {
	now := time.Now().UnixMilli()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.RuleJSON == "" {
		r.RuleJSON = "{}"
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO alert_rules (`+ruleColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Name, boolInt(r.Enabled), nullStr(r.WatchlistID), r.RuleJSON,
		r.Schedule, r.EscalationJSON, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

// GetRule retrieves a rule by ID.
func (s *Store) GetRule(ctx context.Context, id string) (*AlertRule, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE id = ?`, id)
	return scanRule(row.Scan)
}

// ListRules returns all rules, optionally only enabled ones.
func (s *Store) ListRules(ctx context.Context, enabledOnly bool) ([]*AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*AlertRule
	for rows.Next() {
		r, err := scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpdateRule updates a rule's mutable fields.
func (s *Store) UpdateRule(ctx context.Context, r *AlertRule) error {
	r.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE alert_rules SET name=?, enabled=?, watchlist_id=?, rule_json=?,
		schedule=?, escalation_json=?, updated_at=? WHERE id=?`,
		r.Name, boolInt(r.Enabled), nullStr(r.WatchlistID), r.RuleJSON,
		r.Schedule, r.EscalationJSON, r.UpdatedAt, r.ID,
	)
	return err
}

// SetRuleEnabled flips a rule's enabled flag.
func (s *Store) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE alert_rules SET enabled=?, updated_at=? WHERE id=?`,
		boolInt(enabled), time.Now().UnixMilli(), id)
	return err
}

func scanRule(scan func(...any) error) (*AlertRule, error) {
	var r AlertRule
	var enabled int
	var watchlistID sql.NullString
	err := scan(&r.ID, &r.Name, &enabled, &watchlistID, &r.RuleJSON,
		&r.Schedule, &r.EscalationJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	r.Enabled = enabled != 0
	r.WatchlistID = watchlistID.String
	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
