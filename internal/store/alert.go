// CLAUDE:SUMMARY Alert lifecycle writes — dedup lookup, status transitions, snooze expiry, labels.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const alertColumns = `id, rule_id, fired_at, event_id, payload_json, status, snoozed_until, updated_at`

// InsertAlert stores a new alert.
func (s *Store) InsertAlert(ctx context.Context, a *Alert) error {
	if a.Status == "" {
		a.Status = StatusNew
	}
	a.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.RuleID, a.FiredAt, nullStr(a.EventID), a.PayloadJSON,
		a.Status, a.SnoozedUntil, a.UpdatedAt,
	)
	return err
}

// GetAlert retrieves an alert by ID.
func (s *Store) GetAlert(ctx context.Context, id string) (*Alert, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	return scanAlert(row.Scan)
}

// FindOpenAlert returns the most recent non-resolved alert for the
// (rule, event) pair fired at or after sinceTs, or nil. This is the dedup
// window lookup.
func (s *Store) FindOpenAlert(ctx context.Context, ruleID, eventID string, sinceTs int64) (*Alert, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts
		WHERE rule_id = ? AND event_id = ? AND status != ? AND fired_at >= ?
		ORDER BY fired_at DESC LIMIT 1`,
		ruleID, eventID, StatusResolved, sinceTs)
	return scanAlert(row.Scan)
}

// ListAlerts returns alerts filtered by status ("" = all), newest first.
func (s *Store) ListAlerts(ctx context.Context, status string, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + alertColumns + ` FROM alerts`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY fired_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// UpdateAlertStatus sets an alert's status and clears any snooze deadline
// unless the new status is snoozed.
func (s *Store) UpdateAlertStatus(ctx context.Context, id, status string, snoozedUntil *int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE alerts SET status=?, snoozed_until=?, updated_at=? WHERE id=?`,
		status, snoozedUntil, time.Now().UnixMilli(), id)
	return err
}

// ExpireSnoozes moves snoozed alerts whose deadline has passed back to "new"
// and returns how many were woken.
func (s *Store) ExpireSnoozes(ctx context.Context, now int64) (int, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE alerts SET status=?, snoozed_until=NULL, updated_at=?
		WHERE status=? AND snoozed_until IS NOT NULL AND snoozed_until <= ?`,
		StatusNew, now, StatusSnoozed, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// SetLabel records a user judgment on an alert. Latest write wins.
func (s *Store) SetLabel(ctx context.Context, l *AlertLabel) error {
	if l.Label != 1 && l.Label != -1 {
		return fmt.Errorf("label must be +1 or -1, got %d", l.Label)
	}
	if l.LabeledAt == 0 {
		l.LabeledAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO alert_labels (alert_id, label, note, labeled_at) VALUES (?,?,?,?)
		ON CONFLICT(alert_id) DO UPDATE SET label=excluded.label, note=excluded.note,
		labeled_at=excluded.labeled_at`,
		l.AlertID, l.Label, l.Note, l.LabeledAt)
	return err
}

// GetLabel returns the label for an alert, or nil.
func (s *Store) GetLabel(ctx context.Context, alertID string) (*AlertLabel, error) {
	var l AlertLabel
	err := s.DB.QueryRowContext(ctx,
		`SELECT alert_id, label, note, labeled_at FROM alert_labels WHERE alert_id = ?`,
		alertID).Scan(&l.AlertID, &l.Label, &l.Note, &l.LabeledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan label: %w", err)
	}
	return &l, nil
}

func scanAlert(scan func(...any) error) (*Alert, error) {
	var a Alert
	var eventID sql.NullString
	var snoozedUntil sql.NullInt64
	err := scan(&a.ID, &a.RuleID, &a.FiredAt, &eventID, &a.PayloadJSON,
		&a.Status, &snoozedUntil, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	a.EventID = eventID.String
	if snoozedUntil.Valid {
		a.SnoozedUntil = &snoozedUntil.Int64
	}
	return &a, nil
}
