package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ClaimEscalation inserts the (alert, level, channel) attempt row with
// sent=false and returns true if this call created it. The UNIQUE index makes
// the claim atomic: under concurrent checks exactly one caller wins and
// proceeds to dispatch.
func (s *Store) ClaimEscalation(ctx context.Context, e *AlertEscalation) (bool, error) {
	if e.EscalatedAt == 0 {
		e.EscalatedAt = time.Now().UnixMilli()
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO alert_escalations
		(id, alert_id, escalated_at, escalation_level, channel, sent, error_message)
		VALUES (?,?,?,?,?,0,'')`,
		e.ID, e.AlertID, e.EscalatedAt, e.EscalationLevel, e.Channel)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkEscalationSent records the outcome of a dispatch attempt. The attempt
// counts as made either way; a failure only populates error_message.
func (s *Store) MarkEscalationSent(ctx context.Context, id, errMsg string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE alert_escalations SET sent=1, error_message=? WHERE id=?`, errMsg, id)
	return err
}

// HasEscalationLevel reports whether any attempt row exists for the
// (alert, level) pair. Level trigger idempotency check.
func (s *Store) HasEscalationLevel(ctx context.Context, alertID string, level int) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM alert_escalations WHERE alert_id = ? AND escalation_level = ? LIMIT 1`,
		alertID, level).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ListEscalations returns all escalation attempts for an alert in level order.
func (s *Store) ListEscalations(ctx context.Context, alertID string) ([]*AlertEscalation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, alert_id, escalated_at, escalation_level, channel, sent, error_message
		FROM alert_escalations WHERE alert_id = ?
		ORDER BY escalation_level ASC, channel ASC`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AlertEscalation
	for rows.Next() {
		var e AlertEscalation
		var sent int
		if err := rows.Scan(&e.ID, &e.AlertID, &e.EscalatedAt, &e.EscalationLevel,
			&e.Channel, &sent, &e.ErrorMessage); err != nil {
			return nil, err
		}
		e.Sent = sent != 0
		out = append(out, &e)
	}
	return out, rows.Err()
}
