// CLAUDE:SUMMARY Backtest Reporter — alert outcome counts and per-rule breakdowns from labels.
// Package analytics provides read-only aggregations over events and alerts:
// the backtest report, the co-mention entity graph, and the scalar feature
// time series computer.
package analytics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/sentinelle/internal/store"
)

// Analytics runs aggregations against the engine store.
type Analytics struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates an Analytics instance.
func New(s *store.Store, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analytics{store: s, logger: logger}
}

// BacktestReport summarises alert outcomes in a time range. Helpful and
// unhelpful counts come from user labels; by_rule maps are keyed by rule ID.
type BacktestReport struct {
	FromTs          int64          `json:"from_ts"`
	ToTs            int64          `json:"to_ts"`
	TotalAlerts     int            `json:"total_alerts"`
	AckedAlerts     int            `json:"acked_alerts"`
	SnoozedAlerts   int            `json:"snoozed_alerts"`
	ResolvedAlerts  int            `json:"resolved_alerts"`
	HelpfulAlerts   int            `json:"helpful_alerts"`
	UnhelpfulAlerts int            `json:"unhelpful_alerts"`
	ByRule          map[string]int `json:"by_rule"`
	ByRuleHelpful   map[string]int `json:"by_rule_helpful"`
	ByRuleUnhelpful map[string]int `json:"by_rule_unhelpful"`
}

// Backtest counts alerts fired in [fromTs, toTs] by status, label and rule.
func (a *Analytics) Backtest(ctx context.Context, fromTs, toTs int64) (*BacktestReport, error) {
	rows, err := a.store.DB.QueryContext(ctx, `
		SELECT a.rule_id, a.status, COALESCE(l.label, 0), COUNT(*)
		FROM alerts a
		LEFT JOIN alert_labels l ON l.alert_id = a.id
		WHERE a.fired_at >= ? AND a.fired_at <= ?
		GROUP BY a.rule_id, a.status, l.label`, fromTs, toTs)
	if err != nil {
		return nil, fmt.Errorf("backtest query: %w", err)
	}
	defer rows.Close()

	report := &BacktestReport{
		FromTs:          fromTs,
		ToTs:            toTs,
		ByRule:          make(map[string]int),
		ByRuleHelpful:   make(map[string]int),
		ByRuleUnhelpful: make(map[string]int),
	}
	for rows.Next() {
		var ruleID, status string
		var label, count int
		if err := rows.Scan(&ruleID, &status, &label, &count); err != nil {
			return nil, fmt.Errorf("scan backtest row: %w", err)
		}
		report.TotalAlerts += count
		report.ByRule[ruleID] += count
		switch status {
		case store.StatusAck:
			report.AckedAlerts += count
		case store.StatusSnoozed:
			report.SnoozedAlerts += count
		case store.StatusResolved:
			report.ResolvedAlerts += count
		}
		switch label {
		case 1:
			report.HelpfulAlerts += count
			report.ByRuleHelpful[ruleID] += count
		case -1:
			report.UnhelpfulAlerts += count
			report.ByRuleUnhelpful[ruleID] += count
		}
	}
	return report, rows.Err()
}
