// CLAUDE:SUMMARY Alert Manager — rule evaluation over recent events, 6h dedup, status lifecycle, labels.
// Package alerting turns rule matches into deduplicated alerts and owns the
// alert status lifecycle.
package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/sentinelle/idgen"
	"github.com/hazyhaar/sentinelle/internal/rules"
	"github.com/hazyhaar/sentinelle/internal/store"
	"github.com/hazyhaar/sentinelle/observability"
)

// DedupWindow is the rolling window during which repeated matches of the
// same (rule, event) pair do not create a new alert, as long as the existing
// alert is not resolved.
const DedupWindow = 6 * time.Hour

// Snooze duration bounds.
const (
	SnoozeMin = 60 * time.Second
	SnoozeMax = 7 * 24 * time.Hour
)

// ErrNotFound is returned when an alert does not exist.
var ErrNotFound = errors.New("alerting: alert not found")

// ErrInvalidTransition is returned when a status change is not allowed from
// the alert's current status.
var ErrInvalidTransition = errors.New("alerting: invalid status transition")

// EscalationTrigger schedules an escalation check for a freshly created
// alert. Failures are logged by the Manager, never propagated.
type EscalationTrigger func(ctx context.Context, alertID string) error

// Manager evaluates rules against events and manages alerts.
type Manager struct {
	store    *store.Store
	engine   *rules.Engine
	newID    idgen.Generator
	logger   *slog.Logger
	events   *observability.EventLogger
	escalate EscalationTrigger
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithEventLogger enables business-event recording.
func WithEventLogger(el *observability.EventLogger) Option {
	return func(m *Manager) { m.events = el }
}

// WithEscalationTrigger sets the hook invoked after each alert creation.
func WithEscalationTrigger(t EscalationTrigger) Option {
	return func(m *Manager) { m.escalate = t }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager.
func New(s *store.Store, engine *rules.Engine, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		engine: engine,
		newID:  idgen.Prefixed("alr_", idgen.Default),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Evaluate loads enabled rules and recent events and creates an alert for
// every matching (event, rule) pair that passes the dedup window. It returns
// the alerts created in this run. Individual rule or event failures are
// logged and skipped; only store-level load failures are fatal.
func (m *Manager) Evaluate(ctx context.Context, daysBack, maxEvents int) ([]*store.Alert, error) {
	ruleRows, err := m.store.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return m.EvaluateRules(ctx, ruleRows, daysBack, maxEvents)
}

// EvaluateRules is Evaluate restricted to an explicit rule set. The scheduler
// uses it to run only the rules whose cron schedule is due.
func (m *Manager) EvaluateRules(ctx context.Context, ruleRows []*store.AlertRule, daysBack, maxEvents int) ([]*store.Alert, error) {
	if daysBack < 1 {
		daysBack = 1
	}
	now := m.now().UnixMilli()
	fromTs := now - int64(daysBack)*86400_000

	events, err := m.store.RecentEvents(ctx, fromTs, maxEvents)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	// Parse each rule once, not once per event.
	type parsedRule struct {
		row  *store.AlertRule
		expr *rules.Expression
	}
	var parsed []parsedRule
	for _, r := range ruleRows {
		expr, err := rules.Parse(r.RuleJSON)
		if err != nil {
			m.logger.Warn("skipping unparseable rule", "rule", r.ID, "error", err)
			continue
		}
		parsed = append(parsed, parsedRule{row: r, expr: expr})
	}

	var created []*store.Alert
	for _, ev := range events {
		haystack, entitySet, sourceSet, err := m.deriveSets(ctx, ev)
		if err != nil {
			m.logger.Warn("derive event sets failed", "event", ev.ID, "error", err)
			continue
		}
		view := rules.EventView{
			EventType:  ev.EventType,
			Sentiment:  ev.SentimentScore,
			Volume:     ev.VolumeScore,
			Novelty:    ev.NoveltyScore,
			Severity:   ev.Severity,
			Confidence: ev.Confidence,
			StartTs:    ev.StartTs,
			EndTs:      ev.EndTs,
		}

		for _, pr := range parsed {
			if !m.engine.Matches(pr.expr, haystack, entitySet, sourceSet, view) {
				continue
			}
			alert, err := m.CreateAlertIfNew(ctx, pr.row, ev)
			if err != nil {
				m.logger.Warn("create alert failed", "rule", pr.row.ID, "event", ev.ID, "error", err)
				continue
			}
			if alert != nil {
				created = append(created, alert)
			}
		}
	}

	m.logger.Info("rule evaluation complete",
		"rules", len(parsed), "events", len(events), "alerts_created", len(created))
	return created, nil
}

// deriveSets builds the lowercased haystack, entity set and source set for
// one event from the event itself and its evidence documents.
func (m *Manager) deriveSets(ctx context.Context, ev *store.Event) (string, map[string]bool, map[string]bool, error) {
	docs, err := m.store.EvidenceDocuments(ctx, ev.ID)
	if err != nil {
		return "", nil, nil, err
	}

	var hay strings.Builder
	hay.WriteString(ev.Title)
	hay.WriteString(" ")
	hay.WriteString(ev.Summary)

	entitySet := make(map[string]bool)
	sourceSet := make(map[string]bool)
	for _, d := range docs {
		hay.WriteString(" ")
		hay.WriteString(d.Title)
		for _, e := range d.Entities {
			if e.Name != "" {
				entitySet[strings.ToLower(e.Name)] = true
			}
		}
		if d.Source != "" {
			sourceSet[strings.ToLower(d.Source)] = true
		}
	}
	return strings.ToLower(hay.String()), entitySet, sourceSet, nil
}

// alertPayload is the context snapshot stored with each alert.
type alertPayload struct {
	Rule struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"rule"`
	Event struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		StartTs int64  `json:"start_ts"`
		EndTs   int64  `json:"end_ts"`
	} `json:"event"`
	Scores struct {
		Sentiment float64 `json:"sentiment"`
		Novelty   float64 `json:"novelty"`
		Volume    float64 `json:"volume"`
	} `json:"scores"`
}

// CreateAlertIfNew creates an alert for the (rule, event) pair unless a
// non-resolved alert for the same pair exists within the dedup window.
// Returns nil, nil when deduplicated. On creation the escalation trigger is
// fired; its failure is logged and swallowed.
func (m *Manager) CreateAlertIfNew(ctx context.Context, rule *store.AlertRule, ev *store.Event) (*store.Alert, error) {
	now := m.now()
	since := now.Add(-DedupWindow).UnixMilli()

	existing, err := m.store.FindOpenAlert(ctx, rule.ID, ev.ID, since)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		return nil, nil
	}

	var p alertPayload
	p.Rule.ID = rule.ID
	p.Rule.Name = rule.Name
	p.Event.ID = ev.ID
	p.Event.Title = ev.Title
	p.Event.StartTs = ev.StartTs
	p.Event.EndTs = ev.EndTs
	p.Scores.Sentiment = ev.SentimentScore
	p.Scores.Novelty = ev.NoveltyScore
	p.Scores.Volume = ev.VolumeScore
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	alert := &store.Alert{
		ID:          m.newID(),
		RuleID:      rule.ID,
		FiredAt:     now.UnixMilli(),
		EventID:     ev.ID,
		PayloadJSON: string(payload),
		Status:      store.StatusNew,
	}
	if err := m.store.InsertAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}

	if m.events != nil {
		m.events.LogEvent(ctx, observability.BusinessEvent{
			EventType:  "alert_fired",
			EntityType: "alert",
			EntityID:   alert.ID,
			Action:     "create",
			Success:    true,
		})
	}

	if m.escalate != nil {
		if err := m.escalate(ctx, alert.ID); err != nil {
			m.logger.Error("escalation trigger failed", "alert", alert.ID, "error", err)
		}
	}

	return alert, nil
}

// Acknowledge moves an alert from new to ack.
func (m *Manager) Acknowledge(ctx context.Context, alertID string) error {
	return m.transition(ctx, alertID, store.StatusAck, nil, store.StatusNew)
}

// Snooze moves an alert from new or ack to snoozed. The requested duration
// is clamped to [SnoozeMin, SnoozeMax].
func (m *Manager) Snooze(ctx context.Context, alertID string, requested time.Duration) error {
	if requested < SnoozeMin {
		requested = SnoozeMin
	}
	if requested > SnoozeMax {
		requested = SnoozeMax
	}
	until := m.now().Add(requested).UnixMilli()
	return m.transition(ctx, alertID, store.StatusSnoozed, &until, store.StatusNew, store.StatusAck)
}

// Resolve moves any non-resolved alert to resolved. There is no transition
// out of resolved.
func (m *Manager) Resolve(ctx context.Context, alertID string) error {
	return m.transition(ctx, alertID, store.StatusResolved, nil,
		store.StatusNew, store.StatusAck, store.StatusSnoozed)
}

func (m *Manager) transition(ctx context.Context, alertID, to string, snoozedUntil *int64, from ...string) error {
	alert, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert == nil {
		return ErrNotFound
	}
	allowed := false
	for _, f := range from {
		if alert.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, to)
	}
	return m.store.UpdateAlertStatus(ctx, alertID, to, snoozedUntil)
}

// SetLabel records a helpful (+1) or unhelpful (-1) judgment on an alert.
// Independent of status, idempotent per alert (latest write wins).
func (m *Manager) SetLabel(ctx context.Context, alertID string, label int, note string) error {
	alert, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert == nil {
		return ErrNotFound
	}
	return m.store.SetLabel(ctx, &store.AlertLabel{AlertID: alertID, Label: label, Note: note})
}

// ExpireSnoozes wakes snoozed alerts whose deadline has passed so escalation
// can resume. Returns the number of alerts woken.
func (m *Manager) ExpireSnoozes(ctx context.Context) (int, error) {
	return m.store.ExpireSnoozes(ctx, m.now().UnixMilli())
}
