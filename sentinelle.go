// CLAUDE:SUMMARY Main sentinelle orchestrator — wires store, clusterer, rule engine, alert manager, escalation, scheduler.
// Package sentinelle is a temporal event monitoring and alerting engine for
// news documents.
//
// Documents with pre-extracted entities are ingested, clustered into temporal
// events (one per UTC day and dominant entity), and scored for sentiment,
// volume and novelty. Alert rules evaluate events, create deduplicated
// alerts, and drive multi-level escalation with delay-gated channel dispatch.
//
// Usage:
//
//	svc, err := sentinelle.New(cfg, notifier, logger)
//	defer svc.Close()
//	svc.RegisterMCP(mcpServer)
//	svc.Start(ctx)
package sentinelle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/sentinelle/idgen"
	"github.com/hazyhaar/sentinelle/internal/alerting"
	"github.com/hazyhaar/sentinelle/internal/analytics"
	"github.com/hazyhaar/sentinelle/internal/cluster"
	"github.com/hazyhaar/sentinelle/internal/escalate"
	"github.com/hazyhaar/sentinelle/internal/rules"
	"github.com/hazyhaar/sentinelle/internal/scheduler"
	"github.com/hazyhaar/sentinelle/internal/search"
	"github.com/hazyhaar/sentinelle/internal/store"
	"github.com/hazyhaar/sentinelle/observability"
)

// Service is the main sentinelle orchestrator.
type Service struct {
	store     *store.Store
	clusterer *cluster.Clusterer
	manager   *alerting.Manager
	escalator *escalate.Engine
	scheduler *scheduler.Scheduler
	indexer   *search.Indexer
	analytics *analytics.Analytics
	logger    *slog.Logger
	config    *Config
}

// New creates a Service. Opens the SQLite database, applies the schema and
// wires all components. notifier may be nil, in which case escalations
// dispatch through a webhook-only notifier.
func New(cfg *Config, notifier escalate.Notifier, logger *slog.Logger) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = escalate.NewWebhookNotifier()
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := observability.Init(s.DB); err != nil {
		s.Close()
		return nil, err
	}
	events := observability.NewEventLogger(s.DB, "sentinelle")

	engine := rules.NewEngine(rules.WithLogger(logger))

	escalator := escalate.New(s, notifier, escalate.Options{
		DispatchTimeout: cfg.Escalation.DispatchTimeout,
		Workers:         cfg.Escalation.Workers,
		QueueVisibility: cfg.Escalation.Visibility,
		QueuePoll:       cfg.Escalation.PollInterval,
		Logger:          logger,
	}).WithEventLogger(events)
	if err := escalator.Init(context.Background()); err != nil {
		s.Close()
		return nil, err
	}

	manager := alerting.New(s, engine,
		alerting.WithLogger(logger),
		alerting.WithEventLogger(events),
		alerting.WithEscalationTrigger(escalator.Trigger),
	)

	sched := scheduler.New(s, manager, escalator, scheduler.Config{
		EvalInterval:       cfg.Scheduler.EvalInterval,
		EscalationInterval: cfg.Scheduler.EscalationInterval,
		SweepInterval:      cfg.Scheduler.SweepInterval,
		DaysBack:           cfg.Scheduler.DaysBack,
		MaxEvents:          cfg.Scheduler.MaxEvents,
		DisableRuleWatch:   cfg.Scheduler.DisableRuleWatch,
	}, logger)

	return &Service{
		store:     s,
		clusterer: cluster.New(s, logger),
		manager:   manager,
		escalator: escalator,
		scheduler: sched,
		indexer:   search.New(s, logger),
		analytics: analytics.New(s, logger),
		logger:    logger,
		config:    cfg,
	}, nil
}

// Start launches background goroutines (scheduler loops, escalation
// consumer).
func (s *Service) Start(ctx context.Context) {
	go s.scheduler.Run(ctx)
	go s.escalator.Start(ctx)
	go s.retentionLoop(ctx)
	s.logger.Info("sentinelle: started", "db", s.config.DBPath)
}

// retentionLoop trims the observability event log once a day.
func (s *Service) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if err := observability.Cleanup(ctx, s.store.DB, s.config.EventLogRetentionDays); err != nil {
			s.logger.Warn("event log cleanup failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close shuts down the service and closes the database.
func (s *Service) Close() error {
	return s.store.Close()
}

// Store returns the underlying store for direct access (testing, admin).
func (s *Service) Store() *store.Store {
	return s.store
}

// --- documents & events ---

// IngestDocument stores a document. Re-ingesting an existing ID is a no-op.
// An empty ID gets a generated one; the assigned ID is returned.
func (s *Service) IngestDocument(ctx context.Context, d *store.Document) (string, error) {
	if d.Title == "" && d.Body == "" {
		return "", fmt.Errorf("%w: document needs a title or body", ErrInvalidInput)
	}
	if d.PublishedAt <= 0 {
		return "", fmt.Errorf("%w: published_at is required", ErrInvalidInput)
	}
	if d.ID == "" {
		d.ID = idgen.Prefixed("doc_", idgen.Default)()
	}
	d.Entities = cleanEntities(d.Entities)
	if err := s.store.InsertDocument(ctx, d); err != nil {
		return "", err
	}
	return d.ID, nil
}

// RebuildEvents re-clusters documents from the last daysBack days into
// events. daysBack <= 0 uses the configured default. Returns the number of
// events created.
func (s *Service) RebuildEvents(ctx context.Context, daysBack int) (int, error) {
	if daysBack <= 0 {
		daysBack = s.config.Cluster.DaysBack
	}
	return s.clusterer.Rebuild(ctx, daysBack)
}

// RecentEvents lists events ending in the last daysBack days.
func (s *Service) RecentEvents(ctx context.Context, daysBack, limit int) ([]*store.Event, error) {
	if daysBack <= 0 {
		daysBack = s.config.Cluster.DaysBack
	}
	fromTs := time.Now().UTC().AddDate(0, 0, -daysBack).UnixMilli()
	return s.store.RecentEvents(ctx, fromTs, limit)
}

// GetEvent returns one event with its evidence documents.
func (s *Service) GetEvent(ctx context.Context, id string) (*store.Event, []*store.Document, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if ev == nil {
		return nil, nil, ErrNotFound
	}
	docs, err := s.store.EvidenceDocuments(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return ev, docs, nil
}

// --- search ---

// RebuildSearchIndex drops and rebuilds the full-text index. fromTs bounds
// the indexed documents when non-nil; events are always fully indexed.
func (s *Service) RebuildSearchIndex(ctx context.Context, fromTs *int64) (int, error) {
	return s.indexer.Rebuild(ctx, fromTs)
}

// Search runs a ranked full-text query over indexed documents and events.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*store.SearchHit, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	return s.store.Search(ctx, query, limit)
}

// --- rules ---

// AddRule validates and stores an alert rule. The rule expression must parse
// and any escalation policy must be well formed; unknown condition types are
// accepted here and fail closed at evaluation time.
func (s *Service) AddRule(ctx context.Context, r *store.AlertRule) error {
	if err := s.validateRule(r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = idgen.Prefixed("rule_", idgen.Default)()
	}
	return s.store.InsertRule(ctx, r)
}

// UpdateRule validates and replaces an existing rule.
func (s *Service) UpdateRule(ctx context.Context, r *store.AlertRule) error {
	if err := s.validateRule(r); err != nil {
		return err
	}
	existing, err := s.store.GetRule(ctx, r.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}
	return s.store.UpdateRule(ctx, r)
}

func (s *Service) validateRule(r *store.AlertRule) error {
	if r.Name == "" {
		return fmt.Errorf("%w: rule name is required", ErrInvalidInput)
	}
	if _, err := rules.Parse(r.RuleJSON); err != nil {
		return fmt.Errorf("%w: rule_json: %v", ErrInvalidInput, err)
	}
	if _, err := escalate.ParseConfig(r.EscalationJSON); err != nil {
		return fmt.Errorf("%w: escalation_json: %v", ErrInvalidInput, err)
	}
	return nil
}

// GetRule retrieves an alert rule by ID.
func (s *Service) GetRule(ctx context.Context, id string) (*store.AlertRule, error) {
	r, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// ListRules lists alert rules.
func (s *Service) ListRules(ctx context.Context, enabledOnly bool) ([]*store.AlertRule, error) {
	return s.store.ListRules(ctx, enabledOnly)
}

// SetRuleEnabled toggles a rule.
func (s *Service) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	return s.store.SetRuleEnabled(ctx, id, enabled)
}

// EvaluateNow runs one rule evaluation pass immediately, outside the
// scheduler cadence. Returns the alerts created.
func (s *Service) EvaluateNow(ctx context.Context) ([]*store.Alert, error) {
	return s.manager.Evaluate(ctx, s.config.Scheduler.DaysBack, s.config.Scheduler.MaxEvents)
}

// --- alerts ---

// ListAlerts lists alerts, optionally filtered by status.
func (s *Service) ListAlerts(ctx context.Context, status string, limit int) ([]*store.Alert, error) {
	return s.store.ListAlerts(ctx, status, limit)
}

// GetAlert returns one alert with its escalation history.
func (s *Service) GetAlert(ctx context.Context, id string) (*store.Alert, []*store.AlertEscalation, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if a == nil {
		return nil, nil, ErrNotFound
	}
	escs, err := s.store.ListEscalations(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return a, escs, nil
}

// AcknowledgeAlert moves an alert from new to ack.
func (s *Service) AcknowledgeAlert(ctx context.Context, id string) error {
	return s.manager.Acknowledge(ctx, id)
}

// SnoozeAlert silences an alert for the requested duration (clamped).
func (s *Service) SnoozeAlert(ctx context.Context, id string, d time.Duration) error {
	return s.manager.Snooze(ctx, id, d)
}

// ResolveAlert closes an alert. Terminal.
func (s *Service) ResolveAlert(ctx context.Context, id string) error {
	return s.manager.Resolve(ctx, id)
}

// LabelAlert records a helpful (+1) or unhelpful (-1) judgment.
func (s *Service) LabelAlert(ctx context.Context, id string, label int, note string) error {
	if label != 1 && label != -1 {
		return fmt.Errorf("%w: label must be +1 or -1", ErrInvalidInput)
	}
	return s.manager.SetLabel(ctx, id, label, note)
}

// TriggerEscalationLevel dispatches one escalation level by hand, bypassing
// its delay. Used for manual-only levels and operator overrides.
func (s *Service) TriggerEscalationLevel(ctx context.Context, alertID string, level int) error {
	return s.escalator.TriggerManualLevel(ctx, alertID, level)
}

// --- watchlists ---

// AddWatchlist creates a watchlist.
func (s *Service) AddWatchlist(ctx context.Context, w *store.Watchlist) error {
	if w.Name == "" {
		return fmt.Errorf("%w: watchlist name is required", ErrInvalidInput)
	}
	if w.ID == "" {
		w.ID = idgen.Prefixed("wl_", idgen.Default)()
	}
	return s.store.InsertWatchlist(ctx, w)
}

// ListWatchlists lists all watchlists.
func (s *Service) ListWatchlists(ctx context.Context) ([]*store.Watchlist, error) {
	return s.store.ListWatchlists(ctx)
}

// DeleteWatchlist removes a watchlist and its items.
func (s *Service) DeleteWatchlist(ctx context.Context, id string) error {
	return s.store.DeleteWatchlist(ctx, id)
}

var watchItemTypes = map[string]bool{
	"entity": true, "keyword": true, "domain": true, "source": true,
}

// AddWatchlistItem adds one item to a watchlist.
func (s *Service) AddWatchlistItem(ctx context.Context, it *store.WatchlistItem) error {
	if !watchItemTypes[it.ItemType] {
		return fmt.Errorf("%w: unknown item_type %q", ErrInvalidInput, it.ItemType)
	}
	if it.Value == "" {
		return fmt.Errorf("%w: item value is required", ErrInvalidInput)
	}
	wl, err := s.store.GetWatchlist(ctx, it.WatchlistID)
	if err != nil {
		return err
	}
	if wl == nil {
		return ErrNotFound
	}
	if it.ID == "" {
		it.ID = idgen.Prefixed("wli_", idgen.Default)()
	}
	return s.store.InsertWatchlistItem(ctx, it)
}

// ListWatchlistItems lists the items of a watchlist.
func (s *Service) ListWatchlistItems(ctx context.Context, watchlistID string, enabledOnly bool) ([]*store.WatchlistItem, error) {
	return s.store.ListWatchlistItems(ctx, watchlistID, enabledOnly)
}

// DeleteWatchlistItem removes one watchlist item.
func (s *Service) DeleteWatchlistItem(ctx context.Context, id string) error {
	return s.store.DeleteWatchlistItem(ctx, id)
}

// --- analytics ---

// Backtest summarises alert outcomes in [fromTs, toTs].
func (s *Service) Backtest(ctx context.Context, fromTs, toTs int64) (*analytics.BacktestReport, error) {
	if fromTs > toTs {
		return nil, fmt.Errorf("%w: from_ts after to_ts", ErrInvalidInput)
	}
	return s.analytics.Backtest(ctx, fromTs, toTs)
}

// EntityGraph builds the co-mention graph over recent documents.
func (s *Service) EntityGraph(ctx context.Context, daysBack, maxNodes, maxEdges int) (*analytics.EntityGraph, error) {
	return s.analytics.Graph(ctx, daysBack, maxNodes, maxEdges)
}

var featureExpressions = map[string]bool{
	"alerts_count": true, "events_count": true, "avg_sentiment": true,
}

// AddFeature registers a scalar feature time series definition.
func (s *Service) AddFeature(ctx context.Context, f *store.FeatureDefinition) error {
	if f.Name == "" {
		return fmt.Errorf("%w: feature name is required", ErrInvalidInput)
	}
	if !featureExpressions[f.Expression] {
		return fmt.Errorf("%w: unknown expression %q", ErrInvalidInput, f.Expression)
	}
	if f.ID == "" {
		f.ID = idgen.Prefixed("feat_", idgen.Default)()
	}
	return s.store.InsertFeatureDefinition(ctx, f)
}

// ListFeatures lists feature definitions.
func (s *Service) ListFeatures(ctx context.Context) ([]*store.FeatureDefinition, error) {
	return s.store.ListFeatureDefinitions(ctx)
}

// ComputeFeature recomputes a feature's daily series over the last daysBack
// days. Returns the number of buckets written.
func (s *Service) ComputeFeature(ctx context.Context, featureID string, daysBack int) (int, error) {
	return s.analytics.ComputeFeature(ctx, featureID, daysBack)
}

// FeatureValues returns a feature's series from fromTs on.
func (s *Service) FeatureValues(ctx context.Context, featureID string, fromTs int64) ([]*store.FeatureValue, error) {
	return s.store.ListFeatureValues(ctx, featureID, fromTs)
}

// --- stats ---

// Stats returns row counts for the engine's tables.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	return s.store.GetStats(ctx)
}

// cleanEntities drops blank entity names and clamps confidences to [0, 1].
func cleanEntities(entities []store.Entity) []store.Entity {
	out := entities[:0]
	for _, e := range entities {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			continue
		}
		if e.Confidence < 0 {
			e.Confidence = 0
		}
		if e.Confidence > 1 {
			e.Confidence = 1
		}
		out = append(out, e)
	}
	return out
}
