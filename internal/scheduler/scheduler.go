// CLAUDE:SUMMARY Scheduler — periodic rule evaluation (cron-aware), escalation sweeps, snooze expiry.
// Package scheduler drives the periodic work of the engine: rule evaluation
// ticks, escalation check sweeps and snooze expiry. Rules with a cron
// schedule run on their own cadence; rules without one run on every tick.
package scheduler

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hazyhaar/sentinelle/internal/alerting"
	"github.com/hazyhaar/sentinelle/internal/escalate"
	"github.com/hazyhaar/sentinelle/internal/store"
	"github.com/hazyhaar/sentinelle/watch"
)

// Config configures the scheduler.
type Config struct {
	// EvalInterval is how often unscheduled rules are evaluated and due cron
	// schedules are checked. Default: 1 minute.
	EvalInterval time.Duration
	// EscalationInterval is how often pending alerts are re-enqueued for
	// escalation checks. Default: 30 seconds.
	EscalationInterval time.Duration
	// SweepInterval is how often expired snoozes are woken. Default: 1 minute.
	SweepInterval time.Duration
	// DaysBack is the event window passed to evaluation. Default: 7.
	DaysBack int
	// MaxEvents caps the events considered per evaluation run. Default: 200.
	MaxEvents int
	// DisableRuleWatch turns off the rule-change watcher. By default the
	// scheduler watches the alert_rules table and triggers an immediate
	// evaluation when it changes.
	DisableRuleWatch bool
	// WatchInterval is the rule watcher polling frequency. Default: 2s.
	WatchInterval time.Duration
}

func (c *Config) defaults() {
	if c.EvalInterval <= 0 {
		c.EvalInterval = time.Minute
	}
	if c.EscalationInterval <= 0 {
		c.EscalationInterval = 30 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.DaysBack <= 0 {
		c.DaysBack = 7
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = 200
	}
	if c.WatchInterval <= 0 {
		c.WatchInterval = 2 * time.Second
	}
}

// Scheduler runs the engine's periodic loops.
type Scheduler struct {
	store     *store.Store
	manager   *alerting.Manager
	escalator *escalate.Engine
	config    Config
	logger    *slog.Logger

	mu      sync.Mutex
	lastRun map[string]time.Time // rule ID -> last scheduled evaluation
}

// New creates a Scheduler.
func New(s *store.Store, m *alerting.Manager, esc *escalate.Engine, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     s,
		manager:   m,
		escalator: esc,
		config:    cfg,
		logger:    logger,
		lastRun:   make(map[string]time.Time),
	}
}

// Run drives all periodic loops until ctx is cancelled. The rule watcher, when
// enabled, runs in its own goroutine and triggers an out-of-band evaluation
// whenever a rule row changes.
func (s *Scheduler) Run(ctx context.Context) {
	evalTicker := time.NewTicker(s.config.EvalInterval)
	defer evalTicker.Stop()
	escTicker := time.NewTicker(s.config.EscalationInterval)
	defer escTicker.Stop()
	sweepTicker := time.NewTicker(s.config.SweepInterval)
	defer sweepTicker.Stop()

	if !s.config.DisableRuleWatch {
		w := watch.New(s.store.DB, watch.Options{
			Interval: s.config.WatchInterval,
			Debounce: s.config.WatchInterval,
			Detector: watch.TableMaxUpdatedAt("alert_rules"),
			Logger:   s.logger,
		})
		go w.OnChange(ctx, func() error {
			s.logger.Info("rule change detected, evaluating")
			s.EvaluateDue(ctx)
			return nil
		})
	}

	// Run once immediately on start.
	s.EvaluateDue(ctx)
	s.sweepEscalations(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-evalTicker.C:
			s.EvaluateDue(ctx)
		case <-escTicker.C:
			s.sweepEscalations(ctx)
		case <-sweepTicker.C:
			s.expireSnoozes(ctx)
		}
	}
}

// EvaluateDue evaluates every enabled rule that is due now: rules without a
// schedule always, rules with one only when their cron spec or interval has
// elapsed since their last run.
func (s *Scheduler) EvaluateDue(ctx context.Context) {
	ruleRows, err := s.store.ListRules(ctx, true)
	if err != nil {
		s.logger.Error("scheduler: list rules", "error", err)
		return
	}

	now := time.Now().UTC()
	var due []*store.AlertRule
	s.mu.Lock()
	for _, r := range ruleRows {
		if !s.ruleDue(r, now) {
			continue
		}
		s.lastRun[r.ID] = now
		due = append(due, r)
	}
	s.mu.Unlock()
	if len(due) == 0 {
		return
	}

	created, err := s.manager.EvaluateRules(ctx, due, s.config.DaysBack, s.config.MaxEvents)
	if err != nil {
		s.logger.Error("scheduler: evaluate rules", "rules", len(due), "error", err)
		return
	}
	if len(created) > 0 {
		s.logger.Debug("scheduler: alerts created", "count", len(created))
	}
}

// ruleDue reports whether a rule should run at now. Schedule accepts either a
// Go duration ("30m") or a standard 5-field cron expression; an unparseable
// schedule is logged and treated as not due. Caller holds s.mu.
func (s *Scheduler) ruleDue(r *store.AlertRule, now time.Time) bool {
	schedule := strings.TrimSpace(r.Schedule)
	if schedule == "" {
		return true
	}
	last, ok := s.lastRun[r.ID]
	if !ok {
		return true
	}
	if interval, err := time.ParseDuration(schedule); err == nil {
		return interval > 0 && !last.Add(interval).After(now)
	}
	spec, err := cron.ParseStandard(schedule)
	if err != nil {
		s.logger.Warn("scheduler: invalid rule schedule", "rule", r.ID, "schedule", schedule, "error", err)
		return false
	}
	return !spec.Next(last).After(now)
}

func (s *Scheduler) sweepEscalations(ctx context.Context) {
	n, err := s.escalator.EnqueuePending(ctx)
	if err != nil {
		s.logger.Error("scheduler: enqueue escalation checks", "error", err)
		return
	}
	if n > 0 {
		s.logger.Debug("scheduler: escalation checks enqueued", "count", n)
	}
}

func (s *Scheduler) expireSnoozes(ctx context.Context) {
	n, err := s.manager.ExpireSnoozes(ctx)
	if err != nil {
		s.logger.Error("scheduler: expire snoozes", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("scheduler: snoozes expired", "count", n)
	}
}
