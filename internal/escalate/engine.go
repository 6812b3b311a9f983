// CLAUDE:SUMMARY Escalation Engine — VTQ-driven checks, per-(alert,level,channel) claims, bounded dispatch.
// Package escalate walks an alert's configured escalation levels and
// dispatches to notification channels for alerts that remain unacknowledged.
//
// Escalation checks run asynchronously: alert creation and a periodic
// scanner enqueue alert IDs on a visibility-timeout queue; a bounded pool of
// workers consumes the queue. For every due level each (alert, level,
// channel) attempt is claimed with an atomic insert before dispatch, so
// concurrent checks cannot double-send.
package escalate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/sentinelle/idgen"
	"github.com/hazyhaar/sentinelle/internal/store"
	"github.com/hazyhaar/sentinelle/observability"
	"github.com/hazyhaar/sentinelle/vtq"
)

// ErrAlertNotFound is returned by manual triggers for unknown alerts.
var ErrAlertNotFound = errors.New("escalate: alert not found")

// ErrLevelOutOfRange is returned by manual triggers for levels the rule's
// policy does not define.
var ErrLevelOutOfRange = errors.New("escalate: escalation level out of range")

// Options configures the Engine.
type Options struct {
	// DispatchTimeout bounds a single channel dispatch so a hung notifier
	// cannot stall escalation processing. Default: 15s.
	DispatchTimeout time.Duration
	// Workers is the size of the check worker pool. Default: 4.
	Workers int
	// QueueVisibility is how long a claimed check stays invisible.
	// Default: 1 minute.
	QueueVisibility time.Duration
	// QueuePoll is the queue polling interval. Default: 2s.
	QueuePoll time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = 15 * time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueVisibility <= 0 {
		o.QueueVisibility = time.Minute
	}
	if o.QueuePoll <= 0 {
		o.QueuePoll = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Engine runs escalation checks.
type Engine struct {
	store    *store.Store
	notifier Notifier
	queue    *vtq.Q
	opts     Options
	newID    idgen.Generator
	events   *observability.EventLogger
	now      func() time.Time
}

// New creates an Engine and its backing queue. Call Start to launch the
// consumer.
func New(s *store.Store, notifier Notifier, opts Options) *Engine {
	opts.defaults()
	return &Engine{
		store:    s,
		notifier: notifier,
		queue: vtq.New(s.DB, vtq.Options{
			Queue:        "escalation_checks",
			Visibility:   opts.QueueVisibility,
			PollInterval: opts.QueuePoll,
			Workers:      opts.Workers,
			Logger:       opts.Logger,
		}),
		opts:  opts,
		newID: idgen.Prefixed("esc_", idgen.Default),
		now:   time.Now,
	}
}

// WithEventLogger enables business-event recording.
func (e *Engine) WithEventLogger(el *observability.EventLogger) *Engine {
	e.events = el
	return e
}

// WithClock overrides the wall clock (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Init creates the queue table.
func (e *Engine) Init(ctx context.Context) error {
	return e.queue.EnsureTable(ctx)
}

// Trigger enqueues an escalation check for an alert. Idempotent while a
// check for the same alert is already queued.
func (e *Engine) Trigger(ctx context.Context, alertID string) error {
	return e.queue.PublishOnce(ctx, alertID, nil)
}

// EnqueuePending enqueues a check for every alert still in "new" status.
// The scanner calls this periodically so levels whose delay elapses long
// after alert creation still fire.
func (e *Engine) EnqueuePending(ctx context.Context) (int, error) {
	alerts, err := e.store.ListAlerts(ctx, store.StatusNew, 1000)
	if err != nil {
		return 0, fmt.Errorf("list pending alerts: %w", err)
	}
	n := 0
	for _, a := range alerts {
		if err := e.queue.PublishOnce(ctx, a.ID, nil); err != nil {
			e.opts.Logger.Warn("enqueue escalation check failed", "alert", a.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// Start launches the queue consumer. Blocks until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.queue.Run(ctx, func(ctx context.Context, job *vtq.Job) error {
		return e.CheckAlert(ctx, job.ID)
	})
}

// CheckAlert walks the alert's escalation levels and dispatches every level
// that is due. A level is due when the alert is still "new", the level's
// delay has elapsed since fired_at, no attempt row exists for it yet, and
// it is not marked manual.
func (e *Engine) CheckAlert(ctx context.Context, alertID string) error {
	alert, err := e.store.GetAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("load alert: %w", err)
	}
	if alert == nil || alert.Status != store.StatusNew {
		return nil
	}

	rule, err := e.store.GetRule(ctx, alert.RuleID)
	if err != nil {
		return fmt.Errorf("load rule: %w", err)
	}
	if rule == nil {
		return nil
	}

	cfg, err := ParseConfig(rule.EscalationJSON)
	if err != nil {
		e.opts.Logger.Warn("unparseable escalation config", "rule", rule.ID, "error", err)
		return nil
	}

	age := e.now().UnixMilli() - alert.FiredAt
	for i, level := range cfg.Levels {
		levelNum := i + 1 // levels are 1-based
		if level.Manual {
			continue
		}
		if age < int64(level.DelayMinutes)*60_000 {
			continue
		}
		exists, err := e.store.HasEscalationLevel(ctx, alert.ID, levelNum)
		if err != nil {
			return fmt.Errorf("escalation idempotency check: %w", err)
		}
		if exists {
			continue
		}
		e.dispatchLevel(ctx, alert, levelNum, &level)
	}
	return nil
}

// TriggerManualLevel dispatches a single level on demand, regardless of its
// delay or manual flag. The per-channel claim still applies, so repeated
// triggers do not double-send. Resolved alerts cannot be escalated.
func (e *Engine) TriggerManualLevel(ctx context.Context, alertID string, levelNum int) error {
	alert, err := e.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert == nil {
		return ErrAlertNotFound
	}
	if alert.Status == store.StatusResolved {
		return fmt.Errorf("escalate: alert %s is resolved", alertID)
	}
	rule, err := e.store.GetRule(ctx, alert.RuleID)
	if err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("escalate: rule %s not found", alert.RuleID)
	}
	cfg, err := ParseConfig(rule.EscalationJSON)
	if err != nil {
		return err
	}
	if levelNum < 1 || levelNum > len(cfg.Levels) {
		return fmt.Errorf("%w: %d (rule has %d levels)", ErrLevelOutOfRange, levelNum, len(cfg.Levels))
	}
	e.dispatchLevel(ctx, alert, levelNum, &cfg.Levels[levelNum-1])
	return nil
}

// dispatchLevel claims and dispatches every channel of one level. Dispatch
// failures are recorded on the escalation row and never raised.
func (e *Engine) dispatchLevel(ctx context.Context, alert *store.Alert, levelNum int, level *Level) {
	for _, channel := range level.Channels {
		row := &store.AlertEscalation{
			ID:              e.newID(),
			AlertID:         alert.ID,
			EscalationLevel: levelNum,
			Channel:         channel,
		}
		claimed, err := e.store.ClaimEscalation(ctx, row)
		if err != nil {
			e.opts.Logger.Error("escalation claim failed",
				"alert", alert.ID, "level", levelNum, "channel", channel, "error", err)
			continue
		}
		if !claimed {
			// Another check already owns this (alert, level, channel).
			continue
		}

		dispatchCtx, cancel := context.WithTimeout(ctx, e.opts.DispatchTimeout)
		sendErr := e.notifier.Send(dispatchCtx, channel, level.Target(channel), level.Config, []byte(alert.PayloadJSON))
		cancel()

		errMsg := ""
		if sendErr != nil {
			errMsg = sendErr.Error()
			e.opts.Logger.Warn("escalation dispatch failed",
				"alert", alert.ID, "level", levelNum, "channel", channel, "error", sendErr)
		} else {
			e.opts.Logger.Info("escalation dispatched",
				"alert", alert.ID, "level", levelNum, "channel", channel)
		}

		// The attempt counts as made either way.
		if err := e.store.MarkEscalationSent(ctx, row.ID, errMsg); err != nil {
			e.opts.Logger.Error("escalation bookkeeping failed",
				"escalation", row.ID, "error", err)
		}

		if e.events != nil {
			e.events.LogEvent(ctx, observability.BusinessEvent{
				EventType:  "escalation_dispatched",
				EntityType: "alert",
				EntityID:   alert.ID,
				Action:     channel,
				Success:    sendErr == nil,
			})
		}
	}
}
