// CLAUDE:SUMMARY Engine tests — level due checks, dispatch idempotency, manual levels, failure bookkeeping.
package escalate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/sentinelle/dbopen"
	"github.com/hazyhaar/sentinelle/internal/store"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return store.NewStore(db)
}

type sentCall struct {
	channel string
	target  string
}

// recorder is a Notifier that records calls and optionally fails.
type recorder struct {
	calls []sentCall
	err   error
}

func (r *recorder) Send(ctx context.Context, channel, target string, config map[string]any, payload []byte) error {
	r.calls = append(r.calls, sentCall{channel: channel, target: target})
	return r.err
}

func seedRuleWithPolicy(t *testing.T, s *store.Store, id, escalationJSON string) {
	t.Helper()
	err := s.InsertRule(context.Background(), &store.AlertRule{
		ID: id, Name: "rule " + id, Enabled: true, RuleJSON: `{}`,
		EscalationJSON: escalationJSON,
	})
	if err != nil {
		t.Fatalf("insert rule: %v", err)
	}
}

func seedAlert(t *testing.T, s *store.Store, id, ruleID string, firedAt int64, status string) {
	t.Helper()
	err := s.InsertAlert(context.Background(), &store.Alert{
		ID: id, RuleID: ruleID, FiredAt: firedAt, Status: status,
		PayloadJSON: `{"event":{"id":"evt-1"}}`,
	})
	if err != nil {
		t.Fatalf("insert alert: %v", err)
	}
}

const twoLevelPolicy = `{"levels":[
	{"delay_minutes":0,"channels":["email"],"email":"oncall@example.com"},
	{"delay_minutes":30,"channels":["sms","webhook"],"phone":"+15550100","webhook_url":"https://hooks.example.com/a"}
]}`

func TestParseConfig(t *testing.T) {
	// WHAT: Empty policy means no escalation, malformed JSON errors, and
	// Target maps each channel to its recipient field.
	cfg, err := ParseConfig("")
	if err != nil || len(cfg.Levels) != 0 {
		t.Fatalf("empty policy: %+v, %v", cfg, err)
	}
	if _, err := ParseConfig(`{"levels":`); err == nil {
		t.Error("want error for malformed policy")
	}

	cfg, err = ParseConfig(twoLevelPolicy)
	if err != nil || len(cfg.Levels) != 2 {
		t.Fatalf("policy: %+v, %v", cfg, err)
	}
	l2 := cfg.Levels[1]
	if l2.Target("SMS") != "+15550100" || l2.Target("webhook") != "https://hooks.example.com/a" {
		t.Errorf("targets: sms=%q webhook=%q", l2.Target("SMS"), l2.Target("webhook"))
	}
	if l2.Target("carrier_pigeon") != "" {
		t.Error("unknown channel should have no target")
	}
}

func TestCheckAlertDispatchesDueLevels(t *testing.T) {
	// WHAT: Only levels whose delay has elapsed dispatch; the attempt row
	// is recorded as sent with no error.
	// WHY: Premature level-2 pages defeat the point of staged escalation.
	s := openTestStore(t)
	n := &recorder{}
	base := time.Now()
	e := New(s, n, Options{}).WithClock(func() time.Time { return base })
	ctx := context.Background()

	seedRuleWithPolicy(t, s, "rule-1", twoLevelPolicy)
	seedAlert(t, s, "alr-1", "rule-1", base.UnixMilli(), store.StatusNew)

	if err := e.CheckAlert(ctx, "alr-1"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(n.calls) != 1 || n.calls[0].channel != "email" || n.calls[0].target != "oncall@example.com" {
		t.Fatalf("calls = %+v, want one email", n.calls)
	}
	rows, err := s.ListEscalations(ctx, "alr-1")
	if err != nil || len(rows) != 1 {
		t.Fatalf("escalations: %+v, %v", rows, err)
	}
	if !rows[0].Sent || rows[0].ErrorMessage != "" || rows[0].EscalationLevel != 1 {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestCheckAlertLevelBecomesDue(t *testing.T) {
	// WHAT: A level is due once the alert age reaches its delay; already
	// dispatched levels are not repeated on later checks.
	s := openTestStore(t)
	n := &recorder{}
	current := time.Now()
	e := New(s, n, Options{}).WithClock(func() time.Time { return current })
	ctx := context.Background()

	seedRuleWithPolicy(t, s, "rule-1", twoLevelPolicy)
	seedAlert(t, s, "alr-1", "rule-1", current.UnixMilli(), store.StatusNew)

	if err := e.CheckAlert(ctx, "alr-1"); err != nil {
		t.Fatalf("check 1: %v", err)
	}
	// Age exactly at the boundary counts as due.
	current = current.Add(30 * time.Minute)
	if err := e.CheckAlert(ctx, "alr-1"); err != nil {
		t.Fatalf("check 2: %v", err)
	}

	var channels []string
	for _, c := range n.calls {
		channels = append(channels, c.channel)
	}
	if got := strings.Join(channels, ","); got != "email,sms,webhook" {
		t.Fatalf("dispatch order = %s", got)
	}

	// A third check finds every level already attempted.
	if err := e.CheckAlert(ctx, "alr-1"); err != nil {
		t.Fatalf("check 3: %v", err)
	}
	if len(n.calls) != 3 {
		t.Errorf("re-check dispatched again: %d calls", len(n.calls))
	}
}

func TestCheckAlertSkipsNonNewAlerts(t *testing.T) {
	// WHAT: Acknowledged, snoozed and resolved alerts never escalate
	// automatically.
	// WHY: Acking an alert is the operator saying "stop paging me".
	s := openTestStore(t)
	n := &recorder{}
	e := New(s, n, Options{})
	ctx := context.Background()

	seedRuleWithPolicy(t, s, "rule-1", twoLevelPolicy)
	for _, status := range []string{store.StatusAck, store.StatusSnoozed, store.StatusResolved} {
		seedAlert(t, s, "alr-"+status, "rule-1", time.Now().UnixMilli(), status)
		if err := e.CheckAlert(ctx, "alr-"+status); err != nil {
			t.Fatalf("check %s: %v", status, err)
		}
	}
	if len(n.calls) != 0 {
		t.Errorf("dispatched for non-new alerts: %+v", n.calls)
	}
}

func TestCheckAlertSkipsManualLevels(t *testing.T) {
	// WHAT: A manual level never fires from the automatic path but can be
	// triggered by hand, and repeated manual triggers do not double-send.
	s := openTestStore(t)
	n := &recorder{}
	e := New(s, n, Options{})
	ctx := context.Background()

	seedRuleWithPolicy(t, s, "rule-1",
		`{"levels":[{"delay_minutes":0,"channels":["webhook"],"webhook_url":"https://hooks.example.com/big-red-button","manual":true}]}`)
	seedAlert(t, s, "alr-1", "rule-1", time.Now().UnixMilli(), store.StatusNew)

	if err := e.CheckAlert(ctx, "alr-1"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(n.calls) != 0 {
		t.Fatalf("manual level fired automatically: %+v", n.calls)
	}

	if err := e.TriggerManualLevel(ctx, "alr-1", 1); err != nil {
		t.Fatalf("manual trigger: %v", err)
	}
	if err := e.TriggerManualLevel(ctx, "alr-1", 1); err != nil {
		t.Fatalf("repeat manual trigger: %v", err)
	}
	if len(n.calls) != 1 {
		t.Errorf("manual trigger sent %d times, want 1", len(n.calls))
	}
}

func TestTriggerManualLevelValidation(t *testing.T) {
	// WHAT: Manual triggers reject unknown alerts, resolved alerts and
	// levels outside the rule's policy.
	s := openTestStore(t)
	e := New(s, &recorder{}, Options{})
	ctx := context.Background()

	seedRuleWithPolicy(t, s, "rule-1", twoLevelPolicy)
	seedAlert(t, s, "alr-open", "rule-1", time.Now().UnixMilli(), store.StatusNew)
	seedAlert(t, s, "alr-done", "rule-1", time.Now().UnixMilli(), store.StatusResolved)

	if err := e.TriggerManualLevel(ctx, "nope", 1); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("unknown alert: %v, want ErrAlertNotFound", err)
	}
	if err := e.TriggerManualLevel(ctx, "alr-done", 1); err == nil {
		t.Error("resolved alert should not escalate")
	}
	if err := e.TriggerManualLevel(ctx, "alr-open", 3); !errors.Is(err, ErrLevelOutOfRange) {
		t.Errorf("level 3: %v, want ErrLevelOutOfRange", err)
	}
	if err := e.TriggerManualLevel(ctx, "alr-open", 0); !errors.Is(err, ErrLevelOutOfRange) {
		t.Errorf("level 0: %v, want ErrLevelOutOfRange", err)
	}
}

func TestDispatchFailureIsRecordedNotRaised(t *testing.T) {
	// WHAT: A failing notifier marks the attempt with its error message;
	// the check itself succeeds and the level is not retried.
	// WHY: Escalation bookkeeping is the audit trail for missed pages.
	s := openTestStore(t)
	n := &recorder{err: errors.New("smtp: connection refused")}
	e := New(s, n, Options{})
	ctx := context.Background()

	seedRuleWithPolicy(t, s, "rule-1", twoLevelPolicy)
	seedAlert(t, s, "alr-1", "rule-1", time.Now().UnixMilli(), store.StatusNew)

	if err := e.CheckAlert(ctx, "alr-1"); err != nil {
		t.Fatalf("check: %v", err)
	}
	rows, err := s.ListEscalations(ctx, "alr-1")
	if err != nil || len(rows) != 1 {
		t.Fatalf("escalations: %+v, %v", rows, err)
	}
	if !strings.Contains(rows[0].ErrorMessage, "connection refused") {
		t.Errorf("error message = %q", rows[0].ErrorMessage)
	}

	// The attempt row exists, so the automatic path does not retry.
	if err := e.CheckAlert(ctx, "alr-1"); err != nil {
		t.Fatalf("re-check: %v", err)
	}
	if len(n.calls) != 1 {
		t.Errorf("failed dispatch retried: %d calls", len(n.calls))
	}
}

func TestEnqueuePendingCountsNewAlerts(t *testing.T) {
	// WHAT: The periodic scanner enqueues one check per alert still in
	// "new" status; re-enqueueing while queued is a no-op.
	s := openTestStore(t)
	e := New(s, &recorder{}, Options{})
	ctx := context.Background()
	if err := e.Init(ctx); err != nil {
		t.Fatalf("init queue: %v", err)
	}

	seedRuleWithPolicy(t, s, "rule-1", twoLevelPolicy)
	seedAlert(t, s, "alr-1", "rule-1", time.Now().UnixMilli(), store.StatusNew)
	seedAlert(t, s, "alr-2", "rule-1", time.Now().UnixMilli(), store.StatusNew)
	seedAlert(t, s, "alr-3", "rule-1", time.Now().UnixMilli(), store.StatusAck)

	n, err := e.EnqueuePending(ctx)
	if err != nil || n != 2 {
		t.Fatalf("enqueue: %d, %v", n, err)
	}
	n, err = e.EnqueuePending(ctx)
	if err != nil || n != 2 {
		t.Fatalf("re-enqueue: %d, %v", n, err)
	}
}
