// CLAUDE:SUMMARY Manager tests — evaluation wiring, dedup window, lifecycle transitions, snooze clamping, labels.
package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/sentinelle/dbopen"
	"github.com/hazyhaar/sentinelle/internal/rules"
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

func seedRule(t *testing.T, s *store.Store, id, ruleJSON string) *store.AlertRule {
	t.Helper()
	r := &store.AlertRule{ID: id, Name: "rule " + id, Enabled: true, RuleJSON: ruleJSON}
	if err := s.InsertRule(context.Background(), r); err != nil {
		t.Fatalf("insert rule: %v", err)
	}
	return r
}

// seedEvent inserts an event plus one evidence document so entity and
// source predicates have data to look at.
func seedEvent(t *testing.T, s *store.Store, id string, startTs int64) *store.Event {
	t.Helper()
	ctx := context.Background()
	ev := &store.Event{
		ID: id, Title: "Acme fraud probe widens", Summary: "Regulators expand the probe.",
		StartTs: startTs, EndTs: startTs, EventType: "news",
		SentimentScore: -0.4, VolumeScore: 3, NoveltyScore: 0.2,
		ClusterKey: "2026-01-01|" + id,
	}
	if err := s.InsertEvent(ctx, ev); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	doc := &store.Document{
		ID: "doc-" + id, Title: "Acme probe", Source: "reuters", PublishedAt: startTs,
		Entities: []store.Entity{{Name: "Acme", Confidence: 0.9}},
	}
	if err := s.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("insert document: %v", err)
	}
	if err := s.InsertEvidence(ctx, &store.Evidence{EventID: id, DocumentID: doc.ID, Weight: 1}); err != nil {
		t.Fatalf("insert evidence: %v", err)
	}
	return ev
}

func TestEvaluateCreatesAlerts(t *testing.T) {
	// WHAT: A matching enabled rule produces exactly one new alert with a
	// payload snapshot; a non-matching rule produces none.
	// WHY: Evaluation is the core loop; the payload must let an operator
	// understand the alert without re-querying the event.
	s := openTestStore(t)
	m := New(s, rules.NewEngine())
	ctx := context.Background()

	seedRule(t, s, "rule-hit", `{"all":[{"type":"mentions_entity","entity":"acme"}]}`)
	seedRule(t, s, "rule-miss", `{"all":[{"type":"contains_keyword","keyword":"merger"}]}`)
	seedEvent(t, s, "evt-1", time.Now().UnixMilli())

	created, err := m.Evaluate(ctx, 7, 100)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d alerts, want 1", len(created))
	}
	a := created[0]
	if a.RuleID != "rule-hit" || a.EventID != "evt-1" || a.Status != store.StatusNew {
		t.Errorf("alert = %+v", a)
	}
	if !strings.Contains(a.PayloadJSON, `"rule-hit"`) || !strings.Contains(a.PayloadJSON, `"evt-1"`) {
		t.Errorf("payload missing context: %s", a.PayloadJSON)
	}
}

func TestEvaluateSkipsDisabledAndUnparseable(t *testing.T) {
	// WHAT: Disabled rules and rules with malformed JSON are skipped while
	// the remaining rules still evaluate.
	// WHY: One broken rule must never take the whole evaluation pass down.
	s := openTestStore(t)
	m := New(s, rules.NewEngine())
	ctx := context.Background()

	disabled := seedRule(t, s, "rule-off", `{"all":[{"type":"mentions_entity","entity":"acme"}]}`)
	if err := s.SetRuleEnabled(ctx, disabled.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	seedRule(t, s, "rule-broken", `{"any":`)
	seedRule(t, s, "rule-ok", `{"all":[{"type":"mentions_entity","entity":"acme"}]}`)
	seedEvent(t, s, "evt-1", time.Now().UnixMilli())

	created, err := m.Evaluate(ctx, 7, 100)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(created) != 1 || created[0].RuleID != "rule-ok" {
		t.Fatalf("created = %+v, want one alert from rule-ok", created)
	}
}

func TestDedupWindowAndResolvedRefire(t *testing.T) {
	// WHAT: The same (rule, event) pair does not re-alert within 6h unless
	// the existing alert was resolved; after the window it re-alerts.
	// WHY: Dedup suppresses noise but must never mask a recurrence the
	// operator already closed out.
	s := openTestStore(t)
	current := time.Now()
	m := New(s, rules.NewEngine(), WithClock(func() time.Time { return current }))
	ctx := context.Background()

	seedRule(t, s, "rule-1", `{"all":[{"type":"mentions_entity","entity":"acme"}]}`)
	seedEvent(t, s, "evt-1", current.UnixMilli())

	first, err := m.Evaluate(ctx, 7, 100)
	if err != nil || len(first) != 1 {
		t.Fatalf("first evaluate: %v, created %d", err, len(first))
	}

	again, err := m.Evaluate(ctx, 7, 100)
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("dedup failed: created %d alerts", len(again))
	}

	// Resolving opens the pair for re-firing inside the window.
	if err := m.Resolve(ctx, first[0].ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	refired, err := m.Evaluate(ctx, 7, 100)
	if err != nil || len(refired) != 1 {
		t.Fatalf("refire after resolve: %v, created %d", err, len(refired))
	}

	// Past the window the pair alerts again even though the previous
	// alert is still open.
	current = current.Add(DedupWindow + time.Minute)
	late, err := m.Evaluate(ctx, 7, 100)
	if err != nil || len(late) != 1 {
		t.Fatalf("refire after window: %v, created %d", err, len(late))
	}
}

func TestLifecycleTransitions(t *testing.T) {
	// WHAT: new->ack->snoozed->resolved is allowed; ack from ack, any move
	// out of resolved, and unknown IDs are rejected.
	// WHY: The lifecycle is the operator contract; silent invalid
	// transitions would corrupt triage state.
	s := openTestStore(t)
	m := New(s, rules.NewEngine())
	ctx := context.Background()

	seedRule(t, s, "rule-1", `{}`)
	a := &store.Alert{ID: "alr-1", RuleID: "rule-1", FiredAt: time.Now().UnixMilli(), Status: store.StatusNew}
	if err := s.InsertAlert(ctx, a); err != nil {
		t.Fatalf("insert alert: %v", err)
	}

	if err := m.Acknowledge(ctx, "alr-1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := m.Acknowledge(ctx, "alr-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double ack: %v, want ErrInvalidTransition", err)
	}
	if err := m.Snooze(ctx, "alr-1", time.Hour); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if err := m.Resolve(ctx, "alr-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := m.Resolve(ctx, "alr-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("resolve resolved: %v, want ErrInvalidTransition", err)
	}
	if err := m.Acknowledge(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown alert: %v, want ErrNotFound", err)
	}
}

func TestSnoozeClampsDuration(t *testing.T) {
	// WHAT: Requested snooze durations are clamped to [1 minute, 7 days]
	// and the deadline is stored on the alert.
	// WHY: A zero or year-long snooze is almost always a client bug.
	s := openTestStore(t)
	base := time.Now()
	m := New(s, rules.NewEngine(), WithClock(func() time.Time { return base }))
	ctx := context.Background()

	seedRule(t, s, "rule-1", `{}`)
	for _, tc := range []struct {
		id        string
		requested time.Duration
		want      time.Duration
	}{
		{"alr-short", 5 * time.Second, SnoozeMin},
		{"alr-long", 90 * 24 * time.Hour, SnoozeMax},
		{"alr-mid", 2 * time.Hour, 2 * time.Hour},
	} {
		a := &store.Alert{ID: tc.id, RuleID: "rule-1", FiredAt: base.UnixMilli(), Status: store.StatusNew}
		if err := s.InsertAlert(ctx, a); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := m.Snooze(ctx, tc.id, tc.requested); err != nil {
			t.Fatalf("snooze %s: %v", tc.id, err)
		}
		got, err := s.GetAlert(ctx, tc.id)
		if err != nil || got == nil {
			t.Fatalf("get %s: %v", tc.id, err)
		}
		if got.Status != store.StatusSnoozed || got.SnoozedUntil == nil {
			t.Fatalf("%s not snoozed: %+v", tc.id, got)
		}
		if want := base.Add(tc.want).UnixMilli(); *got.SnoozedUntil != want {
			t.Errorf("%s snoozed_until = %d, want %d", tc.id, *got.SnoozedUntil, want)
		}
	}
}

func TestExpireSnoozesWakesAlerts(t *testing.T) {
	// WHAT: Once the snooze deadline passes, ExpireSnoozes moves the alert
	// back to new so escalation can pick it up again.
	s := openTestStore(t)
	current := time.Now()
	m := New(s, rules.NewEngine(), WithClock(func() time.Time { return current }))
	ctx := context.Background()

	seedRule(t, s, "rule-1", `{}`)
	a := &store.Alert{ID: "alr-1", RuleID: "rule-1", FiredAt: current.UnixMilli(), Status: store.StatusNew}
	if err := s.InsertAlert(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.Snooze(ctx, "alr-1", 2*time.Minute); err != nil {
		t.Fatalf("snooze: %v", err)
	}

	woken, err := m.ExpireSnoozes(ctx)
	if err != nil || woken != 0 {
		t.Fatalf("premature expire: woke %d, err %v", woken, err)
	}

	current = current.Add(3 * time.Minute)
	woken, err = m.ExpireSnoozes(ctx)
	if err != nil || woken != 1 {
		t.Fatalf("expire: woke %d, err %v", woken, err)
	}
	got, _ := s.GetAlert(ctx, "alr-1")
	if got.Status != store.StatusNew {
		t.Errorf("status after wake = %s, want new", got.Status)
	}
}

func TestSetLabel(t *testing.T) {
	// WHAT: Labels attach to any alert regardless of status; unknown alerts
	// are rejected with ErrNotFound.
	s := openTestStore(t)
	m := New(s, rules.NewEngine())
	ctx := context.Background()

	seedRule(t, s, "rule-1", `{}`)
	a := &store.Alert{ID: "alr-1", RuleID: "rule-1", FiredAt: time.Now().UnixMilli(), Status: store.StatusResolved}
	if err := s.InsertAlert(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := m.SetLabel(ctx, "alr-1", -1, "false positive"); err != nil {
		t.Fatalf("label: %v", err)
	}
	l, err := s.GetLabel(ctx, "alr-1")
	if err != nil || l == nil || l.Label != -1 || l.Note != "false positive" {
		t.Fatalf("label row = %+v, err %v", l, err)
	}
	if err := m.SetLabel(ctx, "nope", 1, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown alert: %v, want ErrNotFound", err)
	}
}

func TestEscalationTriggerFires(t *testing.T) {
	// WHAT: Every created alert invokes the escalation trigger; trigger
	// failure is swallowed and does not fail the evaluation.
	s := openTestStore(t)
	var triggered []string
	m := New(s, rules.NewEngine(), WithEscalationTrigger(func(ctx context.Context, alertID string) error {
		triggered = append(triggered, alertID)
		return errors.New("dispatch queue down")
	}))
	ctx := context.Background()

	seedRule(t, s, "rule-1", `{"all":[{"type":"mentions_entity","entity":"acme"}]}`)
	seedEvent(t, s, "evt-1", time.Now().UnixMilli())

	created, err := m.Evaluate(ctx, 7, 100)
	if err != nil || len(created) != 1 {
		t.Fatalf("evaluate: %v, created %d", err, len(created))
	}
	if len(triggered) != 1 || triggered[0] != created[0].ID {
		t.Errorf("trigger calls = %v", triggered)
	}
}
