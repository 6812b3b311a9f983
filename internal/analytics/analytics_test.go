// CLAUDE:SUMMARY Analytics tests — backtest aggregation, co-mention graph caps, feature bucket semantics.
package analytics

import (
	"context"
	"fmt"
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

func seedAlert(t *testing.T, s *store.Store, id, ruleID string, firedAt int64, status string, label int) {
	t.Helper()
	ctx := context.Background()
	err := s.InsertAlert(ctx, &store.Alert{ID: id, RuleID: ruleID, FiredAt: firedAt, Status: status})
	if err != nil {
		t.Fatalf("insert alert %s: %v", id, err)
	}
	if label != 0 {
		if err := s.SetLabel(ctx, &store.AlertLabel{AlertID: id, Label: label}); err != nil {
			t.Fatalf("label alert %s: %v", id, err)
		}
	}
}

func TestBacktestAggregation(t *testing.T) {
	// WHAT: The report counts alerts in the window by status, by label and
	// per rule, and the totals stay consistent with the breakdowns.
	// WHY: Operators tune rules off these numbers; a double-counted label
	// would bias the tuning.
	s := openTestStore(t)
	a := New(s, nil)
	ctx := context.Background()

	for _, id := range []string{"rule-a", "rule-b"} {
		err := s.InsertRule(ctx, &store.AlertRule{ID: id, Name: id, Enabled: true, RuleJSON: `{}`})
		if err != nil {
			t.Fatalf("insert rule: %v", err)
		}
	}

	base := time.Now().UnixMilli()
	seedAlert(t, s, "alr-1", "rule-a", base, store.StatusNew, 0)
	seedAlert(t, s, "alr-2", "rule-a", base+1, store.StatusAck, 1)
	seedAlert(t, s, "alr-3", "rule-a", base+2, store.StatusResolved, 1)
	seedAlert(t, s, "alr-4", "rule-b", base+3, store.StatusSnoozed, -1)
	seedAlert(t, s, "alr-5", "rule-b", base+4, store.StatusResolved, 0)
	// Outside the window on both sides.
	seedAlert(t, s, "alr-old", "rule-a", base-1000, store.StatusNew, 1)
	seedAlert(t, s, "alr-future", "rule-a", base+1000, store.StatusNew, 0)

	r, err := a.Backtest(ctx, base, base+10)
	if err != nil {
		t.Fatalf("backtest: %v", err)
	}
	if r.TotalAlerts != 5 {
		t.Errorf("total = %d, want 5", r.TotalAlerts)
	}
	if r.AckedAlerts != 1 || r.SnoozedAlerts != 1 || r.ResolvedAlerts != 2 {
		t.Errorf("status counts = ack %d snoozed %d resolved %d", r.AckedAlerts, r.SnoozedAlerts, r.ResolvedAlerts)
	}
	if r.HelpfulAlerts != 2 || r.UnhelpfulAlerts != 1 {
		t.Errorf("labels = helpful %d unhelpful %d", r.HelpfulAlerts, r.UnhelpfulAlerts)
	}
	if r.ByRule["rule-a"] != 3 || r.ByRule["rule-b"] != 2 {
		t.Errorf("by_rule = %v", r.ByRule)
	}
	if r.ByRuleHelpful["rule-a"] != 2 || r.ByRuleUnhelpful["rule-b"] != 1 {
		t.Errorf("by_rule labels = %v / %v", r.ByRuleHelpful, r.ByRuleUnhelpful)
	}

	sum := 0
	for _, n := range r.ByRule {
		sum += n
	}
	if sum != r.TotalAlerts {
		t.Errorf("by_rule sum %d != total %d", sum, r.TotalAlerts)
	}
}

func TestBacktestEmptyWindow(t *testing.T) {
	// WHAT: A window with no alerts yields a zeroed report with non-nil
	// maps, not an error.
	s := openTestStore(t)
	a := New(s, nil)

	r, err := a.Backtest(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("backtest: %v", err)
	}
	if r.TotalAlerts != 0 || r.ByRule == nil || len(r.ByRule) != 0 {
		t.Errorf("report = %+v", r)
	}
}

func seedDoc(t *testing.T, s *store.Store, id string, publishedAt int64, names ...string) {
	t.Helper()
	entities := make([]store.Entity, 0, len(names))
	for _, n := range names {
		entities = append(entities, store.Entity{Name: n, Confidence: 0.8})
	}
	err := s.InsertDocument(context.Background(), &store.Document{
		ID: id, Title: "doc " + id, PublishedAt: publishedAt, Entities: entities,
	})
	if err != nil {
		t.Fatalf("insert doc %s: %v", id, err)
	}
}

func TestGraphCoMentions(t *testing.T) {
	// WHAT: Nodes count mentioning documents once per document regardless
	// of casing or repeats; edge weight is the co-mention document count.
	s := openTestStore(t)
	a := New(s, nil)
	now := time.Now().UnixMilli()

	seedDoc(t, s, "d1", now, "Acme", "WidgetCo")
	seedDoc(t, s, "d2", now, "ACME", "WidgetCo", "acme") // acme counted once
	seedDoc(t, s, "d3", now, "Acme")

	g, err := a.Graph(context.Background(), 30, 0, 0)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %+v", g.Nodes)
	}
	// Sorted by count desc: acme (3 docs) then widgetco (2 docs).
	if g.Nodes[0].ID != "acme" || g.Nodes[0].Count != 3 || g.Nodes[0].Label != "Acme" {
		t.Errorf("node 0 = %+v", g.Nodes[0])
	}
	if g.Nodes[1].ID != "widgetco" || g.Nodes[1].Count != 2 {
		t.Errorf("node 1 = %+v", g.Nodes[1])
	}
	if len(g.Edges) != 1 || g.Edges[0].Weight != 2 {
		t.Fatalf("edges = %+v", g.Edges)
	}
	if g.Edges[0].Source != "acme" || g.Edges[0].Target != "widgetco" {
		t.Errorf("edge = %+v", g.Edges[0])
	}
}

func TestGraphCapsNodesAndEdges(t *testing.T) {
	// WHAT: Node and edge limits hold, and edges touching an unselected
	// node are dropped rather than dangling.
	s := openTestStore(t)
	a := New(s, nil)
	now := time.Now().UnixMilli()

	// ent-0 and ent-1 co-mention in many docs; ent-2..ent-5 appear once.
	for i := 0; i < 5; i++ {
		seedDoc(t, s, fmt.Sprintf("hot-%d", i), now, "ent-0", "ent-1")
	}
	seedDoc(t, s, "cold", now, "ent-2", "ent-3", "ent-4", "ent-5")

	g, err := a.Graph(context.Background(), 30, 2, 10)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if len(g.Nodes) != 2 || g.Nodes[0].ID != "ent-0" || g.Nodes[1].ID != "ent-1" {
		t.Fatalf("nodes = %+v", g.Nodes)
	}
	// Every cold-doc edge touches an unselected node and is dropped.
	if len(g.Edges) != 1 || g.Edges[0].Weight != 5 {
		t.Fatalf("edges = %+v", g.Edges)
	}

	g, err = a.Graph(context.Background(), 30, 10, 1)
	if err != nil {
		t.Fatalf("graph with edge cap: %v", err)
	}
	if len(g.Edges) != 1 || g.Edges[0].Weight != 5 {
		t.Errorf("edge cap kept the wrong edge: %+v", g.Edges)
	}
}

func TestComputeFeatureBuckets(t *testing.T) {
	// WHAT: ComputeFeature writes one value per day including zero-filled
	// empty buckets, and recomputing replaces the window instead of
	// stacking duplicates.
	// WHY: Downstream charting assumes a gap-free series.
	s := openTestStore(t)
	a := New(s, nil)
	ctx := context.Background()

	err := s.InsertFeatureDefinition(ctx, &store.FeatureDefinition{
		ID: "feat-1", Name: "daily alerts", Expression: "alerts_count",
	})
	if err != nil {
		t.Fatalf("insert feature: %v", err)
	}
	err = s.InsertRule(ctx, &store.AlertRule{ID: "rule-1", Name: "r", Enabled: true, RuleJSON: `{}`})
	if err != nil {
		t.Fatalf("insert rule: %v", err)
	}
	// Two alerts today, none yesterday.
	now := time.Now().UnixMilli()
	seedAlert(t, s, "alr-1", "rule-1", now, store.StatusNew, 0)
	seedAlert(t, s, "alr-2", "rule-1", now, store.StatusNew, 0)

	written, err := a.ComputeFeature(ctx, "feat-1", 3)
	if err != nil || written != 3 {
		t.Fatalf("compute: wrote %d, err %v", written, err)
	}
	values, err := s.ListFeatureValues(ctx, "feat-1", 0)
	if err != nil || len(values) != 3 {
		t.Fatalf("values: %d, err %v", len(values), err)
	}
	if values[0].Value != 0 || values[1].Value != 0 {
		t.Errorf("empty buckets = %v, %v, want 0", values[0].Value, values[1].Value)
	}
	if values[2].Value != 2 {
		t.Errorf("today's bucket = %v, want 2", values[2].Value)
	}

	// Recompute: same window, same three rows.
	if _, err := a.ComputeFeature(ctx, "feat-1", 3); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	values, _ = s.ListFeatureValues(ctx, "feat-1", 0)
	if len(values) != 3 {
		t.Errorf("recompute left %d rows, want 3", len(values))
	}
}

func TestComputeFeatureValidation(t *testing.T) {
	// WHAT: Unknown features and unknown expressions error out instead of
	// silently writing nothing.
	s := openTestStore(t)
	a := New(s, nil)
	ctx := context.Background()

	if _, err := a.ComputeFeature(ctx, "nope", 7); err == nil {
		t.Error("want error for unknown feature")
	}

	err := s.InsertFeatureDefinition(ctx, &store.FeatureDefinition{
		ID: "feat-bad", Name: "bad", Expression: "median_absolute_deviation",
	})
	if err != nil {
		t.Fatalf("insert feature: %v", err)
	}
	if _, err := a.ComputeFeature(ctx, "feat-bad", 7); err == nil {
		t.Error("want error for unknown expression")
	}
}
