package search

import (
	"context"
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

func seedCorpus(t *testing.T, s *store.Store, base int64) {
	t.Helper()
	ctx := context.Background()
	docs := []*store.Document{
		{ID: "doc-old", Title: "Acme quarterly earnings", Body: "Revenue beat expectations.", PublishedAt: base - 10_000},
		{ID: "doc-new", Title: "Acme factory recall", Body: "Defective widgets recalled.", PublishedAt: base},
	}
	for _, d := range docs {
		if err := s.InsertDocument(ctx, d); err != nil {
			t.Fatalf("insert doc: %v", err)
		}
	}
	ev := &store.Event{
		ID: "evt-1", Title: "Acme recall widens", Summary: "Recall now covers three product lines.",
		StartTs: base, EndTs: base, ClusterKey: "2026-01-01|acme",
	}
	if err := s.InsertEvent(ctx, ev); err != nil {
		t.Fatalf("insert event: %v", err)
	}
}

func TestRebuildIndexesDocumentsAndEvents(t *testing.T) {
	// WHAT: A full rebuild indexes every document and every event, and a
	// second rebuild replaces rather than appends.
	// WHY: The index has no triggers; rebuild-from-scratch is the only
	// consistency mechanism it has.
	s := openTestStore(t)
	ix := New(s, nil)
	ctx := context.Background()
	base := time.Now().UnixMilli()
	seedCorpus(t, s, base)

	n, err := ix.Rebuild(ctx, nil)
	if err != nil || n != 3 {
		t.Fatalf("rebuild: indexed %d, err %v", n, err)
	}
	n, err = ix.Rebuild(ctx, nil)
	if err != nil || n != 3 {
		t.Fatalf("second rebuild: indexed %d, err %v", n, err)
	}

	var rows int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM search_index`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 3 {
		t.Errorf("index rows = %d, want 3", rows)
	}
}

func TestRebuildFromTsBoundsDocumentsOnly(t *testing.T) {
	// WHAT: A from-timestamp excludes older documents but events are
	// always reindexed in full.
	s := openTestStore(t)
	ix := New(s, nil)
	ctx := context.Background()
	base := time.Now().UnixMilli()
	seedCorpus(t, s, base)

	from := base - 1000
	n, err := ix.Rebuild(ctx, &from)
	if err != nil || n != 2 {
		t.Fatalf("bounded rebuild: indexed %d, err %v", n, err)
	}

	hits, err := ix.Search(ctx, "earnings", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("old document still indexed: %+v", hits)
	}
	hits, err = ix.Search(ctx, "recall", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("recall hits = %d, want document and event", len(hits))
	}
}

func TestSearchRankedHits(t *testing.T) {
	// WHAT: Search returns typed hits with snippets; an unmatched query
	// returns no rows without error.
	s := openTestStore(t)
	ix := New(s, nil)
	ctx := context.Background()
	seedCorpus(t, s, time.Now().UnixMilli())

	if _, err := ix.Rebuild(ctx, nil); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	hits, err := ix.Search(ctx, "widgets", 10)
	if err != nil || len(hits) != 1 {
		t.Fatalf("search: %d hits, err %v", len(hits), err)
	}
	h := hits[0]
	if h.DocType != "document" || h.DocID != "doc-new" || h.Snippet == "" {
		t.Errorf("hit = %+v", h)
	}

	hits, err = ix.Search(ctx, "cryptocurrency", 10)
	if err != nil {
		t.Fatalf("search miss: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("unexpected hits: %+v", hits)
	}
}
