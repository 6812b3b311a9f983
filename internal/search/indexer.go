// Package search maintains the rebuildable full-text index over documents
// and events.
//
// The index has no triggers: every rebuild drops all rows and reinserts, so
// the index can always be reconstructed from the base tables. Documents may
// be bounded by a from timestamp; events are always reindexed in full.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/sentinelle/internal/store"
)

// Indexer rebuilds and queries the search index.
type Indexer struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates an Indexer.
func New(s *store.Store, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: s, logger: logger}
}

// Rebuild drops the index and reinserts documents and events. When fromTs is
// non-nil only documents published at or after it are indexed; events are
// always indexed in full. Returns the number of rows indexed. Individual row
// failures are logged and skipped.
func (ix *Indexer) Rebuild(ctx context.Context, fromTs *int64) (int, error) {
	if err := ix.store.ClearSearchIndex(ctx); err != nil {
		return 0, fmt.Errorf("clear search index: %w", err)
	}

	docFrom := int64(0)
	if fromTs != nil {
		docFrom = *fromTs
	}
	docs, err := ix.store.DocumentsSince(ctx, docFrom)
	if err != nil {
		return 0, fmt.Errorf("load documents: %w", err)
	}

	indexed := 0
	for _, d := range docs {
		if err := ix.store.IndexEntry(ctx, "document", d.ID, d.Title, d.Body, d.PublishedAt); err != nil {
			ix.logger.Warn("index document failed", "document", d.ID, "error", err)
			continue
		}
		indexed++
	}

	events, err := ix.store.AllEvents(ctx)
	if err != nil {
		return indexed, fmt.Errorf("load events: %w", err)
	}
	for _, e := range events {
		if err := ix.store.IndexEntry(ctx, "event", e.ID, e.Title, e.Summary, e.EndTs); err != nil {
			ix.logger.Warn("index event failed", "event", e.ID, "error", err)
			continue
		}
		indexed++
	}

	ix.logger.Info("search index rebuilt",
		"documents", len(docs), "events", len(events), "indexed", indexed)
	return indexed, nil
}

// Search runs a ranked query over the index.
func (ix *Indexer) Search(ctx context.Context, query string, limit int) ([]*store.SearchHit, error) {
	return ix.store.Search(ctx, query, limit)
}
