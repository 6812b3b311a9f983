// CLAUDE:SUMMARY Event Clusterer — merges documents into events by date|entity cluster key over a lookback window.
// Package cluster merges documents into events.
//
// Each document maps to a cluster key derived from its UTC publication day
// and its dominant (highest-confidence) entity. The first document of a key
// creates an event; every later document sharing the key merges into it.
// Rebuild is idempotent: re-running it over an unchanged window creates no
// new events and no duplicate evidence.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/sentinelle/idgen"
	"github.com/hazyhaar/sentinelle/internal/store"
)

// MiscEntity is the dominant entity assigned to documents without any
// extracted entities.
const MiscEntity = "misc"

// Clusterer recomputes events over a bounded lookback window.
type Clusterer struct {
	store  *store.Store
	newID  idgen.Generator
	logger *slog.Logger
}

// New creates a Clusterer.
func New(s *store.Store, logger *slog.Logger) *Clusterer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clusterer{
		store:  s,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: logger,
	}
}

// DominantEntity returns the highest-confidence entity of a document, or
// MiscEntity when the document has none.
func DominantEntity(d *store.Document) string {
	best := ""
	bestConf := -1.0
	for _, e := range d.Entities {
		if e.Name == "" {
			continue
		}
		if e.Confidence > bestConf {
			best = e.Name
			bestConf = e.Confidence
		}
	}
	if best == "" {
		return MiscEntity
	}
	return best
}

// ClusterKey derives the dedup key for a document: the UTC calendar day of
// publication joined with the dominant entity.
func ClusterKey(publishedAt int64, dominantEntity string) string {
	day := time.UnixMilli(publishedAt).UTC().Format("2006-01-02")
	return day + "|" + dominantEntity
}

// Rebuild processes every document published within the last daysBack days
// (clamped to 1..365), most recent first, upserting events and evidence.
// It returns the number of newly created events; merges do not count.
// Individual document failures are logged and skipped.
func (c *Clusterer) Rebuild(ctx context.Context, daysBack int) (int, error) {
	if daysBack < 1 {
		daysBack = 1
	}
	if daysBack > 365 {
		daysBack = 365
	}
	fromTs := time.Now().UnixMilli() - int64(daysBack)*86400_000

	docs, err := c.store.DocumentsSince(ctx, fromTs)
	if err != nil {
		return 0, fmt.Errorf("load documents: %w", err)
	}

	created := 0
	touched := make(map[string]bool)
	for _, d := range docs {
		isNew, eventID, err := c.upsert(ctx, d)
		if err != nil {
			c.logger.Warn("cluster upsert failed", "document", d.ID, "error", err)
			continue
		}
		if isNew {
			created++
		}
		touched[eventID] = true
	}

	for eventID := range touched {
		if err := c.recomputeNovelty(ctx, eventID); err != nil {
			c.logger.Warn("novelty recompute failed", "event", eventID, "error", err)
		}
	}

	c.logger.Info("cluster rebuild complete",
		"documents", len(docs), "created", created, "touched", len(touched))
	return created, nil
}

// upsert folds one document into its event. Returns whether a new event was
// created and the event's ID.
func (c *Clusterer) upsert(ctx context.Context, d *store.Document) (bool, string, error) {
	entity := DominantEntity(d)
	key := ClusterKey(d.PublishedAt, entity)
	sentiment := scoreSentiment(d.Title + " " + d.Body)

	ev, err := c.store.GetEventByClusterKey(ctx, key)
	if err != nil {
		return false, "", err
	}

	isNew := ev == nil
	if !isNew {
		// A document already folded into this event is skipped entirely, so
		// re-running the rebuild never inflates volume or re-averages
		// sentiment.
		linked, err := c.store.HasEvidence(ctx, ev.ID, d.ID)
		if err != nil {
			return false, "", err
		}
		if linked {
			return false, ev.ID, nil
		}
	}
	if isNew {
		ev = &store.Event{
			ID:             c.newID(),
			Title:          entity + ": " + truncate(d.Title, 80),
			Summary:        truncate(d.Title, 90) + " — " + truncate(d.Body, 280),
			StartTs:        d.PublishedAt,
			EndTs:          d.PublishedAt,
			VolumeScore:    1,
			SentimentScore: sentiment,
			ClusterKey:     key,
		}
		if err := c.store.InsertEvent(ctx, ev); err != nil {
			return false, "", err
		}
	} else {
		if d.PublishedAt < ev.StartTs {
			ev.StartTs = d.PublishedAt
		}
		if d.PublishedAt > ev.EndTs {
			ev.EndTs = d.PublishedAt
		}
		ev.VolumeScore++
		// Running update inherited from the original engine: later documents
		// dominate as volume grows. Pinned by tests; do not "fix" silently.
		ev.SentimentScore = (ev.SentimentScore + sentiment) / 2
		if err := c.store.MergeEvent(ctx, ev); err != nil {
			return false, "", err
		}
	}

	if err := c.store.InsertEvidence(ctx, &store.Evidence{
		EventID:    ev.ID,
		DocumentID: d.ID,
		Snippet:    truncate(d.Body, 200),
	}); err != nil {
		return isNew, ev.ID, err
	}
	return isNew, ev.ID, nil
}

// recomputeNovelty sets novelty = min(1, distinct entities across the
// event's evidence / 10).
func (c *Clusterer) recomputeNovelty(ctx context.Context, eventID string) error {
	docs, err := c.store.EvidenceDocuments(ctx, eventID)
	if err != nil {
		return err
	}
	distinct := make(map[string]bool)
	for _, d := range docs {
		for _, e := range d.Entities {
			if e.Name != "" {
				distinct[strings.ToLower(e.Name)] = true
			}
		}
	}
	novelty := float64(len(distinct)) / 10.0
	if novelty > 1 {
		novelty = 1
	}
	return c.store.UpdateNovelty(ctx, eventID, novelty)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
