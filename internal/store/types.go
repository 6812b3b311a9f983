// CLAUDE:SUMMARY All store data types: Document, Event, Watchlist, AlertRule, Alert, escalation and feature rows.
package store

// Entity is one pre-extracted entity on a document.
type Entity struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Document is an ingested news item. Immutable once ingested.
type Document struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	URL         string   `json:"url"`
	Source      string   `json:"source"`
	PublishedAt int64    `json:"published_at"`
	Entities    []Entity `json:"entities"`
	CreatedAt   int64    `json:"created_at"`
}

// Event is a merged cluster of documents sharing a cluster key.
type Event struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Summary        string  `json:"summary"`
	StartTs        int64   `json:"start_ts"`
	EndTs          int64   `json:"end_ts"`
	EventType      string  `json:"event_type"`
	Confidence     float64 `json:"confidence"`
	Severity       float64 `json:"severity"`
	NoveltyScore   float64 `json:"novelty_score"`
	VolumeScore    float64 `json:"volume_score"`
	SentimentScore float64 `json:"sentiment_score"`
	ClusterKey     string  `json:"cluster_key"`
	CreatedAt      int64   `json:"created_at"`
	UpdatedAt      int64   `json:"updated_at"`
}

// Evidence links a document to the event it contributed to.
type Evidence struct {
	EventID    string  `json:"event_id"`
	DocumentID string  `json:"document_id"`
	Weight     float64 `json:"weight"`
	Snippet    string  `json:"snippet"`
}

// Watchlist is a named set of watch items.
type Watchlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// WatchlistItem is one entry of a watchlist.
type WatchlistItem struct {
	ID          string  `json:"id"`
	WatchlistID string  `json:"watchlist_id"`
	ItemType    string  `json:"item_type"` // "entity", "keyword", "domain", "source"
	Value       string  `json:"value"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
	CreatedAt   int64   `json:"created_at"`
}

// AlertRule is a stored rule expression plus escalation policy.
type AlertRule struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	WatchlistID    string `json:"watchlist_id,omitempty"`
	RuleJSON       string `json:"rule_json"`
	Schedule       string `json:"schedule,omitempty"`
	EscalationJSON string `json:"escalation_json,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// Alert statuses.
const (
	StatusNew      = "new"
	StatusAck      = "ack"
	StatusSnoozed  = "snoozed"
	StatusResolved = "resolved"
)

// Alert is a deduplicated rule match against one event.
type Alert struct {
	ID           string `json:"id"`
	RuleID       string `json:"rule_id"`
	FiredAt      int64  `json:"fired_at"`
	EventID      string `json:"event_id,omitempty"`
	PayloadJSON  string `json:"payload_json"`
	Status       string `json:"status"`
	SnoozedUntil *int64 `json:"snoozed_until,omitempty"`
	UpdatedAt    int64  `json:"updated_at"`
}

// AlertLabel is a user judgment on an alert: +1 helpful, -1 unhelpful.
type AlertLabel struct {
	AlertID   string `json:"alert_id"`
	Label     int    `json:"label"`
	Note      string `json:"note,omitempty"`
	LabeledAt int64  `json:"labeled_at"`
}

// AlertEscalation records one (alert, level, channel) dispatch attempt.
type AlertEscalation struct {
	ID              string `json:"id"`
	AlertID         string `json:"alert_id"`
	EscalatedAt     int64  `json:"escalated_at"`
	EscalationLevel int    `json:"escalation_level"` // 1-based
	Channel         string `json:"channel"`
	Sent            bool   `json:"sent"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// FeatureDefinition names a scalar time series expression.
type FeatureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Expression  string `json:"expression"` // "alerts_count", "events_count", "avg_sentiment"
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// FeatureValue is one computed bucket of a feature time series.
type FeatureValue struct {
	FeatureID    string  `json:"feature_id"`
	Ts           int64   `json:"ts"` // bucket end
	SubjectType  string  `json:"subject_type"`
	SubjectValue string  `json:"subject_value"`
	Value        float64 `json:"value"`
}

// SearchHit is one ranked full-text search result.
type SearchHit struct {
	DocType string  `json:"doc_type"` // "document" or "event"
	DocID   string  `json:"doc_id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Ts      int64   `json:"ts"`
	Rank    float64 `json:"rank"`
}

// Stats holds aggregate row counts for the engine's tables.
type Stats struct {
	Documents   int `json:"documents"`
	Events      int `json:"events"`
	Evidence    int `json:"evidence"`
	Rules       int `json:"rules"`
	Alerts      int `json:"alerts"`
	Escalations int `json:"escalations"`
}
