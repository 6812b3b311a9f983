// CLAUDE:SUMMARY Applies the complete sentinelle SQL schema including the FTS5 search index.
package store

import "database/sql"

// Schema is the complete sentinelle schema. All timestamps are milliseconds
// since epoch unless a column name says otherwise.
const Schema = `
-- Documents: ingested news items with pre-extracted entities.
-- Owned by the ingest collaborator; read-only to the engine.
CREATE TABLE IF NOT EXISTS documents (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL DEFAULT '',
    body          TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    source        TEXT NOT NULL DEFAULT '',
    published_at  INTEGER NOT NULL,
    entities_json TEXT NOT NULL DEFAULT '[]',
    created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_published ON documents(published_at DESC);

-- Events: merged clusters of documents sharing a date|entity cluster key.
CREATE TABLE IF NOT EXISTS events (
    id              TEXT PRIMARY KEY,
    title           TEXT NOT NULL DEFAULT '',
    summary         TEXT NOT NULL DEFAULT '',
    start_ts        INTEGER NOT NULL,
    end_ts          INTEGER NOT NULL,
    event_type      TEXT NOT NULL DEFAULT 'news',
    confidence      REAL NOT NULL DEFAULT 0.5,
    severity        REAL NOT NULL DEFAULT 0,
    novelty_score   REAL NOT NULL DEFAULT 0,
    volume_score    REAL NOT NULL DEFAULT 0,
    sentiment_score REAL NOT NULL DEFAULT 0,
    cluster_key     TEXT NOT NULL UNIQUE,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_end ON events(end_ts DESC);

-- Evidence: which documents contributed to an event. Insert-if-absent.
CREATE TABLE IF NOT EXISTS event_evidence (
    event_id    TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    weight      REAL NOT NULL DEFAULT 1,
    snippet     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (event_id, document_id)
);
CREATE INDEX IF NOT EXISTS idx_evidence_document ON event_evidence(document_id);

-- Watchlists: named sets of entities/keywords/domains/sources.
CREATE TABLE IF NOT EXISTS watchlists (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS watchlist_items (
    id           TEXT PRIMARY KEY,
    watchlist_id TEXT NOT NULL REFERENCES watchlists(id) ON DELETE CASCADE,
    item_type    TEXT NOT NULL DEFAULT 'entity',
    value        TEXT NOT NULL,
    weight       REAL NOT NULL DEFAULT 1,
    enabled      INTEGER NOT NULL DEFAULT 1,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_watchlist_items_list ON watchlist_items(watchlist_id);

-- Alert rules: boolean expression trees evaluated against events.
CREATE TABLE IF NOT EXISTS alert_rules (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    enabled         INTEGER NOT NULL DEFAULT 1,
    watchlist_id    TEXT REFERENCES watchlists(id) ON DELETE SET NULL,
    rule_json       TEXT NOT NULL DEFAULT '{}',
    schedule        TEXT NOT NULL DEFAULT '',
    escalation_json TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);

-- Alerts: deduplicated rule matches. Never deleted (kept for backtesting).
CREATE TABLE IF NOT EXISTS alerts (
    id            TEXT PRIMARY KEY,
    rule_id       TEXT NOT NULL REFERENCES alert_rules(id),
    fired_at      INTEGER NOT NULL,
    event_id      TEXT REFERENCES events(id),
    payload_json  TEXT NOT NULL DEFAULT '{}',
    status        TEXT NOT NULL DEFAULT 'new',
    snoozed_until INTEGER,
    updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_rule_event ON alerts(rule_id, event_id, fired_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status, fired_at DESC);

-- Labels: at most one per alert, latest write wins. Backtest input.
CREATE TABLE IF NOT EXISTS alert_labels (
    alert_id   TEXT PRIMARY KEY REFERENCES alerts(id) ON DELETE CASCADE,
    label      INTEGER NOT NULL,
    note       TEXT NOT NULL DEFAULT '',
    labeled_at INTEGER NOT NULL
);

-- Escalation attempts: one row per (alert, level, channel). The UNIQUE
-- index makes the claim-before-dispatch insert atomic under concurrent
-- escalation checks.
CREATE TABLE IF NOT EXISTS alert_escalations (
    id               TEXT PRIMARY KEY,
    alert_id         TEXT NOT NULL REFERENCES alerts(id) ON DELETE CASCADE,
    escalated_at     INTEGER NOT NULL,
    escalation_level INTEGER NOT NULL,
    channel          TEXT NOT NULL,
    sent             INTEGER NOT NULL DEFAULT 0,
    error_message    TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_escalations_unique
    ON alert_escalations(alert_id, escalation_level, channel);

-- Scalar feature time series, recomputed destructively per invocation.
CREATE TABLE IF NOT EXISTS feature_definitions (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    expression  TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS feature_values (
    feature_id    TEXT NOT NULL REFERENCES feature_definitions(id) ON DELETE CASCADE,
    ts            INTEGER NOT NULL,
    subject_type  TEXT NOT NULL DEFAULT 'global',
    subject_value TEXT NOT NULL DEFAULT 'global',
    value         REAL NOT NULL,
    PRIMARY KEY (feature_id, ts, subject_type, subject_value)
);

-- Rebuildable FTS5 index over documents and events. No triggers: the
-- indexer drops and reinserts rows on every rebuild.
CREATE VIRTUAL TABLE IF NOT EXISTS search_index USING fts5(
    title, body, doc_type UNINDEXED, doc_id UNINDEXED, ts UNINDEXED,
    tokenize='unicode61 remove_diacritics 2'
);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
