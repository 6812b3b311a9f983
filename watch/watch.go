// Package watch provides a generic "poll SQLite, detect change, debounce,
// reload" loop. Sentinelle uses it to reload the evaluation scheduler when
// the alert_rules table changes, so rule edits take effect without a restart.
//
// Typical usage:
//
//	w := watch.New(db, watch.Options{Interval: time.Second})
//	go w.OnChange(ctx, func() error { return sched.Reload(ctx) })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token from the database. Two calls that
// return different values mean "something changed". int64 maps naturally to
// PRAGMA data_version or a MAX(updated_at) query.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// PragmaDataVersion is the default detector: SQLite bumps data_version
// whenever another connection commits a write.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v)
	return v, err
}

// TableMaxUpdatedAt returns a detector that reads MAX(updated_at) from the
// given table. Useful to react only to changes of one table.
func TableMaxUpdatedAt(table string) ChangeDetector {
	// table comes from compile-time call sites, not user input.
	q := `SELECT COALESCE(MAX(updated_at), 0) FROM ` + table
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, q).Scan(&v)
		return v, err
	}
}

// Options tunes the watcher behaviour.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change is detected before the
	// action fires. 0 means fire immediately. Default: 0.
	Debounce time.Duration
	// Detector overrides the default PragmaDataVersion detector.
	Detector ChangeDetector
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls a SQLite database for changes and runs an action when a
// change is detected. Safe for concurrent use.
type Watcher struct {
	db   *sql.DB
	opts Options

	version atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	reloads atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Reloads         int64 `json:"reloads"`
}

// New creates a Watcher on the given database.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Reloads:         w.reloads.Load(),
	}
}

// OnChange polls until ctx is cancelled, invoking action after each detected
// change (debounced when configured). The action error is logged, not fatal:
// the loop keeps watching.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	// Prime the version so startup does not count as a change.
	if v, err := w.opts.Detector(ctx, w.db); err == nil {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time

	fire := func() {
		w.reloads.Add(1)
		if err := action(); err != nil {
			w.errors.Add(1)
			log.Error("watch: reload action failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case <-debounceC:
			debounceC = nil
			fire()
		case <-ticker.C:
			w.checks.Add(1)
			v, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				w.errors.Add(1)
				log.Warn("watch: detector failed", "error", err)
				continue
			}
			if v == w.version.Load() {
				continue
			}
			w.version.Store(v)
			w.changes.Add(1)

			if w.opts.Debounce <= 0 {
				fire()
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(w.opts.Debounce)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(w.opts.Debounce)
			}
			debounceC = debounce.C
		}
	}
}
