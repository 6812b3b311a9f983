// CLAUDE:SUMMARY Feature Computer — daily scalar time series (alert counts, event counts, avg sentiment).
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/sentinelle/internal/store"
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// ComputeFeature recomputes the daily time series for a feature definition
// over the last daysBack days. Existing values in the window are replaced.
// Returns the number of buckets written. Empty buckets get a 0.0 value so
// the series has no holes.
func (a *Analytics) ComputeFeature(ctx context.Context, featureID string, daysBack int) (int, error) {
	if daysBack <= 0 {
		daysBack = 30
	}
	def, err := a.store.GetFeatureDefinition(ctx, featureID)
	if err != nil {
		return 0, fmt.Errorf("load feature definition: %w", err)
	}
	if def == nil {
		return 0, fmt.Errorf("feature %s: not found", featureID)
	}

	// Buckets are UTC days; the stored ts is the bucket end so the latest
	// (partial) day still gets a point.
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	windowStart := dayStart.AddDate(0, 0, -(daysBack - 1)).UnixMilli()
	if err := a.store.DeleteFeatureValues(ctx, featureID, windowStart); err != nil {
		return 0, fmt.Errorf("clear feature window: %w", err)
	}

	written := 0
	for i := 0; i < daysBack; i++ {
		bucketStart := windowStart + int64(i)*dayMillis
		bucketEnd := bucketStart + dayMillis
		value, err := a.bucketValue(ctx, def.Expression, bucketStart, bucketEnd)
		if err != nil {
			return written, fmt.Errorf("compute bucket %d for %s: %w", i, featureID, err)
		}
		err = a.store.InsertFeatureValue(ctx, &store.FeatureValue{
			FeatureID: featureID,
			Ts:        bucketEnd,
			Value:     value,
		})
		if err != nil {
			return written, fmt.Errorf("store feature value: %w", err)
		}
		written++
	}
	a.logger.Info("feature computed", "feature_id", featureID, "expression", def.Expression, "buckets", written)
	return written, nil
}

func (a *Analytics) bucketValue(ctx context.Context, expression string, startTs, endTs int64) (float64, error) {
	switch expression {
	case "alerts_count":
		var n int
		err := a.store.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM alerts WHERE fired_at >= ? AND fired_at < ?`,
			startTs, endTs).Scan(&n)
		return float64(n), err
	case "events_count":
		var n int
		err := a.store.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM events WHERE start_ts >= ? AND start_ts < ?`,
			startTs, endTs).Scan(&n)
		return float64(n), err
	case "avg_sentiment":
		var avg float64
		err := a.store.DB.QueryRowContext(ctx,
			`SELECT COALESCE(AVG(sentiment_score), 0.0) FROM events WHERE start_ts >= ? AND start_ts < ?`,
			startTs, endTs).Scan(&avg)
		return avg, err
	default:
		return 0, fmt.Errorf("unknown feature expression %q", expression)
	}
}
