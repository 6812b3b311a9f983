package store

import "context"

// GetStats returns aggregate row counts for the engine's tables.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats
	targets := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM documents`, &st.Documents},
		{`SELECT COUNT(*) FROM events`, &st.Events},
		{`SELECT COUNT(*) FROM event_evidence`, &st.Evidence},
		{`SELECT COUNT(*) FROM alert_rules`, &st.Rules},
		{`SELECT COUNT(*) FROM alerts`, &st.Alerts},
		{`SELECT COUNT(*) FROM alert_escalations`, &st.Escalations},
	}
	for _, t := range targets {
		if err := s.DB.QueryRowContext(ctx, t.query).Scan(t.dst); err != nil {
			return nil, err
		}
	}
	return &st, nil
}
