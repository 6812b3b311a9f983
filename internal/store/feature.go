package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertFeatureDefinition stores a new feature definition.
func (s *Store) InsertFeatureDefinition(ctx context.Context, f *FeatureDefinition) error {
	if f.CreatedAt == 0 {
		f.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO feature_definitions (id, name, expression, description, created_at)
		VALUES (?,?,?,?,?)`,
		f.ID, f.Name, f.Expression, f.Description, f.CreatedAt)
	return err
}

// GetFeatureDefinition retrieves a feature definition by ID.
func (s *Store) GetFeatureDefinition(ctx context.Context, id string) (*FeatureDefinition, error) {
	var f FeatureDefinition
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, expression, description, created_at
		FROM feature_definitions WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.Expression, &f.Description, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan feature definition: %w", err)
	}
	return &f, nil
}

// ListFeatureDefinitions returns all feature definitions.
func (s *Store) ListFeatureDefinitions(ctx context.Context) ([]*FeatureDefinition, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, expression, description, created_at
		FROM feature_definitions ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*FeatureDefinition
	for rows.Next() {
		var f FeatureDefinition
		if err := rows.Scan(&f.ID, &f.Name, &f.Expression, &f.Description, &f.CreatedAt); err != nil {
			return nil, err
		}
		defs = append(defs, &f)
	}
	return defs, rows.Err()
}

// DeleteFeatureValues removes computed values for a feature from fromTs on.
// The feature computer calls this before reinserting a window.
func (s *Store) DeleteFeatureValues(ctx context.Context, featureID string, fromTs int64) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM feature_values WHERE feature_id = ? AND ts >= ?`, featureID, fromTs)
	return err
}

// InsertFeatureValue stores one computed bucket.
func (s *Store) InsertFeatureValue(ctx context.Context, v *FeatureValue) error {
	if v.SubjectType == "" {
		v.SubjectType = "global"
	}
	if v.SubjectValue == "" {
		v.SubjectValue = "global"
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT OR REPLACE INTO feature_values (feature_id, ts, subject_type, subject_value, value)
		VALUES (?,?,?,?,?)`,
		v.FeatureID, v.Ts, v.SubjectType, v.SubjectValue, v.Value)
	return err
}

// ListFeatureValues returns the computed series for a feature from fromTs on,
// oldest first.
func (s *Store) ListFeatureValues(ctx context.Context, featureID string, fromTs int64) ([]*FeatureValue, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT feature_id, ts, subject_type, subject_value, value
		FROM feature_values WHERE feature_id = ? AND ts >= ? ORDER BY ts ASC`,
		featureID, fromTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []*FeatureValue
	for rows.Next() {
		var v FeatureValue
		if err := rows.Scan(&v.FeatureID, &v.Ts, &v.SubjectType, &v.SubjectValue, &v.Value); err != nil {
			return nil, err
		}
		values = append(values, &v)
	}
	return values, rows.Err()
}
