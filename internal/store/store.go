// Package store provides the data access layer for the sentinelle engine.
//
// All access serializes through a single *sql.DB handle. Getters return
// nil, nil when the row does not exist.
package store

import (
	"database/sql"

	"github.com/hazyhaar/sentinelle/dbopen"
)

// Store wraps the engine database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Open opens (creating if necessary) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}
