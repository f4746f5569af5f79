// ABOUTME: SQLite persistence of serialized similarity index snapshots
// ABOUTME: One row per embedding engine so vectors from different engines never mix

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveSimilaritySnapshot replaces the stored snapshot for engine.
func (s *SQLiteStore) SaveSimilaritySnapshot(ctx context.Context, engine string, data []byte) error {
	query := `
		INSERT INTO similarity_snapshots (engine, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(engine) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, engine, data, time.Now().UTC().Format(timeFormat)); err != nil {
		return fmt.Errorf("saving similarity snapshot: %w", err)
	}
	s.logger.Debug("saved similarity snapshot", "engine", engine, "bytes", len(data))
	return nil
}

// LoadSimilaritySnapshot returns the stored snapshot for engine.
// Returns ErrNotFound if none has been saved.
func (s *SQLiteStore) LoadSimilaritySnapshot(ctx context.Context, engine string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM similarity_snapshots WHERE engine = ?`, engine,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading similarity snapshot: %w", err)
	}
	return data, nil
}
