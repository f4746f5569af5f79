// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides run, provider call and snapshot persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so text columns sort chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			topic       TEXT NOT NULL,
			brand       TEXT NOT NULL,
			status      TEXT NOT NULL,
			degraded    INTEGER NOT NULL DEFAULT 0,
			result      TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			finished_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_brand ON runs(brand);

		CREATE TABLE IF NOT EXISTS provider_calls (
			id         TEXT PRIMARY KEY,
			provider   TEXT NOT NULL,
			cache_key  TEXT NOT NULL,
			latency_us INTEGER NOT NULL,
			error      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_provider_calls_provider ON provider_calls(provider, created_at);

		CREATE TABLE IF NOT EXISTS similarity_snapshots (
			engine     TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema changes to databases created by older builds.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "runs",
			column: "degraded",
			apply:  `ALTER TABLE runs ADD COLUMN degraded INTEGER NOT NULL DEFAULT 0`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(
			`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column,
		).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveRun inserts a run, replacing any earlier record with the same ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, topic, brand, status, degraded, result, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			degraded = excluded.degraded,
			result = excluded.result,
			finished_at = excluded.finished_at
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Topic,
		run.Brand,
		run.Status,
		run.Degraded,
		string(run.Result),
		run.CreatedAt.UTC().Format(timeFormat),
		run.FinishedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	s.logger.Debug("saved run", "id", run.ID, "status", run.Status)
	return nil
}

// GetRun retrieves a run by ID.
// Returns ErrNotFound if the run doesn't exist.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, topic, brand, status, degraded, result, created_at, finished_at
		FROM runs
		WHERE id = ?
	`

	var run Run
	var result, createdAt, finishedAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Topic,
		&run.Brand,
		&run.Status,
		&run.Degraded,
		&result,
		&createdAt,
		&finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	run.Result = []byte(result)
	if run.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(timeFormat, finishedAt); err != nil {
		return nil, fmt.Errorf("parsing finished_at: %w", err)
	}
	return &run, nil
}

// ListRuns returns run summaries, newest first.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	q := sq.Select("id", "topic", "brand", "status", "degraded", "created_at", "finished_at").
		From("runs").
		OrderBy("created_at DESC", "rowid DESC").
		Limit(uint64(limit))
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Brand != "" {
		q = q.Where(sq.Eq{"brand": filter.Brand})
	}
	if filter.Since != nil {
		q = q.Where(sq.GtOrEq{"created_at": filter.Since.UTC().Format(timeFormat)})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building runs query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		var createdAt, finishedAt string
		if err := rows.Scan(&r.ID, &r.Topic, &r.Brand, &r.Status, &r.Degraded, &createdAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if r.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if r.FinishedAt, err = time.Parse(timeFormat, finishedAt); err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return runs, nil
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
