// ABOUTME: SQLite persistence of generation provider attempts
// ABOUTME: Records each call and aggregates per-provider counts, failures and latency

package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// SaveProviderCall stores one provider attempt.
func (s *SQLiteStore) SaveProviderCall(ctx context.Context, call *ProviderCall) error {
	query := `
		INSERT INTO provider_calls (id, provider, cache_key, latency_us, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		call.ID,
		call.Provider,
		call.CacheKey,
		call.Latency.Microseconds(),
		call.Error,
		call.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting provider call: %w", err)
	}
	return nil
}

// ProviderCallStats returns per-provider aggregates, optionally since a time.
func (s *SQLiteStore) ProviderCallStats(ctx context.Context, since *time.Time) ([]ProviderCallStats, error) {
	q := sq.Select(
		"provider",
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN error <> '' THEN 1 ELSE 0 END), 0)",
		"COALESCE(AVG(latency_us), 0)",
	).
		From("provider_calls").
		GroupBy("provider").
		OrderBy("provider")
	if since != nil {
		q = q.Where(sq.GtOrEq{"created_at": since.UTC().Format(timeFormat)})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building provider stats query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying provider stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []ProviderCallStats
	for rows.Next() {
		var st ProviderCallStats
		var avgMicros float64
		if err := rows.Scan(&st.Provider, &st.Calls, &st.Failures, &avgMicros); err != nil {
			return nil, fmt.Errorf("scanning provider stats row: %w", err)
		}
		st.AvgLatency = time.Duration(avgMicros) * time.Microsecond
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider stats rows: %w", err)
	}
	return stats, nil
}
