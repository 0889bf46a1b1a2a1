// Package querylog persists per-query analytics to PostgreSQL. Writes are
// best-effort: a failed insert is retried with backoff and then dropped so
// the search path never blocks on the database.
//
// It requires a `query_log` table:
//
//	CREATE TABLE query_log (
//	    id          BIGSERIAL PRIMARY KEY,
//	    query       TEXT NOT NULL,
//	    mode        TEXT NOT NULL,
//	    top_k       INT NOT NULL,
//	    num_results INT NOT NULL,
//	    latency_ms  BIGINT NOT NULL,
//	    executed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
package querylog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqi-zhai/passagerank/pkg/postgres"
	"github.com/yuqi-zhai/passagerank/pkg/resilience"
)

// Entry is one executed query.
type Entry struct {
	Query      string
	Mode       string
	TopK       int
	NumResults int
	Latency    time.Duration
	ExecutedAt time.Time
}

// Store persists query log entries in PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a query log store.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "query-log"),
	}
}

// Record inserts one entry, retrying transient failures.
func (s *Store) Record(ctx context.Context, e Entry) error {
	err := resilience.Retry(ctx, "query-log-insert", resilience.RetryConfig{}, func() error {
		_, err := s.db.DB.ExecContext(ctx,
			`INSERT INTO query_log (query, mode, top_k, num_results, latency_ms, executed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.Query, e.Mode, e.TopK, e.NumResults, e.Latency.Milliseconds(), e.ExecutedAt.UTC(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording query: %w", err)
	}
	return nil
}

// RecordAsync inserts an entry on a background goroutine, logging failures.
func (s *Store) RecordAsync(e Entry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Record(ctx, e); err != nil {
			s.logger.Error("query log write dropped", "query", e.Query, "error", err)
		}
	}()
}

// TopQuery is one row of the query frequency summary.
type TopQuery struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// TopQueries returns the most frequent queries over the trailing window.
func (s *Store) TopQueries(ctx context.Context, window time.Duration, limit int) ([]TopQuery, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT query, COUNT(*) AS n FROM query_log
		 WHERE executed_at > $1
		 GROUP BY query ORDER BY n DESC LIMIT $2`,
		time.Now().UTC().Add(-window), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying top queries: %w", err)
	}
	defer rows.Close()

	var out []TopQuery
	for rows.Next() {
		var tq TopQuery
		if err := rows.Scan(&tq.Query, &tq.Count); err != nil {
			return nil, fmt.Errorf("scanning top query row: %w", err)
		}
		out = append(out, tq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top queries: %w", err)
	}
	return out, nil
}
