// Package database opens the PostgreSQL pool behind the exercise store and
// owns its schema.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atena-edu/enem-helper/internal/platform/config"
)

// migrationLock serializes Migrate across server replicas starting together.
const migrationLock = 0x6174656e61

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// ParseURL validates a PostgreSQL connection URL.
func ParseURL(url string) (*pgxpool.Config, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	pc, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	return pc, nil
}

// Open connects to cfg.URL and pings the server before returning.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	pc, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 && cfg.MinConns <= cfg.MaxConns {
		pc.MinConns = int32(cfg.MinConns)
	}
	pc.MaxConnLifetime = 30 * time.Minute
	pc.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("connected to postgres",
		"host", pc.ConnConfig.Host,
		"database", pc.ConnConfig.Database,
		"max_conns", pc.MaxConns,
	)
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// HealthCheck pings the pool; it backs /readyz.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Schema creates the exercise and event tables.
const Schema = `
CREATE TABLE IF NOT EXISTS exercises (
	id              TEXT PRIMARY KEY,
	year            INTEGER NOT NULL,
	day             INTEGER NOT NULL DEFAULT 0,
	question_number INTEGER NOT NULL,
	statement       TEXT NOT NULL,
	alternatives    JSONB NOT NULL,
	topic           TEXT NOT NULL,
	quality_score   INTEGER NOT NULL,
	subject_area    TEXT NOT NULL DEFAULT '',
	area_hint       TEXT NOT NULL DEFAULT '',
	hint_conflict   BOOLEAN NOT NULL DEFAULT FALSE,
	command         TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL,
	page            INTEGER NOT NULL DEFAULT 0,
	strategy        TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS exercises_source_idx ON exercises (source);
CREATE INDEX IF NOT EXISTS exercises_year_topic_idx ON exercises (year, topic);

CREATE TABLE IF NOT EXISTS extraction_events (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL,
	source     TEXT NOT NULL,
	event_type TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS extraction_events_run_idx ON extraction_events (run_id);
`

// Migrate applies Schema inside a transaction holding an advisory lock.
// It is safe to run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(migrationLock)); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if _, err := tx.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
