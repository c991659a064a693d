// Package storage provides the SQLite storage layer for Kiroku.
//
// It manages a single-connection database/sql pool over the pure-Go
// modernc.org/sqlite driver, a forward-only migration runner for the
// embedded schema, and query methods for all tables.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/ashita-ai/kiroku/internal/telemetry"
)

// memoryPath selects a throwaway in-process database. Useful in tests.
const memoryPath = ":memory:"

// DB wraps a database/sql handle restricted to a single connection.
// SQLite permits one writer at a time; funnelling every operation through
// one connection serializes access without per-run locking, and keeps a
// ":memory:" database alive for the DB's lifetime.
type DB struct {
	sql    *sql.DB
	logger *slog.Logger
	now    func() time.Time

	runsStarted   metric.Int64Counter
	runsEnded     metric.Int64Counter
	metricsLogged metric.Int64Counter
	artifactBytes metric.Int64Counter
}

// Open opens (creating if needed) the SQLite database at path.
// Pass ":memory:" for an in-process database that vanishes on Close.
// busyTimeout bounds how long a blocked statement waits for the writer.
func Open(ctx context.Context, path string, busyTimeout time.Duration, logger *slog.Logger) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: path is required")
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, busyTimeout.Milliseconds())
	if path == memoryPath {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	handle.SetMaxOpenConns(1)

	if err := handle.PingContext(ctx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("storage: ping %s: %w", path, err)
	}

	return &DB{
		sql:    handle,
		logger: logger,
		now:    time.Now,
	}, nil
}

// RegisterMetrics creates the OTEL counters for store activity. Call after
// the global meter provider has been initialized; safe to skip entirely —
// a nil counter is simply never incremented.
func (db *DB) RegisterMetrics() {
	meter := telemetry.Meter("kiroku/storage")

	db.runsStarted, _ = meter.Int64Counter("kiroku.runs.started",
		metric.WithDescription("Total runs created"))
	db.runsEnded, _ = meter.Int64Counter("kiroku.runs.ended",
		metric.WithDescription("Total runs moved to a terminal status"))
	db.metricsLogged, _ = meter.Int64Counter("kiroku.metrics.logged",
		metric.WithDescription("Total metric points appended"))
	db.artifactBytes, _ = meter.Int64Counter("kiroku.artifacts.bytes",
		metric.WithDescription("Total artifact bytes stored"),
		metric.WithUnit("By"))
}

// SetClock replaces the timestamp source. Tests use this for deterministic
// started_at/ended_at values; production code never calls it.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}

// Close shuts down the database handle.
func (db *DB) Close() error {
	if err := db.sql.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	return nil
}

// add increments an OTEL counter if metrics have been registered.
func add(ctx context.Context, c metric.Int64Counter, n int64) {
	if c != nil {
		c.Add(ctx, n)
	}
}
