package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/kiroku/internal/model"
)

// LogMetric appends one point to a metric's time series. Duplicate keys are
// expected — each call extends the series, nothing is overwritten.
func (db *DB) LogMetric(ctx context.Context, runID uuid.UUID, key string, value float64, step int64) error {
	return db.LogMetrics(ctx, runID, []model.MetricEntry{{Key: key, Value: value, Step: step}})
}

// LogMetrics appends a batch of metric points in one transaction, preserving
// slice order. One status check covers the whole batch; either every point
// is appended or none is.
func (db *DB) LogMetrics(ctx context.Context, runID uuid.UUID, entries []model.MetricEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := model.ValidateKey(e.Key); err != nil {
			return fmt.Errorf("storage: log metrics: %w", err)
		}
		if err := model.ValidateMetricValue(e.Value); err != nil {
			return fmt.Errorf("storage: log metrics: key %q: %w", e.Key, err)
		}
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: log metrics: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireRunning(ctx, tx, runID); err != nil {
		return fmt.Errorf("storage: log metrics: %w", err)
	}

	now := db.now().UTC()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_metrics (run_id, key, value, step, recorded_at)
			 VALUES (?, ?, ?, ?, ?)`,
			runID.String(), e.Key, e.Value, e.Step, now,
		); err != nil {
			return fmt.Errorf("storage: log metrics: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: log metrics: commit: %w", err)
	}

	add(ctx, db.metricsLogged, int64(len(entries)))
	return nil
}
