package kiroku

import (
	"context"

	"github.com/google/uuid"

	"github.com/ashita-ai/kiroku/internal/model"
)

// ActiveRun is the handle for a run created by StartRun or Store.Run.
// Logging calls are bound to its run id and succeed only while the run is
// RUNNING; after End every mutation fails with ErrRunTerminal.
//
// An ActiveRun does not buffer: every call hits the store, so anything
// logged before a failure survives it (partial logging is retained, never
// rolled back).
type ActiveRun struct {
	id    uuid.UUID
	store *Store
}

// ID returns the run's unique identifier.
func (a *ActiveRun) ID() uuid.UUID {
	return a.id
}

// LogParam records a write-once param. Logging the same key twice fails
// with ErrConflict; the first value is retained.
func (a *ActiveRun) LogParam(ctx context.Context, key, value string) error {
	return a.store.db.LogParam(ctx, a.id, key, value)
}

// LogParams records a batch of params in one transaction — either every
// key is written or none is.
func (a *ActiveRun) LogParams(ctx context.Context, params map[string]string) error {
	return a.store.db.LogParams(ctx, a.id, params)
}

// LogMetric appends one point to a metric's time series. The same key may
// be logged any number of times; points are kept in insertion order.
func (a *ActiveRun) LogMetric(ctx context.Context, key string, value float64, step int64) error {
	return a.store.db.LogMetric(ctx, a.id, key, value, step)
}

// LogMetrics appends a batch of metric points in one transaction,
// preserving slice order.
func (a *ActiveRun) LogMetrics(ctx context.Context, metrics []Metric) error {
	entries := make([]model.MetricEntry, len(metrics))
	for i, m := range metrics {
		entries[i] = model.MetricEntry(m)
	}
	return a.store.db.LogMetrics(ctx, a.id, entries)
}

// LogArtifact stores an opaque blob under a name, write-once per run.
// A duplicate name fails with ErrConflict.
func (a *ActiveRun) LogArtifact(ctx context.Context, name string, blob []byte) error {
	return a.store.db.PutArtifact(ctx, a.id, name, blob)
}

// SetTag records a write-once tag (same policy as params).
func (a *ActiveRun) SetTag(ctx context.Context, key, value string) error {
	return a.store.db.SetTag(ctx, a.id, key, value)
}

// End moves the run to its terminal status: FINISHED when cause is nil,
// FAILED otherwise. A run ends exactly once — a second End fails with
// ErrRunTerminal rather than silently succeeding.
func (a *ActiveRun) End(ctx context.Context, cause error) error {
	status := model.RunStatusFinished
	if cause != nil {
		status = model.RunStatusFailed
	}
	if err := a.store.db.TerminateRun(ctx, a.id, status); err != nil {
		return err
	}
	a.store.logger.Debug("run ended", "run_id", a.id, "status", status)
	return nil
}
