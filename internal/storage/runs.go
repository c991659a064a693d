package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kiroku/internal/model"
)

// CreateRun inserts a new run in RUNNING status and returns its snapshot.
func (db *DB) CreateRun(ctx context.Context, name string) (model.Run, error) {
	now := db.now().UTC()
	run := model.Run{
		ID:        uuid.New(),
		Name:      name,
		Status:    model.RunStatusRunning,
		StartedAt: now,
		CreatedAt: now,
		Params:    map[string]string{},
		Tags:      map[string]string{},
		Metrics:   map[string][]model.MetricPoint{},
	}

	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO runs (id, name, status, started_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID.String(), run.Name, string(run.Status), run.StartedAt, run.CreatedAt,
	)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: create run: %w", err)
	}

	add(ctx, db.runsStarted, 1)
	return run, nil
}

// TerminateRun moves a run to a terminal status and stamps ended_at.
// Exactly one terminal transition is permitted per run: a second call (or a
// call against an unknown run) fails with ErrRunTerminal or ErrNotFound.
func (db *DB) TerminateRun(ctx context.Context, id uuid.UUID, status model.RunStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("storage: terminate run: status %q is not terminal", status)
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: terminate run: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireRunning(ctx, tx, id); err != nil {
		return fmt.Errorf("storage: terminate run: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ? WHERE id = ?`,
		string(status), db.now().UTC(), id.String(),
	); err != nil {
		return fmt.Errorf("storage: terminate run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: terminate run: commit: %w", err)
	}

	if db.runsEnded != nil {
		db.runsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
	return nil
}

// GetRun returns a full snapshot of a run: lifecycle fields, params, tags,
// metric series in insertion order, and artifact descriptors. The snapshot
// is read inside one transaction and shares no state with the store.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.Run, error) {
	tx, err := db.sql.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: get run: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	run, err := scanRun(ctx, tx, id)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: get run: %w", err)
	}

	if run.Params, err = scanKV(ctx, tx, "run_params", id); err != nil {
		return model.Run{}, fmt.Errorf("storage: get run params: %w", err)
	}
	if run.Tags, err = scanKV(ctx, tx, "run_tags", id); err != nil {
		return model.Run{}, fmt.Errorf("storage: get run tags: %w", err)
	}
	if run.Metrics, err = scanMetrics(ctx, tx, id); err != nil {
		return model.Run{}, fmt.Errorf("storage: get run metrics: %w", err)
	}
	if run.Artifacts, err = scanArtifactInfos(ctx, tx, id); err != nil {
		return model.Run{}, fmt.Errorf("storage: get run artifacts: %w", err)
	}

	return run, nil
}

// ListRuns returns run summaries matching the filter, newest first.
func (db *DB) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.RunSummary, error) {
	where, args := buildRunWhereClause(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, name, status, started_at, ended_at FROM runs `+where+
			` ORDER BY started_at DESC, created_at DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunSummary
	for rows.Next() {
		var (
			s       model.RunSummary
			rawID   string
			status  string
			endedAt sql.NullTime
		)
		if err := rows.Scan(&rawID, &s.Name, &status, &s.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("storage: scan run summary: %w", err)
		}
		if s.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("storage: parse run id %q: %w", rawID, err)
		}
		s.Status = model.RunStatus(status)
		if endedAt.Valid {
			t := endedAt.Time
			s.EndedAt = &t
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// buildRunWhereClause assembles the WHERE clause and args for ListRuns.
// Split out for unit testing.
func buildRunWhereClause(f model.RunFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Name != nil {
		conds = append(conds, "name = ?")
		args = append(args, *f.Name)
	}
	if f.TagKey != nil {
		if f.TagValue != nil {
			conds = append(conds, "EXISTS (SELECT 1 FROM run_tags t WHERE t.run_id = runs.id AND t.key = ? AND t.value = ?)")
			args = append(args, *f.TagKey, *f.TagValue)
		} else {
			conds = append(conds, "EXISTS (SELECT 1 FROM run_tags t WHERE t.run_id = runs.id AND t.key = ?)")
			args = append(args, *f.TagKey)
		}
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// querier abstracts *sql.DB and *sql.Tx for the scan helpers.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// requireRunning verifies the run exists and is still RUNNING.
// Returns ErrNotFound or ErrRunTerminal otherwise. Callers hold a
// transaction so the check and the subsequent write are atomic.
func requireRunning(ctx context.Context, q querier, id uuid.UUID) error {
	var status string
	err := q.QueryRowContext(ctx,
		`SELECT status FROM runs WHERE id = ?`, id.String(),
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if model.RunStatus(status).Terminal() {
		return fmt.Errorf("%w: run %s is %s", ErrRunTerminal, id, status)
	}
	return nil
}

func scanRun(ctx context.Context, q querier, id uuid.UUID) (model.Run, error) {
	var (
		run     model.Run
		rawID   string
		status  string
		endedAt sql.NullTime
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, status, started_at, ended_at, created_at FROM runs WHERE id = ?`,
		id.String(),
	).Scan(&rawID, &run.Name, &status, &run.StartedAt, &endedAt, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Run{}, err
	}

	if run.ID, err = uuid.Parse(rawID); err != nil {
		return model.Run{}, fmt.Errorf("parse run id %q: %w", rawID, err)
	}
	run.Status = model.RunStatus(status)
	if endedAt.Valid {
		t := endedAt.Time
		run.EndedAt = &t
	}
	return run, nil
}

// scanKV loads a key/value table (run_params or run_tags) into a fresh map.
func scanKV(ctx context.Context, q querier, table string, id uuid.UUID) (map[string]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT key, value FROM `+table+` WHERE run_id = ?`, id.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	kv := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		kv[k] = v
	}
	return kv, rows.Err()
}

// scanMetrics loads every metric series for a run, ordered by insertion.
func scanMetrics(ctx context.Context, q querier, id uuid.UUID) (map[string][]model.MetricPoint, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT key, value, step, recorded_at FROM run_metrics WHERE run_id = ? ORDER BY id ASC`,
		id.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := map[string][]model.MetricPoint{}
	for rows.Next() {
		var (
			key string
			p   model.MetricPoint
		)
		if err := rows.Scan(&key, &p.Value, &p.Step, &p.RecordedAt); err != nil {
			return nil, err
		}
		series[key] = append(series[key], p)
	}
	return series, rows.Err()
}

func scanArtifactInfos(ctx context.Context, q querier, id uuid.UUID) ([]model.ArtifactInfo, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, size_bytes, content_hash, created_at FROM run_artifacts WHERE run_id = ? ORDER BY name ASC`,
		id.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []model.ArtifactInfo
	for rows.Next() {
		var a model.ArtifactInfo
		if err := rows.Scan(&a.Name, &a.SizeBytes, &a.ContentHash, &a.CreatedAt); err != nil {
			return nil, err
		}
		infos = append(infos, a)
	}
	return infos, rows.Err()
}
