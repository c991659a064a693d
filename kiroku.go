// Package kiroku is the public API for the Kiroku experiment-run tracker.
//
// Kiroku records runs: lifecycle (running → finished | failed), write-once
// params and tags, append-only metric time series, and opaque artifact blobs,
// all in a single local SQLite file. Training itself — grid search,
// cross-validation, scoring — happens outside; Kiroku only records what the
// caller tells it.
//
//	store, err := kiroku.Open(kiroku.WithPath("runs.db"))
//	if err != nil { ... }
//	defer store.Close(ctx)
//
//	err = store.Run(ctx, func(ctx context.Context, run *kiroku.ActiveRun) error {
//	    if err := run.LogParam(ctx, "model", "Ridge"); err != nil {
//	        return err
//	    }
//	    return run.LogMetric(ctx, "score", 0.59, 0)
//	})
//
// The import graph enforces a strict no-cycle rule: kiroku (root) imports
// internal/*, but internal/* never imports kiroku (root). Public types are
// standalone structs with no internal imports; conversion helpers
// (toPublicRun, toModelFilter) live here because this is the only file that
// sees both sides of the boundary.
package kiroku

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ashita-ai/kiroku/internal/config"
	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/storage"
	"github.com/ashita-ai/kiroku/internal/telemetry"
	"github.com/ashita-ai/kiroku/migrations"
)

// Store is an open run store. Construct with Open(); all methods are safe
// for concurrent use by distinct runs. Store has no public fields — use
// Open() options to configure it.
type Store struct {
	cfg          config.Config
	db           *storage.DB
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// Open initialises the run store. It opens (creating if needed) the SQLite
// file, runs embedded migrations, and wires telemetry when configured.
func Open(opts ...Option) (*Store, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.path != "" {
		cfg.DBPath = o.path
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("kiroku opening", "version", version, "db", cfg.DBPath)

	ctx := context.Background()

	// Initialize OpenTelemetry (no-op when no endpoint is configured).
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Open the database.
	db, err := storage.Open(ctx, cfg.DBPath, cfg.BusyTimeout, logger)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("storage: %w", err)
	}
	if o.clock != nil {
		db.SetClock(o.clock)
	}

	// Run embedded migrations.
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		_ = db.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// Register store activity counters (after telemetry.Init).
	db.RegisterMetrics()

	return &Store{
		cfg:          cfg,
		db:           db,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Close flushes telemetry and closes the database handle. Runs still in
// RUNNING status stay RUNNING — there is no automatic recovery; use
// ListRuns with a status filter to find strays after a crash.
func (s *Store) Close(ctx context.Context) error {
	s.logger.Info("kiroku closing")

	flushCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownWait)
	defer cancel()
	if err := s.otelShutdown(flushCtx); err != nil {
		s.logger.Warn("telemetry shutdown error", "error", err)
	}

	return s.db.Close()
}

// StartRun creates a run in RUNNING status and returns its handle.
// Callers own the terminal transition: call End (or use Run for the scoped
// form) — a handle that is never ended leaves the run RUNNING.
func (s *Store) StartRun(ctx context.Context, opts ...RunOption) (*ActiveRun, error) {
	o := runOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	run, err := s.db.CreateRun(ctx, o.name)
	if err != nil {
		return nil, err
	}
	if len(o.tags) > 0 {
		if err := s.db.SetTags(ctx, run.ID, o.tags); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("run started", "run_id", run.ID, "name", o.name)
	return &ActiveRun{id: run.ID, store: s}, nil
}

// Run executes fn inside a run scope: a run is created before fn and moved
// to a terminal status on every exit path. A nil return ends the run
// FINISHED; a non-nil return ends it FAILED and the original error is
// returned unchanged; a panic ends it FAILED and re-panics.
//
// Exactly one terminal transition is guaranteed: if fn itself ended the run
// early, the scope's own transition fails loudly — it is returned when fn
// succeeded, or logged as an error when fn already failed (the body error
// always wins).
func (s *Store) Run(ctx context.Context, fn func(context.Context, *ActiveRun) error, opts ...RunOption) error {
	run, err := s.StartRun(ctx, opts...)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if endErr := run.End(ctx, fmt.Errorf("panic: %v", r)); endErr != nil {
				s.logger.Error("run not marked failed after panic", "run_id", run.ID(), "error", endErr)
			}
			panic(r)
		}
	}()

	if bodyErr := fn(ctx, run); bodyErr != nil {
		if endErr := run.End(ctx, bodyErr); endErr != nil {
			s.logger.Error("run not marked failed", "run_id", run.ID(), "error", endErr)
		}
		return bodyErr
	}

	return run.End(ctx, nil)
}

// GetRun returns a full read-only snapshot of a run, including every metric
// series in insertion order.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	run, err := s.db.GetRun(ctx, id)
	if err != nil {
		return Run{}, err
	}
	return toPublicRun(run), nil
}

// ListRuns returns run summaries matching the filter, newest first
// (started_at descending).
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	summaries, err := s.db.ListRuns(ctx, toModelFilter(filter))
	if err != nil {
		return nil, err
	}

	out := make([]RunSummary, len(summaries))
	for i, m := range summaries {
		out[i] = RunSummary{
			ID:        m.ID,
			Name:      m.Name,
			Status:    RunStatus(m.Status),
			StartedAt: m.StartedAt,
			EndedAt:   m.EndedAt,
		}
	}
	return out, nil
}

// GetArtifact returns the stored blob for (run, name).
func (s *Store) GetArtifact(ctx context.Context, id uuid.UUID, name string) ([]byte, error) {
	return s.db.GetArtifact(ctx, id, name)
}

// ListArtifacts returns descriptors for every artifact of a run.
func (s *Store) ListArtifacts(ctx context.Context, id uuid.UUID) ([]ArtifactInfo, error) {
	infos, err := s.db.ListArtifacts(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]ArtifactInfo, len(infos))
	for i, a := range infos {
		out[i] = ArtifactInfo(a)
	}
	return out, nil
}

// ── Type converters ────────────────────────────────────────────────────────────

// toPublicRun converts an internal model.Run to the public kiroku.Run.
// Lives here because this is the only file that imports both sides.
func toPublicRun(m model.Run) Run {
	run := Run{
		ID:        m.ID,
		Name:      m.Name,
		Status:    RunStatus(m.Status),
		StartedAt: m.StartedAt,
		EndedAt:   m.EndedAt,
		Params:    m.Params,
		Tags:      m.Tags,
		Metrics:   make(map[string][]MetricPoint, len(m.Metrics)),
	}
	for key, series := range m.Metrics {
		points := make([]MetricPoint, len(series))
		for i, p := range series {
			points[i] = MetricPoint(p)
		}
		run.Metrics[key] = points
	}
	if len(m.Artifacts) > 0 {
		run.Artifacts = make([]ArtifactInfo, len(m.Artifacts))
		for i, a := range m.Artifacts {
			run.Artifacts[i] = ArtifactInfo(a)
		}
	}
	return run
}

func toModelFilter(f RunFilter) model.RunFilter {
	out := model.RunFilter{
		Name:     f.Name,
		TagKey:   f.TagKey,
		TagValue: f.TagValue,
		Limit:    f.Limit,
		Offset:   f.Offset,
	}
	if f.Status != nil {
		status := model.RunStatus(*f.Status)
		out.Status = &status
	}
	return out
}
