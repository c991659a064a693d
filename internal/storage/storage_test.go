package storage_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/storage"
	"github.com/ashita-ai/kiroku/internal/testutil"
	"github.com/ashita-ai/kiroku/migrations"
)

func TestCreateRun(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "baseline")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Nil(t, run.EndedAt)
	assert.False(t, run.StartedAt.IsZero())

	// A fresh run carries no logged data.
	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "baseline", got.Name)
	assert.Empty(t, got.Params)
	assert.Empty(t, got.Metrics)
	assert.Empty(t, got.Tags)
	assert.Empty(t, got.Artifacts)
}

func TestGetRun_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)

	_, err := db.GetRun(context.Background(), uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLogParam_FirstWriteWins(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "")
	require.NoError(t, err)

	require.NoError(t, db.LogParam(ctx, run.ID, "alpha", "0.5"))

	err = db.LogParam(ctx, run.ID, "alpha", "1.0")
	require.ErrorIs(t, err, storage.ErrConflict)

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alpha": "0.5"}, got.Params)
}

func TestLogParams_BatchIsAtomic(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "")
	require.NoError(t, err)
	require.NoError(t, db.LogParam(ctx, run.ID, "solver", "lbfgs"))

	// "solver" collides, so the whole batch must be rejected.
	err = db.LogParams(ctx, run.ID, map[string]string{
		"alpha":  "0.5",
		"solver": "saga",
	})
	require.ErrorIs(t, err, storage.ErrConflict)

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"solver": "lbfgs"}, got.Params)
}

func TestLogParam_Validation(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "")
	require.NoError(t, err)

	require.Error(t, db.LogParam(ctx, run.ID, "", "x"))

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Params, "rejected writes must leave no rows")
}

func TestLogMetric_AppendsSeries(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "")
	require.NoError(t, err)

	require.NoError(t, db.LogMetric(ctx, run.ID, "score", 1.0, 0))
	require.NoError(t, db.LogMetric(ctx, run.ID, "score", 2.0, 1))

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)

	series := got.Metrics["score"]
	require.Len(t, series, 2, "duplicate metric keys append, not overwrite")
	assert.Equal(t, 1.0, series[0].Value)
	assert.EqualValues(t, 0, series[0].Step)
	assert.Equal(t, 2.0, series[1].Value)
	assert.EqualValues(t, 1, series[1].Step)
}

func TestLogMetrics_Batch(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "")
	require.NoError(t, err)

	err = db.LogMetrics(ctx, run.ID, []model.MetricEntry{
		{Key: "fold_score", Value: 0.58, Step: 0},
		{Key: "fold_score", Value: 0.61, Step: 1},
		{Key: "fit_seconds", Value: 0.02, Step: 0},
	})
	require.NoError(t, err)

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got.Metrics["fold_score"], 2)
	assert.Equal(t, 0.58, got.Metrics["fold_score"][0].Value)
	assert.Equal(t, 0.61, got.Metrics["fold_score"][1].Value)
	require.Len(t, got.Metrics["fit_seconds"], 1)
}

func TestLogMetric_RejectsNonFinite(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "")
	require.NoError(t, err)

	require.Error(t, db.LogMetric(ctx, run.ID, "score", math.NaN(), 0))
	require.Error(t, db.LogMetric(ctx, run.ID, "score", math.Inf(1), 0))

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Metrics)
}

func TestTerminateRun(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "")
	require.NoError(t, err)

	require.NoError(t, db.TerminateRun(ctx, run.ID, model.RunStatusFinished))

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFinished, got.Status)
	require.NotNil(t, got.EndedAt)

	t.Run("second transition fails", func(t *testing.T) {
		err := db.TerminateRun(ctx, run.ID, model.RunStatusFailed)
		require.ErrorIs(t, err, storage.ErrRunTerminal)
	})

	t.Run("terminal run rejects params", func(t *testing.T) {
		err := db.LogParam(ctx, run.ID, "late", "nope")
		require.ErrorIs(t, err, storage.ErrRunTerminal)
	})

	t.Run("terminal run rejects metrics", func(t *testing.T) {
		err := db.LogMetric(ctx, run.ID, "late", 1.0, 0)
		require.ErrorIs(t, err, storage.ErrRunTerminal)
	})

	t.Run("terminal run rejects artifacts", func(t *testing.T) {
		err := db.PutArtifact(ctx, run.ID, "late", []byte("x"))
		require.ErrorIs(t, err, storage.ErrRunTerminal)
	})

	t.Run("terminal run rejects tags", func(t *testing.T) {
		err := db.SetTag(ctx, run.ID, "late", "nope")
		require.ErrorIs(t, err, storage.ErrRunTerminal)
	})
}

func TestTerminateRun_Errors(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	t.Run("unknown run", func(t *testing.T) {
		err := db.TerminateRun(ctx, uuid.New(), model.RunStatusFailed)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("non-terminal status rejected", func(t *testing.T) {
		run, err := db.CreateRun(ctx, "")
		require.NoError(t, err)
		require.Error(t, db.TerminateRun(ctx, run.ID, model.RunStatusRunning))
	})
}

func TestPutArtifact(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "")
	require.NoError(t, err)

	blob := []byte{0x00, 0x01, 0xFE, 0xFF, 'm', 'o', 'd', 'e', 'l'}
	require.NoError(t, db.PutArtifact(ctx, run.ID, "model", blob))

	t.Run("round-trips byte-identical", func(t *testing.T) {
		got, err := db.GetArtifact(ctx, run.ID, "model")
		require.NoError(t, err)
		assert.Equal(t, blob, got)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		err := db.PutArtifact(ctx, run.ID, "model", []byte("other"))
		require.ErrorIs(t, err, storage.ErrConflict)

		got, err := db.GetArtifact(ctx, run.ID, "model")
		require.NoError(t, err)
		assert.Equal(t, blob, got, "first blob must be retained")
	})

	t.Run("descriptor lists size and hash", func(t *testing.T) {
		infos, err := db.ListArtifacts(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, "model", infos[0].Name)
		assert.EqualValues(t, len(blob), infos[0].SizeBytes)
		assert.Len(t, infos[0].ContentHash, 64) // hex sha256
	})

	t.Run("unknown artifact name", func(t *testing.T) {
		_, err := db.GetArtifact(ctx, run.ID, "missing")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := db.GetArtifact(ctx, uuid.New(), "model")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestListRuns(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	// Deterministic, strictly increasing clock so ordering is testable.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	db.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	first, err := db.CreateRun(ctx, "first")
	require.NoError(t, err)
	second, err := db.CreateRun(ctx, "second")
	require.NoError(t, err)
	third, err := db.CreateRun(ctx, "third")
	require.NoError(t, err)

	require.NoError(t, db.SetTag(ctx, second.ID, "model", "ridge"))
	require.NoError(t, db.TerminateRun(ctx, first.ID, model.RunStatusFailed))

	t.Run("newest first", func(t *testing.T) {
		runs, err := db.ListRuns(ctx, model.RunFilter{})
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, third.ID, runs[0].ID)
		assert.Equal(t, second.ID, runs[1].ID)
		assert.Equal(t, first.ID, runs[2].ID)
	})

	t.Run("status filter", func(t *testing.T) {
		failed := model.RunStatusFailed
		runs, err := db.ListRuns(ctx, model.RunFilter{Status: &failed})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, first.ID, runs[0].ID)
	})

	t.Run("tag filter", func(t *testing.T) {
		key, value := "model", "ridge"
		runs, err := db.ListRuns(ctx, model.RunFilter{TagKey: &key, TagValue: &value})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, second.ID, runs[0].ID)
	})

	t.Run("name filter", func(t *testing.T) {
		name := "third"
		runs, err := db.ListRuns(ctx, model.RunFilter{Name: &name})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, third.ID, runs[0].ID)
	})

	t.Run("limit and offset", func(t *testing.T) {
		runs, err := db.ListRuns(ctx, model.RunFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, second.ID, runs[0].ID)
	})
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := testutil.NewTestDB(t)

	// NewTestDB already ran them once; a second pass must be a no-op.
	require.NoError(t, db.RunMigrations(context.Background(), migrations.FS))
}

func TestSnapshotDoesNotAliasStore(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "")
	require.NoError(t, err)
	require.NoError(t, db.LogParam(ctx, run.ID, "alpha", "0.5"))

	snap, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	snap.Params["alpha"] = "mutated"
	snap.Params["injected"] = "x"

	fresh, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alpha": "0.5"}, fresh.Params)
}
