// Package testutil provides shared test infrastructure: throwaway SQLite
// stores with the full schema applied.
//
// Usage:
//
//	db := testutil.NewTestDB(t)
//	run, err := db.CreateRun(ctx, "")
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashita-ai/kiroku/internal/storage"
	"github.com/ashita-ai/kiroku/migrations"
)

// NewTestDB opens a storage.DB backed by a SQLite file in a per-test temp
// directory and applies all embedded migrations. The file is removed with
// the temp dir; the handle is closed via t.Cleanup.
func NewTestDB(t *testing.T) *storage.DB {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "kiroku-test.db")
	db, err := storage.Open(ctx, path, 0, TestLogger())
	if err != nil {
		t.Fatalf("testutil: open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		t.Fatalf("testutil: run migrations: %v", err)
	}
	return db
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
