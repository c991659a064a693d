package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/kiroku/internal/model"
)

// PutArtifact stores an opaque blob under a name, write-once per run.
// A duplicate name fails with ErrConflict; the first blob is retained.
func (db *DB) PutArtifact(ctx context.Context, runID uuid.UUID, name string, blob []byte) error {
	if err := model.ValidateArtifact(name, len(blob)); err != nil {
		return fmt.Errorf("storage: put artifact: %w", err)
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: put artifact: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireRunning(ctx, tx, runID); err != nil {
		return fmt.Errorf("storage: put artifact: %w", err)
	}

	var exists int
	scanErr := tx.QueryRowContext(ctx,
		`SELECT 1 FROM run_artifacts WHERE run_id = ? AND name = ?`,
		runID.String(), name,
	).Scan(&exists)
	switch {
	case scanErr == nil:
		return fmt.Errorf("storage: put artifact: %w: %q", ErrConflict, name)
	case !errors.Is(scanErr, sql.ErrNoRows):
		return fmt.Errorf("storage: put artifact: %w", scanErr)
	}

	sum := sha256.Sum256(blob)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_artifacts (run_id, name, content, size_bytes, content_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID.String(), name, blob, int64(len(blob)), hex.EncodeToString(sum[:]), db.now().UTC(),
	); err != nil {
		return fmt.Errorf("storage: put artifact: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: put artifact: commit: %w", err)
	}

	add(ctx, db.artifactBytes, int64(len(blob)))
	return nil
}

// GetArtifact returns a copy of a stored blob.
func (db *DB) GetArtifact(ctx context.Context, runID uuid.UUID, name string) ([]byte, error) {
	var blob []byte
	err := db.sql.QueryRowContext(ctx,
		`SELECT content FROM run_artifacts WHERE run_id = ? AND name = ?`,
		runID.String(), name,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing run from a missing artifact name.
		if runErr := db.runExists(ctx, runID); runErr != nil {
			return nil, fmt.Errorf("storage: get artifact: %w", runErr)
		}
		return nil, fmt.Errorf("storage: get artifact: %w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get artifact: %w", err)
	}
	return blob, nil
}

// ListArtifacts returns descriptors for every artifact of a run.
func (db *DB) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]model.ArtifactInfo, error) {
	if err := db.runExists(ctx, runID); err != nil {
		return nil, fmt.Errorf("storage: list artifacts: %w", err)
	}
	infos, err := scanArtifactInfos(ctx, db.sql, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: list artifacts: %w", err)
	}
	return infos, nil
}

func (db *DB) runExists(ctx context.Context, runID uuid.UUID) error {
	var one int
	err := db.sql.QueryRowContext(ctx,
		`SELECT 1 FROM runs WHERE id = ?`, runID.String(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return err
}
