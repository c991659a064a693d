package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ashita-ai/kiroku/internal/model"
)

// LogParam records a single param. First write wins: logging the same key
// twice fails with ErrConflict and the first value is retained.
func (db *DB) LogParam(ctx context.Context, runID uuid.UUID, key, value string) error {
	return db.LogParams(ctx, runID, map[string]string{key: value})
}

// LogParams records a batch of params in one transaction: either every key
// is written or none is. Keys are inserted in sorted order so conflict
// errors are deterministic.
func (db *DB) LogParams(ctx context.Context, runID uuid.UUID, params map[string]string) error {
	if err := db.insertKV(ctx, "run_params", runID, params); err != nil {
		return fmt.Errorf("storage: log params: %w", err)
	}
	return nil
}

// SetTag records a single tag. Tags share the params write-once policy.
func (db *DB) SetTag(ctx context.Context, runID uuid.UUID, key, value string) error {
	if err := db.insertKV(ctx, "run_tags", runID, map[string]string{key: value}); err != nil {
		return fmt.Errorf("storage: set tag: %w", err)
	}
	return nil
}

// SetTags records a batch of tags in one transaction.
func (db *DB) SetTags(ctx context.Context, runID uuid.UUID, tags map[string]string) error {
	if err := db.insertKV(ctx, "run_tags", runID, tags); err != nil {
		return fmt.Errorf("storage: set tags: %w", err)
	}
	return nil
}

// insertKV writes write-once key/value rows for a RUNNING run.
// The duplicate check is an explicit SELECT rather than a decoded driver
// constraint error: the single-connection pool makes check-then-insert
// race-free, and the resulting error names the offending key.
func (db *DB) insertKV(ctx context.Context, table string, runID uuid.UUID, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		if err := model.ValidateKey(k); err != nil {
			return err
		}
		if err := model.ValidateParamValue(kv[k]); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireRunning(ctx, tx, runID); err != nil {
		return err
	}

	for _, k := range keys {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM `+table+` WHERE run_id = ? AND key = ?`, runID.String(), k,
		).Scan(&exists)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %q", ErrConflict, k)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (run_id, key, value) VALUES (?, ?, ?)`,
			runID.String(), k, kv[k],
		); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
