package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"
)

//go:embed scripts/initdb.sql scripts/sqlite.sql
var bootstrapFS embed.FS

const schemaVersion = 1

// EnsureBootstrapped runs the schema script unless contexta_meta already
// records the current version. tablesQuery must report whether the meta
// table exists in the target dialect.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, script, tablesQuery string) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	if err := db.QueryRowContext(ctxBoot, tablesQuery).Scan(&exists); err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}
	if !exists {
		return runBootstrap(ctxBoot, db, script)
	}

	var hasVersion bool
	if err := db.QueryRowContext(ctxBoot,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM contexta_meta WHERE version = %d)`, schemaVersion),
	).Scan(&hasVersion); err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if !hasVersion {
		return runBootstrap(ctxBoot, db, script)
	}
	return nil
}

func runBootstrap(ctx context.Context, db *sql.DB, script string) error {
	sqlBytes, err := bootstrapFS.ReadFile(script)
	if err != nil {
		return fmt.Errorf("read %s: %w", script, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
