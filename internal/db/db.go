package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/cpetrack/internal/config"
	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the base directory.
const FileName = "cpetrack.db"

// Querier is satisfied by both *sql.DB and *sql.Tx so queries can run
// inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Init opens (creating if needed) baseDir/cpetrack.db with WAL enabled and
// the schema migrated to CurrentSchemaVersion. Tests pass t.TempDir().
func Init(baseDir string) (*sql.DB, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "exports")} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		_ = os.Chmod(dir, 0700)
	}

	// DSN pragmas are applied on every pooled connection, not just the first.
	dbPath := filepath.Join(baseDir, FileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(dbPath, 0600)
	return db, nil
}

// ConfigurePool applies db_max_open_conns and db_max_idle_conns.
// Zero leaves the driver default.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrations[i] moves the schema from user_version i to i+1.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS entries (
	  id          TEXT PRIMARY KEY,
	  entry_date  TEXT NOT NULL,
	  hours       REAL NOT NULL CHECK (hours > 0),
	  category    TEXT NOT NULL,
	  description TEXT NOT NULL,
	  source      TEXT NOT NULL,
	  source_file TEXT,
	  created_at  INTEGER NOT NULL,
	  updated_at  INTEGER NOT NULL,
	  deleted_at  INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_entries_date
	  ON entries(entry_date DESC) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_category
	  ON entries(category, entry_date DESC) WHERE deleted_at IS NULL;`,

	// purge scans soft-deleted rows by deletion time
	`CREATE INDEX IF NOT EXISTS idx_entries_deleted_at
	  ON entries(deleted_at) WHERE deleted_at IS NOT NULL;`,
}

// CurrentSchemaVersion is the user_version after all migrations have run.
var CurrentSchemaVersion = len(migrations)

// migrate runs each pending migration in its own transaction, bumping
// user_version inside the same transaction.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}
	for v := version; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: failed to set user_version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
	}
	return nil
}

func verifyWALMode(db *sql.DB) error {
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if mode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", mode)
	}
	return nil
}

// GetUserVersion returns the schema version stored in the user_version pragma.
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion overwrites the user_version pragma.
func SetUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
