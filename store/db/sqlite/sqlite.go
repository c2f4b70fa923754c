// Package sqlite implements the store driver on a local SQLite file
// through the pure-Go modernc.org driver, so builds stay CGO-free.
// Embeddings are stored as BLOBs and similarity search is an exact
// scan; the driver suits single-user instances, not shared deployments.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
)

type DB struct {
	db *sql.DB
}

// NewDB opens the SQLite file at profile.DSN, creating it on first use.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// WAL keeps readers unblocked during writes and busy_timeout rides
	// out the occasional lock instead of failing immediately. The
	// modernc driver takes pragmas in the DSN, each as `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// A single long-lived connection: SQLite serializes writers through
	// the file lock anyway, and the local file makes lifetime and idle
	// limits pointless.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	return &DB{db: sqliteDB}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the memory entry schema. Statements are idempotent so
// Migrate can run on every startup.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_entry (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL DEFAULT '',
			user_id TEXT,
			conversation_id TEXT,
			role TEXT NOT NULL,
			ts TEXT NOT NULL,
			tokens INTEGER,
			importance REAL,
			embedding BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entry_user_id ON memory_entry (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entry_conversation_id ON memory_entry (conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entry_ts ON memory_entry (ts)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate sqlite schema")
		}
	}
	return nil
}

// IsInitialized reports whether the memory entry table exists.
func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type='table' AND name='memory_entry')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}
