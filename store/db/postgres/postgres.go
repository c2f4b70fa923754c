// Package postgres implements the store driver on PostgreSQL with the
// pgvector extension. Embeddings live in a native fixed-size vector column
// behind a persistent ivfflat index, so semantic search is approximate
// nearest neighbor rather than an exact scan.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	// Import the Postgres driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"golang.org/x/mod/semver"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
)

// DefaultEmbeddingDim matches the BAAI/bge-m3 embedding model.
const DefaultEmbeddingDim = 1024

// minPgvectorVersion is the oldest supported pgvector release. Anything
// older predates the current vector storage format.
const minPgvectorVersion = "0.4.0"

type DB struct {
	db  *sql.DB
	dim int
}

// NewDB opens a connection to the Postgres instance at profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// One in-flight operation at a time: every read and write borrows the
	// same serialized connection, so a delete-then-insert pair from one
	// caller never interleaves with another caller's statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	dim := profile.EmbeddingDimensions
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}

	return &DB{db: db, dim: dim}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the memory entry schema, the pgvector extension, and the
// ivfflat index. Statements are idempotent so Migrate can run on every
// startup. The vector column dimension is fixed at creation; changing the
// embedding model dimension needs a manual migration.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return errors.Wrap(err, "failed to create pgvector extension")
	}
	if err := d.checkVectorVersion(ctx); err != nil {
		return err
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_entry (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL DEFAULT '',
			user_id TEXT,
			conversation_id TEXT,
			role TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			tokens INTEGER,
			importance DOUBLE PRECISION,
			embedding vector(%d)
		)`, d.dim),
		`CREATE INDEX IF NOT EXISTS idx_memory_entry_user_id ON memory_entry (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entry_conversation_id ON memory_entry (conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entry_ts ON memory_entry (ts)`,
		// ivfflat with cosine ops matches the <=> operator used at query
		// time; queries through it return approximate neighbors.
		`CREATE INDEX IF NOT EXISTS idx_memory_entry_embedding ON memory_entry USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate postgres schema")
		}
	}
	return nil
}

// checkVectorVersion rejects pgvector releases older than
// minPgvectorVersion before any schema depends on them.
func (d *DB) checkVectorVersion(ctx context.Context) error {
	var extversion string
	err := d.db.QueryRowContext(ctx, `SELECT extversion FROM pg_extension WHERE extname = 'vector'`).Scan(&extversion)
	if err != nil {
		return errors.Wrap(err, "failed to read pgvector version")
	}
	if semver.Compare("v"+extversion, "v"+minPgvectorVersion) < 0 {
		return errors.Errorf("pgvector %s is too old, need %s or newer", extversion, minPgvectorVersion)
	}
	return nil
}

// IsInitialized reports whether the memory entry table exists.
func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = 'memory_entry')`).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}
