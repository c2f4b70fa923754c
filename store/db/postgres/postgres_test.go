package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
	"github.com/hrygo/mnemosyne/store/db/drivertest"
)

// testDim keeps fixtures small; the vector column is created with this
// dimension, so the test database must be disposable.
const testDim = 4

// newTestDriver connects to the database named by MNEMOSYNE_TEST_PG_DSN and
// resets the memory entry schema. Tests are skipped when the variable is not
// set, so the default `go test ./...` run needs no running Postgres.
func newTestDriver(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("MNEMOSYNE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("MNEMOSYNE_TEST_PG_DSN not set; skipping postgres driver tests")
	}

	d, err := NewDB(&profile.Profile{Driver: "postgres", DSN: dsn, EmbeddingDimensions: testDim})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	pg := d.(*DB)

	ctx := context.Background()
	_, err = pg.GetDB().ExecContext(ctx, `DROP TABLE IF EXISTS memory_entry`)
	require.NoError(t, err)
	require.NoError(t, pg.Migrate(ctx))

	// The ivfflat index is built on an empty table, which gives it poor
	// recall at fixture scale. Probing every list makes the ANN search
	// exact; the driver holds a single pooled connection, so the session
	// setting sticks for the whole test.
	_, err = pg.GetDB().ExecContext(ctx, `SET ivfflat.probes = 100`)
	require.NoError(t, err)

	return pg
}

func TestDriverConformance(t *testing.T) {
	drivertest.RunDriverConformance(t, drivertest.Options{
		NewDriver: func(t *testing.T) store.Driver {
			return newTestDriver(t)
		},
		Dim: testDim,
	})
}

func TestNewDBRequiresDSN(t *testing.T) {
	_, err := NewDB(&profile.Profile{Driver: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn required")
}

func TestNewDBDefaultsDimension(t *testing.T) {
	d, err := NewDB(&profile.Profile{Driver: "postgres", DSN: "postgres://localhost/ignored"})
	require.NoError(t, err, "sql.Open does not dial, so construction succeeds without a server")
	t.Cleanup(func() { _ = d.Close() })

	assert.Equal(t, DefaultEmbeddingDim, d.(*DB).dim)
}

func TestIsInitialized(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)

	initialized, err := d.IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized, "newTestDriver migrates the schema")
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1", placeholder(1))
	assert.Equal(t, "$3", placeholder(3))
	assert.Equal(t, "$1, $2, $3", placeholders(3))
}

// TestUpdateJournalRestoresOnInsertFailure forces the replacement insert to
// fail mid-replace and verifies the journaled previous row is restored, so
// a bad replacement cannot silently destroy the entry.
func TestUpdateJournalRestoresOnInsertFailure(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)

	original := &store.MemoryEntry{
		ID:        "e1",
		Content:   "keep me",
		Embedding: []float32{1, 0, 0, 0},
		Metadata: store.MemoryMetadata{
			UserID:         "u1",
			ConversationID: "c1",
			Role:           store.RoleUser,
			Timestamp:      time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		},
	}
	_, err := d.UpsertMemoryEntry(ctx, original)
	require.NoError(t, err)

	// A replacement vector of the wrong dimension is rejected by the
	// vector column, after the old row was already deleted.
	replacement := original.Clone()
	replacement.Content = "broken replacement"
	replacement.Embedding = []float32{1, 0}

	_, err = d.UpdateMemoryEntry(ctx, replacement)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restored")

	got, err := d.GetMemoryEntry(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got, "previous row must have been restored")
	assert.Equal(t, "keep me", got.Content)
	assert.Equal(t, []float32{1, 0, 0, 0}, got.Embedding)
}
