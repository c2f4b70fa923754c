package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
	"github.com/hrygo/mnemosyne/store/db/drivertest"
)

func newTestDriver(t *testing.T) *DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "mnemosyne_test.db")
	d, err := NewDB(&profile.Profile{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, d.Migrate(context.Background()))
	return d.(*DB)
}

func TestDriverConformance(t *testing.T) {
	drivertest.RunDriverConformance(t, drivertest.Options{
		NewDriver: func(t *testing.T) store.Driver {
			return newTestDriver(t)
		},
	})
}

func TestNewDBRequiresDSN(t *testing.T) {
	_, err := NewDB(&profile.Profile{Driver: "sqlite"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn required")
}

func TestIsInitialized(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "mnemosyne_test.db")
	d, err := NewDB(&profile.Profile{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	sqliteDB := d.(*DB)

	initialized, err := sqliteDB.IsInitialized(ctx)
	require.NoError(t, err)
	assert.False(t, initialized, "schema should not exist before Migrate")

	require.NoError(t, sqliteDB.Migrate(ctx))

	initialized, err = sqliteDB.IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)

	require.NoError(t, d.Migrate(ctx))
	require.NoError(t, d.Migrate(ctx))
}

// TestVectorBLOBCodec pins the on-disk embedding encoding: concatenated
// little-endian 4-byte floats.
func TestVectorBLOBCodec(t *testing.T) {
	vec := []float32{0.25, -1, 3.5, 0}

	blob := float32ArrayToBLOB(vec)
	assert.Len(t, blob, len(vec)*4)

	decoded, err := blobToFloat32Array(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestVectorBLOBCodec_InvalidLength(t *testing.T) {
	_, err := blobToFloat32Array([]byte{1, 2, 3, 4, 5, 6, 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a multiple of 4")
}

// TestCorruptRowsSurface writes undecodable rows straight into the table and
// verifies reads report them instead of skipping or repairing.
func TestCorruptRowsSurface(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)

	goodTS := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC).Format(tsFormat)

	tests := []struct {
		name string
		stmt string
		args []any
		read func() error
	}{
		{
			name: "truncated embedding blob",
			stmt: `INSERT INTO memory_entry (id, content, user_id, role, ts, embedding) VALUES (?, ?, ?, ?, ?, ?)`,
			args: []any{"bad-blob", "x", "u1", "user", goodTS, []byte{1, 2, 3, 4, 5, 6, 7}},
			read: func() error {
				_, err := d.GetMemoryEntry(ctx, "bad-blob")
				return err
			},
		},
		{
			name: "unknown role tag",
			stmt: `INSERT INTO memory_entry (id, content, user_id, role, ts) VALUES (?, ?, ?, ?, ?)`,
			args: []any{"bad-role", "x", "u2", "moderator", goodTS},
			read: func() error {
				_, err := d.GetMemoryEntry(ctx, "bad-role")
				return err
			},
		},
		{
			name: "unparseable timestamp",
			stmt: `INSERT INTO memory_entry (id, content, user_id, role, ts) VALUES (?, ?, ?, ?, ?)`,
			args: []any{"bad-ts", "x", "u3", "user", "yesterday"},
			read: func() error {
				_, err := d.GetMemoryEntry(ctx, "bad-ts")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.GetDB().ExecContext(ctx, tt.stmt, tt.args...)
			require.NoError(t, err)

			err = tt.read()
			require.Error(t, err)
			assert.True(t, store.IsCorruptDataError(err), "expected CorruptDataError, got %v", err)
			assert.False(t, store.IsStorageError(err), "corruption must not be reported as an I/O fault")
		})
	}
}

// TestCorruptRowFailsListing verifies a corrupt row poisons the listing that
// touches it rather than being silently dropped from results.
func TestCorruptRowFailsListing(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)

	goodTS := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	_, err := d.UpsertMemoryEntry(ctx, &store.MemoryEntry{
		ID:      "good",
		Content: "fine",
		Metadata: store.MemoryMetadata{
			UserID:    "u1",
			Role:      store.RoleUser,
			Timestamp: goodTS,
		},
	})
	require.NoError(t, err)

	_, err = d.GetDB().ExecContext(ctx,
		`INSERT INTO memory_entry (id, content, user_id, role, ts) VALUES (?, ?, ?, ?, ?)`,
		"bad", "broken", "u1", "ghost", goodTS.Format(tsFormat))
	require.NoError(t, err)

	_, err = d.FindMemoryEntriesByUser(ctx, "u1")
	require.Error(t, err)
	assert.True(t, store.IsCorruptDataError(err))
}

// TestTimestampTextOrdering pins the reason ts is stored as fixed-width UTC
// text: lexicographic order of the rendered strings is chronological order,
// including sub-second fractions.
func TestTimestampTextOrdering(t *testing.T) {
	times := []time.Time{
		time.Date(2025, 6, 1, 10, 0, 0, 999999999, time.UTC),
		time.Date(2025, 6, 1, 10, 0, 1, 0, time.UTC),
		time.Date(2025, 6, 1, 10, 0, 1, 5000, time.UTC),
		time.Date(2025, 6, 1, 10, 0, 10, 0, time.UTC),
	}

	for i := 1; i < len(times); i++ {
		prev, cur := times[i-1].Format(tsFormat), times[i].Format(tsFormat)
		assert.Less(t, prev, cur, "rendered timestamps must sort chronologically")
		assert.Len(t, cur, len(prev), "rendered timestamps must be fixed width")
	}
}
