// Package drivertest provides the conformance suite every store driver must
// pass. The three backends differ in storage layout and search strategy, but
// they are behaviorally interchangeable; this suite pins the shared contract
// so swapping the driver never changes caller-visible semantics.
package drivertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemosyne/store"
)

// Options configures one conformance run.
type Options struct {
	// NewDriver returns a fresh, migrated, empty driver. It is called once
	// per subtest; register teardown with t.Cleanup. Backends with
	// approximate search must configure themselves so fixture-scale
	// searches are exact.
	NewDriver func(t *testing.T) store.Driver

	// Dim is the fixed vector dimension the backend schema was created
	// with. Zero means the backend accepts vectors of any length, and the
	// dimension-mismatch subtest is skipped. Fixture vectors are sized to
	// Dim (minimum 4).
	Dim int
}

// RunDriverConformance exercises the full driver contract against a backend.
// Backend-specific behavior beyond the contract (journaling, corrupt-row
// reporting, index knobs) belongs in the driver's own tests.
func RunDriverConformance(t *testing.T, opts Options) {
	dim := opts.Dim
	if dim < 4 {
		dim = 4
	}

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// axis builds a unit vector pointing along one dimension; blend mixes
	// two axes so rankings have an unambiguous winner.
	axis := func(i int) []float32 {
		v := make([]float32, dim)
		v[i] = 1
		return v
	}
	blend := func(i, j int, wi, wj float32) []float32 {
		v := make([]float32, dim)
		v[i], v[j] = wi, wj
		return v
	}

	newEntry := func(id, content, userID, conversationID string, role store.Role, ts time.Time, vec []float32) *store.MemoryEntry {
		return &store.MemoryEntry{
			ID:        id,
			Content:   content,
			Embedding: vec,
			Metadata: store.MemoryMetadata{
				UserID:         userID,
				ConversationID: conversationID,
				Role:           role,
				Timestamp:      ts,
			},
		}
	}

	seed := func(t *testing.T, d store.Driver, entries ...*store.MemoryEntry) {
		t.Helper()
		for _, entry := range entries {
			_, err := d.UpsertMemoryEntry(context.Background(), entry)
			require.NoError(t, err)
		}
	}

	entryIDs := func(list []*store.MemoryEntry) []string {
		out := make([]string, 0, len(list))
		for _, e := range list {
			out = append(out, e.ID)
		}
		return out
	}
	scoredIDs := func(list []*store.ScoredMemoryEntry) []string {
		out := make([]string, 0, len(list))
		for _, s := range list {
			out = append(out, s.Entry.ID)
		}
		return out
	}

	t.Run("UpsertAndGet", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		tokens := 12
		importance := 0.8
		entry := newEntry("e1", "hello there", "u1", "c1", store.RoleUser, base, axis(0))
		entry.Metadata.Tokens = &tokens
		entry.Metadata.Importance = &importance

		stored, err := d.UpsertMemoryEntry(ctx, entry)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "e1", stored.ID)

		got, err := d.GetMemoryEntry(ctx, "e1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "hello there", got.Content)
		assert.Equal(t, "u1", got.Metadata.UserID)
		assert.Equal(t, "c1", got.Metadata.ConversationID)
		assert.Equal(t, store.RoleUser, got.Metadata.Role)
		assert.True(t, got.Metadata.Timestamp.Equal(base), "timestamp should round-trip")
		require.NotNil(t, got.Metadata.Tokens)
		assert.Equal(t, 12, *got.Metadata.Tokens)
		require.NotNil(t, got.Metadata.Importance)
		assert.Equal(t, 0.8, *got.Metadata.Importance)
		assert.Equal(t, axis(0), got.Embedding)
	})

	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		got, err := d.GetMemoryEntry(ctx, "never-stored")
		require.NoError(t, err, "a missing id is not an error")
		assert.Nil(t, got)
	})

	t.Run("UpsertOverwritesSameID", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		seed(t, d,
			newEntry("e1", "first version", "u1", "c1", store.RoleUser, base, axis(0)),
			newEntry("e1", "second version", "u1", "c1", store.RoleUser, base.Add(time.Second), axis(1)),
		)

		got, err := d.GetMemoryEntry(ctx, "e1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "second version", got.Content)
		assert.Equal(t, axis(1), got.Embedding)

		list, err := d.FindMemoryEntriesByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, list, 1, "overwrite must not create a second row")
	})

	t.Run("UpdateReplacesWholeEntry", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		tokens := 3
		original := newEntry("e1", "before", "u1", "c1", store.RoleUser, base, axis(0))
		original.Metadata.Tokens = &tokens
		seed(t, d, original)

		replacement := newEntry("e1", "after", "u1", "c1", store.RoleAssistant, base.Add(time.Minute), axis(2))
		updated, err := d.UpdateMemoryEntry(ctx, replacement)
		require.NoError(t, err)
		require.NotNil(t, updated)

		got, err := d.GetMemoryEntry(ctx, "e1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "after", got.Content)
		assert.Equal(t, store.RoleAssistant, got.Metadata.Role)
		assert.Equal(t, axis(2), got.Embedding)
		// Full replace: fields absent from the replacement are cleared,
		// not merged from the previous version.
		assert.Nil(t, got.Metadata.Tokens)
	})

	t.Run("UpdateMissingCreates", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		_, err := d.UpdateMemoryEntry(ctx, newEntry("never-stored", "fresh", "u1", "c1", store.RoleUser, base, nil))
		require.NoError(t, err)

		got, err := d.GetMemoryEntry(ctx, "never-stored")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "fresh", got.Content)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		seed(t, d, newEntry("e1", "to delete", "u1", "c1", store.RoleUser, base, nil))

		require.NoError(t, d.DeleteMemoryEntry(ctx, "e1"))
		require.NoError(t, d.DeleteMemoryEntry(ctx, "e1"), "second delete of the same id must succeed")
		require.NoError(t, d.DeleteMemoryEntry(ctx, "never-stored"), "deleting an unknown id must succeed")

		got, err := d.GetMemoryEntry(ctx, "e1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("FindByUserAscending", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		// Inserted out of chronological order on purpose.
		seed(t, d,
			newEntry("e3", "third", "u1", "c1", store.RoleUser, base.Add(2*time.Second), nil),
			newEntry("e1", "first", "u1", "c1", store.RoleUser, base, nil),
			newEntry("e2", "second", "u1", "c2", store.RoleAssistant, base.Add(time.Second), nil),
			newEntry("x1", "other user", "u2", "c1", store.RoleUser, base, nil),
		)

		list, err := d.FindMemoryEntriesByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"e1", "e2", "e3"}, entryIDs(list))
	})

	t.Run("FindByUserTiesBreakByID", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		seed(t, d,
			newEntry("b", "tie", "u1", "c1", store.RoleUser, base, nil),
			newEntry("a", "tie", "u1", "c1", store.RoleUser, base, nil),
			newEntry("c", "tie", "u1", "c1", store.RoleUser, base, nil),
		)

		list, err := d.FindMemoryEntriesByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, entryIDs(list), "equal timestamps must order by id")
	})

	t.Run("FindByConversationAscending", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		seed(t, d,
			newEntry("e2", "later", "u1", "c1", store.RoleAssistant, base.Add(time.Second), nil),
			newEntry("e1", "earlier", "u2", "c1", store.RoleUser, base, nil),
			newEntry("x1", "other conversation", "u1", "c2", store.RoleUser, base, nil),
		)

		list, err := d.FindMemoryEntriesByConversation(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"e1", "e2"}, entryIDs(list))
	})

	t.Run("FindUnknownOwnerEmpty", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		seed(t, d, newEntry("e1", "something", "u1", "c1", store.RoleUser, base, nil))

		byUser, err := d.FindMemoryEntriesByUser(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, byUser)

		byConversation, err := d.FindMemoryEntriesByConversation(ctx, "nowhere")
		require.NoError(t, err)
		assert.Empty(t, byConversation)
	})

	t.Run("SemanticSearchRanking", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		seed(t, d,
			newEntry("cat", "cat discussion", "u1", "c1", store.RoleUser, base, axis(0)),
			newEntry("dog", "dog discussion", "u1", "c1", store.RoleUser, base.Add(time.Second), axis(1)),
			newEntry("car", "car discussion", "u1", "c1", store.RoleUser, base.Add(2*time.Second), axis(2)),
		)

		// Query vector leans heavily toward the cat axis with a little dog.
		results, err := d.SemanticSearch(ctx, &store.SemanticSearchOptions{
			Vector: blend(0, 1, 0.9, 0.2),
			Limit:  3,
		})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "cat", results[0].Entry.ID, "nearest direction must rank first")

		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i].Score, results[i-1].Score, "scores must be descending")
		}
	})

	t.Run("SemanticSearchLimit", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		entries := make([]*store.MemoryEntry, 0, 4)
		for i := 0; i < 4; i++ {
			entries = append(entries, newEntry(
				string(rune('a'+i)), "entry", "u1", "c1", store.RoleUser,
				base.Add(time.Duration(i)*time.Second), blend(0, 3, 1, float32(i)*0.1),
			))
		}
		seed(t, d, entries...)

		results, err := d.SemanticSearch(ctx, &store.SemanticSearchOptions{Vector: axis(0), Limit: 2})
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("SemanticSearchUserFilter", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		seed(t, d,
			newEntry("mine", "my note", "u1", "c1", store.RoleUser, base, axis(0)),
			newEntry("theirs", "their note", "u2", "c1", store.RoleUser, base, axis(0)),
		)

		userID := "u1"
		results, err := d.SemanticSearch(ctx, &store.SemanticSearchOptions{
			Vector: axis(0),
			Limit:  10,
			UserID: &userID,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"mine"}, scoredIDs(results), "filter must exclude other users even on identical vectors")
	})

	t.Run("SemanticSearchConversationFilter", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		seed(t, d,
			newEntry("here", "in scope", "u1", "c1", store.RoleUser, base, axis(0)),
			newEntry("elsewhere", "out of scope", "u1", "c2", store.RoleUser, base, axis(0)),
		)

		conversationID := "c1"
		results, err := d.SemanticSearch(ctx, &store.SemanticSearchOptions{
			Vector:         axis(0),
			Limit:          10,
			ConversationID: &conversationID,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"here"}, scoredIDs(results))
	})

	t.Run("SemanticSearchSkipsVectorless", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		seed(t, d,
			newEntry("with", "has vector", "u1", "c1", store.RoleUser, base, axis(0)),
			newEntry("without", "no vector", "u1", "c1", store.RoleUser, base, nil),
		)

		results, err := d.SemanticSearch(ctx, &store.SemanticSearchOptions{Vector: axis(0), Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"with"}, scoredIDs(results))

		// The vectorless entry still shows up in chronological retrieval.
		list, err := d.FindMemoryEntriesByConversation(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("SemanticSearchScoresInRange", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		opposite := axis(0)
		for i := range opposite {
			opposite[i] = -opposite[i]
		}
		seed(t, d,
			newEntry("same", "same direction", "u1", "c1", store.RoleUser, base, axis(0)),
			newEntry("anti", "opposite direction", "u1", "c1", store.RoleUser, base, opposite),
		)

		results, err := d.SemanticSearch(ctx, &store.SemanticSearchOptions{Vector: axis(0), Limit: 10})
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, float32(0), "scores below zero must be clamped")
			assert.LessOrEqual(t, r.Score, float32(1))
		}
		assert.InDelta(t, 1.0, float64(results[0].Score), 1e-3, "identical direction scores 1")
	})

	t.Run("StoredEntriesNotAliased", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		tokens := 12
		entry := newEntry("e1", "original", "u1", "c1", store.RoleUser, base, axis(0))
		entry.Metadata.Tokens = &tokens
		seed(t, d, entry)

		// Mutating the caller's value after the call must not reach the
		// stored entry.
		entry.Content = "mutated"
		entry.Embedding[0] = 99
		*entry.Metadata.Tokens = 99

		got, err := d.GetMemoryEntry(ctx, "e1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "original", got.Content)
		assert.Equal(t, float32(1), got.Embedding[0])
		require.NotNil(t, got.Metadata.Tokens)
		assert.Equal(t, 12, *got.Metadata.Tokens)
	})

	t.Run("TimestampsNormalizedToUTC", func(t *testing.T) {
		ctx := context.Background()
		d := opts.NewDriver(t)

		shanghai := time.FixedZone("UTC+8", 8*60*60)
		local := time.Date(2025, 6, 1, 18, 0, 0, 0, shanghai)
		seed(t, d, newEntry("e1", "zoned", "u1", "c1", store.RoleUser, local, nil))

		got, err := d.GetMemoryEntry(ctx, "e1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Metadata.Timestamp.Equal(local), "instant must be preserved")
		assert.Equal(t, time.UTC, got.Metadata.Timestamp.Location(), "stored timestamps come back in UTC")
	})

	if opts.Dim > 0 {
		t.Run("QueryDimensionMismatch", func(t *testing.T) {
			ctx := context.Background()
			d := opts.NewDriver(t)

			wrong := make([]float32, opts.Dim+1)
			wrong[0] = 1
			_, err := d.SemanticSearch(ctx, &store.SemanticSearchOptions{Vector: wrong, Limit: 10})
			require.Error(t, err)
			assert.True(t, store.IsDimensionMismatchError(err), "expected a dimension mismatch, got %v", err)
		})
	}
}
