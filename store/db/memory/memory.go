// Package memory implements the store driver on an in-process map.
// It is the default backend for demo mode and tests: no files, no schema,
// everything gone on restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
)

// DB is the in-process driver. A single RWMutex guards the map: many
// concurrent readers, one writer, no reader/writer overlap. Entries are
// cloned on the way in and on the way out so callers never alias
// store-owned state.
type DB struct {
	mu      sync.RWMutex
	entries map[string]*store.MemoryEntry
}

// NewDB creates a new in-process driver. The profile is accepted for
// signature parity with the persistent drivers; nothing in it applies here.
func NewDB(_ *profile.Profile) (store.Driver, error) {
	return &DB{
		entries: make(map[string]*store.MemoryEntry),
	}, nil
}

// Migrate is a no-op; the map needs no schema.
func (d *DB) Migrate(ctx context.Context) error {
	return nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	d.entries = make(map[string]*store.MemoryEntry)
	d.mu.Unlock()
	return nil
}

// UpsertMemoryEntry inserts or overwrites by id.
func (d *DB) UpsertMemoryEntry(ctx context.Context, entry *store.MemoryEntry) (*store.MemoryEntry, error) {
	stored := entry.Clone()
	stored.Metadata.Timestamp = stored.Metadata.Timestamp.UTC()

	d.mu.Lock()
	d.entries[stored.ID] = stored
	d.mu.Unlock()

	return stored.Clone(), nil
}

// GetMemoryEntry returns (nil, nil) when the id is absent.
func (d *DB) GetMemoryEntry(ctx context.Context, id string) (*store.MemoryEntry, error) {
	d.mu.RLock()
	entry := d.entries[id]
	d.mu.RUnlock()

	if entry == nil {
		return nil, nil
	}
	return entry.Clone(), nil
}

// UpdateMemoryEntry fully replaces the entry with the same id. On a map,
// replace is assignment: a missing id is created, matching the behavior of
// the delete-then-add backends.
func (d *DB) UpdateMemoryEntry(ctx context.Context, entry *store.MemoryEntry) (*store.MemoryEntry, error) {
	return d.UpsertMemoryEntry(ctx, entry)
}

// DeleteMemoryEntry removes by id; deleting a missing id succeeds silently.
func (d *DB) DeleteMemoryEntry(ctx context.Context, id string) error {
	d.mu.Lock()
	delete(d.entries, id)
	d.mu.Unlock()
	return nil
}

// FindMemoryEntriesByUser returns the user's entries in ascending timestamp
// order, ties broken by id.
func (d *DB) FindMemoryEntriesByUser(ctx context.Context, userID string) ([]*store.MemoryEntry, error) {
	return d.findEntries(func(entry *store.MemoryEntry) bool {
		return entry.Metadata.UserID == userID
	}), nil
}

// FindMemoryEntriesByConversation returns the conversation's entries in
// ascending timestamp order, ties broken by id.
func (d *DB) FindMemoryEntriesByConversation(ctx context.Context, conversationID string) ([]*store.MemoryEntry, error) {
	return d.findEntries(func(entry *store.MemoryEntry) bool {
		return entry.Metadata.ConversationID == conversationID
	}), nil
}

func (d *DB) findEntries(match func(*store.MemoryEntry) bool) []*store.MemoryEntry {
	d.mu.RLock()
	list := []*store.MemoryEntry{}
	for _, entry := range d.entries {
		if match(entry) {
			list = append(list, entry.Clone())
		}
	}
	d.mu.RUnlock()

	sortEntriesAscending(list)
	return list
}

// SemanticSearch is an exact scan: every stored vector is scored against
// the query with cosine similarity, then sorted and truncated.
func (d *DB) SemanticSearch(ctx context.Context, opts *store.SemanticSearchOptions) ([]*store.ScoredMemoryEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	d.mu.RLock()
	candidates := []*store.MemoryEntry{}
	for _, entry := range d.entries {
		if len(entry.Embedding) == 0 {
			continue
		}
		if opts.UserID != nil && entry.Metadata.UserID != *opts.UserID {
			continue
		}
		if opts.ConversationID != nil && entry.Metadata.ConversationID != *opts.ConversationID {
			continue
		}
		candidates = append(candidates, entry.Clone())
	}
	d.mu.RUnlock()

	results := []*store.ScoredMemoryEntry{}
	for _, entry := range candidates {
		// Anti-parallel vectors score negative cosine; reported scores
		// stay in [0,1], so those flatten to zero.
		results = append(results, &store.ScoredMemoryEntry{
			Entry: entry,
			Score: store.ClampScore(store.CosineSimilarity(opts.Vector, entry.Embedding)),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func sortEntriesAscending(list []*store.MemoryEntry) {
	sort.Slice(list, func(i, j int) bool {
		ti, tj := list[i].Metadata.Timestamp, list[j].Metadata.Timestamp
		if ti.Equal(tj) {
			return list[i].ID < list[j].ID
		}
		return ti.Before(tj)
	})
}
