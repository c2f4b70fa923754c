package store

import (
	"context"
)

// Driver is an interface for store driver.
// It contains all methods a storage backend must implement. Three drivers
// exist: the in-process map (store/db/memory), the relational blob store
// (store/db/sqlite), and the columnar vector-index store (store/db/postgres).
// They are behaviorally interchangeable; the shared conformance suite in
// store/db/drivertest pins the contract.
type Driver interface {
	// UpsertMemoryEntry inserts or overwrites by id.
	UpsertMemoryEntry(ctx context.Context, entry *MemoryEntry) (*MemoryEntry, error)
	// GetMemoryEntry returns (nil, nil) when the id is absent.
	GetMemoryEntry(ctx context.Context, id string) (*MemoryEntry, error)
	// UpdateMemoryEntry fully replaces the entry with the same id.
	UpdateMemoryEntry(ctx context.Context, entry *MemoryEntry) (*MemoryEntry, error)
	// DeleteMemoryEntry is idempotent; missing ids succeed silently.
	DeleteMemoryEntry(ctx context.Context, id string) error
	// FindMemoryEntriesByUser returns the user's entries, ascending by
	// timestamp, ties broken by id.
	FindMemoryEntriesByUser(ctx context.Context, userID string) ([]*MemoryEntry, error)
	// FindMemoryEntriesByConversation returns the conversation's entries,
	// ascending by timestamp, ties broken by id.
	FindMemoryEntriesByConversation(ctx context.Context, conversationID string) ([]*MemoryEntry, error)
	// SemanticSearch returns at most opts.Limit results, scores in [0,1],
	// sorted descending by score.
	SemanticSearch(ctx context.Context, opts *SemanticSearchOptions) ([]*ScoredMemoryEntry, error)

	// Migrate creates or upgrades the backend schema. The in-process driver
	// treats it as a no-op.
	Migrate(ctx context.Context) error
	Close() error
}
