package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Role identifies who produced a dialogue turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole maps a persisted role tag back to a Role. Unknown tags are an
// error so corrupt rows are caught at decode time instead of leaking into
// formatted context.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAssistant, RoleSystem:
		return r, nil
	default:
		return "", errors.Errorf("unknown role tag %q", s)
	}
}

// Label returns the display form used in formatted context lines.
func (r Role) Label() string {
	switch r {
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return "User"
	}
}

// MemoryEntry is one persisted memory unit: a dialogue turn or note,
// optionally carrying its embedding vector.
type MemoryEntry struct {
	ID        string
	Content   string
	Embedding []float32 // nil when the entry was stored without a vector
	Metadata  MemoryMetadata
}

// MemoryMetadata carries the ownership and bookkeeping fields of an entry.
// Entries meant for conversation-context retrieval must set ConversationID;
// entries meant only for cross-conversation preference mining need UserID.
type MemoryMetadata struct {
	UserID         string
	ConversationID string
	Role           Role
	Timestamp      time.Time // always stored and compared in UTC
	Tokens         *int
	Importance     *float64
}

// Clone returns a deep copy. Backends hand out clones so callers never
// alias store-owned slices or pointers.
func (e *MemoryEntry) Clone() *MemoryEntry {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Embedding != nil {
		clone.Embedding = make([]float32, len(e.Embedding))
		copy(clone.Embedding, e.Embedding)
	}
	if e.Metadata.Tokens != nil {
		tokens := *e.Metadata.Tokens
		clone.Metadata.Tokens = &tokens
	}
	if e.Metadata.Importance != nil {
		importance := *e.Metadata.Importance
		clone.Metadata.Importance = &importance
	}
	return &clone
}

// ScoredMemoryEntry is a semantic search result with its similarity score.
type ScoredMemoryEntry struct {
	Entry *MemoryEntry
	Score float32 // similarity in [0,1], 1 is most similar
}

// SemanticSearchOptions are the options for vector similarity search.
// Both filters are optional; when a backend can push them into the query it
// must return the same set an in-memory filter would.
type SemanticSearchOptions struct {
	Vector         []float32
	Limit          int
	UserID         *string
	ConversationID *string
}

// Validate validates the SemanticSearchOptions.
func (o *SemanticSearchOptions) Validate() error {
	if len(o.Vector) == 0 {
		return errors.Errorf("vector cannot be empty")
	}
	if o.Limit < 0 {
		return errors.Errorf("limit cannot be negative: %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = 10 // Default limit
	}
	if o.Limit > 1000 {
		return errors.Errorf("limit too large (max 1000): %d", o.Limit)
	}
	return nil
}

// UpsertMemoryEntry inserts an entry, or overwrites the stored one when the
// id already exists. There is no uniqueness violation: add is upsert-by-id.
func (s *Store) UpsertMemoryEntry(ctx context.Context, entry *MemoryEntry) (*MemoryEntry, error) {
	return s.driver.UpsertMemoryEntry(ctx, entry)
}

// GetMemoryEntry fetches an entry by id. A missing id is (nil, nil), not an
// error.
func (s *Store) GetMemoryEntry(ctx context.Context, id string) (*MemoryEntry, error) {
	return s.driver.GetMemoryEntry(ctx, id)
}

// UpdateMemoryEntry fully replaces the stored entry with the same id.
// Backends without native update implement this as delete-then-add; see the
// driver contract for the weaker guarantee that implies.
func (s *Store) UpdateMemoryEntry(ctx context.Context, entry *MemoryEntry) (*MemoryEntry, error) {
	return s.driver.UpdateMemoryEntry(ctx, entry)
}

// DeleteMemoryEntry removes an entry by id. Deleting an id that does not
// exist succeeds silently.
func (s *Store) DeleteMemoryEntry(ctx context.Context, id string) error {
	return s.driver.DeleteMemoryEntry(ctx, id)
}

// FindMemoryEntriesByUser returns every entry owned by the user, in
// ascending timestamp order.
func (s *Store) FindMemoryEntriesByUser(ctx context.Context, userID string) ([]*MemoryEntry, error) {
	return s.driver.FindMemoryEntriesByUser(ctx, userID)
}

// FindMemoryEntriesByConversation returns every entry of the conversation,
// in ascending timestamp order.
func (s *Store) FindMemoryEntriesByConversation(ctx context.Context, conversationID string) ([]*MemoryEntry, error) {
	return s.driver.FindMemoryEntriesByConversation(ctx, conversationID)
}

// SemanticSearch performs vector similarity search over stored embeddings.
func (s *Store) SemanticSearch(ctx context.Context, opts *SemanticSearchOptions) ([]*ScoredMemoryEntry, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.driver.SemanticSearch(ctx, opts)
}
