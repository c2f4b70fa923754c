// Package memctx assembles conversation context for LLM prompts.
package memctx

import (
	"context"
	"fmt"

	"github.com/hrygo/mnemosyne/store"
)

// MemoryStore defines the minimal store operations the strategies need.
// This follows Interface Segregation Principle (ISP) - only the methods
// we need. Both *store.Store and bare drivers satisfy it, which keeps
// strategy tests free of real database handles.
type MemoryStore interface {
	// FindMemoryEntriesByUser retrieves all entries a user owns, oldest first.
	FindMemoryEntriesByUser(ctx context.Context, userID string) ([]*store.MemoryEntry, error)

	// FindMemoryEntriesByConversation retrieves all entries of a conversation, oldest first.
	FindMemoryEntriesByConversation(ctx context.Context, conversationID string) ([]*store.MemoryEntry, error)

	// SemanticSearch retrieves entries by vector similarity, best first.
	SemanticSearch(ctx context.Context, opts *store.SemanticSearchOptions) ([]*store.ScoredMemoryEntry, error)
}

// Embedder turns text into a vector. The semantic strategy only ever
// needs single-text embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// StoreKind declares which store a strategy wants when the builder is
// configured with a dedicated recent store.
type StoreKind int

const (
	// StoreDefault routes the strategy to the primary store.
	StoreDefault StoreKind = iota
	// StoreRecent routes the strategy to the secondary recent store,
	// when one is configured.
	StoreRecent
)

// Request carries the per-turn inputs shared by all strategies.
// Empty strings mean "not set".
type Request struct {
	UserID         string
	ConversationID string
	Query          string
}

// Strategy retrieves one slice of context from a store. The set is
// closed (recent messages, semantic search, user preferences) and
// sealed via the unexported marker so the builder's result handling
// stays exhaustive.
type Strategy interface {
	// StoreKind selects primary vs recent store under dual-store routing.
	StoreKind() StoreKind

	// BuildContext runs the retrieval. Store failures are returned as-is;
	// only the semantic strategy's embedding round trip degrades to
	// EmptyResult.
	BuildContext(ctx context.Context, st MemoryStore, req *Request) (Result, error)

	isStrategy()
}

// Result is the closed set of strategy outcomes.
type Result interface{ isResult() }

// MessageCategory separates recent-history lines from semantic matches.
type MessageCategory int

const (
	CategoryRecent MessageCategory = iota
	CategorySemantic
)

// MessagesResult carries formatted dialogue lines for one category.
type MessagesResult struct {
	Category MessageCategory
	Messages []string
}

// PreferencesResult carries the rendered user-preferences line.
type PreferencesResult struct {
	Text string
}

// EmptyResult means the strategy had nothing to contribute.
type EmptyResult struct{}

func (MessagesResult) isResult()    {}
func (PreferencesResult) isResult() {}
func (EmptyResult) isResult()       {}

// formatMemoryEntry renders an entry as a single dialogue line.
func formatMemoryEntry(entry *store.MemoryEntry) string {
	return fmt.Sprintf("%s: %s", entry.Metadata.Role.Label(), entry.Content)
}
