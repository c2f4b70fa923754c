// Package memctx assembles conversation context for LLM prompts.
// It orchestrates recent history, semantic retrieval, and mined user
// preferences into a single prompt context.
package memctx

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/mnemosyne/ai/internal/strutil"
)

// Builder assembles a Context by running its strategies in registration
// order against one or two stores.
type Builder struct {
	store       MemoryStore
	recentStore MemoryStore
	strategies  []Strategy

	tokenLimit     int
	userID         string
	conversationID string
	query          string
	systemMessage  string
}

// NewBuilder creates a builder over the primary store.
func NewBuilder(st MemoryStore) *Builder {
	return &Builder{store: st}
}

// WithRecentStore routes recency and preference lookups to a dedicated
// store; semantic lookups keep hitting the primary store. Strategies
// never learn which store they were handed.
func (b *Builder) WithRecentStore(st MemoryStore) *Builder {
	b.recentStore = st
	return b
}

// WithTokenLimit records the caller's token budget. The limit is only
// advisory: Build never truncates content to fit, callers compare via
// Context.ExceedsLimit.
func (b *Builder) WithTokenLimit(limit int) *Builder {
	b.tokenLimit = limit
	return b
}

// WithSystemMessage sets the optional system prompt.
func (b *Builder) WithSystemMessage(message string) *Builder {
	b.systemMessage = message
	return b
}

// WithUser sets the user whose memories are retrieved.
func (b *Builder) WithUser(userID string) *Builder {
	b.userID = userID
	return b
}

// WithConversation sets the conversation whose history is retrieved.
func (b *Builder) WithConversation(conversationID string) *Builder {
	b.conversationID = conversationID
	return b
}

// WithQuery sets the current question used for semantic retrieval.
func (b *Builder) WithQuery(query string) *Builder {
	b.query = query
	return b
}

// AddStrategy appends a strategy; Build runs them strictly in the order
// added.
func (b *Builder) AddStrategy(s Strategy) *Builder {
	b.strategies = append(b.strategies, s)
	return b
}

// TokenLimit returns the configured budget (0 = unlimited).
func (b *Builder) TokenLimit() int {
	return b.tokenLimit
}

// Build runs the registered strategies strictly sequentially and
// assembles the result. Strategy errors abort the build: a failing
// store is worse than an incomplete context. Message results append to
// their category's bucket; preference results overwrite each other, the
// last strategy wins.
func (b *Builder) Build(ctx context.Context) (*Context, error) {
	started := time.Now()
	req := &Request{
		UserID:         b.userID,
		ConversationID: b.conversationID,
		Query:          b.query,
	}

	built := &Context{
		SystemMessage: b.systemMessage,
		Metadata: ContextMetadata{
			UserID:         b.userID,
			ConversationID: b.conversationID,
		},
	}

	for _, strategy := range b.strategies {
		target := b.store
		if b.recentStore != nil && strategy.StoreKind() == StoreRecent {
			target = b.recentStore
		}

		result, err := strategy.BuildContext(ctx, target, req)
		if err != nil {
			return nil, err
		}

		switch r := result.(type) {
		case MessagesResult:
			switch r.Category {
			case CategoryRecent:
				built.RecentMessages = append(built.RecentMessages, r.Messages...)
			case CategorySemantic:
				built.SemanticMessages = append(built.SemanticMessages, r.Messages...)
			}
		case PreferencesResult:
			built.UserPreferences = r.Text
		case EmptyResult:
		}
	}

	built.Metadata.TotalTokens = built.estimateTotalTokens()
	built.Metadata.MessageCount = len(built.RecentMessages) + len(built.SemanticMessages)
	built.Metadata.CreatedAt = time.Now().UTC()

	slog.Debug("context build complete",
		"user_id", b.userID,
		"conversation_id", b.conversationID,
		"query", strutil.Preview(b.query, 30),
		"recent_count", len(built.RecentMessages),
		"semantic_count", len(built.SemanticMessages),
		"total_tokens", built.Metadata.TotalTokens,
		"duration", time.Since(started))

	return built, nil
}
