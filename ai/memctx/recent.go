package memctx

import (
	"context"

	"github.com/hrygo/mnemosyne/store"
)

const defaultRecentLimit = 10

// RecentMessagesStrategy pulls the tail of a conversation as
// chronological dialogue history.
type RecentMessagesStrategy struct {
	limit int
}

var _ Strategy = (*RecentMessagesStrategy)(nil)

// NewRecentMessagesStrategy creates the strategy. A limit of zero or
// less falls back to the default of 10.
func NewRecentMessagesStrategy(limit int) *RecentMessagesStrategy {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return &RecentMessagesStrategy{limit: limit}
}

func (s *RecentMessagesStrategy) StoreKind() StoreKind { return StoreRecent }

func (s *RecentMessagesStrategy) isStrategy() {}

// BuildContext fetches the conversation history, falling back to the
// user's full history when no conversation is set. Stores return
// entries oldest first, so the most recent limit entries are the tail;
// the kept slice stays in chronological order for direct use as
// dialogue history.
func (s *RecentMessagesStrategy) BuildContext(ctx context.Context, st MemoryStore, req *Request) (Result, error) {
	var (
		entries []*store.MemoryEntry
		err     error
	)
	switch {
	case req.ConversationID != "":
		entries, err = st.FindMemoryEntriesByConversation(ctx, req.ConversationID)
	case req.UserID != "":
		entries, err = st.FindMemoryEntriesByUser(ctx, req.UserID)
	default:
		return EmptyResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return EmptyResult{}, nil
	}

	if len(entries) > s.limit {
		entries = entries[len(entries)-s.limit:]
	}

	messages := make([]string, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, formatMemoryEntry(entry))
	}
	return MessagesResult{Category: CategoryRecent, Messages: messages}, nil
}
