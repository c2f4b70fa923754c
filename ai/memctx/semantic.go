package memctx

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hrygo/mnemosyne/ai/internal/strutil"
	"github.com/hrygo/mnemosyne/store"
)

const defaultSemanticLimit = 5

// SemanticSearchStrategy retrieves entries whose embeddings are close
// to the current query.
type SemanticSearchStrategy struct {
	limit    int
	embedder Embedder
	minScore float32
}

var _ Strategy = (*SemanticSearchStrategy)(nil)

// NewSemanticSearchStrategy creates the strategy. A limit of zero or
// less falls back to the default of 5; a minScore of 0 disables score
// filtering.
func NewSemanticSearchStrategy(limit int, embedder Embedder, minScore float32) *SemanticSearchStrategy {
	if limit <= 0 {
		limit = defaultSemanticLimit
	}
	return &SemanticSearchStrategy{limit: limit, embedder: embedder, minScore: minScore}
}

func (s *SemanticSearchStrategy) StoreKind() StoreKind { return StoreDefault }

func (s *SemanticSearchStrategy) isStrategy() {}

// BuildContext embeds the query and runs a vector search. A blank query
// skips the provider round trip entirely. Embedding failures degrade to
// EmptyResult so one flaky provider call cannot abort the whole build;
// store failures still propagate.
func (s *SemanticSearchStrategy) BuildContext(ctx context.Context, st MemoryStore, req *Request) (Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return EmptyResult{}, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("query embedding failed, skipping semantic retrieval",
			"user_id", req.UserID,
			"conversation_id", req.ConversationID,
			"query", strutil.Preview(query, 30),
			"error", err)
		return EmptyResult{}, nil
	}

	opts := &store.SemanticSearchOptions{Vector: vector, Limit: s.limit}
	if req.UserID != "" {
		opts.UserID = &req.UserID
	}
	if req.ConversationID != "" {
		opts.ConversationID = &req.ConversationID
	}

	scored, err := st.SemanticSearch(ctx, opts)
	if err != nil {
		return nil, err
	}

	messages := make([]string, 0, len(scored))
	for _, hit := range scored {
		if s.minScore > 0 && hit.Score < s.minScore {
			continue
		}
		messages = append(messages, formatMemoryEntry(hit.Entry))
	}
	if len(messages) == 0 {
		return EmptyResult{}, nil
	}
	return MessagesResult{Category: CategorySemantic, Messages: messages}, nil
}
