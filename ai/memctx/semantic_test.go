package memctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hrygo/mnemosyne/store"
)

func TestNewSemanticSearchStrategy(t *testing.T) {
	embedder := new(MockEmbedder)

	t.Run("Default limit", func(t *testing.T) {
		s := NewSemanticSearchStrategy(0, embedder, 0.5)
		assert.Equal(t, 5, s.limit)
		assert.Equal(t, float32(0.5), s.minScore)
	})

	t.Run("Custom limit", func(t *testing.T) {
		s := NewSemanticSearchStrategy(8, embedder, 0)
		assert.Equal(t, 8, s.limit)
	})

	t.Run("Negative limit uses default", func(t *testing.T) {
		s := NewSemanticSearchStrategy(-1, embedder, 0)
		assert.Equal(t, 5, s.limit)
	})
}

func TestSemanticSearchStrategy_StoreKind(t *testing.T) {
	assert.Equal(t, StoreDefault, NewSemanticSearchStrategy(0, new(MockEmbedder), 0).StoreKind())
}

func TestSemanticSearchStrategy_BuildContext(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	scoredHit := func(id, content string, score float32) *store.ScoredMemoryEntry {
		return &store.ScoredMemoryEntry{
			Entry: textEntry(id, store.RoleUser, content, ts),
			Score: score,
		}
	}

	t.Run("Blank query skips the embedding round trip", func(t *testing.T) {
		mockStore := new(MockMemoryStore)
		embedder := new(MockEmbedder)

		s := NewSemanticSearchStrategy(5, embedder, 0)
		result, err := s.BuildContext(ctx, mockStore, &Request{UserID: "u1", Query: "   "})

		assert.NoError(t, err)
		assert.Equal(t, EmptyResult{}, result)
		embedder.AssertExpectations(t)
		mockStore.AssertExpectations(t)
	})

	t.Run("Embedding failure degrades to empty", func(t *testing.T) {
		mockStore := new(MockMemoryStore)
		embedder := new(MockEmbedder)
		embedder.On("Embed", ctx, "what do cats eat?").Return(nil, assert.AnError)

		s := NewSemanticSearchStrategy(5, embedder, 0)
		result, err := s.BuildContext(ctx, mockStore, &Request{UserID: "u1", Query: "what do cats eat?"})

		assert.NoError(t, err)
		assert.Equal(t, EmptyResult{}, result)
		mockStore.AssertNotCalled(t, "SemanticSearch", mock.Anything, mock.Anything)
	})

	t.Run("Passes vector, limit and filters to the store", func(t *testing.T) {
		mockStore := new(MockMemoryStore)
		embedder := new(MockEmbedder)
		vector := []float32{0.1, 0.2, 0.3}
		embedder.On("Embed", ctx, "wireless headphones").Return(vector, nil)

		var gotOpts *store.SemanticSearchOptions
		mockStore.On("SemanticSearch", ctx, mock.Anything).
			Return([]*store.ScoredMemoryEntry{scoredHit("e1", "loves headphones", 0.9)}, nil).
			Run(func(args mock.Arguments) {
				gotOpts = args.Get(1).(*store.SemanticSearchOptions)
			})

		s := NewSemanticSearchStrategy(7, embedder, 0)
		result, err := s.BuildContext(ctx, mockStore, &Request{
			UserID:         "u1",
			ConversationID: "c1",
			Query:          "wireless headphones",
		})

		assert.NoError(t, err)
		assert.IsType(t, MessagesResult{}, result)
		if assert.NotNil(t, gotOpts) {
			assert.Equal(t, vector, gotOpts.Vector)
			assert.Equal(t, 7, gotOpts.Limit)
			if assert.NotNil(t, gotOpts.UserID) {
				assert.Equal(t, "u1", *gotOpts.UserID)
			}
			if assert.NotNil(t, gotOpts.ConversationID) {
				assert.Equal(t, "c1", *gotOpts.ConversationID)
			}
		}
	})

	t.Run("Omits unset filters", func(t *testing.T) {
		mockStore := new(MockMemoryStore)
		embedder := new(MockEmbedder)
		embedder.On("Embed", ctx, "anything").Return([]float32{1, 0}, nil)

		var gotOpts *store.SemanticSearchOptions
		mockStore.On("SemanticSearch", ctx, mock.Anything).
			Return([]*store.ScoredMemoryEntry{}, nil).
			Run(func(args mock.Arguments) {
				gotOpts = args.Get(1).(*store.SemanticSearchOptions)
			})

		s := NewSemanticSearchStrategy(5, embedder, 0)
		_, err := s.BuildContext(ctx, mockStore, &Request{Query: "anything"})

		assert.NoError(t, err)
		if assert.NotNil(t, gotOpts) {
			assert.Nil(t, gotOpts.UserID)
			assert.Nil(t, gotOpts.ConversationID)
		}
	})

	t.Run("Store error propagates", func(t *testing.T) {
		mockStore := new(MockMemoryStore)
		embedder := new(MockEmbedder)
		embedder.On("Embed", ctx, "boom").Return([]float32{1, 0}, nil)
		mockStore.On("SemanticSearch", ctx, mock.Anything).Return(nil, assert.AnError)

		s := NewSemanticSearchStrategy(5, embedder, 0)
		result, err := s.BuildContext(ctx, mockStore, &Request{Query: "boom"})

		assert.Error(t, err)
		assert.Nil(t, result)
	})

	t.Run("Filters hits below min score", func(t *testing.T) {
		mockStore := new(MockMemoryStore)
		embedder := new(MockEmbedder)
		embedder.On("Embed", ctx, "cats").Return([]float32{1, 0}, nil)
		mockStore.On("SemanticSearch", ctx, mock.Anything).Return([]*store.ScoredMemoryEntry{
			scoredHit("e1", "cats love tuna", 0.92),
			scoredHit("e2", "cars need fuel", 0.21),
		}, nil)

		s := NewSemanticSearchStrategy(5, embedder, 0.5)
		result, err := s.BuildContext(ctx, mockStore, &Request{Query: "cats"})

		assert.NoError(t, err)
		messages, ok := result.(MessagesResult)
		assert.True(t, ok)
		assert.Equal(t, CategorySemantic, messages.Category)
		assert.Equal(t, []string{"User: cats love tuna"}, messages.Messages)
	})

	t.Run("Zero min score keeps every hit", func(t *testing.T) {
		mockStore := new(MockMemoryStore)
		embedder := new(MockEmbedder)
		embedder.On("Embed", ctx, "cats").Return([]float32{1, 0}, nil)
		mockStore.On("SemanticSearch", ctx, mock.Anything).Return([]*store.ScoredMemoryEntry{
			scoredHit("e1", "cats love tuna", 0.92),
			scoredHit("e2", "cars need fuel", 0.01),
		}, nil)

		s := NewSemanticSearchStrategy(5, embedder, 0)
		result, err := s.BuildContext(ctx, mockStore, &Request{Query: "cats"})

		assert.NoError(t, err)
		messages, ok := result.(MessagesResult)
		assert.True(t, ok)
		assert.Len(t, messages.Messages, 2)
	})

	t.Run("All hits filtered out", func(t *testing.T) {
		mockStore := new(MockMemoryStore)
		embedder := new(MockEmbedder)
		embedder.On("Embed", ctx, "cats").Return([]float32{1, 0}, nil)
		mockStore.On("SemanticSearch", ctx, mock.Anything).Return([]*store.ScoredMemoryEntry{
			scoredHit("e1", "cars need fuel", 0.1),
		}, nil)

		s := NewSemanticSearchStrategy(5, embedder, 0.8)
		result, err := s.BuildContext(ctx, mockStore, &Request{Query: "cats"})

		assert.NoError(t, err)
		assert.Equal(t, EmptyResult{}, result)
	})
}
