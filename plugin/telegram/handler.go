package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/hrygo/mnemosyne/ai/llm"
	"github.com/hrygo/mnemosyne/ai/memctx"
	"github.com/hrygo/mnemosyne/store"
)

// handleMessage runs one full dialogue turn: build context from stored
// memory, persist the question, ask the LLM, persist and send the
// answer.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	started := time.Now()
	userID := strconv.FormatInt(msg.From.ID, 10)
	conversationID := b.conversations.current(msg.Chat.ID)
	question := msg.Text

	// Replies carry their target's text so retrieval sees what the user
	// is reacting to.
	query := question
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.Text != "" {
		query = msg.ReplyToMessage.Text + "\n" + question
	}

	built, err := b.buildContext(ctx, userID, conversationID, query)
	if err != nil {
		slog.Error("telegram: context build failed",
			"user_id", userID,
			"conversation_id", conversationID,
			"error", err)
		b.recordChat(started, false)
		b.reply(msg.Chat.ID, fallbackReply)
		return
	}

	if entryID := b.persistTurn(ctx, userID, conversationID, store.RoleUser, question); entryID != "" {
		b.entries.remember(msg.Chat.ID, msg.MessageID, entryID)
	}

	llmStarted := time.Now()
	answer, stats, err := b.llm.Chat(ctx, toLLMMessages(built.ToMessages(question, true)))
	if err != nil {
		slog.Error("telegram: LLM chat failed", "conversation_id", conversationID, "error", err)
		b.recordChat(started, false)
		b.reply(msg.Chat.ID, fallbackReply)
		return
	}
	if b.exporter != nil {
		b.exporter.RecordLLMLatency(b.config.LLMModel, b.config.LLMProvider, time.Since(llmStarted))
		if stats != nil {
			b.exporter.RecordLLMTokens(b.config.LLMModel, "prompt", stats.PromptTokens)
			b.exporter.RecordLLMTokens(b.config.LLMModel, "completion", stats.CompletionTokens)
		}
	}

	b.persistTurn(ctx, userID, conversationID, store.RoleAssistant, answer)

	b.reply(msg.Chat.ID, answer)
	b.recordChat(started, true)
}

// handleEditedMessage replaces the stored turn for an edited question
// so future retrieval sees the corrected text. The reply already sent
// is left alone.
func (b *Bot) handleEditedMessage(ctx context.Context, msg *tgbotapi.Message) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	entryID, ok := b.entries.lookup(msg.Chat.ID, msg.MessageID)
	if !ok {
		return
	}

	existing, err := b.store.GetMemoryEntry(ctx, entryID)
	if err != nil {
		slog.Error("telegram: failed to load edited turn", "entry_id", entryID, "error", err)
		return
	}
	if existing == nil {
		return
	}

	existing.Content = msg.Text
	tokens := memctx.EstimateTokens(msg.Text)
	existing.Metadata.Tokens = &tokens
	if vector, err := b.embedder.Embed(ctx, msg.Text); err != nil {
		slog.Warn("telegram: embedding failed for edited turn, dropping vector", "entry_id", entryID, "error", err)
		existing.Embedding = nil
	} else {
		existing.Embedding = vector
	}

	if _, err := b.store.UpdateMemoryEntry(ctx, existing); err != nil {
		slog.Error("telegram: failed to update edited turn", "entry_id", entryID, "error", err)
		return
	}
	if b.recentStore != nil {
		if _, err := b.recentStore.UpdateMemoryEntry(ctx, existing); err != nil {
			slog.Warn("telegram: failed to mirror edited turn", "entry_id", entryID, "error", err)
		}
	}
	slog.Debug("telegram: turn updated after edit", "entry_id", entryID)
}

// handleForget deletes every entry of the chat's current conversation
// and rotates to a fresh one.
func (b *Bot) handleForget(ctx context.Context, msg *tgbotapi.Message) {
	conversationID := b.conversations.current(msg.Chat.ID)
	entries, err := b.store.FindMemoryEntriesByConversation(ctx, conversationID)
	if err != nil {
		slog.Error("telegram: forget failed to list entries", "conversation_id", conversationID, "error", err)
		b.reply(msg.Chat.ID, fallbackReply)
		return
	}

	deleted := 0
	for _, entry := range entries {
		if err := b.store.DeleteMemoryEntry(ctx, entry.ID); err != nil {
			slog.Error("telegram: forget failed to delete entry", "entry_id", entry.ID, "error", err)
			continue
		}
		if b.recentStore != nil {
			if err := b.recentStore.DeleteMemoryEntry(ctx, entry.ID); err != nil {
				slog.Warn("telegram: failed to mirror delete", "entry_id", entry.ID, "error", err)
			}
		}
		deleted++
	}

	b.conversations.rotate(msg.Chat.ID)
	slog.Info("telegram: conversation forgotten", "conversation_id", conversationID, "deleted", deleted)
	b.reply(msg.Chat.ID, fmt.Sprintf("Forgot %d messages. We start fresh.", deleted))
}

// persistTurn stores one dialogue turn, embedding its content when the
// provider cooperates. Returns the entry id, or "" when persisting
// failed.
func (b *Bot) persistTurn(ctx context.Context, userID, conversationID string, role store.Role, content string) string {
	entry := &store.MemoryEntry{
		ID:      uuid.NewString(),
		Content: content,
		Metadata: store.MemoryMetadata{
			UserID:         userID,
			ConversationID: conversationID,
			Role:           role,
			Timestamp:      time.Now().UTC(),
		},
	}
	tokens := memctx.EstimateTokens(content)
	entry.Metadata.Tokens = &tokens

	if vector, err := b.embedder.Embed(ctx, content); err != nil {
		// Entries without embeddings still serve recency and preference
		// lookups; semantic search skips them.
		slog.Warn("telegram: embedding failed, storing entry without vector", "entry_id", entry.ID, "error", err)
	} else {
		entry.Embedding = vector
	}

	if _, err := b.store.UpsertMemoryEntry(ctx, entry); err != nil {
		slog.Error("telegram: failed to persist turn", "entry_id", entry.ID, "error", err)
		return ""
	}
	if b.recentStore != nil {
		if _, err := b.recentStore.UpsertMemoryEntry(ctx, entry); err != nil {
			slog.Warn("telegram: failed to mirror turn to recent store", "entry_id", entry.ID, "error", err)
		}
	}
	return entry.ID
}

// buildContext assembles the prompt context for one turn.
func (b *Bot) buildContext(ctx context.Context, userID, conversationID, query string) (*memctx.Context, error) {
	started := time.Now()
	builder := memctx.NewBuilder(b.store).
		WithSystemMessage(b.config.SystemPrompt).
		WithUser(userID).
		WithConversation(conversationID).
		WithQuery(query).
		WithTokenLimit(b.config.TokenLimit).
		AddStrategy(memctx.NewRecentMessagesStrategy(b.config.RecentLimit)).
		AddStrategy(memctx.NewSemanticSearchStrategy(b.config.SemanticLimit, b.embedder, b.config.MinScore)).
		AddStrategy(memctx.NewUserPreferencesStrategy())
	if b.recentStore != nil {
		builder = builder.WithRecentStore(b.recentStore)
	}

	built, err := builder.Build(ctx)
	if b.exporter != nil {
		tokens := 0
		if built != nil {
			tokens = built.Metadata.TotalTokens
		}
		b.exporter.RecordContextBuild(time.Since(started), tokens, err == nil)
	}
	if err != nil {
		return nil, err
	}

	if built.ExceedsLimit(b.config.TokenLimit) {
		// The builder never trims to fit; surfacing the overrun is all
		// we do for now.
		slog.Warn("telegram: context exceeds token budget, sending anyway",
			"total_tokens", built.Metadata.TotalTokens,
			"token_limit", b.config.TokenLimit)
	}
	return built, nil
}

func toLLMMessages(messages []memctx.PromptMessage) []llm.Message {
	out := make([]llm.Message, len(messages))
	for i, m := range messages {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
