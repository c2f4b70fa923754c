// Package telegram implements the Telegram chat transport.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/mnemosyne/ai"
	"github.com/hrygo/mnemosyne/ai/llm"
	"github.com/hrygo/mnemosyne/ai/metrics"
	"github.com/hrygo/mnemosyne/store"
)

const (
	DefaultParseMode = "Markdown"

	// defaultSystemPrompt keeps replies short; the memory context
	// carries the personalization.
	defaultSystemPrompt = "You are a helpful assistant with long-term memory of this conversation. Answer concisely and use the provided context when it is relevant."

	fallbackReply = "Sorry, something went wrong while preparing your answer. Please try again."

	updateTimeoutSeconds = 30

	// telegramMessageLimit is the per-message character cap the Bot API
	// enforces; longer replies must be split.
	telegramMessageLimit = 4096
)

// Config holds configuration for the Telegram bot.
type Config struct {
	BotToken     string
	SystemPrompt string

	// Metric labels for LLM calls. Informational only.
	LLMModel    string
	LLMProvider string

	RecentLimit   int     // recent history messages per context build
	SemanticLimit int     // semantic matches per context build
	MinScore      float32 // semantic score cutoff
	TokenLimit    int     // advisory context budget
}

// Bot wires the Telegram transport to the memory pipeline: every turn
// is persisted as memory entries and every reply is grounded in a
// freshly built context.
type Bot struct {
	bot    *tgbotapi.BotAPI
	config *Config

	store       *store.Store
	recentStore *store.Store // optional fast store for recency lookups
	embedder    ai.EmbeddingService
	llm         llm.Service
	exporter    *metrics.PrometheusExporter

	conversations *conversations
	entries       *entryIndex
}

// NewBot creates the bot. recentStore and exporter may be nil.
func NewBot(config *Config, st *store.Store, recentStore *store.Store, embedder ai.EmbeddingService, llmService llm.Service, exporter *metrics.PrometheusExporter) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaultSystemPrompt
	}

	return &Bot{
		bot:           botAPI,
		config:        config,
		store:         st,
		recentStore:   recentStore,
		embedder:      embedder,
		llm:           llmService,
		exporter:      exporter,
		conversations: newConversations(),
		entries:       newEntryIndex(),
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeoutSeconds
	updates := b.bot.GetUpdatesChan(u)

	slog.Info("telegram: bot started", "username", b.bot.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			slog.Info("telegram: bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		msg := update.Message
		if msg.IsCommand() {
			b.handleCommand(ctx, msg)
			return
		}
		// Media-only updates carry no memory content.
		if strings.TrimSpace(msg.Text) == "" {
			return
		}
		b.handleMessage(ctx, msg)
	case update.EditedMessage != nil:
		b.handleEditedMessage(ctx, update.EditedMessage)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg.Chat.ID, "Hi! I remember our conversations. Ask me anything; /new starts a fresh conversation, /forget erases the current one.")
	case "new":
		id := b.conversations.rotate(msg.Chat.ID)
		slog.Info("telegram: conversation rotated", "chat_id", msg.Chat.ID, "conversation_id", id)
		b.reply(msg.Chat.ID, "Started a fresh conversation.")
	case "forget":
		b.handleForget(ctx, msg)
	default:
		b.reply(msg.Chat.ID, "Unknown command. Try /new or /forget.")
	}
}

// reply sends text to the chat, split into chunks Telegram accepts. A
// chunk Telegram rejects as Markdown is resent as plain text; model
// output is not guaranteed to be well-formed Markdown.
func (b *Bot) reply(chatID int64, text string) {
	for _, chunk := range splitReply(text, telegramMessageLimit) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = DefaultParseMode
		if _, err := b.bot.Send(msg); err != nil {
			slog.Warn("telegram: markdown send failed, retrying as plain text", "chat_id", chatID, "error", err)
			if _, err := b.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
				slog.Error("telegram: send failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

// splitReply breaks text into chunks of at most limit runes, preferring
// a newline break in the second half of the window so paragraphs stay
// together.
func splitReply(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunk := strings.TrimRight(string(runes[:cut]), "\n")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	return chunks
}

func (b *Bot) recordChat(started time.Time, success bool) {
	if b.exporter == nil {
		return
	}
	b.exporter.RecordChatRequest("telegram", time.Since(started), success)
}
