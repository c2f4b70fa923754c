// Package llm wraps OpenAI-compatible chat completion providers behind a
// small synchronous interface. Streaming is deliberately absent: replies
// are delivered whole to the chat transport.
package llm

import (
	"context"
	"net"
	"net/http"
	"time"

	"log/slog"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// Message is one chat turn handed to the provider.
type Message struct {
	Role    string // system, user or assistant
	Content string
}

// CallStats reports token usage and timing for one completion call.
type CallStats struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	// CachedPromptTokens counts prompt tokens served from the provider's
	// prompt cache. Zero when the provider does not report cache usage.
	CachedPromptTokens int

	Duration time.Duration
}

// Service is the chat surface the rest of the repository consumes.
type Service interface {
	// Chat runs one synchronous completion over the full message list
	// and returns the reply content with its call statistics.
	Chat(ctx context.Context, messages []Message) (string, *CallStats, error)

	// Warmup fires a one-token ping so the first real request skips
	// connection setup. Failures are logged, never returned.
	Warmup(ctx context.Context)
}

// Config selects and tunes the provider.
type Config struct {
	Provider    string // openai, deepseek, siliconflow, openrouter, ollama
	Model       string
	APIKey      string
	BaseURL     string // overrides the provider's default endpoint
	MaxTokens   int
	Temperature float32
	Timeout     int // per-request timeout in seconds; 0 means 120
}

// defaultBaseURLs maps known providers to their OpenAI-compatible
// endpoints. A provider missing here (including plain "openai") uses
// the library default unless Config.BaseURL overrides it, which also
// covers self-hosted gateways.
var defaultBaseURLs = map[string]string{
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"ollama":      "http://localhost:11434/v1",
}

const defaultTimeoutSeconds = 120

type chatClient struct {
	api         *openai.Client
	provider    string
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewService builds a chat Service for the configured provider.
func NewService(cfg *Config) (Service, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm: model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()
	switch {
	case cfg.BaseURL != "":
		clientConfig.BaseURL = cfg.BaseURL
	case defaultBaseURLs[cfg.Provider] != "":
		clientConfig.BaseURL = defaultBaseURLs[cfg.Provider]
	case cfg.Provider != "" && cfg.Provider != "openai":
		slog.Info("llm: unknown provider, using OpenAI-compatible defaults", "provider", cfg.Provider)
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds * time.Second
	}

	return &chatClient{
		api:         openai.NewClientWithConfig(clientConfig),
		provider:    cfg.Provider,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
	}, nil
}

func (c *chatClient) Chat(ctx context.Context, messages []Message) (string, *CallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages:    toOpenAIMessages(messages),
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", nil, errors.New("chat completion returned no choices")
	}

	stats := &CallStats{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Duration:         time.Since(started),
	}
	if details := resp.Usage.PromptTokensDetails; details != nil {
		stats.CachedPromptTokens = details.CachedTokens
	}

	slog.Debug("llm: chat completed",
		"provider", c.provider,
		"model", c.model,
		"messages", len(messages),
		"total_tokens", stats.TotalTokens,
		"cached_prompt_tokens", stats.CachedPromptTokens,
		"duration", stats.Duration)

	return resp.Choices[0].Message.Content, stats, nil
}

// Warmup establishes the TLS session and connection pool entry ahead of
// the first user turn. Best effort only.
func (c *chatClient) Warmup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	started := time.Now()
	_, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: 1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	})
	if err != nil {
		slog.Warn("llm: warmup ping failed, first request may be slower",
			"provider", c.provider,
			"model", c.model,
			"error", err)
		return
	}
	slog.Info("llm: connection warmed up",
		"provider", c.provider,
		"model", c.model,
		"duration", time.Since(started))
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

// newHTTPClient tunes connection reuse for a steady trickle of chat
// requests. The client-level timeout stays off; per-request deadlines
// come from the context.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
