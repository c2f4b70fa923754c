package ai

import (
	"errors"

	"github.com/hrygo/mnemosyne/internal/profile"
)

// Tuning applied to every LLM provider. Overriding them per deployment
// has not been needed; the profile only selects provider and model.
const (
	defaultLLMMaxTokens   = 2048
	defaultLLMTemperature = 0.7
)

// Config carries the provider settings for the AI pipeline, derived
// from the instance profile.
type Config struct {
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Enabled   bool
}

// EmbeddingConfig selects the embedding provider and model.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	RPS        int // client-side rate limit, requests per second
}

// LLMConfig selects the chat completion provider and model.
type LLMConfig struct {
	Provider    string // openai, openrouter, deepseek, siliconflow, ollama
	Model       string // gpt-4o, deepseek-chat, etc.
	APIKey      string
	BaseURL     string
	Timeout     int // request timeout in seconds
	MaxTokens   int
	Temperature float32
}

// NewConfigFromProfile maps the profile's AI settings onto a Config.
// A disabled profile yields an empty config that passes validation.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{Enabled: p.AIEnabled}
	if !cfg.Enabled {
		return cfg
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:   p.EmbeddingProvider,
		Model:      p.EmbeddingModel,
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    p.EmbeddingBaseURL,
		Dimensions: p.EmbeddingDimensions,
		RPS:        p.EmbeddingRPS,
	}

	cfg.LLM = LLMConfig{
		Provider:    p.LLMProvider,
		Model:       p.LLMModel,
		APIKey:      p.LLMAPIKey,
		BaseURL:     p.LLMBaseURL,
		Timeout:     p.LLMTimeout,
		MaxTokens:   defaultLLMMaxTokens,
		Temperature: defaultLLMTemperature,
	}

	return cfg
}

// Validate reports the first missing required setting. A disabled
// config always passes.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := requireProvider("embedding", c.Embedding.Provider, c.Embedding.APIKey); err != nil {
		return err
	}
	return requireProvider("LLM", c.LLM.Provider, c.LLM.APIKey)
}

// requireProvider checks that a provider is named and, unless it is a
// local ollama instance, carries an API key.
func requireProvider(kind, provider, apiKey string) error {
	if provider == "" {
		return errors.New(kind + " provider is required")
	}
	if provider != "ollama" && apiKey == "" {
		return errors.New(kind + " API key is required")
	}
	return nil
}
