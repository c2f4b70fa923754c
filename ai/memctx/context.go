// Package memctx assembles conversation context for LLM prompts.
package memctx

import (
	"strings"
	"time"
)

// Context is the assembled prompt context for one dialogue turn.
// It is built fresh on every Builder.Build call and carries no
// persisted identity.
type Context struct {
	SystemMessage    string
	RecentMessages   []string
	SemanticMessages []string
	UserPreferences  string
	Metadata         ContextMetadata
}

// ContextMetadata describes how the context was assembled.
type ContextMetadata struct {
	UserID         string
	ConversationID string
	TotalTokens    int
	MessageCount   int
	CreatedAt      time.Time
}

// PromptMessage is a role-tagged message ready for a chat completion call.
type PromptMessage struct {
	Role    string
	Content string
}

// Prompt roles understood by OpenAI-compatible chat endpoints.
const (
	PromptRoleSystem = "system"
	PromptRoleUser   = "user"
)

// ExceedsLimit reports whether the estimated token total is over limit.
// This is a pure comparison: the builder never drops content to fit, so
// a caller that cares must trim (or rebuild with tighter strategies)
// itself. A limit of zero or less means unlimited.
func (c *Context) ExceedsLimit(limit int) bool {
	return limit > 0 && c.Metadata.TotalTokens > limit
}

// FormatForModel renders the context as one plain-text block in fixed
// order: system line, user preferences line, recent section, semantic
// section. Sections with no content are omitted.
func (c *Context) FormatForModel(includeSystem bool) string {
	var b strings.Builder
	if includeSystem && c.SystemMessage != "" {
		b.WriteString("System: ")
		b.WriteString(c.SystemMessage)
		b.WriteString("\n\n")
	}
	if c.UserPreferences != "" {
		b.WriteString(c.UserPreferences)
		b.WriteString("\n\n")
	}
	if len(c.RecentMessages) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range c.RecentMessages {
			b.WriteString(m)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if len(c.SemanticMessages) > 0 {
		b.WriteString("Relevant context:\n")
		for _, m := range c.SemanticMessages {
			b.WriteString(m)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ToMessages converts the context into a role-tagged sequence: an
// optional system entry, a single consolidated user entry carrying
// preferences plus retrieved history, and the current question as the
// final user entry.
func (c *Context) ToMessages(question string, includeSystem bool) []PromptMessage {
	messages := make([]PromptMessage, 0, 3)
	if includeSystem && c.SystemMessage != "" {
		messages = append(messages, PromptMessage{Role: PromptRoleSystem, Content: c.SystemMessage})
	}
	if block := c.FormatForModel(false); block != "" {
		messages = append(messages, PromptMessage{Role: PromptRoleUser, Content: block})
	}
	messages = append(messages, PromptMessage{Role: PromptRoleUser, Content: question})
	return messages
}

// estimateTotalTokens sums the per-field token estimates. Each field is
// counted once, independent of render order.
func (c *Context) estimateTotalTokens() int {
	total := 0
	if c.SystemMessage != "" {
		total += EstimateTokens(c.SystemMessage)
	}
	for _, m := range c.RecentMessages {
		total += EstimateTokens(m)
	}
	for _, m := range c.SemanticMessages {
		total += EstimateTokens(m)
	}
	if c.UserPreferences != "" {
		total += EstimateTokens(c.UserPreferences)
	}
	return total
}
