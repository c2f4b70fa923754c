package llm

import (
	"context"
	"testing"
	"time"
)

func TestNewService_RequiresModel(t *testing.T) {
	cfg := &Config{
		Provider: "deepseek",
		APIKey:   "test-key",
	}

	_, err := NewService(cfg)
	if err == nil {
		t.Error("NewService() without a model should return error")
	}
}

func TestNewService_TimeoutDefault(t *testing.T) {
	cfg := &Config{
		Provider: "deepseek",
		Model:    "deepseek-chat",
		APIKey:   "test-key",
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	c, ok := svc.(*chatClient)
	if !ok {
		t.Fatal("NewService() did not return *chatClient")
	}
	if c.timeout != defaultTimeoutSeconds*time.Second {
		t.Errorf("timeout = %v, want %v", c.timeout, defaultTimeoutSeconds*time.Second)
	}
}

func TestNewService_CarriesTuning(t *testing.T) {
	cfg := &Config{
		Provider:    "siliconflow",
		Model:       "Qwen/Qwen2.5-7B-Instruct",
		APIKey:      "test-key",
		MaxTokens:   2048,
		Temperature: 0.7,
		Timeout:     30,
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	c, ok := svc.(*chatClient)
	if !ok {
		t.Fatal("NewService() did not return *chatClient")
	}
	if c.model != "Qwen/Qwen2.5-7B-Instruct" {
		t.Errorf("model = %v, want Qwen/Qwen2.5-7B-Instruct", c.model)
	}
	if c.maxTokens != 2048 {
		t.Errorf("maxTokens = %v, want 2048", c.maxTokens)
	}
	if c.temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", c.temperature)
	}
	if c.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", c.timeout)
	}
}

func TestNewService_UnknownProviderFallsBack(t *testing.T) {
	// Self-hosted gateways identify themselves with arbitrary provider
	// names; the base URL carries the routing.
	cfg := &Config{
		Provider: "my-gateway",
		Model:    "local-model",
		APIKey:   "test-key",
		BaseURL:  "http://gateway.internal:9000/v1",
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if svc == nil {
		t.Fatal("NewService() returned nil service")
	}
}

func TestToOpenAIMessages_RoleMapping(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
		{Role: "tool", Content: "unexpected role"},
	}

	out := toOpenAIMessages(messages)
	if len(out) != 4 {
		t.Fatalf("len = %v, want 4", len(out))
	}

	wantRoles := []string{"system", "user", "assistant", "user"}
	for i, want := range wantRoles {
		if out[i].Role != want {
			t.Errorf("out[%d].Role = %v, want %v", i, out[i].Role, want)
		}
		if out[i].Content != messages[i].Content {
			t.Errorf("out[%d].Content = %v, want %v", i, out[i].Content, messages[i].Content)
		}
	}
}

func TestChat_CanceledContext(t *testing.T) {
	cfg := &Config{
		Provider: "deepseek",
		Model:    "deepseek-chat",
		APIKey:   "test-key",
		Timeout:  1,
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, stats, err := svc.Chat(ctx, []Message{{Role: "user", Content: "test"}})
	if err == nil {
		t.Error("Chat() with canceled context should return error")
	}
	if stats != nil {
		t.Errorf("Chat() stats = %v, want nil on error", stats)
	}
}

func TestWarmup_CanceledContextNoPanic(t *testing.T) {
	cfg := &Config{
		Provider: "deepseek",
		Model:    "deepseek-chat",
		APIKey:   "test-key",
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Warmup swallows failures; it must simply return.
	svc.Warmup(ctx)
}
