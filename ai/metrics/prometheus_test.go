package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPrometheusExporter(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	t.Run("RecordChatRequest", func(t *testing.T) {
		exporter.RecordChatRequest("telegram", 100*time.Millisecond, true)
		exporter.RecordChatRequest("telegram", 200*time.Millisecond, true)
		exporter.RecordChatRequest("telegram", 150*time.Millisecond, false)
	})

	t.Run("RecordContextBuild", func(t *testing.T) {
		exporter.RecordContextBuild(50*time.Millisecond, 1200, true)
		exporter.RecordContextBuild(10*time.Millisecond, 0, false)
	})

	t.Run("RecordCache", func(t *testing.T) {
		exporter.RecordCacheHit("embedding")
		exporter.RecordCacheHit("embedding")
		exporter.RecordCacheMiss("embedding")
	})

	t.Run("RecordLLM", func(t *testing.T) {
		exporter.RecordLLMTokens("deepseek-chat", "prompt", 100)
		exporter.RecordLLMTokens("deepseek-chat", "completion", 50)
		exporter.RecordLLMLatency("deepseek-chat", "deepseek", 500*time.Millisecond)
	})
}

func TestPrometheusExporterHandler(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	// Record some metrics
	exporter.RecordChatRequest("telegram", 100*time.Millisecond, true)
	exporter.RecordContextBuild(20*time.Millisecond, 800, true)
	exporter.RecordCacheHit("embedding")
	exporter.RecordLLMTokens("deepseek-chat", "prompt", 100)

	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	w := httptest.NewRecorder()

	exporter.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, "mnemosyne_chat_requests_total") {
		t.Error("expected chat_requests_total metric in output")
	}
	if !strings.Contains(body, "mnemosyne_context_builds_total") {
		t.Error("expected context_builds_total metric in output")
	}
	if !strings.Contains(body, "mnemosyne_ai_cache_hits_total") {
		t.Error("expected cache_hits_total metric in output")
	}
	if !strings.Contains(body, "mnemosyne_ai_llm_tokens_total") {
		t.Error("expected llm_tokens_total metric in output")
	}
}

func TestPrometheusExporterFailuresLabeled(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	exporter.RecordChatRequest("telegram", 100*time.Millisecond, false)

	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	exporter.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `status="error"`) {
		t.Error("expected failed request counted under status=\"error\"")
	}
}

func TestPrometheusExporterExportText(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	// Record some metrics
	exporter.RecordChatRequest("telegram", 100*time.Millisecond, true)
	exporter.RecordCacheHit("embedding")
	exporter.RecordLLMTokens("deepseek-chat", "prompt", 100)

	output, err := exporter.ExportText()
	if err != nil {
		t.Fatalf("ExportText failed: %v", err)
	}

	if !strings.Contains(output, "# HELP") {
		t.Error("expected HELP comment in output")
	}
	if !strings.Contains(output, "# TYPE") {
		t.Error("expected TYPE comment in output")
	}
	if !strings.Contains(output, "mnemosyne_ai_llm_tokens_total") {
		t.Error("expected llm_tokens_total metric in output")
	}
}

func TestPrometheusExporterCustomRegistry(t *testing.T) {
	exporter := NewPrometheusExporter(Config{})
	exporter.RecordChatRequest("telegram", 50*time.Millisecond, true)

	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	w := httptest.NewRecorder()

	exporter.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func BenchmarkPrometheusExporter(b *testing.B) {
	exporter := NewPrometheusExporter(DefaultConfig())

	b.Run("RecordChatRequest", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			exporter.RecordChatRequest("telegram", 100*time.Millisecond, true)
		}
	})

	b.Run("RecordCache", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			exporter.RecordCacheHit("embedding")
		}
	})
}
