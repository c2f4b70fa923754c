package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the runtime configuration of one instance, assembled from
// flags and MNEMOSYNE_* environment variables.
type Profile struct {
	// LLM settings. Every provider (openai, openrouter, deepseek,
	// siliconflow, ollama) speaks the OpenAI-compatible protocol, so
	// one block covers them all.
	LLMProvider string
	LLMAPIKey   string
	LLMBaseURL  string // empty means the provider's default endpoint
	LLMModel    string // gpt-4o, deepseek-chat, etc.
	LLMTimeout  int    // request timeout in seconds

	// Embedding settings.
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int // must match the vector column on the postgres driver
	EmbeddingRPS        int // embedding API requests per second

	// Chat transport.
	TelegramBotToken string

	// Instance settings.
	Mode      string // demo, dev, or prod
	Addr      string
	Port      int
	Data      string
	Driver    string // memory, sqlite, or postgres
	DSN       string
	Version   string
	AIEnabled bool
}

// llmProviderDefaults fills in endpoint and model when the environment
// names only the provider.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "deepseek/deepseek-chat",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"ollama": {
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and the LLM API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && p.LLMAPIKey != ""
}

// FromEnv loads the AI and transport settings from MNEMOSYNE_*
// environment variables. Instance settings (mode, port, driver, dsn)
// come from flags and viper, not from here.
func (p *Profile) FromEnv() {
	provider := envOr("MNEMOSYNE_LLM_PROVIDER", "openai")
	if _, known := llmProviderDefaults[provider]; !known {
		slog.Warn("unknown LLM provider, using default: openai", "provider", provider)
		provider = "openai"
	}
	defaults := llmProviderDefaults[provider]

	p.LLMProvider = provider
	p.LLMAPIKey = envOr("MNEMOSYNE_LLM_API_KEY", "")
	p.LLMBaseURL = envOr("MNEMOSYNE_LLM_BASE_URL", defaults.BaseURL)
	p.LLMModel = envOr("MNEMOSYNE_LLM_MODEL", defaults.Model)
	p.LLMTimeout = envIntOr("MNEMOSYNE_LLM_TIMEOUT_SECONDS", 120)

	// The AI pipeline switches on as soon as a key is present.
	p.AIEnabled = p.LLMAPIKey != ""

	p.EmbeddingProvider = envOr("MNEMOSYNE_EMBEDDING_PROVIDER", "siliconflow")
	p.EmbeddingModel = envOr("MNEMOSYNE_EMBEDDING_MODEL", "BAAI/bge-m3")
	p.EmbeddingAPIKey = envOr("MNEMOSYNE_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = envOr("MNEMOSYNE_EMBEDDING_BASE_URL", "https://api.siliconflow.cn/v1")
	p.EmbeddingDimensions = envIntOr("MNEMOSYNE_EMBEDDING_DIMENSIONS", 1024)
	p.EmbeddingRPS = envIntOr("MNEMOSYNE_EMBEDDING_RPS", 5)

	p.TelegramBotToken = envOr("MNEMOSYNE_TELEGRAM_BOT_TOKEN", "")
}

// Validate normalizes the instance settings and rejects combinations
// that cannot run. It mutates the profile: mode and driver fall back to
// safe values, and the sqlite DSN is derived from the data directory.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver == "" {
		p.Driver = "memory"
	}
	if p.Driver != "memory" && p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q (expected memory, sqlite, or postgres)", p.Driver)
	}

	if p.EmbeddingDimensions <= 0 {
		p.EmbeddingDimensions = 1024
	}

	// The in-process driver keeps nothing on disk; the data folder only
	// matters for sqlite.
	if p.Driver == "sqlite" {
		if p.Mode == "prod" && p.Data == "" {
			if runtime.GOOS == "windows" {
				p.Data = filepath.Join(os.Getenv("ProgramData"), "mnemosyne")
				if _, err := os.Stat(p.Data); os.IsNotExist(err) {
					if err := os.MkdirAll(p.Data, 0770); err != nil {
						slog.Error("failed to create data directory", "data", p.Data, "error", err)
						return err
					}
				}
			} else {
				p.Data = "/var/opt/mnemosyne"
			}
		}

		dataDir, err := resolveDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check data dir", "data", p.Data, "error", err)
			return err
		}
		p.Data = dataDir

		if p.DSN == "" {
			dbFile := fmt.Sprintf("mnemosyne_%s.db", p.Mode)
			p.DSN = filepath.Join(dataDir, dbFile)
		}
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn required for the postgres driver")
	}

	return nil
}

// resolveDataDir absolutizes the data directory (relative paths anchor
// at the executable, not the working directory) and verifies it exists.
func resolveDataDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		abs, err := filepath.Abs(filepath.Join(filepath.Dir(os.Args[0]), dir))
		if err != nil {
			return "", err
		}
		dir = abs
	}

	dir = strings.TrimRight(dir, "\\/")
	if _, err := os.Stat(dir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dir)
	}
	return dir, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
