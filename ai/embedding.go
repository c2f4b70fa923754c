package ai

import (
	"context"
	"time"

	"log/slog"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

// defaultEmbedRPS caps request rate when the config leaves it unset.
const defaultEmbedRPS = 5

// remoteEmbedder talks to any OpenAI-compatible embeddings endpoint
// (siliconflow, openai, ollama and the like). Every request passes
// through a client-side rate limiter sized from EmbeddingConfig.RPS.
type remoteEmbedder struct {
	api     *openai.Client
	limiter *rate.Limiter

	provider string
	model    string
	dim      int
}

// NewEmbeddingService builds the provider-backed embedder.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	rps := cfg.RPS
	if rps <= 0 {
		rps = defaultEmbedRPS
	}

	return &remoteEmbedder{
		api:      openai.NewClientWithConfig(clientConfig),
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		provider: cfg.Provider,
		model:    cfg.Model,
		dim:      cfg.Dimensions,
	}, nil
}

func (e *remoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *remoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}
	return e.request(ctx, texts)
}

func (e *remoteEmbedder) Dimensions() int {
	return e.dim
}

// request performs one embeddings call and validates the response
// shape. Providers occasionally drop entries or change dimensions
// between model revisions; both corrupt stored vectors silently, so
// they are rejected here rather than at query time.
func (e *remoteEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dim,
	})
	if err != nil {
		return nil, NewEmbeddingError(e.provider, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, NewEmbeddingError(e.provider,
			errors.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if e.dim > 0 && len(data.Embedding) != e.dim {
			return nil, NewEmbeddingError(e.provider,
				errors.Errorf("embedding dimension %d, expected %d", len(data.Embedding), e.dim))
		}
		vectors[i] = data.Embedding
	}

	slog.Debug("embedding: batch embedded",
		"provider", e.provider,
		"model", e.model,
		"texts", len(texts),
		"duration", time.Since(started))

	return vectors, nil
}
