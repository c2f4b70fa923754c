package ai

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/ai/metrics"
)

// cacheTypeEmbedding labels embedding cache traffic in metrics.
const cacheTypeEmbedding = "embedding"

// CachedEmbeddingService decorates an EmbeddingService with an
// in-process ristretto cache keyed by exact text. Repeated questions
// and re-built contexts skip the provider round trip.
type CachedEmbeddingService struct {
	inner    EmbeddingService
	cache    *ristretto.Cache
	exporter *metrics.PrometheusExporter
}

var _ EmbeddingService = (*CachedEmbeddingService)(nil)

// NewCachedEmbeddingService wraps inner with a cache holding up to
// maxEntries vectors. The exporter may be nil.
func NewCachedEmbeddingService(inner EmbeddingService, maxEntries int64, exporter *metrics.PrometheusExporter) (*CachedEmbeddingService, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create embedding cache")
	}
	return &CachedEmbeddingService{inner: inner, cache: cache, exporter: exporter}, nil
}

func (s *CachedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := s.lookup(text); ok {
		return vector, nil
	}

	vector, err := s.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.Set(text, append([]float32(nil), vector...), 1)
	return vector, nil
}

// EmbedBatch serves what it can from the cache and embeds the rest in
// one provider call, preserving input order.
func (s *CachedEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return s.inner.EmbedBatch(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vector, ok := s.lookup(text); ok {
			vectors[i] = vector
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	fetched, err := s.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missing) {
		return nil, errors.Errorf("embedding batch returned %d vectors for %d texts", len(fetched), len(missing))
	}

	for i, vector := range fetched {
		vectors[missingIdx[i]] = vector
		s.cache.Set(missing[i], append([]float32(nil), vector...), 1)
	}
	return vectors, nil
}

func (s *CachedEmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

// Close releases the cache. The inner service is not touched.
func (s *CachedEmbeddingService) Close() {
	s.cache.Close()
}

// lookup returns a copy of the cached vector so callers can never
// mutate the cached value.
func (s *CachedEmbeddingService) lookup(text string) ([]float32, bool) {
	value, ok := s.cache.Get(text)
	if !ok {
		if s.exporter != nil {
			s.exporter.RecordCacheMiss(cacheTypeEmbedding)
		}
		return nil, false
	}
	vector, ok := value.([]float32)
	if !ok {
		return nil, false
	}
	if s.exporter != nil {
		s.exporter.RecordCacheHit(cacheTypeEmbedding)
	}
	return append([]float32(nil), vector...), true
}
