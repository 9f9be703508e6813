package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"quiz-forge/internal/cache"
	"quiz-forge/internal/domain"

	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CachedEmbeddingService implements domain.EmbeddingService on top of a langchaingo embedder.
// Vectors are gob-encoded into the cache keyed by source, model and text hash; concurrent
// misses for the same text share one embedder call.
type CachedEmbeddingService struct {
	embedder embeddings.Embedder
	source   string
	model    string
	cache    domain.Cache
	ttl      time.Duration
	sfGroup  singleflight.Group
	logger   *zap.Logger
}

// NewCachedEmbeddingService wraps embedder. c may be nil, in which case nothing is cached.
func NewCachedEmbeddingService(embedder embeddings.Embedder, source, model string, c domain.Cache, ttl time.Duration, logger *zap.Logger) (*CachedEmbeddingService, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if c != nil && ttl <= 0 {
		return nil, fmt.Errorf("embedding cache TTL must be positive, got %v", ttl)
	}
	return &CachedEmbeddingService{
		embedder: embedder,
		source:   source,
		model:    model,
		cache:    c,
		ttl:      ttl,
		logger:   logger,
	}, nil
}

// Generate creates an embedding for text, serving it from the cache when possible.
func (s *CachedEmbeddingService) Generate(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("input text cannot be empty for embedding")
	}

	key := cache.EmbeddingKey(s.source, s.model, hashString(text))
	if vec, ok := s.lookup(ctx, key); ok {
		return vec, nil
	}

	res, err, _ := s.sfGroup.Do(key, func() (interface{}, error) {
		vec, err := s.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding using %s: %w", s.source, err)
		}
		if vec == nil {
			return nil, fmt.Errorf("received nil embedding from %s without error", s.source)
		}
		s.store(ctx, key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	if vec, ok := res.([]float32); ok {
		return vec, nil
	}
	return nil, fmt.Errorf("unexpected type from singleflight.Do for %s embedding: %T", s.source, res)
}

// GenerateBatch embeds texts in order. Cached vectors are reused and the misses are sent to
// the embedder in a single EmbedDocuments call.
func (s *CachedEmbeddingService) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int

	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("input text %d cannot be empty for embedding", i)
		}
		keys[i] = cache.EmbeddingKey(s.source, s.model, hashString(text))
		if vec, ok := s.lookup(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings using %s: %w", s.source, err)
	}
	if len(vectors) != len(pending) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", s.source, len(vectors), len(pending))
	}
	for j, i := range missing {
		out[i] = vectors[j]
		s.store(ctx, keys[i], vectors[j])
	}
	return out, nil
}

func (s *CachedEmbeddingService) lookup(ctx context.Context, key string) ([]float32, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.Warn("Failed to read embedding cache", zap.String("cache_key", key), zap.Error(err))
		}
		return nil, false
	}

	var vec []float32
	if err := gob.NewDecoder(bytes.NewReader([]byte(data))).Decode(&vec); err != nil {
		s.logger.Warn("Failed to decode cached embedding", zap.String("cache_key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (s *CachedEmbeddingService) store(ctx context.Context, key string, vec []float32) {
	if s.cache == nil {
		return
	}
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(vec); err != nil {
		s.logger.Warn("Failed to gob encode embedding", zap.String("cache_key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, buffer.String(), s.ttl); err != nil {
		s.logger.Warn("Failed to cache embedding", zap.String("cache_key", key), zap.Error(err))
	}
}

func hashString(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var _ domain.EmbeddingService = (*CachedEmbeddingService)(nil)
