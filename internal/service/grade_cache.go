package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"quiz-forge/internal/cache"
	"quiz-forge/internal/domain"

	"go.uber.org/zap"
)

const GradeCacheExpiration = 24 * time.Hour

// GradeCache remembers grades of identical answers to identical questions, so repeated
// submissions do not call the model again. A nil cache disables it.
type GradeCache struct {
	cache  domain.Cache
	logger *zap.Logger
}

func NewGradeCache(c domain.Cache, logger *zap.Logger) *GradeCache {
	return &GradeCache{cache: c, logger: logger}
}

func (g *GradeCache) Get(ctx context.Context, question, answer string) (*domain.GradeResult, bool) {
	if g == nil || g.cache == nil {
		return nil, false
	}
	key := gradeKey(question, answer)
	data, err := g.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			g.logger.Warn("GradeCache: cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var result domain.GradeResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		g.logger.Warn("GradeCache: failed to unmarshal cached grade", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &result, true
}

func (g *GradeCache) Put(ctx context.Context, question, answer string, result *domain.GradeResult) {
	if g == nil || g.cache == nil || result == nil {
		return
	}
	key := gradeKey(question, answer)
	data, err := json.Marshal(result)
	if err != nil {
		g.logger.Warn("GradeCache: failed to marshal grade", zap.String("key", key), zap.Error(err))
		return
	}
	if err := g.cache.Set(ctx, key, string(data), GradeCacheExpiration); err != nil {
		g.logger.Warn("GradeCache: cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// gradeKey normalizes case and surrounding whitespace before hashing.
func gradeKey(question, answer string) string {
	return cache.GradeKey(hashText(question), hashText(answer))
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(s))))
	return hex.EncodeToString(sum[:16])
}
