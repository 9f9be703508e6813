package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"quiz-forge/internal/cache"
	"quiz-forge/internal/domain"

	"go.uber.org/zap"
)

// CachedStore mirrors every job snapshot into a domain.Cache (Redis in production).
// The wrapped store stays authoritative for writes; reads fall back to the mirror when the
// job is unknown locally, e.g. after a restart or when polled on another replica.
// Mirror failures are logged and never fail the caller. Writes and their mirrors are
// serialized so Redis never holds an older snapshot than the wrapped store.
type CachedStore struct {
	writeMu sync.Mutex
	inner   domain.JobStore
	cache   domain.Cache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCachedStore wraps inner with a snapshot mirror.
func NewCachedStore(inner domain.JobStore, c domain.Cache, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func (s *CachedStore) Create(ctx context.Context, job *domain.Job) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.inner.Create(ctx, job); err != nil {
		return err
	}
	s.mirror(ctx, job)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.inner.Get(ctx, id)
	if err == nil || !domain.HasCode(err, domain.CodeJobNotFound) {
		return job, err
	}

	data, cacheErr := s.cache.Get(ctx, cache.JobSnapshotKey(id))
	if cacheErr != nil {
		if !errors.Is(cacheErr, domain.ErrCacheMiss) {
			s.logger.Warn("Failed to read job snapshot from cache", zap.String("job_id", id), zap.Error(cacheErr))
		}
		return nil, err
	}

	var snapshot domain.Job
	if jsonErr := json.Unmarshal([]byte(data), &snapshot); jsonErr != nil {
		s.logger.Warn("Discarding unreadable job snapshot", zap.String("job_id", id), zap.Error(jsonErr))
		return nil, err
	}
	return &snapshot, nil
}

func (s *CachedStore) Update(ctx context.Context, id string, fn func(job *domain.Job) error) (*domain.Job, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	job, err := s.inner.Update(ctx, id, fn)
	if err != nil {
		return job, err
	}
	s.mirror(ctx, job)
	return job, nil
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err := s.inner.Delete(ctx, id)
	if cacheErr := s.cache.Delete(ctx, cache.JobSnapshotKey(id)); cacheErr != nil {
		s.logger.Warn("Failed to delete job snapshot", zap.String("job_id", id), zap.Error(cacheErr))
	}
	return err
}

func (s *CachedStore) mirror(ctx context.Context, job *domain.Job) {
	data, err := json.Marshal(job)
	if err != nil {
		s.logger.Warn("Failed to encode job snapshot", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, cache.JobSnapshotKey(job.ID), string(data), s.ttl); err != nil {
		s.logger.Warn("Failed to mirror job snapshot", zap.String("job_id", job.ID), zap.Error(err))
	}
}

var _ domain.JobStore = (*CachedStore)(nil)
