package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quiz-forge/internal/domain"
)

// MemoryStore is the in-process job table. Every read returns a copy and every write is a
// read-modify-write under the store mutex, so pollers never observe a half-applied update.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return domain.NewInvalidInputError("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return domain.NewInvalidInputError(fmt.Sprintf("job %s already exists", job.ID))
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.NewJobNotFoundError(id)
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(job *domain.Job) error) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.NewJobNotFoundError(id)
	}

	// fn works on a copy; the stored job is replaced only when fn succeeds.
	working := job.Clone()
	if err := fn(working); err != nil {
		return job.Clone(), err
	}
	working.UpdatedAt = s.now()
	s.jobs[id] = working
	return working.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return domain.NewJobNotFoundError(id)
	}
	delete(s.jobs, id)
	return nil
}

// Len returns the number of stored jobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

var _ domain.JobStore = (*MemoryStore)(nil)
