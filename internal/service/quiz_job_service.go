package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quiz-forge/internal/config"
	"quiz-forge/internal/domain"
	"quiz-forge/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultLanguage   = "English"
	defaultMaxOptions = 4
	maxQuestions      = 200
	archiveTimeout    = 30 * time.Second
)

var (
	errAlreadyTerminal = errors.New("job already finished")
	errShuttingDown    = errors.New("server shutting down")
)

// QuizJobService is the entry point of the generation pipeline. Submit returns immediately;
// each job runs on its own goroutine, at most MaxConcurrent at a time.
type QuizJobService struct {
	store   domain.JobStore
	models  domain.ModelProvider
	builder *BatchBuilder
	archive domain.QuizArchive
	sem     *semaphore.Weighted
	logger  *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	baseCtx context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// NewQuizJobService wires the pipeline. archive may be nil.
func NewQuizJobService(
	store domain.JobStore,
	models domain.ModelProvider,
	builder *BatchBuilder,
	archive domain.QuizArchive,
	cfg config.JobsConfig,
	logger *zap.Logger,
) *QuizJobService {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	baseCtx, stopAll := context.WithCancel(context.Background())
	return &QuizJobService{
		store:   store,
		models:  models,
		builder: builder,
		archive: archive,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
		baseCtx: baseCtx,
		stopAll: stopAll,
		now:     time.Now,
		newID:   util.NewULID,
	}
}

// Submit validates req, creates a pending job and schedules it. The job is bound to its
// model here, so later model switches do not affect it.
func (s *QuizJobService) Submit(ctx context.Context, req domain.QuizRequest) (string, error) {
	req, err := s.prepareRequest(req)
	if err != nil {
		return "", err
	}

	gen, spec, err := s.models.Bind(ctx, req.Model)
	if err != nil {
		return "", err
	}
	req.Model = spec.Key

	job := domain.NewJob(s.newID(), req, s.now())
	if err := s.store.Create(ctx, job); err != nil {
		return "", err
	}

	jobCtx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(jobCtx, job.ID, req, gen)

	s.logger.Info("Quiz job submitted",
		zap.String("job_id", job.ID),
		zap.Int("num_questions", req.NumQuestions),
		zap.String("question_type", string(req.QuestionType)),
		zap.String("model", spec.ID),
		zap.String("strategy", req.Strategy))
	return job.ID, nil
}

// Poll returns a snapshot of the job.
func (s *QuizJobService) Poll(ctx context.Context, id string) (*domain.Job, error) {
	return s.store.Get(ctx, id)
}

// Cancel marks a job cancelled and stops its pipeline at the next check point. Cancelling a
// finished job changes nothing.
func (s *QuizJobService) Cancel(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.store.Update(ctx, id, func(job *domain.Job) error {
		if job.Status.IsTerminal() {
			return errAlreadyTerminal
		}
		job.Status = domain.JobCancelled
		job.Phase = ""
		return nil
	})
	if errors.Is(err, errAlreadyTerminal) {
		return s.store.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cancel := s.cancels[id]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.logger.Info("Quiz job cancelled", zap.String("job_id", id), zap.Int("progress", job.Progress))
	return job, nil
}

// Reap removes a job, cancelling it first if it is still running.
func (s *QuizJobService) Reap(ctx context.Context, id string) error {
	if _, err := s.Cancel(ctx, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

// Shutdown cancels all running jobs and waits for their goroutines to return. Jobs it stops
// end as failed so that no snapshot is left pending or processing.
func (s *QuizJobService) Shutdown(ctx context.Context) error {
	s.stopAll()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *QuizJobService) run(ctx context.Context, id string, req domain.QuizRequest, gen domain.TextGenerator) {
	defer s.wg.Done()
	defer s.forget(id)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Quiz job panicked", zap.String("job_id", id), zap.Any("panic", r))
			s.fail(id, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.failOnShutdown(id)
		return
	}
	defer s.sem.Release(1)

	if _, err := s.store.Update(context.Background(), id, func(job *domain.Job) error {
		if !job.Status.CanTransitionTo(domain.JobProcessing) {
			return errAlreadyTerminal
		}
		job.Status = domain.JobProcessing
		return nil
	}); err != nil {
		return
	}

	start := s.now()
	err := s.builder.Run(ctx, id, req, gen)
	switch {
	case err == nil:
		s.complete(id, start)
	case errors.Is(err, domain.ErrCancelled):
		s.logger.Info("Quiz job stopped after cancellation", zap.String("job_id", id))
		s.failOnShutdown(id)
	default:
		s.logger.Error("Quiz job failed", zap.String("job_id", id), zap.Error(err))
		s.fail(id, err)
	}
}

func (s *QuizJobService) complete(id string, start time.Time) {
	job, err := s.store.Update(context.Background(), id, func(job *domain.Job) error {
		if !job.Status.CanTransitionTo(domain.JobCompleted) {
			return errAlreadyTerminal
		}
		job.Status = domain.JobCompleted
		job.Phase = ""
		return nil
	})
	if err != nil {
		return
	}
	s.logger.Info("Quiz job completed",
		zap.String("job_id", id),
		zap.Int("questions", len(job.Result)),
		zap.Int("requested", job.Total),
		zap.Bool("partial", job.Partial()),
		zap.Duration("elapsed", s.now().Sub(start)))

	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := s.archive.SaveJob(ctx, job); err != nil {
		s.logger.Error("Failed to archive quiz job", zap.String("job_id", id), zap.Error(err))
	}
}

// fail records err on the job unless it already reached a terminal state; a cancelled job is
// never turned into a failed one.
func (s *QuizJobService) fail(id string, err error) {
	message := err.Error()
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	_, _ = s.store.Update(context.Background(), id, func(job *domain.Job) error {
		if job.Status.IsTerminal() {
			return errAlreadyTerminal
		}
		job.Status = domain.JobFailed
		job.Phase = ""
		job.Error = message
		return nil
	})
}

// failOnShutdown fails a job whose context was cancelled by Shutdown rather than by Cancel.
func (s *QuizJobService) failOnShutdown(id string) {
	if s.baseCtx.Err() == nil {
		return
	}
	s.fail(id, errShuttingDown)
}

func (s *QuizJobService) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
}

// prepareRequest applies defaults and validates req.
func (s *QuizJobService) prepareRequest(req domain.QuizRequest) (domain.QuizRequest, error) {
	if req.QuestionType == "" {
		req.QuestionType = domain.ModeMixed
	}
	if req.MaxOptions == 0 {
		req.MaxOptions = defaultMaxOptions
	}
	if req.Language == "" {
		req.Language = defaultLanguage
	}
	if req.Strategy == "" {
		req.Strategy = s.builder.cfg.Strategy
	}
	if req.Strategy == "" {
		req.Strategy = domain.StrategyWindow
	}

	var errs domain.ValidationErrors
	if req.NumQuestions < 1 || req.NumQuestions > maxQuestions {
		errs = append(errs, domain.NewOutOfRangeError("num_questions", req.NumQuestions, 1, maxQuestions))
	}
	if req.MaxOptions < 2 || req.MaxOptions > 10 {
		errs = append(errs, domain.NewOutOfRangeError("max_options", req.MaxOptions, 2, 10))
	}
	if !req.QuestionType.Valid() {
		errs = append(errs, domain.NewInvalidChoiceError("question_type", req.QuestionType,
			[]string{string(domain.ModeOpen), string(domain.ModeMultiple), string(domain.ModeMixed)}))
	}
	if req.Strategy != domain.StrategyWindow && req.Strategy != domain.StrategyTopic {
		errs = append(errs, domain.NewInvalidChoiceError("strategy", req.Strategy,
			[]string{domain.StrategyWindow, domain.StrategyTopic}))
	}
	if len(errs) > 0 {
		return req, errs
	}
	return req, nil
}
