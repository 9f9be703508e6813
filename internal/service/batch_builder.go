package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"quiz-forge/internal/config"
	"quiz-forge/internal/domain"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const historyEntryChars = 60

// errJobNotProcessing aborts a store update when the job has left the processing state.
var errJobNotProcessing = errors.New("job is no longer processing")

// batchPlan is the work requested from one batch.
type batchPlan struct {
	size      int
	openCount int
	mcCount   int
	types     []domain.QuestionType
	topics    []string
}

// batchCandidate is one raw record from the model together with the sources of the context
// it was generated from.
type batchCandidate struct {
	raw     gjson.Result
	sources []string
}

// generationStrategy produces raw candidates for the batches of one job.
type generationStrategy interface {
	phase() string
	prepare(ctx context.Context) error
	nextPlan(remaining, remainingOpen int) batchPlan
	generate(ctx context.Context, plan batchPlan, history string) ([]batchCandidate, error)
}

// BatchBuilder drives the generation loop of a job: batches run strictly in order, each one
// normalizing, validating and deduplicating its candidates against everything accepted
// before it.
type BatchBuilder struct {
	store       domain.JobStore
	provider    domain.ContextProvider
	architect   *TopicArchitect
	cfg         config.GenerationConfig
	callTimeout time.Duration
	shuffle     func([]domain.ContextFragment)
	logger      *zap.Logger
}

func NewBatchBuilder(
	store domain.JobStore,
	provider domain.ContextProvider,
	architect *TopicArchitect,
	cfg config.GenerationConfig,
	callTimeout time.Duration,
	logger *zap.Logger,
) *BatchBuilder {
	return &BatchBuilder{
		store:       store,
		provider:    provider,
		architect:   architect,
		cfg:         cfg,
		callTimeout: callTimeout,
		shuffle: func(f []domain.ContextFragment) {
			rand.Shuffle(len(f), func(i, j int) { f[i], f[j] = f[j], f[i] })
		},
		logger: logger,
	}
}

// Run generates questions for a processing job until req.NumQuestions are accepted or
// maxConsecutiveFailures batches in a row add nothing. It returns domain.ErrCancelled as soon
// as ctx is cancelled or the job leaves the processing state, and never writes to the job
// after that.
func (b *BatchBuilder) Run(ctx context.Context, jobID string, req domain.QuizRequest, gen domain.TextGenerator) error {
	strategy, err := b.newStrategy(req, gen)
	if err != nil {
		return err
	}
	log := b.logger.With(zap.String("job_id", jobID), zap.String("model", gen.Model()))

	if err := b.setPhase(ctx, jobID, strategy.phase()); err != nil {
		return err
	}
	if err := strategy.prepare(ctx); err != nil {
		return err
	}
	if err := b.setPhase(ctx, jobID, domain.PhaseGenerating); err != nil {
		return err
	}

	openCount, _ := PlanCounts(req.NumQuestions, req.QuestionType)
	remaining, remainingOpen := req.NumQuestions, openCount
	seen := make(map[string]struct{})
	var history []string
	failures, batchNo := 0, 0

	for remaining > 0 && failures < maxConsecutiveFailures {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		batchNo++
		plan := strategy.nextPlan(remaining, remainingOpen)

		accepted, err := b.runBatch(ctx, strategy, plan, req, seen, formatHistory(history))
		if err != nil {
			if isFatal(err) {
				return err
			}
			log.Warn("Batch failed", zap.Int("batch", batchNo), zap.Error(err))
		}
		if len(accepted) > remaining {
			accepted = accepted[:remaining]
		}

		for _, rec := range accepted {
			seen[rec.Question] = struct{}{}
			history = append(history, rec.Question)
		}
		remaining -= len(accepted)
		remainingOpen = OpenQuota(req.QuestionType, remaining, remainingOpen-countOpenRecords(accepted))

		if _, err := b.update(ctx, jobID, func(job *domain.Job) error {
			job.Result = append(job.Result, accepted...)
			job.Progress = len(job.Result)
			return nil
		}); err != nil {
			return err
		}

		if len(accepted) == 0 {
			failures++
			continue
		}
		failures = 0
		log.Debug("Batch accepted questions", zap.Int("batch", batchNo), zap.Int("accepted", len(accepted)), zap.Int("remaining", remaining))
	}

	if remaining > 0 {
		log.Warn("Stopping after consecutive failed batches",
			zap.Int("failures", failures),
			zap.Int("accepted", req.NumQuestions-remaining),
			zap.Int("requested", req.NumQuestions))
	}
	return b.setPhase(ctx, jobID, domain.PhaseFinalizing)
}

func (b *BatchBuilder) runBatch(
	ctx context.Context,
	strategy generationStrategy,
	plan batchPlan,
	req domain.QuizRequest,
	seen map[string]struct{},
	history string,
) ([]domain.QuestionRecord, error) {
	candidates, err := strategy.generate(ctx, plan, history)
	if err != nil {
		return nil, err
	}

	var accepted []domain.QuestionRecord
	inBatch := make(map[string]struct{})
	for _, c := range candidates {
		rec, ok := normalizeCandidate(c.raw, req.QuestionType, req.MaxOptions)
		if !ok {
			continue
		}
		rec.SourceFile = resolveSource(rec.SourceFile, c.sources)
		if err := validateRecord(rec, req.MaxOptions); err != nil {
			b.logger.Debug("Dropping invalid question record", zap.String("question", rec.Question), zap.Error(err))
			continue
		}
		if _, dup := seen[rec.Question]; dup {
			continue
		}
		if _, dup := inBatch[rec.Question]; dup {
			continue
		}
		inBatch[rec.Question] = struct{}{}
		accepted = append(accepted, rec)
	}
	return accepted, nil
}

func (b *BatchBuilder) newStrategy(req domain.QuizRequest, gen domain.TextGenerator) (generationStrategy, error) {
	name := req.Strategy
	if name == "" {
		name = b.cfg.Strategy
	}
	switch name {
	case "", domain.StrategyWindow:
		return &windowStrategy{b: b, req: req, gen: gen}, nil
	case domain.StrategyTopic:
		return &topicStrategy{b: b, req: req, gen: gen}, nil
	}
	return nil, domain.NewInvalidInputError(fmt.Sprintf("unknown generation strategy: %s", name))
}

// update applies fn to the job only while it is processing. The write is detached from ctx so
// that a mirrored snapshot is not cut short.
func (b *BatchBuilder) update(ctx context.Context, jobID string, fn func(job *domain.Job) error) (*domain.Job, error) {
	job, err := b.store.Update(context.WithoutCancel(ctx), jobID, func(job *domain.Job) error {
		if job.Status != domain.JobProcessing {
			return errJobNotProcessing
		}
		return fn(job)
	})
	if errors.Is(err, errJobNotProcessing) {
		return nil, domain.ErrCancelled
	}
	return job, err
}

func (b *BatchBuilder) setPhase(ctx context.Context, jobID, phase string) error {
	_, err := b.update(ctx, jobID, func(job *domain.Job) error {
		job.Phase = phase
		return nil
	})
	return err
}

// complete calls the generator with the per-call timeout.
func (b *BatchBuilder) complete(ctx context.Context, gen domain.TextGenerator, prompt string) (string, error) {
	if err := checkCancelled(ctx); err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	response, err := gen.Complete(callCtx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.ErrCancelled
		}
		return "", domain.NewGenerationServiceError(err)
	}
	return response, nil
}

// retrieve calls the context provider with the per-call timeout.
func (b *BatchBuilder) retrieve(ctx context.Context, query string, k int, diverse bool) ([]domain.ContextFragment, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	fragments, err := b.provider.Retrieve(callCtx, query, k, diverse)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrCancelled
		}
		return nil, err
	}
	return fragments, nil
}

func checkCancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return domain.ErrCancelled
	}
	return nil
}

// isFatal reports errors that end the job instead of failing one batch.
func isFatal(err error) bool {
	return errors.Is(err, domain.ErrCancelled) || domain.HasCode(err, domain.CodeRetrievalUnavailable)
}

func formatHistory(history []string) string {
	if len(history) == 0 {
		return "None"
	}
	recent := history[max(0, len(history)-historyWindow):]
	entries := make([]string, len(recent))
	for i, h := range recent {
		runes := []rune(h)
		if len(runes) > historyEntryChars {
			h = string(runes[:historyEntryChars]) + "..."
		}
		entries[i] = h
	}
	return strings.Join(entries, "; ")
}

func formatFragments(fragments []domain.ContextFragment) string {
	blocks := make([]string, len(fragments))
	for i, f := range fragments {
		source := f.Source
		if source == "" {
			source = domain.SourceUnknown
		}
		blocks[i] = fmt.Sprintf("[File: %s]\n%s", source, f.Text)
	}
	return strings.Join(blocks, "\n\n")
}

func fragmentSources(fragments []domain.ContextFragment) []string {
	sources := make([]string, len(fragments))
	for i, f := range fragments {
		sources[i] = f.Source
	}
	return sources
}
