package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"quiz-forge/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mixedRequest(n int) domain.QuizRequest {
	return domain.QuizRequest{
		NumQuestions: n,
		Language:     "English",
		QuestionType: domain.ModeMixed,
		MaxOptions:   4,
	}
}

func TestPipeline_EndToEndWindow(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf", "A.pdf", "A.pdf", "A.pdf", "A.pdf"), uniqueWindowResponder(), domain.StrategyWindow)

	id, err := f.service.Submit(context.Background(), mixedRequest(10))
	require.NoError(t, err)

	job := f.waitTerminal(t, id)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.False(t, job.Partial())
	require.Len(t, job.Result, 10)
	assert.Equal(t, 10, job.Progress)

	texts := map[string]struct{}{}
	open := 0
	for _, q := range job.Result {
		texts[q.Question] = struct{}{}
		assert.Equal(t, "A.pdf", q.SourceFile)
		if q.Type == domain.TypeOpenEnded {
			open++
			assert.Empty(t, q.Options)
		} else {
			assert.LessOrEqual(t, len(q.Options), 4)
			assert.Contains(t, q.Options, q.CorrectAnswer)
		}
	}
	assert.Len(t, texts, 10)
	assert.Equal(t, 2, open)

	assert.Eventually(t, func() bool { return f.archive.saved() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{""}, f.models.bound)
}

func TestPipeline_EndToEndTopic(t *testing.T) {
	topics := []string{"Photosynthesis", "Cell membrane", "Mitochondria", "Osmosis", "Enzymes"}
	f := newPipelineFixture(t, fixedFragments("bio.pdf"), topicResponder(topics), domain.StrategyTopic)

	id, err := f.service.Submit(context.Background(), mixedRequest(10))
	require.NoError(t, err)

	job := f.waitTerminal(t, id)
	assert.Equal(t, domain.JobCompleted, job.Status)
	require.Len(t, job.Result, 10)

	open := 0
	for _, q := range job.Result {
		assert.Equal(t, "bio.pdf", q.SourceFile)
		if q.Type == domain.TypeOpenEnded {
			open++
		}
	}
	assert.Equal(t, 2, open)
	assert.Equal(t, domain.StrategyTopic, job.Strategy)

	// One topic call, then a draft and a refine call for the single batch of 10.
	assert.Equal(t, 3, len(f.gen.Prompts()))
}

func TestPipeline_RepeatedQuestionHitsFailureCap(t *testing.T) {
	same := func(context.Context, int, string) (string, error) {
		return questionsResponse([]questionJSON{mcQuestion("What is the same question?")}), nil
	}
	f := newPipelineFixture(t, fixedFragments("A.pdf"), same, domain.StrategyWindow)

	id, err := f.service.Submit(context.Background(), mixedRequest(10))
	require.NoError(t, err)

	job := f.waitTerminal(t, id)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Less(t, len(job.Result), 10)
	assert.Len(t, job.Result, 1)
	assert.True(t, job.Partial())
	assert.Empty(t, job.Error)
	// One productive batch, then five failed ones.
	assert.Equal(t, 1+maxConsecutiveFailures, len(f.gen.Prompts()))
}

func TestPipeline_MalformedOutputRestoresOpenQuota(t *testing.T) {
	windowed := uniqueWindowResponder()
	respond := func(ctx context.Context, call int, prompt string) (string, error) {
		if call == 1 {
			return "I cannot produce JSON today.", nil
		}
		return windowed(ctx, call, prompt)
	}
	f := newPipelineFixture(t, fixedFragments("A.pdf"), respond, domain.StrategyWindow)

	id, err := f.service.Submit(context.Background(), mixedRequest(10))
	require.NoError(t, err)
	job := f.waitTerminal(t, id)
	require.Equal(t, domain.JobCompleted, job.Status)

	prompts := f.gen.Prompts()
	require.GreaterOrEqual(t, len(prompts), 2)
	assert.Equal(t, 2, promptCount(openCountPattern, prompts[0]))
	assert.Equal(t, 2, promptCount(openCountPattern, prompts[1]), "failed batch must give back its open quota")
	assert.Len(t, job.Result, 10)
}

func TestPipeline_CancelBeforeFirstBatch(t *testing.T) {
	started := make(chan struct{})
	provider := &stubProvider{retrieve: func(ctx context.Context, _ string, _ int, _ bool) ([]domain.ContextFragment, error) {
		close(started)
		<-ctx.Done()
		panic("provider blew up after cancellation")
	}}
	f := newPipelineFixture(t, provider, uniqueWindowResponder(), domain.StrategyWindow)

	id, err := f.service.Submit(context.Background(), mixedRequest(10))
	require.NoError(t, err)
	<-started

	job, err := f.service.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, job.Status)

	f.service.wg.Wait()
	final, err := f.service.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, final.Status)
	assert.Empty(t, final.Result)
	assert.Empty(t, final.Error)
	assert.Empty(t, f.gen.Prompts())
}

func TestPipeline_CancelWhilePending(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf"), uniqueWindowResponder(), domain.StrategyWindow)
	// Hold every slot so the job cannot start.
	require.NoError(t, f.service.sem.Acquire(context.Background(), 2))

	id, err := f.service.Submit(context.Background(), mixedRequest(5))
	require.NoError(t, err)
	job, err := f.service.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, job.Status)

	f.service.sem.Release(2)
	f.service.wg.Wait()

	final, err := f.service.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, final.Status)
	assert.Empty(t, final.Result)
	assert.Empty(t, f.gen.Prompts())
}

func TestPipeline_CancelMidRunKeepsAcceptedQuestions(t *testing.T) {
	windowed := uniqueWindowResponder()
	release := make(chan struct{})
	respond := func(ctx context.Context, call int, prompt string) (string, error) {
		if call == 2 {
			close(release)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return windowed(ctx, call, prompt)
	}
	f := newPipelineFixture(t, fixedFragments("A.pdf"), respond, domain.StrategyWindow)

	id, err := f.service.Submit(context.Background(), mixedRequest(10))
	require.NoError(t, err)
	<-release
	_, err = f.service.Cancel(context.Background(), id)
	require.NoError(t, err)
	f.service.wg.Wait()

	job, err := f.service.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, job.Status)
	assert.Len(t, job.Result, 5)
	assert.Equal(t, 2, len(f.gen.Prompts()))
}

func TestPipeline_RetrievalUnavailableFailsJob(t *testing.T) {
	provider := &stubProvider{retrieve: func(context.Context, string, int, bool) ([]domain.ContextFragment, error) {
		return nil, domain.NewRetrievalUnavailableError("No documents are loaded.")
	}}
	f := newPipelineFixture(t, provider, uniqueWindowResponder(), domain.StrategyWindow)

	id, err := f.service.Submit(context.Background(), mixedRequest(5))
	require.NoError(t, err)

	job := f.waitTerminal(t, id)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "No documents are loaded.", job.Error)
	assert.Equal(t, 0, f.archive.saved())
}

func TestPipeline_GenerationTimeoutCountsAsFailedBatch(t *testing.T) {
	slow := func(ctx context.Context, _ int, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f := newPipelineFixture(t, fixedFragments("A.pdf"), slow, domain.StrategyWindow)
	f.service.builder.callTimeout = 5 * time.Millisecond

	id, err := f.service.Submit(context.Background(), mixedRequest(5))
	require.NoError(t, err)

	job := f.waitTerminal(t, id)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Empty(t, job.Result)
	assert.Equal(t, maxConsecutiveFailures, len(f.gen.Prompts()))
}

func TestPipeline_MixedSourcesFallBack(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf", "B.pdf"), uniqueWindowResponder(), domain.StrategyWindow)

	id, err := f.service.Submit(context.Background(), mixedRequest(5))
	require.NoError(t, err)

	job := f.waitTerminal(t, id)
	require.Len(t, job.Result, 5)
	for _, q := range job.Result {
		assert.Equal(t, domain.SourceMultiple, q.SourceFile)
	}
}

func TestPipeline_WindowQueryUsesCustomPrompt(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf"), uniqueWindowResponder(), domain.StrategyWindow)

	req := mixedRequest(3)
	req.CustomPrompt = "focus on enzymes"
	id, err := f.service.Submit(context.Background(), req)
	require.NoError(t, err)
	f.waitTerminal(t, id)

	req.CustomPrompt = "ok"
	id, err = f.service.Submit(context.Background(), req)
	require.NoError(t, err)
	f.waitTerminal(t, id)

	assert.Equal(t, []string{"focus on enzymes", defaultWindowQuery}, f.provider.queries)
}

func TestSubmit_Validation(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf"), uniqueWindowResponder(), domain.StrategyWindow)

	tests := []struct {
		name  string
		req   domain.QuizRequest
		field string
	}{
		{name: "zero questions", req: domain.QuizRequest{NumQuestions: 0}, field: "num_questions"},
		{name: "too many options", req: domain.QuizRequest{NumQuestions: 5, MaxOptions: 20}, field: "max_options"},
		{name: "bad mode", req: domain.QuizRequest{NumQuestions: 5, QuestionType: "essay"}, field: "question_type"},
		{name: "bad strategy", req: domain.QuizRequest{NumQuestions: 5, Strategy: "magic"}, field: "strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Submit(context.Background(), tt.req)
			var verrs domain.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
	assert.Equal(t, 0, f.store.Len())
}

func TestSubmit_ModelUnavailable(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf"), uniqueWindowResponder(), domain.StrategyWindow)
	f.models.bindErr = domain.NewModelUnavailableError("pro", errors.New("connection refused"))

	req := mixedRequest(5)
	req.Model = "eco"
	_, err := f.service.Submit(context.Background(), req)
	assert.True(t, domain.HasCode(err, domain.CodeModelUnavailable))
	assert.Equal(t, 0, f.store.Len())
}

func TestSubmit_BindsRequestedModel(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf"), uniqueWindowResponder(), domain.StrategyWindow)

	req := mixedRequest(2)
	req.Model = "eco"
	id, err := f.service.Submit(context.Background(), req)
	require.NoError(t, err)

	job := f.waitTerminal(t, id)
	assert.Equal(t, "eco", job.Model)
	assert.Equal(t, []string{"eco"}, f.models.bound)
}

func TestPollCancelReap_UnknownJob(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf"), uniqueWindowResponder(), domain.StrategyWindow)
	ctx := context.Background()

	_, err := f.service.Poll(ctx, "nope")
	assert.True(t, domain.HasCode(err, domain.CodeJobNotFound))
	_, err = f.service.Cancel(ctx, "nope")
	assert.True(t, domain.HasCode(err, domain.CodeJobNotFound))
	assert.True(t, domain.HasCode(f.service.Reap(ctx, "nope"), domain.CodeJobNotFound))
}

func TestCancel_FinishedJobIsNoOp(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf"), uniqueWindowResponder(), domain.StrategyWindow)

	id, err := f.service.Submit(context.Background(), mixedRequest(3))
	require.NoError(t, err)
	f.waitTerminal(t, id)

	job, err := f.service.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Len(t, job.Result, 3)

	require.NoError(t, f.service.Reap(context.Background(), id))
	_, err = f.service.Poll(context.Background(), id)
	assert.True(t, domain.HasCode(err, domain.CodeJobNotFound))
}

func TestPipeline_OpenModeProducesOnlyOpenQuestions(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf"), uniqueWindowResponder(), domain.StrategyWindow)

	req := mixedRequest(7)
	req.QuestionType = domain.ModeOpen
	id, err := f.service.Submit(context.Background(), req)
	require.NoError(t, err)

	job := f.waitTerminal(t, id)
	require.Len(t, job.Result, 7)
	for _, q := range job.Result {
		assert.Equal(t, domain.TypeOpenEnded, q.Type)
	}
	for _, p := range f.gen.Prompts() {
		assert.True(t, strings.Contains(p, "- 0 multiple-choice questions"))
	}
}

func TestPipeline_OpenModeShortBatchesStayOpen(t *testing.T) {
	var mu sync.Mutex
	next := 0
	// Never more than three questions per call, whatever the prompt asks for.
	short := func(_ context.Context, _ int, prompt string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		var qs []questionJSON
		for i := 0; i < min(3, promptCount(openCountPattern, prompt)); i++ {
			next++
			qs = append(qs, openQuestion(fmt.Sprintf("Open question number %d?", next)))
		}
		return questionsResponse(qs), nil
	}
	f := newPipelineFixture(t, fixedFragments("A.pdf"), short, domain.StrategyWindow)

	req := mixedRequest(10)
	req.QuestionType = domain.ModeOpen
	id, err := f.service.Submit(context.Background(), req)
	require.NoError(t, err)

	job := f.waitTerminal(t, id)
	require.Equal(t, domain.JobCompleted, job.Status)
	assert.Len(t, job.Result, 10)
	assert.False(t, job.Partial())

	prompts := f.gen.Prompts()
	require.Len(t, prompts, 4)
	for i, want := range []int{5, 5, 4, 1} {
		assert.Equal(t, 0, promptCount(mcCountPattern, prompts[i]), "call %d", i+1)
		assert.Equal(t, want, promptCount(openCountPattern, prompts[i]), "call %d", i+1)
	}
}

func TestShutdown_FailsRunningJob(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	blocking := func(ctx context.Context, _ int, _ string) (string, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return "", ctx.Err()
	}
	f := newPipelineFixture(t, fixedFragments("A.pdf"), blocking, domain.StrategyWindow)

	id, err := f.service.Submit(context.Background(), mixedRequest(5))
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.service.Shutdown(ctx))

	job, err := f.service.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "server shutting down", job.Error)
	assert.Empty(t, job.Phase)
}

func TestShutdown_FailsPendingJob(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf"), uniqueWindowResponder(), domain.StrategyWindow)
	require.NoError(t, f.service.sem.Acquire(context.Background(), 2))

	id, err := f.service.Submit(context.Background(), mixedRequest(3))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.service.Shutdown(ctx))

	job, err := f.service.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Empty(t, job.Result)
}

func TestShutdown_KeepsUserCancellation(t *testing.T) {
	f := newPipelineFixture(t, fixedFragments("A.pdf"), uniqueWindowResponder(), domain.StrategyWindow)
	require.NoError(t, f.service.sem.Acquire(context.Background(), 2))

	id, err := f.service.Submit(context.Background(), mixedRequest(3))
	require.NoError(t, err)
	_, err = f.service.Cancel(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.service.Shutdown(ctx))

	job, err := f.service.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, job.Status)
}
