package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"quiz-forge/internal/adapter/jobstore"
	"quiz-forge/internal/config"
	"quiz-forge/internal/domain"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- stubProvider ---

type stubProvider struct {
	mu       sync.Mutex
	retrieve func(ctx context.Context, query string, k int, diverse bool) ([]domain.ContextFragment, error)
	queries  []string
}

func (p *stubProvider) Retrieve(ctx context.Context, query string, k int, diverse bool) ([]domain.ContextFragment, error) {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	p.mu.Unlock()
	return p.retrieve(ctx, query, k, diverse)
}

func fixedFragments(sources ...string) *stubProvider {
	return &stubProvider{retrieve: func(_ context.Context, query string, k int, _ bool) ([]domain.ContextFragment, error) {
		out := make([]domain.ContextFragment, len(sources))
		for i, s := range sources {
			out[i] = domain.ContextFragment{Text: fmt.Sprintf("fragment %d about %s", i, query), Source: s}
		}
		return out, nil
	}}
}

// --- stubGenerator ---

type stubGenerator struct {
	mu       sync.Mutex
	respond  func(ctx context.Context, call int, prompt string) (string, error)
	prompts  []string
	calls    int
	modelKey string
}

func (g *stubGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return g.respond(ctx, call, prompt)
}

func (g *stubGenerator) Model() string { return "stub-model" }

func (g *stubGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// --- stubModels ---

type stubModels struct {
	gen     domain.TextGenerator
	bindErr error
	bound   []string
	mu      sync.Mutex
}

func (m *stubModels) Bind(_ context.Context, key string) (domain.TextGenerator, domain.ModelSpec, error) {
	m.mu.Lock()
	m.bound = append(m.bound, key)
	m.mu.Unlock()
	if m.bindErr != nil {
		return nil, domain.ModelSpec{}, m.bindErr
	}
	if key == "" {
		key = "pro"
	}
	return m.gen, domain.ModelSpec{Key: key, ID: "stub-model"}, nil
}

func (m *stubModels) Switch(_ context.Context, key string) (domain.ModelSpec, error) {
	return domain.ModelSpec{Key: key, ID: "stub-model"}, nil
}

func (m *stubModels) Active() domain.ModelSpec { return domain.ModelSpec{Key: "pro", ID: "stub-model"} }

func (m *stubModels) Catalog() []domain.ModelSpec { return []domain.ModelSpec{m.Active()} }

// --- stubArchive ---

type stubArchive struct {
	mu   sync.Mutex
	jobs []*domain.Job
}

func (a *stubArchive) SaveJob(_ context.Context, job *domain.Job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs = append(a.jobs, job)
	return nil
}

func (a *stubArchive) saved() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.jobs)
}

// --- generated responses ---

var (
	mcCountPattern   = regexp.MustCompile(`- (\d+) multiple-choice questions`)
	openCountPattern = regexp.MustCompile(`- (\d+) open-ended questions`)
	assignmentLine   = regexp.MustCompile(`(?m)^(\d+)\. (.+) -> (multiple_choice|open_ended)$`)
)

type questionJSON struct {
	TopicIndex    int      `json:"topic_index,omitempty"`
	Question      string   `json:"question"`
	Type          string   `json:"type"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer"`
	SourceFile    string   `json:"source_file,omitempty"`
}

func mcQuestion(text string) questionJSON {
	return questionJSON{
		Question:      text,
		Type:          "multiple_choice",
		Options:       []string{"A) right", "B) wrong", "C) also wrong", "D) nope"},
		CorrectAnswer: "A) right",
	}
}

func openQuestion(text string) questionJSON {
	return questionJSON{Question: text, Type: "open_ended", CorrectAnswer: "An ideal answer."}
}

func questionsResponse(qs []questionJSON) string {
	raw, _ := json.Marshal(map[string]any{"questions": qs})
	return "```json\n" + string(raw) + "\n```"
}

func promptCount(pattern *regexp.Regexp, prompt string) int {
	m := pattern.FindStringSubmatch(prompt)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// uniqueWindowResponder answers window prompts with exactly the requested mix of new questions.
func uniqueWindowResponder() func(context.Context, int, string) (string, error) {
	var mu sync.Mutex
	next := 0
	return func(_ context.Context, _ int, prompt string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		var qs []questionJSON
		for i := 0; i < promptCount(mcCountPattern, prompt); i++ {
			next++
			qs = append(qs, mcQuestion(fmt.Sprintf("Multiple choice question number %d?", next)))
		}
		for i := 0; i < promptCount(openCountPattern, prompt); i++ {
			next++
			qs = append(qs, openQuestion(fmt.Sprintf("Open question number %d?", next)))
		}
		return questionsResponse(qs), nil
	}
}

// topicResponder serves the topic list, draft and refine calls of the topic strategy.
func topicResponder(topics []string) func(context.Context, int, string) (string, error) {
	var mu sync.Mutex
	next := 0
	return func(_ context.Context, _ int, prompt string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.Contains(prompt, "comma-separated list"):
			return "Here are the concepts:\n" + strings.Join(topics, ", "), nil
		case strings.HasPrefix(prompt, "Convert the draft"):
			var qs []questionJSON
			for _, m := range assignmentLine.FindAllStringSubmatch(prompt, -1) {
				idx, _ := strconv.Atoi(m[1])
				next++
				var q questionJSON
				if m[3] == "open_ended" {
					q = openQuestion(fmt.Sprintf("Explain %s (%d)?", m[2], next))
				} else {
					q = mcQuestion(fmt.Sprintf("Which statement about %s is true (%d)?", m[2], next))
				}
				q.TopicIndex = idx
				qs = append(qs, q)
			}
			return questionsResponse(qs), nil
		default:
			return "draft questions", nil
		}
	}
}

// --- fixture ---

type pipelineFixture struct {
	store    *jobstore.MemoryStore
	provider *stubProvider
	gen      *stubGenerator
	models   *stubModels
	archive  *stubArchive
	service  *QuizJobService
}

func newPipelineFixture(t *testing.T, provider *stubProvider, respond func(context.Context, int, string) (string, error), strategy string) *pipelineFixture {
	t.Helper()
	store := jobstore.NewMemoryStore()
	gen := &stubGenerator{respond: respond}
	models := &stubModels{gen: gen}
	archive := &stubArchive{}
	logger := zap.NewNop()

	architect := NewTopicArchitect(provider, time.Second, logger)
	builder := NewBatchBuilder(store, provider, architect,
		config.GenerationConfig{Strategy: strategy, TopicPoolSize: 30}, time.Second, logger)
	builder.shuffle = func([]domain.ContextFragment) {}

	svc := NewQuizJobService(store, models, builder, archive, config.JobsConfig{MaxConcurrent: 2}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return &pipelineFixture{store: store, provider: provider, gen: gen, models: models, archive: archive, service: svc}
}

func (f *pipelineFixture) waitTerminal(t *testing.T, id string) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = f.service.Poll(context.Background(), id)
		return err == nil && job.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}
