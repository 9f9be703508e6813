package service

import (
	"context"
	"fmt"
	"strings"

	"quiz-forge/internal/domain"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const perTopicFragments = 3

// topicStrategy asks for one question per topic of the extracted pool, using a draft call for
// content and a refine call for strict JSON.
type topicStrategy struct {
	b        *BatchBuilder
	req      domain.QuizRequest
	gen      domain.TextGenerator
	pool     []string
	cursor   int
	position int
}

func (s *topicStrategy) phase() string { return domain.PhaseTopics }

func (s *topicStrategy) prepare(ctx context.Context) error {
	poolSize := s.req.NumQuestions
	if s.b.cfg.TopicPoolSize > 0 {
		poolSize = min(poolSize, s.b.cfg.TopicPoolSize)
	}
	pool, err := s.b.architect.ExtractTopics(ctx, s.gen, poolSize, s.req.Language)
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		pool = fallback(len(fallbackTopics))
	}
	s.pool = pool
	return nil
}

func (s *topicStrategy) nextPlan(remaining, remainingOpen int) batchPlan {
	size := min(topicsPerBatch, remaining)
	types := AssignTypes(s.req.QuestionType, s.position, size, remainingOpen)
	topics := AssignTopics(s.pool, s.cursor, size)
	s.position += size
	s.cursor = (s.cursor + size) % len(s.pool)

	openCount := countOpen(types)
	return batchPlan{
		size:      size,
		openCount: openCount,
		mcCount:   size - openCount,
		types:     types,
		topics:    topics,
	}
}

func (s *topicStrategy) generate(ctx context.Context, plan batchPlan, history string) ([]batchCandidate, error) {
	blocks := make([]string, len(plan.topics))
	topicSources := make([][]string, len(plan.topics))
	for i, topic := range plan.topics {
		fragments, err := s.b.retrieve(ctx, topic, perTopicFragments, false)
		if err != nil {
			if isFatal(err) {
				return nil, err
			}
			s.b.logger.Warn("Topic retrieval failed", zap.String("topic", topic), zap.Error(err))
		}
		topicSources[i] = fragmentSources(fragments)
		body := formatFragments(fragments)
		if body == "" {
			body = "(no context found)"
		}
		blocks[i] = fmt.Sprintf("### Topic %d: %s\n%s", i+1, topic, body)
	}

	assignments := formatAssignments(plan)
	draftPrompt, err := renderPrompt(topicDraftPrompt, map[string]any{
		"lang":          s.req.Language,
		"custom_prompt": s.req.CustomPrompt,
		"assignments":   assignments,
		"context":       strings.Join(blocks, "\n\n"),
		"max_options":   s.req.MaxOptions,
		"history":       history,
	})
	if err != nil {
		return nil, err
	}
	draft, err := s.b.complete(ctx, s.gen, draftPrompt)
	if err != nil {
		return nil, err
	}

	refinePrompt, err := renderPrompt(topicRefinePrompt, map[string]any{
		"draft":       draft,
		"assignments": assignments,
		"max_options": s.req.MaxOptions,
		"lang":        s.req.Language,
	})
	if err != nil {
		return nil, err
	}
	refined, err := s.b.complete(ctx, s.gen, refinePrompt)
	if err != nil {
		return nil, err
	}

	records, err := parseQuestionList(refined)
	if err != nil {
		return nil, err
	}
	var candidates []batchCandidate
	for j, raw := range records {
		idx := j
		if ti := firstField(raw, fieldTopicIndex...); ti.Type == gjson.Number {
			if n := int(ti.Int()); n >= 1 && n <= len(plan.topics) {
				idx = n - 1
			}
		}
		if idx >= len(plan.topics) {
			continue
		}
		candidates = append(candidates, batchCandidate{raw: raw, sources: topicSources[idx]})
	}
	return candidates, nil
}

func formatAssignments(plan batchPlan) string {
	lines := make([]string, len(plan.topics))
	for i, topic := range plan.topics {
		kind := "multiple_choice"
		if i < len(plan.types) && plan.types[i] == domain.TypeOpenEnded {
			kind = "open_ended"
		}
		lines[i] = fmt.Sprintf("%d. %s -> %s", i+1, topic, kind)
	}
	return strings.Join(lines, "\n")
}
