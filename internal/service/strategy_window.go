package service

import (
	"context"

	"quiz-forge/internal/domain"
	"quiz-forge/internal/util"

	"go.uber.org/zap"
)

const (
	defaultWindowQuery = "main concepts summary definitions"
	minWindowFragments = 40
)

// windowStrategy retrieves one diverse fragment set for the whole job and slides a window
// over it, one generation call per batch.
type windowStrategy struct {
	b         *BatchBuilder
	req       domain.QuizRequest
	gen       domain.TextGenerator
	fragments []domain.ContextFragment
	cursor    int
	perBatch  int
}

func (s *windowStrategy) phase() string { return domain.PhaseRetrieving }

func (s *windowStrategy) prepare(ctx context.Context) error {
	query := s.req.CustomPrompt
	if len([]rune(query)) <= 2 {
		query = defaultWindowQuery
	}
	k := max(minWindowFragments, 3*s.req.NumQuestions)

	fragments, err := s.b.retrieve(ctx, query, k, true)
	if err != nil {
		return err
	}
	if len(fragments) == 0 {
		return domain.NewRetrievalUnavailableError("No context could be retrieved from the loaded documents.")
	}

	s.b.shuffle(fragments)
	s.fragments = fragments
	s.perBatch = max(2, len(fragments)/util.CeilDiv(s.req.NumQuestions, questionsPerBatch))
	s.b.logger.Debug("Context window prepared",
		zap.Int("fragments", len(fragments)),
		zap.Int("per_batch", s.perBatch))
	return nil
}

func (s *windowStrategy) nextPlan(remaining, remainingOpen int) batchPlan {
	size := min(questionsPerBatch, remaining)
	openCount, mcCount := PlanBatch(size, remainingOpen, remaining-remainingOpen)
	return batchPlan{size: size, openCount: openCount, mcCount: mcCount}
}

// window returns the next slice of fragments, reshuffling and starting over once the set is
// exhausted.
func (s *windowStrategy) window() []domain.ContextFragment {
	if s.cursor >= len(s.fragments) {
		s.b.shuffle(s.fragments)
		s.cursor = 0
	}
	end := min(s.cursor+s.perBatch, len(s.fragments))
	slice := append([]domain.ContextFragment(nil), s.fragments[s.cursor:end]...)
	s.cursor += s.perBatch
	return slice
}

func (s *windowStrategy) generate(ctx context.Context, plan batchPlan, history string) ([]batchCandidate, error) {
	slice := s.window()
	prompt, err := renderPrompt(windowPrompt, map[string]any{
		"lang":          s.req.Language,
		"custom_prompt": s.req.CustomPrompt,
		"context":       formatFragments(slice),
		"num_mc":        plan.mcCount,
		"num_open":      plan.openCount,
		"max_options":   s.req.MaxOptions,
		"history":       history,
	})
	if err != nil {
		return nil, err
	}

	response, err := s.b.complete(ctx, s.gen, prompt)
	if err != nil {
		return nil, err
	}
	records, err := parseQuestionList(response)
	if err != nil {
		return nil, err
	}

	sources := fragmentSources(slice)
	candidates := make([]batchCandidate, len(records))
	for i, raw := range records {
		candidates[i] = batchCandidate{raw: raw, sources: sources}
	}
	return candidates, nil
}
