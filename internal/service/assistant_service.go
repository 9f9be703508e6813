package service

import (
	"context"
	"strings"
	"time"

	"quiz-forge/internal/domain"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	chatFragments        = 4
	gradeFallbackMessage = "Evaluation error."
)

// ChatReply is the answer of the study assistant with the files it was grounded on.
type ChatReply struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// AssistantService grades free-text answers, rewrites single questions and answers questions
// about the loaded documents, always with the active model.
type AssistantService struct {
	models      domain.ModelProvider
	provider    domain.ContextProvider
	grades      *GradeCache
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewAssistantService creates the assistant. grades may be nil.
func NewAssistantService(models domain.ModelProvider, provider domain.ContextProvider, grades *GradeCache, callTimeout time.Duration, logger *zap.Logger) *AssistantService {
	return &AssistantService{models: models, provider: provider, grades: grades, callTimeout: callTimeout, logger: logger}
}

// Grade scores answer against the reference. Any model or parse failure yields a zero score
// with the reference as the ideal answer instead of an error.
func (s *AssistantService) Grade(ctx context.Context, question, reference, answer, language string) (*domain.GradeResult, error) {
	fallbackResult := &domain.GradeResult{Score: 0, Feedback: gradeFallbackMessage, IdealAnswer: reference}
	if cached, ok := s.grades.Get(ctx, question, answer); ok {
		return cached, nil
	}

	prompt, err := renderPrompt(gradePrompt, map[string]any{
		"question":  question,
		"reference": reference,
		"answer":    answer,
		"lang":      languageOrDefault(language),
	})
	if err != nil {
		return nil, err
	}

	response, err := s.complete(ctx, prompt)
	if err != nil {
		s.logger.Error("Grading call failed", zap.Error(err))
		return fallbackResult, nil
	}
	doc, err := extractJSONObject(response)
	if err != nil {
		s.logger.Error("Grading response has no JSON", zap.String("response", response), zap.Error(err))
		return fallbackResult, nil
	}

	parsed := gjson.Parse(doc)
	score := firstField(parsed, "score", "punteggio")
	if !score.Exists() {
		s.logger.Error("Grading response has no score", zap.String("response", doc))
		return fallbackResult, nil
	}
	result := &domain.GradeResult{
		Score:       min(max(int(score.Float()+0.5), 0), 100),
		Feedback:    stringField(parsed, "feedback", "explanation"),
		IdealAnswer: stringField(parsed, "ideal_answer", "idealAnswer"),
	}
	if result.IdealAnswer == "" {
		result.IdealAnswer = reference
	}
	s.grades.Put(ctx, question, answer, result)
	return result, nil
}

// Regenerate rewrites one question following instruction.
func (s *AssistantService) Regenerate(ctx context.Context, question, instruction, language string, maxOptions int) (*domain.QuestionRecord, error) {
	if maxOptions <= 0 {
		maxOptions = defaultMaxOptions
	}
	prompt, err := renderPrompt(regeneratePrompt, map[string]any{
		"question":    question,
		"instruction": instruction,
		"lang":        languageOrDefault(language),
	})
	if err != nil {
		return nil, err
	}

	response, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	records, err := parseQuestionList(response)
	if err != nil {
		return nil, err
	}
	for _, raw := range records {
		rec, ok := normalizeCandidate(raw, domain.ModeMixed, maxOptions)
		if !ok {
			continue
		}
		rec.SourceFile = domain.SourceRegenerated
		if err := validateRecord(rec, maxOptions); err != nil {
			continue
		}
		return &rec, nil
	}
	return nil, domain.NewMalformedOutputError("regenerated question is not usable", nil)
}

// Chat answers message from the chatFragments most similar fragments of the loaded documents.
func (s *AssistantService) Chat(ctx context.Context, message, language string) (*ChatReply, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	fragments, err := s.provider.Retrieve(callCtx, message, chatFragments, false)
	cancel()
	if err != nil {
		return nil, err
	}

	prompt, err := renderPrompt(chatPrompt, map[string]any{
		"context":  formatFragments(fragments),
		"question": message,
		"lang":     languageOrDefault(language),
	})
	if err != nil {
		return nil, err
	}
	answer, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	sources := uniqueSources(fragmentSources(fragments))
	if sources == nil {
		sources = []string{}
	}
	return &ChatReply{Answer: strings.TrimSpace(thinkBlock.ReplaceAllString(answer, "")), Sources: sources}, nil
}

func (s *AssistantService) complete(ctx context.Context, prompt string) (string, error) {
	gen, _, err := s.models.Bind(ctx, "")
	if err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	response, err := gen.Complete(callCtx, prompt)
	if err != nil {
		return "", domain.NewGenerationServiceError(err)
	}
	return response, nil
}

func languageOrDefault(language string) string {
	if strings.TrimSpace(language) == "" {
		return defaultLanguage
	}
	return language
}
