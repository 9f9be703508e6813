package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"quiz-forge/internal/domain"

	"go.uber.org/zap"
)

const (
	topicQuery        = "table of contents chapters headings key terms glossary definitions"
	topicRetrievalK   = 20
	topicPreviewChars = 300
	minTopicLength    = 4
)

// fallbackTopics is used whenever topic extraction fails.
var fallbackTopics = []string{
	"Key definitions",
	"Core principles",
	"Main processes and mechanisms",
	"Important relationships between concepts",
	"Practical applications",
	"Common misconceptions",
}

var (
	topicSeparators = regexp.MustCompile(`[,\n;]+`)
	topicBullet     = regexp.MustCompile(`^(?:[-*•]+|\d+[.)]|[A-Za-z][.)])\s+`)
)

// TopicArchitect extracts a pool of specific, quiz-worthy concepts from the loaded corpus.
type TopicArchitect struct {
	provider    domain.ContextProvider
	callTimeout time.Duration
	logger      *zap.Logger
}

func NewTopicArchitect(provider domain.ContextProvider, callTimeout time.Duration, logger *zap.Logger) *TopicArchitect {
	return &TopicArchitect{provider: provider, callTimeout: callTimeout, logger: logger}
}

// ExtractTopics returns at most poolSize unique topics. It never fails: any retrieval or
// generation problem yields the generic fallback list. Only cancellation of ctx is reported.
func (a *TopicArchitect) ExtractTopics(ctx context.Context, gen domain.TextGenerator, poolSize int, language string) ([]string, error) {
	if poolSize <= 0 {
		return []string{}, nil
	}

	fragments, err := a.retrieve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrCancelled
		}
		a.logger.Warn("Topic retrieval failed, using fallback topics", zap.Error(err))
		return fallback(poolSize), nil
	}

	var preview strings.Builder
	for _, f := range fragments {
		text := []rune(f.Text)
		if len(text) > topicPreviewChars {
			text = text[:topicPreviewChars]
		}
		preview.WriteString(string(text))
		preview.WriteString("\n---\n")
	}

	prompt, err := renderPrompt(topicsPrompt, map[string]any{
		"context":   preview.String(),
		"pool_size": poolSize,
		"lang":      language,
	})
	if err != nil {
		return fallback(poolSize), nil
	}

	if ctx.Err() != nil {
		return nil, domain.ErrCancelled
	}
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	response, err := gen.Complete(callCtx, prompt)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrCancelled
		}
		a.logger.Warn("Topic generation failed, using fallback topics", zap.Error(err))
		return fallback(poolSize), nil
	}

	topics := parseTopics(response, poolSize)
	if len(topics) == 0 {
		a.logger.Warn("No usable topics in model response, using fallback topics")
		return fallback(poolSize), nil
	}
	a.logger.Info("Topics extracted", zap.Int("count", len(topics)))
	return topics, nil
}

func (a *TopicArchitect) retrieve(ctx context.Context) ([]domain.ContextFragment, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	return a.provider.Retrieve(callCtx, topicQuery, topicRetrievalK, true)
}

// parseTopics splits a comma/newline separated list into cleaned, unique topics.
func parseTopics(response string, poolSize int) []string {
	response = thinkBlock.ReplaceAllString(response, "")
	seen := make(map[string]struct{})
	var topics []string
	for _, part := range topicSeparators.Split(response, -1) {
		topic := strings.TrimSpace(part)
		topic = topicBullet.ReplaceAllString(topic, "")
		topic = strings.Trim(topic, " \t\"'`*")
		if !usableTopic(topic) {
			continue
		}
		key := strings.ToLower(topic)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		topics = append(topics, topic)
		if len(topics) == poolSize {
			break
		}
	}
	return topics
}

func usableTopic(topic string) bool {
	if len([]rune(topic)) < minTopicLength {
		return false
	}
	if strings.HasSuffix(topic, ":") {
		return false
	}
	lower := strings.ToLower(topic)
	for _, marker := range []string{"here is", "here are"} {
		if strings.HasPrefix(lower, marker) {
			return false
		}
	}
	return true
}

func fallback(poolSize int) []string {
	n := min(poolSize, len(fallbackTopics))
	return append([]string(nil), fallbackTopics[:n]...)
}
