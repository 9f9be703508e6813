package llm

import (
	"context"
	"errors"
	"fmt"

	"quiz-forge/internal/domain"

	"github.com/tmc/langchaingo/llms"
)

// Generator is a domain.TextGenerator bound to one model client. A job holds on to its
// Generator for its whole lifetime, so a later model switch does not reach it.
type Generator struct {
	client      llms.Model
	spec        domain.ModelSpec
	temperature float64
}

func NewGenerator(client llms.Model, spec domain.ModelSpec, temperature float64) *Generator {
	return &Generator{client: client, spec: spec, temperature: temperature}
}

func (g *Generator) Complete(ctx context.Context, prompt string) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, g.client, prompt, llms.WithTemperature(g.temperature))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("LLM request timed out: %w", err)
		}
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	return response, nil
}

func (g *Generator) Model() string {
	return g.spec.ID
}

var _ domain.TextGenerator = (*Generator)(nil)
