package llm

import (
	"fmt"
	"net/http"

	"quiz-forge/internal/config"
	"quiz-forge/internal/domain"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ClientFactory constructs a langchaingo model client for spec.
type ClientFactory func(spec domain.ModelSpec) (llms.Model, error)

// NewClientFactory returns the factory for the configured provider ("ollama" or "openai").
func NewClientFactory(cfg config.LLMConfig) (ClientFactory, error) {
	switch cfg.Provider {
	case "", "ollama":
		if cfg.ServerURL == "" {
			return nil, fmt.Errorf("ollama server URL cannot be empty")
		}
		httpClient := &http.Client{Timeout: cfg.CallTimeout}
		return func(spec domain.ModelSpec) (llms.Model, error) {
			client, err := ollama.New(
				ollama.WithModel(spec.ID),
				ollama.WithServerURL(cfg.ServerURL),
				ollama.WithHTTPClient(httpClient),
				ollama.WithRunnerNumCtx(spec.ContextWindow),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create ollama client for %s: %w", spec.ID, err)
			}
			return client, nil
		}, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai API key cannot be empty")
		}
		return func(spec domain.ModelSpec) (llms.Model, error) {
			opts := []openai.Option{
				openai.WithToken(cfg.OpenAIAPIKey),
				openai.WithModel(spec.ID),
			}
			if cfg.OpenAIBase != "" {
				opts = append(opts, openai.WithBaseURL(cfg.OpenAIBase))
			}
			client, err := openai.New(opts...)
			if err != nil {
				return nil, fmt.Errorf("failed to create openai client for %s: %w", spec.ID, err)
			}
			return client, nil
		}, nil
	}
	return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
}
