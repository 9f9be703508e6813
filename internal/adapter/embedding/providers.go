package embedding

import (
	"fmt"

	"quiz-forge/internal/config"
	"quiz-forge/internal/domain"

	"github.com/tmc/langchaingo/embeddings"
	ollamaLLM "github.com/tmc/langchaingo/llms/ollama"
	openaiLLM "github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const (
	SourceOllama = "ollama"
	SourceOpenAI = "openai"
)

// NewOllamaEmbeddingService creates an embedding service backed by an Ollama server.
func NewOllamaEmbeddingService(serverURL, modelName string, c domain.Cache, cfg config.EmbeddingConfig, logger *zap.Logger) (*CachedEmbeddingService, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("ollama server URL cannot be empty")
	}
	if modelName == "" {
		return nil, fmt.Errorf("ollama model name cannot be empty")
	}

	llm, err := ollamaLLM.New(
		ollamaLLM.WithModel(modelName),
		ollamaLLM.WithServerURL(serverURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create LangchainGo Ollama LLM client for embedder: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create generic embedder from Ollama LLM: %w", err)
	}
	return NewCachedEmbeddingService(embedder, SourceOllama, modelName, c, cfg.CacheTTL, logger)
}

// NewOpenAIEmbeddingService creates an embedding service backed by the OpenAI API.
func NewOpenAIEmbeddingService(apiKey, modelName string, c domain.Cache, cfg config.EmbeddingConfig, logger *zap.Logger) (*CachedEmbeddingService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key cannot be empty")
	}
	if modelName == "" {
		modelName = "text-embedding-3-small"
	}

	llm, err := openaiLLM.New(
		openaiLLM.WithToken(apiKey),
		openaiLLM.WithEmbeddingModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create LangchainGo OpenAI LLM client for embedder: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create generic embedder from OpenAI LLM: %w", err)
	}
	return NewCachedEmbeddingService(embedder, SourceOpenAI, modelName, c, cfg.CacheTTL, logger)
}

// NewService picks the embedding backend named by cfg.Source.
func NewService(cfg config.EmbeddingConfig, c domain.Cache, logger *zap.Logger) (*CachedEmbeddingService, error) {
	switch cfg.Source {
	case "", SourceOllama:
		return NewOllamaEmbeddingService(cfg.Ollama.ServerURL, cfg.Ollama.Model, c, cfg, logger)
	case SourceOpenAI:
		return NewOpenAIEmbeddingService(cfg.OpenAI.APIKey, cfg.OpenAI.Model, c, cfg, logger)
	}
	return nil, fmt.Errorf("unsupported embedding source: %s", cfg.Source)
}
