package llm

import "quiz-forge/internal/domain"

// Catalog keys accepted by the model switch.
const (
	KeyEco      = "eco"
	KeyBalanced = "balanced"
	KeyPro      = "pro"
)

// DefaultCatalog maps selector keys to concrete Ollama models. Larger models get larger
// context windows.
func DefaultCatalog() []domain.ModelSpec {
	return []domain.ModelSpec{
		{Key: KeyEco, ID: "llama3.2:1b", Name: "Eco (Llama 3.2 1B)", ContextWindow: 2048},
		{Key: KeyBalanced, ID: "llama3.2:3b", Name: "Balanced (Llama 3.2 3B)", ContextWindow: 4096},
		{Key: KeyPro, ID: "llama3.1", Name: "Pro (Llama 3.1 8B)", ContextWindow: 8192},
	}
}
