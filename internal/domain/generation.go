package domain

import "context"

// ContextProvider returns ranked fragments for a query. With diverse set, near-duplicate
// fragments are penalized relative to the ones already selected.
// Implementations return a RETRIEVAL_UNAVAILABLE DomainError when no index is loaded.
type ContextProvider interface {
	Retrieve(ctx context.Context, query string, k int, diverse bool) ([]ContextFragment, error)
}

// TextGenerator is a text completion client bound to one model.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// ModelSpec describes one entry of the model catalog.
type ModelSpec struct {
	Key           string `json:"key"`
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextWindow int    `json:"context_window"`
}

// ModelProvider resolves model keys to generators.
// Bind returns a generator the caller owns for its lifetime; a later Switch does not affect it.
type ModelProvider interface {
	Bind(ctx context.Context, key string) (TextGenerator, ModelSpec, error)
	Switch(ctx context.Context, key string) (ModelSpec, error)
	Active() ModelSpec
	Catalog() []ModelSpec
}
