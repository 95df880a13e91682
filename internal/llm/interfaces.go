package llm

import "context"

// EmbeddingGenerator is the interface for generating vector embeddings
// (spec.md 4.3). Returns a float32 slice; the dimension must equal the
// configured model's dimension (invariant I2), checked by callers.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
