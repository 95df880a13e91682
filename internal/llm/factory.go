package llm

import (
	"fmt"

	"github.com/scrypster/memento/internal/config"
)

// NewEmbeddingGenerator builds the EmbeddingGenerator named by cfg.Provider
// (spec.md 6: llm_provider / embedding_model configuration keys).
func NewEmbeddingGenerator(cfg config.EmbeddingConfig) (EmbeddingGenerator, error) {
	var gen EmbeddingGenerator
	switch cfg.Provider {
	case "openai":
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		gen = NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   model,
			Timeout: cfg.RequestTimeout,
		})
	case "ollama", "":
		baseURL := cfg.OllamaURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		gen = NewOllamaClient(OllamaConfig{
			BaseURL: baseURL,
			Model:   model,
			Timeout: cfg.RequestTimeout,
		})
	default:
		return nil, fmt.Errorf("llm: unsupported embedding provider %q", cfg.Provider)
	}
	return NewRateLimitedEmbedder(gen, cfg.RateLimitRPS), nil
}
