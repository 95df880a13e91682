package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/scrypster/memento/internal/config"
	"github.com/scrypster/memento/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	client := llm.NewOllamaClient(llm.OllamaConfig{BaseURL: srv.URL, Model: "nomic-embed-text"})
	vec, err := client.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "nomic-embed-text", client.GetModel())
}

func TestOllamaClient_EmbedEmptyVectorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
	}))
	defer srv.Close()

	client := llm.NewOllamaClient(llm.OllamaConfig{BaseURL: srv.URL})
	_, err := client.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestOpenAIEmbeddingClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{1, 2, 3}}},
		})
	}))
	defer srv.Close()

	client := llm.NewOpenAIEmbeddingClient(llm.OpenAIEmbeddingConfig{APIKey: "sk-test", BaseURL: srv.URL})
	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

type fakeEmbedder struct {
	calls int
	vec   []float32
}

func (f *fakeEmbedder) GetModel() string { return "fake" }
func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, nil
}

func TestRateLimitedEmbedder_PassesThrough(t *testing.T) {
	fake := &fakeEmbedder{vec: []float32{0.5}}
	limited := llm.NewRateLimitedEmbedder(fake, 1000)

	vec, err := limited.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, vec)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, "fake", limited.GetModel())
}

func TestNewEmbeddingGenerator_UnsupportedProvider(t *testing.T) {
	_, err := llm.NewEmbeddingGenerator(config.EmbeddingConfig{Provider: "not-real"})
	assert.Error(t, err)
}

func TestNewEmbeddingGenerator_DefaultsToOllama(t *testing.T) {
	gen, err := llm.NewEmbeddingGenerator(config.EmbeddingConfig{})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", gen.GetModel())
}
