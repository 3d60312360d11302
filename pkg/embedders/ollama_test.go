package embedders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbedServer(t *testing.T, prompts *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*prompts = append(*prompts, req.Prompt)
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{0.1, 0.2, 0.3},
		})
	}))
}

func TestOllamaEmbedderPrefixes(t *testing.T) {
	var prompts []string
	srv := newEmbedServer(t, &prompts)
	defer srv.Close()

	emb, err := NewOllamaEmbedder(Config{Provider: "ollama", BaseURL: srv.URL, Dimension: 3})
	require.NoError(t, err)

	vec, err := emb.EmbedQuery(context.Background(), "fractions for class 5")
	require.NoError(t, err)
	assert.Len(t, vec, 3)

	vecs, err := emb.EmbedPassages(context.Background(), []string{"first passage", "second passage"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	require.Len(t, prompts, 3)
	assert.Equal(t, "query: fractions for class 5", prompts[0])
	assert.Equal(t, "passage: first passage", prompts[1])
	assert.Equal(t, "passage: second passage", prompts[2])
}

func TestOllamaEmbedderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	emb, err := NewOllamaEmbedder(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = emb.EmbedQuery(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestOllamaEmbedderDefaults(t *testing.T) {
	emb, err := NewOllamaEmbedder(Config{})
	require.NoError(t, err)
	assert.Equal(t, "intfloat/multilingual-e5-base", emb.ModelName())
	assert.Equal(t, 768, emb.Dimension())
}

func TestUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "does-not-exist"})
	require.Error(t, err)
}
