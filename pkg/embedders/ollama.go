package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/chanakya-ai/chanakya/pkg/logger"
)

// Ollama's llama runner crashes when it receives concurrent embedding
// requests, so all calls are serialized through one mutex.
var ollamaEmbedMu sync.Mutex

const (
	// E5-family asymmetric prefixes. Queries and passages must be embedded
	// with matching prefixes or similarity scores degrade badly.
	queryPrefix   = "query: "
	passagePrefix = "passage: "

	ollamaMaxRetries = 3
)

// OllamaEmbedder runs an E5-style embedding model behind a local Ollama
// server.
type OllamaEmbedder struct {
	model     string
	baseURL   string
	dimension int
	client    *http.Client
}

func NewOllamaEmbedder(cfg Config) (*OllamaEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = "intfloat/multilingual-e5-base"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 768
	}
	return &OllamaEmbedder{
		model:     cfg.Model,
		baseURL:   cfg.BaseURL,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, queryPrefix+text)
}

func (e *OllamaEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.embed(ctx, passagePrefix+text)
		if err != nil {
			return nil, fmt.Errorf("passage %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *OllamaEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	log := logger.GetLogger()

	payload, err := json.Marshal(map[string]string{
		"model":  e.model,
		"prompt": text,
	})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	for attempt := 0; attempt < ollamaMaxRetries; attempt++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost,
			e.baseURL+"/api/embeddings", bytes.NewReader(payload))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = e.client.Do(req)
		if err == nil {
			break
		}
		log.Debug("ollama_embed_retry", "attempt", attempt+1, "error", err)
		if attempt < ollamaMaxRetries-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reach ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("received empty embedding from ollama")
	}
	return parsed.Embedding, nil
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

func (e *OllamaEmbedder) Close() error {
	return nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
