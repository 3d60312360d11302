package embedders

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder generates embeddings through the Gemini API. Queries and
// passages use the retrieval task types so the two sides of the search are
// embedded asymmetrically, matching the E5 prefix convention on the Ollama
// side.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
}

func NewGeminiEmbedder(cfg Config) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 768
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiEmbedder{
		client:    client,
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *GeminiEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

func (e *GeminiEmbedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: task,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embed failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if len(emb.Values) == 0 {
			return nil, fmt.Errorf("received empty embedding for input %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

func (e *GeminiEmbedder) ModelName() string {
	return e.model
}

func (e *GeminiEmbedder) Close() error {
	return nil
}

var _ Embedder = (*GeminiEmbedder)(nil)
