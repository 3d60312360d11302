// Package embedders provides the embedding model adapters used by the
// retrieval engine. Embedders distinguish query mode from passage mode so
// asymmetric models (E5 family, Gemini task types) are prompted correctly
// on each side.
package embedders

import (
	"context"
	"fmt"

	"github.com/chanakya-ai/chanakya/pkg/registry"
)

// Embedder produces fixed-dimension float vectors for text.
type Embedder interface {
	// EmbedQuery embeds one search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedPassages embeds a batch of corpus passages, one vector per
	// input, in order.
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the vector length this embedder produces.
	Dimension() int

	// ModelName identifies the underlying model.
	ModelName() string

	Close() error
}

// Config selects and parameterises an embedder provider.
type Config struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
}

// Factory builds an embedder from its config.
type Factory func(cfg Config) (Embedder, error)

var factories = registry.NewBaseRegistry[Factory]()

// RegisterFactory makes a provider available to New.
func RegisterFactory(provider string, f Factory) error {
	return factories.Register(provider, f)
}

// New builds the embedder named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	f, ok := factories.Get(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown embedder provider: %s", cfg.Provider)
	}
	return f(cfg)
}

func init() {
	_ = RegisterFactory("ollama", func(cfg Config) (Embedder, error) {
		return NewOllamaEmbedder(cfg)
	})
	_ = RegisterFactory("gemini", func(cfg Config) (Embedder, error) {
		return NewGeminiEmbedder(cfg)
	})
}
