// Package model defines the contract between the engine and the generative
// model provider. The engine treats the provider as a text-in/text-out black
// box with an optional JSON-only mode; everything else (routing, gating,
// fallbacks) lives above this interface.
package model

import "context"

// Request is one generation call.
type Request struct {
	// System is the system instruction, may be empty.
	System string

	// Prompt is the user-visible prompt text.
	Prompt string

	// JSONMode asks the provider to emit a JSON document only.
	JSONMode bool

	// Temperature overrides the provider default when > 0.
	Temperature float64

	// MaxOutputTokens caps the response length when > 0.
	MaxOutputTokens int
}

// Usage reports token accounting when the provider supplies it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the provider's raw output.
type Response struct {
	Text  string
	Usage *Usage
}

// LLM is implemented by generative model adapters.
type LLM interface {
	// Generate performs one request/response exchange. The context carries
	// the per-call deadline; implementations must honour cancellation.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Name returns the model identifier.
	Name() string

	// Close releases provider resources.
	Close() error
}
