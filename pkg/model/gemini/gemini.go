// Package gemini implements the model.LLM interface for Google Gemini
// models using the official google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/chanakya-ai/chanakya/pkg/model"
)

// Config contains configuration for the Gemini model.
type Config struct {
	// APIKey is the Google AI API key.
	APIKey string

	// Model is the model name (e.g., "gemini-2.0-flash").
	Model string

	// MaxOutputTokens limits the response length.
	MaxOutputTokens int

	// Temperature controls randomness (0-2).
	Temperature float64
}

type geminiModel struct {
	client *genai.Client
	name   string
	config Config
}

// New creates a new Gemini model instance.
func New(cfg Config) (model.LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	// Constructors shouldn't require context.
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiModel{
		client: client,
		name:   cfg.Model,
		config: cfg,
	}, nil
}

func (m *geminiModel) Name() string {
	return m.name
}

func (m *geminiModel) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: req.Prompt}},
		},
	}

	config := m.buildConfig(req)

	genResp, err := m.client.Models.GenerateContent(ctx, m.name, contents, config)
	if err != nil {
		return nil, fmt.Errorf("Gemini generation failed: %w", err)
	}

	return parseResponse(genResp)
}

func (m *geminiModel) Close() error {
	return nil
}

func (m *geminiModel) buildConfig(req *model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
			Role:  "user",
		}
	}

	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	} else if m.config.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(m.config.Temperature))
	}

	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	} else if m.config.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(m.config.MaxOutputTokens)
	}

	return config
}

func parseResponse(genResp *genai.GenerateContentResponse) (*model.Response, error) {
	if len(genResp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	candidate := genResp.Candidates[0]

	var text string
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				text += part.Text
			}
		}
	}

	resp := &model.Response{Text: text}

	if genResp.UsageMetadata != nil {
		resp.Usage = &model.Usage{
			PromptTokens:     int(genResp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(genResp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(genResp.UsageMetadata.TotalTokenCount),
		}
	}

	return resp, nil
}

var _ model.LLM = (*geminiModel)(nil)
