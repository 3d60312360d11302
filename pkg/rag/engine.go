package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chanakya-ai/chanakya/pkg/embedders"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/model"
)

// NoMatchAnswer is returned when the corpus is empty or nothing matches the
// filters. A missing answer is not an error.
const NoMatchAnswer = "I could not find relevant information in the textbook corpus for this question. Please try rephrasing, or ask about a different topic."

const answerSystem = `You answer questions for rural school teachers using only
the textbook excerpts provided. Ground every statement in the excerpts. If the
excerpts do not contain the answer, say so plainly. Keep the answer short and
usable in a classroom.`

// Config holds the engine's tunables.
type Config struct {
	TopK              int
	GenerationTimeout time.Duration
	MaxOutputTokens   int
}

func (c *Config) SetDefaults() {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 30 * time.Second
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 2048
	}
}

// Answer is the engine's output: the model's verbatim text plus the parsed
// citations for the passages it saw.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Engine wires the embedder, corpus store, and generative model into the
// embed, search, assemble, generate sequence.
type Engine struct {
	store    *Store
	embedder embedders.Embedder
	llm      model.LLM
	cfg      Config
}

func NewEngine(store *Store, embedder embedders.Embedder, llm model.LLM, cfg Config) *Engine {
	cfg.SetDefaults()
	return &Engine{store: store, embedder: embedder, llm: llm, cfg: cfg}
}

// Answer runs one retrieval-augmented query end to end.
func (e *Engine) Answer(ctx context.Context, question string, filters Filters) (*Answer, error) {
	log := logger.GetLogger()

	query, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := Search(ctx, e.store, query, filters, e.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("corpus search failed: %w", err)
	}
	if len(matches) == 0 {
		log.Debug("retrieval_no_matches", "question", question)
		return &Answer{Text: NoMatchAnswer}, nil
	}

	sources := make([]Source, len(matches))
	for i, m := range matches {
		sources[i] = m.Document.Source
	}

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancel()

	resp, err := e.llm.Generate(genCtx, &model.Request{
		System:          answerSystem,
		Prompt:          buildAnswerPrompt(question, matches),
		MaxOutputTokens: e.cfg.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}

	log.Debug("retrieval_answered", "matches", len(matches),
		"top_similarity", matches[0].Similarity)
	return &Answer{Text: resp.Text, Sources: sources}, nil
}

func buildAnswerPrompt(question string, matches []Match) string {
	var b strings.Builder
	b.WriteString("Textbook excerpts:\n\n")
	for _, m := range matches {
		b.WriteString(m.Document.Source.Header())
		b.WriteString("\n")
		b.WriteString(m.Document.Content)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}
