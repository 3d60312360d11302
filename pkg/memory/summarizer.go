package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/chanakya-ai/chanakya/pkg/model"
)

// Summarizer compresses a slice of messages into a short prose summary.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message) (string, error)
}

const summarizePrompt = `Summarize this conversation between a teacher and a
classroom assistant in at most 150 words. Keep the topics discussed, the
activities suggested, and anything the teacher said about their class (grade,
subject, class size). Write plain prose, no lists.

Conversation:
%s`

// LLMSummarizer asks the generative model for the summary.
type LLMSummarizer struct {
	llm model.LLM
}

func NewLLMSummarizer(llm model.LLM) *LLMSummarizer {
	return &LLMSummarizer{llm: llm}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, messages []Message) (string, error) {
	var transcript strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", msg.Role, msg.Content)
	}

	resp, err := s.llm.Generate(ctx, &model.Request{
		Prompt:      fmt.Sprintf(summarizePrompt, transcript.String()),
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarization failed: %w", err)
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", fmt.Errorf("summarization returned empty text")
	}
	return summary, nil
}

var _ Summarizer = (*LLMSummarizer)(nil)
