package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/chanakya-ai/chanakya/pkg/jsonutil"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/memory"
	"github.com/chanakya-ai/chanakya/pkg/model"
	"github.com/chanakya-ai/chanakya/pkg/tools"
)

const routeSystem = `You route a rural school teacher's request to exactly
one tool. Pick the single best tool, extract the core topic of the request,
and rate your confidence. Respond with JSON only:
{
  "selected_tool": "...",
  "reason": "...",
  "extracted_topic": "...",
  "confidence": 0.0
}`

// routeDecision is the strict JSON contract of the Route stage.
type routeDecision struct {
	SelectedTool   string  `json:"selected_tool"`
	Reason         string  `json:"reason"`
	ExtractedTopic string  `json:"extracted_topic"`
	Confidence     float64 `json:"confidence"`
}

// route asks the model to pick a tool. Parse failures and unknown tool
// names yield the default tool at confidence 0.5 with reason "fallback".
func (e *Engine) route(ctx context.Context, query string, history []memory.Message) routeDecision {
	log := logger.GetLogger()

	fallback := routeDecision{
		SelectedTool:   tools.ActivityGeneratorName,
		Reason:         "fallback",
		ExtractedTopic: query,
		Confidence:     0.5,
	}

	var prompt strings.Builder
	prompt.WriteString("Available tools:\n")
	prompt.WriteString(e.registry.Describe())
	if len(history) > 0 {
		prompt.WriteString("\nPrevious conversation:\n")
		for _, msg := range history {
			fmt.Fprintf(&prompt, "%s: %s\n", msg.Role, msg.Content)
		}
	}
	fmt.Fprintf(&prompt, "\nTeacher's request: %s\n", query)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RoutingTimeout)
	defer cancel()

	resp, err := e.llm.Generate(ctx, &model.Request{
		System:   routeSystem,
		Prompt:   prompt.String(),
		JSONMode: true,
	})
	if err != nil {
		log.Warn("routing_failed", "error", err)
		return fallback
	}

	var decision routeDecision
	if err := jsonutil.Extract(resp.Text, &decision); err != nil {
		log.Warn("routing_parse_failed", "error", err)
		return fallback
	}

	if _, ok := e.registry.Get(decision.SelectedTool); !ok {
		log.Warn("routing_unknown_tool", "tool", decision.SelectedTool)
		return fallback
	}

	if decision.Confidence < 0 {
		decision.Confidence = 0
	} else if decision.Confidence > 1 {
		decision.Confidence = 1
	}
	if decision.ExtractedTopic == "" {
		decision.ExtractedTopic = query
	}

	log.Debug("routed", "tool", decision.SelectedTool,
		"confidence", decision.Confidence, "topic", decision.ExtractedTopic)
	return decision
}
