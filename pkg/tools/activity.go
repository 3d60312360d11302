package tools

import (
	"context"
	"fmt"

	"github.com/chanakya-ai/chanakya/pkg/jsonutil"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/model"
)

// ActivityGeneratorName is the routing name of the activity tool and the
// default tool when routing falls back.
const ActivityGeneratorName = "activity_generator"

const activitySystem = `You design hands-on classroom activities for rural
Indian schools with minimal materials (chalk, stones, sticks, paper). Respond
with JSON only:
{
  "name": "...",
  "description": "...",
  "materials": ["..."],
  "steps": ["..."],
  "duration_minutes": 20,
  "learning_outcome": "...",
  "tips": ["..."]
}`

// ActivityGenerator produces a concrete teaching activity for a topic. It
// opts into the quality gate.
type ActivityGenerator struct {
	llm model.LLM
}

func NewActivityGenerator(llm model.LLM) *ActivityGenerator {
	return &ActivityGenerator{llm: llm}
}

func (t *ActivityGenerator) Info() Info {
	return Info{
		Name:        ActivityGeneratorName,
		Description: "Creates a hands-on classroom activity for teaching a topic with minimal materials",
		QualityGate: true,
	}
}

func (t *ActivityGenerator) Run(ctx context.Context, topic string, tc *Context) (*Result, error) {
	prompt := fmt.Sprintf("Topic: %s\nClassroom context: %s\n\nDesign one activity a single teacher can run.",
		topic, tc.describe())

	resp, err := t.llm.Generate(ctx, &model.Request{
		System:   activitySystem,
		Prompt:   prompt,
		JSONMode: true,
	})
	if err != nil {
		logger.GetLogger().Warn("activity_generation_failed", "topic", topic, "error", err)
		return fallbackActivity(topic), nil
	}

	var payload ActivityPayload
	if err := jsonutil.Extract(resp.Text, &payload); err != nil {
		logger.GetLogger().Warn("activity_parse_failed", "topic", topic, "error", err)
		return fallbackActivity(topic), nil
	}
	if payload.Name == "" || len(payload.Steps) == 0 {
		logger.GetLogger().Warn("activity_incomplete", "topic", topic)
		return fallbackActivity(topic), nil
	}

	return &Result{Kind: KindActivity, Activity: &payload}, nil
}

// fallbackActivity is the canned safe payload returned when the model fails
// or its output cannot be parsed.
func fallbackActivity(topic string) *Result {
	return &Result{
		Kind: KindActivity,
		Activity: &ActivityPayload{
			Name:        fmt.Sprintf("Group Discussion: %s", topic),
			Description: fmt.Sprintf("A simple discussion activity about %s that needs no materials.", topic),
			Materials:   []string{"blackboard", "chalk"},
			Steps: []string{
				fmt.Sprintf("Write '%s' on the board and ask students what they already know.", topic),
				"Form small groups and let each group discuss for five minutes.",
				"Have one student per group share the group's ideas.",
				"Summarize the key points on the board together.",
			},
			DurationMinutes: 20,
			LearningOutcome: fmt.Sprintf("Students articulate and organize their understanding of %s.", topic),
		},
	}
}

var _ Tool = (*ActivityGenerator)(nil)
