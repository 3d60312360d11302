package tools

import (
	"context"
	"fmt"

	"github.com/chanakya-ai/chanakya/pkg/jsonutil"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/model"
)

// CrisisHandlerName is the routing name of the crisis tool.
const CrisisHandlerName = "crisis_handler"

const crisisSystem = `A teacher is facing an immediate classroom problem
(noise, conflict, disengagement, distress). Give one intervention the
teacher can start within a minute, shaped as an activity. Respond with JSON
only:
{
  "name": "...",
  "description": "...",
  "materials": ["..."],
  "steps": ["..."],
  "duration_minutes": 5,
  "learning_outcome": "...",
  "tips": ["..."]
}`

// CrisisHandler returns an activity-shaped immediate intervention. It skips
// the quality gate; a success chains a follow-up call to the activity
// generator with the original query so the teacher also gets a calming
// lesson to continue with.
type CrisisHandler struct {
	llm model.LLM
}

func NewCrisisHandler(llm model.LLM) *CrisisHandler {
	return &CrisisHandler{llm: llm}
}

func (t *CrisisHandler) Info() Info {
	return Info{
		Name:        CrisisHandlerName,
		Description: "Handles urgent classroom situations (noise, conflict, distress) with an immediate intervention",
		FollowUp:    ActivityGeneratorName,
	}
}

func (t *CrisisHandler) Run(ctx context.Context, topic string, tc *Context) (*Result, error) {
	prompt := fmt.Sprintf("Situation: %s\nClassroom context: %s", topic, tc.describe())

	resp, err := t.llm.Generate(ctx, &model.Request{
		System:   crisisSystem,
		Prompt:   prompt,
		JSONMode: true,
	})
	if err != nil {
		logger.GetLogger().Warn("crisis_generation_failed", "topic", topic, "error", err)
		return fallbackIntervention(), nil
	}

	var payload ActivityPayload
	if err := jsonutil.Extract(resp.Text, &payload); err != nil {
		logger.GetLogger().Warn("crisis_parse_failed", "topic", topic, "error", err)
		return fallbackIntervention(), nil
	}
	if payload.Name == "" || len(payload.Steps) == 0 {
		return fallbackIntervention(), nil
	}

	return &Result{Kind: KindActivity, Activity: &payload}, nil
}

func fallbackIntervention() *Result {
	return &Result{
		Kind: KindActivity,
		Activity: &ActivityPayload{
			Name:        "Silent Counting Reset",
			Description: "A one-minute whole-class reset that restores calm without raising your voice.",
			Materials:   []string{"none"},
			Steps: []string{
				"Stand still at the front and raise one hand without speaking.",
				"Start counting down from ten on your fingers, slowly.",
				"Students who notice join the count; wait until the room is silent.",
				"Thank the class quietly and state the next task in one sentence.",
			},
			DurationMinutes: 5,
			LearningOutcome: "Students practice self-regulation and re-focus as a group.",
			Tips: []string{
				"Keep your own voice low afterwards; the contrast sustains the calm.",
			},
		},
	}
}

var _ Tool = (*CrisisHandler)(nil)
