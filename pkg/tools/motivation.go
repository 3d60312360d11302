package tools

import (
	"context"
	"fmt"

	"github.com/chanakya-ai/chanakya/pkg/jsonutil"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/model"
)

// TeacherMotivationName is the routing name of the motivation tool.
const TeacherMotivationName = "teacher_motivation"

const motivationSystem = `A teacher in a rural Indian school is feeling
discouraged or burnt out. Offer grounded, practical support. Respond with
JSON only:
{
  "title": "...",
  "acknowledgment": "...",
  "immediate_tips": ["..."],
  "long_term_strategies": ["..."],
  "inspiration": "...",
  "self_care_practices": ["..."],
  "perspective_shifts": ["..."]
}`

// TeacherMotivation returns a structured support payload. No quality gate,
// no follow-up.
type TeacherMotivation struct {
	llm model.LLM
}

func NewTeacherMotivation(llm model.LLM) *TeacherMotivation {
	return &TeacherMotivation{llm: llm}
}

func (t *TeacherMotivation) Info() Info {
	return Info{
		Name:        TeacherMotivationName,
		Description: "Supports a discouraged or overwhelmed teacher with encouragement and practical strategies",
	}
}

func (t *TeacherMotivation) Run(ctx context.Context, topic string, tc *Context) (*Result, error) {
	prompt := fmt.Sprintf("What the teacher said: %s\nClassroom context: %s", topic, tc.describe())

	resp, err := t.llm.Generate(ctx, &model.Request{
		System:   motivationSystem,
		Prompt:   prompt,
		JSONMode: true,
	})
	if err != nil {
		logger.GetLogger().Warn("motivation_generation_failed", "topic", topic, "error", err)
		return fallbackMotivation(), nil
	}

	var payload MotivationPayload
	if err := jsonutil.Extract(resp.Text, &payload); err != nil {
		logger.GetLogger().Warn("motivation_parse_failed", "topic", topic, "error", err)
		return fallbackMotivation(), nil
	}
	if payload.Title == "" {
		return fallbackMotivation(), nil
	}

	return &Result{Kind: KindMotivation, Motivation: &payload}, nil
}

func fallbackMotivation() *Result {
	return &Result{
		Kind: KindMotivation,
		Motivation: &MotivationPayload{
			Title:          "Your Work Matters",
			Acknowledgment: "Teaching with limited resources is genuinely hard, and feeling stretched is a normal response, not a failure.",
			ImmediateTips: []string{
				"Take three slow breaths before the next class begins.",
				"Pick one small thing that went well today and write it down.",
			},
			LongTermStrategies: []string{
				"Connect with one other teacher each week to share what works.",
				"Keep a notebook of lessons that landed, and reuse them without guilt.",
			},
			Inspiration:       "Every teacher who keeps showing up changes the path of children who have no one else showing up for them.",
			SelfCarePractices: []string{"Protect ten minutes of quiet for yourself after school."},
			PerspectiveShifts: []string{
				"Progress in a classroom is measured in months, not in single lessons.",
			},
		},
	}
}

var _ Tool = (*TeacherMotivation)(nil)
