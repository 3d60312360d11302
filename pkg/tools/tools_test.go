package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanakya-ai/chanakya/pkg/model/modeltest"
	"github.com/chanakya-ai/chanakya/pkg/tools"
)

func TestActivityGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("parses model output", func(t *testing.T) {
		stub := &modeltest.StubLLM{Responses: []string{`{
			"name": "Stone Counting",
			"description": "Count stones in pairs.",
			"materials": ["stones"],
			"steps": ["Collect stones", "Count in pairs"],
			"duration_minutes": 15,
			"learning_outcome": "Addition with objects"
		}`}}
		tool := tools.NewActivityGenerator(stub)

		result, err := tool.Run(ctx, "addition", &tools.Context{Grade: "3", Subject: "math"})
		require.NoError(t, err)
		require.Equal(t, tools.KindActivity, result.Kind)
		assert.Equal(t, "Stone Counting", result.Activity.Name)
		assert.Len(t, result.Activity.Steps, 2)
		assert.False(t, result.Empty())
	})

	t.Run("model failure yields canned payload", func(t *testing.T) {
		stub := &modeltest.StubLLM{Err: assert.AnError}
		tool := tools.NewActivityGenerator(stub)

		result, err := tool.Run(ctx, "addition", nil)
		require.NoError(t, err)
		assert.False(t, result.Empty())
		assert.Contains(t, result.Activity.Name, "addition")
	})

	t.Run("unparseable output yields canned payload", func(t *testing.T) {
		stub := &modeltest.StubLLM{Responses: []string{"sorry, I cannot help"}}
		tool := tools.NewActivityGenerator(stub)

		result, err := tool.Run(ctx, "fractions", nil)
		require.NoError(t, err)
		assert.False(t, result.Empty())
	})

	t.Run("descriptor opts into quality gate", func(t *testing.T) {
		info := tools.NewActivityGenerator(nil).Info()
		assert.True(t, info.QualityGate)
		assert.Empty(t, info.FollowUp)
	})
}

func TestCrisisHandlerDescriptor(t *testing.T) {
	info := tools.NewCrisisHandler(nil).Info()
	assert.False(t, info.QualityGate)
	assert.Equal(t, tools.ActivityGeneratorName, info.FollowUp)
}

func TestTeacherMotivation(t *testing.T) {
	stub := &modeltest.StubLLM{Responses: []string{`{
		"title": "Keep Going",
		"acknowledgment": "This is hard work.",
		"immediate_tips": ["breathe"],
		"long_term_strategies": ["peer support"],
		"inspiration": "You matter.",
		"self_care_practices": ["rest"],
		"perspective_shifts": ["months not lessons"]
	}`}}
	tool := tools.NewTeacherMotivation(stub)

	result, err := tool.Run(context.Background(), "feeling burnt out", nil)
	require.NoError(t, err)
	require.Equal(t, tools.KindMotivation, result.Kind)
	assert.Equal(t, "Keep Going", result.Motivation.Title)
	assert.Equal(t, "Shared support: Keep Going", result.Summary())
}

func TestResultMarshalJSON(t *testing.T) {
	result := &tools.Result{
		Kind: tools.KindActivity,
		Activity: &tools.ActivityPayload{
			Name:  "Main",
			Steps: []string{"a"},
		},
		FollowUp: &tools.Result{
			Kind: tools.KindActivity,
			Activity: &tools.ActivityPayload{
				Name:  "Calmer",
				Steps: []string{"b"},
			},
		},
	}

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, "Main", flat["name"])
	followUp, ok := flat["follow_up"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Calmer", followUp["name"])
}

func TestTranslatableFieldsRoundTrip(t *testing.T) {
	result := &tools.Result{
		Kind: tools.KindActivity,
		Activity: &tools.ActivityPayload{
			Name:            "Counting Game",
			Description:     "Count things",
			LearningOutcome: "Numbers",
			Steps:           []string{"step one", "step two"},
			Materials:       []string{"stones"},
			Tips:            []string{"smile"},
		},
		FollowUp: &tools.Result{
			Kind: tools.KindActivity,
			Activity: &tools.ActivityPayload{
				Name:            "Quiet Game",
				Description:     "Be quiet",
				LearningOutcome: "Calm",
				Steps:           []string{"hush"},
			},
		},
	}

	fields := result.TranslatableFields()
	require.Len(t, fields, 7+4)

	translated := make([]string, len(fields))
	for i, f := range fields {
		translated[i] = "T:" + f
	}
	result.SetTranslatedFields(translated)

	assert.Equal(t, "T:Counting Game", result.Activity.Name)
	assert.Equal(t, "T:step two", result.Activity.Steps[1])
	assert.Equal(t, "T:Quiet Game", result.FollowUp.Activity.Name)
	assert.Equal(t, "T:hush", result.FollowUp.Activity.Steps[0])

	// Length mismatch leaves the result untouched.
	result.SetTranslatedFields([]string{"just one"})
	assert.Equal(t, "T:Counting Game", result.Activity.Name)
}

func TestRegistryDescribe(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.ActivityGeneratorName, tools.NewActivityGenerator(nil)))
	require.NoError(t, reg.Register(tools.CrisisHandlerName, tools.NewCrisisHandler(nil)))
	require.NoError(t, reg.Register(tools.TeacherMotivationName, tools.NewTeacherMotivation(nil)))

	desc := reg.Describe()
	assert.Contains(t, desc, "activity_generator:")
	assert.Contains(t, desc, "crisis_handler:")
	assert.Contains(t, desc, "teacher_motivation:")

	// Sorted, so activity comes first.
	assert.Less(t, 0, len(desc))
	assert.Equal(t, 3, reg.Count())
}
