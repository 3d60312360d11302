package jsonutil_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanakya-ai/chanakya/pkg/jsonutil"
)

type routeDecision struct {
	SelectedTool string  `json:"selected_tool"`
	Reason       string  `json:"reason"`
	Confidence   float64 `json:"confidence"`
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    routeDecision
		wantErr bool
	}{
		{
			name: "clean json",
			raw:  `{"selected_tool": "activity_generator", "reason": "ok", "confidence": 0.9}`,
			want: routeDecision{SelectedTool: "activity_generator", Reason: "ok", Confidence: 0.9},
		},
		{
			name: "fenced with language label",
			raw:  "```json\n{\"selected_tool\": \"crisis_handler\", \"reason\": \"urgent\", \"confidence\": 0.95}\n```",
			want: routeDecision{SelectedTool: "crisis_handler", Reason: "urgent", Confidence: 0.95},
		},
		{
			name: "chatty prefix and suffix",
			raw:  `Sure! Here is the decision: {"selected_tool": "motivation", "reason": "support", "confidence": 0.8} Hope that helps.`,
			want: routeDecision{SelectedTool: "motivation", Reason: "support", Confidence: 0.8},
		},
		{
			name: "bare keys",
			raw:  `{selected_tool: "activity_generator", reason: "bare", confidence: 0.7}`,
			want: routeDecision{SelectedTool: "activity_generator", Reason: "bare", Confidence: 0.7},
		},
		{
			name: "trailing comma",
			raw:  `{"selected_tool": "activity_generator", "reason": "trailing", "confidence": 0.7,}`,
			want: routeDecision{SelectedTool: "activity_generator", Reason: "trailing", Confidence: 0.7},
		},
		{
			name: "braces inside string values",
			raw:  `{"selected_tool": "activity_generator", "reason": "use {curly} notation", "confidence": 0.6}`,
			want: routeDecision{SelectedTool: "activity_generator", Reason: "use {curly} notation", Confidence: 0.6},
		},
		{
			name:    "empty response",
			raw:     "   ",
			wantErr: true,
		},
		{
			name:    "no object at all",
			raw:     "I could not decide on a tool.",
			wantErr: true,
		},
		{
			name:    "hopelessly malformed",
			raw:     `{"selected_tool": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got routeDecision
			err := jsonutil.Extract(tt.raw, &got)
			if tt.wantErr {
				require.Error(t, err)
				var extractErr *jsonutil.ExtractError
				assert.True(t, errors.As(err, &extractErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractTruncated(t *testing.T) {
	// Output cut off mid-generation: a nested complete prefix survives.
	raw := `{"scores": {"realism": 0.8, "educational": 0.9}, "issues": ["missing ti`

	var got map[string]any
	err := jsonutil.Extract(raw, &got)
	require.Error(t, err)

	// A truncated top level object cannot be recovered, but one whose last
	// balanced position closes the whole object can.
	raw = "```\n" + `{"verdict": "accept", "overall_score": 0.85}` + "\ntrailing garbage```"
	var verdict struct {
		Verdict      string  `json:"verdict"`
		OverallScore float64 `json:"overall_score"`
	}
	require.NoError(t, jsonutil.Extract(raw, &verdict))
	assert.Equal(t, "accept", verdict.Verdict)
	assert.InDelta(t, 0.85, verdict.OverallScore, 1e-9)
}
