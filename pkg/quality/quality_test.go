package quality_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chanakya-ai/chanakya/pkg/model/modeltest"
	"github.com/chanakya-ai/chanakya/pkg/quality"
)

func TestGateCheck(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		response  string
		err       error
		wantScore float64
		wantRedo  bool
	}{
		{
			name:      "good activity accepted",
			response:  `{"overall_score": 0.9, "axis_scores": {"realism": 0.9, "educational": 0.9, "logical": 0.9, "factual": 0.9}, "issues": [], "verdict": "accept"}`,
			wantScore: 0.9,
			wantRedo:  false,
		},
		{
			name:      "score exactly at threshold accepted",
			response:  `{"overall_score": 0.7, "verdict": "accept"}`,
			wantScore: 0.7,
			wantRedo:  false,
		},
		{
			name:      "low score demands redo",
			response:  `{"overall_score": 0.4, "issues": ["needs rare materials"], "verdict": "redo"}`,
			wantScore: 0.4,
			wantRedo:  true,
		},
		{
			name:      "accept verdict below threshold still redoes",
			response:  `{"overall_score": 0.5, "verdict": "accept"}`,
			wantScore: 0.5,
			wantRedo:  true,
		},
		{
			name:      "validator error fails open",
			err:       assert.AnError,
			wantScore: quality.FailOpenScore,
			wantRedo:  false,
		},
		{
			name:      "unparseable validator output fails open",
			response:  "the activity looks fine to me",
			wantScore: quality.FailOpenScore,
			wantRedo:  false,
		},
		{
			name:      "out of range score clamped",
			response:  `{"overall_score": 1.7, "verdict": "accept"}`,
			wantScore: 1.0,
			wantRedo:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &modeltest.StubLLM{Err: tt.err}
			if tt.response != "" {
				stub.Responses = []string{tt.response}
			}
			gate := quality.NewGate(stub, 0.7, time.Second)

			verdict := gate.Check(ctx, "activity for addition", map[string]any{"name": "x"})
			assert.InDelta(t, tt.wantScore, verdict.OverallScore, 1e-9)
			assert.Equal(t, tt.wantRedo, verdict.NeedsRedo)
		})
	}
}
