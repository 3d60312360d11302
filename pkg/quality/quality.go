// Package quality implements the second-pass validator that scores
// generated content and can demand regeneration. The gate is fail-open: a
// validator failure accepts the artifact with a default score.
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chanakya-ai/chanakya/pkg/jsonutil"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/model"
)

// FailOpenScore is assigned when the validator itself fails.
const FailOpenScore = 0.75

// AxisScores are the individual quality dimensions.
type AxisScores struct {
	Realism     float64 `json:"realism"`
	Educational float64 `json:"educational"`
	Logical     float64 `json:"logical"`
	Factual     float64 `json:"factual"`
}

// Verdict is the gate's judgement of one artifact.
type Verdict struct {
	OverallScore float64    `json:"overall_score"`
	Axes         AxisScores `json:"axis_scores"`
	Issues       []string   `json:"issues,omitempty"`
	NeedsRedo    bool       `json:"needs_redo"`
}

const gateSystem = `You are a strict reviewer of classroom activities for
rural Indian schools. Score the activity against the teacher's request.
Check that it is realistic with minimal materials, educational for the
topic, logically ordered, and factually sound. Respond with JSON only:
{
  "overall_score": 0.0,
  "axis_scores": {"realism": 0.0, "educational": 0.0, "logical": 0.0, "factual": 0.0},
  "issues": ["..."],
  "verdict": "accept" | "redo"
}`

// Gate scores generated artifacts via the model.
type Gate struct {
	llm     model.LLM
	minimum float64
	timeout time.Duration
}

// NewGate builds a Gate. minimum is the acceptance threshold (scores equal
// to it pass); timeout bounds each validator call, zero means 15 seconds.
func NewGate(llm model.LLM, minimum float64, timeout time.Duration) *Gate {
	if minimum <= 0 {
		minimum = 0.7
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gate{llm: llm, minimum: minimum, timeout: timeout}
}

// Check scores artifact against the original query. It never returns an
// error: validator failures fail open with FailOpenScore and no redo. The
// engine owns the retry loop; the gate only emits the verdict.
func (g *Gate) Check(ctx context.Context, query string, artifact any) *Verdict {
	log := logger.GetLogger()

	failOpen := &Verdict{
		OverallScore: FailOpenScore,
		NeedsRedo:    false,
	}

	artifactJSON, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		log.Warn("quality_gate_encode_failed", "error", err)
		return failOpen
	}

	prompt := fmt.Sprintf("Teacher's request: %s\n\nGenerated activity:\n%s", query, artifactJSON)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.llm.Generate(ctx, &model.Request{
		System:   gateSystem,
		Prompt:   prompt,
		JSONMode: true,
	})
	if err != nil {
		log.Warn("quality_gate_failed_open", "error", err)
		return failOpen
	}

	var parsed struct {
		OverallScore float64    `json:"overall_score"`
		Axes         AxisScores `json:"axis_scores"`
		Issues       []string   `json:"issues"`
		Verdict      string     `json:"verdict"`
	}
	if err := jsonutil.Extract(resp.Text, &parsed); err != nil {
		log.Warn("quality_gate_parse_failed_open", "error", err)
		return failOpen
	}

	score := clamp01(parsed.OverallScore)
	verdict := &Verdict{
		OverallScore: score,
		Axes:         parsed.Axes,
		Issues:       parsed.Issues,
		NeedsRedo:    parsed.Verdict == "redo" || score < g.minimum,
	}

	log.Debug("quality_gate_scored", "score", score,
		"redo", verdict.NeedsRedo, "issues", len(parsed.Issues))
	return verdict
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
