package orchestrator

import (
	"time"

	"github.com/chanakya-ai/chanakya/pkg/tools"
)

// Stage names the nodes of the request graph, in declaration order.
type Stage string

const (
	StageLoadContext    Stage = "load_context"
	StageRoute          Stage = "route"
	StageConfidenceGate Stage = "confidence_gate"
	StageExecute        Stage = "execute"
	StageValidate       Stage = "validate"
	StageQualityGate    Stage = "quality_gate"
	StageFollowUp       Stage = "follow_up"
	StageFinalize       Stage = "finalize"
)

// Utterance is one inbound request.
type Utterance struct {
	Text        string         `json:"text"`
	SessionID   string         `json:"session_id,omitempty"`
	Context     map[string]any `json:"structured_context,omitempty"`
	CaptureTime time.Time      `json:"capture_time,omitempty"`
}

// MaxUtteranceLen is the inclusive upper bound on utterance text length.
const MaxUtteranceLen = 1000

// State is the mutable record that flows through the graph for one
// request. It is owned exclusively by that request and never persisted.
type State struct {
	// Inputs.
	Query          string         `json:"query"`
	SessionID      string         `json:"session_id"`
	SourceLanguage string         `json:"source_language"`
	Context        *tools.Context `json:"context,omitempty"`

	// Routing.
	SelectedTool    string  `json:"selected_tool,omitempty"`
	RoutingReason   string  `json:"routing_reason,omitempty"`
	ExtractedTopic  string  `json:"extracted_topic,omitempty"`
	RouteConfidence float64 `json:"route_confidence"`

	// Retry accounting.
	RoutingAttempts int `json:"routing_attempts"`
	QualityAttempts int `json:"quality_attempts"`

	// Tool output.
	Result    *tools.Result `json:"result,omitempty"`
	ToolError string        `json:"tool_error,omitempty"`

	// Quality.
	QualityScore     float64  `json:"quality_score"`
	QualityNeedsRedo bool     `json:"quality_needs_redo"`
	ValidationNotes  []string `json:"validation_notes,omitempty"`

	// Follow-up.
	NeedsFollowUp bool   `json:"needs_follow_up"`
	FollowUpTool  string `json:"follow_up_tool,omitempty"`

	// Observability.
	ProcessingMS int64 `json:"processing_ms"`
}

// clone copies the state for event snapshots so consumers never observe
// later mutations.
func (s *State) clone() *State {
	cp := *s
	if s.ValidationNotes != nil {
		cp.ValidationNotes = append([]string{}, s.ValidationNotes...)
	}
	return &cp
}

// Response is the terminal record returned to callers.
type Response struct {
	ToolUsed     string        `json:"tool_used"`
	Reasoning    string        `json:"reasoning"`
	Result       *tools.Result `json:"result,omitempty"`
	Confidence   float64       `json:"confidence"`
	ProcessingMS int64         `json:"processing_ms"`
	Error        string        `json:"error,omitempty"`
}
