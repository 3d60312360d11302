// Package feedback analyzes teaching-session transcripts and produces a
// structured scorecard. It is reachable through its own entrypoint and does
// not go through the request router.
package feedback

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Session is the input to analysis: what the teacher taught, to whom.
type Session struct {
	// Transcript is the text of the teaching session, from audio or
	// manual entry.
	Transcript string `json:"transcript"`

	// Topic is the main topic taught, e.g. "fractions".
	Topic string `json:"topic"`

	// GradeLevel is the student grade, e.g. "5".
	GradeLevel string `json:"grade_level"`

	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Language        string `json:"language,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	TeacherID       string `json:"teacher_id,omitempty"`
}

const (
	minTranscriptLen = 50
	minTopicLen      = 2
)

// Validate rejects sessions too short to analyze meaningfully.
func (s *Session) Validate() error {
	if utf8.RuneCountInString(s.Transcript) < minTranscriptLen {
		return fmt.Errorf("transcript must be at least %d characters", minTranscriptLen)
	}
	if utf8.RuneCountInString(s.Topic) < minTopicLen {
		return fmt.Errorf("topic must be at least %d characters", minTopicLen)
	}
	if s.GradeLevel == "" {
		return fmt.Errorf("grade_level is required")
	}
	return nil
}

// ConceptCoverage reports what was taught against what the topic expects.
type ConceptCoverage struct {
	ConceptsCovered []string `json:"concepts_covered"`
	ConceptsMissed  []string `json:"concepts_missed"`
	DepthScore      float64  `json:"depth_score"`
}

// ClarityAnalysis rates how understandable the explanations were.
type ClarityAnalysis struct {
	ClarityScore   float64  `json:"clarity_score"`
	Strengths      []string `json:"strengths"`
	ConfusingParts []string `json:"confusing_parts"`
	LanguageLevel  string   `json:"language_level"`
}

// EngagementAnalysis rates how well the lesson held student attention.
type EngagementAnalysis struct {
	EngagementScore     float64  `json:"engagement_score"`
	TechniquesUsed      []string `json:"techniques_used"`
	MissedOpportunities []string `json:"missed_opportunities"`
}

// RuralContextAnalysis rates fit for a low-resource rural classroom.
type RuralContextAnalysis struct {
	RuralAppropriateness float64  `json:"rural_appropriateness"`
	ResourceRequirements string   `json:"resource_requirements"`
	LocalContextUsed     bool     `json:"local_context_used"`
	SuggestionsForRural  []string `json:"suggestions_for_rural"`
}

// Scorecard is the full analysis output for one teaching session.
type Scorecard struct {
	SessionID  string    `json:"session_id"`
	Topic      string    `json:"topic"`
	GradeLevel string    `json:"grade_level"`
	Timestamp  time.Time `json:"timestamp"`

	OverallScore    float64              `json:"overall_score"`
	ConceptCoverage ConceptCoverage      `json:"concept_coverage"`
	Clarity         ClarityAnalysis      `json:"clarity"`
	Engagement      EngagementAnalysis   `json:"engagement"`
	RuralContext    RuralContextAnalysis `json:"rural_context"`

	KeyStrengths            []string `json:"key_strengths"`
	ImprovementAreas        []string `json:"improvement_areas"`
	ActionableTips          []string `json:"actionable_tips"`
	MisconceptionsAddressed []string `json:"misconceptions_addressed"`
	MisconceptionsMissed    []string `json:"misconceptions_missed"`
}

// History summarises a teacher's past scorecards.
type History struct {
	TeacherID        string      `json:"teacher_id"`
	TotalSessions    int         `json:"total_sessions"`
	AverageScore     float64     `json:"average_score"`
	ImprovementTrend string      `json:"improvement_trend"`
	RecentFeedbacks  []Scorecard `json:"recent_feedbacks"`
	CommonStrengths  []string    `json:"common_strengths"`
	RecurringGaps    []string    `json:"recurring_gaps"`
}
