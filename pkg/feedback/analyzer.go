package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chanakya-ai/chanakya/pkg/jsonutil"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/model"
)

const analysisSystem = `You are an experienced educational coach specializing
in rural Indian schools. Analyze the teaching session transcript and provide
constructive, actionable feedback.

Evaluate these dimensions, each scored 0-1:
1. Concept coverage: were the core concepts for this topic and grade covered,
   at appropriate depth? What was missed?
2. Clarity: were explanations simple and clear, with language suited to the
   students?
3. Engagement: questions to check understanding, relatable examples, likely
   student attention.
4. Rural appropriateness: familiar local contexts, practical resource
   requirements, culturally appropriate content.
Also note common student misconceptions that were addressed or missed.

Be constructive and encouraging. Give specific examples from the transcript
and 3-5 key points per list, not an overwhelming catalogue. Respond with JSON
only, using these exact keys: overall_score, concepts_covered,
concepts_missed, depth_score, clarity_score, strengths, confusing_parts,
language_level (too_simple, appropriate, too_complex), engagement_score,
techniques_used, missed_opportunities, rural_appropriateness,
resource_requirements (none, basic, advanced), local_context_used,
suggestions_for_rural, key_strengths, improvement_areas, actionable_tips,
misconceptions_addressed, misconceptions_missed.`

// rawAnalysis is the flat JSON shape the model returns; Analyze folds it
// into the nested Scorecard.
type rawAnalysis struct {
	OverallScore            float64  `json:"overall_score"`
	ConceptsCovered         []string `json:"concepts_covered"`
	ConceptsMissed          []string `json:"concepts_missed"`
	DepthScore              float64  `json:"depth_score"`
	ClarityScore            float64  `json:"clarity_score"`
	Strengths               []string `json:"strengths"`
	ConfusingParts          []string `json:"confusing_parts"`
	LanguageLevel           string   `json:"language_level"`
	EngagementScore         float64  `json:"engagement_score"`
	TechniquesUsed          []string `json:"techniques_used"`
	MissedOpportunities     []string `json:"missed_opportunities"`
	RuralAppropriateness    float64  `json:"rural_appropriateness"`
	ResourceRequirements    string   `json:"resource_requirements"`
	LocalContextUsed        bool     `json:"local_context_used"`
	SuggestionsForRural     []string `json:"suggestions_for_rural"`
	KeyStrengths            []string `json:"key_strengths"`
	ImprovementAreas        []string `json:"improvement_areas"`
	ActionableTips          []string `json:"actionable_tips"`
	MisconceptionsAddressed []string `json:"misconceptions_addressed"`
	MisconceptionsMissed    []string `json:"misconceptions_missed"`
}

// Analyzer turns transcripts into scorecards with one model call.
type Analyzer struct {
	llm     model.LLM
	store   *Store
	timeout time.Duration
}

// NewAnalyzer creates an analyzer. store may be nil; scorecards are then
// not persisted.
func NewAnalyzer(llm model.LLM, store *Store, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Analyzer{llm: llm, store: store, timeout: timeout}
}

// Analyze scores one teaching session. An unparseable model response yields
// the safe fallback scorecard, not an error; a transport failure is an
// error. The scorecard is persisted when a store is configured, without the
// transcript.
func (a *Analyzer) Analyze(ctx context.Context, session *Session) (*Scorecard, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}

	log := logger.GetLogger()

	sessionID := session.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	log.Info("feedback_analysis_start", "session_id", sessionID,
		"topic", session.Topic, "grade", session.GradeLevel,
		"transcript_length", len(session.Transcript))

	genCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.llm.Generate(genCtx, &model.Request{
		System:          analysisSystem,
		Prompt:          buildAnalysisPrompt(session),
		JSONMode:        true,
		Temperature:     0.3,
		MaxOutputTokens: 4000,
	})
	if err != nil {
		return nil, fmt.Errorf("feedback analysis failed: %w", err)
	}

	var raw rawAnalysis
	card := &Scorecard{}
	if err := jsonutil.Extract(resp.Text, &raw); err != nil {
		log.Warn("feedback_parse_failed", "session_id", sessionID, "error", err)
		*card = fallbackScorecard()
	} else {
		*card = raw.scorecard()
	}
	card.SessionID = sessionID
	card.Topic = session.Topic
	card.GradeLevel = session.GradeLevel
	card.Timestamp = time.Now().UTC()

	if a.store != nil {
		if err := a.store.Save(ctx, card, session.TeacherID); err != nil {
			log.Warn("feedback_save_failed", "session_id", sessionID, "error", err)
		}
	}

	log.Info("feedback_analysis_complete", "session_id", sessionID,
		"overall_score", card.OverallScore)
	return card, nil
}

func buildAnalysisPrompt(session *Session) string {
	duration := "unknown"
	if session.DurationMinutes > 0 {
		duration = fmt.Sprintf("%d minutes", session.DurationMinutes)
	}
	lang := session.Language
	if lang == "" {
		lang = "en"
	}
	return fmt.Sprintf("Topic: %s\nGrade level: %s\nDuration: %s\nLanguage: %s\n\nTranscript:\n%s\n",
		session.Topic, session.GradeLevel, duration, lang, session.Transcript)
}

func (r rawAnalysis) scorecard() Scorecard {
	return Scorecard{
		OverallScore: clamp01(r.OverallScore),
		ConceptCoverage: ConceptCoverage{
			ConceptsCovered: r.ConceptsCovered,
			ConceptsMissed:  r.ConceptsMissed,
			DepthScore:      clamp01(r.DepthScore),
		},
		Clarity: ClarityAnalysis{
			ClarityScore:   clamp01(r.ClarityScore),
			Strengths:      r.Strengths,
			ConfusingParts: r.ConfusingParts,
			LanguageLevel:  r.LanguageLevel,
		},
		Engagement: EngagementAnalysis{
			EngagementScore:     clamp01(r.EngagementScore),
			TechniquesUsed:      r.TechniquesUsed,
			MissedOpportunities: r.MissedOpportunities,
		},
		RuralContext: RuralContextAnalysis{
			RuralAppropriateness: clamp01(r.RuralAppropriateness),
			ResourceRequirements: r.ResourceRequirements,
			LocalContextUsed:     r.LocalContextUsed,
			SuggestionsForRural:  r.SuggestionsForRural,
		},
		KeyStrengths:            r.KeyStrengths,
		ImprovementAreas:        r.ImprovementAreas,
		ActionableTips:          r.ActionableTips,
		MisconceptionsAddressed: r.MisconceptionsAddressed,
		MisconceptionsMissed:    r.MisconceptionsMissed,
	}
}

// fallbackScorecard is the safe payload returned when the model output
// cannot be parsed.
func fallbackScorecard() Scorecard {
	return Scorecard{
		OverallScore: 0.7,
		ConceptCoverage: ConceptCoverage{
			ConceptsCovered: []string{"Unable to analyze - please try again"},
			DepthScore:      0.7,
		},
		Clarity: ClarityAnalysis{
			ClarityScore:  0.7,
			Strengths:     []string{"Session recorded successfully"},
			LanguageLevel: "appropriate",
		},
		Engagement: EngagementAnalysis{EngagementScore: 0.7},
		RuralContext: RuralContextAnalysis{
			RuralAppropriateness: 0.7,
			ResourceRequirements: "unknown",
		},
		KeyStrengths:     []string{"Your dedication to teaching"},
		ImprovementAreas: []string{"Try recording again for detailed feedback"},
		ActionableTips: []string{
			"Ensure clear audio quality",
			"Speak clearly during teaching",
		},
	}
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
