package feedback

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanakya-ai/chanakya/pkg/model/modeltest"
)

const sampleTranscript = "Today we learned about fractions. A fraction shows parts of a whole. " +
	"If I cut a roti into four equal pieces and give you one, you have one fourth."

func sampleSession() *Session {
	return &Session{
		Transcript: sampleTranscript,
		Topic:      "fractions",
		GradeLevel: "5",
		TeacherID:  "teacher-1",
	}
}

const analysisJSON = `{
	"overall_score": 0.82,
	"concepts_covered": ["fractions as parts of a whole"],
	"concepts_missed": ["equivalent fractions"],
	"depth_score": 0.7,
	"clarity_score": 0.9,
	"strengths": ["roti example is familiar"],
	"confusing_parts": [],
	"language_level": "appropriate",
	"engagement_score": 0.6,
	"techniques_used": ["concrete example"],
	"missed_opportunities": ["no questions asked"],
	"rural_appropriateness": 0.95,
	"resource_requirements": "none",
	"local_context_used": true,
	"suggestions_for_rural": [],
	"key_strengths": ["clear local example"],
	"improvement_areas": ["check understanding with questions"],
	"actionable_tips": ["ask two students to repeat the idea"],
	"misconceptions_addressed": [],
	"misconceptions_missed": ["bigger denominator means bigger fraction"]
}`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAnalyzeProducesScorecard(t *testing.T) {
	store := newTestStore(t)
	llm := &modeltest.StubLLM{Responses: []string{analysisJSON}}
	analyzer := NewAnalyzer(llm, store, 0)

	card, err := analyzer.Analyze(context.Background(), sampleSession())
	require.NoError(t, err)

	assert.NotEmpty(t, card.SessionID)
	assert.Equal(t, "fractions", card.Topic)
	assert.Equal(t, "5", card.GradeLevel)
	assert.InDelta(t, 0.82, card.OverallScore, 1e-9)
	assert.Equal(t, []string{"fractions as parts of a whole"}, card.ConceptCoverage.ConceptsCovered)
	assert.Equal(t, "appropriate", card.Clarity.LanguageLevel)
	assert.True(t, card.RuralContext.LocalContextUsed)
	assert.Equal(t, []string{"bigger denominator means bigger fraction"}, card.MisconceptionsMissed)

	// Transcript never reaches storage.
	stored, err := store.Get(context.Background(), card.SessionID)
	require.NoError(t, err)
	assert.Equal(t, card.OverallScore, stored.OverallScore)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSONMode)
	assert.Contains(t, reqs[0].Prompt, sampleTranscript)
	assert.Contains(t, reqs[0].Prompt, "Grade level: 5")
}

func TestAnalyzeKeepsProvidedSessionID(t *testing.T) {
	llm := &modeltest.StubLLM{Responses: []string{analysisJSON}}
	analyzer := NewAnalyzer(llm, nil, 0)

	session := sampleSession()
	session.SessionID = "session-42"
	card, err := analyzer.Analyze(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "session-42", card.SessionID)
}

func TestAnalyzeUnparseableFallsBack(t *testing.T) {
	llm := &modeltest.StubLLM{Responses: []string{"I cannot produce JSON today."}}
	analyzer := NewAnalyzer(llm, nil, 0)

	card, err := analyzer.Analyze(context.Background(), sampleSession())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, card.OverallScore, 1e-9)
	assert.Equal(t, []string{"Unable to analyze - please try again"}, card.ConceptCoverage.ConceptsCovered)
	assert.Equal(t, "fractions", card.Topic)
}

func TestAnalyzeModelErrorPropagates(t *testing.T) {
	llm := &modeltest.StubLLM{Err: assert.AnError}
	analyzer := NewAnalyzer(llm, nil, 0)

	_, err := analyzer.Analyze(context.Background(), sampleSession())
	require.Error(t, err)
}

func TestAnalyzeClampsScores(t *testing.T) {
	llm := &modeltest.StubLLM{Responses: []string{`{"overall_score": 1.8, "clarity_score": -0.2}`}}
	analyzer := NewAnalyzer(llm, nil, 0)

	card, err := analyzer.Analyze(context.Background(), sampleSession())
	require.NoError(t, err)
	assert.Equal(t, 1.0, card.OverallScore)
	assert.Equal(t, 0.0, card.Clarity.ClarityScore)
}

func TestSessionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Session)
		wantErr bool
	}{
		{name: "valid", mutate: func(s *Session) {}},
		{name: "short transcript", mutate: func(s *Session) { s.Transcript = "too short" }, wantErr: true},
		{name: "short topic", mutate: func(s *Session) { s.Topic = "x" }, wantErr: true},
		{name: "missing grade", mutate: func(s *Session) { s.GradeLevel = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := sampleSession()
			tt.mutate(session)
			err := session.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTeacherHistory(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	// Seven sessions with scores climbing over time. The most recent three
	// average well above the three before, so the trend is improving.
	scores := []float64{0.4, 0.45, 0.5, 0.8, 0.85, 0.9, 0.95}
	for i, score := range scores {
		card := &Scorecard{
			SessionID:    fmt.Sprintf("s-%d", i),
			Topic:        "fractions",
			GradeLevel:   "5",
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
			OverallScore: score,
			KeyStrengths: []string{"local examples"},
		}
		if i%2 == 0 {
			card.ImprovementAreas = []string{"ask more questions"}
		} else {
			card.ImprovementAreas = []string{"pace", "ask more questions"}
		}
		require.NoError(t, store.Save(context.Background(), card, "teacher-1"))
	}

	history, err := store.TeacherHistory(context.Background(), "teacher-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 7, history.TotalSessions)
	assert.Equal(t, "improving", history.ImprovementTrend)
	assert.Len(t, history.RecentFeedbacks, 5)
	assert.Equal(t, "s-6", history.RecentFeedbacks[0].SessionID)
	assert.Equal(t, []string{"local examples"}, history.CommonStrengths)
	require.NotEmpty(t, history.RecurringGaps)
	assert.Equal(t, "ask more questions", history.RecurringGaps[0])

	avg := 0.0
	for _, s := range scores {
		avg += s
	}
	assert.InDelta(t, avg/7, history.AverageScore, 1e-9)
}

func TestTeacherHistoryEmpty(t *testing.T) {
	store := newTestStore(t)
	history, err := store.TeacherHistory(context.Background(), "unknown", 5)
	require.NoError(t, err)
	assert.Zero(t, history.TotalSessions)
	assert.Equal(t, "stable", history.ImprovementTrend)
}

func TestSaveReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	card := &Scorecard{SessionID: "s-1", Topic: "fractions", GradeLevel: "5",
		Timestamp: time.Now().UTC(), OverallScore: 0.5}
	require.NoError(t, store.Save(context.Background(), card, "t-1"))

	card.OverallScore = 0.9
	require.NoError(t, store.Save(context.Background(), card, "t-1"))

	stored, err := store.Get(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, 0.9, stored.OverallScore)

	history, err := store.TeacherHistory(context.Background(), "t-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, history.TotalSessions)
}
