package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Scorecards persist without the transcript: only the analysis and its
// metadata are stored.
const feedbackSchema = `
CREATE TABLE IF NOT EXISTS teaching_feedback (
	session_id    TEXT PRIMARY KEY,
	teacher_id    TEXT,
	topic         TEXT NOT NULL,
	grade_level   TEXT NOT NULL,
	timestamp     TEXT NOT NULL,
	overall_score REAL NOT NULL,
	scorecard     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_teacher ON teaching_feedback(teacher_id, timestamp DESC);
`

// ErrNotFound is returned when no scorecard exists for a session.
var ErrNotFound = fmt.Errorf("feedback not found")

// Store is the SQLite-backed scorecard archive. It is deliberately a
// separate database from conversation memory.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(feedbackSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create feedback schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts one scorecard. Re-analyzing a session replaces its previous
// scorecard.
func (s *Store) Save(ctx context.Context, card *Scorecard, teacherID string) error {
	doc, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to encode scorecard: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO teaching_feedback
		 (session_id, teacher_id, topic, grade_level, timestamp, overall_score, scorecard)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		card.SessionID, teacherID, card.Topic, card.GradeLevel,
		card.Timestamp.UTC().Format(time.RFC3339Nano), card.OverallScore, string(doc))
	if err != nil {
		return fmt.Errorf("failed to save scorecard: %w", err)
	}
	return nil
}

// Get retrieves the scorecard for one session.
func (s *Store) Get(ctx context.Context, sessionID string) (*Scorecard, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT scorecard FROM teaching_feedback WHERE session_id = ?`,
		sessionID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scorecard: %w", err)
	}
	var card Scorecard
	if err := json.Unmarshal([]byte(doc), &card); err != nil {
		return nil, fmt.Errorf("failed to decode scorecard: %w", err)
	}
	return &card, nil
}

// TeacherHistory aggregates a teacher's scorecards: averages, a coarse
// trend (last three sessions against the three before), and the recurring
// strengths and gaps.
func (s *Store) TeacherHistory(ctx context.Context, teacherID string, limit int) (*History, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT scorecard FROM teaching_feedback
		 WHERE teacher_id = ? ORDER BY timestamp DESC`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("failed to load teacher history: %w", err)
	}
	defer rows.Close()

	var cards []Scorecard
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var card Scorecard
		if err := json.Unmarshal([]byte(doc), &card); err != nil {
			return nil, fmt.Errorf("failed to decode scorecard: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history := &History{TeacherID: teacherID, ImprovementTrend: "stable"}
	if len(cards) == 0 {
		return history, nil
	}

	history.TotalSessions = len(cards)
	var total float64
	for _, c := range cards {
		total += c.OverallScore
	}
	history.AverageScore = total / float64(len(cards))

	if len(cards) >= 6 {
		recent := (cards[0].OverallScore + cards[1].OverallScore + cards[2].OverallScore) / 3
		older := (cards[3].OverallScore + cards[4].OverallScore + cards[5].OverallScore) / 3
		switch {
		case recent > older+0.1:
			history.ImprovementTrend = "improving"
		case recent < older-0.1:
			history.ImprovementTrend = "declining"
		}
	}

	if len(cards) > limit {
		history.RecentFeedbacks = cards[:limit]
	} else {
		history.RecentFeedbacks = cards
	}

	var strengths, gaps []string
	for _, c := range cards {
		strengths = append(strengths, c.KeyStrengths...)
		gaps = append(gaps, c.ImprovementAreas...)
	}
	history.CommonStrengths = topRecurring(strengths, 3)
	history.RecurringGaps = topRecurring(gaps, 3)
	return history, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// topRecurring returns the n most frequent items, most frequent first,
// alphabetical within equal counts.
func topRecurring(items []string, n int) []string {
	counts := make(map[string]int)
	for _, item := range items {
		counts[item]++
	}
	unique := make([]string, 0, len(counts))
	for item := range counts {
		unique = append(unique, item)
	}
	sort.Slice(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return unique[i] < unique[j]
	})
	if len(unique) > n {
		unique = unique[:n]
	}
	return unique
}
