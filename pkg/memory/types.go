// Package memory implements the conversation memory subsystem: a bounded
// LRU hot cache of sessions, a durable SQLite message log, and automatic
// summarization once a session grows past a threshold.
package memory

import (
	"strings"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// summaryPrefix marks a system message that compresses an earlier prefix of
// the conversation.
const summaryPrefix = "[Previous conversation summary: "

// Message is one turn in a session. Append-only.
type Message struct {
	SessionID   string            `json:"session_id"`
	Sequence    int64             `json:"sequence"`
	Role        string            `json:"role"`
	Content     string            `json:"content"`
	CaptureTime time.Time         `json:"capture_time"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IsSummary reports whether the message is a compressed-prefix marker.
func (m Message) IsSummary() bool {
	return m.Role == RoleSystem && strings.HasPrefix(m.Content, summaryPrefix)
}

// SummaryMessage builds the system message that stands in for a summarized
// conversation prefix.
func SummaryMessage(sessionID, summary string) Message {
	return Message{
		SessionID:   sessionID,
		Role:        RoleSystem,
		Content:     summaryPrefix + summary + "]",
		CaptureTime: time.Now().UTC(),
	}
}

// Session is one conversation thread held in the hot cache.
type Session struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Messages  []Message         `json:"messages"`
}

// Snapshot is a read-only copy of a cached session handed to callers.
type Snapshot struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Messages     []Message `json:"messages"`
}
